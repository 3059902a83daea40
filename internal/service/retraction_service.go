package service

import (
	"Crosspost/internal/api/dto"
	"Crosspost/internal/model"
	"Crosspost/internal/pkg/consts"
	"Crosspost/internal/pkg/kafka"
	"Crosspost/internal/pkg/platform"
	"Crosspost/internal/repository"
	"context"
	"errors"
	log "log/slog"
	"time"

	"gorm.io/gorm"
)

type RetractionService interface {
	// Retract 撤回远端已发布内容，platforms 为空表示全部有发布记录的平台
	Retract(ctx context.Context, id uint64, platforms []string) ([]*dto.RetractResultDTO, error)
}

type retractionServiceImpl struct {
	postRepo    repository.PostRepo
	sendLogRepo repository.SendLogRepo
	registry    *platform.Registry
	events      kafka.EventPublisher
	now         func() time.Time
}

func NewRetractionService(
	postRepo repository.PostRepo,
	sendLogRepo repository.SendLogRepo,
	registry *platform.Registry,
	events kafka.EventPublisher,
) RetractionService {
	return &retractionServiceImpl{
		postRepo:    postRepo,
		sendLogRepo: sendLogRepo,
		registry:    registry,
		events:      events,
		now:         time.Now,
	}
}

func (s *retractionServiceImpl) Retract(ctx context.Context, id uint64, platforms []string) ([]*dto.RetractResultDTO, error) {
	post, err := s.postRepo.GetPost(ctx, id, true)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}

	targets, err := s.retractTargets(post, platforms)
	if err != nil {
		return nil, err
	}

	results := post.CloneResults()
	now := s.now()
	outcomes := make([]*dto.RetractResultDTO, 0, len(targets))
	anyDeleted := false

	for _, platformID := range targets {
		outcome := &dto.RetractResultDTO{Platform: platformID}
		outcomes = append(outcomes, outcome)

		entry := results[platformID]
		if entry == nil || entry.Status != consts.PlatformResultSent || (entry.URI == "" && entry.StatusID == "") {
			outcome.Error = "该平台没有可撤回的发布记录"
			continue
		}

		client, err := s.registry.Get(platformID)
		if err != nil {
			outcome.Error = err.Error()
			continue
		}

		err = client.Delete(ctx, platform.DeleteIdentifiers{URI: entry.URI, StatusID: entry.StatusID})

		logEntry := &model.PostSendLog{
			PostID:    post.ID,
			Platform:  platformID,
			EventType: consts.SendLogEventDelete,
			PostURI:   entry.URI,
			PostedAt:  now,
		}
		if logEntry.PostURI == "" {
			logEntry.PostURI = entry.StatusID
		}

		if err != nil {
			outcome.Error = err.Error()
			logEntry.Status = consts.SendLogStatusFailed
			logEntry.Error = err.Error()
			log.WarnContext(ctx, "retract failed", "postID", post.ID, "platform", platformID, "err", err)
		} else {
			outcome.OK = true
			anyDeleted = true
			logEntry.Status = consts.SendLogStatusSuccess
			markResultAsDeleted(entry, now)
		}

		if err := s.sendLogRepo.Append(ctx, logEntry); err != nil {
			log.ErrorContext(ctx, "append retract log failed", "postID", post.ID, "err", err)
		}
	}

	if !anyDeleted {
		return outcomes, nil
	}

	post.PlatformResults = results
	fields := []string{"platform_results"}

	// 一次性帖只要撤回成功就回到未发布形态；周期帖保留排期
	if post.Repeat == consts.RepeatNone {
		post.PostURI = ""
		post.PostedAt = nil
		post.ScheduledAt = nil
		fields = append(fields, "post_uri", "posted_at", "scheduled_at")
	}

	if err := s.postRepo.Update(ctx, post, fields...); err != nil {
		return nil, err
	}

	s.events.PostUpdated(ctx, post.ID, post.Status)
	log.InfoContext(ctx, "post retracted", "postID", post.ID, "platforms", targets)
	return outcomes, nil
}

// retractTargets 确定撤回范围：显式指定的平台需在白名单内，
// 未指定时取目标平台与台账键的并集
func (s *retractionServiceImpl) retractTargets(post *model.Post, platforms []string) ([]string, error) {
	if len(platforms) > 0 {
		return normalizePlatforms(s.registry, platforms)
	}

	seen := make(map[string]bool)
	targets := make([]string, 0, len(post.TargetPlatforms)+len(post.PlatformResults))
	for _, id := range post.TargetPlatforms {
		if !seen[id] {
			seen[id] = true
			targets = append(targets, id)
		}
	}
	for id := range post.PlatformResults {
		if !seen[id] {
			seen[id] = true
			targets = append(targets, id)
		}
	}

	if len(targets) == 0 {
		return nil, ErrNoPublishedPlatformData
	}
	return targets, nil
}

// markResultAsDeleted 改写台账：清空存活字段，保留删除审计信息
func markResultAsDeleted(entry *model.PlatformResult, now time.Time) {
	entry.Status = consts.PlatformResultDeleted
	entry.DeletedAt = &now
	entry.DeletedURI = entry.URI
	entry.DeletedStatusID = entry.StatusID
	entry.URI = ""
	entry.CID = ""
	entry.StatusID = ""
	entry.PostedAt = nil
	entry.Error = ""
}
