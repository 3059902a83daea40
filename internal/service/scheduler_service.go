package service

import (
	"Crosspost/internal/api/config"
	"Crosspost/internal/model"
	"Crosspost/internal/pkg/consts"
	"Crosspost/internal/pkg/kafka"
	"context"
	log "log/slog"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Locker 进程间互斥，多实例部署时保证一条帖子只被一个实例派发
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type SchedulerService interface {
	// ProcessDuePosts 扫描到期帖子并逐条派发，由定时任务驱动
	ProcessDuePosts(ctx context.Context) error
	// ReconcileMissed 启动时把停机期间错过宽限窗口的帖子转入待人工处理
	ReconcileMissed(ctx context.Context) (int64, error)
	// PublishPostNow 立即发布一条帖子，供手动触发与待处理补发使用
	PublishPostNow(ctx context.Context, id uint64) error
	// NextScheduledAt 基于重复规则计算严格晚于 now 的下一次发布时间
	NextScheduledAt(post *model.Post, seed, now time.Time) (time.Time, error)
}

type SchedulerServiceImpl struct {
	postRepo    PostRepoPort
	sendLogRepo SendLogPort
	fanout      Fanout
	locker      Locker
	events      kafka.EventPublisher
	cfg         config.SchedulerConfig
	loc         *time.Location
	now         func() time.Time
}

// PostRepoPort 调度侧依赖的帖子存取能力
type PostRepoPort interface {
	GetPost(ctx context.Context, id uint64, includeDeleted bool) (*model.Post, error)
	FindDue(ctx context.Context, now time.Time, limit int) ([]*model.Post, error)
	FindThreadSegments(ctx context.Context, threadID uint64) ([]*model.Post, error)
	Update(ctx context.Context, post *model.Post, fields ...string) error
	MarkMissedPending(ctx context.Context, cutoff time.Time) (int64, error)
}

// SendLogPort 调度侧依赖的审计日志能力
type SendLogPort interface {
	Append(ctx context.Context, logs ...*model.PostSendLog) error
}

func NewSchedulerService(
	postRepo PostRepoPort,
	sendLogRepo SendLogPort,
	fanout Fanout,
	locker Locker,
	events kafka.EventPublisher,
	cfg config.SchedulerConfig,
	loc *time.Location,
) *SchedulerServiceImpl {
	return &SchedulerServiceImpl{
		postRepo:    postRepo,
		sendLogRepo: sendLogRepo,
		fanout:      fanout,
		locker:      locker,
		events:      events,
		cfg:         cfg,
		loc:         loc,
		now:         time.Now,
	}
}

func (s *SchedulerServiceImpl) ProcessDuePosts(ctx context.Context) error {
	now := s.now()

	due, err := s.postRepo.FindDue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return errors.Wrap(err, "查询到期帖子失败")
	}
	if len(due) == 0 {
		return nil
	}

	log.InfoContext(ctx, "due posts found", "count", len(due))

	for _, post := range due {
		if err := s.dispatch(ctx, post.ID, false); err != nil {
			// 单条失败不中断本轮其余帖子
			log.ErrorContext(ctx, "dispatch failed", "postID", post.ID, "err", err)
		}
	}
	return nil
}

func (s *SchedulerServiceImpl) ReconcileMissed(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-time.Duration(s.cfg.GraceWindowMinutes) * time.Minute)

	count, err := s.postRepo.MarkMissedPending(ctx, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "错过帖子对账失败")
	}
	if count > 0 {
		log.InfoContext(ctx, "missed posts moved to pending_manual", "count", count, "cutoff", cutoff)
	}
	return count, nil
}

func (s *SchedulerServiceImpl) PublishPostNow(ctx context.Context, id uint64) error {
	return s.dispatch(ctx, id, true)
}

// dispatch 派发单条帖子。manual 为真表示人工触发：
// 发布时间以当前时刻为基准，且全平台失败时不改动帖子行。
func (s *SchedulerServiceImpl) dispatch(ctx context.Context, id uint64, manual bool) error {
	lockTTL := 2 * time.Minute
	release, ok, err := s.locker.Acquire(ctx, consts.PostDispatchLock+strconv.FormatUint(id, 10), lockTTL)
	if err != nil {
		return errors.Wrap(err, "获取派发锁失败")
	}
	if !ok {
		log.InfoContext(ctx, "post locked by another worker, skipping", "postID", id)
		if manual {
			return ErrPostNotPublishable
		}
		return nil
	}
	defer release()

	// 拿到锁后重读，别的实例可能已经处理过
	post, err := s.postRepo.GetPost(ctx, id, false)
	if err != nil {
		return errors.Wrap(err, "重读帖子失败")
	}

	if manual {
		if post.Status != consts.PostStatusScheduled && post.Status != consts.PostStatusPendingManual {
			return ErrPostNotPublishable
		}
	} else if post.Status != consts.PostStatusScheduled {
		return nil
	}

	segments, err := s.threadSegments(ctx, post)
	if err != nil {
		return err
	}

	outcome := s.fanout.Publish(ctx, post, segments)
	now := s.now()

	s.appendSendLogs(ctx, post, segments, outcome, now)

	if !outcome.AnySuccess() {
		if manual {
			// 帖子行保持原样，只留审计记录
			return ErrAllPlatformsFailed
		}
		return s.applyTickFailure(ctx, post, outcome, now)
	}

	return s.applySuccess(ctx, post, segments, outcome, now, manual)
}

func (s *SchedulerServiceImpl) threadSegments(ctx context.Context, post *model.Post) ([]*model.Post, error) {
	if !post.IsThreadPost || post.ThreadID == nil {
		return nil, nil
	}

	all, err := s.postRepo.FindThreadSegments(ctx, *post.ThreadID)
	if err != nil {
		return nil, errors.Wrap(err, "查询线程片段失败")
	}

	segments := make([]*model.Post, 0, len(all))
	for _, segment := range all {
		if segment.Sequence > post.Sequence {
			segments = append(segments, segment)
		}
	}
	return segments, nil
}

// applySuccess 任一平台成功即算发布成功，失败平台留在台账里等待下个周期
func (s *SchedulerServiceImpl) applySuccess(ctx context.Context, post *model.Post, segments []*model.Post, outcome *FanoutOutcome, now time.Time, manual bool) error {
	results := mergeAttempts(post.CloneResults(), outcome.Root, now)

	post.PlatformResults = results
	post.PostedAt = &now
	post.PostURI = primaryURI(post.TargetPlatforms, results)
	post.AttemptCount = 0
	post.PendingReason = nil

	if post.Repeat == consts.RepeatNone {
		post.Status = consts.PostStatusSent
		post.ScheduledAt = nil
	} else {
		// 周期帖保持 scheduled 并滚动到下一次。
		// 定时派发从原计划时间推进，人工补发从当前时刻推进。
		seed := now
		if !manual && post.ScheduledAt != nil {
			seed = *post.ScheduledAt
		}

		next, err := s.NextScheduledAt(post, seed, now)
		if err != nil {
			log.WarnContext(ctx, "next occurrence unavailable, falling back",
				"postID", post.ID, "err", err)
			next = now.Add(time.Duration(s.cfg.BaseBackoffMs) * time.Millisecond)
		}
		post.Status = consts.PostStatusScheduled
		post.ScheduledAt = &next
	}

	err := s.postRepo.Update(ctx, post,
		"status", "scheduled_at", "posted_at", "post_uri",
		"attempt_count", "pending_reason", "platform_results")
	if err != nil {
		return errors.Wrap(err, "写入发布结果失败")
	}

	s.events.PostUpdated(ctx, post.ID, post.Status)
	log.InfoContext(ctx, "post published", "postID", post.ID, "status", post.Status, "uri", post.PostURI)

	s.applySegmentResults(ctx, segments, outcome, now)
	return nil
}

// applySegmentResults 片段行只在自身有成功平台时落库
func (s *SchedulerServiceImpl) applySegmentResults(ctx context.Context, segments []*model.Post, outcome *FanoutOutcome, now time.Time) {
	for _, segment := range segments {
		attempts := outcome.Segments[segment.ID]

		anySent := false
		for _, attempt := range attempts {
			if attempt.Err == nil && !attempt.Blocked {
				anySent = true
				break
			}
		}
		if !anySent {
			continue
		}

		segment.PlatformResults = mergeAttempts(segment.CloneResults(), attempts, now)
		segment.Status = consts.PostStatusSent
		segment.PostedAt = &now
		segment.PostURI = primaryURI(segment.TargetPlatforms, segment.PlatformResults)
		segment.ScheduledAt = nil

		err := s.postRepo.Update(ctx, segment,
			"status", "scheduled_at", "posted_at", "post_uri", "platform_results")
		if err != nil {
			log.ErrorContext(ctx, "write segment result failed", "segmentID", segment.ID, "err", err)
		}
	}
}

func (s *SchedulerServiceImpl) applyTickFailure(ctx context.Context, post *model.Post, outcome *FanoutOutcome, now time.Time) error {
	attempt := post.AttemptCount + 1
	retryAfter := time.Duration(outcome.MaxRetryAfter()) * time.Millisecond

	decision := NextAttempt(attempt, s.cfg.MaxAttempts,
		time.Duration(s.cfg.BaseBackoffMs)*time.Millisecond,
		time.Duration(s.cfg.MaxBackoffMs)*time.Millisecond,
		retryAfter)

	post.PlatformResults = mergeAttempts(post.CloneResults(), outcome.Root, now)
	post.AttemptCount = attempt

	if decision.Exhausted {
		post.Status = consts.PostStatusError
		err := s.postRepo.Update(ctx, post, "status", "attempt_count", "platform_results")
		if err != nil {
			return errors.Wrap(err, "写入失败状态失败")
		}
		s.events.PostUpdated(ctx, post.ID, post.Status)
		log.ErrorContext(ctx, "post failed permanently", "postID", post.ID, "attempts", attempt)
		return nil
	}

	next := now.Add(decision.Delay)
	post.ScheduledAt = &next

	err := s.postRepo.Update(ctx, post, "scheduled_at", "attempt_count", "platform_results")
	if err != nil {
		return errors.Wrap(err, "写入重试时间失败")
	}
	log.WarnContext(ctx, "post publish failed, retry scheduled",
		"postID", post.ID, "attempt", attempt, "nextAt", next)
	return nil
}

func (s *SchedulerServiceImpl) NextScheduledAt(post *model.Post, seed, now time.Time) (time.Time, error) {
	rule := RepeatRule{
		Mode:       post.Repeat,
		DayOfWeek:  post.RepeatDayOfWeek,
		DaysOfWeek: post.RepeatDaysOfWeek,
		DayOfMonth: post.RepeatDayOfMonth,
	}

	next, err := NextOccurrence(rule, seed, s.loc)
	if err != nil {
		return time.Time{}, err
	}
	for !next.After(now) {
		next, err = NextOccurrence(rule, next, s.loc)
		if err != nil {
			return time.Time{}, err
		}
	}
	return next, nil
}

func (s *SchedulerServiceImpl) appendSendLogs(ctx context.Context, post *model.Post, segments []*model.Post, outcome *FanoutOutcome, now time.Time) {
	var logs []*model.PostSendLog

	logs = append(logs, attemptLogs(post, outcome.Root, now)...)
	for _, segment := range segments {
		logs = append(logs, attemptLogs(segment, outcome.Segments[segment.ID], now)...)
	}

	if err := s.sendLogRepo.Append(ctx, logs...); err != nil {
		log.ErrorContext(ctx, "append send logs failed", "postID", post.ID, "err", err)
	}
}

// attemptLogs 只记录真正发起过的调用，被阻塞的片段不产生日志
func attemptLogs(post *model.Post, attempts map[string]*PlatformAttempt, now time.Time) []*model.PostSendLog {
	logs := make([]*model.PostSendLog, 0, len(attempts))
	for platformID, attempt := range attempts {
		if attempt.Blocked {
			continue
		}

		entry := &model.PostSendLog{
			PostID:          post.ID,
			Platform:        platformID,
			EventType:       consts.SendLogEventSend,
			ContentSnapshot: post.Content,
			PostedAt:        now,
		}
		if attempt.Err != nil {
			entry.Status = consts.SendLogStatusFailed
			entry.Error = attempt.Err.Error()
		} else {
			entry.Status = consts.SendLogStatusSuccess
			entry.PostURI = attempt.Result.URI
			entry.PostCID = attempt.Result.CID
			if entry.PostURI == "" {
				entry.PostURI = attempt.Result.StatusID
			}
		}
		logs = append(logs, entry)
	}
	return logs
}

// mergeAttempts 把本轮结果合并进既有台账，未参与本轮的平台保持原条目
func mergeAttempts(results model.PlatformResults, attempts map[string]*PlatformAttempt, now time.Time) model.PlatformResults {
	if results == nil {
		results = make(model.PlatformResults, len(attempts))
	}

	for platformID, attempt := range attempts {
		if attempt.Blocked {
			continue
		}

		prev := results[platformID]
		entry := &model.PlatformResult{}
		if prev != nil {
			entry.Attempts = prev.Attempts
		}
		entry.Attempts++

		if attempt.Err != nil {
			failedAt := now
			entry.Status = consts.PlatformResultFailed
			entry.FailedAt = &failedAt
			entry.Error = attempt.Err.Error()
		} else {
			postedAt := now
			entry.Status = consts.PlatformResultSent
			entry.PostedAt = &postedAt
			entry.URI = attempt.Result.URI
			entry.CID = attempt.Result.CID
			entry.StatusID = attempt.Result.StatusID
		}
		results[platformID] = entry
	}
	return results
}

// primaryURI 按目标平台顺序取第一个成功平台的远端标识
func primaryURI(targetPlatforms []string, results model.PlatformResults) string {
	for _, platformID := range targetPlatforms {
		entry := results[platformID]
		if entry == nil || entry.Status != consts.PlatformResultSent {
			continue
		}
		if entry.URI != "" {
			return entry.URI
		}
		if entry.StatusID != "" {
			return entry.StatusID
		}
	}
	return ""
}
