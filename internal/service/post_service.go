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
	"strings"
	"time"

	"github.com/jinzhu/copier"
	"gorm.io/gorm"
)

type PostService interface {
	CreatePost(ctx context.Context, req *dto.PostBaseDTO) (*dto.PostDTO, error)
	GetPost(ctx context.Context, id uint64, includeDeleted bool) (*dto.PostDTO, error)
	ListPosts(ctx context.Context, query *dto.ListPostsQueryDTO) (*dto.PostListDTO, error)
	UpdatePost(ctx context.Context, id uint64, req *dto.PostBaseDTO) (*dto.PostDTO, error)
	DeletePost(ctx context.Context, id uint64, permanent, force bool) error
	RestorePost(ctx context.Context, id uint64) error
	PublishNow(ctx context.Context, id uint64) (*dto.PostDTO, error)

	ListPending(ctx context.Context) (*dto.PostListDTO, error)
	// PublishPendingOnce 补发一条待人工处理的帖子
	PublishPendingOnce(ctx context.Context, id uint64) (*dto.PostDTO, error)
	// DiscardPending 丢弃待处理帖子：一次性帖转 skipped，周期帖滚动到下一次
	DiscardPending(ctx context.Context, id uint64) (*dto.PostDTO, error)

	GetSendHistory(ctx context.Context, id uint64, limit, offset int) ([]*dto.SendLogDTO, error)
}

type postServiceImpl struct {
	postRepo    repository.PostRepo
	sendLogRepo repository.SendLogRepo
	scheduler   SchedulerService
	registry    *platform.Registry
	events      kafka.EventPublisher
	loc         *time.Location
	now         func() time.Time
}

func NewPostService(
	postRepo repository.PostRepo,
	sendLogRepo repository.SendLogRepo,
	scheduler SchedulerService,
	registry *platform.Registry,
	events kafka.EventPublisher,
	loc *time.Location,
) PostService {
	return &postServiceImpl{
		postRepo:    postRepo,
		sendLogRepo: sendLogRepo,
		scheduler:   scheduler,
		registry:    registry,
		events:      events,
		loc:         loc,
		now:         time.Now,
	}
}

func (s *postServiceImpl) CreatePost(ctx context.Context, req *dto.PostBaseDTO) (*dto.PostDTO, error) {
	post := &model.Post{}
	if err := s.buildPostFields(post, req); err != nil {
		return nil, err
	}

	if err := s.postRepo.CreatePost(ctx, post); err != nil {
		return nil, err
	}

	s.events.PostUpdated(ctx, post.ID, post.Status)
	log.InfoContext(ctx, "post created", "postID", post.ID, "status", post.Status)
	return toPostDTO(post), nil
}

func (s *postServiceImpl) GetPost(ctx context.Context, id uint64, includeDeleted bool) (*dto.PostDTO, error) {
	post, err := s.loadPost(ctx, id, includeDeleted)
	if err != nil {
		return nil, err
	}
	return toPostDTO(post), nil
}

func (s *postServiceImpl) ListPosts(ctx context.Context, query *dto.ListPostsQueryDTO) (*dto.PostListDTO, error) {
	posts, err := s.postRepo.ListPosts(ctx, query.IncludeDeleted, query.OnlyDeleted)
	if err != nil {
		return nil, err
	}
	return toPostListDTO(posts), nil
}

func (s *postServiceImpl) UpdatePost(ctx context.Context, id uint64, req *dto.PostBaseDTO) (*dto.PostDTO, error) {
	post, err := s.loadPost(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if post.Status == consts.PostStatusSent {
		return nil, ErrPostNotPublishable
	}

	if err := s.buildPostFields(post, req); err != nil {
		return nil, err
	}

	// 内容或调度规则变更后，旧的尝试记录不再有意义
	post.AttemptCount = 0
	post.PlatformResults = nil
	post.PostURI = ""
	post.PostedAt = nil

	err = s.postRepo.Update(ctx, post,
		"content", "status", "scheduled_at", "posted_at", "post_uri",
		"repeat", "repeat_day_of_week", "repeat_days_of_week", "repeat_day_of_month",
		"pending_reason", "target_platforms", "platform_results", "attempt_count",
		"thread_id", "is_thread_post", "sequence")
	if err != nil {
		return nil, err
	}

	s.events.PostUpdated(ctx, post.ID, post.Status)
	return toPostDTO(post), nil
}

func (s *postServiceImpl) DeletePost(ctx context.Context, id uint64, permanent, force bool) error {
	post, err := s.loadPost(ctx, id, permanent)
	if err != nil {
		return err
	}

	if !force && hasLiveRemote(post) {
		return ErrPostHasLiveRemote
	}

	if permanent {
		if err := s.sendLogRepo.DeleteByPost(ctx, id); err != nil {
			return err
		}
		return s.postRepo.HardDelete(ctx, id)
	}
	return s.postRepo.SoftDelete(ctx, id)
}

func (s *postServiceImpl) RestorePost(ctx context.Context, id uint64) error {
	if _, err := s.loadPost(ctx, id, true); err != nil {
		return err
	}
	return s.postRepo.Restore(ctx, id)
}

func (s *postServiceImpl) PublishNow(ctx context.Context, id uint64) (*dto.PostDTO, error) {
	if _, err := s.loadPost(ctx, id, false); err != nil {
		return nil, err
	}

	if err := s.scheduler.PublishPostNow(ctx, id); err != nil {
		return nil, err
	}

	post, err := s.loadPost(ctx, id, false)
	if err != nil {
		return nil, err
	}
	return toPostDTO(post), nil
}

func (s *postServiceImpl) ListPending(ctx context.Context) (*dto.PostListDTO, error) {
	posts, err := s.postRepo.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	return toPostListDTO(posts), nil
}

func (s *postServiceImpl) PublishPendingOnce(ctx context.Context, id uint64) (*dto.PostDTO, error) {
	post, err := s.loadPost(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if post.Status != consts.PostStatusPendingManual {
		return nil, ErrPostNotPending
	}

	if err := s.scheduler.PublishPostNow(ctx, id); err != nil {
		return nil, err
	}

	post, err = s.loadPost(ctx, id, false)
	if err != nil {
		return nil, err
	}
	return toPostDTO(post), nil
}

func (s *postServiceImpl) DiscardPending(ctx context.Context, id uint64) (*dto.PostDTO, error) {
	post, err := s.loadPost(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if post.Status != consts.PostStatusPendingManual {
		return nil, ErrPostNotPending
	}

	if post.Repeat == consts.RepeatNone {
		reason := consts.PendingReasonDiscardedByUser
		post.Status = consts.PostStatusSkipped
		post.PendingReason = &reason
		post.ScheduledAt = nil
	} else {
		// 以最近一次成功发布的时间为基准滚动，保持原有的挂钟时刻；
		// 下一次时间算不出来就不落任何改动
		now := s.now()
		seed := now
		if post.PostedAt != nil {
			seed = *post.PostedAt
		}
		next, err := s.scheduler.NextScheduledAt(post, seed, now)
		if err != nil {
			return nil, ErrNextScheduleUnknown
		}
		post.Status = consts.PostStatusScheduled
		post.PendingReason = nil
		post.ScheduledAt = &next
	}

	err = s.postRepo.Update(ctx, post, "status", "pending_reason", "scheduled_at")
	if err != nil {
		return nil, err
	}

	s.events.PostUpdated(ctx, post.ID, post.Status)
	log.InfoContext(ctx, "pending post discarded", "postID", post.ID, "status", post.Status)
	return toPostDTO(post), nil
}

func (s *postServiceImpl) GetSendHistory(ctx context.Context, id uint64, limit, offset int) ([]*dto.SendLogDTO, error) {
	if _, err := s.loadPost(ctx, id, true); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	logs, err := s.sendLogRepo.ListByPost(ctx, id, limit, offset)
	if err != nil {
		return nil, err
	}

	items := make([]*dto.SendLogDTO, 0, len(logs))
	for _, entry := range logs {
		item := &dto.SendLogDTO{}
		_ = copier.Copy(item, entry)
		items = append(items, item)
	}
	return items, nil
}

func (s *postServiceImpl) loadPost(ctx context.Context, id uint64, includeDeleted bool) (*model.Post, error) {
	post, err := s.postRepo.GetPost(ctx, id, includeDeleted)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	return post, nil
}

// buildPostFields 校验并填充帖子字段，校验不通过时 post 保持未定义状态不可落库
func (s *postServiceImpl) buildPostFields(post *model.Post, req *dto.PostBaseDTO) error {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return ErrContentRequired
	}

	platforms, err := normalizePlatforms(s.registry, req.TargetPlatforms)
	if err != nil {
		return err
	}

	repeat := req.Repeat
	if repeat == "" {
		repeat = consts.RepeatNone
	}
	rule := RepeatRule{
		Mode:       repeat,
		DayOfWeek:  req.RepeatDayOfWeek,
		DaysOfWeek: req.RepeatDaysOfWeek,
		DayOfMonth: req.RepeatDayOfMonth,
	}
	if err := ValidateRepeatRule(rule); err != nil {
		return err
	}

	scheduledAt := req.ScheduledAt
	status := consts.PostStatusScheduled
	if req.Draft {
		status = consts.PostStatusDraft
	} else if scheduledAt == nil {
		if repeat == consts.RepeatNone {
			return ErrScheduleRequired
		}
		// 周期帖未给首次时间时，从当前时刻按规则推一个
		next, err := NextOccurrence(rule, s.now(), s.loc)
		if err != nil {
			return err
		}
		scheduledAt = &next
	}

	post.Content = content
	post.Status = status
	post.ScheduledAt = scheduledAt
	post.Repeat = repeat
	post.RepeatDayOfWeek = req.RepeatDayOfWeek
	post.RepeatDaysOfWeek = req.RepeatDaysOfWeek
	post.RepeatDayOfMonth = req.RepeatDayOfMonth
	post.PendingReason = nil
	post.TargetPlatforms = platforms
	post.ThreadID = req.ThreadID
	post.IsThreadPost = req.IsThreadPost
	post.Sequence = req.Sequence
	return nil
}

// normalizePlatforms 去重并校验平台白名单，空列表回退到默认平台。
// 白名单内但没有注册适配器的平台同样拒绝
func normalizePlatforms(registry *platform.Registry, platforms []string) ([]string, error) {
	if len(platforms) == 0 {
		return []string{consts.DefaultPlatform}, nil
	}

	seen := make(map[string]bool, len(platforms))
	out := make([]string, 0, len(platforms))
	for _, id := range platforms {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" || seen[id] {
			continue
		}

		allowed := false
		for _, candidate := range consts.AllowedPlatforms {
			if id == candidate {
				allowed = true
				break
			}
		}
		if !allowed || !registry.Has(id) {
			return nil, ErrPlatformInvalid
		}

		seen[id] = true
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, ErrPlatformRequired
	}
	return out, nil
}

func hasLiveRemote(post *model.Post) bool {
	for _, entry := range post.PlatformResults {
		if entry != nil && entry.Status == consts.PlatformResultSent {
			return true
		}
	}
	return false
}

func toPostDTO(post *model.Post) *dto.PostDTO {
	item := &dto.PostDTO{}
	_ = copier.Copy(item, post)
	if post.DeletedAt.Valid {
		deletedAt := post.DeletedAt.Time
		item.DeletedAt = &deletedAt
	} else {
		item.DeletedAt = nil
	}
	return item
}

func toPostListDTO(posts []*model.Post) *dto.PostListDTO {
	items := make([]*dto.PostDTO, 0, len(posts))
	for _, post := range posts {
		items = append(items, toPostDTO(post))
	}
	return &dto.PostListDTO{Posts: items, Total: len(items)}
}
