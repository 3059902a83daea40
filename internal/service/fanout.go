package service

import (
	"Crosspost/internal/model"
	"Crosspost/internal/pkg/platform"
	"context"
	"errors"
	log "log/slog"

	"golang.org/x/sync/errgroup"
)

// PlatformAttempt 单个平台上单条内容的发布结果
type PlatformAttempt struct {
	Result *platform.PublishResult
	Err    error
	// Blocked 线程中前一条失败导致本条未尝试
	Blocked bool
}

// FanoutOutcome 一次扇出的全部结果。
// Root 按平台记录首条，Segments 按片段 ID 再按平台记录后续各条。
type FanoutOutcome struct {
	Root     map[string]*PlatformAttempt
	Segments map[uint64]map[string]*PlatformAttempt
}

// AnySuccess 只看首条：任一平台首条成功即视为本次发布成功
func (o *FanoutOutcome) AnySuccess() bool {
	for _, attempt := range o.Root {
		if attempt.Err == nil && !attempt.Blocked {
			return true
		}
	}
	return false
}

// MaxRetryAfter 取各平台限流响应中最长的等待时长
func (o *FanoutOutcome) MaxRetryAfter() (max int64) {
	for _, attempt := range o.Root {
		var pe *platform.Error
		if errors.As(attempt.Err, &pe) {
			if ms := pe.RetryAfter.Milliseconds(); ms > max {
				max = ms
			}
		}
	}
	return max
}

// Fanout 将一条帖子（或线程）并发发布到多个平台
type Fanout interface {
	Publish(ctx context.Context, post *model.Post, segments []*model.Post) *FanoutOutcome
}

type FanoutImpl struct {
	registry    *platform.Registry
	concurrency int
}

func NewFanout(registry *platform.Registry, concurrency int) Fanout {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &FanoutImpl{registry: registry, concurrency: concurrency}
}

// Publish 各平台互不影响：单平台失败只记入该平台的结果槽。
// 槽位在启动协程前分配好，协程只写自己的槽，无需加锁。
func (s *FanoutImpl) Publish(ctx context.Context, post *model.Post, segments []*model.Post) *FanoutOutcome {
	outcome := &FanoutOutcome{
		Root:     make(map[string]*PlatformAttempt, len(post.TargetPlatforms)),
		Segments: make(map[uint64]map[string]*PlatformAttempt, len(segments)),
	}
	for _, segment := range segments {
		outcome.Segments[segment.ID] = make(map[string]*PlatformAttempt, len(post.TargetPlatforms))
	}
	for _, id := range post.TargetPlatforms {
		outcome.Root[id] = &PlatformAttempt{}
		for _, segment := range segments {
			outcome.Segments[segment.ID][id] = &PlatformAttempt{}
		}
	}

	g := &errgroup.Group{}
	g.SetLimit(s.concurrency)

	for _, id := range post.TargetPlatforms {
		platformID := id
		g.Go(func() error {
			s.publishToPlatform(ctx, platformID, post, segments, outcome)
			return nil
		})
	}
	_ = g.Wait()

	return outcome
}

func (s *FanoutImpl) publishToPlatform(ctx context.Context, platformID string, post *model.Post, segments []*model.Post, outcome *FanoutOutcome) {
	rootSlot := outcome.Root[platformID]

	client, err := s.registry.Get(platformID)
	if err != nil {
		rootSlot.Err = err
		blockSegments(platformID, segments, outcome)
		return
	}

	// 凭据缺失直接短路，不发起网络调用
	if err := client.CheckConfig(); err != nil {
		rootSlot.Err = err
		blockSegments(platformID, segments, outcome)
		return
	}

	result, err := client.Publish(ctx, platform.PublishInput{Content: post.Content})
	if err != nil {
		rootSlot.Err = err
		blockSegments(platformID, segments, outcome)
		log.WarnContext(ctx, "platform publish failed", "platform", platformID, "postID", post.ID, "err", err)
		return
	}
	rootSlot.Result = result

	// 线程按序发布，回复引用 root 固定为首条，parent 逐条推进
	root := refFromResult(result)
	parent := root
	failed := false

	for _, segment := range segments {
		slot := outcome.Segments[segment.ID][platformID]
		if failed {
			slot.Blocked = true
			continue
		}

		segResult, err := client.Publish(ctx, platform.PublishInput{
			Content: segment.Content,
			Reply:   &platform.ReplyRefs{Root: root, Parent: parent},
		})
		if err != nil {
			slot.Err = err
			failed = true
			log.WarnContext(ctx, "thread segment publish failed",
				"platform", platformID, "postID", post.ID, "segmentID", segment.ID, "err", err)
			continue
		}

		slot.Result = segResult
		parent = refFromResult(segResult)
	}
}

func blockSegments(platformID string, segments []*model.Post, outcome *FanoutOutcome) {
	for _, segment := range segments {
		outcome.Segments[segment.ID][platformID].Blocked = true
	}
}

func refFromResult(result *platform.PublishResult) platform.Ref {
	return platform.Ref{URI: result.URI, CID: result.CID, StatusID: result.StatusID}
}
