package service

import (
	"Crosspost/internal/model"
	"Crosspost/internal/pkg/platform"
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"gorm.io/gorm"
)

// fakePostRepo 内存版帖子存储，满足 repository.PostRepo
type fakePostRepo struct {
	mu     sync.Mutex
	nextID uint64
	posts  map[uint64]*model.Post
	// updateCalls 记录每次 Update 写入的字段集
	updateCalls [][]string
}

func newFakePostRepo() *fakePostRepo {
	return &fakePostRepo{nextID: 1, posts: make(map[uint64]*model.Post)}
}

func (f *fakePostRepo) put(post *model.Post) *model.Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	if post.ID == 0 {
		post.ID = f.nextID
		f.nextID++
	} else if post.ID >= f.nextID {
		f.nextID = post.ID + 1
	}
	clone := *post
	f.posts[post.ID] = &clone
	return post
}

func (f *fakePostRepo) get(id uint64) *model.Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	post, ok := f.posts[id]
	if !ok {
		return nil
	}
	clone := *post
	return &clone
}

func (f *fakePostRepo) CreatePost(ctx context.Context, post *model.Post) error {
	f.put(post)
	return nil
}

func (f *fakePostRepo) GetPost(ctx context.Context, id uint64, includeDeleted bool) (*model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	post, ok := f.posts[id]
	if !ok || (!includeDeleted && post.DeletedAt.Valid) {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *post
	return &clone, nil
}

func (f *fakePostRepo) ListPosts(ctx context.Context, includeDeleted, onlyDeleted bool) ([]*model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Post
	for _, post := range f.posts {
		if post.DeletedAt.Valid && !includeDeleted && !onlyDeleted {
			continue
		}
		if onlyDeleted && !post.DeletedAt.Valid {
			continue
		}
		clone := *post
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakePostRepo) ListPending(ctx context.Context) ([]*model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Post
	for _, post := range f.posts {
		if post.DeletedAt.Valid || post.Status != "pending_manual" {
			continue
		}
		clone := *post
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakePostRepo) FindDue(ctx context.Context, now time.Time, limit int) ([]*model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Post
	for _, post := range f.posts {
		if post.DeletedAt.Valid || post.Status != "scheduled" || post.ScheduledAt == nil {
			continue
		}
		if post.ScheduledAt.After(now) {
			continue
		}
		if post.IsThreadPost && post.Sequence != 1 {
			continue
		}
		clone := *post
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(*out[j].ScheduledAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakePostRepo) FindThreadSegments(ctx context.Context, threadID uint64) ([]*model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Post
	for _, post := range f.posts {
		if post.ThreadID == nil || *post.ThreadID != threadID || !post.IsThreadPost {
			continue
		}
		clone := *post
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (f *fakePostRepo) Update(ctx context.Context, post *model.Post, fields ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.posts[post.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	f.updateCalls = append(f.updateCalls, fields)
	for _, field := range fields {
		switch field {
		case "content":
			stored.Content = post.Content
		case "status":
			stored.Status = post.Status
		case "scheduled_at":
			stored.ScheduledAt = post.ScheduledAt
		case "posted_at":
			stored.PostedAt = post.PostedAt
		case "post_uri":
			stored.PostURI = post.PostURI
		case "repeat":
			stored.Repeat = post.Repeat
		case "repeat_day_of_week":
			stored.RepeatDayOfWeek = post.RepeatDayOfWeek
		case "repeat_days_of_week":
			stored.RepeatDaysOfWeek = post.RepeatDaysOfWeek
		case "repeat_day_of_month":
			stored.RepeatDayOfMonth = post.RepeatDayOfMonth
		case "pending_reason":
			stored.PendingReason = post.PendingReason
		case "target_platforms":
			stored.TargetPlatforms = post.TargetPlatforms
		case "platform_results":
			stored.PlatformResults = post.PlatformResults
		case "attempt_count":
			stored.AttemptCount = post.AttemptCount
		case "thread_id":
			stored.ThreadID = post.ThreadID
		case "is_thread_post":
			stored.IsThreadPost = post.IsThreadPost
		case "sequence":
			stored.Sequence = post.Sequence
		}
	}
	return nil
}

func (f *fakePostRepo) SoftDelete(ctx context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	post, ok := f.posts[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	post.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	return nil
}

func (f *fakePostRepo) HardDelete(ctx context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.posts, id)
	return nil
}

func (f *fakePostRepo) Restore(ctx context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	post, ok := f.posts[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	post.DeletedAt = gorm.DeletedAt{}
	return nil
}

func (f *fakePostRepo) MarkMissedPending(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	reason := "missed_while_offline"
	for _, post := range f.posts {
		if post.DeletedAt.Valid || post.Status != "scheduled" || post.ScheduledAt == nil {
			continue
		}
		if post.ScheduledAt.Before(cutoff) {
			post.Status = "pending_manual"
			post.PendingReason = &reason
			count++
		}
	}
	return count, nil
}

type fakeSendLogRepo struct {
	mu   sync.Mutex
	logs []*model.PostSendLog
}

func (f *fakeSendLogRepo) Append(ctx context.Context, logs ...*model.PostSendLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, logs...)
	return nil
}

func (f *fakeSendLogRepo) ListByPost(ctx context.Context, postID uint64, limit, offset int) ([]*model.PostSendLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.PostSendLog
	for _, entry := range f.logs {
		if entry.PostID == postID {
			out = append(out, entry)
		}
	}
	if offset < len(out) {
		out = out[offset:]
	} else {
		out = nil
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSendLogRepo) DeleteByPost(ctx context.Context, postID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*model.PostSendLog
	for _, entry := range f.logs {
		if entry.PostID != postID {
			kept = append(kept, entry)
		}
	}
	f.logs = kept
	return nil
}

// fakeLocker 默认总能拿到锁，denied 为真时模拟锁被其他实例占用
type fakeLocker struct {
	denied   bool
	acquired []string
}

func (f *fakeLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if f.denied {
		return nil, false, nil
	}
	f.acquired = append(f.acquired, key)
	return func() {}, true, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeEvents) PostUpdated(ctx context.Context, postID uint64, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, status)
}

func (f *fakeEvents) Close() error { return nil }

// fakeClient 脚本化的平台适配器
type fakeClient struct {
	id         string
	cfgErr     error
	publishErr error
	deleteErr  error

	mu        sync.Mutex
	published []platform.PublishInput
	deleted   []platform.DeleteIdentifiers
	seq       int
}

func (f *fakeClient) ID() string { return f.id }

func (f *fakeClient) CheckConfig() error { return f.cfgErr }

func (f *fakeClient) Publish(ctx context.Context, in platform.PublishInput) (*platform.PublishResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, in)
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	f.seq++
	seq := strconv.Itoa(f.seq)
	return &platform.PublishResult{
		URI:      "at://did:plc:test/app.bsky.feed.post/" + f.id + seq,
		CID:      "cid-" + f.id + seq,
		StatusID: f.id + "-status-" + seq,
	}, nil
}

func (f *fakeClient) Delete(ctx context.Context, ids platform.DeleteIdentifiers) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ids)
	return f.deleteErr
}

// scriptedFanout 直接返回预设结果
type scriptedFanout struct {
	outcome *FanoutOutcome
	calls   int
}

func (f *scriptedFanout) Publish(ctx context.Context, post *model.Post, segments []*model.Post) *FanoutOutcome {
	f.calls++
	return f.outcome
}
