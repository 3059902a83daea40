package service

import (
	"Crosspost/internal/api/config"
	"Crosspost/internal/model"
	"Crosspost/internal/pkg/consts"
	"Crosspost/internal/pkg/platform"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		Cron:               "* * * * *",
		TimeZone:           "Europe/Berlin",
		GraceWindowMinutes: 10,
		MaxAttempts:        3,
		BaseBackoffMs:      60_000,
		MaxBackoffMs:       1_800_000,
		BatchSize:          10,
		FanoutConcurrency:  2,
	}
}

func newTestScheduler(t *testing.T, repo *fakePostRepo, clients ...platform.Client) (*SchedulerServiceImpl, *fakeSendLogRepo, *fakeEvents) {
	t.Helper()
	logs := &fakeSendLogRepo{}
	events := &fakeEvents{}
	fanout := NewFanout(platform.NewRegistry(clients...), 2)
	svc := NewSchedulerService(repo, logs, fanout, &fakeLocker{}, events, testSchedulerConfig(), berlin(t))
	return svc, logs, events
}

func scheduledPost(at time.Time) *model.Post {
	scheduledAt := at
	return &model.Post{
		Content:         "hello world",
		Status:          consts.PostStatusScheduled,
		ScheduledAt:     &scheduledAt,
		Repeat:          consts.RepeatNone,
		TargetPlatforms: []string{consts.PlatformBluesky},
	}
}

func TestReconcileMissed_MovesOldScheduledPosts(t *testing.T) {
	repo := newFakePostRepo()
	svc, _, _ := newTestScheduler(t, repo, &fakeClient{id: "bluesky"})

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	missed := repo.put(scheduledPost(now.Add(-time.Hour)))
	inGrace := repo.put(scheduledPost(now.Add(-5 * time.Minute)))
	future := repo.put(scheduledPost(now.Add(time.Hour)))

	count, err := svc.ReconcileMissed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	assert.Equal(t, consts.PostStatusPendingManual, repo.get(missed.ID).Status)
	require.NotNil(t, repo.get(missed.ID).PendingReason)
	assert.Equal(t, consts.PendingReasonMissedWhileOffline, *repo.get(missed.ID).PendingReason)

	// 宽限窗口内和未来的帖子不动
	assert.Equal(t, consts.PostStatusScheduled, repo.get(inGrace.ID).Status)
	assert.Equal(t, consts.PostStatusScheduled, repo.get(future.ID).Status)

	// 再跑一次不会重复搬运
	count, err = svc.ReconcileMissed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestProcessDuePosts_OneShotSuccess(t *testing.T) {
	repo := newFakePostRepo()
	svc, logs, events := newTestScheduler(t, repo, &fakeClient{id: "bluesky"})

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	post := repo.put(scheduledPost(now.Add(-time.Minute)))

	require.NoError(t, svc.ProcessDuePosts(context.Background()))

	got := repo.get(post.ID)
	assert.Equal(t, consts.PostStatusSent, got.Status)
	assert.Nil(t, got.ScheduledAt)
	require.NotNil(t, got.PostedAt)
	assert.True(t, got.PostedAt.Equal(now))
	assert.NotEmpty(t, got.PostURI)
	assert.Equal(t, 0, got.AttemptCount)

	entry := got.PlatformResults[consts.PlatformBluesky]
	require.NotNil(t, entry)
	assert.Equal(t, consts.PlatformResultSent, entry.Status)
	assert.Equal(t, 1, entry.Attempts)

	require.Len(t, logs.logs, 1)
	assert.Equal(t, consts.SendLogStatusSuccess, logs.logs[0].Status)
	assert.Equal(t, []string{consts.PostStatusSent}, events.events)
}

func TestProcessDuePosts_PartialSuccessStillSent(t *testing.T) {
	repo := newFakePostRepo()
	svc, _, _ := newTestScheduler(t, repo,
		&fakeClient{id: "bluesky", publishErr: errors.New("boom")},
		&fakeClient{id: "mastodon"})

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	post := scheduledPost(now.Add(-time.Minute))
	post.TargetPlatforms = []string{consts.PlatformBluesky, consts.PlatformMastodon}
	repo.put(post)

	require.NoError(t, svc.ProcessDuePosts(context.Background()))

	got := repo.get(post.ID)
	assert.Equal(t, consts.PostStatusSent, got.Status)
	assert.Equal(t, consts.PlatformResultFailed, got.PlatformResults[consts.PlatformBluesky].Status)
	assert.Equal(t, consts.PlatformResultSent, got.PlatformResults[consts.PlatformMastodon].Status)
	// 失败平台的错误留在台账里
	assert.Contains(t, got.PlatformResults[consts.PlatformBluesky].Error, "boom")
}

func TestProcessDuePosts_RecurringAdvancesFromSchedule(t *testing.T) {
	repo := newFakePostRepo()
	svc, _, _ := newTestScheduler(t, repo, &fakeClient{id: "bluesky"})

	loc := berlin(t)
	scheduledAt := time.Date(2025, 1, 2, 6, 0, 0, 0, loc)
	now := scheduledAt.Add(30 * time.Second)
	svc.now = func() time.Time { return now }

	post := scheduledPost(scheduledAt)
	post.Repeat = consts.RepeatDaily
	repo.put(post)

	require.NoError(t, svc.ProcessDuePosts(context.Background()))

	got := repo.get(post.ID)
	assert.Equal(t, consts.PostStatusScheduled, got.Status)
	require.NotNil(t, got.ScheduledAt)
	// 从原计划时间推进，保持挂钟时间
	assert.True(t, got.ScheduledAt.Equal(time.Date(2025, 1, 3, 6, 0, 0, 0, loc)))
	require.NotNil(t, got.PostedAt)
}

func TestProcessDuePosts_AllFailSchedulesRetry(t *testing.T) {
	repo := newFakePostRepo()
	svc, _, events := newTestScheduler(t, repo, &fakeClient{id: "bluesky", publishErr: errors.New("boom")})

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	post := repo.put(scheduledPost(now.Add(-time.Minute)))

	require.NoError(t, svc.ProcessDuePosts(context.Background()))

	got := repo.get(post.ID)
	assert.Equal(t, consts.PostStatusScheduled, got.Status)
	assert.Equal(t, 1, got.AttemptCount)
	require.NotNil(t, got.ScheduledAt)
	assert.True(t, got.ScheduledAt.Equal(now.Add(time.Minute)))
	assert.Empty(t, events.events, "重试不产生状态事件")
}

func TestProcessDuePosts_ExhaustedMovesToError(t *testing.T) {
	repo := newFakePostRepo()
	svc, _, events := newTestScheduler(t, repo, &fakeClient{id: "bluesky", publishErr: errors.New("boom")})

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	post := scheduledPost(now.Add(-time.Minute))
	post.AttemptCount = 2 // 第三次尝试用尽 MaxAttempts=3
	repo.put(post)

	require.NoError(t, svc.ProcessDuePosts(context.Background()))

	got := repo.get(post.ID)
	assert.Equal(t, consts.PostStatusError, got.Status)
	assert.Equal(t, 3, got.AttemptCount)
	assert.Equal(t, []string{consts.PostStatusError}, events.events)
}

func TestProcessDuePosts_RetryAfterExtendsBackoff(t *testing.T) {
	repo := newFakePostRepo()
	logs := &fakeSendLogRepo{}
	events := &fakeEvents{}

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	post := repo.put(scheduledPost(now.Add(-time.Minute)))

	fanout := &scriptedFanout{outcome: &FanoutOutcome{Root: map[string]*PlatformAttempt{
		consts.PlatformBluesky: {Err: &platform.Error{Platform: "bluesky", Code: 429, RetryAfter: 10 * time.Minute}},
	}}}
	svc := NewSchedulerService(repo, logs, fanout, &fakeLocker{}, events, testSchedulerConfig(), berlin(t))
	svc.now = func() time.Time { return now }

	require.NoError(t, svc.ProcessDuePosts(context.Background()))

	got := repo.get(post.ID)
	require.NotNil(t, got.ScheduledAt)
	assert.True(t, got.ScheduledAt.Equal(now.Add(10*time.Minute)))
}

func TestDispatch_LockDeniedSkips(t *testing.T) {
	repo := newFakePostRepo()
	logs := &fakeSendLogRepo{}
	events := &fakeEvents{}
	fanout := NewFanout(platform.NewRegistry(&fakeClient{id: "bluesky"}), 1)
	svc := NewSchedulerService(repo, logs, fanout, &fakeLocker{denied: true}, events, testSchedulerConfig(), berlin(t))

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	post := repo.put(scheduledPost(now.Add(-time.Minute)))

	require.NoError(t, svc.ProcessDuePosts(context.Background()))
	assert.Equal(t, consts.PostStatusScheduled, repo.get(post.ID).Status)
	assert.Empty(t, logs.logs)

	// 人工触发拿不到锁要显式报错
	assert.ErrorIs(t, svc.PublishPostNow(context.Background(), post.ID), ErrPostNotPublishable)
}

func TestPublishPostNow_FailureLeavesPostUntouched(t *testing.T) {
	repo := newFakePostRepo()
	svc, logs, events := newTestScheduler(t, repo, &fakeClient{id: "bluesky", publishErr: errors.New("boom")})

	now := time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	scheduledAt := time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC)
	reason := consts.PendingReasonMissedWhileOffline
	post := scheduledPost(scheduledAt)
	post.Status = consts.PostStatusPendingManual
	post.PendingReason = &reason
	repo.put(post)

	err := svc.PublishPostNow(context.Background(), post.ID)
	assert.ErrorIs(t, err, ErrAllPlatformsFailed)

	// 帖子行零写入
	got := repo.get(post.ID)
	assert.Equal(t, consts.PostStatusPendingManual, got.Status)
	require.NotNil(t, got.PendingReason)
	assert.Equal(t, 0, got.AttemptCount)
	require.NotNil(t, got.ScheduledAt)
	assert.True(t, got.ScheduledAt.Equal(scheduledAt))
	assert.Nil(t, got.PlatformResults)
	assert.Empty(t, events.events)

	// 审计日志仍然要留
	require.Len(t, logs.logs, 1)
	assert.Equal(t, consts.SendLogStatusFailed, logs.logs[0].Status)
}

func TestPublishPostNow_PendingSuccessClearsReason(t *testing.T) {
	repo := newFakePostRepo()
	svc, _, _ := newTestScheduler(t, repo, &fakeClient{id: "bluesky"})

	now := time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	reason := consts.PendingReasonMissedWhileOffline
	post := scheduledPost(time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC))
	post.Status = consts.PostStatusPendingManual
	post.PendingReason = &reason
	repo.put(post)

	require.NoError(t, svc.PublishPostNow(context.Background(), post.ID))

	got := repo.get(post.ID)
	assert.Equal(t, consts.PostStatusSent, got.Status)
	assert.Nil(t, got.PendingReason)
	assert.Nil(t, got.ScheduledAt)
	require.NotNil(t, got.PostedAt)
	assert.True(t, got.PostedAt.Equal(now))
}

func TestPublishPostNow_RecurringSeedsFromNow(t *testing.T) {
	repo := newFakePostRepo()
	svc, _, _ := newTestScheduler(t, repo, &fakeClient{id: "bluesky"})

	loc := berlin(t)
	now := time.Date(2025, 1, 2, 12, 0, 0, 0, loc)
	svc.now = func() time.Time { return now }

	reason := consts.PendingReasonMissedWhileOffline
	post := scheduledPost(time.Date(2025, 1, 1, 6, 0, 0, 0, loc))
	post.Status = consts.PostStatusPendingManual
	post.PendingReason = &reason
	post.Repeat = consts.RepeatDaily
	repo.put(post)

	require.NoError(t, svc.PublishPostNow(context.Background(), post.ID))

	got := repo.get(post.ID)
	assert.Equal(t, consts.PostStatusScheduled, got.Status)
	assert.Nil(t, got.PendingReason)
	require.NotNil(t, got.ScheduledAt)
	// 人工补发从当前时刻推进，而不是从错过的计划时间
	assert.True(t, got.ScheduledAt.Equal(time.Date(2025, 1, 3, 12, 0, 0, 0, loc)))
}

func TestPublishPostNow_RejectsWrongStatus(t *testing.T) {
	repo := newFakePostRepo()
	svc, _, _ := newTestScheduler(t, repo, &fakeClient{id: "bluesky"})

	post := scheduledPost(time.Now())
	post.Status = consts.PostStatusSent
	repo.put(post)

	assert.ErrorIs(t, svc.PublishPostNow(context.Background(), post.ID), ErrPostNotPublishable)
}

func TestProcessDuePosts_ThreadSegmentsPersisted(t *testing.T) {
	repo := newFakePostRepo()
	svc, logs, _ := newTestScheduler(t, repo, &fakeClient{id: "bluesky"})

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	threadID := uint64(100)
	root := scheduledPost(now.Add(-time.Minute))
	root.ID = 100
	root.ThreadID = &threadID
	root.IsThreadPost = true
	root.Sequence = 1
	repo.put(root)

	segment := scheduledPost(now.Add(-time.Minute))
	segment.ID = 101
	segment.ThreadID = &threadID
	segment.IsThreadPost = true
	segment.Sequence = 2
	repo.put(segment)

	require.NoError(t, svc.ProcessDuePosts(context.Background()))

	assert.Equal(t, consts.PostStatusSent, repo.get(100).Status)
	gotSegment := repo.get(101)
	assert.Equal(t, consts.PostStatusSent, gotSegment.Status)
	assert.NotEmpty(t, gotSegment.PostURI)
	// 首条和片段各留一条审计记录
	assert.Len(t, logs.logs, 2)
}
