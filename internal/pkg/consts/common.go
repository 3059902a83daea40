package consts

// 帖子生命周期状态
const (
	PostStatusDraft         = "draft"
	PostStatusScheduled     = "scheduled"
	PostStatusPendingManual = "pending_manual"
	PostStatusSent          = "sent"
	PostStatusSkipped       = "skipped"
	PostStatusError         = "error"
)

// 重复模式
const (
	RepeatNone    = "none"
	RepeatDaily   = "daily"
	RepeatWeekly  = "weekly"
	RepeatMonthly = "monthly"
)

// pending_manual 的原因
const (
	PendingReasonMissedWhileOffline = "missed_while_offline"
	PendingReasonDiscardedByUser    = "discarded_by_user"
)

// 平台标识
const (
	PlatformBluesky  = "bluesky"
	PlatformMastodon = "mastodon"

	DefaultPlatform = PlatformBluesky
)

// AllowedPlatforms 平台白名单
var AllowedPlatforms = []string{PlatformBluesky, PlatformMastodon}

// 单平台发布结果状态
const (
	PlatformResultSent    = "sent"
	PlatformResultFailed  = "failed"
	PlatformResultDeleted = "deleted"
)

// 发送日志事件
const (
	SendLogEventSend   = "send"
	SendLogEventDelete = "delete"

	SendLogStatusSuccess = "success"
	SendLogStatusFailed  = "failed"
)
