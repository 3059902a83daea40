package dto

import (
	"Crosspost/internal/model"
	"time"
)

// PostBaseDTO 帖子 - 新增或修改
type PostBaseDTO struct {
	Content string `json:"content" binding:"required" validate:"min=1,max=3000"`

	// Draft 为真时不参与调度
	Draft       bool       `json:"draft"`
	ScheduledAt *time.Time `json:"scheduled_at"`

	Repeat           string `json:"repeat" validate:"omitempty,oneof=none daily weekly monthly"`
	RepeatDayOfWeek  *int   `json:"repeat_day_of_week"`
	RepeatDaysOfWeek []int  `json:"repeat_days_of_week"`
	RepeatDayOfMonth *int   `json:"repeat_day_of_month"`

	// TargetPlatforms 为空时使用默认平台
	TargetPlatforms []string `json:"target_platforms"`

	ThreadID     *uint64 `json:"thread_id"`
	IsThreadPost bool    `json:"is_thread_post"`
	Sequence     int     `json:"sequence"`
}

// PostDTO 帖子
type PostDTO struct {
	ID      uint64 `json:"id"`
	Content string `json:"content"`
	Status  string `json:"status"`

	ScheduledAt *time.Time `json:"scheduled_at"`
	PostedAt    *time.Time `json:"posted_at"`
	PostURI     string     `json:"post_uri"`

	Repeat           string  `json:"repeat"`
	RepeatDayOfWeek  *int    `json:"repeat_day_of_week"`
	RepeatDaysOfWeek []int   `json:"repeat_days_of_week"`
	RepeatDayOfMonth *int    `json:"repeat_day_of_month"`
	PendingReason    *string `json:"pending_reason"`

	TargetPlatforms []string              `json:"target_platforms"`
	PlatformResults model.PlatformResults `json:"platform_results"`
	AttemptCount    int                   `json:"attempt_count"`

	ThreadID     *uint64 `json:"thread_id"`
	IsThreadPost bool    `json:"is_thread_post"`
	Sequence     int     `json:"sequence"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// PostListDTO 帖子列表
type PostListDTO struct {
	Posts []*PostDTO `json:"posts"`
	Total int        `json:"total"`
}

// ListPostsQueryDTO 列表查询参数
type ListPostsQueryDTO struct {
	IncludeDeleted bool `form:"include_deleted"`
	OnlyDeleted    bool `form:"only_deleted"`
}

// DeletePostQueryDTO 删除参数
type DeletePostQueryDTO struct {
	// Permanent 物理删除
	Permanent bool `form:"permanent"`
	// Force 跳过远端存活检查
	Force bool `form:"force"`
}

// RetractReqDTO 撤回请求，Platforms 为空表示撤回全部已发布平台
type RetractReqDTO struct {
	Platforms []string `json:"platforms"`
}

// RetractResultDTO 单平台撤回结果
type RetractResultDTO struct {
	Platform string `json:"platform"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
}

// SendLogDTO 发送审计记录
type SendLogDTO struct {
	ID        uint64    `json:"id"`
	PostID    uint64    `json:"post_id"`
	Platform  string    `json:"platform"`
	EventType string    `json:"event_type"`
	Status    string    `json:"status"`
	PostURI   string    `json:"post_uri"`
	Error     string    `json:"error,omitempty"`
	PostedAt  time.Time `json:"posted_at"`
	CreatedAt time.Time `json:"created_at"`
}

// SendLogQueryDTO 审计记录分页参数
type SendLogQueryDTO struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}
