package model

import (
	"time"

	"gorm.io/gorm"
)

// PlatformResult 单一平台在当前周期内的发布/撤回台账条目
type PlatformResult struct {
	Status          string     `json:"status"`
	URI             string     `json:"uri,omitempty"`
	CID             string     `json:"cid,omitempty"`
	StatusID        string     `json:"status_id,omitempty"`
	PostedAt        *time.Time `json:"posted_at,omitempty"`
	FailedAt        *time.Time `json:"failed_at,omitempty"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
	DeletedURI      string     `json:"deleted_uri,omitempty"`
	DeletedStatusID string     `json:"deleted_status_id,omitempty"`
	Error           string     `json:"error,omitempty"`
	Attempts        int        `json:"attempts,omitempty"`
}

// PlatformResults 平台 -> 台账条目，整体序列化到 TEXT 列
type PlatformResults map[string]*PlatformResult

type Post struct {
	ID      uint64 `gorm:"primaryKey" json:"id"`
	Content string `gorm:"type:text;not null" json:"content"`
	Status  string `gorm:"type:varchar(20);not null;default:draft;index:idx_status" json:"status"`

	ScheduledAt *time.Time `gorm:"index:idx_scheduled_at" json:"scheduled_at"`
	PostedAt    *time.Time `json:"posted_at"`
	PostURI     string     `gorm:"type:varchar(512)" json:"post_uri"`

	Repeat           string  `gorm:"type:varchar(10);not null;default:none" json:"repeat"`
	RepeatDayOfWeek  *int    `json:"repeat_day_of_week"`
	RepeatDaysOfWeek []int   `gorm:"serializer:json;type:text" json:"repeat_days_of_week"`
	RepeatDayOfMonth *int    `json:"repeat_day_of_month"`
	PendingReason    *string `gorm:"type:varchar(40)" json:"pending_reason"`

	TargetPlatforms []string        `gorm:"serializer:json;type:text;not null" json:"target_platforms"`
	PlatformResults PlatformResults `gorm:"serializer:json;type:text" json:"platform_results"`
	AttemptCount    int             `gorm:"not null;default:0" json:"attempt_count"`

	ThreadID     *uint64 `gorm:"index:idx_thread_id" json:"thread_id"`
	IsThreadPost bool    `gorm:"type:tinyint(1);not null;default:0" json:"is_thread_post"`
	Sequence     int     `gorm:"not null;default:0" json:"sequence"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

func (Post) TableName() string {
	return "posts"
}

// CloneResults 返回台账的浅拷贝，避免调度流程直接改写持久化快照
func (s *Post) CloneResults() PlatformResults {
	out := make(PlatformResults, len(s.PlatformResults))
	for k, v := range s.PlatformResults {
		if v == nil {
			continue
		}
		entry := *v
		out[k] = &entry
	}
	return out
}
