package model

import (
	"time"
)

// PostSendLog 每次平台发送/删除尝试的审计记录
type PostSendLog struct {
	ID              uint64    `gorm:"primaryKey" json:"id"`
	PostID          uint64    `gorm:"not null;index:idx_post_id" json:"post_id"`
	Platform        string    `gorm:"type:varchar(20);not null" json:"platform"`
	EventType       string    `gorm:"type:varchar(10);not null" json:"event_type"` // send / delete
	Status          string    `gorm:"type:varchar(10);not null" json:"status"`     // success / failed
	PostURI         string    `gorm:"type:varchar(512)" json:"post_uri"`
	PostCID         string    `gorm:"type:varchar(255)" json:"post_cid"`
	Error           string    `gorm:"type:text" json:"error"`
	ContentSnapshot string    `gorm:"type:text" json:"content_snapshot"`
	PostedAt        time.Time `gorm:"not null;index:idx_posted_at" json:"posted_at"`
	CreatedAt       time.Time `json:"created_at"`
}

func (PostSendLog) TableName() string {
	return "post_send_logs"
}
