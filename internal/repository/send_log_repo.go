package repository

import (
	"Crosspost/internal/model"
	"context"

	"gorm.io/gorm"
)

type SendLogRepo interface {
	Append(ctx context.Context, logs ...*model.PostSendLog) error
	ListByPost(ctx context.Context, postID uint64, limit, offset int) ([]*model.PostSendLog, error)
	DeleteByPost(ctx context.Context, postID uint64) error
}

type SendLogRepoImpl struct {
	db *gorm.DB
}

func NewSendLogRepository(db *gorm.DB) SendLogRepo {
	return &SendLogRepoImpl{
		db: db,
	}
}

func (s SendLogRepoImpl) Append(ctx context.Context, logs ...*model.PostSendLog) error {
	if len(logs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(logs).Error
}

func (s SendLogRepoImpl) ListByPost(ctx context.Context, postID uint64, limit, offset int) ([]*model.PostSendLog, error) {
	var logs []*model.PostSendLog
	err := s.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func (s SendLogRepoImpl) DeleteByPost(ctx context.Context, postID uint64) error {
	return s.db.WithContext(ctx).Where("post_id = ?", postID).Delete(&model.PostSendLog{}).Error
}
