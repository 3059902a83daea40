package repository

import (
	"Crosspost/internal/model"
	"Crosspost/internal/pkg/consts"
	"context"
	"time"

	"gorm.io/gorm"
)

type PostRepo interface {
	CreatePost(ctx context.Context, post *model.Post) error
	GetPost(ctx context.Context, id uint64, includeDeleted bool) (*model.Post, error)
	ListPosts(ctx context.Context, includeDeleted, onlyDeleted bool) ([]*model.Post, error)
	ListPending(ctx context.Context) ([]*model.Post, error)
	// FindDue 取出到期的一次性帖子与线程首条，线程后续片段由调度侧按序处理
	FindDue(ctx context.Context, now time.Time, limit int) ([]*model.Post, error)
	FindThreadSegments(ctx context.Context, threadID uint64) ([]*model.Post, error)
	// Update 只写 fields 中列出的列，避免序列化字段整行覆盖
	Update(ctx context.Context, post *model.Post, fields ...string) error
	SoftDelete(ctx context.Context, id uint64) error
	HardDelete(ctx context.Context, id uint64) error
	Restore(ctx context.Context, id uint64) error
	// MarkMissedPending 将 cutoff 之前仍处于 scheduled 的帖子批量转入待人工处理
	MarkMissedPending(ctx context.Context, cutoff time.Time) (int64, error)
}

type PostRepoImpl struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) PostRepo {
	return &PostRepoImpl{
		db: db,
	}
}

func (s PostRepoImpl) CreatePost(ctx context.Context, post *model.Post) error {
	return s.db.WithContext(ctx).Create(post).Error
}

func (s PostRepoImpl) GetPost(ctx context.Context, id uint64, includeDeleted bool) (*model.Post, error) {
	var post model.Post
	tx := s.db.WithContext(ctx)
	if includeDeleted {
		tx = tx.Unscoped()
	}
	err := tx.First(&post, id).Error
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (s PostRepoImpl) ListPosts(ctx context.Context, includeDeleted, onlyDeleted bool) ([]*model.Post, error) {
	var posts []*model.Post
	tx := s.db.WithContext(ctx)
	if includeDeleted || onlyDeleted {
		tx = tx.Unscoped()
	}
	if onlyDeleted {
		tx = tx.Where("deleted_at IS NOT NULL")
	}
	err := tx.Order("created_at DESC").Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

func (s PostRepoImpl) ListPending(ctx context.Context) ([]*model.Post, error) {
	var posts []*model.Post
	err := s.db.WithContext(ctx).
		Where("status = ?", consts.PostStatusPendingManual).
		Order("scheduled_at ASC").
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

func (s PostRepoImpl) FindDue(ctx context.Context, now time.Time, limit int) ([]*model.Post, error) {
	var posts []*model.Post
	err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", consts.PostStatusScheduled, now).
		Where("is_thread_post = ? OR sequence = ?", false, 1).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

func (s PostRepoImpl) FindThreadSegments(ctx context.Context, threadID uint64) ([]*model.Post, error) {
	var posts []*model.Post
	err := s.db.WithContext(ctx).
		Where("thread_id = ? AND is_thread_post = ?", threadID, true).
		Order("sequence ASC").
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

func (s PostRepoImpl) Update(ctx context.Context, post *model.Post, fields ...string) error {
	return s.db.WithContext(ctx).
		Model(&model.Post{}).
		Where("id = ?", post.ID).
		Select(fields).
		Updates(post).Error
}

func (s PostRepoImpl) SoftDelete(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Delete(&model.Post{}, id).Error
}

func (s PostRepoImpl) HardDelete(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Unscoped().Delete(&model.Post{}, id).Error
}

func (s PostRepoImpl) Restore(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).
		Unscoped().
		Model(&model.Post{}).
		Where("id = ?", id).
		Update("deleted_at", nil).Error
}

func (s PostRepoImpl) MarkMissedPending(ctx context.Context, cutoff time.Time) (int64, error) {
	reason := consts.PendingReasonMissedWhileOffline
	tx := s.db.WithContext(ctx).
		Model(&model.Post{}).
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at < ?", consts.PostStatusScheduled, cutoff).
		Updates(map[string]interface{}{
			"status":         consts.PostStatusPendingManual,
			"pending_reason": reason,
		})
	return tx.RowsAffected, tx.Error
}
