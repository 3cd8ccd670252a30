package services

import (
	"context"

	"thought_engine/models"
)

// EntrySource 条目源，本系统只读取条目并回写分析标注
type EntrySource interface {
	// 按创建时间倒序返回用户的全部条目
	ListEntries(ctx context.Context, userID string) ([]models.Entry, error)

	// 用户条目总数
	CountEntries(ctx context.Context, userID string) (int, error)

	// 分析成功后回写 processed、标签与情绪
	AnnotateEntry(ctx context.Context, userID, entryID string, ann models.EntryAnnotation) error
}

// UserLister 列出有条目的用户，供画像定时刷新使用
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// ProfileStore 画像持久化；不存在时返回 sql.ErrNoRows
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	UpsertProfile(ctx context.Context, profile *models.UserProfile) error
}
