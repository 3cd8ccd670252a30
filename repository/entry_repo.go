package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"thought_engine/models"
)

// EntryRepo 条目源：条目由产品其他部分写入，这里只读取并回写分析结果
type EntryRepo struct {
	db *sql.DB
}

func NewEntryRepo(conn *sql.DB) *EntryRepo {
	return &EntryRepo{db: conn}
}

// ListEntries 按创建时间倒序返回用户全部条目
func (r *EntryRepo) ListEntries(ctx context.Context, userID string) ([]models.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, user_id, title, body, created_at, processed, tags, mood
        FROM entries
        WHERE user_id = ?
        ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.Entry, 0)
	for rows.Next() {
		var (
			e           models.Entry
			title, mood sql.NullString
			tags        sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.UserID, &title, &e.Body, &e.CreatedAt, &e.Processed, &tags, &mood); err != nil {
			return nil, err
		}
		e.Title = title.String
		e.Mood = mood.String
		if tags.Valid && tags.String != "" {
			// 标签格式异常时按无标签处理
			_ = json.Unmarshal([]byte(tags.String), &e.Tags)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountEntries 用户条目总数
func (r *EntryRepo) CountEntries(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM entries WHERE user_id = ?`, userID).Scan(&count)
	return count, err
}

// ListUserIDs 有条目的全部用户
func (r *EntryRepo) ListUserIDs(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, r.db, `SELECT DISTINCT user_id FROM entries WHERE user_id IS NOT NULL AND user_id != ''`)
}

// AnnotateEntry 回写分析结果：标记已处理并写入标签和情绪
func (r *EntryRepo) AnnotateEntry(ctx context.Context, userID, entryID string, ann models.EntryAnnotation) error {
	tags, err := json.Marshal(ann.Tags)
	if err != nil {
		return fmt.Errorf("序列化标签失败: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE entries SET processed = 1, tags = ?, mood = ? WHERE id = ? AND user_id = ?`,
		string(tags), ann.Mood, entryID, userID)
	return err
}
