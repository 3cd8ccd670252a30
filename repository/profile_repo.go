package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"thought_engine/models"
)

// =====================
// 通用工具函数
// =====================

// queryStrings 执行查询并返回字符串结果列表
func queryStrings(ctx context.Context, conn *sql.DB, query string, args ...interface{}) ([]string, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]string, 0)
	for rows.Next() {
		var val sql.NullString
		if err := rows.Scan(&val); err == nil && val.Valid {
			s := strings.TrimSpace(val.String)
			if s != "" {
				results = append(results, s)
			}
		}
	}
	return results, rows.Err()
}

// =====================
// 用户画像相关
// =====================

// ProfileRepo 用户画像持久化，画像整体以 JSON 存储
type ProfileRepo struct {
	db *sql.DB
}

func NewProfileRepo(conn *sql.DB) *ProfileRepo {
	return &ProfileRepo{db: conn}
}

// GetProfile 读取画像，不存在时返回 sql.ErrNoRows
func (r *ProfileRepo) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT profile_json, entry_count, updated_at FROM user_profiles WHERE user_id=?`, userID)

	var (
		raw        string
		entryCount int
		updatedAt  time.Time
	)
	if err := row.Scan(&raw, &entryCount, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}

	p := &models.UserProfile{}
	if err := json.Unmarshal([]byte(raw), p); err != nil {
		return nil, fmt.Errorf("解析画像失败: %w", err)
	}
	p.UserID = userID
	p.EntryCountAtBuild = entryCount
	return p, nil
}

// UpsertProfile 写入或覆盖画像
func (r *ProfileRepo) UpsertProfile(ctx context.Context, p *models.UserProfile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("序列化画像失败: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
        INSERT INTO user_profiles (user_id, profile_json, entry_count, updated_at, created_at)
        VALUES (?, ?, ?, NOW(), NOW())
        ON DUPLICATE KEY UPDATE profile_json=VALUES(profile_json), entry_count=VALUES(entry_count), updated_at=NOW()
    `, p.UserID, string(raw), p.EntryCountAtBuild)
	return err
}
