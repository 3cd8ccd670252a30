package db

import (
	"context"
	"database/sql"
	"time"

	"thought_engine/config"

	_ "github.com/go-sql-driver/mysql"
)

var (
	DB *sql.DB // 条目与画像所在的 MySQL 连接
)

// InitMySQLWithConfig 使用配置初始化数据库连接池
func InitMySQLWithConfig(cfg *config.Config) (*sql.DB, error) {
	var err error
	DB, err = sql.Open("mysql", cfg.DB.DSN)
	if err != nil {
		return nil, err
	}

	// 从配置读取连接池参数，提供默认值保护
	maxOpenConns := cfg.DB.MaxOpenConns
	if maxOpenConns <= 0 {
		maxOpenConns = 50 // 默认最大连接数
	}

	maxIdleConns := cfg.DB.MaxIdleConns
	if maxIdleConns <= 0 {
		maxIdleConns = 10 // 默认最大空闲连接数
	}

	connMaxLifetime := cfg.DB.ConnMaxLifetime
	if connMaxLifetime <= 0 {
		connMaxLifetime = 60 // 默认连接最大生命周期（分钟）
	}

	DB.SetMaxOpenConns(maxOpenConns)
	DB.SetMaxIdleConns(maxIdleConns)
	DB.SetConnMaxLifetime(time.Duration(connMaxLifetime) * time.Minute)

	if err := DB.Ping(); err != nil {
		return nil, err
	}
	return DB, nil
}

const profileTableDDL = `
CREATE TABLE IF NOT EXISTS user_profiles (
    user_id      VARCHAR(128) NOT NULL PRIMARY KEY,
    profile_json JSON         NOT NULL,
    entry_count  INT          NOT NULL DEFAULT 0,
    updated_at   DATETIME     NOT NULL,
    created_at   DATETIME     NOT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// EnsureProfileTable 创建画像表；条目表归条目源所有，这里不创建
func EnsureProfileTable(ctx context.Context, conn *sql.DB) error {
	_, err := conn.ExecContext(ctx, profileTableDDL)
	return err
}
