package cmd

import (
	"context"
	"fmt"

	"thought_engine/config"
	"thought_engine/db"
	"thought_engine/logger"
	"thought_engine/repository"
	"thought_engine/services"
)

// app 一次命令执行所需的全部依赖
type app struct {
	engine  *services.Engine
	entries *repository.EntryRepo
	stores  *repository.InsightStores
	close   func()
}

// bootstrap 连接 MySQL、加载关键词表并组装引擎
func bootstrap(ctx context.Context, cfg *config.Config) (*app, error) {
	conn, err := db.InitMySQLWithConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化MySQL失败: %w", err)
	}
	logger.Info("MySQL连接成功",
		"max_open_conns", cfg.DB.MaxOpenConns,
		"max_idle_conns", cfg.DB.MaxIdleConns,
		"conn_max_lifetime", cfg.DB.ConnMaxLifetime)

	if err := db.EnsureProfileTable(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建画像表失败: %w", err)
	}

	catalog, err := services.LoadCatalog(cfg.Profile.CatalogPath)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("加载关键词表失败: %w", err)
	}

	entries := repository.NewEntryRepo(conn)
	stores := repository.NewInsightStores(cfg.Store.Dir)
	engine := services.NewEngine(
		entries,
		repository.NewProfileRepo(conn),
		stores,
		services.NewBuilder(catalog, cfg.Profile.RecencyDays),
		services.NewLLMClient(cfg),
	)

	return &app{
		engine:  engine,
		entries: entries,
		stores:  stores,
		close: func() {
			if err := stores.Close(); err != nil {
				logger.Warn("关闭洞察库失败", "error", err)
			}
			conn.Close()
		},
	}, nil
}
