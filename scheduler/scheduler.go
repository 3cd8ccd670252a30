package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"thought_engine/config"
	"thought_engine/logger"
	"thought_engine/services"
)

// 将秒数转换为时间间隔
func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

// Refresher 按需重建画像，由 services.Engine 实现
type Refresher interface {
	RefreshIfStale(ctx context.Context, userID string) (bool, error)
}

// 任务状态
type TaskStatus struct {
	LastRun     time.Time
	NextRun     time.Time
	IsRunning   bool
	Description string
}

// SweepResult 一轮检查的统计
type SweepResult struct {
	Users   int
	Rebuilt int
	Failed  int
}

// Scheduler 定时检查所有用户画像是否过期
type Scheduler struct {
	users       services.UserLister
	refresher   Refresher
	schedule    cron.Schedule
	interval    time.Duration
	concurrency int
	task        *TaskStatus
	mutex       sync.Mutex
}

// 创建新的调度器
func NewScheduler(cfg *config.Config, users services.UserLister, refresher Refresher) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(cfg.Scheduler.ProfileSweepCron)
	if err != nil {
		return nil, fmt.Errorf("无效的 cron 表达式 %q: %w", cfg.Scheduler.ProfileSweepCron, err)
	}

	concurrency := cfg.Scheduler.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	checkInterval := cfg.Scheduler.CheckIntervalSec
	if checkInterval <= 0 {
		checkInterval = 60 // 默认值
	}

	return &Scheduler{
		users:       users,
		refresher:   refresher,
		schedule:    schedule,
		interval:    secondsToDuration(checkInterval),
		concurrency: concurrency,
		task: &TaskStatus{
			Description: fmt.Sprintf("画像过期检查 (%s)", cfg.Scheduler.ProfileSweepCron),
		},
	}, nil
}

// Start 启动调度器，ctx 取消后主循环退出
func (s *Scheduler) Start(ctx context.Context) {
	s.mutex.Lock()
	s.task.NextRun = s.schedule.Next(time.Now())
	next := s.task.NextRun
	s.mutex.Unlock()

	go s.run(ctx)
	logger.Info("调度器已启动", "task", s.task.Description, "check_interval", s.interval, "next_run", next.Format("2006-01-02 15:04:05"))
}

// Status 当前任务状态的副本
func (s *Scheduler) Status() TaskStatus {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return *s.task
}

// 主循环
func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("调度器已停止")
			return
		case now := <-ticker.C:
			s.checkTask(ctx, now)
		}
	}
}

// 检查任务是否到期
func (s *Scheduler) checkTask(ctx context.Context, now time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	// 如果任务正在运行，跳过
	if s.task.IsRunning || s.task.NextRun.IsZero() {
		return
	}
	if now.After(s.task.NextRun) || now.Equal(s.task.NextRun) {
		s.task.IsRunning = true
		go s.runTask(ctx, now)
	}
}

// 运行任务
func (s *Scheduler) runTask(ctx context.Context, now time.Time) {
	defer func() {
		s.mutex.Lock()
		defer s.mutex.Unlock()

		s.task.IsRunning = false
		s.task.LastRun = now
		s.task.NextRun = s.schedule.Next(now)
		logger.Info("任务执行完成", "task", s.task.Description, "next_run", s.task.NextRun.Format("2006-01-02 15:04:05"))
	}()

	logger.Info("开始执行任务", "task", s.task.Description)
	if _, err := s.Sweep(ctx); err != nil {
		logger.Error("画像过期检查失败", "error", err)
	}
}

// Sweep 对所有用户执行一次画像过期检查，并发数受 concurrency 限制
func (s *Scheduler) Sweep(ctx context.Context) (SweepResult, error) {
	userIDs, err := s.users.ListUserIDs(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("获取用户列表失败: %w", err)
	}
	logger.Info("找到用户", "count", len(userIDs), "concurrency", s.concurrency)

	var (
		result SweepResult
		mu     sync.Mutex
		wg     sync.WaitGroup
	)
	result.Users = len(userIDs)
	semaphore := make(chan struct{}, s.concurrency)

	for _, userID := range userIDs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		semaphore <- struct{}{}

		go func(uid string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			rebuilt, err := s.refresher.RefreshIfStale(ctx, uid)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				logger.Error("刷新用户画像失败", "user_id", uid, "error", err)
				return
			}
			if rebuilt {
				result.Rebuilt++
			}
		}(userID)
	}
	wg.Wait()

	logger.Info("画像过期检查完成", "users", result.Users, "rebuilt", result.Rebuilt, "failed", result.Failed)
	return result, ctx.Err()
}
