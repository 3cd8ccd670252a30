package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"thought_engine/logger"
	"thought_engine/models"
	"thought_engine/repository"
	"thought_engine/utils"
)

// 统计近期主题时查看的条目数
const defaultThemeWindow = 10

// Engine 个性化引擎的调用入口：画像、分级分析与本地洞察库
type Engine struct {
	entries     EntrySource
	profiles    ProfileStore // 可以为空，此时画像只保存在内存中
	stores      *repository.InsightStores
	builder     *Builder
	tiering     *Tiering
	cache       sync.Map // userID -> *atomic.Pointer[models.UserProfile]
	now         func() time.Time
	themeWindow int
}

func NewEngine(entries EntrySource, profiles ProfileStore, stores *repository.InsightStores, builder *Builder, generator Generator) *Engine {
	return &Engine{
		entries:     entries,
		profiles:    profiles,
		stores:      stores,
		builder:     builder,
		tiering:     NewTiering(generator),
		now:         time.Now,
		themeWindow: defaultThemeWindow,
	}
}

func (e *Engine) slot(userID string) *atomic.Pointer[models.UserProfile] {
	v, _ := e.cache.LoadOrStore(userID, new(atomic.Pointer[models.UserProfile]))
	return v.(*atomic.Pointer[models.UserProfile])
}

// BuildProfile 用全部条目重新构建画像并整体替换旧画像
func (e *Engine) BuildProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	entries, err := e.entries.ListEntries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("获取用户条目失败: %w", err)
	}
	return e.rebuild(ctx, userID, entries), nil
}

func (e *Engine) rebuild(ctx context.Context, userID string, entries []models.Entry) *models.UserProfile {
	profile := e.builder.Build(entries, e.now())
	profile.UserID = userID
	e.slot(userID).Store(&profile)

	if e.profiles != nil {
		if err := e.profiles.UpsertProfile(ctx, &profile); err != nil {
			logger.Warn("保存用户画像失败", "user_id", userID, "error", err)
		}
	}
	logger.Info("用户画像已重建", "user_id", userID, "entries", profile.EntryCountAtBuild, "top_interest", profile.TopInterest())
	return &profile
}

// Profile 返回当前画像，先查内存再查持久化，不触发重建；没有画像时返回 nil
func (e *Engine) Profile(ctx context.Context, userID string) (*models.UserProfile, error) {
	slot := e.slot(userID)
	if p := slot.Load(); p != nil {
		return p, nil
	}
	if e.profiles == nil {
		return nil, nil
	}

	p, err := e.profiles.GetProfile(ctx, userID)
	if utils.IsSQLNoRowsError(err) || (err == nil && p == nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取用户画像失败: %w", err)
	}
	slot.CompareAndSwap(nil, p)
	return slot.Load(), nil
}

// RefreshIfStale 条目数增长时重建画像，返回是否发生了重建
func (e *Engine) RefreshIfStale(ctx context.Context, userID string) (bool, error) {
	count, err := e.entries.CountEntries(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("统计用户条目失败: %w", err)
	}
	current, err := e.Profile(ctx, userID)
	if err != nil {
		logger.Warn("读取画像失败，按过期处理", "user_id", userID, "error", err)
	}
	if !NeedsRebuild(current, count) {
		return false, nil
	}
	if _, err := e.BuildProfile(ctx, userID); err != nil {
		return false, err
	}
	return true, nil
}

// Progression 当前等级及距离下一级的进度
func (e *Engine) Progression(ctx context.Context, userID string) (models.Progression, error) {
	count, err := e.entries.CountEntries(ctx, userID)
	if err != nil {
		return models.Progression{}, fmt.Errorf("统计用户条目失败: %w", err)
	}
	return models.ProgressionFor(count), nil
}

// Analyze 对一条条目执行分级分析并保存结果
// 生成失败或在保存前被取消时不写入任何数据
func (e *Engine) Analyze(ctx context.Context, userID, entryID string) (*models.Insight, error) {
	entries, err := e.entries.ListEntries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("获取用户条目失败: %w", err)
	}

	var entry *models.Entry
	for i := range entries {
		if entries[i].ID == entryID {
			entry = &entries[i]
			break
		}
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrEntryNotFound, entryID)
	}

	profile := e.profileFor(ctx, userID, entries)
	themes := RankRecentThemes(entries, e.themeWindow)

	insight, err := e.tiering.Analyze(ctx, *entry, profile, len(entries), themes)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		logger.Info("分析已取消，不保存结果", "user_id", userID, "entry_id", entryID)
		return nil, err
	}

	store, err := e.stores.For(userID)
	if err != nil {
		return nil, err
	}
	core, _ := insight.Payload.Core()
	id, err := store.Save(ctx, entrySourceText(*entry), insight.Payload, core.Themes)
	if err != nil {
		return nil, err
	}
	insight.InsightID = id

	// 回写条目属于条目源的数据，失败不影响已保存的洞察
	// 洞察已提交，回写不再跟随调用方取消，否则条目未标记处理会导致重试时重复保存
	ann := models.EntryAnnotation{Tags: core.Themes, Mood: core.Mood}
	if err := e.entries.AnnotateEntry(context.WithoutCancel(ctx), userID, entry.ID, ann); err != nil {
		logger.Warn("回写条目标注失败", "user_id", userID, "entry_id", entry.ID, "error", err)
	}
	return insight, nil
}

// profileFor 需要时重建画像；读取失败时退化为重建
func (e *Engine) profileFor(ctx context.Context, userID string, entries []models.Entry) *models.UserProfile {
	current, err := e.Profile(ctx, userID)
	if err != nil {
		logger.Warn("读取画像失败，重新构建", "user_id", userID, "error", err)
	}
	if NeedsRebuild(current, len(entries)) {
		return e.rebuild(ctx, userID, entries)
	}
	return current
}

func entrySourceText(entry models.Entry) string {
	body := utils.PlainText(entry.Body)
	if title := strings.TrimSpace(entry.Title); title != "" {
		return title + "\n\n" + body
	}
	return body
}

// SaveInsight 直接保存一条洞察，例如用户确认的综合结果
func (e *Engine) SaveInsight(ctx context.Context, userID, sourceText string, payload models.InsightPayload, themes []string) (string, error) {
	store, err := e.stores.For(userID)
	if err != nil {
		return "", err
	}
	return store.Save(ctx, sourceText, payload, themes)
}

func (e *Engine) GetInsight(ctx context.Context, userID, id string) (*models.StoredInsight, error) {
	store, err := e.stores.For(userID)
	if err != nil {
		return nil, err
	}
	return store.Get(ctx, id)
}

func (e *Engine) QueryInsights(ctx context.Context, userID string, filter models.InsightFilter) ([]models.StoredInsight, error) {
	store, err := e.stores.For(userID)
	if err != nil {
		return nil, err
	}
	return store.Query(ctx, filter)
}

func (e *Engine) SearchInsights(ctx context.Context, userID, term string) ([]models.StoredInsight, error) {
	store, err := e.stores.For(userID)
	if err != nil {
		return nil, err
	}
	return store.Search(ctx, term)
}

func (e *Engine) UpdateInsight(ctx context.Context, userID, id string, patch models.InsightPatch) (*models.StoredInsight, error) {
	store, err := e.stores.For(userID)
	if err != nil {
		return nil, err
	}
	return store.Update(ctx, id, patch)
}

func (e *Engine) ToggleStar(ctx context.Context, userID, id string) (bool, error) {
	store, err := e.stores.For(userID)
	if err != nil {
		return false, err
	}
	return store.ToggleStar(ctx, id)
}

func (e *Engine) ArchiveInsight(ctx context.Context, userID, id string) error {
	store, err := e.stores.For(userID)
	if err != nil {
		return err
	}
	return store.Archive(ctx, id)
}

func (e *Engine) DeleteInsight(ctx context.Context, userID, id string) error {
	store, err := e.stores.For(userID)
	if err != nil {
		return err
	}
	return store.Delete(ctx, id)
}

// TrackAction 记录用户对洞察执行的动作，kind 取值 calendar/social/task/followup
func (e *Engine) TrackAction(ctx context.Context, userID, id, kind string, payload json.RawMessage) error {
	actionKind, err := models.ParseActionKind(kind)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	store, err := e.stores.For(userID)
	if err != nil {
		return err
	}
	return store.TrackAction(ctx, id, actionKind, payload)
}
