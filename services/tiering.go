package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"thought_engine/logger"
	"thought_engine/models"
	"thought_engine/utils"
)

// 每个等级在界面上展示的功能名称
var tierFeatures = map[models.Tier][]string{
	models.TierBasic:    {"entry_summary", "mood_detection", "encouragement"},
	models.TierEnhanced: {"entry_summary", "mood_detection", "interest_personalization", "tone_matching", "content_angles", "growth_opportunities"},
	models.TierAdaptive: {"entry_summary", "mood_detection", "interest_personalization", "recent_theme_tracking", "complexity_matching", "cross_platform_suite", "thought_evolution", "recommendations"},
	models.TierGenius:   {"meta_analysis", "thought_leadership", "viral_mechanics", "predictive_recommendations", "expertise_mapping", "theme_frequency_analysis"},
}

// SelectTier 由累计条目数推导等级，与进度展示共用同一张阈值表
func SelectTier(entryCount int) models.Tier {
	return models.TierForCount(entryCount)
}

// AdaptiveFeatures 返回某个等级的功能列表副本
func AdaptiveFeatures(tier models.Tier) []string {
	return append([]string(nil), tierFeatures[tier]...)
}

// PersonalizationScore min(60, 20×兴趣数) + min(30, 5×近期主题数) + 10，上限 100
func PersonalizationScore(profile *models.UserProfile, distinctThemes int) int {
	interests := 0
	if profile != nil {
		interests = len(profile.PrimaryInterests)
	}
	score := min(60, 20*interests) + min(30, 5*distinctThemes) + 10
	return min(score, 100)
}

// RankRecentThemes 统计最近 window 条条目的标签，按出现次数降序，同次数按名称
func RankRecentThemes(entries []models.Entry, window int) []models.ThemeCount {
	recent := append([]models.Entry(nil), entries...)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CreatedAt.After(recent[j].CreatedAt)
	})
	recent = utils.LimitSlice(recent, window)

	counts := make(map[string]int)
	for _, e := range recent {
		seen := make(map[string]bool)
		for _, tag := range e.Tags {
			tag = strings.ToLower(strings.TrimSpace(tag))
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			counts[tag]++
		}
	}

	ranked := make([]models.ThemeCount, 0, len(counts))
	for theme, n := range counts {
		ranked = append(ranked, models.ThemeCount{Theme: theme, Count: n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Theme < ranked[j].Theme
	})
	return ranked
}

// Tiering 分级分析：选级、构建请求、调用生成服务、校验结果并附加元数据
type Tiering struct {
	generator Generator
	now       func() time.Time
}

func NewTiering(generator Generator) *Tiering {
	return &Tiering{generator: generator, now: time.Now}
}

// Analyze 对一条条目执行一次分级分析。生成失败时返回错误，不产生任何部分结果
func (t *Tiering) Analyze(ctx context.Context, entry models.Entry, profile *models.UserProfile, entryCount int, recentThemes []models.ThemeCount) (*models.Insight, error) {
	tier := SelectTier(entryCount)
	if profile == nil {
		logger.Warn("缺少用户画像，使用基础分析", "entry_id", entry.ID, "entry_count", entryCount)
		tier = models.TierBasic
	}

	instruction := BuildInstruction(tier, entry, profile, recentThemes)
	raw, err := t.generator.Complete(ctx, instruction)
	if err != nil {
		logger.Error("生成服务调用失败", "entry_id", entry.ID, "tier", tier, "error", err)
		return nil, err
	}

	payload, err := ParsePayload(tier, raw)
	if err != nil {
		logger.Error("生成结果格式错误", "entry_id", entry.ID, "tier", tier, "error", err)
		return nil, err
	}

	insight := &models.Insight{
		EntryID:              entry.ID,
		Payload:              payload,
		IntelligenceLevel:    tier,
		AdaptiveFeatures:     AdaptiveFeatures(tier),
		PersonalizationScore: PersonalizationScore(profile, len(recentThemes)),
		ProgressionStatus:    progressionStatus(tier, entryCount),
		GeneratedAt:          t.now(),
	}
	logger.Info("分级分析完成", "entry_id", entry.ID, "tier", tier, "personalization_score", insight.PersonalizationScore)
	return insight, nil
}

// progressionStatus 进度描述以实际使用的等级为准；缺少画像而降级时说明原因
func progressionStatus(used models.Tier, entryCount int) string {
	p := models.ProgressionFor(entryCount)
	if used == p.Tier {
		return p.Status
	}
	return fmt.Sprintf("Using %s intelligence until the profile is built; %s intelligence is unlocked", used, p.Tier)
}

// ParsePayload 按等级解析生成结果并校验必填字段
func ParsePayload(tier models.Tier, raw string) (models.InsightPayload, error) {
	payload := models.InsightPayload{Kind: models.PayloadKindForTier(tier)}
	data := []byte(utils.ExtractJSONFromText(raw))

	var err error
	switch tier {
	case models.TierBasic:
		payload.Basic = &models.BasicAnalysis{}
		err = json.Unmarshal(data, payload.Basic)
	case models.TierEnhanced:
		payload.Enhanced = &models.EnhancedAnalysis{}
		err = json.Unmarshal(data, payload.Enhanced)
	case models.TierAdaptive:
		payload.Adaptive = &models.AdaptiveAnalysis{}
		err = json.Unmarshal(data, payload.Adaptive)
	case models.TierGenius:
		payload.Genius = &models.GeniusAnalysis{}
		err = json.Unmarshal(data, payload.Genius)
	default:
		payload.Kind = models.PayloadBasic
		payload.Basic = &models.BasicAnalysis{}
		err = json.Unmarshal(data, payload.Basic)
	}
	if err == nil {
		err = payload.Validate()
	}
	if err != nil {
		return models.InsightPayload{}, &models.GenerationParseError{Tier: tier, Raw: utils.Preview(raw, 500), Err: err}
	}
	return payload, nil
}
