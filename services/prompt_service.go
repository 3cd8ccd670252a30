package services

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"thought_engine/models"
	"thought_engine/utils"
)

// 各等级的生成长度上限
var tierTokenBudget = map[models.Tier]int{
	models.TierBasic:    1500,
	models.TierEnhanced: 2500,
	models.TierAdaptive: 3500,
	models.TierGenius:   4500,
}

// 各等级要求生成服务返回的 JSON 字段
var tierSections = map[models.Tier][]string{
	models.TierBasic: {"summary", "themes", "mood", "encouragement", "next_step"},
	models.TierEnhanced: {"summary", "themes", "mood",
		"personal_connections", "content_angles", "growth_opportunities"},
	models.TierAdaptive: {"summary", "themes", "mood",
		"personal_connections", "content_angles", "growth_opportunities",
		"content_suite", "strategic_insights", "thought_evolution", "recommendations"},
	models.TierGenius: {"summary", "themes", "mood",
		"meta_analysis", "thought_leadership", "viral_mechanics", "predictive_recommendations"},
}

const (
	defaultTopInterest = "general"
	maxAdaptiveThemes  = 3
	maxGeniusThemes    = 5
	maxAngleFormats    = 3
	maxSuitePlatforms  = 4

	systemPrompt = "You are a thoughtful writing companion that analyzes personal journal entries. " +
		"Respond with a single JSON object and nothing else."
)

var (
	defaultAngleFormats   = []string{"blog post", "social post", "newsletter"}
	defaultSuitePlatforms = []string{"LinkedIn", "X", "Medium"}
)

// BuildInstruction 构建某个等级的生成请求。profile 可以为空，此时使用默认值
func BuildInstruction(tier models.Tier, entry models.Entry, profile *models.UserProfile, recentThemes []models.ThemeCount) models.Instruction {
	if !tier.Valid() {
		tier = models.TierBasic
	}

	ins := models.Instruction{
		Tier:              tier,
		System:            systemPrompt,
		RequestedSections: append([]string(nil), tierSections[tier]...),
		MaxTokens:         tierTokenBudget[tier],
	}

	switch tier {
	case models.TierEnhanced:
		ins.Context = models.InstructionContext{
			TopInterest: topInterest(profile),
			Tone:        toneOf(profile),
		}
	case models.TierAdaptive:
		ins.Context = models.InstructionContext{
			TopInterest:           topInterest(profile),
			RecentThemes:          themeNames(utils.LimitSlice(recentThemes, maxAdaptiveThemes)),
			ExplanationComplexity: explanationComplexity(profile),
		}
	case models.TierGenius:
		ins.Context = models.InstructionContext{
			RankedThemes:   append([]models.ThemeCount(nil), utils.LimitSlice(recentThemes, maxGeniusThemes)...),
			ExpertiseAreas: expertiseAreas(profile),
			Tone:           toneOf(profile),
		}
	}

	ins.Prompt = renderPrompt(ins, entry, profile)
	return ins
}

func renderPrompt(ins models.Instruction, entry models.Entry, profile *models.UserProfile) string {
	var sb strings.Builder
	sb.WriteString("Analyze the following journal entry.\n\n")
	if title := strings.TrimSpace(entry.Title); title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", title)
	}
	fmt.Fprintf(&sb, "Entry:\n%s\n\n", strings.TrimSpace(utils.PlainText(entry.Body)))

	if ins.Tier != models.TierBasic {
		ctxJSON, _ := json.MarshalIndent(ins.Context, "", "  ")
		fmt.Fprintf(&sb, "Personalization context:\n%s\n\n", ctxJSON)
	}

	switch ins.Tier {
	case models.TierBasic:
		sb.WriteString("Keep the summary short. Offer one sentence of encouragement and one concrete next step.\n")
	case models.TierEnhanced:
		sb.WriteString("Relate the entry to the writer's main interest and match their tone. ")
		fmt.Fprintf(&sb, "content_angles maps each of these formats to an angle: %s.\n",
			strings.Join(angleFormats(profile), ", "))
	case models.TierAdaptive:
		sb.WriteString("Connect the entry to the recent themes and pitch explanations at the given complexity. ")
		fmt.Fprintf(&sb, "content_angles maps each of these formats to an angle: %s. ", strings.Join(angleFormats(profile), ", "))
		fmt.Fprintf(&sb, "content_suite maps each of these platforms to a short draft: %s. ", strings.Join(suitePlatforms(profile), ", "))
		sb.WriteString("recommendations is an object with topics, skills and communities lists.\n")
	case models.TierGenius:
		sb.WriteString("Analyze how this entry fits the writer's thinking patterns across the ranked themes, " +
			"position it for thought leadership in their expertise areas, comment on what would make it spread, " +
			"and give predictive strategic recommendations.\n")
	}

	fmt.Fprintf(&sb, "\nReturn a JSON object with exactly these keys: %s.", strings.Join(ins.RequestedSections, ", "))
	return sb.String()
}

func topInterest(profile *models.UserProfile) string {
	if top := profile.TopInterest(); top != "" {
		return top
	}
	return defaultTopInterest
}

func toneOf(profile *models.UserProfile) models.Tone {
	if profile == nil || profile.DominantTone == "" {
		return models.ToneCasual
	}
	return profile.DominantTone
}

// explanationComplexity 按画像中最高的专业度决定讲解深度
func explanationComplexity(profile *models.UserProfile) string {
	best := models.ExpertiseBeginner
	if profile != nil {
		for _, level := range profile.ExpertiseLevel {
			if level.Rank() > best.Rank() {
				best = level
			}
		}
	}
	switch best {
	case models.ExpertiseExpert:
		return "advanced"
	case models.ExpertiseIntermediate:
		return "intermediate"
	default:
		return "simple"
	}
}

// expertiseAreas 中级及以上的类别，专业度高的在前；都没有时退回主要兴趣
func expertiseAreas(profile *models.UserProfile) []string {
	if profile == nil {
		return nil
	}
	var areas []string
	for category, level := range profile.ExpertiseLevel {
		if level.Rank() >= models.ExpertiseIntermediate.Rank() {
			areas = append(areas, category)
		}
	}
	sort.Slice(areas, func(i, j int) bool {
		ri, rj := profile.ExpertiseLevel[areas[i]].Rank(), profile.ExpertiseLevel[areas[j]].Rank()
		if ri != rj {
			return ri > rj
		}
		return areas[i] < areas[j]
	})
	if len(areas) == 0 {
		for _, interest := range profile.PrimaryInterests {
			areas = append(areas, interest.Category)
		}
	}
	return areas
}

func angleFormats(profile *models.UserProfile) []string {
	if profile != nil && len(profile.ContentPreferences.Formats) > 0 {
		return utils.LimitSlice(profile.ContentPreferences.Formats, maxAngleFormats)
	}
	return defaultAngleFormats
}

func suitePlatforms(profile *models.UserProfile) []string {
	if profile != nil && len(profile.ContentPreferences.Platforms) > 0 {
		return utils.LimitSlice(profile.ContentPreferences.Platforms, maxSuitePlatforms)
	}
	return defaultSuitePlatforms
}

func themeNames(themes []models.ThemeCount) []string {
	names := make([]string, 0, len(themes))
	for _, t := range themes {
		names = append(names, t.Theme)
	}
	return names
}
