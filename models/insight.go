package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type PayloadKind string

const (
	PayloadBasic     PayloadKind = "basic"
	PayloadEnhanced  PayloadKind = "enhanced"
	PayloadAdaptive  PayloadKind = "adaptive"
	PayloadGenius    PayloadKind = "genius"
	PayloadSynthesis PayloadKind = "synthesis" // 用户手动保存的综合结果，不经过分级
)

// PayloadKindForTier 每个等级对应的生成结果形态
func PayloadKindForTier(t Tier) PayloadKind {
	return PayloadKind(t)
}

// CoreAnalysis 所有等级都会产出的基础字段
type CoreAnalysis struct {
	Summary string   `json:"summary"`
	Themes  []string `json:"themes"`
	Mood    string   `json:"mood"`
}

type BasicAnalysis struct {
	CoreAnalysis
	Encouragement string `json:"encouragement"`
	NextStep      string `json:"next_step"`
}

type EnhancedAnalysis struct {
	CoreAnalysis
	PersonalConnections []string          `json:"personal_connections"`
	ContentAngles       map[string]string `json:"content_angles"` // 内容形式 -> 切入角度
	GrowthOpportunities []string          `json:"growth_opportunities"`
}

type Recommendations struct {
	Topics      []string `json:"topics"`
	Skills      []string `json:"skills"`
	Communities []string `json:"communities"`
}

type AdaptiveAnalysis struct {
	EnhancedAnalysis
	ContentSuite      map[string]string `json:"content_suite"` // 平台 -> 内容草稿
	StrategicInsights []string          `json:"strategic_insights"`
	ThoughtEvolution  string            `json:"thought_evolution"`
	Recommendations   Recommendations   `json:"recommendations"`
}

type GeniusAnalysis struct {
	CoreAnalysis
	MetaAnalysis              string   `json:"meta_analysis"`
	ThoughtLeadership         string   `json:"thought_leadership"`
	ViralMechanics            string   `json:"viral_mechanics"`
	PredictiveRecommendations []string `json:"predictive_recommendations"`
}

type SynthesisResult struct {
	Title          string   `json:"title"`
	Content        string   `json:"content"`
	SourceEntryIDs []string `json:"source_entry_ids,omitempty"`
}

// InsightPayload 按 Kind 区分的生成结果，只有与 Kind 对应的字段非空
type InsightPayload struct {
	Kind      PayloadKind       `json:"kind"`
	Basic     *BasicAnalysis    `json:"basic,omitempty"`
	Enhanced  *EnhancedAnalysis `json:"enhanced,omitempty"`
	Adaptive  *AdaptiveAnalysis `json:"adaptive,omitempty"`
	Genius    *GeniusAnalysis   `json:"genius,omitempty"`
	Synthesis *SynthesisResult  `json:"synthesis,omitempty"`
}

// Validate 检查 Kind 与实际字段是否一致，以及该形态的必填字段
func (p InsightPayload) Validate() error {
	set := 0
	for _, present := range []bool{p.Basic != nil, p.Enhanced != nil, p.Adaptive != nil, p.Genius != nil, p.Synthesis != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("payload must carry exactly one variant, got %d", set)
	}

	switch p.Kind {
	case PayloadBasic:
		if p.Basic == nil {
			return fmt.Errorf("payload kind %q without basic analysis", p.Kind)
		}
		return p.Basic.validate()
	case PayloadEnhanced:
		if p.Enhanced == nil {
			return fmt.Errorf("payload kind %q without enhanced analysis", p.Kind)
		}
		return p.Enhanced.validate()
	case PayloadAdaptive:
		if p.Adaptive == nil {
			return fmt.Errorf("payload kind %q without adaptive analysis", p.Kind)
		}
		return p.Adaptive.validate()
	case PayloadGenius:
		if p.Genius == nil {
			return fmt.Errorf("payload kind %q without genius analysis", p.Kind)
		}
		return p.Genius.validate()
	case PayloadSynthesis:
		if p.Synthesis == nil {
			return fmt.Errorf("payload kind %q without synthesis result", p.Kind)
		}
		if strings.TrimSpace(p.Synthesis.Content) == "" {
			return missingField("content")
		}
		return nil
	default:
		return fmt.Errorf("unknown payload kind %q", p.Kind)
	}
}

// Core 返回分级结果的公共字段；综合结果没有公共字段
func (p InsightPayload) Core() (CoreAnalysis, bool) {
	switch {
	case p.Basic != nil:
		return p.Basic.CoreAnalysis, true
	case p.Enhanced != nil:
		return p.Enhanced.CoreAnalysis, true
	case p.Adaptive != nil:
		return p.Adaptive.CoreAnalysis, true
	case p.Genius != nil:
		return p.Genius.CoreAnalysis, true
	}
	return CoreAnalysis{}, false
}

func (c CoreAnalysis) validate() error {
	if strings.TrimSpace(c.Summary) == "" {
		return missingField("summary")
	}
	if strings.TrimSpace(c.Mood) == "" {
		return missingField("mood")
	}
	return nil
}

func (b *BasicAnalysis) validate() error {
	if err := b.CoreAnalysis.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(b.Encouragement) == "" {
		return missingField("encouragement")
	}
	if strings.TrimSpace(b.NextStep) == "" {
		return missingField("next_step")
	}
	return nil
}

func (e *EnhancedAnalysis) validate() error {
	if err := e.CoreAnalysis.validate(); err != nil {
		return err
	}
	if len(e.PersonalConnections) == 0 {
		return missingField("personal_connections")
	}
	if len(e.ContentAngles) == 0 {
		return missingField("content_angles")
	}
	if len(e.GrowthOpportunities) == 0 {
		return missingField("growth_opportunities")
	}
	return nil
}

func (a *AdaptiveAnalysis) validate() error {
	if err := a.EnhancedAnalysis.validate(); err != nil {
		return err
	}
	if len(a.ContentSuite) == 0 {
		return missingField("content_suite")
	}
	if len(a.StrategicInsights) == 0 {
		return missingField("strategic_insights")
	}
	if strings.TrimSpace(a.ThoughtEvolution) == "" {
		return missingField("thought_evolution")
	}
	return nil
}

func (g *GeniusAnalysis) validate() error {
	if err := g.CoreAnalysis.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(g.MetaAnalysis) == "" {
		return missingField("meta_analysis")
	}
	if strings.TrimSpace(g.ThoughtLeadership) == "" {
		return missingField("thought_leadership")
	}
	if strings.TrimSpace(g.ViralMechanics) == "" {
		return missingField("viral_mechanics")
	}
	if len(g.PredictiveRecommendations) == 0 {
		return missingField("predictive_recommendations")
	}
	return nil
}

func missingField(name string) error {
	return fmt.Errorf("missing required field %q", name)
}

// Insight 一次分级分析的结果，附带本地计算的元数据
type Insight struct {
	EntryID              string         `json:"entry_id"`
	InsightID            string         `json:"insight_id,omitempty"` // 持久化后的本地记录 ID
	Payload              InsightPayload `json:"payload"`
	IntelligenceLevel    Tier           `json:"intelligence_level"`
	AdaptiveFeatures     []string       `json:"adaptive_features"`
	PersonalizationScore int            `json:"personalization_score"`
	ProgressionStatus    string         `json:"progression_status"`
	GeneratedAt          time.Time      `json:"generated_at"`
}

type ActionKind string

const (
	ActionCalendar ActionKind = "calendar"
	ActionSocial   ActionKind = "social"
	ActionTask     ActionKind = "task"
	ActionFollowUp ActionKind = "followup"
)

// ParseActionKind 校验外部传入的动作类型
func ParseActionKind(s string) (ActionKind, error) {
	switch k := ActionKind(strings.ToLower(strings.TrimSpace(s))); k {
	case ActionCalendar, ActionSocial, ActionTask, ActionFollowUp:
		return k, nil
	}
	return "", fmt.Errorf("unknown action kind %q", s)
}

type ActionRecord struct {
	Payload    json.RawMessage `json:"payload"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// UserActions 用户对洞察执行过的动作，每个列表只追加
type UserActions struct {
	CalendarEvents   []ActionRecord `json:"calendar_events"`
	SharedContent    []ActionRecord `json:"shared_content"`
	CompletedTasks   []ActionRecord `json:"completed_tasks"`
	FollowUpAnalyses []ActionRecord `json:"follow_up_analyses"`
}

// Append 向对应列表追加一条记录
func (u *UserActions) Append(kind ActionKind, rec ActionRecord) error {
	switch kind {
	case ActionCalendar:
		u.CalendarEvents = append(u.CalendarEvents, rec)
	case ActionSocial:
		u.SharedContent = append(u.SharedContent, rec)
	case ActionTask:
		u.CompletedTasks = append(u.CompletedTasks, rec)
	case ActionFollowUp:
		u.FollowUpAnalyses = append(u.FollowUpAnalyses, rec)
	default:
		return fmt.Errorf("unknown action kind %q", kind)
	}
	return nil
}

// StoredInsight 本地洞察库中的一条记录
type StoredInsight struct {
	ID               string         `json:"id"`
	SourceText       string         `json:"source_text"`
	GeneratedPayload InsightPayload `json:"generated_payload"`
	CreatedAt        time.Time      `json:"created_at"`
	Starred          bool           `json:"starred"`
	Archived         bool           `json:"archived"`
	Themes           []string       `json:"themes"`
	SearchTerms      []string       `json:"search_terms"`
	UserActions      UserActions    `json:"user_actions"`
}

// InsightFilter 查询条件，字段为空表示不限制；Archived 为空时默认隐藏已归档记录
type InsightFilter struct {
	Starred  *bool      `json:"starred,omitempty"`
	Archived *bool      `json:"archived,omitempty"`
	Themes   []string   `json:"themes,omitempty"` // 命中任意一个主题即可
	From     *time.Time `json:"from,omitempty"`
	To       *time.Time `json:"to,omitempty"`
	Limit    int        `json:"limit,omitempty"`
}

// InsightPatch 局部更新，只合并非空字段
type InsightPatch struct {
	Starred  *bool     `json:"starred,omitempty"`
	Archived *bool     `json:"archived,omitempty"`
	Themes   *[]string `json:"themes,omitempty"`
}

// Empty 没有任何字段需要更新
func (p InsightPatch) Empty() bool {
	return p.Starred == nil && p.Archived == nil && p.Themes == nil
}
