package models

import "time"

type ExpertiseLevel string

const (
	ExpertiseBeginner     ExpertiseLevel = "beginner"
	ExpertiseIntermediate ExpertiseLevel = "intermediate"
	ExpertiseExpert       ExpertiseLevel = "expert"
)

// Rank 返回级别的序号，用于保证专业度只升不降
func (l ExpertiseLevel) Rank() int {
	switch l {
	case ExpertiseExpert:
		return 2
	case ExpertiseIntermediate:
		return 1
	default:
		return 0
	}
}

type Tone string

const (
	ToneCasual       Tone = "casual"
	ToneProfessional Tone = "professional"
	ToneEnthusiastic Tone = "enthusiastic"
	ToneAnalytical   Tone = "analytical"
)

// Tones 语气枚举顺序，也是平票时的优先顺序
var Tones = []Tone{ToneCasual, ToneProfessional, ToneEnthusiastic, ToneAnalytical}

// InterestScore 单个兴趣类别的累计得分
type InterestScore struct {
	Category           string    `json:"category"`
	Score              float64   `json:"score"`
	MatchedKeywords    []string  `json:"matched_keywords"` // 集合，按字母排序
	RecentMentionCount int       `json:"recent_mention_count"`
	TotalMentionCount  int       `json:"total_mention_count"`
	LastSeenAt         time.Time `json:"last_seen_at"`
}

type ContentPreferences struct {
	Formats   []string `json:"formats"`
	Platforms []string `json:"platforms"`
}

type RecommendedSources struct {
	Forums    []string `json:"forums"`
	Platforms []string `json:"platforms"`
	Keywords  []string `json:"keywords"`
}

// UserProfile 用户兴趣画像，每次重建生成新值，不做原地修改
type UserProfile struct {
	UserID             string                    `json:"user_id,omitempty"`
	PrimaryInterests   []InterestScore           `json:"primary_interests"`
	ExpertiseLevel     map[string]ExpertiseLevel `json:"expertise_level"`
	DominantTone       Tone                      `json:"dominant_tone"`
	ContentPreferences ContentPreferences        `json:"content_preferences"`
	RecommendedSources RecommendedSources        `json:"recommended_sources"`
	LastUpdatedAt      time.Time                 `json:"last_updated_at"`
	EntryCountAtBuild  int                       `json:"entry_count_at_build"`
	SkippedEntries     int                       `json:"skipped_entries,omitempty"`
}

// TopInterest 返回得分最高的类别，没有时返回空串
func (p *UserProfile) TopInterest() string {
	if p == nil || len(p.PrimaryInterests) == 0 {
		return ""
	}
	return p.PrimaryInterests[0].Category
}
