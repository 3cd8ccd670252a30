package models

// ThemeCount 近期主题及出现次数
type ThemeCount struct {
	Theme string `json:"theme"`
	Count int    `json:"count"`
}

// InstructionContext 发送给生成服务的个性化上下文；各等级只填充自己需要的字段
type InstructionContext struct {
	TopInterest           string       `json:"top_interest,omitempty"`
	Tone                  Tone         `json:"tone,omitempty"`
	RecentThemes          []string     `json:"recent_themes,omitempty"`
	ExplanationComplexity string       `json:"explanation_complexity,omitempty"`
	RankedThemes          []ThemeCount `json:"ranked_themes,omitempty"`
	ExpertiseAreas        []string     `json:"expertise_areas,omitempty"`
}

// Instruction 一次生成请求
type Instruction struct {
	Tier              Tier               `json:"tier"`
	System            string             `json:"system"`
	Prompt            string             `json:"prompt"`
	Context           InstructionContext `json:"context"`
	RequestedSections []string           `json:"requested_sections"`
	MaxTokens         int                `json:"max_tokens"`
}
