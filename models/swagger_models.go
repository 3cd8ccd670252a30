package models

import "encoding/json"

// APIResponse 通用API响应
type APIResponse struct {
	Code    int         `json:"code" example:"0"`
	Message string      `json:"message" example:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// SaveInsightRequest 直接保存洞察的请求体
type SaveInsightRequest struct {
	SourceText string         `json:"source_text" example:"I love Spanish lessons and guitar practice"`
	Payload    InsightPayload `json:"payload"`
	Themes     []string       `json:"themes" example:"['learning','music']"`
}

// SaveInsightResponse 保存成功后返回的 ID
type SaveInsightResponse struct {
	ID string `json:"id" example:"ins_1760000000000_1a2b3c4d"`
}

// TrackActionRequest 记录用户动作的请求体
type TrackActionRequest struct {
	Payload json.RawMessage `json:"payload" swaggertype:"object"`
}

// ToggleStarResponse 切换收藏后的状态
type ToggleStarResponse struct {
	ID      string `json:"id"`
	Starred bool   `json:"starred"`
}
