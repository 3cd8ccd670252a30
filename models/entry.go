package models

import "time"

// Entry 用户记录的一条原始想法，由条目源持有，本系统只读
type Entry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`

	// 以下字段由分析流程回写
	Processed bool     `json:"processed"`
	Tags      []string `json:"tags,omitempty"`
	Mood      string   `json:"mood,omitempty"`
}

// EntryAnnotation 分析成功后回写到条目的字段
type EntryAnnotation struct {
	Tags []string `json:"tags"`
	Mood string   `json:"mood"`
}
