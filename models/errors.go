package models

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreNotFound 本地洞察库中不存在该 ID（包括已删除的记录）
	ErrStoreNotFound = errors.New("insight not found")
	// ErrInsightArchived 已归档的记录只允许修改收藏状态
	ErrInsightArchived = errors.New("insight is archived")
	// ErrEntryNotFound 条目源中找不到指定条目
	ErrEntryNotFound = errors.New("entry not found")
	// ErrInvalidInput 调用方传入的参数不合法
	ErrInvalidInput = errors.New("invalid input")
)

// GenerationBackendError 生成服务不可用或返回非 2xx
type GenerationBackendError struct {
	StatusCode int // 传输层错误时为 0
	Err        error
}

func (e *GenerationBackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("generation backend returned status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("generation backend unavailable: %v", e.Err)
}

func (e *GenerationBackendError) Unwrap() error { return e.Err }

// GenerationParseError 生成结果无法解析为该等级要求的结构
type GenerationParseError struct {
	Tier Tier
	Raw  string
	Err  error
}

func (e *GenerationParseError) Error() string {
	return fmt.Sprintf("malformed %s generation result: %v", e.Tier, e.Err)
}

func (e *GenerationParseError) Unwrap() error { return e.Err }

// ProfileBuildError 单条条目数据异常，构建画像时跳过
type ProfileBuildError struct {
	EntryID string
	Reason  string
}

func (e *ProfileBuildError) Error() string {
	return fmt.Sprintf("skip entry %q: %s", e.EntryID, e.Reason)
}

// StoreWriteError 本地存储拒绝写入，例如磁盘空间不足
type StoreWriteError struct {
	Op  string
	Err error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("insight store %s: %v", e.Op, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// IsRetryable 生成类错误都可以由调用方重试
func IsRetryable(err error) bool {
	var backendErr *GenerationBackendError
	var parseErr *GenerationParseError
	return errors.As(err, &backendErr) || errors.As(err, &parseErr)
}
