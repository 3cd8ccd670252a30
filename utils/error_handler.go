package utils

import (
	"database/sql"
	"errors"

	"thought_engine/models"
)

// IsSQLNoRowsError 检查错误是否为SQL无结果错误
func IsSQLNoRowsError(err error) bool {
	return err != nil && errors.Is(err, sql.ErrNoRows)
}

// ErrorCode 把服务层错误映射为响应码
func ErrorCode(err error) int {
	var backendErr *models.GenerationBackendError
	var parseErr *models.GenerationParseError
	var writeErr *models.StoreWriteError

	switch {
	case errors.Is(err, models.ErrStoreNotFound):
		return models.CodeInsightNotFound
	case errors.Is(err, models.ErrInsightArchived):
		return models.CodeInsightArchived
	case errors.Is(err, models.ErrEntryNotFound):
		return models.CodeEntryNotFound
	case errors.Is(err, models.ErrInvalidInput):
		return models.CodeInvalidParams
	case errors.As(err, &backendErr):
		return models.CodeGenerationError
	case errors.As(err, &parseErr):
		return models.CodeGenerationInvalid
	case errors.As(err, &writeErr):
		return models.CodeStoreWriteError
	case IsSQLNoRowsError(err):
		return models.CodeDatabaseError
	default:
		return models.CodeServerError
	}
}
