package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"thought_engine/models"
)

// WriteFormattedJSON 格式化JSON输出，使其更易读
func WriteFormattedJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "    ") // 使用4个空格缩进
	encoder.Encode(data)
}

// WriteSuccessResponse 写入成功响应
func WriteSuccessResponse(w http.ResponseWriter, data interface{}) {
	WriteFormattedJSON(w, models.NewSuccessResponse(data))
}

// WriteErrorResponse 写入错误响应
func WriteErrorResponse(w http.ResponseWriter, code int, data interface{}) {
	WriteFormattedJSON(w, models.NewErrorResponse(code, data))
}

// WriteCustomErrorResponse 写入自定义错误消息的响应
func WriteCustomErrorResponse(w http.ResponseWriter, code int, message string, data interface{}) {
	WriteFormattedJSON(w, models.NewCustomErrorResponse(code, message, data))
}

// HandleServiceError 处理服务层错误的通用函数
func HandleServiceError(w http.ResponseWriter, err error) {
	code := ErrorCode(err)
	WriteCustomErrorResponse(w, code, err.Error(), map[string]interface{}{
		"retryable": models.IsRetryable(err),
	})
}

// ValidateParam 验证路径参数非空
func ValidateParam(w http.ResponseWriter, name, value string) bool {
	if value == "" {
		WriteErrorResponse(w, models.CodeMissingParams, map[string]interface{}{
			"param": name,
		})
		return false
	}
	return true
}

// DecodeJSONBody 解析请求体，失败时直接写入参数错误响应
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil {
		WriteErrorResponse(w, models.CodeInvalidParams, map[string]interface{}{"error": "empty body"})
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteCustomErrorResponse(w, models.CodeInvalidParams, "invalid request body: "+err.Error(), map[string]interface{}{})
		return false
	}
	return true
}

// ParseInsightFilter 从查询参数解析过滤条件
// 支持 starred、archived、theme（可重复或逗号分隔）、from、to（RFC3339）与 limit
func ParseInsightFilter(r *http.Request) (models.InsightFilter, error) {
	var filter models.InsightFilter
	q := r.URL.Query()

	parseBool := func(name string) (*bool, error) {
		raw := q.Get(name)
		if raw == "" {
			return nil, nil
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, invalidQuery(name, raw)
		}
		return &v, nil
	}
	parseTime := func(name string) (*time.Time, error) {
		raw := q.Get(name)
		if raw == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, invalidQuery(name, raw)
		}
		return &t, nil
	}

	var err error
	if filter.Starred, err = parseBool("starred"); err != nil {
		return filter, err
	}
	if filter.Archived, err = parseBool("archived"); err != nil {
		return filter, err
	}
	if filter.From, err = parseTime("from"); err != nil {
		return filter, err
	}
	if filter.To, err = parseTime("to"); err != nil {
		return filter, err
	}
	for _, raw := range q["theme"] {
		for _, theme := range strings.Split(raw, ",") {
			if theme = strings.TrimSpace(theme); theme != "" {
				filter.Themes = append(filter.Themes, theme)
			}
		}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, convErr := strconv.Atoi(raw)
		if convErr != nil || limit < 0 {
			return filter, invalidQuery("limit", raw)
		}
		filter.Limit = limit
	}
	return filter, nil
}

func invalidQuery(name, value string) error {
	return fmt.Errorf("%w: query parameter %s=%q", models.ErrInvalidInput, name, value)
}
