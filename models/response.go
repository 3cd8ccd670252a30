package models

// 响应码定义
const (
	// 成功
	CodeSuccess = 0

	// 客户端错误 (1000-1999)
	CodeInvalidParams   = 1000 // 无效的参数
	CodeMissingParams   = 1001 // 缺少必要参数
	CodeEntryNotFound   = 1002 // 条目不存在
	CodeNoUserProfile   = 1003 // 用户没有画像
	CodeInsightNotFound = 1004 // 洞察不存在
	CodeInsightArchived = 1005 // 洞察已归档

	// 服务端错误 (2000-2999)
	CodeServerError       = 2000 // 服务器内部错误
	CodeDatabaseError     = 2001 // 数据库错误
	CodeStoreWriteError   = 2002 // 本地存储写入失败
	CodeGenerationError   = 2003 // 生成服务不可用，可重试
	CodeGenerationInvalid = 2004 // 生成结果格式错误，可重试
)

// 错误码对应的消息
var CodeMessages = map[int]string{
	CodeSuccess:           "success",
	CodeInvalidParams:     "invalid parameters",
	CodeMissingParams:     "missing required parameter",
	CodeEntryNotFound:     "entry not found",
	CodeNoUserProfile:     "user has no profile",
	CodeInsightNotFound:   "insight not found",
	CodeInsightArchived:   "insight is archived",
	CodeServerError:       "internal server error",
	CodeDatabaseError:     "database error",
	CodeStoreWriteError:   "storage full or unavailable",
	CodeGenerationError:   "generation service unavailable, please retry",
	CodeGenerationInvalid: "generation result was malformed, please retry",
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) APIResponse {
	return APIResponse{
		Code:    CodeSuccess,
		Message: CodeMessages[CodeSuccess],
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, data interface{}) APIResponse {
	message, exists := CodeMessages[code]
	if !exists {
		message = "unknown error"
	}
	return APIResponse{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// NewCustomErrorResponse 创建自定义错误消息的响应
func NewCustomErrorResponse(code int, message string, data interface{}) APIResponse {
	return APIResponse{
		Code:    code,
		Message: message,
		Data:    data,
	}
}
