package httpmiddleware

import (
	"github.com/gin-gonic/gin"
)

const RequestIDHeader = "X-Request-ID"

// ErrorResponse 所有错误响应的统一结构。detail 和 message 相同，兼容只认 detail 的老客户端。
type ErrorResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Detail    string `json:"detail"`
}

func NewErrorResponse(c *gin.Context, code int, message string) ErrorResponse {
	return ErrorResponse{
		Code:      code,
		Message:   message,
		RequestID: c.GetHeader(RequestIDHeader),
		Detail:    message,
	}
}

// AbortWithError 写 JSON 错误并中止后续 handler
func AbortWithError(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, NewErrorResponse(c, code, message))
}
