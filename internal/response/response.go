package response

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every REST endpoint answers with.
type Response struct {
	Data     any        `json:"data"`
	Error    *ErrorBody `json:"error,omitempty"`
	Metadata Metadata   `json:"metadata"`
}

// ErrorBody carries a stable code the UI switches on plus a human message.
type ErrorBody struct {
	Code    ErrCode           `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type Metadata struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

func Success(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, envelope(c, data, nil))
}

func Fail(c *gin.Context, statusCode int, code ErrCode) {
	c.JSON(statusCode, envelope(c, nil, errorBody(code, "", nil)))
}

// FailWithMessage replaces the default message for code, e.g. with the
// backend's own rejection reason. An empty message keeps the default.
func FailWithMessage(c *gin.Context, statusCode int, code ErrCode, message string) {
	c.JSON(statusCode, envelope(c, nil, errorBody(code, message, nil)))
}

// FailWithFields reports per-field validation failures.
func FailWithFields(c *gin.Context, statusCode int, code ErrCode, fields map[string]string) {
	c.JSON(statusCode, envelope(c, nil, errorBody(code, "", fields)))
}

// AbortFail stops the middleware chain. Used by guards such as the token check.
func AbortFail(c *gin.Context, statusCode int, code ErrCode) {
	c.AbortWithStatusJSON(statusCode, envelope(c, nil, errorBody(code, "", nil)))
}

func errorBody(code ErrCode, message string, fields map[string]string) *ErrorBody {
	if message == "" {
		message = GetMessage(code)
	}
	return &ErrorBody{Code: code, Message: message, Fields: fields}
}

func envelope(c *gin.Context, data any, body *ErrorBody) Response {
	return Response{
		Data:  data,
		Error: body,
		Metadata: Metadata{
			RequestID: RequestID(c),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}
}
