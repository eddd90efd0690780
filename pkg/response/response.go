// Package response writes the JSON envelopes every API handler returns.
package response

import (
	"errors"
	"net/http"
	"time"

	"referral-ledger/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// requestIDKey matches middleware.CtxRequestID.
const requestIDKey = "request_id"

// SuccessResponse is the standard success envelope.
type SuccessResponse struct {
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id"`
	Timestamp string      `json:"timestamp"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// Page wraps a list result with its pagination metadata.
type Page struct {
	Items    interface{} `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

func OK(c *gin.Context, data interface{}) {
	success(c, http.StatusOK, data)
}

func Created(c *gin.Context, data interface{}) {
	success(c, http.StatusCreated, data)
}

// Paginated sends a 200 response whose data is a Page.
func Paginated(c *gin.Context, items interface{}, total int64, page, pageSize int) {
	success(c, http.StatusOK, Page{Items: items, Total: total, Page: page, PageSize: pageSize})
}

// Error maps err to its envelope. An *apperror.AppError anywhere in the chain
// supplies the code and status; anything else is an opaque SYS_000.
func Error(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		failure(c, http.StatusInternalServerError, "SYS_000", "Internal server error")
		return
	}
	failure(c, appErr.HTTPStatus, appErr.Code, appErr.Message)
}

func success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, SuccessResponse{
		Data:      data,
		RequestID: requestID(c),
		Timestamp: now(),
	})
}

func failure(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{
		ErrorCode: code,
		Message:   message,
		RequestID: requestID(c),
		Timestamp: now(),
	})
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// requestID returns the id set by the RequestID middleware, or a fresh one
// when the handler runs without it.
func requestID(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	return uuid.NewString()
}
