// Package errors 定义统一错误码
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code 错误码
type Code string

// 错误码定义
const (
	// 通用错误
	CodeOK           Code = "OK"
	CodeUnknown      Code = "UNKNOWN"
	CodeInvalidParam Code = "INVALID_PARAM"
	CodeNotFound     Code = "NOT_FOUND"
	CodeInternal     Code = "INTERNAL"
	CodeUnavailable  Code = "UNAVAILABLE"
	CodeTimeout      Code = "TIMEOUT"

	// 库存
	CodeProductNotFound   Code = "PRODUCT_NOT_FOUND"
	CodeProductInactive   Code = "PRODUCT_INACTIVE"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"

	// 账务
	CodeInvalidEntry      Code = "INVALID_ENTRY"
	CodeUnbalancedBatch   Code = "UNBALANCED_BATCH"
	CodeLedgerRejected    Code = "LEDGER_REJECTED"

	// 销售 saga
	CodeSaleNotFound          Code = "SALE_NOT_FOUND"
	CodeRemoteUnavailable     Code = "REMOTE_UNAVAILABLE"
	CodeSimulatedFailure      Code = "SIMULATED_FAILURE"
	CodePersistenceFailure    Code = "PERSISTENCE_FAILURE"
	CodeCriticalInconsistency Code = "CRITICAL_INCONSISTENCY"
)

// Error 业务错误
type Error struct {
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	Step      string `json:"step,omitempty"`
	Retryable bool   `json:"retryable"`
	RequestID string `json:"requestId,omitempty"`
	cause     error
}

func (e *Error) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("[%s] %s (step %s)", e.Code, e.Message, e.Step)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *Error) Unwrap() error {
	return e.cause
}

// New 创建错误
func New(code Code, message string) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Retryable: isRetryable(code),
	}
}

// Newf 创建格式化错误
func Newf(code Code, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装底层错误
func Wrap(code Code, message string, cause error) *Error {
	e := New(code, message)
	e.cause = cause
	return e
}

// WithStep 标记发生错误的 saga 步骤
func (e *Error) WithStep(step string) *Error {
	e.Step = step
	return e
}

// WithRequestID 添加请求 ID
func (e *Error) WithRequestID(requestID string) *Error {
	e.RequestID = requestID
	return e
}

// AsError extracts an *Error from err's chain, or wraps err as CodeUnknown.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return Wrap(CodeUnknown, err.Error(), err)
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// HTTPStatus 返回对应的 HTTP 状态码
func (e *Error) HTTPStatus() int {
	return httpStatus(e.Code)
}

// isRetryable 判断是否可重试
func isRetryable(code Code) bool {
	switch code {
	case CodeTimeout, CodeUnavailable, CodeRemoteUnavailable:
		return true
	default:
		return false
	}
}

// httpStatus 错误码对应的 HTTP 状态码
func httpStatus(code Code) int {
	switch code {
	case CodeOK:
		return http.StatusOK
	case CodeInvalidParam, CodeInvalidEntry, CodeUnbalancedBatch:
		return http.StatusBadRequest
	case CodeNotFound, CodeProductNotFound, CodeSaleNotFound:
		return http.StatusNotFound
	case CodeInsufficientStock, CodeProductInactive:
		return http.StatusConflict
	case CodeSimulatedFailure, CodeLedgerRejected:
		return http.StatusUnprocessableEntity
	case CodeUnavailable, CodeRemoteUnavailable:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeInternal, CodeUnknown, CodePersistenceFailure, CodeCriticalInconsistency:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误
var (
	ErrInvalidParam      = New(CodeInvalidParam, "invalid parameter")
	ErrProductNotFound   = New(CodeProductNotFound, "product not found")
	ErrInsufficientStock = New(CodeInsufficientStock, "insufficient stock")
	ErrSaleNotFound      = New(CodeSaleNotFound, "sale not found")
	ErrRemoteUnavailable = New(CodeRemoteUnavailable, "remote authority unreachable")
)
