// Package apperr 定义 API 统一的错误分类，以及分类到 HTTP 状态码的映射。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误类别
type Kind int

const (
	KindInternal   Kind = iota
	KindAuth            // 用户名或密码错误
	KindForbidden       // 未登录或会话过期
	KindNotFound        // 记录不存在
	KindNoFields        // 部分更新没有提供任何字段
	KindValidation      // 参数校验失败
	KindTooLarge        // 上传文件过大
	KindMedia           // 图片存储失败
	KindStore           // 数据库失败
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindNoFields:
		return "no_fields"
	case KindValidation:
		return "validation"
	case KindTooLarge:
		return "too_large"
	case KindMedia:
		return "media"
	case KindStore:
		return "store"
	default:
		return "internal"
	}
}

// Status 对应的 HTTP 状态码
func (k Kind) Status() int {
	switch k {
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindNoFields, KindValidation:
		return http.StatusBadRequest
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindMedia:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error 带分类的应用错误。Message 会返回给客户端，Err 只用于日志。
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New 创建错误
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap 包装底层错误
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Auth(message string) *Error       { return New(KindAuth, message) }
func Forbidden(message string) *Error  { return New(KindForbidden, message) }
func NotFound(message string) *Error   { return New(KindNotFound, message) }
func Validation(message string) *Error { return New(KindValidation, message) }
func TooLarge(message string) *Error   { return New(KindTooLarge, message) }

// NoFields 部分更新为空
func NoFields() *Error {
	return New(KindNoFields, "No fields to update")
}

// Media 图片存储失败，对客户端只暴露通用信息
func Media(err error) *Error {
	return Wrap(KindMedia, "Failed to store photo", err)
}

// Store 数据库失败，对客户端只暴露通用信息
func Store(err error) *Error {
	return Wrap(KindStore, "Internal server error", err)
}

// As 取出错误链中的 *Error
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf 返回错误类别，非 *Error 视为 KindInternal
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}
