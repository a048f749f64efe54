package model

import (
	"errors"
)

// ErrorKind 错误类别，调用方按类别分支而不是按错误文本
type ErrorKind string

const (
	KindUnauthenticated ErrorKind = "UNAUTHENTICATED"
	KindNotFound        ErrorKind = "NOT_FOUND"
	KindInvalidArgument ErrorKind = "INVALID_ARGUMENT"
	KindPollClosed      ErrorKind = "POLL_CLOSED"
	KindAlreadyExists   ErrorKind = "ALREADY_EXISTS"
	KindInternal        ErrorKind = "INTERNAL"
)

// Error 带类别的业务错误
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 类别相同且目标未指定文本（或文本一致）时视为相等，便于 errors.Is(err, ErrPollClosed)
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Extensions 暴露给GraphQL响应的 extensions 字段
func (e *Error) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": string(e.Kind)}
}

var (
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated, Message: "请先登录"}
	ErrPollNotFound    = &Error{Kind: KindNotFound, Message: "议题不存在"}
	ErrUserNotFound    = &Error{Kind: KindNotFound, Message: "用户不存在"}
	ErrInvalidWeight   = &Error{Kind: KindInvalidArgument, Message: "无效的投票权重"}
	ErrPollClosed      = &Error{Kind: KindPollClosed, Message: "议题已关闭"}
	ErrUsernameTaken   = &Error{Kind: KindAlreadyExists, Message: "用户名已存在"}
)

// NewError 创建指定类别的错误
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Internal 包装基础设施错误
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf 返回错误类别，非业务错误一律视为 INTERNAL
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
