package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode 错误代码类型
type ErrorCode string

const (
	ErrCodeUnknown ErrorCode = "UNKNOWN"

	// 远程取值整批失败（传输/超时/长度不一致）
	ErrCodeTransport ErrorCode = "TRANSPORT"
	// 带元数据的存储路径缺少标记
	ErrCodeMalformedPath ErrorCode = "MALFORMED_PATH"
	// 写入 sink 失败
	ErrCodeSinkWrite ErrorCode = "SINK_WRITE"

	// 配置相关错误
	ErrCodeConfigInvalid  ErrorCode = "CONFIG_INVALID"
	ErrCodeUnknownCadence ErrorCode = "UNKNOWN_CADENCE"
)

// 哨兵错误，配合 errors.Is 使用（按错误代码匹配）
var (
	ErrTransport      = NewError(ErrCodeTransport, "remote fetch failed")
	ErrMalformedPath  = NewError(ErrCodeMalformedPath, "malformed metric path")
	ErrSinkWrite      = NewError(ErrCodeSinkWrite, "sink write failed")
	ErrConfigInvalid  = NewError(ErrCodeConfigInvalid, "invalid configuration")
	ErrUnknownCadence = NewError(ErrCodeUnknownCadence, "unknown cadence")
)

// AgentError Agent 自定义错误
type AgentError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AgentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

// Is 按错误代码匹配，使 errors.Is(err, ErrMalformedPath) 对任意同代码错误成立
func (e *AgentError) Is(target error) bool {
	t, ok := target.(*AgentError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError 创建新的错误
func NewError(code ErrorCode, message string) *AgentError {
	return &AgentError{
		Code:    code,
		Message: message,
	}
}

// WrapError 包装现有错误
func WrapError(code ErrorCode, message string, err error) *AgentError {
	return &AgentError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Newf 格式化创建
func Newf(code ErrorCode, format string, args ...any) *AgentError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// IsErrorCode 检查错误链中是否存在指定的错误代码
func IsErrorCode(err error, code ErrorCode) bool {
	var agentErr *AgentError
	if stderrors.As(err, &agentErr) {
		return agentErr.Code == code
	}
	return false
}

// CodeOf 返回错误代码，非 AgentError 返回 ErrCodeUnknown
func CodeOf(err error) ErrorCode {
	var agentErr *AgentError
	if stderrors.As(err, &agentErr) {
		return agentErr.Code
	}
	return ErrCodeUnknown
}
