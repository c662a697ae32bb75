package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode 错误码类型
type ErrorCode int

// 错误码定义（按模块分组）
const (
	// 通用错误 (1000-1999)
	ErrUnknown        ErrorCode = 1000
	ErrInvalidParam   ErrorCode = 1001
	ErrNotFound       ErrorCode = 1002
	ErrTimeout        ErrorCode = 1005
	ErrCanceled       ErrorCode = 1006
	ErrNotImplemented ErrorCode = 1007

	// 协议错误 (2000-2999)
	ErrProtocolViolation ErrorCode = 2000
	ErrUnknownRequest    ErrorCode = 2001
	ErrMalformedPayload  ErrorCode = 2002
	ErrPendingOverflow   ErrorCode = 2003
	ErrEncodeReply       ErrorCode = 2004

	// 状态机错误 (3000-3999)
	ErrInvalidTransition   ErrorCode = 3000
	ErrNotAwaitingReply    ErrorCode = 3001
	ErrAlreadyReplied      ErrorCode = 3002
	ErrConfirmDisabled     ErrorCode = 3003
	ErrTargetNotSelectable ErrorCode = 3004
	ErrNoActiveModal       ErrorCode = 3005
	ErrInvalidAnswer       ErrorCode = 3006

	// 规则引擎错误 (4000-4099)
	ErrOracleDisagreement ErrorCode = 4000
	ErrOracleScript       ErrorCode = 4001

	// 展示层错误 (4100-4199)
	ErrMissingCollaborator ErrorCode = 4100

	// 通信错误 (5000-5999)
	ErrWebSocketConnect ErrorCode = 5000
	ErrWebSocketSend    ErrorCode = 5001
	ErrWebSocketReceive ErrorCode = 5002
	ErrWebSocketClosed  ErrorCode = 5003
	ErrMessageFormat    ErrorCode = 5004

	// 数据库错误 (6000-6999)
	ErrDatabaseConnect ErrorCode = 6000
	ErrDatabaseQuery   ErrorCode = 6001
	ErrDatabaseInsert  ErrorCode = 6002

	// 配置错误 (7000-7999)
	ErrConfigLoad     ErrorCode = 7000
	ErrConfigValidate ErrorCode = 7002

	// 安全错误 (8000-8999)
	ErrAuthentication ErrorCode = 8000
	ErrTokenExpired   ErrorCode = 8002
	ErrTokenInvalid   ErrorCode = 8003
)

// 错误码消息映射
var errorMessages = map[ErrorCode]string{
	ErrUnknown:        "未知错误",
	ErrInvalidParam:   "无效的参数",
	ErrNotFound:       "资源未找到",
	ErrTimeout:        "操作超时",
	ErrCanceled:       "操作已取消",
	ErrNotImplemented: "功能未实现",

	ErrProtocolViolation: "协议违规",
	ErrUnknownRequest:    "未知的请求类型",
	ErrMalformedPayload:  "请求数据格式错误",
	ErrPendingOverflow:   "缓存消息已满",
	ErrEncodeReply:       "回复编码失败",

	ErrInvalidTransition:   "无效的状态转换",
	ErrNotAwaitingReply:    "当前没有待回复的请求",
	ErrAlreadyReplied:      "本轮请求已回复",
	ErrConfirmDisabled:     "确认按钮不可用",
	ErrTargetNotSelectable: "目标不可选",
	ErrNoActiveModal:       "没有打开的对话框",
	ErrInvalidAnswer:       "无效的选择结果",

	ErrOracleDisagreement: "规则判定不一致",
	ErrOracleScript:       "规则脚本执行失败",

	ErrMissingCollaborator: "界面组件不可用",

	ErrWebSocketConnect: "WebSocket连接失败",
	ErrWebSocketSend:    "WebSocket发送失败",
	ErrWebSocketReceive: "WebSocket接收失败",
	ErrWebSocketClosed:  "WebSocket连接已关闭",
	ErrMessageFormat:    "消息格式错误",

	ErrDatabaseConnect: "数据库连接失败",
	ErrDatabaseQuery:   "数据库查询失败",
	ErrDatabaseInsert:  "数据库插入失败",

	ErrConfigLoad:     "配置加载失败",
	ErrConfigValidate: "配置验证失败",

	ErrAuthentication: "认证失败",
	ErrTokenExpired:   "令牌已过期",
	ErrTokenInvalid:   "无效的令牌",
}

// AppError 应用错误结构
type AppError struct {
	Code    ErrorCode    `json:"code"`            // 错误码
	Message string       `json:"message"`         // 错误消息
	Details string       `json:"details"`         // 详细信息
	Cause   error        `json:"-"`               // 原始错误
	Stack   []StackFrame `json:"stack,omitempty"` // 调用栈
}

// StackFrame 调用栈帧
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加详细信息
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause 添加原因错误
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	if cause != nil && e.Details == "" {
		e.Details = cause.Error()
	}
	return e
}

// New 创建新的应用错误
func New(code ErrorCode, details ...string) *AppError {
	message, ok := errorMessages[code]
	if !ok {
		message = errorMessages[ErrUnknown]
	}

	err := &AppError{
		Code:    code,
		Message: message,
	}

	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}

	err.captureStack(2)

	return err
}

// Newf 创建格式化的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return New(code, details)
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}

	// 如果已经是AppError，保留原始错误码
	if appErr, ok := err.(*AppError); ok {
		if len(details) > 0 {
			appErr.Details = strings.Join(details, "; ") + "; " + appErr.Details
		}
		return appErr
	}

	appErr := New(code, details...)
	appErr.Cause = err
	if appErr.Details == "" {
		appErr.Details = err.Error()
	}

	return appErr
}

// Wrapf 包装格式化错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return Wrap(err, code, details)
}

// Is 判断错误是否为指定错误码
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}

// GetCode 获取错误码
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}

	return ErrUnknown
}

// IsProtocolViolation 判断是否为协议类错误（2000-2999）
func IsProtocolViolation(err error) bool {
	code := GetCode(err)
	return code >= 2000 && code < 3000
}

// IsInvalidTransition 判断是否为状态机类错误（3000-3999）
func IsInvalidTransition(err error) bool {
	code := GetCode(err)
	return code >= 3000 && code < 4000
}

// captureStack 捕获调用栈
func (e *AppError) captureStack(skip int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)

	if n > 0 {
		frames := runtime.CallersFrames(pcs[:n])
		for {
			frame, more := frames.Next()

			// 跳过runtime和本包的调用
			if strings.Contains(frame.Function, "runtime.") ||
				strings.Contains(frame.Function, "github.com/wfunc/room-client/internal/errors") {
				if !more {
					break
				}
				continue
			}

			e.Stack = append(e.Stack, StackFrame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})

			if !more {
				break
			}

			// 只保留前10个栈帧
			if len(e.Stack) >= 10 {
				break
			}
		}
	}
}

// GetStack 获取格式化的调用栈
func (e *AppError) GetStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, frame := range e.Stack {
		builder.WriteString(fmt.Sprintf("%d. %s\n   %s:%d\n",
			i+1, frame.Function, frame.File, frame.Line))
	}

	return builder.String()
}

// HTTPStatus 返回对应的HTTP状态码
func (e *AppError) HTTPStatus() int {
	switch {
	case e.Code == ErrInvalidParam, e.Code == ErrInvalidAnswer:
		return 400 // Bad Request
	case e.Code == ErrNotFound:
		return 404 // Not Found
	case e.Code >= 3000 && e.Code <= 3999:
		return 409 // Conflict
	case e.Code == ErrTimeout:
		return 408 // Request Timeout
	case e.Code >= 8000 && e.Code <= 8999:
		return 401 // Unauthorized
	case e.Code >= 5000 && e.Code <= 6999:
		return 503 // Service Unavailable
	default:
		return 500 // Internal Server Error
	}
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch GetCode(err) {
	case ErrTimeout,
		ErrWebSocketConnect,
		ErrWebSocketSend,
		ErrDatabaseConnect:
		return true
	default:
		return false
	}
}

// IsCritical 判断是否为严重错误（会导致本局无法继续应答服务器）
func IsCritical(err error) bool {
	if err == nil {
		return false
	}

	switch GetCode(err) {
	case ErrProtocolViolation,
		ErrMalformedPayload,
		ErrUnknownRequest,
		ErrPendingOverflow,
		ErrWebSocketClosed,
		ErrConfigLoad:
		return true
	default:
		return false
	}
}

// ErrorResponse API错误响应结构
type ErrorResponse struct {
	Success   bool      `json:"success"`
	Error     *AppError `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(err *AppError, requestID string) *ErrorResponse {
	return &ErrorResponse{
		Success:   false,
		Error:     err,
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	}
}
