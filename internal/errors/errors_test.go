package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ErrorsTestSuite 错误包测试套件
type ErrorsTestSuite struct {
	suite.Suite
}

// 测试创建新错误
func (suite *ErrorsTestSuite) TestNew() {
	err := New(ErrInvalidParam)
	suite.NotNil(err)
	suite.Equal(ErrInvalidParam, err.Code)
	suite.Equal("无效的参数", err.Message)
	suite.Empty(err.Details)

	err = New(ErrUnknownRequest, "AskForNothing")
	suite.Equal("未知的请求类型", err.Message)
	suite.Equal("AskForNothing", err.Details)

	// 多个详情
	err = New(ErrMalformedPayload, "AskForChoice", "缺少 options")
	suite.Equal("AskForChoice; 缺少 options", err.Details)
}

func (suite *ErrorsTestSuite) TestNewf() {
	err := Newf(ErrInvalidTransition, "模式 %s 不能执行 %s", "idle", "reply")
	suite.Equal(ErrInvalidTransition, err.Code)
	suite.Equal("模式 idle 不能执行 reply", err.Details)
}

// 测试错误包装
func (suite *ErrorsTestSuite) TestWrap() {
	originalErr := errors.New("连接被重置")
	wrappedErr := Wrap(originalErr, ErrWebSocketSend)
	suite.NotNil(wrappedErr)
	suite.Equal(ErrWebSocketSend, wrappedErr.Code)
	suite.Equal("连接被重置", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)

	suite.Nil(Wrap(nil, ErrUnknown))

	// 已有的AppError保留原始错误码
	appErr := New(ErrPendingOverflow, "队列已有2条")
	wrappedAppErr := Wrap(appErr, ErrInvalidParam, "AskForChoice")
	suite.Equal(ErrPendingOverflow, wrappedAppErr.Code)
	suite.Contains(wrappedAppErr.Details, "AskForChoice")
}

func (suite *ErrorsTestSuite) TestWrapf() {
	originalErr := errors.New("attempt to call a nil value")
	wrappedErr := Wrapf(originalErr, ErrOracleScript, "调用 %s 失败", "CardFeasible")
	suite.Equal(ErrOracleScript, wrappedErr.Code)
	suite.Equal("调用 CardFeasible 失败", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)
}

// 测试错误码判断
func (suite *ErrorsTestSuite) TestIs() {
	err := New(ErrAlreadyReplied)
	suite.True(Is(err, ErrAlreadyReplied))
	suite.False(Is(err, ErrNotFound))
	suite.False(Is(nil, ErrAlreadyReplied))
	suite.False(Is(errors.New("标准错误"), ErrUnknown))

	// 经过fmt.Errorf包装后仍可识别
	wrapped := fmt.Errorf("处理失败: %w", err)
	suite.True(Is(wrapped, ErrAlreadyReplied))
}

func (suite *ErrorsTestSuite) TestGetCode() {
	suite.Equal(ErrTokenExpired, GetCode(New(ErrTokenExpired)))
	suite.Equal(ErrUnknown, GetCode(errors.New("标准错误")))
	suite.Equal(ErrorCode(0), GetCode(nil))
}

func (suite *ErrorsTestSuite) TestCategories() {
	suite.True(IsProtocolViolation(New(ErrProtocolViolation)))
	suite.True(IsProtocolViolation(New(ErrMalformedPayload)))
	suite.False(IsProtocolViolation(New(ErrInvalidTransition)))

	suite.True(IsInvalidTransition(New(ErrNotAwaitingReply)))
	suite.True(IsInvalidTransition(New(ErrConfirmDisabled)))
	suite.False(IsInvalidTransition(New(ErrOracleDisagreement)))
	suite.False(IsInvalidTransition(nil))
}

// 测试错误消息
func (suite *ErrorsTestSuite) TestError() {
	err := &AppError{
		Code:    ErrNotFound,
		Message: "资源未找到",
	}
	suite.Equal("[1002] 资源未找到", err.Error())

	err.Details = "会话: room-1"
	suite.Equal("[1002] 资源未找到: 会话: room-1", err.Error())
}

func (suite *ErrorsTestSuite) TestUnwrap() {
	originalErr := errors.New("原始错误")
	wrappedErr := Wrap(originalErr, ErrUnknown)
	suite.Equal(originalErr, wrappedErr.Unwrap())
	suite.Nil(New(ErrUnknown).Unwrap())
}

func (suite *ErrorsTestSuite) TestWithCause() {
	cause := errors.New("UNIQUE constraint failed")
	err := New(ErrDatabaseInsert).WithCause(cause)
	suite.Equal(cause, err.Cause)
	suite.Equal("UNIQUE constraint failed", err.Details)

	// 已有Details的情况
	err2 := New(ErrDatabaseInsert, "写入回复记录").WithCause(cause)
	suite.Equal("写入回复记录", err2.Details)
	suite.Equal("写入回复记录", New(ErrInvalidParam).WithDetails("写入回复记录").Details)
}

// 测试HTTP状态码映射
func (suite *ErrorsTestSuite) TestHTTPStatus() {
	testCases := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrInvalidParam, 400},
		{ErrInvalidAnswer, 400},
		{ErrNotFound, 404},
		{ErrInvalidTransition, 409},
		{ErrTargetNotSelectable, 409},
		{ErrTimeout, 408},
		{ErrAuthentication, 401},
		{ErrTokenInvalid, 401},
		{ErrWebSocketClosed, 503},
		{ErrDatabaseConnect, 503},
		{ErrProtocolViolation, 500},
		{ErrUnknown, 500},
	}

	for _, tc := range testCases {
		err := New(tc.code)
		suite.Equal(tc.expected, err.HTTPStatus(), "错误码 %d 应该返回HTTP状态码 %d", tc.code, tc.expected)
	}
}

func (suite *ErrorsTestSuite) TestIsRetryable() {
	for _, code := range []ErrorCode{ErrTimeout, ErrWebSocketConnect, ErrWebSocketSend, ErrDatabaseConnect} {
		suite.True(IsRetryable(New(code)), "错误码 %d 应该是可重试的", code)
	}
	for _, code := range []ErrorCode{ErrInvalidParam, ErrInvalidTransition, ErrProtocolViolation} {
		suite.False(IsRetryable(New(code)), "错误码 %d 不应该是可重试的", code)
	}
	suite.False(IsRetryable(nil))
}

// 测试严重错误判断
func (suite *ErrorsTestSuite) TestIsCritical() {
	for _, code := range []ErrorCode{ErrProtocolViolation, ErrMalformedPayload, ErrUnknownRequest, ErrPendingOverflow, ErrWebSocketClosed, ErrConfigLoad} {
		suite.True(IsCritical(New(code)), "错误码 %d 应该是严重错误", code)
	}
	for _, code := range []ErrorCode{ErrInvalidTransition, ErrOracleDisagreement, ErrMissingCollaborator} {
		suite.False(IsCritical(New(code)), "错误码 %d 不应该是严重错误", code)
	}
	suite.False(IsCritical(nil))
}

func (suite *ErrorsTestSuite) TestStackCapture() {
	err := New(ErrUnknown)
	suite.Greater(len(err.Stack), 0)
	suite.NotEmpty(err.GetStack())
}

func (suite *ErrorsTestSuite) TestErrorResponse() {
	err := New(ErrNotFound, "会话不存在")
	response := NewErrorResponse(err, "req-123")

	suite.False(response.Success)
	suite.Equal(err, response.Error)
	suite.Equal("req-123", response.RequestID)
	suite.Greater(response.Timestamp, int64(0))
}

// 测试未知错误码
func (suite *ErrorsTestSuite) TestUnknownErrorCode() {
	err := New(ErrorCode(99999))
	suite.Equal(ErrorCode(99999), err.Code)
	suite.Equal("未知错误", err.Message)
}

// 测试回合相关错误消息
func (suite *ErrorsTestSuite) TestTurnErrors() {
	turnErrors := map[ErrorCode]string{
		ErrProtocolViolation:   "协议违规",
		ErrPendingOverflow:     "缓存消息已满",
		ErrInvalidTransition:   "无效的状态转换",
		ErrNotAwaitingReply:    "当前没有待回复的请求",
		ErrAlreadyReplied:      "本轮请求已回复",
		ErrOracleDisagreement:  "规则判定不一致",
		ErrMissingCollaborator: "界面组件不可用",
	}

	for code, expectedMsg := range turnErrors {
		suite.Equal(expectedMsg, New(code).Message)
	}
}

func TestErrorsSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}
