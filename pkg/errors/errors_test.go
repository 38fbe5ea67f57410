package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorCodes(t *testing.T) {
	cases := []struct {
		err  *AppError
		code int
	}{
		{NewValidation("email", "邮箱格式错误"), CodeInvalidParam},
		{NewConflict("重复"), CodeConflict},
		{NewNotFound("不存在"), CodeNotFound},
		{NewBusinessRule("状态不允许"), CodeBusinessRule},
		{NewRateLimited("太频繁"), CodeTooManyRequests},
		{NewInfrastructure(stderrors.New("dial tcp: timeout")), CodeServiceUnavailable},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, tc.err.Code(), string(tc.err.Kind))
	}
}

func TestInfrastructureIsRetryableAndHidesCause(t *testing.T) {
	cause := stderrors.New("pq: connection refused")
	err := NewInfrastructure(cause)

	assert.True(t, err.Retryable())
	assert.NotContains(t, err.Message, "pq")
	assert.ErrorIs(t, err, cause)
	assert.False(t, NewConflict("x").Retryable())
}

func TestAsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("create: %w", NewConflict("该邮箱已有待处理的邀请"))

	appErr, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, KindConflict, appErr.Kind)
	assert.True(t, IsKind(wrapped, KindConflict))
	assert.False(t, IsKind(stderrors.New("plain"), KindConflict))
}
