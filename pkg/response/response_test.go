package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"alumnigate/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, fn func(c *gin.Context)) Response {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	fn(c)

	require.Equal(t, http.StatusOK, w.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestFromError(t *testing.T) {
	resp := render(t, func(c *gin.Context) {
		FromError(c, errors.NewValidation("email", "邮箱格式不正确"))
	})
	assert.Equal(t, errors.CodeInvalidParam, resp.Code)
	assert.Equal(t, "email", resp.Field)

	resp = render(t, func(c *gin.Context) {
		FromError(c, fmt.Errorf("wrapped: %w", errors.NewConflict("已存在待处理邀请")))
	})
	assert.Equal(t, errors.CodeConflict, resp.Code)

	// 底层错误细节不外泄
	resp = render(t, func(c *gin.Context) {
		FromError(c, errors.NewInfrastructure(fmt.Errorf("dial tcp 10.0.0.1:5432: refused")))
	})
	assert.Equal(t, errors.CodeServiceUnavailable, resp.Code)
	assert.NotContains(t, resp.Message, "10.0.0.1")

	resp = render(t, func(c *gin.Context) {
		FromError(c, fmt.Errorf("boom"))
	})
	assert.Equal(t, errors.CodeServerError, resp.Code)
}
