package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "a***@example.com", MaskEmail("alice@example.com"))
	assert.Equal(t, "***", MaskEmail("@example.com"))
	assert.Equal(t, "***", MaskEmail("nobody"))
}

func TestRedactHook(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.AddHook(RedactHook{})

	l.WithFields(logrus.Fields{
		"email":         "alice@example.com",
		"token":         "eyJwYXlsb2Fk",
		"invitation_id": "inv-1",
	}).Info("invitation created")

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "a***@example.com", out["email"])
	assert.Equal(t, "[REDACTED]", out["token"])
	assert.Equal(t, "inv-1", out["invitation_id"])
	assert.NotContains(t, buf.String(), "eyJwYXlsb2Fk")
}
