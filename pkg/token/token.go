// Package token 邀请令牌的签发与校验。
//
// 令牌格式：base64url(JSON{"payload":{...},"signature":"..."})，签名为
// HMAC-SHA256(规范化payload)。payload 与签名始终作为一个整体传递。
package token

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// 校验失败原因
const (
	ReasonMalformed    = "malformed"
	ReasonBadSignature = "bad_signature"
	ReasonExpired      = "expired"
)

var encoding = base64.RawURLEncoding.Strict()

// Payload 令牌载荷，时间字段为毫秒时间戳。字段顺序即规范化序列化顺序，不要调整。
type Payload struct {
	InvitationID string `json:"invitationId"`
	Email        string `json:"email"`
	Type         string `json:"type"`
	ExpiresAt    int64  `json:"expiresAt"`
	IssuedAt     int64  `json:"issuedAt"`
}

// ExpiresTime 返回过期时间
func (p Payload) ExpiresTime() time.Time {
	return time.UnixMilli(p.ExpiresAt)
}

// Result 校验结果。校验失败不是错误，调用方直接根据 Valid/Reason 展示提示。
type Result struct {
	Valid   bool
	Payload *Payload
	Reason  string
}

type envelope struct {
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// Codec 令牌编解码器，无状态，可并发使用
type Codec struct {
	key []byte
	now func() time.Time
}

// NewCodec 创建编解码器，签名密钥由配置的共享密钥经 HKDF 派生
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("邀请令牌密钥不能为空")
	}
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("alumnigate/invitation-token/v1"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}
	return &Codec{key: key, now: time.Now}, nil
}

// WithClock 替换时钟，返回新的编解码器
func (c *Codec) WithClock(now func() time.Time) *Codec {
	return &Codec{key: c.key, now: now}
}

// Generate 签发令牌。相同的 payload 总是得到相同的令牌。
func (c *Codec) Generate(p Payload) (string, error) {
	canonical, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	sig, err := jwt.SigningMethodHS256.Sign(string(canonical), c.key)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(envelope{
		Payload:   canonical,
		Signature: encoding.EncodeToString(sig),
	})
	if err != nil {
		return "", err
	}
	return encoding.EncodeToString(raw), nil
}

// Verify 校验令牌，从不返回错误
func (c *Codec) Verify(tokenString string) Result {
	p, reason := c.decode(tokenString)
	if reason != "" {
		return Result{Reason: reason}
	}
	if p.ExpiresAt <= c.now().UnixMilli() {
		return Result{Reason: ReasonExpired}
	}
	return Result{Valid: true, Payload: p}
}

// Decode 只校验格式与签名，不检查过期。用于轮换令牌时读取原签发时间。
func (c *Codec) Decode(tokenString string) (*Payload, bool) {
	p, reason := c.decode(tokenString)
	return p, reason == ""
}

func (c *Codec) decode(tokenString string) (*Payload, string) {
	raw, err := encoding.DecodeString(tokenString)
	if err != nil || len(raw) == 0 {
		return nil, ReasonMalformed
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || len(env.Payload) == 0 {
		return nil, ReasonMalformed
	}
	// 只接受规范形式，防止大小写不同的键名等变体被 encoding/json 宽松解析
	if reencoded, err := json.Marshal(env); err != nil || !bytes.Equal(reencoded, raw) {
		return nil, ReasonMalformed
	}

	var p Payload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return nil, ReasonMalformed
	}
	if canonical, err := json.Marshal(p); err != nil || !bytes.Equal(canonical, env.Payload) {
		return nil, ReasonMalformed
	}

	sig, err := encoding.DecodeString(env.Signature)
	if err != nil {
		return nil, ReasonMalformed
	}
	if err := jwt.SigningMethodHS256.Verify(string(env.Payload), sig, c.key); err != nil {
		return nil, ReasonBadSignature
	}
	return &p, ""
}
