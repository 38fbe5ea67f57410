package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 调用方角色
const (
	RoleAdmin   = "admin"   // 管理后台操作员，可管理邀请
	RoleService = "service" // 内部服务，可签发/查询验证码
)

const issuer = "alumnigate"

// ErrUnknownRole 令牌中的角色不被识别
var ErrUnknownRole = errors.New("未知的调用方角色")

// JWTClaims 管理接口使用的JWT声明
type JWTClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager 签发和校验调用方令牌，用户登录不在本服务
type JWTManager struct {
	secretKey     []byte
	tokenDuration time.Duration
	parser        *jwt.Parser
}

// NewJWTManager 创建JWT管理器
func NewJWTManager(secretKey string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
		),
	}
}

// GenerateToken 为运维工具或内部服务签发令牌
func (manager *JWTManager) GenerateToken(userID, email, role string) (string, error) {
	if !validRole(role) {
		return "", fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}

	now := time.Now()
	claims := JWTClaims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(manager.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   userID,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(manager.secretKey)
}

// VerifyToken 验证JWT令牌
func (manager *JWTManager) VerifyToken(tokenString string) (*JWTClaims, error) {
	claims := &JWTClaims{}
	_, err := manager.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return manager.secretKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !validRole(claims.Role) {
		return nil, ErrUnknownRole
	}
	return claims, nil
}

func validRole(role string) bool {
	return role == RoleAdmin || role == RoleService
}
