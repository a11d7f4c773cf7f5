// Package jwt 签发与校验 HS256 访问令牌和刷新令牌。
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenExpired   = errors.New("token is expired")
	ErrTokenInvalid   = errors.New("token is invalid")
	ErrTokenType      = errors.New("token type mismatch")
)

// TokenType 区分访问令牌与刷新令牌，二者不能互换使用。
type TokenType string

const (
	Access  TokenType = "access"
	Refresh TokenType = "refresh"
)

// Claims 定义了 JWT 的载荷结构，Subject 为用户 UUID。
type Claims struct {
	Type TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// UserID 解析 Subject。
func (c *Claims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, ErrTokenInvalid
	}
	return id, nil
}

// Manager 持有签名密钥与有效期。
type Manager struct {
	secret        []byte
	issuer        string
	accessExpire  time.Duration
	refreshExpire time.Duration
	now           func() time.Time
}

// NewManager refreshDays 为刷新令牌有效天数。
func NewManager(secret, issuer string, accessExpire time.Duration, refreshDays int) *Manager {
	return &Manager{
		secret:        []byte(secret),
		issuer:        issuer,
		accessExpire:  accessExpire,
		refreshExpire: time.Duration(refreshDays) * 24 * time.Hour,
		now:           time.Now,
	}
}

// RefreshExpire 刷新令牌有效期，用于设置 cookie 的 max-age。
func (m *Manager) RefreshExpire() time.Duration { return m.refreshExpire }

// GenerateAccess 签发访问令牌。
func (m *Manager) GenerateAccess(userID uuid.UUID) (string, error) {
	return m.generate(userID, Access, m.accessExpire)
}

// GenerateRefresh 签发刷新令牌。
func (m *Manager) GenerateRefresh(userID uuid.UUID) (string, error) {
	return m.generate(userID, Refresh, m.refreshExpire)
}

func (m *Manager) generate(userID uuid.UUID, typ TokenType, ttl time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    m.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Parse 校验签名、有效期与令牌类型，返回用户 ID。
func (m *Manager) Parse(tokenString string, want TokenType) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return uuid.Nil, ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
			return uuid.Nil, ErrTokenExpired
		default:
			return uuid.Nil, ErrTokenInvalid
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return uuid.Nil, ErrTokenInvalid
	}
	if claims.Type != want {
		return uuid.Nil, ErrTokenType
	}
	return claims.UserID()
}
