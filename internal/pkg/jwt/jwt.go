package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// 令牌作用域
const (
	ScopeUser  = "user"
	ScopeAdmin = "admin"
)

// Claims 登录令牌，Scope 区分用户与计费/运营后台
type Claims struct {
	UserID int64  `json:"user_id"`
	Scope  string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

func generate(userID int64, scope, secret string, expireHours int) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Scope:  scope,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// GenerateToken 生成用户令牌
func GenerateToken(userID int64, secret string, expireHours int) (string, error) {
	return generate(userID, ScopeUser, secret, expireHours)
}

// GenerateAdminToken 生成后台令牌，用于套餐回调与优惠码管理
func GenerateAdminToken(operatorID int64, secret string, expireHours int) (string, error) {
	return generate(operatorID, ScopeAdmin, secret, expireHours)
}

// ParseToken 解析并校验令牌，只接受 HMAC 签名
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseAdminToken 解析后台令牌，作用域不是 admin 时视为无效
func ParseAdminToken(tokenString, secret string) (*Claims, error) {
	claims, err := ParseToken(tokenString, secret)
	if err != nil {
		return nil, err
	}
	if claims.Scope != ScopeAdmin {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
