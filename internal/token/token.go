// Package token はセッショントークンの発行と検証を提供する。
// トークンはHS256署名付きJWTで、ユーザーIDと発行時刻を持ち、
// 共有シークレットに対してステートレスに検証される。永続化はしない。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/shopsync/internal/model"
)

// SessionClaims は検証済みセッショントークンの中身を表す。
type SessionClaims struct {
	UserID   string
	IssuedAt time.Time
}

// Service はセッショントークンの発行・検証サービス。
type Service struct {
	secret []byte
	expiry time.Duration
}

// NewService はServiceを生成する。
func NewService(secret string, expiry time.Duration) *Service {
	return &Service{
		secret: []byte(secret),
		expiry: expiry,
	}
}

// Issue は指定ユーザーIDのセッショントークンを発行する。
func (s *Service) Issue(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Verify はセッショントークンを検証し、ユーザーIDと発行時刻を返す。
// 署名不正・期限切れ・不正形式の場合はUnauthorizedエラーを返す。
func (s *Service) Verify(tokenStr string) (*SessionClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, model.NewUnauthorizedError("セッションの有効期限が切れています。再度ログインしてください。")
		}
		return nil, model.NewUnauthorizedError("セッショントークンが無効です。ログインしてください。")
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid || claims.Subject == "" || claims.IssuedAt == nil {
		return nil, model.NewUnauthorizedError("セッショントークンが無効です。ログインしてください。")
	}

	return &SessionClaims{
		UserID:   claims.Subject,
		IssuedAt: claims.IssuedAt.Time,
	}, nil
}
