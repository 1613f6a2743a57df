// Package auth は資格情報（トークン、シークレットハッシュ）と認可コンテキストの解決を提供する。
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/deepthoughts/internal/model"
)

// ErrInvalidToken はトークンの形式・署名・有効期限のいずれかが不正であることを表す。
var ErrInvalidToken = errors.New("invalid token")

// Claims はトークンに埋め込むIdentityの情報。
type Claims struct {
	IdentityID string `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	jwt.RegisteredClaims
}

// TokenConfig はトークン署名の設定。
type TokenConfig struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
}

// TokenService はHS256で署名された有効期限付きトークンを発行・検証する。
type TokenService struct {
	config TokenConfig
	now    func() time.Time
}

// NewTokenService はTokenServiceを生成する。
func NewTokenService(config TokenConfig) *TokenService {
	return &TokenService{config: config, now: time.Now}
}

// Sign はIdentityに対するトークンを発行する。
func (s *TokenService) Sign(identity *model.Identity) (string, error) {
	now := s.now()
	claims := Claims{
		IdentityID: identity.ID,
		Username:   identity.Username,
		Email:      identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.config.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify はトークンを検証し、埋め込まれたClaimsを返す。
// 署名アルゴリズムはHS256のみ受け付ける。
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			return s.config.Secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || claims.IdentityID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
