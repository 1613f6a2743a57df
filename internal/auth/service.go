package auth

import (
	"log/slog"
	"strings"

	"github.com/hitoshi/deepthoughts/internal/model"
)

// Service は資格情報の発行・照合と、提示されたトークンからの認可コンテキスト解決を行う。
type Service struct {
	tokens *TokenService
	hasher *BcryptHasher
}

// NewService はServiceを生成する。
func NewService(tokens *TokenService, hasher *BcryptHasher) *Service {
	return &Service{tokens: tokens, hasher: hasher}
}

// Sign はIdentityに対する署名付きトークンを発行する。
func (s *Service) Sign(identity *model.Identity) (string, error) {
	return s.tokens.Sign(identity)
}

// HashSecret はシークレットのハッシュを生成する。
func (s *Service) HashSecret(secret string) (string, error) {
	return s.hasher.Hash(secret)
}

// CompareSecret はシークレットとハッシュを照合する。
func (s *Service) CompareSecret(hash, secret string) error {
	return s.hasher.Compare(hash, secret)
}

// Resolve はトークンから認可コンテキストを解決する。
// トークンが空、不正、期限切れのいずれの場合も匿名コンテキストを返し、エラーにはしない。
func (s *Service) Resolve(token string) model.AuthContext {
	if token == "" {
		return model.Anonymous()
	}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		slog.Debug("ignoring invalid token", slog.String("error", err.Error()))
		return model.Anonymous()
	}

	return model.AuthContext{
		IdentityID: claims.IdentityID,
		Username:   claims.Username,
	}
}

// BearerToken はAuthorizationヘッダー値からBearerトークンを取り出す。
// Bearer形式でない場合は空文字列を返す。
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
