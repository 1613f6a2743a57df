package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxSecretBytes はbcryptが扱えるシークレットの最大バイト数。
const MaxSecretBytes = 72

var (
	// ErrSecretMismatch はシークレットがハッシュと一致しないことを表す。
	ErrSecretMismatch = errors.New("secret does not match")
	// ErrSecretTooLong はシークレットがMaxSecretBytesを超えることを表す。
	ErrSecretTooLong = fmt.Errorf("secret exceeds %d bytes", MaxSecretBytes)
)

// BcryptHasher はbcryptによるシークレットのハッシュ化と照合を行う。
type BcryptHasher struct {
	cost      int
	dummyHash []byte
}

// NewBcryptHasher はBcryptHasherを生成する。
// costが範囲外の場合はbcrypt.DefaultCostを使用する。
func NewBcryptHasher(cost int) (*BcryptHasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("deepthoughts-dummy-secret"), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to generate dummy hash: %w", err)
	}
	return &BcryptHasher{cost: cost, dummyHash: dummy}, nil
}

// Hash はシークレットのハッシュを生成する。MaxSecretBytesを超える場合はErrSecretTooLongを返す。
func (h *BcryptHasher) Hash(secret string) (string, error) {
	if len(secret) > MaxSecretBytes {
		return "", ErrSecretTooLong
	}
	b, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(b), nil
}

// Compare はシークレットとハッシュを照合する。一致しない場合はErrSecretMismatchを返す。
// hashが空の場合もダミーハッシュとの照合を行い、応答時間を揃えたうえで不一致を返す。
func (h *BcryptHasher) Compare(hash, secret string) error {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(secret))
		return ErrSecretMismatch
	}
	// 登録時に拒否される長さのため、一致するハッシュは存在しない
	if len(secret) > MaxSecretBytes {
		_ = bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret[:MaxSecretBytes]))
		return ErrSecretMismatch
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrSecretMismatch
	}
	if err != nil {
		return fmt.Errorf("failed to compare secret: %w", err)
	}
	return nil
}
