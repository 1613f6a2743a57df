package repository

import (
	"errors"

	"github.com/lib/pq"
)

// PostgreSQLのエラーコード
const (
	pqUniqueViolation     = pq.ErrorCode("23505")
	pqForeignKeyViolation = pq.ErrorCode("23503")
)

// identitiesテーブルの一意制約名とフィールド名の対応
var identityUniqueConstraints = map[string]string{
	"identities_username_key": "username",
	"identities_email_key":    "email",
}

// asDuplicateError は一意制約違反を*DuplicateErrorに変換する。
// 一意制約違反でない場合はnilを返す。
func asDuplicateError(err error) *DuplicateError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pqUniqueViolation {
		return nil
	}
	return &DuplicateError{Field: identityUniqueConstraints[pqErr.Constraint]}
}

// isForeignKeyViolation は外部キー制約違反かどうかを返す。
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation
}
