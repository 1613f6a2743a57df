// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はbluemondayのStrictPolicyで本文からHTMLを除去したテキストを求める。
// 投稿・リアクション本文は受け取ったまま保存し、除去結果は可視テキストの有無の判定に使う。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は本文サニタイズのインターフェース。
type TextSanitizer interface {
	// Sanitize はHTMLタグを除去したプレーンテキストを返す。
	// script、styleタグは内容ごと除去される。前後の空白は取り除く。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
	// HasVisibleText はタグと空白を除いた後に文字が残るかを返す。
	HasVisibleText(raw string) bool
}

// textSanitizer はTextSanitizerの実装。bluemondayのポリシーはスレッドセーフ。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はHTMLタグを除去したプレーンテキストを返す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	// StrictPolicyは出力をエスケープするため、プレーンテキストとして保存する前に戻す
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}

// HasVisibleText はタグと空白を除いた後に文字が残るかを返す。
func (s *textSanitizer) HasVisibleText(raw string) bool {
	return s.Sanitize(raw) != ""
}
