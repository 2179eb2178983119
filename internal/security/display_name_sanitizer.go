// Package security はアプリケーションのセキュリティ機能を提供する。
//
// DisplayNameSanitizer はユーザーが登録する表示名からHTMLを取り除き、
// 他ユーザーの画面にそのまま描画されても安全なプレーンテキストにする。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxDisplayNameLength は表示名の最大文字数（rune単位）。
const MaxDisplayNameLength = 50

// DisplayNameSanitizer は表示名のサニタイズを行う。
// bluemondayのポリシーはスレッドセーフなので共有して使用できる。
type DisplayNameSanitizer struct {
	policy *bluemonday.Policy
}

// NewDisplayNameSanitizer はDisplayNameSanitizerを生成する。
// StrictPolicyで全てのタグを除去する。script/styleは中身ごと除去される。
func NewDisplayNameSanitizer() *DisplayNameSanitizer {
	return &DisplayNameSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去し、前後の空白を除いてMaxDisplayNameLength文字に切り詰める。
// 結果が空になった場合は空文字列を返す。
func (s *DisplayNameSanitizer) Sanitize(raw string) string {
	// StrictPolicyは & などをエスケープするため、保存用にプレーンテキストへ戻す
	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.Join(strings.Fields(text), " ")

	if utf8.RuneCountInString(text) > MaxDisplayNameLength {
		runes := []rune(text)
		text = string(runes[:MaxDisplayNameLength])
	}
	return text
}
