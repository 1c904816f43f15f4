// Package security はアプリケーションのセキュリティ機能を提供する。
//
// EchoSanitizer はフォーム入力をレスポンスに含める前にマークアップを除去する。
// bluemondayのStrictPolicyを使用し、タグを一切通過させない。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// EchoSanitizer はレスポンスに含めるユーザー入力を無害化する。
type EchoSanitizer interface {
	// Sanitize はHTMLタグを除去し、前後の空白を取り除いた文字列を返す。
	// 空文字列の入力には空文字列を返す。同一入力に対して常に同一出力を返す。
	Sanitize(value string) string
}

// echoSanitizer はEchoSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに利用できる。
type echoSanitizer struct {
	policy *bluemonday.Policy
}

// NewEchoSanitizer はEchoSanitizerを生成する。
func NewEchoSanitizer() EchoSanitizer {
	return &echoSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はHTMLタグを除去した文字列を返す。
// 応答はJSONで返すため、StrictPolicyが付与する文字参照は元の文字に戻す。
func (s *echoSanitizer) Sanitize(value string) string {
	if value == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(value)))
}
