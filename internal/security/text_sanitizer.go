package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はユーザー入力テキストの無害化インターフェースを定義する。
// 掲載のパススルーフィールド（コメント、投稿者名、寝台種別など）は
// 正規化時にこのサニタイザを通してから保存・表示される。
type TextSanitizerService interface {
	// SanitizeText は入力からHTMLタグをすべて除去し、プレーンテキストを返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(s string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフに動作する。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyは一切のタグを許可しない。掲載フィールドはリッチテキストを
// 想定しないため、タグ除去後のプレーンテキストのみを通す。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText は入力からHTMLタグを除去したプレーンテキストを返す。
// bluemondayはエンティティをエスケープして返すため、タグ除去後に
// アンエスケープして元の文字（& や ' など）を復元する。
func (s *textSanitizer) SanitizeText(raw string) string {
	stripped := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(stripped))
}
