package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/safwat-fathi/almuetasim-api/internal/model"
)

// ProfileSanitizer はサインアップ時のプロフィール項目からHTMLを除去する。
// 名前や電話番号はプレーンテキストとして扱い、タグは一切通さない。
type ProfileSanitizer struct {
	policy *bluemonday.Policy
}

// NewProfileSanitizer はStrictPolicyを用いたProfileSanitizerを生成する。
func NewProfileSanitizer() *ProfileSanitizer {
	return &ProfileSanitizer{policy: bluemonday.StrictPolicy()}
}

// SanitizeText はタグを除去し前後の空白を取り除く。
// 値はJSONでのみ返すため、StrictPolicyが付けた文字参照は元の文字に戻す。
// 結果が入力より長くなることはない。
func (s *ProfileSanitizer) SanitizeText(raw string) string {
	cleaned := html.UnescapeString(s.policy.Sanitize(raw))
	return strings.TrimSpace(cleaned)
}

// SanitizeProfile はProfileの各項目をサニタイズしたコピーを返す。
func (s *ProfileSanitizer) SanitizeProfile(p model.Profile) model.Profile {
	return model.Profile{
		Name:  s.SanitizeText(p.Name),
		Phone: s.SanitizeText(p.Phone),
	}
}
