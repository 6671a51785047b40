// Package langmeta maps language codes to display metadata (native name
// and emoji flag) for CLI output.
package langmeta

import "strings"

// Meta is a language's display metadata.
type Meta struct {
	Name string
	Flag string
}

// Registry holds canonical codes. Variants such as pt_BR or fr-ca are
// resolved through normalization and base-language fallback in Resolve.
var Registry = map[string]Meta{
	"ar":    {Name: "العربية", Flag: "🇸🇦"},
	"bg":    {Name: "Български", Flag: "🇧🇬"},
	"cs":    {Name: "Čeština", Flag: "🇨🇿"},
	"da":    {Name: "Dansk", Flag: "🇩🇰"},
	"de":    {Name: "Deutsch", Flag: "🇩🇪"},
	"el":    {Name: "Ελληνικά", Flag: "🇬🇷"},
	"en":    {Name: "English", Flag: "🇺🇸"},
	"en-GB": {Name: "English (UK)", Flag: "🇬🇧"},
	"es":    {Name: "Español", Flag: "🇪🇸"},
	"es-MX": {Name: "Español (México)", Flag: "🇲🇽"},
	"fi":    {Name: "Suomi", Flag: "🇫🇮"},
	"fr":    {Name: "Français", Flag: "🇫🇷"},
	"fr-CA": {Name: "Français (Canada)", Flag: "🇨🇦"},
	"he":    {Name: "עברית", Flag: "🇮🇱"},
	"hi":    {Name: "हिन्दी", Flag: "🇮🇳"},
	"hu":    {Name: "Magyar", Flag: "🇭🇺"},
	"id":    {Name: "Bahasa Indonesia", Flag: "🇮🇩"},
	"it":    {Name: "Italiano", Flag: "🇮🇹"},
	"ja":    {Name: "日本語", Flag: "🇯🇵"},
	"ko":    {Name: "한국어", Flag: "🇰🇷"},
	"nl":    {Name: "Nederlands", Flag: "🇳🇱"},
	"no":    {Name: "Norsk", Flag: "🇳🇴"},
	"pl":    {Name: "Polski", Flag: "🇵🇱"},
	"pt":    {Name: "Português", Flag: "🇵🇹"},
	"pt-BR": {Name: "Português (Brasil)", Flag: "🇧🇷"},
	"ro":    {Name: "Română", Flag: "🇷🇴"},
	"ru":    {Name: "Русский", Flag: "🇷🇺"},
	"sk":    {Name: "Slovenčina", Flag: "🇸🇰"},
	"sv":    {Name: "Svenska", Flag: "🇸🇪"},
	"th":    {Name: "ไทย", Flag: "🇹🇭"},
	"tr":    {Name: "Türkçe", Flag: "🇹🇷"},
	"uk":    {Name: "Українська", Flag: "🇺🇦"},
	"vi":    {Name: "Tiếng Việt", Flag: "🇻🇳"},
	"zh":    {Name: "中文", Flag: "🇨🇳"},
	"zh-TW": {Name: "繁體中文", Flag: "🇹🇼"},
}

func canonicalize(lang string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if normalized == "" {
		return ""
	}
	parts := strings.Split(normalized, "-")
	parts[0] = strings.ToLower(parts[0])
	if len(parts) >= 2 {
		parts[1] = strings.ToUpper(parts[1])
	}
	return strings.Join(parts, "-")
}

// Resolve returns best-effort metadata for a language code, accepting
// variants like pt_BR and falling back to the base language. Unknown codes
// come back with the code itself as the name.
func Resolve(lang string) Meta {
	if m, ok := Registry[lang]; ok {
		return m
	}
	normalized := canonicalize(lang)
	if m, ok := Registry[normalized]; ok {
		return m
	}
	if parts := strings.SplitN(normalized, "-", 2); len(parts) == 2 {
		if m, ok := Registry[parts[0]]; ok {
			return m
		}
	}
	return Meta{Name: lang}
}

// Display renders a language for CLI output: flag, native name and code.
func Display(lang string) string {
	m := Resolve(lang)
	if m.Flag == "" {
		return m.Name + " (" + lang + ")"
	}
	return m.Flag + " " + m.Name + " (" + lang + ")"
}
