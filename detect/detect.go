// Package detect defines the locale-detection input consumed by the
// reconciliation engine: which i18n framework a project uses and which
// translation files exist per language.
//
// The engine performs no detection itself — a Result is produced by an
// external detector (or declared explicitly in the project config) and
// treated purely as input.
package detect

import (
	"path/filepath"
	"strings"
)

// FileInfo describes one translation file of a language.
type FileInfo struct {
	// Path is the absolute path.
	Path string
	// RelPath is the path relative to the project root.
	RelPath string
	// KeyCount is the number of translatable keys, 0 when unknown.
	KeyCount int
}

// LanguageFiles groups the files belonging to one language.
type LanguageFiles struct {
	Language string
	Files    []FileInfo
}

// Result is the detection output for one project root.
type Result struct {
	// Framework is the detected i18n framework name (e.g. "flutter",
	// "i18next", "apple").
	Framework string
	// Confidence of the detection, 0..1.
	Confidence float64
	// Languages lists each detected language with its files.
	Languages []LanguageFiles
}

// Detector produces a Result for a project root.
type Detector interface {
	Detect(root string) (*Result, error)
}

// FilesFor returns the files of lang, nil when the language is unknown.
func (r *Result) FilesFor(lang string) []FileInfo {
	for _, g := range r.Languages {
		if g.Language == lang {
			return g.Files
		}
	}
	return nil
}

// HasLanguage reports whether lang appears in the detection.
func (r *Result) HasLanguage(lang string) bool {
	return r.FilesFor(lang) != nil
}

// LocalizedPath derives the path of toLang's counterpart of a fromLang
// file by substituting the language wherever it appears as a path segment
// or a delimited token in a segment:
//
//	locales/en.json            → locales/de.json
//	lib/l10n/app_en.arb        → lib/l10n/app_de.arb
//	en.lproj/Main.strings      → de.lproj/Main.strings
//	translations/en/app.json   → translations/de/app.json
//
// A path with no language occurrence (e.g. a shared .xcstrings catalog)
// is returned unchanged.
func LocalizedPath(path, fromLang, toLang string) string {
	if fromLang == "" || fromLang == toLang {
		return path
	}
	segs := strings.Split(filepath.ToSlash(path), "/")
	for i, seg := range segs {
		segs[i] = replaceLangToken(seg, fromLang, toLang)
	}
	return filepath.FromSlash(strings.Join(segs, "/"))
}

// replaceLangToken replaces occurrences of from in s that are bounded by
// non-alphanumeric characters (or the segment edges), so "en" never
// matches inside "generic".
func replaceLangToken(s, from, to string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		if strings.HasPrefix(s[i:], from) && boundary(s, i-1) && boundary(s, i+len(from)) {
			b.WriteString(to)
			i += len(from)
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

func boundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	return !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9')
}
