// Package stringsdict implements reading and writing of Apple .stringsdict
// plural-dictionary files.
//
// The format is the restricted XML-plist subset Xcode emits for plural
// rules: <dict>, <key> and <string> elements only. Each top-level key owns
// a NSStringLocalizedFormatKey format string plus one or more named plural
// rules; each rule carries NSStringFormatSpecTypeKey, an optional
// NSStringFormatValueTypeKey, and string variants over the six CLDR plural
// categories (zero, one, two, few, many, other).
//
// The parser is a recursive-descent scanner over balanced <dict> blocks,
// not a general XML parser. For translation transport, entries flatten to
// synthetic dotted keys:
//
//	entry.__formatKey         — the format string
//	entry.ruleName.variant    — each present variant
//
// Merge is the exact inverse: a variant with no new translation falls back
// to the existing target value, then the source value. Variants absent from
// the source are never invented.
package stringsdict

import (
	"fmt"
	"strings"

	"github.com/TedyHub/langsync/kv"
)

// FormatKeySuffix is the synthetic path segment carrying the
// NSStringLocalizedFormatKey value.
const FormatKeySuffix = "__formatKey"

// variantOrder is the canonical CLDR category order used on output.
var variantOrder = []string{"zero", "one", "two", "few", "many", "other"}

// ---------------------------------------------------------------------------
// File model
// ---------------------------------------------------------------------------

// Rule is one named plural rule inside an entry.
type Rule struct {
	Name      string
	SpecType  string            // NSStringFormatSpecTypeKey
	ValueType string            // NSStringFormatValueTypeKey, "" if absent
	Variants  map[string]string // CLDR category → string
	order     []string          // variant order from the source file
}

// Entry is one top-level key with its format string and plural rules.
type Entry struct {
	Key       string
	FormatKey string
	Rules     []Rule
}

// File represents a parsed .stringsdict file.
type File struct {
	entries []Entry
	index   map[string]int
}

// Entries returns the flattened translatable pairs: the format key first,
// then each variant, per entry in document order.
func (f *File) Entries() []kv.KeyValue {
	var out []kv.KeyValue
	for _, e := range f.entries {
		out = append(out, kv.KeyValue{Key: e.Key + "." + FormatKeySuffix, Value: e.FormatKey})
		for _, r := range e.Rules {
			for _, variant := range r.order {
				out = append(out, kv.KeyValue{
					Key:   e.Key + "." + r.Name + "." + variant,
					Value: r.Variants[variant],
				})
			}
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// Parse parses .stringsdict content. Entries with an unrecognised shape are
// skipped rather than failing the file.
func Parse(data []byte) (*File, error) {
	f := &File{index: make(map[string]int)}

	body, err := topLevelDict(string(data))
	if err != nil {
		return nil, err
	}

	pairs, err := dictPairs(body)
	if err != nil {
		return nil, fmt.Errorf("parsing stringsdict: %w", err)
	}

	for _, p := range pairs {
		if !p.isDict {
			continue // top-level keys must map to entry dicts
		}
		e, ok := parseEntry(p.key, p.value)
		if !ok {
			continue
		}
		if _, dup := f.index[e.Key]; dup {
			continue
		}
		f.index[e.Key] = len(f.entries)
		f.entries = append(f.entries, e)
	}

	return f, nil
}

// topLevelDict extracts the body of the outermost <dict> element.
func topLevelDict(src string) (string, error) {
	start := strings.Index(src, "<dict>")
	if start < 0 {
		return "", fmt.Errorf("parsing stringsdict: no <dict> element")
	}
	body, _, err := balancedDict(src[start:])
	if err != nil {
		return "", fmt.Errorf("parsing stringsdict: %w", err)
	}
	return body, nil
}

// balancedDict returns the inner body of the <dict> block that s starts
// with, plus the remainder after its closing tag. Nesting is tracked by
// depth counting, not by XML parsing.
func balancedDict(s string) (body, rest string, err error) {
	const openTag, closeTag = "<dict>", "</dict>"
	if !strings.HasPrefix(s, openTag) {
		return "", "", fmt.Errorf("expected <dict>")
	}
	depth := 0
	i := 0
	for i < len(s) {
		switch {
		case strings.HasPrefix(s[i:], openTag):
			depth++
			i += len(openTag)
		case strings.HasPrefix(s[i:], closeTag):
			depth--
			if depth == 0 {
				return s[len(openTag):i], s[i+len(closeTag):], nil
			}
			i += len(closeTag)
		default:
			i++
		}
	}
	return "", "", fmt.Errorf("unbalanced <dict>")
}

// pair is one <key>…</key> plus its following value element.
type pair struct {
	key    string
	value  string // inner text (<string>) or inner body (<dict>)
	isDict bool
}

// dictPairs splits a dict body into key/value pairs.
func dictPairs(body string) ([]pair, error) {
	var pairs []pair
	s := body
	for {
		keyStart := strings.Index(s, "<key>")
		if keyStart < 0 {
			return pairs, nil
		}
		keyEnd := strings.Index(s[keyStart:], "</key>")
		if keyEnd < 0 {
			return pairs, nil // truncated key: drop the remainder
		}
		key := unescapeXML(s[keyStart+len("<key>") : keyStart+keyEnd])
		s = s[keyStart+keyEnd+len("</key>"):]

		rest := strings.TrimLeft(s, " \t\r\n")
		switch {
		case strings.HasPrefix(rest, "<string>"):
			end := strings.Index(rest, "</string>")
			if end < 0 {
				return pairs, nil
			}
			pairs = append(pairs, pair{
				key:   key,
				value: unescapeXML(rest[len("<string>"):end]),
			})
			s = rest[end+len("</string>"):]

		case strings.HasPrefix(rest, "<string/>"):
			pairs = append(pairs, pair{key: key})
			s = rest[len("<string/>"):]

		case strings.HasPrefix(rest, "<dict>"):
			inner, remainder, err := balancedDict(rest)
			if err != nil {
				return pairs, err
			}
			pairs = append(pairs, pair{key: key, value: inner, isDict: true})
			s = remainder

		default:
			// Unsupported value element — skip this key.
			s = rest
		}
	}
}

// parseEntry builds an Entry from a top-level key's dict body.
func parseEntry(key, body string) (Entry, bool) {
	pairs, err := dictPairs(body)
	if err != nil {
		return Entry{}, false
	}
	e := Entry{Key: key}
	for _, p := range pairs {
		switch {
		case p.key == "NSStringLocalizedFormatKey" && !p.isDict:
			e.FormatKey = p.value
		case p.isDict:
			if r, ok := parseRule(p.key, p.value); ok {
				e.Rules = append(e.Rules, r)
			}
		}
	}
	if e.FormatKey == "" && len(e.Rules) == 0 {
		return Entry{}, false
	}
	return e, true
}

// parseRule builds a Rule from a rule dict body.
func parseRule(name, body string) (Rule, bool) {
	pairs, err := dictPairs(body)
	if err != nil {
		return Rule{}, false
	}
	r := Rule{Name: name, Variants: make(map[string]string)}
	for _, p := range pairs {
		if p.isDict {
			continue
		}
		switch p.key {
		case "NSStringFormatSpecTypeKey":
			r.SpecType = p.value
		case "NSStringFormatValueTypeKey":
			r.ValueType = p.value
		case "zero", "one", "two", "few", "many", "other":
			if _, dup := r.Variants[p.key]; !dup {
				r.order = append(r.order, p.key)
			}
			r.Variants[p.key] = p.value
		}
	}
	if r.SpecType == "" && len(r.Variants) == 0 {
		return Rule{}, false
	}
	return r, true
}

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

const plistHeader = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
`

// Marshal serialises the file in Xcode's canonical plist layout with tab
// indentation.
func (f *File) Marshal() ([]byte, error) {
	var b strings.Builder
	b.WriteString(plistHeader)
	b.WriteString("<dict>\n")
	for _, e := range f.entries {
		fmt.Fprintf(&b, "\t<key>%s</key>\n", escapeXML(e.Key))
		b.WriteString("\t<dict>\n")
		fmt.Fprintf(&b, "\t\t<key>NSStringLocalizedFormatKey</key>\n\t\t<string>%s</string>\n", escapeXML(e.FormatKey))
		for _, r := range e.Rules {
			fmt.Fprintf(&b, "\t\t<key>%s</key>\n", escapeXML(r.Name))
			b.WriteString("\t\t<dict>\n")
			fmt.Fprintf(&b, "\t\t\t<key>NSStringFormatSpecTypeKey</key>\n\t\t\t<string>%s</string>\n", escapeXML(r.SpecType))
			if r.ValueType != "" {
				fmt.Fprintf(&b, "\t\t\t<key>NSStringFormatValueTypeKey</key>\n\t\t\t<string>%s</string>\n", escapeXML(r.ValueType))
			}
			for _, variant := range r.order {
				fmt.Fprintf(&b, "\t\t\t<key>%s</key>\n\t\t\t<string>%s</string>\n", variant, escapeXML(r.Variants[variant]))
			}
			b.WriteString("\t\t</dict>\n")
		}
		b.WriteString("\t</dict>\n")
	}
	b.WriteString("</dict>\n</plist>\n")
	return []byte(b.String()), nil
}

func escapeXML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

func unescapeXML(s string) string {
	r := strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")
	return r.Replace(s)
}

// ---------------------------------------------------------------------------
// Codec
// ---------------------------------------------------------------------------

// Codec implements the kv.Codec contract for .stringsdict files.
type Codec struct{}

// Name returns the codec identifier.
func (Codec) Name() string { return "stringsdict" }

// Parse implements kv.Codec.
func (Codec) Parse(data []byte) (kv.Document, error) { return Parse(data) }

// Merge rebuilds the target from the source structure. Each format key and
// variant takes its translated value from updates, falling back to the
// existing target value and then the source value. Entries, rules and
// variants absent from source are pruned; variants absent from source are
// never created even when updates carry them.
func (Codec) Merge(source, target kv.Document, updates []kv.KeyValue, lang string) ([]byte, error) {
	src, ok := source.(*File)
	if !ok {
		return nil, &kv.WrongDocumentError{Codec: "stringsdict", Doc: source}
	}
	var tgt *File
	if target != nil {
		if tgt, ok = target.(*File); !ok {
			return nil, &kv.WrongDocumentError{Codec: "stringsdict", Doc: target}
		}
	}

	updated := kv.Map(updates)
	var existing map[string]string
	if tgt != nil {
		existing = kv.Map(tgt.Entries())
	}

	pick := func(key, sourceValue string) string {
		if v, ok := updated[key]; ok && v != "" {
			return v
		}
		if v, ok := existing[key]; ok && v != "" {
			return v
		}
		return sourceValue
	}

	out := &File{index: make(map[string]int)}
	for _, e := range src.entries {
		cp := Entry{
			Key:       e.Key,
			FormatKey: pick(e.Key+"."+FormatKeySuffix, e.FormatKey),
		}
		for _, r := range e.Rules {
			rc := Rule{
				Name:      r.Name,
				SpecType:  r.SpecType,
				ValueType: r.ValueType,
				Variants:  make(map[string]string, len(r.Variants)),
				order:     append([]string(nil), r.order...),
			}
			for _, variant := range r.order {
				rc.Variants[variant] = pick(e.Key+"."+r.Name+"."+variant, r.Variants[variant])
			}
			cp.Rules = append(cp.Rules, rc)
		}
		out.index[cp.Key] = len(out.entries)
		out.entries = append(out.entries, cp)
	}

	return out.Marshal()
}
