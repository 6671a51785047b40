// Package stringsfile implements reading and writing of Apple .strings
// localization files.
//
// The format is a sequence of
//
//	/* comment */
//	"key" = "value";
//
// pairs. Block (/* */) and line (//) comments immediately preceding an
// entry are captured per key. A comment appearing before the very first
// entry is classified as a file header when it reads like one (contains
// "copyright", "license" or "generated"); ambiguous cases stay per-key.
//
// The scanner is hand-written and tolerant: malformed entries (missing '=',
// unterminated string) are skipped without aborting the rest of the file.
// Escape handling: \n \t \r \" \\ plus \U/\u followed by four hex digits
// decode to the corresponding character; unknown escapes pass through
// literally, backslash included.
package stringsfile

import (
	"strconv"
	"strings"

	"github.com/TedyHub/langsync/kv"
)

// ---------------------------------------------------------------------------
// File model
// ---------------------------------------------------------------------------

// entry is a single "key" = "value"; pair with its preceding comment.
type entry struct {
	key     string
	value   string
	comment string // raw comment text including delimiters, "" if none
	gap     int    // blank lines before this entry
}

// File represents a parsed .strings file.
type File struct {
	header  string // file header comment, "" if none
	entries []entry
	index   map[string]int
}

// Header returns the file header comment (raw, including delimiters).
func (f *File) Header() string { return f.header }

// Comment returns the comment attached to key, if any.
func (f *File) Comment(key string) (string, bool) {
	if idx, ok := f.index[key]; ok && f.entries[idx].comment != "" {
		return f.entries[idx].comment, true
	}
	return "", false
}

// Entries returns the translatable pairs in document order.
func (f *File) Entries() []kv.KeyValue {
	out := make([]kv.KeyValue, len(f.entries))
	for i, e := range f.entries {
		out[i] = kv.KeyValue{Key: e.key, Value: e.value}
	}
	return out
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// Parse scans .strings content. Malformed constructs are skipped, never
// fatal.
func Parse(data []byte) (*File, error) {
	f := &File{index: make(map[string]int)}
	s := &scanner{src: string(data)}

	pendingComment := ""
	pendingGap := 0
	seenEntry := false

	for {
		gap := s.skipBlank()
		if s.done() {
			break
		}

		switch {
		case s.has("/*"):
			c, ok := s.blockComment()
			if !ok {
				// Unterminated comment swallows the rest of the file.
				return f, nil
			}
			pendingComment, pendingGap = accumulate(f, pendingComment, pendingGap, c, gap, seenEntry)

		case s.has("//"):
			c := s.lineComment()
			pendingComment, pendingGap = accumulate(f, pendingComment, pendingGap, c, gap, seenEntry)

		case s.has(`"`):
			key, value, ok := s.entry()
			comment := pendingComment
			entryGap := gap
			if pendingComment != "" {
				entryGap = pendingGap
			}
			pendingComment, pendingGap = "", 0
			if !ok {
				continue // malformed entry skipped
			}
			if !seenEntry && f.header == "" && comment != "" && looksLikeHeader(comment) {
				f.header = comment
				comment = ""
			}
			seenEntry = true
			if _, dup := f.index[key]; dup {
				continue // duplicate key: first occurrence wins
			}
			f.index[key] = len(f.entries)
			f.entries = append(f.entries, entry{key: key, value: value, comment: comment, gap: entryGap})

		default:
			// Stray token — skip to next line.
			s.skipLine()
			pendingComment, pendingGap = "", 0
		}
	}

	return f, nil
}

// accumulate folds a freshly scanned comment into the pending one. A
// header-looking comment at the top of the file, separated from the next
// comment by a blank line, is promoted to the file header instead of
// sticking to the first key.
func accumulate(f *File, pending string, pendingGap int, c string, gap int, seenEntry bool) (string, int) {
	if pending == "" {
		return c, gap
	}
	if !seenEntry && f.header == "" && gap > 0 && looksLikeHeader(pending) {
		f.header = pending
		return c, gap
	}
	return pending + "\n" + c, pendingGap
}

// looksLikeHeader recognises boilerplate file headers. Ambiguous comments
// default to per-key.
func looksLikeHeader(c string) bool {
	lower := strings.ToLower(c)
	for _, word := range []string{"copyright", "license", "licence", "generated"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Scanner
// ---------------------------------------------------------------------------

type scanner struct {
	src string
	pos int
}

func (s *scanner) done() bool { return s.pos >= len(s.src) }

func (s *scanner) has(prefix string) bool {
	return strings.HasPrefix(s.src[s.pos:], prefix)
}

// skipBlank consumes whitespace and returns the number of blank lines
// crossed beyond the first newline.
func (s *scanner) skipBlank() int {
	newlines := 0
	for s.pos < len(s.src) {
		switch s.src[s.pos] {
		case ' ', '\t', '\r':
			s.pos++
		case '\n':
			newlines++
			s.pos++
		default:
			if newlines > 1 {
				return newlines - 1
			}
			return 0
		}
	}
	return 0
}

func (s *scanner) skipLine() {
	for s.pos < len(s.src) && s.src[s.pos] != '\n' {
		s.pos++
	}
}

// blockComment consumes a /* ... */ comment and returns its raw text.
func (s *scanner) blockComment() (string, bool) {
	end := strings.Index(s.src[s.pos:], "*/")
	if end < 0 {
		s.pos = len(s.src)
		return "", false
	}
	raw := s.src[s.pos : s.pos+end+2]
	s.pos += end + 2
	return raw, true
}

// lineComment consumes a // comment up to end of line.
func (s *scanner) lineComment() string {
	start := s.pos
	s.skipLine()
	return strings.TrimRight(s.src[start:s.pos], "\r")
}

// entry parses "key" = "value"; starting at a double quote. Returns
// ok=false for malformed entries, leaving the scanner past the construct.
func (s *scanner) entry() (key, value string, ok bool) {
	key, ok = s.quoted()
	if !ok {
		return "", "", false
	}
	s.skipSpaces()
	if s.done() || s.src[s.pos] != '=' {
		s.recover()
		return "", "", false
	}
	s.pos++
	s.skipSpaces()
	if s.done() || s.src[s.pos] != '"' {
		s.recover()
		return "", "", false
	}
	value, ok = s.quoted()
	if !ok {
		return "", "", false
	}
	s.skipSpaces()
	if !s.done() && s.src[s.pos] == ';' {
		s.pos++
	}
	return key, value, true
}

func (s *scanner) skipSpaces() {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if c != ' ' && c != '\t' {
			return
		}
		s.pos++
	}
}

// recover skips to just past the next ';' or end of line.
func (s *scanner) recover() {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		s.pos++
		if c == ';' || c == '\n' {
			return
		}
	}
}

// quoted parses a double-quoted string with escape decoding. The scanner
// must be positioned at the opening quote.
func (s *scanner) quoted() (string, bool) {
	if s.done() || s.src[s.pos] != '"' {
		return "", false
	}
	s.pos++
	var b strings.Builder
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch c {
		case '"':
			s.pos++
			return b.String(), true
		case '\n':
			// Unterminated string — malformed entry.
			return "", false
		case '\\':
			s.pos++
			if s.done() {
				return "", false
			}
			b.WriteString(decodeEscape(s))
		default:
			b.WriteByte(c)
			s.pos++
		}
	}
	return "", false
}

// decodeEscape decodes the escape whose introducing backslash was already
// consumed. Unknown escapes are passed through literally.
func decodeEscape(s *scanner) string {
	c := s.src[s.pos]
	s.pos++
	switch c {
	case 'n':
		return "\n"
	case 't':
		return "\t"
	case 'r':
		return "\r"
	case '"':
		return `"`
	case '\\':
		return `\`
	case 'U', 'u':
		if s.pos+4 <= len(s.src) {
			if code, err := strconv.ParseUint(s.src[s.pos:s.pos+4], 16, 32); err == nil {
				s.pos += 4
				return string(rune(code))
			}
		}
		return `\` + string(c)
	default:
		return `\` + string(c)
	}
}

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

// Marshal serialises the file: header, blank-line gaps, per-key comments
// and escaped "key" = "value"; pairs.
func (f *File) Marshal() ([]byte, error) {
	var b strings.Builder
	if f.header != "" {
		b.WriteString(f.header)
		b.WriteString("\n\n")
	}
	for i, e := range f.entries {
		if i > 0 {
			for g := 0; g < e.gap; g++ {
				b.WriteByte('\n')
			}
		}
		if e.comment != "" {
			b.WriteString(e.comment)
			b.WriteByte('\n')
		}
		b.WriteString(encode(e.key))
		b.WriteString(" = ")
		b.WriteString(encode(e.value))
		b.WriteString(";\n")
	}
	return []byte(b.String()), nil
}

// encode emits a double-quoted string escaping the characters the decoder
// understands.
func encode(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// ---------------------------------------------------------------------------
// Codec
// ---------------------------------------------------------------------------

// Codec implements the kv.Codec contract for .strings files.
type Codec struct{}

// Name returns the codec identifier.
func (Codec) Name() string { return "strings" }

// Parse implements kv.Codec.
func (Codec) Parse(data []byte) (kv.Document, error) { return Parse(data) }

// Merge rebuilds the target from the source structure: comments, header and
// entry order come from source; translated values from updates win, existing
// target values are kept for untouched keys, keys absent from source are
// pruned.
func (Codec) Merge(source, target kv.Document, updates []kv.KeyValue, lang string) ([]byte, error) {
	src, ok := source.(*File)
	if !ok {
		return nil, &kv.WrongDocumentError{Codec: "strings", Doc: source}
	}
	var tgt *File
	if target != nil {
		if tgt, ok = target.(*File); !ok {
			return nil, &kv.WrongDocumentError{Codec: "strings", Doc: target}
		}
	}

	updated := kv.Map(updates)
	var existing map[string]string
	if tgt != nil {
		existing = kv.Map(tgt.Entries())
	}

	out := &File{header: src.header, index: make(map[string]int)}
	for _, e := range src.entries {
		cp := e
		switch {
		case updated[e.key] != "":
			cp.value = updated[e.key]
		case existing[e.key] != "":
			cp.value = existing[e.key]
		default:
			cp.value = ""
		}
		out.index[cp.key] = len(out.entries)
		out.entries = append(out.entries, cp)
	}
	return out.Marshal()
}
