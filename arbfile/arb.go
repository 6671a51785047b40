// Package arbfile implements reading and writing of Flutter ARB
// (Application Resource Bundle) files.
//
// ARB files are JSON files with a specific structure:
//
//   - "@@locale" holds the BCP-47 language code (e.g. "en", "de").
//   - Keys starting with "@" (other than "@@locale") are metadata entries
//     (e.g. "@greeting") and are preserved verbatim — never translated.
//   - All other string values are translatable.
//
// Round-trip fidelity: key order from the source file is preserved and each
// "@key" metadata block immediately follows its translatable key. On merge
// the "@@locale" entry is always written first and carries the target
// language being written, not the source. Non-string values under non-"@"
// keys are excluded from translation (reported via SkippedKeys, not an
// error).
package arbfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/TedyHub/langsync/kv"
)

// ---------------------------------------------------------------------------
// File model
// ---------------------------------------------------------------------------

// entry is a single key in the ARB file.
type entry struct {
	key      string
	value    string          // decoded string value (translatable entries)
	isMeta   bool            // true for @-keys (metadata / @@locale)
	isString bool            // false for non-string non-@ values (skipped)
	rawValue json.RawMessage // original JSON value bytes
}

// File represents a parsed ARB file.
type File struct {
	locale  string
	entries []entry
	index   map[string]int
	skipped []string // non-string non-@ keys excluded from translation
}

// Locale returns the @@locale value.
func (f *File) Locale() string { return f.locale }

// SkippedKeys returns non-"@" keys whose values are not strings. They are
// preserved verbatim but never sent for translation.
func (f *File) SkippedKeys() []string { return append([]string(nil), f.skipped...) }

// Entries returns the translatable pairs in document order.
func (f *File) Entries() []kv.KeyValue {
	var out []kv.KeyValue
	for _, e := range f.entries {
		if !e.isMeta && e.isString {
			out = append(out, kv.KeyValue{Key: e.key, Value: e.value})
		}
	}
	return out
}

// Metadata returns the verbatim JSON blob for "@"+key, if present.
func (f *File) Metadata(key string) (json.RawMessage, bool) {
	if idx, ok := f.index["@"+key]; ok {
		return f.entries[idx].rawValue, true
	}
	return nil, false
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// Parse parses ARB content. Key order is preserved via json.Decoder token
// streaming; metadata values are kept as raw bytes.
func Parse(data []byte) (*File, error) {
	f := &File{index: make(map[string]int)}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parsing ARB: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("parsing ARB: expected '{', got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parsing ARB key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("parsing ARB: expected string key, got %T", keyTok)
		}

		var rawVal json.RawMessage
		if err := dec.Decode(&rawVal); err != nil {
			return nil, fmt.Errorf("parsing ARB value for %q: %w", key, err)
		}

		e := entry{
			key:      key,
			isMeta:   strings.HasPrefix(key, "@"),
			rawValue: rawVal,
		}
		if key == "@@locale" {
			var s string
			_ = json.Unmarshal(rawVal, &s)
			f.locale = s
		}
		if !e.isMeta {
			var s string
			if err := json.Unmarshal(rawVal, &s); err == nil {
				e.value = s
				e.isString = true
			} else {
				f.skipped = append(f.skipped, key)
			}
		}

		f.index[key] = len(f.entries)
		f.entries = append(f.entries, e)
	}

	return f, nil
}

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

// Marshal serialises the ARB file with 2-space indentation. The @@locale
// key is always written first; each "@key" metadata block immediately
// follows its translatable key.
func (f *File) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{\n")

	first := true
	writePair := func(key string, raw json.RawMessage, meta bool) {
		if !first {
			buf.WriteString(",\n")
		}
		first = false
		keyBytes, _ := json.Marshal(key)
		buf.WriteString("  ")
		buf.Write(keyBytes)
		buf.WriteString(": ")
		if meta {
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, raw, "  ", "  "); err != nil {
				buf.Write(raw)
			} else {
				buf.Write(pretty.Bytes())
			}
		} else {
			buf.Write(raw)
		}
	}

	if f.locale != "" {
		raw, _ := json.Marshal(f.locale)
		writePair("@@locale", raw, false)
	}

	for _, e := range f.entries {
		if e.key == "@@locale" {
			continue
		}
		// Per-key metadata is emitted right after its key below, not here.
		if e.isMeta && !strings.HasPrefix(e.key, "@@") {
			if _, owns := f.index[strings.TrimPrefix(e.key, "@")]; owns {
				continue
			}
		}
		raw := e.rawValue
		if !e.isMeta && e.isString {
			raw, _ = json.Marshal(e.value)
		}
		writePair(e.key, raw, e.isMeta)

		if !e.isMeta {
			if metaIdx, ok := f.index["@"+e.key]; ok {
				m := f.entries[metaIdx]
				writePair(m.key, m.rawValue, true)
			}
		}
	}

	buf.WriteString("\n}\n")
	return buf.Bytes(), nil
}

// ---------------------------------------------------------------------------
// Codec
// ---------------------------------------------------------------------------

// Codec implements the kv.Codec contract for ARB files.
type Codec struct{}

// Name returns the codec identifier.
func (Codec) Name() string { return "arb" }

// Parse implements kv.Codec.
func (Codec) Parse(data []byte) (kv.Document, error) { return Parse(data) }

// Merge rebuilds the target ARB from the source structure: @@locale is set
// to lang, metadata is carried verbatim from source, translated values from
// updates win, existing target translations are kept for untouched keys and
// keys absent from source are pruned.
func (Codec) Merge(source, target kv.Document, updates []kv.KeyValue, lang string) ([]byte, error) {
	src, ok := source.(*File)
	if !ok {
		return nil, &kv.WrongDocumentError{Codec: "arb", Doc: source}
	}
	var tgt *File
	if target != nil {
		if tgt, ok = target.(*File); !ok {
			return nil, &kv.WrongDocumentError{Codec: "arb", Doc: target}
		}
	}

	updated := kv.Map(updates)
	var existing map[string]string
	if tgt != nil {
		existing = kv.Map(tgt.Entries())
	}

	out := &File{locale: lang, index: make(map[string]int)}
	for _, e := range src.entries {
		if e.key == "@@locale" {
			continue
		}
		cp := e
		if !e.isMeta && e.isString {
			switch {
			case updated[e.key] != "":
				cp.value = updated[e.key]
			case existing[e.key] != "":
				cp.value = existing[e.key]
			default:
				cp.value = ""
			}
			cp.rawValue, _ = json.Marshal(cp.value)
		}
		out.index[cp.key] = len(out.entries)
		out.entries = append(out.entries, cp)
	}
	out.skipped = append([]string(nil), src.skipped...)

	return out.Marshal()
}
