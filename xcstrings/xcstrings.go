// Package xcstrings implements reading and writing of Apple String Catalog
// (.xcstrings) files.
//
// A string catalog is one JSON document holding every language's
// localizations under each key:
//
//	{
//	  "sourceLanguage" : "en",
//	  "strings" : {
//	    "Hello" : {
//	      "extractionState" : "manual",
//	      "localizations" : {
//	        "de" : { "stringUnit" : { "state" : "translated", "value" : "Hallo" } }
//	      }
//	    }
//	  },
//	  "version" : "1.0"
//	}
//
// Because a single file carries all target languages, the first-class
// operations here are extracting one locale's entries and replacing only
// that locale's localizations. Every other language's data and all per-key
// metadata (extractionState, comment, variations) are preserved exactly;
// WithLocale has value semantics and returns a new catalog, leaving the
// receiver untouched.
//
// Serialization matches Xcode's layout: two-space indentation and a space
// before each colon.
package xcstrings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/TedyHub/langsync/kv"
)

// ---------------------------------------------------------------------------
// Ordered JSON tree
// ---------------------------------------------------------------------------

type nodeKind int

const (
	nodeObject nodeKind = iota
	nodeArray
	nodeString
	nodeRaw
)

type node struct {
	kind     nodeKind
	str      string
	raw      json.RawMessage
	keys     []string
	children map[string]*node
	items    []*node
}

func decodeRaw(raw json.RawMessage) (*node, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}
	switch trimmed[0] {
	case '{':
		n := &node{kind: nodeObject, children: make(map[string]*node)}
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("expected string key, got %T", keyTok)
			}
			var childRaw json.RawMessage
			if err := dec.Decode(&childRaw); err != nil {
				return nil, fmt.Errorf("value for key %q: %w", key, err)
			}
			child, err := decodeRaw(childRaw)
			if err != nil {
				return nil, err
			}
			if _, dup := n.children[key]; !dup {
				n.keys = append(n.keys, key)
			}
			n.children[key] = child
		}
		return n, nil
	case '[':
		n := &node{kind: nodeArray}
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		for dec.More() {
			var itemRaw json.RawMessage
			if err := dec.Decode(&itemRaw); err != nil {
				return nil, err
			}
			item, err := decodeRaw(itemRaw)
			if err != nil {
				return nil, err
			}
			n.items = append(n.items, item)
		}
		return n, nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		return &node{kind: nodeString, str: s}, nil
	default:
		return &node{kind: nodeRaw, raw: append(json.RawMessage(nil), trimmed...)}, nil
	}
}

func (n *node) clone() *node {
	cp := &node{kind: n.kind, str: n.str}
	if n.raw != nil {
		cp.raw = append(json.RawMessage(nil), n.raw...)
	}
	if n.kind == nodeObject {
		cp.children = make(map[string]*node, len(n.children))
		cp.keys = append([]string(nil), n.keys...)
		for k, c := range n.children {
			cp.children[k] = c.clone()
		}
	}
	if n.kind == nodeArray {
		cp.items = make([]*node, len(n.items))
		for i, c := range n.items {
			cp.items[i] = c.clone()
		}
	}
	return cp
}

// child returns the named object child, or nil.
func (n *node) child(key string) *node {
	if n == nil || n.kind != nodeObject {
		return nil
	}
	return n.children[key]
}

// setChild sets an object child, appending the key when new.
func (n *node) setChild(key string, c *node) {
	if _, dup := n.children[key]; !dup {
		n.keys = append(n.keys, key)
	}
	n.children[key] = c
}

func newObject() *node {
	return &node{kind: nodeObject, children: make(map[string]*node)}
}

func stringNode(s string) *node { return &node{kind: nodeString, str: s} }

// ---------------------------------------------------------------------------
// File model
// ---------------------------------------------------------------------------

// File represents a parsed string catalog.
type File struct {
	root *node
}

// Parse parses an .xcstrings catalog.
func Parse(data []byte) (*File, error) {
	root, err := decodeRaw(data)
	if err != nil {
		return nil, fmt.Errorf("parsing xcstrings: %w", err)
	}
	if root.kind != nodeObject {
		return nil, fmt.Errorf("parsing xcstrings: root must be an object")
	}
	return &File{root: root}, nil
}

// SourceLanguage returns the catalog's sourceLanguage value.
func (f *File) SourceLanguage() string {
	if n := f.root.child("sourceLanguage"); n != nil && n.kind == nodeString {
		return n.str
	}
	return ""
}

// Keys returns the catalog's string keys in document order.
func (f *File) Keys() []string {
	strs := f.root.child("strings")
	if strs == nil {
		return nil
	}
	return append([]string(nil), strs.keys...)
}

// HasLocale reports whether any key carries a localization for locale.
func (f *File) HasLocale(locale string) bool {
	strs := f.root.child("strings")
	if strs == nil {
		return false
	}
	for _, key := range strs.keys {
		if strs.children[key].child("localizations").child(locale) != nil {
			return true
		}
	}
	return false
}

// EntriesFor returns the key/value pairs for one locale. For the source
// language, a key with no stored localization falls back to the key text
// itself (Xcode's convention for extracted source strings). For any other
// locale, keys without a stored value are omitted.
func (f *File) EntriesFor(locale string) []kv.KeyValue {
	strs := f.root.child("strings")
	if strs == nil {
		return nil
	}
	isSource := locale == f.SourceLanguage()

	var out []kv.KeyValue
	for _, key := range strs.keys {
		unit := strs.children[key].child("localizations").child(locale).child("stringUnit")
		if value := unit.child("value"); value != nil && value.kind == nodeString {
			out = append(out, kv.KeyValue{Key: key, Value: value.str})
			continue
		}
		if isSource {
			out = append(out, kv.KeyValue{Key: key, Value: key})
		}
	}
	return out
}

// Entries returns the source-language pairs.
func (f *File) Entries() []kv.KeyValue {
	return f.EntriesFor(f.SourceLanguage())
}

// WithLocale returns a new catalog in which locale's stringUnit values are
// replaced by updates. Keys not present in the catalog are ignored; all
// other locales and all per-key metadata are carried over untouched.
func (f *File) WithLocale(locale string, updates []kv.KeyValue) *File {
	out := &File{root: f.root.clone()}
	strs := out.root.child("strings")
	if strs == nil {
		return out
	}
	for _, u := range updates {
		entry := strs.child(u.Key)
		if entry == nil || entry.kind != nodeObject {
			continue
		}
		locs := entry.child("localizations")
		if locs == nil {
			locs = newObject()
			entry.setChild("localizations", locs)
		}
		loc := locs.child(locale)
		if loc == nil || loc.kind != nodeObject {
			loc = newObject()
			locs.setChild(locale, loc)
		}
		unit := loc.child("stringUnit")
		if unit == nil || unit.kind != nodeObject {
			unit = newObject()
			loc.setChild("stringUnit", unit)
		}
		unit.setChild("state", stringNode("translated"))
		unit.setChild("value", stringNode(u.Value))
	}
	return out
}

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

// Marshal serialises the catalog in Xcode's layout.
func (f *File) Marshal() ([]byte, error) {
	var b strings.Builder
	writeNode(&b, f.root, 0)
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

func writeNode(b *strings.Builder, n *node, depth int) {
	indent := strings.Repeat("  ", depth)
	switch n.kind {
	case nodeObject:
		if len(n.keys) == 0 {
			b.WriteString("{\n\n" + indent + "}")
			return
		}
		b.WriteString("{\n")
		for i, k := range n.keys {
			b.WriteString(indent)
			b.WriteString("  ")
			b.WriteString(jsonString(k))
			b.WriteString(" : ")
			writeNode(b, n.children[k], depth+1)
			if i < len(n.keys)-1 {
				b.WriteByte(',')
			}
			b.WriteByte('\n')
		}
		b.WriteString(indent)
		b.WriteByte('}')
	case nodeArray:
		if len(n.items) == 0 {
			b.WriteString("[]")
			return
		}
		b.WriteString("[\n")
		for i, item := range n.items {
			b.WriteString(indent)
			b.WriteString("  ")
			writeNode(b, item, depth+1)
			if i < len(n.items)-1 {
				b.WriteByte(',')
			}
			b.WriteByte('\n')
		}
		b.WriteString(indent)
		b.WriteByte(']')
	case nodeString:
		b.WriteString(jsonString(n.str))
	case nodeRaw:
		b.Write(n.raw)
	}
}

func jsonString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}

// ---------------------------------------------------------------------------
// Codec
// ---------------------------------------------------------------------------

// Codec implements the kv.Codec contract for .xcstrings catalogs.
//
// The catalog is both the source file and every target's file: Merge
// ignores source and applies updates to target's locale lang. The engine
// re-reads the on-disk catalog before each per-language merge so sequential
// writes never clobber each other.
type Codec struct{}

// Name returns the codec identifier.
func (Codec) Name() string { return "xcstrings" }

// Parse implements kv.Codec.
func (Codec) Parse(data []byte) (kv.Document, error) { return Parse(data) }

// Merge replaces lang's localizations in target with updates and
// serialises the result. All other languages' entries stay byte-identical.
func (Codec) Merge(source, target kv.Document, updates []kv.KeyValue, lang string) ([]byte, error) {
	doc := target
	if doc == nil {
		doc = source
	}
	cat, ok := doc.(*File)
	if !ok {
		return nil, &kv.WrongDocumentError{Codec: "xcstrings", Doc: doc}
	}
	return cat.WithLocale(lang, updates).Marshal()
}
