// Package jsonfile implements reading and writing of flat and nested JSON
// translation files.
//
// Two layouts are supported and detected per file at parse time:
//
//	{ "nav.home": "Home", "nav.about": "About" }      (flat)
//	{ "nav": { "home": "Home", "about": "About" } }   (nested)
//
// A file is flat when no root value is an object or array. The decision is
// remembered and echoed back unchanged on reconstruction. Nested objects
// and arrays flatten to dotted keys (array indices become path segments);
// unflattening is the exact inverse, creating arrays when the next path
// segment is numeric.
//
// Round-trip fidelity: indentation is detected from the first indented
// line, the trailing newline from the final byte, and key order is the
// depth-first flattened order of the original document. All three are
// preserved exactly on write. Non-string leaves (numbers, booleans, null)
// are carried through verbatim and never translated.
package jsonfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
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
	nodeRaw // number, boolean, null — preserved verbatim
)

// node is one value in the ordered JSON tree.
type node struct {
	kind     nodeKind
	str      string           // nodeString
	raw      json.RawMessage  // nodeRaw
	keys     []string         // nodeObject: key order
	children map[string]*node // nodeObject
	items    []*node          // nodeArray
}

// decodeValue reads one JSON value from dec into an ordered node.
func decodeValue(dec *json.Decoder) (*node, error) {
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return decodeRaw(raw)
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
		if _, err := dec.Token(); err != nil { // consume '{'
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
			child, err := decodeValue(dec)
			if err != nil {
				return nil, fmt.Errorf("value for key %q: %w", key, err)
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
		if _, err := dec.Token(); err != nil { // consume '['
			return nil, err
		}
		for dec.More() {
			item, err := decodeValue(dec)
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

// ---------------------------------------------------------------------------
// File model
// ---------------------------------------------------------------------------

// File represents a parsed JSON translation file.
type File struct {
	root            *node
	flat            bool
	indent          string
	trailingNewline bool
	entries         []kv.KeyValue // flattened string leaves in document order
}

func (f *File) clone() *File {
	return &File{
		root:            f.root.clone(),
		flat:            f.flat,
		indent:          f.indent,
		trailingNewline: f.trailingNewline,
		entries:         append([]kv.KeyValue(nil), f.entries...),
	}
}

// Flat reports whether the file uses the flat dotted-key layout.
func (f *File) Flat() bool { return f.flat }

// Entries returns the translatable pairs in depth-first document order.
func (f *File) Entries() []kv.KeyValue {
	return append([]kv.KeyValue(nil), f.entries...)
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// Parse parses flat or nested JSON translation content.
func Parse(data []byte) (*File, error) {
	root, err := decodeRaw(data)
	if err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	if root.kind != nodeObject {
		return nil, fmt.Errorf("parsing JSON: root must be an object")
	}

	f := &File{
		root:            root,
		flat:            detectFlat(root),
		indent:          detectIndent(data),
		trailingNewline: len(data) > 0 && data[len(data)-1] == '\n',
	}
	f.entries = flattenEntries(root, f.flat)
	return f, nil
}

// detectFlat: a file is flat when no root value is an object or array.
func detectFlat(root *node) bool {
	for _, k := range root.keys {
		switch root.children[k].kind {
		case nodeObject, nodeArray:
			return false
		}
	}
	return true
}

// detectIndent inspects the first indented line. Defaults to two spaces.
func detectIndent(data []byte) string {
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" || len(trimmed) == len(line) {
			continue
		}
		return line[:len(line)-len(trimmed)]
	}
	return "  "
}

// flattenEntries walks the tree depth-first collecting string leaves.
// In flat mode root keys are taken literally (a dotted root key is one key,
// not a path).
func flattenEntries(root *node, flat bool) []kv.KeyValue {
	var out []kv.KeyValue
	if flat {
		for _, k := range root.keys {
			if c := root.children[k]; c.kind == nodeString {
				out = append(out, kv.KeyValue{Key: k, Value: c.str})
			}
		}
		return out
	}
	var walk func(n *node, prefix string)
	walk = func(n *node, prefix string) {
		switch n.kind {
		case nodeObject:
			for _, k := range n.keys {
				walk(n.children[k], joinPath(prefix, k))
			}
		case nodeArray:
			for i, item := range n.items {
				walk(item, joinPath(prefix, strconv.Itoa(i)))
			}
		case nodeString:
			out = append(out, kv.KeyValue{Key: prefix, Value: n.str})
		}
	}
	walk(root, "")
	return out
}

func joinPath(prefix, seg string) string {
	if prefix == "" {
		return seg
	}
	return prefix + "." + seg
}

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

// Marshal serialises the file with its original indentation, key order and
// trailing-newline state.
func (f *File) Marshal() ([]byte, error) {
	var b strings.Builder
	writeNode(&b, f.root, f.indent, 0)
	if f.trailingNewline {
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}

func writeNode(b *strings.Builder, n *node, indent string, depth int) {
	switch n.kind {
	case nodeObject:
		if len(n.keys) == 0 {
			b.WriteString("{}")
			return
		}
		b.WriteString("{\n")
		for i, k := range n.keys {
			b.WriteString(strings.Repeat(indent, depth+1))
			b.WriteString(jsonString(k))
			b.WriteString(": ")
			writeNode(b, n.children[k], indent, depth+1)
			if i < len(n.keys)-1 {
				b.WriteByte(',')
			}
			b.WriteByte('\n')
		}
		b.WriteString(strings.Repeat(indent, depth))
		b.WriteByte('}')

	case nodeArray:
		if len(n.items) == 0 {
			b.WriteString("[]")
			return
		}
		b.WriteString("[\n")
		for i, item := range n.items {
			b.WriteString(strings.Repeat(indent, depth+1))
			writeNode(b, item, indent, depth+1)
			if i < len(n.items)-1 {
				b.WriteByte(',')
			}
			b.WriteByte('\n')
		}
		b.WriteString(strings.Repeat(indent, depth))
		b.WriteByte(']')

	case nodeString:
		b.WriteString(jsonString(n.str))

	case nodeRaw:
		b.Write(n.raw)
	}
}

// jsonString JSON-encodes s without HTML escaping, matching what
// translation tooling writes to disk.
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

// Codec implements the kv.Codec contract for flat/nested JSON files.
type Codec struct{}

// Name returns the codec identifier.
func (Codec) Name() string { return "json" }

// Parse implements kv.Codec.
func (Codec) Parse(data []byte) (kv.Document, error) { return Parse(data) }

// Merge rebuilds the target file from the source structure: translated
// values from updates win, existing target values are kept for untouched
// keys, and keys absent from source are pruned. The target file's own
// layout (flat/nested, indentation, trailing newline) wins when it exists;
// a new file inherits the source's.
func (Codec) Merge(source, target kv.Document, updates []kv.KeyValue, lang string) ([]byte, error) {
	src, ok := source.(*File)
	if !ok {
		return nil, &kv.WrongDocumentError{Codec: "json", Doc: source}
	}
	var tgt *File
	if target != nil {
		if tgt, ok = target.(*File); !ok {
			return nil, &kv.WrongDocumentError{Codec: "json", Doc: target}
		}
	}

	updated := kv.Map(updates)
	var existing map[string]string
	if tgt != nil {
		existing = kv.Map(tgt.entries)
	}

	merged := src.clone()
	rewriteLeaves(merged.root, "", merged.flat, func(key, srcValue string) string {
		if v, ok := updated[key]; ok {
			return v
		}
		if v, ok := existing[key]; ok {
			return v
		}
		return ""
	})

	out := &File{
		root:            merged.root,
		flat:            merged.flat,
		indent:          merged.indent,
		trailingNewline: merged.trailingNewline,
	}
	if tgt != nil {
		out.indent = tgt.indent
		out.trailingNewline = tgt.trailingNewline
		if tgt.flat != src.flat {
			out.root = reshape(merged.root, src.flat, tgt.flat)
			out.flat = tgt.flat
		}
	}
	out.entries = flattenEntries(out.root, out.flat)
	return out.Marshal()
}

// rewriteLeaves replaces every string leaf with fn(flatKey, current).
func rewriteLeaves(n *node, prefix string, flat bool, fn func(key, value string) string) {
	switch n.kind {
	case nodeObject:
		for _, k := range n.keys {
			child := n.children[k]
			path := joinPath(prefix, k)
			if flat && prefix == "" {
				path = k
			}
			if child.kind == nodeString {
				child.str = fn(path, child.str)
			} else if !flat {
				rewriteLeaves(child, path, false, fn)
			}
		}
	case nodeArray:
		for i, item := range n.items {
			path := joinPath(prefix, strconv.Itoa(i))
			if item.kind == nodeString {
				item.str = fn(path, item.str)
			} else {
				rewriteLeaves(item, path, false, fn)
			}
		}
	}
}

// reshape converts a tree between flat and nested layouts while keeping the
// depth-first key order.
func reshape(root *node, fromFlat, toFlat bool) *node {
	pairs := collectLeaves(root, fromFlat)
	if toFlat {
		out := &node{kind: nodeObject, children: make(map[string]*node)}
		for _, p := range pairs {
			if _, dup := out.children[p.key]; !dup {
				out.keys = append(out.keys, p.key)
			}
			out.children[p.key] = p.leaf
		}
		return out
	}
	return unflatten(pairs)
}

type leafPair struct {
	key  string
	leaf *node
}

func collectLeaves(root *node, flat bool) []leafPair {
	var out []leafPair
	if flat {
		for _, k := range root.keys {
			out = append(out, leafPair{key: k, leaf: root.children[k]})
		}
		return out
	}
	var walk func(n *node, prefix string)
	walk = func(n *node, prefix string) {
		switch n.kind {
		case nodeObject:
			for _, k := range n.keys {
				walk(n.children[k], joinPath(prefix, k))
			}
		case nodeArray:
			for i, item := range n.items {
				walk(item, joinPath(prefix, strconv.Itoa(i)))
			}
		default:
			out = append(out, leafPair{key: prefix, leaf: n})
		}
	}
	walk(root, "")
	return out
}

// unflatten rebuilds a nested tree from dotted keys, creating arrays when
// the next path segment is numeric.
func unflatten(pairs []leafPair) *node {
	root := &node{kind: nodeObject, children: make(map[string]*node)}
	for _, p := range pairs {
		segs := strings.Split(p.key, ".")
		insert(root, segs, p.leaf)
	}
	return root
}

func insert(n *node, segs []string, leaf *node) {
	seg := segs[0]
	if len(segs) == 1 {
		switch n.kind {
		case nodeObject:
			if _, dup := n.children[seg]; !dup {
				n.keys = append(n.keys, seg)
			}
			n.children[seg] = leaf
		case nodeArray:
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return
			}
			for len(n.items) <= idx {
				n.items = append(n.items, &node{kind: nodeString})
			}
			n.items[idx] = leaf
		}
		return
	}

	nextIsIndex := isNumeric(segs[1])
	var child *node
	switch n.kind {
	case nodeObject:
		child = n.children[seg]
		if child == nil || (child.kind != nodeObject && child.kind != nodeArray) {
			child = newContainer(nextIsIndex)
			if _, dup := n.children[seg]; !dup {
				n.keys = append(n.keys, seg)
			}
			n.children[seg] = child
		}
	case nodeArray:
		idx, err := strconv.Atoi(seg)
		if err != nil {
			return
		}
		for len(n.items) <= idx {
			n.items = append(n.items, &node{kind: nodeString})
		}
		if n.items[idx].kind != nodeObject && n.items[idx].kind != nodeArray {
			n.items[idx] = newContainer(nextIsIndex)
		}
		child = n.items[idx]
	default:
		return
	}
	insert(child, segs[1:], leaf)
}

func newContainer(array bool) *node {
	if array {
		return &node{kind: nodeArray}
	}
	return &node{kind: nodeObject, children: make(map[string]*node)}
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
