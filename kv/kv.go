// Package kv defines the normalized key/value model shared by every locale
// file codec, and the codec contract itself.
//
// All formats — flat/nested JSON, ARB, Apple .strings, .stringsdict and
// .xcstrings — flatten to an ordered list of dot-delimited keys mapped to
// string values. Everything else a file contains (indentation, key order,
// comments, metadata blocks, sibling-locale data) is reconstruction state
// owned by the codec's own document type and is never visible to the
// reconciliation engine.
package kv

import "fmt"

// KeyValue is a single translatable pair. Keys are dot-delimited paths;
// uniqueness is enforced per document.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Document is a parsed locale file: the flattened translatable surface plus
// format-private reconstruction state. Marshal rebuilds the original on-disk
// representation; for well-formed input, Marshal(Parse(x)) is
// format-equivalent to x.
type Document interface {
	// Entries returns the translatable pairs in document order.
	Entries() []KeyValue
	// Marshal serialises the document back to its on-disk form.
	Marshal() ([]byte, error)
}

// Codec is the uniform contract every format implements. Parse never
// panics on malformed input: malformed constructs are skipped and the
// recoverable remainder of the file is kept.
//
// Merge builds the new content of a target-language file: source provides
// structure, ordering and metadata; target is the current state of the
// target file (nil when the file does not exist yet); updates are the
// freshly translated pairs; lang is the target language being written.
// Keys absent from source are pruned; target values not covered by updates
// are kept untouched. Each codec accepts only documents produced by its own
// Parse — a foreign document is a WrongDocumentError.
type Codec interface {
	Name() string
	Parse(data []byte) (Document, error)
	Merge(source, target Document, updates []KeyValue, lang string) ([]byte, error)
}

// WrongDocumentError reports a Document handed to a codec that did not
// produce it.
type WrongDocumentError struct {
	Codec string
	Doc   Document
}

func (e *WrongDocumentError) Error() string {
	return fmt.Sprintf("%s codec: document of type %T belongs to another codec", e.Codec, e.Doc)
}

// Map converts entries to a key→value map. Later duplicates win, matching
// JSON object semantics.
func Map(entries []KeyValue) map[string]string {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e.Key] = e.Value
	}
	return m
}

// Keys returns the keys of entries in order.
func Keys(entries []KeyValue) []string {
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}
