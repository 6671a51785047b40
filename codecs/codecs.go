// Package codecs selects the right format codec for a file path. The set
// of codecs is a closed union — selection happens once per file at the
// edge of the engine, never inside the reconciliation logic.
package codecs

import (
	"path/filepath"
	"strings"

	"github.com/TedyHub/langsync/arbfile"
	"github.com/TedyHub/langsync/jsonfile"
	"github.com/TedyHub/langsync/kv"
	"github.com/TedyHub/langsync/stringsdict"
	"github.com/TedyHub/langsync/stringsfile"
	"github.com/TedyHub/langsync/xcstrings"
)

// ForPath returns the codec for a file path, selected by extension.
func ForPath(path string) (kv.Codec, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return jsonfile.Codec{}, true
	case ".arb":
		return arbfile.Codec{}, true
	case ".strings":
		return stringsfile.Codec{}, true
	case ".stringsdict":
		return stringsdict.Codec{}, true
	case ".xcstrings":
		return xcstrings.Codec{}, true
	default:
		return nil, false
	}
}

// IsCatalog reports whether path is a multi-language string catalog, i.e.
// one file that serves as both the source file and every target's file.
func IsCatalog(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xcstrings")
}
