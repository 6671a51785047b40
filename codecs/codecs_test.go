package codecs

import "testing"

func TestForPath(t *testing.T) {
	tests := []struct {
		path string
		name string
	}{
		{"locales/en.json", "json"},
		{"lib/l10n/app_en.arb", "arb"},
		{"en.lproj/Localizable.strings", "strings"},
		{"en.lproj/Plurals.stringsdict", "stringsdict"},
		{"App/Localizable.xcstrings", "xcstrings"},
	}
	for _, tt := range tests {
		c, ok := ForPath(tt.path)
		if !ok {
			t.Errorf("ForPath(%q) not found", tt.path)
			continue
		}
		if c.Name() != tt.name {
			t.Errorf("ForPath(%q).Name() = %q, want %q", tt.path, c.Name(), tt.name)
		}
	}

	if _, ok := ForPath("readme.md"); ok {
		t.Error("ForPath(readme.md) found a codec, want none")
	}
}

func TestIsCatalog(t *testing.T) {
	if !IsCatalog("App/Localizable.xcstrings") {
		t.Error("IsCatalog(.xcstrings) = false")
	}
	if IsCatalog("locales/en.json") {
		t.Error("IsCatalog(.json) = true")
	}
}
