package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `source_lang: en
languages:
  - de
  - fr
files:
  - locales/en.json
framework: i18next
skip_keys:
  - brand.name
provider:
  base_url: https://example.test
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.SourceLang != "en" {
		t.Errorf("SourceLang = %q", cfg.SourceLang)
	}
	if len(cfg.Languages) != 2 || cfg.Languages[0] != "de" {
		t.Errorf("Languages = %v", cfg.Languages)
	}
	if len(cfg.SkipKeys) != 1 || cfg.SkipKeys[0] != "brand.name" {
		t.Errorf("SkipKeys = %v", cfg.SkipKeys)
	}
	if cfg.Provider.BaseURL != "https://example.test" {
		t.Errorf("Provider.BaseURL = %q", cfg.Provider.BaseURL)
	}
	if cfg.Root() != dir {
		t.Errorf("Root() = %q, want %q", cfg.Root(), dir)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load() of empty dir succeeded, want error")
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no source", "languages: [de]\nfiles: [en.json]\n"},
		{"no languages", "source_lang: en\nfiles: [en.json]\n"},
		{"no files", "source_lang: en\nlanguages: [de]\n"},
		{"bad format", "source_lang: en\nlanguages: [de]\nfiles: [en.po]\n"},
	}
	for _, tt := range tests {
		dir := t.TempDir()
		writeConfig(t, dir, tt.content)
		if _, err := Load(dir); err == nil {
			t.Errorf("%s: Load() succeeded, want error", tt.name)
		}
	}
}

func TestDetection(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "locales"), 0755); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"en.json", "de.json"} {
		if err := os.WriteFile(filepath.Join(dir, "locales", f), []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	writeConfig(t, dir, `source_lang: en
languages: [de, fr]
files: [locales/en.json]
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	res := cfg.Detection()

	if !res.HasLanguage("en") {
		t.Error("source language missing from detection")
	}
	// de.json exists on disk, fr.json does not.
	if !res.HasLanguage("de") {
		t.Error("HasLanguage(de) = false, want true")
	}
	if res.HasLanguage("fr") {
		t.Error("HasLanguage(fr) = true, want false for missing file")
	}
	files := res.FilesFor("de")
	if len(files) != 1 || files[0].RelPath != "locales/de.json" {
		t.Errorf("FilesFor(de) = %v", files)
	}
}

func TestDetectionCatalogAlwaysListed(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `source_lang: en
languages: [de]
files: [App/Localizable.xcstrings]
`)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	res := cfg.Detection()
	// A catalog holds every language, so targets point at it even before
	// the first sync.
	if !res.HasLanguage("de") {
		t.Error("HasLanguage(de) = false, want catalog listed")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		SourceLang: "en",
		Languages:  []string{"de"},
		Files:      []string{"locales/en.json"},
	}
	if err := cfg.Save(dir); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.SourceLang != "en" || len(loaded.Files) != 1 {
		t.Errorf("loaded = %+v", loaded)
	}
}
