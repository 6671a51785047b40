package syncer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TedyHub/langsync/cachefile"
	"github.com/TedyHub/langsync/config"
	"github.com/TedyHub/langsync/detect"
	"github.com/TedyHub/langsync/jsonfile"
	"github.com/TedyHub/langsync/kv"
	"github.com/TedyHub/langsync/provider"
	"github.com/TedyHub/langsync/xcstrings"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

// fakeProvider translates by tagging values with the target language.
type fakeProvider struct {
	calls  []provider.Request
	failOn int // 1-based call index to fail at, 0 = never
	err    error
}

func (p *fakeProvider) Sync(ctx context.Context, req provider.Request) (*provider.Result, error) {
	p.calls = append(p.calls, req)
	if p.failOn > 0 && len(p.calls) == p.failOn {
		return nil, p.err
	}
	if req.DryRun {
		return &provider.Result{
			Preview: &provider.Preview{
				Words:   len(req.Content),
				Credits: len(req.Content) * len(req.TargetLangs),
			},
		}, nil
	}
	res := &provider.Result{Languages: make(map[string]provider.LanguageResult)}
	for _, lang := range req.TargetLangs {
		var content []kv.KeyValue
		for _, e := range req.Content {
			content = append(content, kv.KeyValue{Key: e.Key, Value: "[" + lang + "] " + e.Value})
		}
		res.Languages[lang] = provider.LanguageResult{Content: content, Credits: len(content)}
	}
	return res, nil
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func setupProject(t *testing.T, root string, files []string) {
	t.Helper()
	cfg := &config.Config{
		SourceLang: "en",
		Languages:  []string{"de"},
		Files:      files,
	}
	if err := cfg.Save(root); err != nil {
		t.Fatal(err)
	}
}

// newEngine reloads config, detection and cache so each run sees the
// current on-disk state, the way consecutive CLI invocations do.
func newEngine(t *testing.T, root string, p provider.Provider) (*Engine, *cachefile.Cache) {
	t.Helper()
	cfg, err := config.Load(root)
	if err != nil {
		t.Fatal(err)
	}
	cache, err := cachefile.Load(root)
	if err != nil {
		t.Fatal(err)
	}
	engine, err := New(Options{
		Root:      root,
		Detection: cfg.Detection(),
		Cache:     cache,
		Provider:  p,
		Logf:      t.Logf,
	})
	if err != nil {
		t.Fatal(err)
	}
	return engine, cache
}

func readJSONMap(t *testing.T, root, rel string) map[string]string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, rel))
	if err != nil {
		t.Fatalf("reading %s: %v", rel, err)
	}
	f, err := jsonfile.Parse(data)
	if err != nil {
		t.Fatalf("parsing %s: %v", rel, err)
	}
	return kv.Map(f.Entries())
}

const enJSON = `{
  "a": "Hello",
  "b": "World"
}
`

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestFullSyncThenIdempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "locales/en.json", enJSON)
	setupProject(t, root, []string{"locales/en.json"})

	p := &fakeProvider{}
	engine, _ := newEngine(t, root, p)
	out, err := engine.Sync(context.Background(), Request{SourceLang: "en", TargetLangs: []string{"de"}})
	if err != nil {
		t.Fatalf("Sync() error: %v", err)
	}

	if len(p.calls) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(p.calls))
	}
	if len(p.calls[0].Content) != 2 {
		t.Errorf("first call content = %v, want both keys", p.calls[0].Content)
	}
	de := readJSONMap(t, root, "locales/de.json")
	if de["a"] != "[de] Hello" || de["b"] != "[de] World" {
		t.Errorf("de.json = %v", de)
	}
	if len(out.FilesWritten) != 1 || out.FilesWritten[0] != "locales/de.json" {
		t.Errorf("FilesWritten = %v", out.FilesWritten)
	}
	if out.CreditsUsed != 2 {
		t.Errorf("CreditsUsed = %d, want 2", out.CreditsUsed)
	}
	if _, err := os.Stat(filepath.Join(root, cachefile.FileName)); err != nil {
		t.Errorf("cache not persisted: %v", err)
	}

	// A second run with nothing changed must not call the provider.
	p2 := &fakeProvider{}
	engine2, _ := newEngine(t, root, p2)
	out2, err := engine2.Sync(context.Background(), Request{SourceLang: "en", TargetLangs: []string{"de"}})
	if err != nil {
		t.Fatalf("second Sync() error: %v", err)
	}
	if len(p2.calls) != 0 {
		t.Errorf("second run provider calls = %d, want 0", len(p2.calls))
	}
	if out2.TotalToSync != 0 {
		t.Errorf("second run TotalToSync = %d, want 0", out2.TotalToSync)
	}
}

func TestDeltaSyncOnlyNewAndChanged(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "locales/en.json", enJSON)
	setupProject(t, root, []string{"locales/en.json"})

	engine, _ := newEngine(t, root, &fakeProvider{})
	if _, err := engine.Sync(context.Background(), Request{SourceLang: "en", TargetLangs: []string{"de"}}); err != nil {
		t.Fatal(err)
	}

	// Change a, add c; b stays.
	writeFile(t, root, "locales/en.json", `{
  "a": "Hello!",
  "b": "World",
  "c": "New"
}
`)

	p := &fakeProvider{}
	engine2, _ := newEngine(t, root, p)
	out, err := engine2.Sync(context.Background(), Request{SourceLang: "en", TargetLangs: []string{"de"}})
	if err != nil {
		t.Fatalf("Sync() error: %v", err)
	}

	if len(p.calls) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(p.calls))
	}
	sent := kv.Map(p.calls[0].Content)
	if len(sent) != 2 || sent["a"] != "Hello!" || sent["c"] != "New" {
		t.Errorf("sent = %v, want only a and c", sent)
	}
	if len(out.NewKeys) != 1 || out.NewKeys[0] != "c" {
		t.Errorf("NewKeys = %v", out.NewKeys)
	}
	if len(out.ChangedKeys) != 1 || out.ChangedKeys[0] != "a" {
		t.Errorf("ChangedKeys = %v", out.ChangedKeys)
	}

	de := readJSONMap(t, root, "locales/de.json")
	if de["a"] != "[de] Hello!" || de["c"] != "[de] New" {
		t.Errorf("de.json = %v", de)
	}
	if de["b"] != "[de] World" {
		t.Errorf("b = %q, want untouched translation kept", de["b"])
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "locales/en.json", enJSON)
	setupProject(t, root, []string{"locales/en.json"})

	p := &fakeProvider{}
	engine, _ := newEngine(t, root, p)
	out, err := engine.Sync(context.Background(), Request{SourceLang: "en", TargetLangs: []string{"de"}, DryRun: true})
	if err != nil {
		t.Fatalf("Sync() error: %v", err)
	}

	if len(p.calls) != 1 || !p.calls[0].DryRun {
		t.Errorf("calls = %+v, want one dry-run call", p.calls)
	}
	if out.EstimatedCredits != 2 {
		t.Errorf("EstimatedCredits = %d, want 2", out.EstimatedCredits)
	}
	if len(out.FilesWritten) != 0 {
		t.Errorf("FilesWritten = %v, want none", out.FilesWritten)
	}
	if _, err := os.Stat(filepath.Join(root, "locales/de.json")); !os.IsNotExist(err) {
		t.Error("dry run created de.json")
	}
	if _, err := os.Stat(filepath.Join(root, cachefile.FileName)); !os.IsNotExist(err) {
		t.Error("dry run persisted the cache")
	}

	// Preview is repeatable: a second dry run reports the same work.
	out2, err := engine.Sync(context.Background(), Request{SourceLang: "en", TargetLangs: []string{"de"}, DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if out2.TotalToSync != out.TotalToSync {
		t.Errorf("second dry run TotalToSync = %d, want %d", out2.TotalToSync, out.TotalToSync)
	}
}

func TestSkipKeys(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "locales/en.json", enJSON)
	setupProject(t, root, []string{"locales/en.json"})

	p := &fakeProvider{}
	engine, _ := newEngine(t, root, p)
	out, err := engine.Sync(context.Background(), Request{
		SourceLang:  "en",
		TargetLangs: []string{"de"},
		SkipKeys:    []string{"b"},
	})
	if err != nil {
		t.Fatalf("Sync() error: %v", err)
	}

	sent := kv.Map(p.calls[0].Content)
	if _, ok := sent["b"]; ok {
		t.Error("skipped key sent to provider")
	}
	lo := out.Languages["de"]
	if lo == nil || len(lo.SkippedKeys) != 1 || lo.SkippedKeys[0] != "b" {
		t.Errorf("Languages[de] = %+v", lo)
	}
	de := readJSONMap(t, root, "locales/de.json")
	if de["a"] != "[de] Hello" {
		t.Errorf("a = %q", de["a"])
	}
	if de["b"] != "" {
		t.Errorf("b = %q, want empty placeholder for skipped key", de["b"])
	}
}

func TestHardSyncRetranslatesEverything(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "locales/en.json", enJSON)
	setupProject(t, root, []string{"locales/en.json"})

	engine, _ := newEngine(t, root, &fakeProvider{})
	if _, err := engine.Sync(context.Background(), Request{SourceLang: "en", TargetLangs: []string{"de"}}); err != nil {
		t.Fatal(err)
	}

	p := &fakeProvider{}
	engine2, _ := newEngine(t, root, p)
	if _, err := engine2.Sync(context.Background(), Request{SourceLang: "en", TargetLangs: []string{"de"}, HardSync: true}); err != nil {
		t.Fatal(err)
	}
	if len(p.calls) != 1 || len(p.calls[0].Content) != 2 {
		t.Errorf("hard sync calls = %+v, want all keys resent", p.calls)
	}
}

func TestPartialFailureKeepsCompletedWork(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/en.json", `{
  "x": "One"
}
`)
	writeFile(t, root, "b/en.json", `{
  "y": "Two"
}
`)
	setupProject(t, root, []string{"a/en.json", "b/en.json"})

	p := &fakeProvider{failOn: 2, err: &provider.Error{Code: provider.CodeUnavailable, Message: "down"}}
	engine, _ := newEngine(t, root, p)
	_, err := engine.Sync(context.Background(), Request{SourceLang: "en", TargetLangs: []string{"de"}})

	var partial *PartialError
	if !errors.As(err, &partial) {
		t.Fatalf("Sync() error = %v, want *PartialError", err)
	}
	if partial.FailedFile != "b/en.json" {
		t.Errorf("FailedFile = %q", partial.FailedFile)
	}

	// The first file's translation survived the failure.
	de := readJSONMap(t, root, "a/de.json")
	if de["x"] != "[de] One" {
		t.Errorf("a/de.json = %v", de)
	}
	if _, statErr := os.Stat(filepath.Join(root, "b/de.json")); !os.IsNotExist(statErr) {
		t.Error("failed file's target written")
	}
	// No cache after an incomplete run: the next run retries everything
	// still missing.
	if _, statErr := os.Stat(filepath.Join(root, cachefile.FileName)); !os.IsNotExist(statErr) {
		t.Error("cache persisted despite failure")
	}

	pe, ok := provider.AsError(err)
	if !ok || pe.Code != provider.CodeUnavailable {
		t.Errorf("unwrapped provider error = %v, %v", pe, ok)
	}
}

func TestPruneObsoleteKeys(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "locales/en.json", enJSON)
	setupProject(t, root, []string{"locales/en.json"})

	engine, _ := newEngine(t, root, &fakeProvider{})
	if _, err := engine.Sync(context.Background(), Request{SourceLang: "en", TargetLangs: []string{"de"}}); err != nil {
		t.Fatal(err)
	}

	// b disappears from the source.
	writeFile(t, root, "locales/en.json", `{
  "a": "Hello"
}
`)

	// Preview only reports.
	pDry := &fakeProvider{}
	engineDry, _ := newEngine(t, root, pDry)
	outDry, err := engineDry.Sync(context.Background(), Request{SourceLang: "en", TargetLangs: []string{"de"}, DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := outDry.ObsoleteKeys["locales/de.json"]; len(got) != 1 || got[0] != "b" {
		t.Errorf("dry run ObsoleteKeys = %v", outDry.ObsoleteKeys)
	}
	if de := readJSONMap(t, root, "locales/de.json"); de["b"] == "" {
		t.Error("dry run pruned the target")
	}

	// Commit prunes, keeping the untouched translation, without any
	// provider call.
	p := &fakeProvider{}
	engine2, _ := newEngine(t, root, p)
	out, err := engine2.Sync(context.Background(), Request{SourceLang: "en", TargetLangs: []string{"de"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(p.calls) != 0 {
		t.Errorf("provider calls = %d, want 0 for prune-only run", len(p.calls))
	}
	de := readJSONMap(t, root, "locales/de.json")
	if _, ok := de["b"]; ok {
		t.Error("obsolete key b not pruned")
	}
	if de["a"] != "[de] Hello" {
		t.Errorf("a = %q, want kept", de["a"])
	}
	if got := out.ObsoleteKeys["locales/de.json"]; len(got) != 1 || got[0] != "b" {
		t.Errorf("ObsoleteKeys = %v", out.ObsoleteKeys)
	}
}

func TestCatalogSyncsAllLanguagesInOneFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Localizable.xcstrings", `{
  "sourceLanguage" : "en",
  "strings" : {
    "Hello" : {
      "localizations" : {
        "en" : {
          "stringUnit" : {
            "state" : "translated",
            "value" : "Hello"
          }
        }
      }
    }
  },
  "version" : "1.0"
}
`)
	cfg := &config.Config{
		SourceLang: "en",
		Languages:  []string{"de", "fr"},
		Files:      []string{"Localizable.xcstrings"},
	}
	if err := cfg.Save(root); err != nil {
		t.Fatal(err)
	}

	p := &fakeProvider{}
	engine, _ := newEngine(t, root, p)
	out, err := engine.Sync(context.Background(), Request{SourceLang: "en", TargetLangs: []string{"de", "fr"}})
	if err != nil {
		t.Fatalf("Sync() error: %v", err)
	}

	// One file, one provider call covering both languages.
	if len(p.calls) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(p.calls))
	}
	if got := strings.Join(p.calls[0].TargetLangs, ","); got != "de,fr" {
		t.Errorf("TargetLangs = %q", got)
	}

	data, err := os.ReadFile(filepath.Join(root, "Localizable.xcstrings"))
	if err != nil {
		t.Fatal(err)
	}
	cat, err := xcstrings.Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if got := kv.Map(cat.EntriesFor("de"))["Hello"]; got != "[de] Hello" {
		t.Errorf("de Hello = %q", got)
	}
	if got := kv.Map(cat.EntriesFor("fr"))["Hello"]; got != "[fr] Hello" {
		t.Errorf("fr Hello = %q", got)
	}
	if got := kv.Map(cat.EntriesFor("en"))["Hello"]; got != "Hello" {
		t.Errorf("en Hello = %q, want untouched", got)
	}
	if len(out.FilesWritten) != 1 {
		t.Errorf("FilesWritten = %v, want the single catalog", out.FilesWritten)
	}
}

func TestPathSafety(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	// A source file outside the root: its language-substituted target
	// would land outside too, and must be refused.
	writeFile(t, outside, "en.json", enJSON)

	det := &detect.Result{
		Languages: []detect.LanguageFiles{
			{Language: "en", Files: []detect.FileInfo{
				{Path: filepath.Join(outside, "en.json"), RelPath: "en.json"},
			}},
		},
	}
	cache, err := cachefile.Load(root)
	if err != nil {
		t.Fatal(err)
	}
	engine, err := New(Options{
		Root:      root,
		Detection: det,
		Cache:     cache,
		Provider:  &fakeProvider{},
		Logf:      t.Logf,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Sync(context.Background(), Request{SourceLang: "en", TargetLangs: []string{"de"}}); err != nil {
		t.Fatalf("Sync() error: %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(outside, "de.json")); !os.IsNotExist(statErr) {
		t.Error("wrote a target outside the project root")
	}
}
