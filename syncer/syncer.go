// Package syncer implements the reconciliation engine: it compares the
// current source-language content against the persisted cache, batches one
// provider call per source file covering every language that needs it,
// merges the returned translations into each target file with the file's
// own codec, and records the new snapshot in the cache.
//
// The engine is sequential and rollback-free. Files already written before
// a provider failure stay written; the error reports exactly where work
// stopped so a re-run can pick up from there. Dry runs never touch disk —
// not the target files and not the cache.
package syncer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/TedyHub/langsync/cachefile"
	"github.com/TedyHub/langsync/codecs"
	"github.com/TedyHub/langsync/delta"
	"github.com/TedyHub/langsync/detect"
	"github.com/TedyHub/langsync/kv"
	"github.com/TedyHub/langsync/provider"
	"github.com/TedyHub/langsync/xcstrings"
)

// ---------------------------------------------------------------------------
// Engine setup
// ---------------------------------------------------------------------------

// Options configures an Engine.
type Options struct {
	// Root is the project root; every path written must stay inside it.
	Root string
	// Detection describes the project's languages and files.
	Detection *detect.Result
	// Cache is the persisted sync snapshot.
	Cache *cachefile.Cache
	// Provider performs the actual translation.
	Provider provider.Provider
	// Logf receives progress messages. Optional.
	Logf func(format string, args ...interface{})
}

// Engine reconciles a project's target-language files with its source.
type Engine struct {
	opts Options
}

// New validates opts and builds an engine.
func New(opts Options) (*Engine, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("syncer: project root is required")
	}
	if opts.Detection == nil {
		return nil, fmt.Errorf("syncer: detection result is required")
	}
	if opts.Cache == nil {
		return nil, fmt.Errorf("syncer: cache is required")
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("syncer: provider is required")
	}
	return &Engine{opts: opts}, nil
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.opts.Logf != nil {
		e.opts.Logf(format, args...)
	}
}

// ---------------------------------------------------------------------------
// Request and outcome
// ---------------------------------------------------------------------------

// Request describes one sync run.
type Request struct {
	SourceLang  string
	TargetLangs []string
	// DryRun previews cost and changes without writing anything.
	DryRun bool
	// HardSync retranslates every key, ignoring cache and target state.
	HardSync bool
	// SkipKeys are never sent to the provider or written.
	SkipKeys []string
}

// LangOutcome summarises one target language's results.
type LangOutcome struct {
	TranslatedCount int
	SkippedKeys     []string
	FilesWritten    []string
}

// Outcome summarises a sync run.
type Outcome struct {
	// NewKeys and ChangedKeys classify the source against the cache.
	NewKeys     []string
	ChangedKeys []string
	// TotalToSync counts key/language assignments planned for translation.
	TotalToSync int
	// EstimatedCredits accumulates dry-run previews; CreditsUsed
	// accumulates committed charges.
	EstimatedCredits int
	CreditsUsed      int

	Languages    map[string]*LangOutcome
	FilesWritten []string
	// ObsoleteKeys maps a target file to keys present there but gone from
	// the source. Commits prune them; previews only report them.
	ObsoleteKeys map[string][]string
}

func (o *Outcome) lang(lang string) *LangOutcome {
	if o.Languages == nil {
		o.Languages = make(map[string]*LangOutcome)
	}
	lo := o.Languages[lang]
	if lo == nil {
		lo = &LangOutcome{}
		o.Languages[lang] = lo
	}
	return lo
}

// PartialError reports a run that failed mid-way. Outcome holds everything
// completed before the failure; nothing already written is rolled back.
type PartialError struct {
	Outcome     *Outcome
	FailedFile  string
	FailedLangs []string
	Remaining   []string
	Err         error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("sync stopped at %s (languages %s): %v",
		e.FailedFile, strings.Join(e.FailedLangs, ", "), e.Err)
}

func (e *PartialError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// Planning
// ---------------------------------------------------------------------------

// sourceFile is one parsed source-language file.
type sourceFile struct {
	path      string
	rel       string
	codec     kv.Codec
	doc       kv.Document
	entries   []kv.KeyValue
	isCatalog bool
}

// langPlan is what one target language needs from one source file.
type langPlan struct {
	lang       string
	targetPath string
	targetDoc  kv.Document // nil when the target file does not exist
	keys       map[string]bool
	obsolete   []string
}

// filePlan groups the per-language plans of one source file.
type filePlan struct {
	src   *sourceFile
	langs []*langPlan
}

// needed returns the union of keys across languages, in source order.
func (p *filePlan) needed() []kv.KeyValue {
	union := make(map[string]bool)
	for _, lp := range p.langs {
		for k := range lp.keys {
			union[k] = true
		}
	}
	var out []kv.KeyValue
	for _, e := range p.src.entries {
		if union[e.Key] {
			out = append(out, e)
			delete(union, e.Key)
		}
	}
	return out
}

func (p *filePlan) needingLangs() []string {
	var out []string
	for _, lp := range p.langs {
		if len(lp.keys) > 0 {
			out = append(out, lp.lang)
		}
	}
	return out
}

// loadSources parses every source-language file that has a codec. Files
// that fail to parse are skipped with a log message; the run continues
// with the rest.
func (e *Engine) loadSources(sourceLang string) ([]*sourceFile, error) {
	infos := e.opts.Detection.FilesFor(sourceLang)
	if len(infos) == 0 {
		return nil, fmt.Errorf("no files found for source language %q", sourceLang)
	}

	var out []*sourceFile
	for _, info := range infos {
		codec, ok := codecs.ForPath(info.Path)
		if !ok {
			e.logf("skipping %s: unsupported format", info.RelPath)
			continue
		}
		data, err := os.ReadFile(info.Path)
		if err != nil {
			e.logf("skipping %s: %v", info.RelPath, err)
			continue
		}
		doc, err := codec.Parse(data)
		if err != nil {
			e.logf("skipping %s: %v", info.RelPath, err)
			continue
		}
		out = append(out, &sourceFile{
			path:      info.Path,
			rel:       info.RelPath,
			codec:     codec,
			doc:       doc,
			entries:   doc.Entries(),
			isCatalog: codecs.IsCatalog(info.Path),
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no readable source files for language %q", sourceLang)
	}
	return out, nil
}

// planLang decides which of src's keys lang needs, in order of precedence:
// hard sync, unknown language or missing target file take the whole file;
// with a cache, the delta's new and changed keys; with no cache, the keys
// empty or absent in the target.
func (e *Engine) planLang(src *sourceFile, lang string, req Request, toSync map[string]bool, skip map[string]bool, out *Outcome) *langPlan {
	lp := &langPlan{lang: lang, keys: make(map[string]bool)}

	full := req.HardSync
	switch {
	case src.isCatalog:
		lp.targetPath = src.path
		lp.targetDoc = src.doc
		cat, _ := src.doc.(*xcstrings.File)
		if cat == nil || !cat.HasLocale(lang) {
			full = true
		}
	default:
		lp.targetPath = detect.LocalizedPath(src.path, req.SourceLang, lang)
		if !e.opts.Detection.HasLanguage(lang) {
			full = true
		}
		data, err := os.ReadFile(lp.targetPath)
		if err != nil {
			full = true
		} else if doc, perr := src.codec.Parse(data); perr != nil {
			e.logf("target %s is unreadable, rebuilding it: %v", rel(e.opts.Root, lp.targetPath), perr)
			full = true
		} else {
			lp.targetDoc = doc
		}
	}

	var targetValues map[string]string
	if src.isCatalog {
		if cat, ok := src.doc.(*xcstrings.File); ok {
			targetValues = kv.Map(cat.EntriesFor(lang))
		}
	} else if lp.targetDoc != nil {
		targetValues = kv.Map(lp.targetDoc.Entries())
	}

	for _, entry := range src.entries {
		want := false
		switch {
		case full:
			want = true
		case toSync != nil:
			want = toSync[entry.Key]
		default:
			v, ok := targetValues[entry.Key]
			want = !ok || v == ""
		}
		if !want {
			continue
		}
		if skip[entry.Key] {
			lo := out.lang(lang)
			lo.SkippedKeys = append(lo.SkippedKeys, entry.Key)
			continue
		}
		lp.keys[entry.Key] = true
	}

	// Catalogs keep every key for every language; only standalone target
	// files accumulate obsolete keys worth pruning.
	if !src.isCatalog && lp.targetDoc != nil {
		srcKeys := make(map[string]bool, len(src.entries))
		for _, entry := range src.entries {
			srcKeys[entry.Key] = true
		}
		for _, entry := range lp.targetDoc.Entries() {
			if !srcKeys[entry.Key] {
				lp.obsolete = append(lp.obsolete, entry.Key)
			}
		}
	}

	return lp
}

// ---------------------------------------------------------------------------
// Sync
// ---------------------------------------------------------------------------

// Sync runs one reconciliation pass. On a provider failure mid-run the
// returned error is a *PartialError wrapping everything finished so far.
func (e *Engine) Sync(ctx context.Context, req Request) (*Outcome, error) {
	if req.SourceLang == "" {
		return nil, fmt.Errorf("source language is required")
	}
	targets := make([]string, 0, len(req.TargetLangs))
	for _, lang := range req.TargetLangs {
		if lang != "" && lang != req.SourceLang {
			targets = append(targets, lang)
		}
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no target languages to sync")
	}

	sources, err := e.loadSources(req.SourceLang)
	if err != nil {
		return nil, err
	}

	var allEntries []kv.KeyValue
	for _, src := range sources {
		allEntries = append(allEntries, src.entries...)
	}

	cached := e.opts.Cache.ContentFor(req.SourceLang)
	d := delta.Diff(allEntries, cached)

	out := &Outcome{
		NewKeys:      d.New,
		ChangedKeys:  d.ChangedKeys(),
		ObsoleteKeys: make(map[string][]string),
	}

	var toSync map[string]bool
	if cached != nil && !req.HardSync {
		toSync = d.ToSync()
	}
	skip := make(map[string]bool, len(req.SkipKeys))
	for _, k := range req.SkipKeys {
		skip[k] = true
	}

	var plans []*filePlan
	for _, src := range sources {
		plan := &filePlan{src: src}
		for _, lang := range targets {
			lp := e.planLang(src, lang, req, toSync, skip, out)
			plan.langs = append(plan.langs, lp)
			out.TotalToSync += len(lp.keys)
			if len(lp.obsolete) > 0 {
				out.ObsoleteKeys[rel(e.opts.Root, lp.targetPath)] = lp.obsolete
			}
		}
		plans = append(plans, plan)
	}

	for i, plan := range plans {
		if err := e.syncFile(ctx, plan, req, out); err != nil {
			// Nothing committed yet: a plain error, not a partial result.
			if i == 0 && len(out.FilesWritten) == 0 {
				return out, fmt.Errorf("syncing %s: %w", plan.src.rel, err)
			}
			var remaining []string
			for _, rest := range plans[i+1:] {
				remaining = append(remaining, rest.src.rel)
			}
			return out, &PartialError{
				Outcome:     out,
				FailedFile:  plan.src.rel,
				FailedLangs: plan.needingLangs(),
				Remaining:   remaining,
				Err:         err,
			}
		}
	}

	if !req.DryRun {
		e.opts.Cache.Replace(req.SourceLang, kv.Map(allEntries))
		if err := e.opts.Cache.Save(); err != nil {
			return out, fmt.Errorf("saving sync cache: %w", err)
		}
	}
	return out, nil
}

// syncFile handles one source file end to end: at most one provider call
// covering every language that needs keys, then one merge and write per
// language. Languages with nothing to translate still get a prune write
// when they carry obsolete keys.
func (e *Engine) syncFile(ctx context.Context, plan *filePlan, req Request, out *Outcome) error {
	needed := plan.needed()
	needingLangs := plan.needingLangs()

	var result *provider.Result
	if len(needed) > 0 {
		e.logf("%s: %d keys for %s", plan.src.rel, len(needed), strings.Join(needingLangs, ", "))
		var err error
		result, err = e.opts.Provider.Sync(ctx, provider.Request{
			SourceLang:  req.SourceLang,
			TargetLangs: needingLangs,
			Content:     needed,
			DryRun:      req.DryRun,
		})
		if err != nil {
			return err
		}
	}

	if req.DryRun {
		if result != nil && result.Preview != nil {
			out.EstimatedCredits += result.Preview.Credits
		}
		for _, lp := range plan.langs {
			out.lang(lp.lang).TranslatedCount += len(lp.keys)
		}
		return nil
	}

	for _, lp := range plan.langs {
		var updates []kv.KeyValue
		if result != nil {
			lr, ok := result.Languages[lp.lang]
			if !ok && len(lp.keys) > 0 {
				e.logf("%s: provider returned no result for %s", plan.src.rel, lp.lang)
				continue
			}
			for _, u := range lr.Content {
				if lp.keys[u.Key] {
					updates = append(updates, u)
				}
			}
			out.CreditsUsed += lr.Credits
		}
		if len(updates) == 0 && len(lp.obsolete) == 0 && len(lp.keys) == 0 {
			continue
		}
		if err := e.writeLang(plan.src, lp, updates, out); err != nil {
			return err
		}
	}
	return nil
}

// writeLang merges updates into one target file and writes it.
func (e *Engine) writeLang(src *sourceFile, lp *langPlan, updates []kv.KeyValue, out *Outcome) error {
	if !e.inRoot(lp.targetPath) {
		e.logf("skipping %s: resolves outside the project root", lp.targetPath)
		return nil
	}

	target := lp.targetDoc
	if src.isCatalog {
		// The catalog is shared by every language; re-read it so earlier
		// languages' writes in this run are not clobbered.
		data, err := os.ReadFile(src.path)
		if err != nil {
			return fmt.Errorf("re-reading %s: %w", src.rel, err)
		}
		doc, err := src.codec.Parse(data)
		if err != nil {
			return fmt.Errorf("re-parsing %s: %w", src.rel, err)
		}
		target = doc
	}

	merged, err := src.codec.Merge(src.doc, target, updates, lp.lang)
	if err != nil {
		return fmt.Errorf("merging %s for %s: %w", src.rel, lp.lang, err)
	}

	if err := os.MkdirAll(filepath.Dir(lp.targetPath), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", lp.targetPath, err)
	}
	if err := os.WriteFile(lp.targetPath, merged, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", lp.targetPath, err)
	}

	relPath := rel(e.opts.Root, lp.targetPath)
	lo := out.lang(lp.lang)
	lo.TranslatedCount += len(updates)
	lo.FilesWritten = append(lo.FilesWritten, relPath)
	if !contains(out.FilesWritten, relPath) {
		out.FilesWritten = append(out.FilesWritten, relPath)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// inRoot reports whether path stays inside the project root once resolved.
func (e *Engine) inRoot(path string) bool {
	root, err := filepath.Abs(e.opts.Root)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	r, err := filepath.Rel(root, abs)
	if err != nil {
		return false
	}
	return r != ".." && !strings.HasPrefix(r, ".."+string(filepath.Separator))
}

func rel(root, path string) string {
	if r, err := filepath.Rel(root, path); err == nil {
		return filepath.ToSlash(r)
	}
	return filepath.ToSlash(path)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
