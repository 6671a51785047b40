// langsync — locale file synchronizer: diffs source-language strings
// against the last synced snapshot and pushes only what changed.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TedyHub/langsync/cachefile"
	"github.com/TedyHub/langsync/codecs"
	"github.com/TedyHub/langsync/config"
	"github.com/TedyHub/langsync/i18n"
	"github.com/TedyHub/langsync/langmeta"
	"github.com/TedyHub/langsync/provider"
	"github.com/TedyHub/langsync/settings"
	"github.com/TedyHub/langsync/syncer"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flag
// ---------------------------------------------------------------------------

var rootDir string

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "langsync",
		Short: "Keep translation files in sync across languages",
		Long: `langsync — locale file synchronizer.

Reads the project's source-language files (.json, .arb, .strings,
.stringsdict, .xcstrings), diffs them against the last synced snapshot,
and sends only new and changed strings to the translation provider. The
returned translations are merged into each target file, preserving its
formatting, ordering, comments and metadata.

Commands:
  status   Show project languages and pending changes
  init     Create a .langsync.yaml config
  sync     Translate and write target files
  auth     Manage the provider API key`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global persistent flag — inherited by all subcommands
	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory")

	root.AddCommand(
		newStatusCmd(),
		newInitCmd(),
		newSyncCmd(),
		newAuthCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	i18n.Init("")
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("langsync version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// status (read-only: project info + pending changes)
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show project languages and pending changes",
		Long: `Show the configured languages, the declared source files and how many
keys changed since the last sync. Does not modify any files.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func runStatus() error {
	cfg, err := config.Load(rootDir)
	if err != nil {
		return err
	}

	absRoot, _ := filepath.Abs(rootDir)
	fmt.Fprintf(os.Stderr, "\n%sProject%s\n", colorBlue, colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	fmt.Fprintf(os.Stderr, "  Root:       %s\n", absRoot)
	if cfg.Framework != "" {
		fmt.Fprintf(os.Stderr, "  Framework:  %s\n", cfg.Framework)
	}
	fmt.Fprintf(os.Stderr, "  Source:     %s\n", langmeta.Display(cfg.SourceLang))
	fmt.Fprintf(os.Stderr, "  Targets:    ")
	for i, lang := range cfg.Languages {
		if i > 0 {
			fmt.Fprint(os.Stderr, ", ")
		}
		fmt.Fprint(os.Stderr, langmeta.Display(lang))
	}
	fmt.Fprintln(os.Stderr)

	fmt.Fprintf(os.Stderr, "\n%sSource files%s\n", colorBlue, colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))

	totalKeys := 0
	for _, f := range cfg.Files {
		codec, _ := codecs.ForPath(f)
		data, err := os.ReadFile(filepath.Join(cfg.Root(), f))
		if err != nil {
			fmt.Fprintf(os.Stderr, "  %-40s %smissing%s\n", f, colorRed, colorReset)
			continue
		}
		doc, err := codec.Parse(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  %-40s %sunreadable%s\n", f, colorRed, colorReset)
			continue
		}
		n := len(doc.Entries())
		totalKeys += n
		fmt.Fprintf(os.Stderr, "  %-40s %d keys\n", f, n)
	}

	cache, err := cachefile.Load(cfg.Root())
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n%sSync state%s\n", colorBlue, colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	if cached := cache.ContentFor(cfg.SourceLang); cached == nil {
		logInfo("Never synced for %s. Run 'langsync sync' to translate all %d keys.", cfg.SourceLang, totalKeys)
	} else {
		fmt.Fprintf(os.Stderr, "  Last sync:  %s\n", cache.LastSync.Local().Format("2006-01-02 15:04"))
		fmt.Fprintf(os.Stderr, "  Snapshot:   %d keys\n", len(cached))
	}
	fmt.Fprintln(os.Stderr)
	return nil
}

// ---------------------------------------------------------------------------
// init (create a starter config)
// ---------------------------------------------------------------------------

func newInitCmd() *cobra.Command {
	var sourceLang string
	var languages []string
	var files []string
	var framework string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a .langsync.yaml config",
		Long: `Create the project config. Declare the source language, the target
languages and the source-language files to keep in sync:

  langsync init --source en --lang de --lang fr --file locales/en.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(rootDir); err == nil {
				return fmt.Errorf("%s already exists in %s", config.FileName, rootDir)
			}
			cfg := &config.Config{
				SourceLang: sourceLang,
				Languages:  languages,
				Files:      files,
				Framework:  framework,
			}
			if err := cfg.Save(rootDir); err != nil {
				return err
			}
			logSuccess("Created %s", filepath.Join(rootDir, config.FileName))
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceLang, "source", "en", "Source language")
	cmd.Flags().StringArrayVar(&languages, "lang", nil, "Target language (repeatable)")
	cmd.Flags().StringArrayVar(&files, "file", nil, "Source file relative to the root (repeatable)")
	cmd.Flags().StringVar(&framework, "framework", "", "i18n framework name (informational)")
	cmd.MarkFlagRequired("lang")
	cmd.MarkFlagRequired("file")
	return cmd
}

// ---------------------------------------------------------------------------
// sync
// ---------------------------------------------------------------------------

func newSyncCmd() *cobra.Command {
	var dryRun bool
	var hardSync bool
	var langs []string
	var skipKeys []string
	var apiKey string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Translate and write target files",
		Long: `Diff the source files against the last synced snapshot, translate the
new and changed keys and merge them into every target file.

Use --dry-run to preview the work and its cost without writing anything,
and --hard to retranslate every key regardless of cache and target state.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), dryRun, hardSync, langs, skipKeys, apiKey)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview changes and cost, write nothing")
	cmd.Flags().BoolVar(&hardSync, "hard", false, "Retranslate every key")
	cmd.Flags().StringArrayVar(&langs, "lang", nil, "Limit to these target languages (repeatable)")
	cmd.Flags().StringArrayVar(&skipKeys, "skip", nil, "Keys to skip (repeatable, adds to config skip_keys)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Provider API key (overrides env and stored login)")
	return cmd
}

func runSync(parent context.Context, dryRun, hardSync bool, langs, skipKeys []string, apiKey string) error {
	cfg, err := config.Load(rootDir)
	if err != nil {
		return err
	}

	key, err := settings.ResolveAPIKey(apiKey, cfg.Root())
	if err != nil {
		return fmt.Errorf("%w (set %s, add it to .env, or run 'langsync auth login')", err, settings.EnvKey)
	}
	client, err := provider.NewClient(cfg.Provider.BaseURL, key)
	if err != nil {
		return err
	}
	client.Proxy = cfg.Provider.Proxy

	cache, err := cachefile.Load(cfg.Root())
	if err != nil {
		return err
	}

	engine, err := syncer.New(syncer.Options{
		Root:      cfg.Root(),
		Detection: cfg.Detection(),
		Cache:     cache,
		Provider:  client,
		Logf:      logInfo,
	})
	if err != nil {
		return err
	}

	targets := cfg.Languages
	if len(langs) > 0 {
		targets = langs
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := engine.Sync(ctx, syncer.Request{
		SourceLang:  cfg.SourceLang,
		TargetLangs: targets,
		DryRun:      dryRun,
		HardSync:    hardSync,
		SkipKeys:    append(append([]string(nil), cfg.SkipKeys...), skipKeys...),
	})

	if out != nil {
		printOutcome(out, dryRun)
	}
	if err != nil {
		var partial *syncer.PartialError
		if errors.As(err, &partial) {
			logWarning("Files already written before the failure are kept.")
			if len(partial.Remaining) > 0 {
				logWarning("Not synced: %s", strings.Join(partial.Remaining, ", "))
			}
		}
		if pe, ok := provider.AsError(err); ok && pe.Code == provider.CodeInsufficientCredits {
			if pe.CurrentBalance != nil && pe.RequiredCredits != nil {
				logError("Insufficient credits: balance %d, required %d. Top up and re-run.",
					*pe.CurrentBalance, *pe.RequiredCredits)
				return fmt.Errorf("sync incomplete")
			}
		}
		return err
	}
	return nil
}

func printOutcome(out *syncer.Outcome, dryRun bool) {
	if len(out.NewKeys) == 0 && len(out.ChangedKeys) == 0 && out.TotalToSync == 0 {
		logSuccess("%s", i18n.T("Nothing to sync: all translations are up to date"))
	} else {
		logInfo("%d new, %d changed (%s)", len(out.NewKeys), len(out.ChangedKeys),
			i18n.N("%d key to translate", "%d keys to translate", out.TotalToSync))
	}

	langs := make([]string, 0, len(out.Languages))
	for lang := range out.Languages {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	for _, lang := range langs {
		lo := out.Languages[lang]
		line := fmt.Sprintf("  %s: %d translated", langmeta.Display(lang), lo.TranslatedCount)
		if len(lo.SkippedKeys) > 0 {
			line += fmt.Sprintf(", %d skipped", len(lo.SkippedKeys))
		}
		fmt.Fprintln(os.Stderr, line)
	}

	if len(out.ObsoleteKeys) > 0 {
		files := make([]string, 0, len(out.ObsoleteKeys))
		for f := range out.ObsoleteKeys {
			files = append(files, f)
		}
		sort.Strings(files)
		for _, f := range files {
			if dryRun {
				logWarning("%s: %d obsolete keys would be pruned", f, len(out.ObsoleteKeys[f]))
			} else {
				logInfo("%s: pruned %d obsolete keys", f, len(out.ObsoleteKeys[f]))
			}
		}
	}

	switch {
	case dryRun:
		logInfo("Estimated cost: %d credits", out.EstimatedCredits)
		logSuccess("%s", i18n.T("Dry run: no files were written"))
	case len(out.FilesWritten) > 0:
		logSuccess("%s: %d files written, %d credits used",
			i18n.T("Sync complete"), len(out.FilesWritten), out.CreditsUsed)
	}
}

// ---------------------------------------------------------------------------
// auth (manage the stored API key)
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the provider API key",
	}

	login := &cobra.Command{
		Use:   "login <api-key>",
		Short: "Store an API key for future runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := settings.StoreAPIKey(args[0]); err != nil {
				return err
			}
			logSuccess("API key stored")
			return nil
		},
	}

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := settings.ClearAPIKey(); err != nil {
				return err
			}
			logSuccess("API key removed")
			return nil
		},
	}

	cmd.AddCommand(login, logout)
	return cmd
}
