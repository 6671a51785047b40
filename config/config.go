// Package config loads the project configuration file .langsync.yaml:
// the source language, target languages, the source files to sync and
// optional provider settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/TedyHub/langsync/codecs"
	"github.com/TedyHub/langsync/detect"
)

// FileName is the project config file name.
const FileName = ".langsync.yaml"

// Provider holds optional provider overrides.
type Provider struct {
	BaseURL string `yaml:"base_url,omitempty"`
	Proxy   string `yaml:"proxy,omitempty"`
}

// Config is the parsed project configuration.
type Config struct {
	// SourceLang is the language the project is authored in.
	SourceLang string `yaml:"source_lang"`
	// Languages are the target languages to keep in sync.
	Languages []string `yaml:"languages"`
	// Files lists the source-language files, relative to the project root.
	Files []string `yaml:"files"`
	// Framework names the i18n framework, informational only.
	Framework string `yaml:"framework,omitempty"`
	// SkipKeys are never translated or overwritten.
	SkipKeys []string `yaml:"skip_keys,omitempty"`
	Provider Provider `yaml:"provider,omitempty"`

	root string
}

// Load reads the config from dir.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no %s found in %s (run \"langsync init\" first)", FileName, dir)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	cfg := &Config{root: dir}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.SourceLang == "" {
		return fmt.Errorf("source_lang is required")
	}
	if len(c.Languages) == 0 {
		return fmt.Errorf("languages is required")
	}
	if len(c.Files) == 0 {
		return fmt.Errorf("files is required")
	}
	for _, f := range c.Files {
		if _, ok := codecs.ForPath(f); !ok {
			return fmt.Errorf("file %q has an unsupported format", f)
		}
	}
	return nil
}

// Root returns the directory the config was loaded from.
func (c *Config) Root() string { return c.root }

// Save writes the config to dir.
func (c *Config) Save(dir string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	c.root = dir
	return nil
}

// Detection builds the detection result the engine consumes from the
// declared files: the source language's files as declared, and each target
// language's files derived by language-token substitution. Target files
// that do not exist on disk are listed anyway — the engine treats a
// missing file as "sync everything".
func (c *Config) Detection() *detect.Result {
	res := &detect.Result{Framework: c.Framework, Confidence: 1}

	src := detect.LanguageFiles{Language: c.SourceLang}
	for _, f := range c.Files {
		abs := filepath.Join(c.root, f)
		src.Files = append(src.Files, detect.FileInfo{Path: abs, RelPath: f})
	}
	res.Languages = append(res.Languages, src)

	for _, lang := range c.Languages {
		if lang == c.SourceLang {
			continue
		}
		group := detect.LanguageFiles{Language: lang}
		for _, f := range c.Files {
			target := detect.LocalizedPath(f, c.SourceLang, lang)
			abs := filepath.Join(c.root, target)
			if codecs.IsCatalog(target) || fileExists(abs) {
				group.Files = append(group.Files, detect.FileInfo{Path: abs, RelPath: target})
			}
		}
		if len(group.Files) > 0 {
			res.Languages = append(res.Languages, group)
		}
	}
	return res
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
