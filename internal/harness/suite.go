package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SuiteResult summarizes a batch of scenario files.
type SuiteResult struct {
	Total    int            `json:"total"`
	Passed   int            `json:"passed"`
	Failed   int            `json:"failed"`
	Failures []SuiteFailure `json:"failures,omitempty"`
	Results  []*Result      `json:"-"`
}

// SuiteFailure is one failing scenario file.
type SuiteFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// ScenarioFiles expands paths into scenario files. Directories contribute
// their *.yaml and *.yml entries, sorted by name.
func ScenarioFiles(paths ...string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("scenario path: %w", err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("scenario dir: %w", err)
		}
		var found []string
		for _, e := range entries {
			ext := filepath.Ext(e.Name())
			if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
				found = append(found, filepath.Join(p, e.Name()))
			}
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}

// SuiteOption configures RunSuite.
type SuiteOption func(*suiteConfig)

type suiteConfig struct {
	goldenDir string
	update    bool
}

// WithGoldenDir compares each trace with dir/{scenario name}.golden.
// Scenarios without a golden file are judged by their assertions alone.
func WithGoldenDir(dir string) SuiteOption {
	return func(c *suiteConfig) { c.goldenDir = dir }
}

// WithUpdate rewrites golden files instead of comparing them.
func WithUpdate() SuiteOption {
	return func(c *suiteConfig) { c.update = true }
}

// RunSuite loads and runs every scenario file. A file that fails to load
// or run counts as failed; the suite always runs to the end.
func RunSuite(files []string, opts ...SuiteOption) *SuiteResult {
	var cfg suiteConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	res := &SuiteResult{}
	for _, path := range files {
		res.Total++
		s, err := LoadScenario(path)
		if err != nil {
			res.fail(path, err.Error())
			continue
		}
		r, err := Run(s)
		if err != nil {
			res.fail(path, err.Error())
			continue
		}
		res.Results = append(res.Results, r)
		if cfg.goldenDir != "" {
			if err := checkGolden(cfg, s.Name, r); err != nil {
				res.fail(path, err.Error())
				continue
			}
		}
		if !r.Pass {
			res.fail(path, strings.Join(r.Errors, "\n"))
			continue
		}
		res.Passed++
	}
	return res
}

func checkGolden(cfg suiteConfig, name string, r *Result) error {
	trace, err := RenderTrace(name, r.Trace)
	if err != nil {
		return err
	}
	path := filepath.Join(cfg.goldenDir, name+".golden")
	if cfg.update {
		if err := os.MkdirAll(cfg.goldenDir, 0o755); err != nil {
			return fmt.Errorf("golden dir: %w", err)
		}
		if err := os.WriteFile(path, trace, 0o644); err != nil {
			return fmt.Errorf("write golden: %w", err)
		}
		return nil
	}
	want, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read golden: %w", err)
	}
	if !bytes.Equal(want, trace) {
		return fmt.Errorf("trace does not match %s (rerun with update to regenerate)", path)
	}
	return nil
}

func (r *SuiteResult) fail(path, msg string) {
	r.Failed++
	r.Failures = append(r.Failures, SuiteFailure{Path: path, Error: msg})
}
