package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// maxRuleFileSize bounds a single rule file.
const maxRuleFileSize = 1 << 20

// ErrRuleFileTooLarge is returned for rule files over maxRuleFileSize.
var ErrRuleFileTooLarge = errors.New("rule file too large")

// LoadFromFS reads every .yaml and .yml file of fsys. Each rule records the
// file it came from in Source.
func LoadFromFS(fsys fs.FS) ([]RawRule, error) {
	return loadTree(fsys, func(name string) string { return name })
}

// LoadFromDir reads the rule files below dir. Hidden directories are
// skipped.
func LoadFromDir(dir string) ([]RawRule, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	return loadTree(os.DirFS(dir), func(name string) string {
		return filepath.Join(dir, filepath.FromSlash(name))
	})
}

func loadTree(fsys fs.FS, source func(string) string) ([]RawRule, error) {
	var all []RawRule
	err := fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if name != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !isYAML(name) {
			return nil
		}
		src := source(name)
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxRuleFileSize {
			return fmt.Errorf("%s (%d bytes, max %d): %w", src, info.Size(), maxRuleFileSize, ErrRuleFileTooLarge)
		}
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading %s: %w", src, err)
		}
		rules, err := decodeRules(data, src)
		if err != nil {
			return err
		}
		all = append(all, rules...)
		return nil
	})
	return all, err
}

// decodeRules decodes every "---" separated document of data. Unknown keys
// and documents without an id are errors; empty documents are skipped.
func decodeRules(data []byte, src string) ([]RawRule, error) {
	var rules []RawRule
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	for doc := 1; ; doc++ {
		var raw RawRule
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return rules, nil
			}
			return nil, fmt.Errorf("parsing %s document %d: %w", src, doc, err)
		}
		if reflect.ValueOf(raw).IsZero() {
			continue
		}
		if raw.ID == "" {
			return nil, fmt.Errorf("%s document %d: rule has no id", src, doc)
		}
		raw.Source = src
		rules = append(rules, raw)
	}
}

func isYAML(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
