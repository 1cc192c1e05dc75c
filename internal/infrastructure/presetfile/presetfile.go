// Package presetfile reads terminal strategy presets stored as .set files.
package presetfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"signalbot-backend/internal/domain"
)

const Ext = ".set"

// Parse reads Key=Value lines. Blank lines and lines starting with '#' are
// skipped, as are lines without '='. Values are kept raw, trailing comments
// included; later duplicates win.
func Parse(r io.Reader) (map[string]string, error) {
	params := make(map[string]string)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		params[key] = strings.TrimSpace(value)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return params, nil
}

// ParseFile parses a single preset file.
func ParseFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// LoadDir reads every .set file in dir. Files named after a bundled
// strategy are returned under both their file name and their STRATEGY_
// alias. A missing directory yields no presets.
func LoadDir(dir string) ([]domain.Preset, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read presets dir: %w", err)
	}

	var presets []domain.Preset
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), Ext) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		params, err := ParseFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("parse preset %s: %w", name, err)
		}
		if len(params) == 0 {
			continue
		}

		presets = append(presets, domain.Preset{Name: name, Parameters: params})
		if alias, ok := domain.PresetAliases[name]; ok {
			presets = append(presets, domain.Preset{Name: alias, Parameters: copyParams(params)})
		}
	}

	sort.Slice(presets, func(i, j int) bool { return presets[i].Name < presets[j].Name })
	return presets, nil
}

func copyParams(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
