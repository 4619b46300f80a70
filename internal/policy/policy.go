// Package policy holds the classification rules consulted on every tick:
// the media keyword table and the reminder/break presets.
package policy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/focusd/screen_mon/internal/domain"
)

//go:embed keywords.yaml
var defaultKeywordsYAML []byte

// KeywordTable is a versioned list of substrings identifying media playback.
// Matching is case-insensitive.
type KeywordTable struct {
	Version  int      `yaml:"version"`
	Keywords []string `yaml:"keywords"`
}

// DefaultKeywordTable returns the table shipped with the binary.
func DefaultKeywordTable() *KeywordTable {
	table, err := ParseKeywordTable(defaultKeywordsYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded keyword table is invalid: %v", err))
	}
	return table
}

// ParseKeywordTable decodes a YAML keyword table.
func ParseKeywordTable(data []byte) (*KeywordTable, error) {
	var table KeywordTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse keyword yaml: %w", err)
	}
	if table.Version <= 0 {
		return nil, errors.New("keyword table: version must be positive")
	}

	normalized := make([]string, 0, len(table.Keywords))
	seen := make(map[string]struct{}, len(table.Keywords))
	for _, kw := range table.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		normalized = append(normalized, kw)
	}
	table.Keywords = normalized
	return &table, nil
}

// LoadKeywordTable reads a table from path, or returns the default when path is empty.
func LoadKeywordTable(path string) (*KeywordTable, error) {
	if path == "" {
		return DefaultKeywordTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyword table: %w", err)
	}
	return ParseKeywordTable(data)
}

// IsVideoPlayback reports whether the process name contains any keyword.
// Unknown processes never match.
func (t *KeywordTable) IsVideoPlayback(process domain.ProcessIdentity) bool {
	name, ok := process.Name()
	if !ok || t == nil {
		return false
	}
	name = strings.ToLower(name)
	for _, kw := range t.Keywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}
