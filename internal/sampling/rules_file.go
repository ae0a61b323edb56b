package sampling

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// ErrInvalidRules is returned for a rule document that cannot be used.
var ErrInvalidRules = errors.New("invalid sampling rules")

// Format identifies a rule file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// RuleSpec is one rule as written in a rule file.
type RuleSpec struct {
	Description string  `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Priority    int     `json:"priority,omitempty" yaml:"priority,omitempty" toml:"priority,omitempty"`
	Host        string  `json:"host,omitempty" yaml:"host,omitempty" toml:"host,omitempty"`
	HTTPMethod  string  `json:"http_method,omitempty" yaml:"http_method,omitempty" toml:"http_method,omitempty"`
	URLPath     string  `json:"url_path,omitempty" yaml:"url_path,omitempty" toml:"url_path,omitempty"`
	ServiceName string  `json:"service_name,omitempty" yaml:"service_name,omitempty" toml:"service_name,omitempty"`
	ServiceType string  `json:"service_type,omitempty" yaml:"service_type,omitempty" toml:"service_type,omitempty"`
	FixedTarget int64   `json:"fixed_target" yaml:"fixed_target" toml:"fixed_target"`
	Rate        float64 `json:"rate" yaml:"rate" toml:"rate"`
}

func (s RuleSpec) rule() *Rule {
	return &Rule{
		Name:        s.Description,
		Priority:    s.Priority,
		Host:        s.Host,
		HTTPMethod:  s.HTTPMethod,
		URLPath:     s.URLPath,
		ServiceName: s.ServiceName,
		ServiceType: s.ServiceType,
		FixedTarget: s.FixedTarget,
		Rate:        s.Rate,
	}
}

// Manifest is a complete rule document.
type Manifest struct {
	Version int        `json:"version" yaml:"version" toml:"version"`
	Default *RuleSpec  `json:"default" yaml:"default" toml:"default"`
	Rules   []RuleSpec `json:"rules,omitempty" yaml:"rules,omitempty" toml:"rules,omitempty"`
}

// DefaultManifest samples the first request each second and 5% of the rest.
func DefaultManifest() *Manifest {
	return &Manifest{
		Version: 2,
		Default: &RuleSpec{FixedTarget: 1, Rate: 0.05},
	}
}

// Validate checks version, the default rule and every rule's numbers.
func (m *Manifest) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: empty document", ErrInvalidRules)
	}
	if m.Version != 1 && m.Version != 2 {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidRules, m.Version)
	}
	if m.Default == nil {
		return fmt.Errorf("%w: missing default rule", ErrInvalidRules)
	}
	if err := validateNumbers("default", *m.Default); err != nil {
		return err
	}
	for i, r := range m.Rules {
		name := r.Description
		if name == "" {
			name = fmt.Sprintf("rules[%d]", i)
		}
		if err := validateNumbers(name, r); err != nil {
			return err
		}
	}
	return nil
}

func validateNumbers(name string, r RuleSpec) error {
	if r.FixedTarget < 0 {
		return fmt.Errorf("%w: %s: fixed_target must not be negative", ErrInvalidRules, name)
	}
	if r.Rate < 0 || r.Rate > 1 {
		return fmt.Errorf("%w: %s: rate %v outside [0, 1]", ErrInvalidRules, name, r.Rate)
	}
	return nil
}

// ParseRules decodes and validates a rule document.
func ParseRules(data []byte, format Format) (*Manifest, error) {
	var m Manifest
	var err error
	switch format {
	case FormatJSON:
		err = sonic.Unmarshal(data, &m)
	case FormatYAML:
		err = yaml.Unmarshal(data, &m)
	case FormatTOML:
		err = toml.Unmarshal(data, &m)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidRules, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidRules, format, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// FormatFromPath picks the encoding from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: unrecognized extension in %q", ErrInvalidRules, path)
	}
}

// LoadRulesFile reads and parses the rule file at path.
func LoadRulesFile(path string) (*Manifest, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sampling rules: %w", err)
	}
	return ParseRules(data, format)
}
