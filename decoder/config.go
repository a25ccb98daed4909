// Copyright (C) 2021 Michael J. Fromberger. All Rights Reserved.

package decoder

import (
	"errors"
	"fmt"
	"io"

	"github.com/creachadair/jbind/jpath"
	"github.com/creachadair/jbind/shape"
	yaml "github.com/goccy/go-yaml"
)

// Config is a serializable form of decoder settings.
//
// Example:
//
//	max_depth: 32
//	strict: true
//	terminal: [scalar, dynamic, map]
//	exclude:
//	  - $..password
//	  - $.metadata
type Config struct {
	MaxDepth        int      `yaml:"max_depth"`
	Strict          bool     `yaml:"strict"`
	DisallowUnknown bool     `yaml:"disallow_unknown"`
	CaseInsensitive bool     `yaml:"case_insensitive"`
	Comments        bool     `yaml:"comments"`
	TrailingCommas  bool     `yaml:"trailing_commas"`
	Terminal        []string `yaml:"terminal"` // shape names
	Exclude         []string `yaml:"exclude"`  // JSONPath expressions
}

// LoadConfig reads a YAML configuration from r. Empty input yields an empty
// configuration. Unknown fields are an error.
func LoadConfig(r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r, yaml.DisallowUnknownField()).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoder: load config: %w", err)
	}
	return &cfg, nil
}

// Options returns the options described by c. It reports an error if c names
// an unknown shape or an invalid path.
func (c *Config) Options() ([]Option, error) {
	opts := []Option{
		WithMaxDepth(c.MaxDepth),
		WithStrict(c.Strict),
		WithDisallowUnknown(c.DisallowUnknown),
		WithCaseInsensitive(c.CaseInsensitive),
		WithComments(c.Comments),
		WithTrailingCommas(c.TrailingCommas),
	}
	if len(c.Terminal) != 0 {
		var set shape.Set
		for _, name := range c.Terminal {
			s, err := shape.ParseShape(name)
			if err != nil {
				return nil, fmt.Errorf("decoder: terminal: %w", err)
			}
			set = set.Add(s)
		}
		opts = append(opts, WithTerminal(set))
	}
	for _, p := range c.Exclude {
		e, err := jpath.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("decoder: exclude %q: %w", p, err)
		}
		opts = append(opts, WithExclude(e))
	}
	return opts, nil
}
