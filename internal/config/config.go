// Package config holds the run configuration: defaults, an optional JSON
// file and X64DIS_* environment overrides. Flags are applied on top by the
// command layer.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"x64dis/internal/disasm"
)

var ErrBadFormat = errors.New("config: unknown output format")

// Output formats.
const (
	FormatText      = "text"
	FormatGraph     = "graph"
	FormatCallGraph = "callgraph"
	FormatJSON      = "json"
	FormatSummary   = "summary"
)

var formats = []string{FormatText, FormatGraph, FormatCallGraph, FormatJSON, FormatSummary}

// Config represents configuration for the x64dis tool.
type Config struct {
	Mode     string `json:"mode" jsonschema:"title=Mode,description=Traversal mode,enum=linear,enum=recursive,default=linear"`
	Format   string `json:"format" jsonschema:"title=Format,description=Output format,enum=text,enum=graph,enum=callgraph,enum=json,enum=summary,default=text"`
	Base     string `json:"base,omitempty" jsonschema:"title=Base,description=Load address of a raw blob (hex with 0x prefix or decimal)"`
	Entry    string `json:"entry,omitempty" jsonschema:"title=Entry,description=Start address of recursive traversal. Defaults to the ELF entry or the base"`
	Symbol   string `json:"symbol,omitempty" jsonschema:"title=Symbol,description=Start recursive traversal at this symbol"`
	Color    bool   `json:"color" jsonschema:"title=Color,description=Colour text listings on a terminal,default=true"`
	Demangle bool   `json:"demangle" jsonschema:"title=Demangle,description=Demangle C++ symbol names in labels"`
	MaxInsns int    `json:"maxInsns,omitempty" jsonschema:"title=Max Instructions,description=Stop after this many instructions (0 means no limit),minimum=0"`
	Verify   bool   `json:"verify" jsonschema:"title=Verify,description=Cross-check instruction lengths against a full x86-64 decoder"`
	Debug    bool   `json:"debug" jsonschema:"title=Debug,description=Enable debug logging"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Mode:   disasm.ModeLinear.String(),
		Format: FormatText,
		Color:  true,
	}
}

// Load reads a JSON file over the defaults. An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from X64DIS_* variables.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv("X64DIS_MODE"); ok {
		c.Mode = v
	}
	if v, ok := os.LookupEnv("X64DIS_FORMAT"); ok {
		c.Format = v
	}
	if v, ok := os.LookupEnv("X64DIS_BASE"); ok {
		c.Base = v
	}
	if v, ok := os.LookupEnv("X64DIS_ENTRY"); ok {
		c.Entry = v
	}
	if v, ok := os.LookupEnv("X64DIS_SYMBOL"); ok {
		c.Symbol = v
	}
	if os.Getenv("X64DIS_NO_COLOR") != "" {
		c.Color = false
	}
	for name, dst := range map[string]*bool{
		"X64DIS_DEMANGLE": &c.Demangle,
		"X64DIS_VERIFY":   &c.Verify,
		"X64DIS_DEBUG":    &c.Debug,
	} {
		v, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = b
	}
	if v, ok := os.LookupEnv("X64DIS_MAX_INSNS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("X64DIS_MAX_INSNS: %w", err)
		}
		c.MaxInsns = n
	}
	return nil
}

// Validate checks the enumerated and numeric fields.
func (c *Config) Validate() error {
	if _, err := c.TraversalMode(); err != nil {
		return err
	}
	if !ValidFormat(c.Format) {
		return fmt.Errorf("%w %q (want one of %s)", ErrBadFormat, c.Format, strings.Join(formats, ", "))
	}
	if _, err := c.BaseAddr(); err != nil {
		return err
	}
	if _, _, err := c.EntryAddr(); err != nil {
		return err
	}
	if c.MaxInsns < 0 {
		return fmt.Errorf("config: maxInsns must not be negative, got %d", c.MaxInsns)
	}
	return nil
}

// ValidFormat reports whether f names an output format.
func ValidFormat(f string) bool {
	for _, known := range formats {
		if f == known {
			return true
		}
	}
	return false
}

// TraversalMode parses Mode.
func (c *Config) TraversalMode() (disasm.Mode, error) {
	return disasm.ParseMode(c.Mode)
}

// BaseAddr parses Base. An empty base is zero.
func (c *Config) BaseAddr() (uint64, error) {
	if c.Base == "" {
		return 0, nil
	}
	return parseAddr("base", c.Base)
}

// EntryAddr parses Entry. The second result is false when no entry is set.
func (c *Config) EntryAddr() (uint64, bool, error) {
	if c.Entry == "" {
		return 0, false, nil
	}
	v, err := parseAddr("entry", c.Entry)
	return v, err == nil, err
}

func parseAddr(field, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("config: bad %s %q: %w", field, s, err)
	}
	return v, nil
}
