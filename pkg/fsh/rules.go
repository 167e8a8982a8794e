// Package fsh checks the filesystem hierarchy of a system: the required
// top-level directories and the files no installed package explains.
package fsh

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"github.com/fmtools/fmsys/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed embedded/fsh.yaml
var defaultRules []byte

// Directory is a directory that must exist with Mode
type Directory struct {
	Path string `yaml:"path"`
	Mode Mode   `yaml:"mode"`
}

// Mode is an octal permission string, sticky bit included ("1777")
type Mode os.FileMode

// UnmarshalYAML implements yaml.Unmarshaler
func (m *Mode) UnmarshalYAML(node *yaml.Node) error {
	v, err := strconv.ParseUint(node.Value, 8, 32)
	if err != nil || v > 07777 {
		return fmt.Errorf("invalid mode %q at line %d", node.Value, node.Line)
	}
	mode := os.FileMode(v & 0777)
	if v&01000 != 0 {
		mode |= os.ModeSticky
	}
	if v&02000 != 0 {
		mode |= os.ModeSetgid
	}
	if v&04000 != 0 {
		mode |= os.ModeSetuid
	}
	*m = Mode(mode)
	return nil
}

// FileMode returns m as an os.FileMode
func (m Mode) FileMode() os.FileMode { return os.FileMode(m) }

// Rules is the declarative hierarchy
type Rules struct {
	Directories []Directory `yaml:"directories"`
	SystemData  []string    `yaml:"system_data"`
	UserData    []string    `yaml:"user_data"`
	Boot        []string    `yaml:"boot"`
	Runtime     []string    `yaml:"runtime"`
	Layout      []string    `yaml:"layout"`
	Trash       []string    `yaml:"trash"`
}

// Swept returns the wildcards of everything a system may contain
func (r *Rules) Swept() []string {
	return concat(r.SystemData, r.UserData, r.Boot, r.Runtime)
}

// Excluded returns the wildcards the sweep must not look into. Boot files
// are managed by the kernel tooling.
func (r *Rules) Excluded() []string {
	return concat(r.Layout, r.Trash, r.Boot)
}

func concat(sets ...[]string) []string {
	var out []string
	for _, set := range sets {
		out = append(out, set...)
	}
	return out
}

// DefaultRules parses the embedded hierarchy
func DefaultRules() (*Rules, error) {
	return ParseRules(defaultRules)
}

// ParseRules parses a hierarchy document
func ParseRules(data []byte) (*Rules, error) {
	var r Rules
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&r); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "invalid filesystem hierarchy rules")
	}
	return &r, nil
}
