package config

import (
	"bytes"
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// GenerateConfig renders cfg as a TOML document suitable for
// /etc/fmsys/fmsys.toml
func GenerateConfig(cfg *Config) (string, error) {
	var buf bytes.Buffer
	buf.WriteString("# fmsys configuration\n\n")

	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode configuration: %w", err)
	}
	return buf.String(), nil
}
