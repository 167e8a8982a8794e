package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigFile is the system configuration file
const DefaultConfigFile = "/etc/fmsys/fmsys.toml"

// EnvPrefix prefixes environment overrides. Nested keys are separated by a
// double underscore: FMSYS_PATHS__ROOT sets paths.root.
const EnvPrefix = "FMSYS_"

//go:embed embedded/defaults.toml
var defaultConfig []byte

// rawBytesProvider implements koanf provider for raw bytes
type rawBytesProvider struct{ bytes []byte }

func (r *rawBytesProvider) ReadBytes() ([]byte, error) { return r.bytes, nil }
func (r *rawBytesProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("not implemented")
}

// Load loads the configuration. configPath may be empty, in which case the
// system configuration file is used when it exists.
func Load(configPath string) (*Config, error) {
	k, err := newKoanf(configPath)
	if err != nil {
		return nil, err
	}

	cfg, err := unmarshal(k)
	if err != nil {
		return nil, err
	}

	if err := postProcess(cfg); err != nil {
		return nil, fmt.Errorf("failed to post-process configuration: %w", err)
	}
	return cfg, nil
}

// Default returns the embedded defaults, ignoring any file or environment
func Default() *Config {
	k := koanf.New(".")
	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		panic(fmt.Sprintf("embedded defaults are invalid: %v", err))
	}
	cfg, err := unmarshal(k)
	if err == nil {
		err = postProcess(cfg)
	}
	if err != nil {
		panic(fmt.Sprintf("embedded defaults are invalid: %v", err))
	}
	return cfg
}

func unmarshal(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return &cfg, nil
}

func newKoanf(configPath string) (*koanf.Koanf, error) {
	k := koanf.New(".")

	// 1. Load system defaults
	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Load the configuration file
	explicit := configPath != ""
	if !explicit {
		configPath = DefaultConfigFile
	}
	if _, err := os.Stat(configPath); err == nil {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}

	// 3. Load env vars
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	return k, nil
}

func postProcess(cfg *Config) error {
	if cfg.Paths.Root == "" {
		cfg.Paths.Root = "/"
	}
	cfg.Paths.Root = filepath.Clean(cfg.Paths.Root)

	for _, p := range []*string{
		&cfg.Paths.PortageConfigDir, &cfg.Paths.ReposDir, &cfg.Paths.OverlaysDir,
		&cfg.Paths.OverlayFilesDir, &cfg.Paths.DataDir, &cfg.Paths.PatchDir,
		&cfg.Paths.VdbDir, &cfg.Paths.BootDir, &cfg.Paths.OverlayDB,
		&cfg.Paths.ProcDir, &cfg.Paths.SysDir,
	} {
		if !filepath.IsAbs(*p) {
			return fmt.Errorf("path %q must be absolute", *p)
		}
		*p = filepath.Clean(*p)
	}

	for _, d := range cfg.PortageConfig.Dirs {
		if !strings.HasPrefix(d.Name, "package.") {
			return fmt.Errorf("portage config dir %q is not a package.* directory", d.Name)
		}
		for _, l := range d.Links {
			if strings.Count(l.Slot, "?") > 1 {
				return fmt.Errorf("slot %q in %s has more than one placeholder", l.Slot, d.Name)
			}
		}
	}

	if cfg.Overlays.Priority <= 0 {
		return fmt.Errorf("overlay priority must be positive, got %d", cfg.Overlays.Priority)
	}
	return nil
}
