// Package settings loads the run configuration kept in
// .udefarp/settings.yaml under a working directory.
//
// A working directory holds every raster and table of one jurisdiction's
// modeling run. The settings file records the engine configuration and the
// values that later steps reuse, such as the NRT of the fitting period.
package settings

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/alexshd/udefarp"
)

// Dir and File locate the settings file relative to a working directory.
const (
	Dir  = ".udefarp"
	File = "settings.yaml"
)

// Settings holds the configuration of one working directory.
type Settings struct {
	Engine   udefarp.Config `yaml:"engine"`
	LogLevel string         `yaml:"log_level,omitempty"`

	// NRT is the fitting period's deforestation count, recorded by the nrt
	// command. Nil until computed.
	NRT *int `yaml:"nrt,omitempty"`
}

// Default returns settings with udefarp.DefaultConfig.
func Default() *Settings {
	return &Settings{Engine: udefarp.DefaultConfig(), LogLevel: "info"}
}

// Path returns the settings file path under root.
func Path(root string) string {
	return filepath.Join(root, Dir, File)
}

// Load reads the settings file under root. Keys absent from the file keep
// their defaults; a missing file yields Default().
func Load(root string) (*Settings, error) {
	s := Default()
	path := Path(root)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	if err := s.Engine.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if _, err := s.Level(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Save writes s to the settings file under root, creating the directory.
func (s *Settings) Save(root string) error {
	path := Path(root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// SetNRT records the NRT of the fitting period.
func (s *Settings) SetNRT(nrt int) {
	s.NRT = &nrt
}

// RecordedNRT returns the stored NRT, failing when the nrt command has not
// run in this working directory yet.
func (s *Settings) RecordedNRT() (int, error) {
	if s.NRT == nil {
		return 0, fmt.Errorf("no NRT recorded in %s; run 'udefarp nrt' on the fitting period or pass -nrt", filepath.Join(Dir, File))
	}
	return *s.NRT, nil
}

// Level parses LogLevel. Empty means info.
func (s *Settings) Level() (slog.Level, error) {
	var level slog.Level
	name := strings.TrimSpace(s.LogLevel)
	if name == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level %q: %w", s.LogLevel, err)
	}
	return level, nil
}
