// Package projectconfig manages the merged project configuration file.
//
// Packs contribute settings on install (default mode, project settings,
// custom commands); those settings are shallow-merged into config.json and
// removed again on uninstall when they still carry the pack's values. All
// read-modify-write cycles run under the per-project file lock so concurrent
// installers do not clobber each other.
package projectconfig

import (
	"encoding/json"
	"os"
	"reflect"

	"github.com/gofrs/flock"
	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"

	"github.com/arthur-debert/agentpack/pkg/errors"
	"github.com/arthur-debert/agentpack/pkg/logging"
	"github.com/arthur-debert/agentpack/pkg/paths"
	"github.com/arthur-debert/agentpack/pkg/types"
)

const delim = "."

// Store reads and updates the project configuration file.
type Store struct {
	fs     types.FS
	paths  *paths.Paths
	logger zerolog.Logger
}

// New returns a Store rooted at the project described by p.
func New(fs types.FS, p *paths.Paths) *Store {
	return &Store{
		fs:     fs,
		paths:  p,
		logger: logging.GetLogger("projectconfig.store"),
	}
}

// Load reads config.json into a koanf tree. A missing file yields an empty
// tree, not an error.
func (s *Store) Load() (*koanf.Koanf, error) {
	k := koanf.New(delim)
	data, err := s.fs.ReadFile(s.paths.ConfigFile())
	if err != nil {
		if os.IsNotExist(err) {
			return k, nil
		}
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to read project configuration")
	}
	parsed, err := kjson.Parser().Unmarshal(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "failed to parse project configuration").
			WithDetail("path", s.paths.ConfigFile())
	}
	if err := k.Load(confmap.Provider(parsed, delim), nil); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load project configuration")
	}
	return k, nil
}

// Settings returns the current configuration as a nested map.
func (s *Store) Settings() (map[string]any, error) {
	k, err := s.Load()
	if err != nil {
		return nil, err
	}
	return k.Raw(), nil
}

// ApplyPackSettings shallow-merges the configuration a pack contributes into
// config.json. Pack values override existing keys.
func (s *Store) ApplyPackSettings(packName string, cfg *types.PackConfiguration) error {
	layer := packLayer(cfg)
	if len(layer) == 0 {
		return nil
	}
	return s.WithProjectLock(func() error {
		k, err := s.Load()
		if err != nil {
			return err
		}
		if err := k.Load(confmap.Provider(layer, delim), nil); err != nil {
			return errors.Wrap(err, errors.ErrConfigLoad, "failed to merge pack configuration")
		}
		s.logger.Debug().Str("pack", packName).Int("keys", len(layer)).Msg("merged pack settings")
		return s.write(k)
	})
}

// RemovePackSettings removes the keys a pack contributed. A key is only
// removed when it still holds the pack's value, so settings the user changed
// after install survive the uninstall.
func (s *Store) RemovePackSettings(packName string, cfg *types.PackConfiguration) error {
	if cfg == nil {
		return nil
	}
	return s.WithProjectLock(func() error {
		k, err := s.Load()
		if err != nil {
			return err
		}
		changed := false
		if cfg.DefaultMode != "" && k.String("defaultMode") == cfg.DefaultMode {
			k.Delete("defaultMode")
			changed = true
		}
		for key, value := range cfg.ProjectSettings {
			if k.Exists(key) && reflect.DeepEqual(k.Get(key), value) {
				k.Delete(key)
				changed = true
			}
		}
		for _, cmd := range cfg.CustomCommands {
			key := "customCommands" + delim + cmd.Name
			if k.Exists(key) {
				k.Delete(key)
				changed = true
			}
		}
		if !changed {
			return nil
		}
		s.logger.Debug().Str("pack", packName).Msg("removed pack settings")
		return s.write(k)
	})
}

// WithProjectLock runs fn while holding the per-project file lock. The lock
// guards every read-modify-write of config.json and packs.json.
func (s *Store) WithProjectLock(fn func() error) error {
	if err := s.fs.MkdirAll(s.paths.StateDir(), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrDirCreate, "failed to create state directory")
	}
	lock := flock.New(s.paths.LockFile())
	if err := lock.Lock(); err != nil {
		return errors.Wrap(err, errors.ErrFileAccess, "failed to acquire project lock").
			WithDetail("path", s.paths.LockFile())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to release project lock")
		}
	}()
	return fn()
}

func (s *Store) write(k *koanf.Koanf) error {
	data, err := json.MarshalIndent(k.Raw(), "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrConfigWrite, "failed to encode project configuration")
	}
	if err := s.fs.WriteFile(s.paths.ConfigFile(), append(data, '\n'), 0o644); err != nil {
		return errors.Wrap(err, errors.ErrConfigWrite, "failed to write project configuration").
			WithDetail("path", s.paths.ConfigFile())
	}
	return nil
}

func packLayer(cfg *types.PackConfiguration) map[string]any {
	if cfg == nil {
		return nil
	}
	layer := map[string]any{}
	if cfg.DefaultMode != "" {
		layer["defaultMode"] = cfg.DefaultMode
	}
	for key, value := range cfg.ProjectSettings {
		layer[key] = value
	}
	if len(cfg.CustomCommands) > 0 {
		commands := map[string]any{}
		for _, cmd := range cfg.CustomCommands {
			commands[cmd.Name] = map[string]any{
				"command":     cmd.Command,
				"description": cmd.Description,
			}
		}
		layer["customCommands"] = commands
	}
	return layer
}
