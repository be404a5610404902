package ops

import (
	"context"

	"github.com/hpungsan/brsave/internal/archive"
	"github.com/hpungsan/brsave/internal/config"
	"github.com/hpungsan/brsave/internal/errors"
	"github.com/hpungsan/brsave/internal/logging"
	"github.com/hpungsan/brsave/internal/mps"
	"github.com/hpungsan/brsave/internal/vfs"
)

// DataModeRules converts configured data modes into VFS rules.
func DataModeRules(modes []config.DataModeConfig) ([]vfs.DataModeRule, error) {
	rules := make([]vfs.DataModeRule, 0, len(modes))
	for _, m := range modes {
		if m.Pattern == "" || m.Globals == "" {
			return nil, errors.NewInvalidRequest("data_modes entry needs both pattern and globals")
		}
		if len(m.Lookups) == 0 {
			return nil, errors.NewInvalidRequest("data_modes entry " + m.Pattern + " has no lookups")
		}
		rules = append(rules, vfs.DataModeRule{
			Pattern:     m.Pattern,
			GlobalsPath: m.Globals,
			Mode:        mps.TableLookup(m.Lookups),
		})
	}
	if err := vfs.ValidateRules(rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// FSOptions maps configuration onto VFS options.
func FSOptions(cfg *config.Config) ([]vfs.Option, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	rules, err := DataModeRules(cfg.DataModes)
	if err != nil {
		return nil, err
	}
	opts := []vfs.Option{vfs.WithLogger(logging.Component("vfs"))}
	if len(cfg.SharedSchemaFolders) > 0 {
		opts = append(opts, vfs.WithSharedSchemaFolders(cfg.SharedSchemaFolders))
	}
	if len(rules) > 0 {
		opts = append(opts, vfs.WithDataModes(rules...))
	}
	return opts, nil
}

// OpenSave opens a .brdb or .brz save configured by cfg.
// The caller must Close it.
func OpenSave(ctx context.Context, path string, cfg *config.Config) (*archive.Save, error) {
	opts, err := FSOptions(cfg)
	if err != nil {
		return nil, err
	}
	return archive.Open(ctx, path, opts...)
}
