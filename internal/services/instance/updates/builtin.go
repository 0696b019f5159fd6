package updates

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/juju/version/v2"

	"github.com/louisbranch/homebook/internal/platform/fsys"
	"github.com/louisbranch/homebook/internal/platform/i18n"
	"github.com/louisbranch/homebook/internal/platform/paths"
	"github.com/louisbranch/homebook/internal/services/instance/storage"
)

// Store is the persistence used by built-in updates.
type Store interface {
	GetConfiguration(ctx context.Context, name string) (string, bool, error)
	SetConfiguration(ctx context.Context, name, value string) error
	NormalizeUsernames(ctx context.Context) (int64, error)
}

// Deps are the collaborators of the built-in updates.
type Deps struct {
	Store           Store
	FS              fsys.FileSystem
	Paths           paths.Provider
	DefaultLanguage string
}

// Builtin returns the updates shipped with the application.
func Builtin(deps Deps) []Update {
	return []Update{
		{
			Version:     version.MustParse("1.0.1"),
			Description: "ensure default language configuration",
			Run: func(ctx context.Context) error {
				return ensureDefaultLanguage(ctx, deps)
			},
		},
		{
			Version:     version.MustParse("1.1.0"),
			Description: "normalize usernames to lower case",
			Run: func(ctx context.Context) error {
				_, err := deps.Store.NormalizeUsernames(ctx)
				return err
			},
		},
		{
			Version:     version.MustParse("1.2.0"),
			Description: "clear stale temporary files",
			Run: func(ctx context.Context) error {
				return clearTemp(ctx, deps)
			},
		},
	}
}

func ensureDefaultLanguage(ctx context.Context, deps Deps) error {
	_, ok, err := deps.Store.GetConfiguration(ctx, storage.ConfigDefaultLanguage)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	language := i18n.Normalize(deps.DefaultLanguage)
	if language == "" {
		language = i18n.DefaultTag.String()
	}
	return deps.Store.SetConfiguration(ctx, storage.ConfigDefaultLanguage, language)
}

func clearTemp(ctx context.Context, deps Deps) error {
	dir := deps.Paths.TempDir()
	exists, err := deps.FS.DirectoryExists(ctx, dir)
	if err != nil || !exists {
		return err
	}
	entries, err := deps.FS.ReadDir(ctx, dir)
	if err != nil {
		return err
	}
	for _, name := range entries {
		if err := deps.FS.Remove(ctx, filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("clear temp: %w", err)
		}
	}
	return nil
}
