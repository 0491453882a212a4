package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	droplet "github.com/goliatone/go-droplet"
)

// Dialects the droplet ships schema for. Postgres files sit at the tree
// root; sqlite alternatives live under sqlite/.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const treePath = "data/sql/migrations"

// FilesystemSpec pairs a SQL dialect with its slice of the embedded
// migration tree.
type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// RegisterFunc receives one dialect's migration filesystem, typically to
// hand it to the persistence client's SQL migration registry.
type RegisterFunc func(ctx context.Context, dialect string, fsys fs.FS) error

// Registration reports which dialects were resolved and registered.
type Registration struct {
	Targets     []string
	Filesystems []FilesystemSpec
}

type Option func(*Registration)

// WithValidationTargets narrows registration to the named dialects. A
// process opens one database, so the binary registers only that dialect.
func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		next := normalizeDialects(targets)
		if len(next) == 0 {
			return
		}
		r.Targets = next
	}
}

// Filesystems resolves the embedded migration tree into one spec per
// dialect. Every dialect must carry at least one *.up.sql file; an empty
// tree means the embed pattern and the data directory drifted apart.
func Filesystems() ([]FilesystemSpec, error) {
	base, err := fs.Sub(droplet.GetMigrationsFS(), treePath)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", treePath, err)
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	filesystems := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: treePath, FS: base},
		{Dialect: DialectSQLite, Path: treePath + "/sqlite", FS: sqliteFS},
	}
	for _, spec := range filesystems {
		matches, globErr := fs.Glob(spec.FS, "*.up.sql")
		if globErr != nil {
			return nil, fmt.Errorf("migrations: glob %s %s: %w", spec.Dialect, spec.Path, globErr)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", spec.Dialect, spec.Path)
		}
	}
	return filesystems, nil
}

// Register resolves the embedded tree and hands each targeted dialect's
// filesystem to registerFn.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{Targets: []string{DialectPostgres, DialectSQLite}}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}

	filesystems, err := Filesystems()
	if err != nil {
		return reg, err
	}
	reg.Filesystems = filesystems

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&reg)
	}
	if len(reg.Targets) == 0 {
		return reg, fmt.Errorf("migrations: validation targets are required")
	}

	for _, spec := range reg.Filesystems {
		if !slices.Contains(reg.Targets, spec.Dialect) {
			continue
		}
		if err := registerFn(ctx, spec.Dialect, spec.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", spec.Dialect, spec.Path, err)
		}
	}
	return reg, nil
}

func normalizeDialects(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(strings.ToLower(value))
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
