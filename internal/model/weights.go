package model

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Weight families.
const (
	FamilyGPT    = "GPT"
	FamilySoVITS = "SoVITS"
)

// ErrNoSelection is returned when no weights were selected for a family and
// version yet.
var ErrNoSelection = errors.New("no weights selected")

// Selection records the weights file last selected for a family/version.
type Selection struct {
	Family     string
	Version    string
	Path       string
	SHA256     string
	SelectedAt time.Time
}

// Registry persists weight selections in SQLite.
type Registry struct {
	db *sql.DB
}

// OpenRegistry opens or creates the registry database at path.
func OpenRegistry(path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create registry directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open weights registry: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS weight_selections (
			family TEXT NOT NULL,
			version TEXT NOT NULL,
			path TEXT NOT NULL,
			sha256 TEXT NOT NULL,
			selected_at INTEGER NOT NULL,
			PRIMARY KEY (family, version)
		)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create weights table: %w", err)
	}

	return &Registry{db: db}, nil
}

// Select marks path as the current weights of family/version.
func (r *Registry) Select(ctx context.Context, family, version, path string) (Selection, error) {
	if family != FamilyGPT && family != FamilySoVITS {
		return Selection{}, fmt.Errorf("unknown weights family %q (want %s|%s)", family, FamilyGPT, FamilySoVITS)
	}
	if version == "" {
		return Selection{}, errors.New("weights version is required")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return Selection{}, fmt.Errorf("resolve weights path: %w", err)
	}
	sum, err := fileSHA256(abs)
	if err != nil {
		return Selection{}, err
	}

	sel := Selection{Family: family, Version: version, Path: abs, SHA256: sum, SelectedAt: time.Now().UTC().Truncate(time.Second)}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO weight_selections (family, version, path, sha256, selected_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(family, version) DO UPDATE SET
			path = excluded.path,
			sha256 = excluded.sha256,
			selected_at = excluded.selected_at`,
		sel.Family, sel.Version, sel.Path, sel.SHA256, sel.SelectedAt.Unix())
	if err != nil {
		return Selection{}, fmt.Errorf("record weights selection: %w", err)
	}
	return sel, nil
}

// Current returns the selection for family/version, or ErrNoSelection.
func (r *Registry) Current(ctx context.Context, family, version string) (Selection, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT family, version, path, sha256, selected_at FROM weight_selections WHERE family = ? AND version = ?",
		family, version)

	sel, err := scanSelection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Selection{}, fmt.Errorf("%s %s: %w", family, version, ErrNoSelection)
	}
	if err != nil {
		return Selection{}, fmt.Errorf("query weights selection: %w", err)
	}
	return sel, nil
}

// List returns every selection ordered by family and version.
func (r *Registry) List(ctx context.Context) ([]Selection, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT family, version, path, sha256, selected_at FROM weight_selections ORDER BY family, version")
	if err != nil {
		return nil, fmt.Errorf("list weights selections: %w", err)
	}
	defer rows.Close()

	var out []Selection
	for rows.Next() {
		sel, err := scanSelection(rows)
		if err != nil {
			return nil, fmt.Errorf("read weights selection: %w", err)
		}
		out = append(out, sel)
	}
	return out, rows.Err()
}

// Verify reports whether the selected file still matches its recorded
// checksum.
func (s Selection) Verify() (bool, error) {
	sum, err := fileSHA256(s.Path)
	if err != nil {
		return false, err
	}
	return sum == s.SHA256, nil
}

func (r *Registry) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSelection(s scanner) (Selection, error) {
	var sel Selection
	var at int64
	if err := s.Scan(&sel.Family, &sel.Version, &sel.Path, &sel.SHA256, &at); err != nil {
		return Selection{}, err
	}
	sel.SelectedAt = time.Unix(at, 0).UTC()
	return sel, nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read file for checksum: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
