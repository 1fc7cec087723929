package traits

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Ext is the file extension of trait bundles.
const Ext = ".safetensors"

// ErrInvalidCharacter is returned for character names that are not a plain
// file stem inside the library.
var ErrInvalidCharacter = errors.New("invalid character name")

// CheckCharacter rejects names that would resolve outside the library
// directory: empty names, dot names and anything with a path separator.
func CheckCharacter(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w %q", ErrInvalidCharacter, name)
	case strings.ContainsAny(name, `/\`), strings.Contains(name, ".."), filepath.Base(name) != name:
		return fmt.Errorf("%w %q", ErrInvalidCharacter, name)
	}
	return nil
}

// Library is a directory holding one bundle per character.
type Library struct {
	Dir string
}

// Path returns the bundle path for character.
func (l Library) Path(character string) string {
	return filepath.Join(l.Dir, character+Ext)
}

// Characters lists the characters with a bundle, sorted.
func (l Library) Characters() ([]string, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return nil, fmt.Errorf("list trait library: %w", err)
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Ext) {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), Ext))
	}
	sort.Strings(out)
	return out, nil
}

// Open opens the bundle for character. Names failing CheckCharacter are
// rejected before touching the filesystem.
func (l Library) Open(character string) (*Bundle, error) {
	if err := CheckCharacter(character); err != nil {
		return nil, err
	}
	return Open(l.Path(character))
}
