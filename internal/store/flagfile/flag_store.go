// Package flagfile implements store.FlagStore as plain files in a data
// directory. Flags must be readable before any database is opened, so this
// backend deliberately has no dependencies beyond the filesystem; the crash
// flag lives here.
package flagfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/scrypster/snapvault/internal/store"
)

// FlagStore stores each flag as a small file under {dataPath}/flags/.
type FlagStore struct {
	dir string
}

// New creates a flag store rooted at {dataPath}/flags/.
func New(dataPath string) *FlagStore {
	return &FlagStore{dir: filepath.Join(dataPath, "flags")}
}

// Set writes the flag value, creating the flags directory on first use.
func (f *FlagStore) Set(name, value string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", store.ErrStorage, f.dir, err)
	}
	if err := os.WriteFile(f.path(name), []byte(value), 0o600); err != nil {
		return fmt.Errorf("%w: write flag %s: %v", store.ErrStorage, name, err)
	}
	return nil
}

// Get returns the flag value, or store.ErrNotFound when absent.
func (f *FlagStore) Get(name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	data, err := os.ReadFile(f.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: read flag %s: %v", store.ErrStorage, name, err)
	}
	return string(data), nil
}

// Remove deletes the flag. Removing an absent flag is a no-op.
func (f *FlagStore) Remove(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	err := os.Remove(f.path(name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove flag %s: %v", store.ErrStorage, name, err)
	}
	return nil
}

func (f *FlagStore) path(name string) string {
	return filepath.Join(f.dir, name+".flag")
}

func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: invalid flag name %q", store.ErrInvalidInput, name)
	}
	return nil
}
