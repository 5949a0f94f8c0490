// Package manifest reads and writes the manifest.yaml that describes a built index.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"loanquery/internal/domain"
	"loanquery/internal/errs"
)

// FileName is the manifest file inside an index directory.
const FileName = "manifest.yaml"

// Version of the on-disk layout.
const Version = 1

// Write stores m in dir/manifest.yaml via a temp file and rename.
func Write(dir string, m domain.Manifest) error {
	if m.Version == 0 {
		m.Version = Version
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return errs.ErrIndexWrite.Wrap(err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.ErrIndexWrite.Wrap(err)
	}
	tmp, err := os.CreateTemp(dir, FileName+".*")
	if err != nil {
		return errs.ErrIndexWrite.Wrap(err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errs.ErrIndexWrite.Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		return errs.ErrIndexWrite.Wrap(err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, FileName)); err != nil {
		return errs.ErrIndexWrite.Wrap(err)
	}
	return nil
}

// Read loads dir/manifest.yaml. A missing file is errs.ErrIndexMissing.
func Read(dir string) (domain.Manifest, error) {
	var m domain.Manifest
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return m, errs.ErrIndexMissing.Wrapf("no manifest in %s", dir)
		}
		return m, err
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, errs.ErrIndexCorrupt.Wrapf("manifest: %v", err)
	}
	if m.Version != Version {
		return m, errs.ErrIndexCorrupt.Wrap(fmt.Errorf("manifest version %d, want %d", m.Version, Version))
	}
	return m, nil
}
