package fstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// tempPrefix marks files that are still being written
const tempPrefix = ".tmp-"

// WriteFileAtomic writes path by calling write on a temporary file in the
// same directory, fsyncing it and renaming it into place. Readers never see a
// partial file. The parent directory must already exist.
func WriteFileAtomic(path string, perm os.FileMode, write func(w io.Writer) error) error {
	tmp, err := writeTemp(filepath.Dir(path), perm, write)
	if err != nil {
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming %s into place: %w", path, err)
	}
	syncDir(filepath.Dir(path))
	return nil
}

// writeTemp writes a synced temporary file in dir and returns its path
func writeTemp(dir string, perm os.FileMode, write func(w io.Writer) error) (string, error) {
	file, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("creating temporary file: %w", err)
	}
	tmp := file.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmp)
		}
	}()

	if err := write(file); err != nil {
		file.Close()
		return "", err
	}
	if err := file.Chmod(perm); err != nil {
		file.Close()
		return "", fmt.Errorf("setting mode of temporary file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return "", fmt.Errorf("syncing temporary file: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("closing temporary file: %w", err)
	}

	success = true
	return tmp, nil
}

// syncDir makes a rename in dir durable. Failures are ignored: not every
// platform can sync a directory.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err == nil {
		d.Sync()
		d.Close()
	}
}
