// Package gate implements the admission check that runs before every export.
// An output folder that still holds a file means the previous artifact has not
// been picked up or acknowledged yet, so no new export may start.
package gate

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
)

// IsEmpty reports whether folder exists and contains zero entries.
// A missing folder is "not ready" and yields false without an error.
func IsEmpty(fs afero.Fs, folder string) (bool, error) {
	info, err := fs.Stat(folder)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("cannot stat output folder %q: %w", folder, err)
	}
	if !info.IsDir() {
		return false, nil
	}

	dir, err := fs.Open(folder)
	if err != nil {
		return false, fmt.Errorf("cannot open output folder %q: %w", folder, err)
	}
	defer dir.Close()

	names, err := dir.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("cannot list output folder %q: %w", folder, err)
	}
	return len(names) == 0, nil
}
