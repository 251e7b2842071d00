package upload

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// CleanupFiles removes staged upload files from local disk. Empty paths are
// skipped and already-removed files count as success, so the janitor can run
// on every exit path of a workflow. One bad path does not stop deletion
// attempts on the others; collected failures are returned as a single error.
func CleanupFiles(paths ...string) error {
	var errs []error
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove staged file %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}
