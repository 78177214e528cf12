package upload

import "context"

// Uploader copies a local results directory to remote storage.
type Uploader interface {
	// Preflight writes a small test object so misconfiguration fails
	// before any benchmark runs.
	Preflight(ctx context.Context) error

	// Upload uploads every file in localDir. The directory basename is
	// used as a sub-prefix under the configured remote prefix.
	Upload(ctx context.Context, localDir string) error
}
