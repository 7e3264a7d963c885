package importer

import "errors"

var (
	// ErrSourceNotFound means the source's root directory does not exist.
	ErrSourceNotFound = errors.New("source root directory not found")

	// ErrNoVideosFound means enumeration of an existing root yielded nothing.
	ErrNoVideosFound = errors.New("no video files found")

	// ErrImportCancelled is raised to the caller when a run is cancelled at a
	// video boundary. It is a distinct non-fatal outcome, not a failure.
	ErrImportCancelled = errors.New("import cancelled")

	// ErrUnknownSource is returned by the coordinator for unregistered ids.
	ErrUnknownSource = errors.New("unknown import source")
)

// fatalError marks errors that must stop the whole run (checkpoint I/O and
// the like) as opposed to per-video noise that is logged and skipped.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }
