package video

import "fmt"

// NoVideoTrackError marks a container with no decodable video stream. The
// import loop skips such files instead of aborting the run.
type NoVideoTrackError struct {
	Path string
}

func (e *NoVideoTrackError) Error() string {
	return fmt.Sprintf("no decodable video track in %s", e.Path)
}
