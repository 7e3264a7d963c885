// Package timeline reconstructs wall-clock timestamps for frames of a
// screen-recording chunk. Recorders of this kind capture one frame every few
// seconds but encode the chunk at a normal playback rate, so the file's own
// frame timing says nothing about when a frame was actually captured. Frames
// are instead spread evenly across the real-world window the chunk covers.
package timeline

import "time"

// RealTimeDuration returns the wall-clock span in seconds that a chunk of
// frameCount frames represents, given the capture cadence in seconds.
func RealTimeDuration(frameCount int, captureIntervalSeconds float64) float64 {
	if frameCount <= 0 {
		return 0
	}
	return float64(frameCount) * captureIntervalSeconds
}

// FrameTimestamp places frame index i of a chunk on the wall clock. The first
// frame lands on the chunk's creation time and the last frame on
// creation + (N-1)/(N-1) * duration. A single-frame chunk yields the creation
// time itself.
func FrameTimestamp(creation time.Time, frameCount, index int, captureIntervalSeconds float64) time.Time {
	return creation.Add(FrameOffset(frameCount, index, captureIntervalSeconds))
}

// FrameOffset returns the offset of frame index i from the chunk's creation
// time.
func FrameOffset(frameCount, index int, captureIntervalSeconds float64) time.Duration {
	denom := frameCount - 1
	if denom < 1 {
		denom = 1
	}
	duration := RealTimeDuration(frameCount, captureIntervalSeconds)
	offset := float64(index) / float64(denom) * duration
	return time.Duration(offset * float64(time.Second))
}
