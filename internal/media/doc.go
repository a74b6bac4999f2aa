// Package media converts between audio containers with the ffmpeg binary.
// Inputs in other formats are normalised to WAV before decoding and
// converted WAV output is re-encoded into the requested container.
package media
