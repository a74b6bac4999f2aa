// Package vad provides frame-level voice activity detection based on RMS energy.
// It converts each hop-sized frame to dBFS and classifies it against a silence
// threshold, the way the segmenter expects.
package vad
