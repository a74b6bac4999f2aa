// Package pipeline runs one conversion pass: it segments a waveform on
// silence, sends padded voiced chunks to the active engine in order and
// stitches the results into an output of exactly the expected length.
package pipeline
