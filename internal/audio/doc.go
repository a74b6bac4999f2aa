// Package audio handles waveform representation, WAV encoding and the
// segmentation / reconstruction steps around the inference engine.
// It splits a recording into silence-delimited chunks, pads voiced chunks with
// context, trims that context from converted output and stitches the pieces
// back into one waveform of the exact expected sample count.
package audio
