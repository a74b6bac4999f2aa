// Package batch sweeps an input directory and converts every audio file for
// a list of speakers. Each file is isolated: its failures are recorded in an
// Outcome, the source is moved to a processed or error directory and the run
// moves on to the next file.
package batch
