// Package engine is the narrow gateway to the external voice-conversion
// inference engine. It defines the conversion request, the Engine contract,
// the serialised Handle that owns the active engine instance, and a client for
// engines served over HTTP.
package engine
