// Package errs defines the error taxonomy shared by the conversion pipeline,
// the batch driver and the HTTP service: validation, conversion and resource
// failures, each wrapping its underlying cause.
package errs
