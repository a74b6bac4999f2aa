// Package storage mirrors converted files to S3-compatible object storage.
package storage
