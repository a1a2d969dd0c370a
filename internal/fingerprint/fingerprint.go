// Package fingerprint derives the stable dedup key that groups failure
// occurrences into a single logical error.
package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/centaurhq/centaur/pkg/models"
)

// Hash computes a stable SHA-256 fingerprint for a path signature. Same
// signature always yields the same hash, across processes and deployments.
// An empty signature hashes like any other string.
func Hash(signature string) string {
	sum := sha256.Sum256([]byte(signature))
	return fmt.Sprintf("%x", sum)
}

// Key builds the dedup key for a failure. The hash alone is not enough:
// distinct exception kinds can originate at the same path and line, so the
// kind and line number stay part of the key.
func Key(exceptionKind, pathSignature string, lineNumber int) models.DedupKey {
	return models.DedupKey{
		ExceptionKind: exceptionKind,
		Hash:          Hash(pathSignature),
		LineNumber:    lineNumber,
	}
}

// PathSignature joins the source-file paths of every stack frame from
// innermost to outermost. Two failures that followed the same call chain
// produce the same signature even when the leaf frame differs.
func PathSignature(framePaths []string) string {
	return strings.Join(framePaths, "|")
}

// RequestSignature is the signature used for HTTP-status-only failures,
// where there is no stack to walk: the request path plus its query string.
func RequestSignature(path, querystring string) string {
	if querystring == "" {
		return path
	}
	return path + "?" + querystring
}
