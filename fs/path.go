// Package fs implements C4 from sendstream: a Storage backed by the
// local filesystem, with path normalization/safety, pre-compressed
// variant selection, and directory handling.
package fs

import (
	"net/url"
	"strings"

	"github.com/black-06/sendstream"
)

// IgnoreFunc reports whether a path segment should be treated as
// hidden/ignored. DefaultIgnoreFunc implements the dotfile policy
// (starts with "." and is not "." or "..", which are rejected earlier
// as NotNormalized anyway).
type IgnoreFunc func(segment string) bool

// DefaultIgnoreFunc ignores any segment beginning with "." (other than
// the single/double dot segments, which fail normalization first).
func DefaultIgnoreFunc(segment string) bool {
	return strings.HasPrefix(segment, ".") && segment != "." && segment != ".."
}

// splitReference turns reference (a URL path string or a pre-split
// []string of segments) into raw, still percent-encoded segments ready
// for validation. A string reference has its query stripped first.
func splitReference(reference any) ([]string, bool) {
	switch v := reference.(type) {
	case []string:
		return v, true
	case string:
		if i := strings.IndexByte(v, '?'); i >= 0 {
			v = v[:i]
		}
		v = strings.TrimPrefix(v, "/")
		if v == "" {
			return []string{}, true
		}
		return strings.Split(v, "/"), true
	default:
		return nil, false
	}
}

// validateReference runs spec.md §4.4's path-validation pipeline,
// surfacing the first violation as a *sendstream.StorageError.
// Grounded on the teacher's file_download.go path-handling style
// (typed validation before any I/O) generalized from a single
// os.Open-and-hope into the explicit per-kind error taxonomy C4 needs.
func validateReference(reference any, ignore IgnoreFunc) ([]string, error) {
	rawParts, ok := splitReference(reference)
	if !ok {
		return nil, newStorageError(sendstream.ErrMalformedPath, reference, nil)
	}

	trailing := len(rawParts) > 0 && rawParts[len(rawParts)-1] == ""
	if trailing {
		return nil, newStorageError(sendstream.ErrTrailingSlash, reference, rawParts)
	}

	segments := make([]string, 0, len(rawParts))
	for _, raw := range rawParts {
		if raw == "" {
			return nil, newStorageError(sendstream.ErrConsecutiveSlashes, reference, rawParts)
		}
		decoded, err := url.PathUnescape(raw)
		if err != nil {
			return nil, newStorageError(sendstream.ErrMalformedPath, reference, rawParts)
		}
		if decoded == "." || decoded == ".." {
			return nil, newStorageError(sendstream.ErrNotNormalized, reference, rawParts)
		}
		if strings.IndexByte(decoded, 0) >= 0 {
			return nil, newStorageError(sendstream.ErrForbiddenCharacter, reference, rawParts)
		}
		if strings.ContainsAny(decoded, "/\\") {
			return nil, newStorageError(sendstream.ErrInvalidPath, reference, rawParts)
		}
		if ignore != nil && ignore(decoded) {
			return nil, newStorageError(sendstream.ErrIgnoredFile, reference, rawParts)
		}
		segments = append(segments, decoded)
	}
	return segments, nil
}

// newStorageError builds the *sendstream.StorageError for a
// path-validation failure.
func newStorageError(kind sendstream.ErrorKind, reference any, pathParts []string) *sendstream.StorageError {
	return &sendstream.StorageError{Kind: kind, Reference: reference, PathParts: pathParts}
}
