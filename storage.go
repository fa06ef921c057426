package sendstream

import (
	"context"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"
)

// StorageInfo is the metadata record an Open call produces and the
// engine consumes read-only (spec.md §3). Optional fields use Go zero
// values as "unset": an empty string, a zero time.Time, or Size==-1 for
// "unknown size". T is the attachment type a concrete Storage wants to
// carry through to CreateReadableStream/Close (e.g. an *os.File or a
// resolved filesystem path).
type StorageInfo[T any] struct {
	AttachedData T

	FileName string
	ModTime  time.Time
	// Size is the resource size in bytes, or -1 if unknown.
	Size int64

	Vary            string
	ContentEncoding string
	MimeType        string
	MimeTypeCharset string

	// LastModified/ETag/CacheControl, when non-empty, are storage-provided
	// header values that take precedence over the engine's defaults but
	// yield to an explicit Options override (spec.md §4.5 step 3).
	LastModified string
	ETag         string
	CacheControl string

	ContentDispositionType     string
	ContentDispositionFilename string

	// StatusCode, when non-zero, forces this status and bypasses
	// conditional and range evaluation entirely (spec.md §4.3, §6).
	StatusCode int
}

// SizeKnown reports whether Size carries a real value.
func (info *StorageInfo[T]) SizeKnown() bool { return info.Size >= 0 }

// Storage is the capability interface C3 defines: the engine drives
// Open/CreateReadableStream/Close and never reaches into a concrete
// backend directly (spec.md §4.3, §9 "Storage polymorphism").
type Storage[T any] interface {
	// Open resolves reference to a StorageInfo, or fails with a
	// *StorageError (DoesNotExist, IgnoredFile, IsDirectory, one of the
	// path-validation kinds, ...).
	Open(ctx context.Context, reference any, headers http.Header) (*StorageInfo[T], error)

	// CreateReadableStream returns a readable for all of info's content
	// (rang==nil) or for just rang. autoClose tells the implementation
	// the returned Stream owns the underlying handle and must release it
	// on Close/EOF; otherwise the engine will call Close separately.
	CreateReadableStream(ctx context.Context, info *StorageInfo[T], rang *StreamRange, autoClose bool) (Stream, error)

	// Close idempotently releases whatever handle Open acquired that was
	// not transferred to an autoClose stream. Exactly one Close call is
	// guaranteed per successful Open (spec.md §3 invariants).
	Close(ctx context.Context, info *StorageInfo[T]) error
}

// MIMETypeFunc looks up a MIME type from a file name. The default,
// DefaultMIMEType, wraps the standard library's extension table; a
// Storage can supply a different one via the mimeModule option
// (spec.md §4.3, §6).
type MIMETypeFunc func(fileName string) string

// DefaultMIMEType is the MIMETypeFunc used when no mimeModule option is
// given: mime.TypeByExtension, stripping any charset parameter it adds
// so charset selection stays a separate, overridable step.
func DefaultMIMEType(fileName string) string {
	t := mime.TypeByExtension(filepath.Ext(fileName))
	if t == "" {
		return ""
	}
	if semi := strings.IndexByte(t, ';'); semi >= 0 {
		t = strings.TrimSpace(t[:semi])
	}
	return t
}

// CharsetRule maps a MIME type pattern ("text/*" or an exact type) to a
// charset.
type CharsetRule struct {
	Pattern string
	Charset string
}

// DefaultCharsets is the default pattern->charset table spec.md §4.3
// describes: UTF-8 for text/* and application/{javascript,json}.
func DefaultCharsets() []CharsetRule {
	return []CharsetRule{
		{Pattern: "text/*", Charset: "UTF-8"},
		{Pattern: "application/javascript", Charset: "UTF-8"},
		{Pattern: "application/json", Charset: "UTF-8"},
	}
}

// LookupCharset returns the charset DefaultCharsets (or a caller-supplied
// table) assigns to mimeType, or "" if none matches.
func LookupCharset(rules []CharsetRule, mimeType string) string {
	for _, rule := range rules {
		if matchesMIMEPattern(rule.Pattern, mimeType) {
			return rule.Charset
		}
	}
	return ""
}

func matchesMIMEPattern(pattern, mimeType string) bool {
	if strings.HasSuffix(pattern, "/*") {
		return strings.HasPrefix(mimeType, pattern[:len(pattern)-1])
	}
	return pattern == mimeType
}

// DefaultETag derives a strong or weak ETag from size/mtime the way
// spec.md §4.1 specifies, or "" if size/mtime are unknown.
func DefaultETag(size int64, modTime time.Time, contentEncoding string, weak bool) string {
	if size < 0 || modTime.IsZero() {
		return ""
	}
	return FormatETag(size, modTime.UnixMilli(), contentEncoding, weak)
}

// DefaultLastModified derives the Last-Modified header value from
// modTime, or "" if modTime is unknown.
func DefaultLastModified(modTime time.Time) string {
	if modTime.IsZero() {
		return ""
	}
	return FormatHTTPDate(modTime)
}

// DefaultCacheControl is the engine's fallback Cache-Control value
// (spec.md §4.3).
const DefaultCacheControl = "public, max-age=0"

// DefaultContentDispositionType is the engine's fallback disposition
// (spec.md §4.3).
const DefaultContentDispositionType = "inline"
