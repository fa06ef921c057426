package fs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/black-06/sendstream"
)

// DirectoryPolicy selects what happens when a reference resolves to a
// directory (spec.md §4.4).
type DirectoryPolicy int

const (
	// OnDirectoryError yields ErrIsDirectory (the default).
	OnDirectoryError DirectoryPolicy = iota
	// OnDirectoryListFiles synthesizes an HTML listing of the directory.
	OnDirectoryListFiles
)

// EncodingVariant is one precomputed alternative a content-encoding
// mapping offers: Name is the content-coding token ("gzip", "br", ...)
// and Suffix is appended to the resolved identity path to find the
// precompressed file (e.g. ".gz" turns "app.js" into "app.js.gz").
type EncodingVariant struct {
	Name   string
	Suffix string
}

// EncodingMapping is one entry of contentEncodingMappings: Pattern is a
// path.Match glob evaluated against the resolved path relative to root,
// and Encodings lists candidate variants in preference order.
type EncodingMapping struct {
	Pattern   string
	Encodings []EncodingVariant
}

func (m EncodingMapping) matches(relPath string) bool {
	ok, err := path.Match(m.Pattern, relPath)
	return err == nil && ok
}

// Options configures a Storage instance (spec.md §4.4, §6).
type Options struct {
	// Root is the filesystem directory references are resolved against.
	Root string

	// Ignore overrides the default dotfile ignore policy. Nil uses
	// DefaultIgnoreFunc.
	Ignore IgnoreFunc

	// ContentEncodingMappings drives pre-compressed variant discovery.
	ContentEncodingMappings []EncodingMapping

	// OnDirectory selects the directory-handling policy.
	OnDirectory DirectoryPolicy

	// MIMEFunc overrides the default MIME lookup used for resolved
	// files. Synthesized directory listings are always text/html.
	MIMEFunc sendstream.MIMETypeFunc
}

func (o *Options) ignoreFunc() IgnoreFunc {
	if o.Ignore != nil {
		return o.Ignore
	}
	return DefaultIgnoreFunc
}

func (o *Options) mimeFunc() sendstream.MIMETypeFunc {
	if o.MIMEFunc != nil {
		return o.MIMEFunc
	}
	return sendstream.DefaultMIMEType
}

// handle is the attachment type carried on StorageInfo: either an open
// *os.File for a regular resource, or a pre-rendered directory listing
// buffer. Exactly one of the two is set.
type handle struct {
	file      *os.File
	listing   []byte
	isListing bool
}

// Storage is C4: a sendstream.Storage[*handle] backed by the local
// filesystem, generalizing the teacher's ServeFile/ServeContent
// (file_download.go, now superseded) from a single fixed path into the
// full reference-resolution/variant-selection/directory-policy pipeline
// spec.md §4.4 describes.
type Storage struct {
	opts Options
}

// New builds a Storage rooted at opts.Root.
func New(opts Options) *Storage {
	return &Storage{opts: opts}
}

var _ sendstream.Storage[*handle] = (*Storage)(nil)

// Open implements sendstream.Storage.
func (s *Storage) Open(_ context.Context, reference any, headers http.Header) (*sendstream.StorageInfo[*handle], error) {
	segments, err := validateReference(reference, s.opts.ignoreFunc())
	if err != nil {
		return nil, err
	}

	relPath := path.Join(segments...)
	resolved, err := s.joinRoot(segments)
	if err != nil {
		return nil, err
	}

	stat, statErr := os.Stat(resolved)
	if statErr != nil {
		return nil, &sendstream.StorageError{Kind: sendstream.ErrDoesNotExist, Reference: reference, Cause: statErr}
	}

	if stat.IsDir() {
		return s.openDirectory(reference, relPath, resolved)
	}

	return s.openFile(reference, relPath, resolved, stat, headers)
}

// joinRoot normalizes root+segments and rejects any result that
// escapes root, defense in depth alongside the pre-join segment
// validation (spec.md §4.4 "Root join").
func (s *Storage) joinRoot(segments []string) (string, error) {
	root := filepath.Clean(s.opts.Root)
	joined := filepath.Join(append([]string{root}, segments...)...)
	if joined != root && !strings.HasPrefix(joined, root+string(filepath.Separator)) {
		return "", &sendstream.StorageError{Kind: sendstream.ErrInvalidPath, Reference: segments, PathParts: segments}
	}
	return joined, nil
}

// openFile resolves identity plus any applicable pre-compressed variant
// and builds the StorageInfo for a regular file.
func (s *Storage) openFile(reference any, relPath, resolved string, stat os.FileInfo, headers http.Header) (*sendstream.StorageInfo[*handle], error) {
	variantPath, encoding, vary := s.selectVariant(relPath, resolved, headers)

	f, err := os.Open(variantPath)
	if err != nil {
		if variantPath != resolved {
			// The chosen variant vanished between stat and open (or the
			// identity path itself is now broken): surface as missing
			// rather than silently falling further back.
			return nil, &sendstream.StorageError{Kind: sendstream.ErrDoesNotExist, Reference: reference, Cause: err}
		}
		return nil, &sendstream.StorageError{Kind: sendstream.ErrDoesNotExist, Reference: reference, Cause: err}
	}
	fstat := stat
	if variantPath != resolved {
		if vstat, statErr := f.Stat(); statErr == nil {
			fstat = vstat
		}
	}

	info := &sendstream.StorageInfo[*handle]{
		AttachedData:    &handle{file: f},
		FileName:        filepath.Base(resolved),
		ModTime:         fstat.ModTime(),
		Size:            fstat.Size(),
		ContentEncoding: encoding,
		MimeType:        s.opts.mimeFunc()(filepath.Base(resolved)),
	}
	if vary {
		info.Vary = "Accept-Encoding"
	}
	return info, nil
}

// selectVariant implements spec.md §4.4's encoding-variant selection.
// It returns the path to open, the content-encoding to report (""
// means identity), and whether Vary: Accept-Encoding applies.
func (s *Storage) selectVariant(relPath, resolved string, headers http.Header) (string, string, bool) {
	for _, mapping := range s.opts.ContentEncodingMappings {
		if !mapping.matches(relPath) {
			continue
		}
		accepted := sendstream.ParseAcceptEncoding(headers.Get("Accept-Encoding"))
		order := make([]string, len(mapping.Encodings))
		suffixes := make(map[string]string, len(mapping.Encodings))
		for i, variant := range mapping.Encodings {
			order[i] = variant.Name
			suffixes[variant.Name] = variant.Suffix
		}
		if preferred := accepted.Preferred(order); preferred != "identity" {
			candidate := resolved + suffixes[preferred]
			if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
				return candidate, preferred, true
			}
		}
		// A mapping matched but no variant opened: still mark Vary since
		// the response legitimately depends on Accept-Encoding.
		return resolved, "", true
	}
	return resolved, "", false
}

// openDirectory applies the on-directory policy.
func (s *Storage) openDirectory(reference any, relPath, resolved string) (*sendstream.StorageInfo[*handle], error) {
	if s.opts.OnDirectory != OnDirectoryListFiles {
		return nil, &sendstream.StorageError{Kind: sendstream.ErrIsDirectory, Reference: reference}
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return nil, &sendstream.StorageError{Kind: sendstream.ErrDoesNotExist, Reference: reference, Cause: err}
	}
	body, err := renderListing(relPath, entries, s.opts.ignoreFunc())
	if err != nil {
		return nil, sendstream.WrapUnknown(reference, err)
	}

	return &sendstream.StorageInfo[*handle]{
		AttachedData: &handle{listing: body, isListing: true},
		FileName:     "",
		ModTime:      time.Time{},
		Size:         int64(len(body)),
		MimeType:     "text/html",
		CacheControl: "no-store",
	}, nil
}

// CreateReadableStream implements sendstream.Storage.
func (s *Storage) CreateReadableStream(_ context.Context, info *sendstream.StorageInfo[*handle], rang *sendstream.StreamRange, autoClose bool) (sendstream.Stream, error) {
	h := info.AttachedData
	if h.isListing {
		data := h.listing
		if rang != nil {
			data = data[rang.Start : rang.End+1]
		}
		return sendstream.NewBufferStream(data), nil
	}

	if rang == nil {
		return newFileStream(h.file, 0, info.Size, autoClose), nil
	}
	return newFileStream(h.file, rang.Start, rang.Len(), autoClose), nil
}

// Close implements sendstream.Storage: releases the open file handle,
// if any. Idempotent because the engine guarantees exactly one call via
// sendstream's own closer wrapping, but os.File.Close is itself safe to
// call twice (returns an error the second time, which we ignore here
// since the handle is already gone).
func (s *Storage) Close(_ context.Context, info *sendstream.StorageInfo[*handle]) error {
	h := info.AttachedData
	if h == nil || h.file == nil {
		return nil
	}
	if err := h.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

// fileStream reads a bounded window of an *os.File without needing a
// parallel *io.SectionReader per concurrent range (a single file handle
// supports only one read offset at a time, so each stream owns a
// position via ReadAt instead of Seek+Read, letting multiple ranges of
// the same file be read concurrently from MultiStream's multipart
// framing).
type fileStream struct {
	file      *os.File
	offset    int64
	remaining int64
	autoClose bool
	closed    bool
}

func newFileStream(file *os.File, start, length int64, autoClose bool) *fileStream {
	return &fileStream{file: file, offset: start, remaining: length, autoClose: autoClose}
}

func (f *fileStream) Read(p []byte) (int, error) {
	if f.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > f.remaining {
		p = p[:f.remaining]
	}
	n, err := f.file.ReadAt(p, f.offset)
	f.offset += int64(n)
	f.remaining -= int64(n)
	if err == io.EOF && f.remaining > 0 {
		// A short read before reaching the expected length is still an
		// unexpected EOF as far as the HTTP response is concerned.
		return n, io.ErrUnexpectedEOF
	}
	if f.remaining == 0 && err == nil {
		err = io.EOF
	}
	if err == io.EOF && f.autoClose {
		_ = f.Close()
	}
	return n, err
}

func (f *fileStream) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	if f.autoClose {
		return f.file.Close()
	}
	return nil
}
