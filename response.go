package sendstream

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// HeaderOverride models an Options header field: unset (use the
// storage-provided value or the engine default), an explicit value, or
// explicitly disabled (omit the header entirely). The zero value is
// "unset" (spec.md §4.5 step 3: "explicit option (string or explicit
// 'disable') ⟶ storage-provided value ⟶ derived default").
type HeaderOverride struct {
	set      bool
	disabled bool
	value    string
}

// Override returns a HeaderOverride carrying an explicit value.
func Override(value string) HeaderOverride { return HeaderOverride{set: true, value: value} }

// Disabled is the explicit-disable sentinel: it removes the header
// entirely, distinct from an unset override or an empty string value.
var Disabled = HeaderOverride{set: true, disabled: true}

// resolve applies the three-tier precedence and returns (value,
// present). present is false when the header must be omitted.
func (o HeaderOverride) resolve(storageValue, fallback string) (string, bool) {
	if o.set {
		if o.disabled {
			return "", false
		}
		return o.value, true
	}
	if storageValue != "" {
		return storageValue, true
	}
	if fallback != "" {
		return fallback, true
	}
	return "", false
}

// Options are the recognized knobs spec.md §6 lists for the response
// engine itself (filesystem-specific knobs like contentEncodingMappings
// live on fs.Options instead, since they belong to C4, not C5).
type Options struct {
	CacheControl               HeaderOverride
	LastModified               HeaderOverride
	ETag                       HeaderOverride
	ContentType                HeaderOverride
	ContentDispositionType     HeaderOverride
	ContentDispositionFilename HeaderOverride

	// StatusCode, if non-zero, forces this status and disables
	// conditional and range evaluation, same as StorageInfo.StatusCode.
	StatusCode int

	// AllowedMethods defaults to {GET, HEAD} when nil.
	AllowedMethods []string

	// MaxRanges defaults to 200 when zero; a negative value disables
	// range handling.
	MaxRanges int

	// WeakEtags makes the default ETag derivation emit the weak form.
	WeakEtags bool

	DefaultContentType string
	// Charsets overrides the default pattern table; a non-nil pointer to
	// an empty slice disables charset assignment entirely.
	Charsets *[]CharsetRule

	// MIMEModule overrides the default extension-based MIME lookup.
	MIMEModule MIMETypeFunc
}

func (o *Options) allowedMethods() []string {
	if o == nil || len(o.AllowedMethods) == 0 {
		return []string{http.MethodGet, http.MethodHead}
	}
	return o.AllowedMethods
}

func (o *Options) maxRanges() int {
	if o == nil || o.MaxRanges == 0 {
		return 200
	}
	return o.MaxRanges
}

func (o *Options) mimeFunc() MIMETypeFunc {
	if o == nil || o.MIMEModule == nil {
		return DefaultMIMEType
	}
	return o.MIMEModule
}

func (o *Options) charsets() []CharsetRule {
	if o == nil || o.Charsets == nil {
		return DefaultCharsets()
	}
	return *o.Charsets
}

// Request is the minimal view of an incoming request the engine needs:
// a method and a header set. It accepts either a parsed HTTP/1.1
// request or an HTTP/2-style raw header map (spec.md §6).
type Request struct {
	Method  string
	Headers http.Header
}

// RequestFromHTTP adapts a *http.Request.
func RequestFromHTTP(r *http.Request) Request {
	return Request{Method: r.Method, Headers: r.Header}
}

// RequestFromHeaderMap adapts an HTTP/2-style raw header map, pulling
// the method from the ":method" pseudo-header. A missing method is a
// fatal configuration error per spec.md §4.5 step 1.
func RequestFromHeaderMap(headers map[string][]string) (Request, error) {
	h := make(http.Header, len(headers))
	var method string
	for k, v := range headers {
		if k == ":method" {
			if len(v) > 0 {
				method = v[0]
			}
			continue
		}
		h[http.CanonicalHeaderKey(k)] = v
	}
	if method == "" {
		return Request{}, errors.New("sendstream: request is missing a method")
	}
	return Request{Method: method, Headers: h}, nil
}

func isGetOrHead(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// HeaderField is one entry of an OrderedHeaders set.
type HeaderField struct{ Name, Value string }

// OrderedHeaders is spec.md §3's "ordered map, case-preserved" header
// collection for StreamResponse: insertion order is preserved for
// iteration (Each), while Get/Set/Del use case-insensitive lookup.
type OrderedHeaders struct {
	fields []HeaderField
}

// NewOrderedHeaders returns an empty header set.
func NewOrderedHeaders() *OrderedHeaders { return &OrderedHeaders{} }

func (h *OrderedHeaders) indexOf(name string) int {
	for i, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return i
		}
	}
	return -1
}

// Set replaces any existing value for name (case-insensitive) or
// appends a new field, preserving name's exact case as given.
func (h *OrderedHeaders) Set(name, value string) {
	if i := h.indexOf(name); i >= 0 {
		h.fields[i] = HeaderField{Name: name, Value: value}
		return
	}
	h.fields = append(h.fields, HeaderField{Name: name, Value: value})
}

// Del removes name, if present.
func (h *OrderedHeaders) Del(name string) {
	if i := h.indexOf(name); i >= 0 {
		h.fields = append(h.fields[:i], h.fields[i+1:]...)
	}
}

// Get returns name's value, or "" if absent.
func (h *OrderedHeaders) Get(name string) string {
	if i := h.indexOf(name); i >= 0 {
		return h.fields[i].Value
	}
	return ""
}

// Each calls fn for every field in insertion order.
func (h *OrderedHeaders) Each(fn func(name, value string)) {
	for _, f := range h.fields {
		fn(f.Name, f.Value)
	}
}

// Len reports the number of fields.
func (h *OrderedHeaders) Len() int { return len(h.fields) }

// StreamResponse is the engine's output (spec.md §3): a fully formed
// status/headers/body tuple. It owns Stream until either Send completes
// (ownership transfers to the Sink) or Dispose is called.
type StreamResponse[T any] struct {
	StatusCode  int
	Headers     *OrderedHeaders
	Stream      Stream
	StorageInfo *StorageInfo[T]
	// Err is the StorageError that produced this response, if the
	// branch that built it was an error branch (spec.md §3).
	Err error

	closeStorage func() error
	sent         bool
	disposed     bool
}

// Send transfers body ownership to sink, writing status, headers, and
// body. After Send returns (successfully or not) the response must not
// be used again except via Dispose, which becomes a no-op for the
// stream (spec.md §4.5 step 9, §5).
func (r *StreamResponse[T]) Send(ctx context.Context, sink Sink) error {
	if r.sent {
		return errors.New("sendstream: response already sent")
	}
	r.sent = true
	body := r.Stream
	if body == nil {
		body = NewEmptyStream()
	}
	err := sink.Send(ctx, r.StatusCode, r.Headers, body)
	if r.closeStorage != nil {
		if cerr := r.closeStorage(); err == nil {
			err = cerr
		}
	}
	return err
}

// Dispose releases the body stream and any storage handle without
// sending anything, for callers that abandon a prepared response
// (cancellation, a higher-level error). Idempotent.
func (r *StreamResponse[T]) Dispose() error {
	if r.disposed || r.sent {
		return nil
	}
	r.disposed = true
	var err error
	if r.Stream != nil {
		err = r.Stream.Close()
	}
	if r.closeStorage != nil {
		if cerr := r.closeStorage(); err == nil {
			err = cerr
		}
	}
	return err
}

// makeStorageCloser returns an idempotent closer bound to info,
// guaranteeing exactly one Storage.Close call regardless of how many
// termination paths race to invoke it (spec.md §3, §5).
func makeStorageCloser[T any](ctx context.Context, storage Storage[T], info *StorageInfo[T]) func() error {
	var once sync.Once
	var err error
	return func() error {
		once.Do(func() { err = storage.Close(ctx, info) })
		return err
	}
}

// withFinalizer wraps a Stream so that its Close additionally invokes
// finalize exactly once, after the inner Close runs.
type finalizingStream struct {
	inner    Stream
	finalize func() error
	once     sync.Once
	err      error
}

func withFinalizer(inner Stream, finalize func() error) Stream {
	return &finalizingStream{inner: inner, finalize: finalize}
}

func (f *finalizingStream) Read(p []byte) (int, error) { return f.inner.Read(p) }

func (f *finalizingStream) Close() error {
	closeErr := f.inner.Close()
	f.once.Do(func() {
		if f.finalize != nil {
			f.err = f.finalize()
		}
	})
	if closeErr != nil {
		return closeErr
	}
	return f.err
}

func statusText(code int) string { return http.StatusText(code) }

// textResponse builds a plain-text status-phrase body response, used
// for 4xx branches and forced to "text/plain; charset=UTF-8" per
// spec.md §4.5's tie-break rule. HEAD requests get an empty body while
// keeping the same Content-Length.
func textResponse(method string, statusCode int) (*OrderedHeaders, Stream) {
	text := statusText(statusCode)
	headers := NewOrderedHeaders()
	headers.Set("Content-Type", "text/plain; charset=UTF-8")
	headers.Set("Content-Length", strconv.Itoa(len(text)))
	headers.Set("X-Content-Type-Options", "nosniff")
	if method == http.MethodHead {
		return headers, NewEmptyStream()
	}
	return headers, NewBufferStream([]byte(text))
}

// Prepare runs the C5 state machine described in spec.md §4.5/§5 end to
// end: method gate, open, conditional evaluation, header derivation,
// range evaluation, and body assembly. The returned response, on every
// path, must eventually be Sent or Disposed by the caller so storage
// handles are released exactly once.
func Prepare[T any](ctx context.Context, storage Storage[T], reference any, req Request, opts *Options) (*StreamResponse[T], error) {
	if req.Method == "" {
		return nil, errors.New("sendstream: request is missing a method")
	}

	allowed := opts.allowedMethods()
	if !methodAllowed(req.Method, allowed) {
		headers, body := textResponse(req.Method, 405)
		headers.Set("Allow", strings.Join(allowed, ", "))
		return &StreamResponse[T]{StatusCode: 405, Headers: headers, Stream: body,
			Err: &StorageError{Kind: ErrMethodNotAllowed, Reference: reference, AllowedMethods: allowed}}, nil
	}

	info, err := storage.Open(ctx, reference, req.Headers)
	if err != nil {
		storageErr, ok := errorAsStorageError(err)
		if !ok {
			storageErr = WrapUnknown(reference, err)
		}
		headers, body := textResponse(req.Method, storageErr.Status())
		return &StreamResponse[T]{StatusCode: storageErr.Status(), Headers: headers, Stream: body, Err: storageErr}, nil
	}

	closeStorage := makeStorageCloser(ctx, storage, info)
	resp, err := prepareWithInfo(ctx, storage, info, req, opts)
	if err != nil {
		_ = closeStorage()
		return nil, err
	}
	resp.closeStorage = closeStorage
	if se, ok := resp.Err.(*StorageError); ok {
		se.Reference = reference
	}
	if resp.Stream != nil {
		if resp.StatusCode == 304 || req.Method == http.MethodHead {
			// No bytes will ever be read from this body: release the
			// storage handle now instead of waiting for a Close that may
			// never come from a caller that only inspects the response.
			_ = closeStorage()
			resp.closeStorage = func() error { return nil }
		}
	}
	return resp, nil
}

func methodAllowed(method string, allowed []string) bool {
	for _, m := range allowed {
		if m == method {
			return true
		}
	}
	return false
}

func errorAsStorageError(err error) (*StorageError, bool) {
	var se *StorageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// prepareWithInfo runs steps 3-8 of the pipeline once storage.Open has
// succeeded. The returned response's closeStorage is filled in by the
// caller (Prepare).
func prepareWithInfo[T any](ctx context.Context, storage Storage[T], info *StorageInfo[T], req Request, opts *Options) (*StreamResponse[T], error) {
	method := req.Method
	head := method == http.MethodHead

	statusOverride := info.StatusCode
	if statusOverride == 0 && opts != nil {
		statusOverride = opts.StatusCode
	}

	cacheControl, haveCacheControl := resolveCacheControl(opts, info)
	lastModified, haveLastModified, lastModTime := resolveLastModified(opts, info)
	etag, haveETag := resolveETag(opts, info)
	contentType, charset, haveContentType := resolveContentType(opts, info)
	dispositionType, dispositionFilename, haveDisposition := resolveDisposition(opts, info)

	headers := NewOrderedHeaders()
	if haveCacheControl {
		headers.Set("Cache-Control", cacheControl)
	}
	if haveLastModified {
		headers.Set("Last-Modified", lastModified)
	}
	if haveETag {
		headers.Set("ETag", etag)
	}
	if v := info.Vary; v != "" {
		headers.Set("Vary", v)
	}

	if statusOverride == 0 {
		fresh := FreshStatus(isGetOrHead(method), req.Headers, etag, lastModTime)
		switch fresh {
		case 304:
			return &StreamResponse[T]{StatusCode: 304, Headers: headers, Stream: NewEmptyStream(), StorageInfo: info}, nil
		case 412:
			bodyHeaders, body := textResponse(method, 412)
			mergeMissing(headers, bodyHeaders)
			return &StreamResponse[T]{StatusCode: 412, Headers: headers, Stream: body, StorageInfo: info,
				Err: &StorageError{Kind: ErrPreconditionFailed}}, nil
		}
	}

	if haveContentType {
		ct := contentType
		if charset != "" {
			ct = fmt.Sprintf("%s; charset=%s", contentType, charset)
		}
		headers.Set("Content-Type", ct)
	}

	if info.ContentEncoding != "" && info.ContentEncoding != "identity" {
		headers.Set("Content-Encoding", info.ContentEncoding)
	}

	if haveDisposition {
		headers.Set("Content-Disposition", formatContentDisposition(dispositionType, dispositionFilename))
	}

	if headers.Get("Content-Type") != "" {
		headers.Set("X-Content-Type-Options", "nosniff")
	}

	rangeSupport := statusOverride == 0 && isGetOrHead(method) && opts.maxRanges() > 0 && info.SizeKnown()
	if isGetOrHead(method) {
		if rangeSupport {
			headers.Set("Accept-Ranges", "bytes")
		} else {
			headers.Set("Accept-Ranges", "none")
		}
	}

	rangesEligible := statusOverride == 0 && method == http.MethodGet && opts.maxRanges() > 0 && info.SizeKnown()
	if rangesEligible {
		rangeHeader := req.Headers.Get("Range")
		if rangeHeader != "" && !IfRangeFresh(req.Headers, etag, lastModTime, nowFunc()) {
			rangeHeader = ""
		}
		if rangeHeader != "" {
			result := ParseRanges(rangeHeader, info.Size, opts.maxRanges())
			switch result.Outcome {
			case RangeUnsatisfiable:
				bodyHeaders, body := textResponse(method, 416)
				setTextResponseContentHeaders(headers, bodyHeaders)
				headers.Set("Content-Range", fmt.Sprintf("bytes */%d", info.Size))
				return &StreamResponse[T]{StatusCode: 416, Headers: headers, Stream: body, StorageInfo: info,
					Err: &StorageError{Kind: ErrRangeNotSatisfiable, TotalSize: info.Size}}, nil
			case RangeOk:
				return buildRangeResponse(ctx, storage, info, headers, result.Ranges, contentType, charset, head)
			}
		}
	}

	// Full-content response: 200, or the forced status when one is set.
	status := 200
	if statusOverride != 0 {
		status = statusOverride
	}
	if head {
		return &StreamResponse[T]{StatusCode: status, Headers: withContentLength(headers, info.Size), Stream: NewEmptyStream(), StorageInfo: info}, nil
	}
	body, err := storage.CreateReadableStream(ctx, info, nil, false)
	if err != nil {
		return nil, errors.Wrap(err, "sendstream: create readable stream")
	}
	return &StreamResponse[T]{StatusCode: status, Headers: withContentLength(headers, info.Size), Stream: body, StorageInfo: info}, nil
}

// nowFunc is the clock If-Range's date comparison reads; it is a
// package variable so a test can substitute a fixed time.
var nowFunc = time.Now

func withContentLength(headers *OrderedHeaders, size int64) *OrderedHeaders {
	if size >= 0 {
		headers.Set("Content-Length", strconv.FormatInt(size, 10))
	}
	return headers
}

// mergeMissing copies fields from src into dst that dst does not
// already have, used to combine a textResponse's Content-Type/Length
// with headers already computed for the branch (304/412/416 still
// carry Cache-Control/ETag/Last-Modified/Vary per spec.md §6).
func mergeMissing(dst, src *OrderedHeaders) {
	src.Each(func(name, value string) {
		if dst.Get(name) == "" {
			dst.Set(name, value)
		}
	})
}

// setTextResponseContentHeaders applies a textResponse's Content-Type
// and Content-Length authoritatively, overwriting whatever the
// resource's own Content-Type/Content-Encoding were already set to on
// dst. Used where dst was built from a successfully-opened resource
// (the 416 branch, reached after Content-Type/Content-Encoding are
// already on the headers) so the error body's plain-text framing
// wins instead of silently keeping the resource's framing, which
// would mislabel an un-encoded text body as e.g. gzip.
func setTextResponseContentHeaders(dst, src *OrderedHeaders) {
	dst.Del("Content-Encoding")
	dst.Set("Content-Type", src.Get("Content-Type"))
	dst.Set("Content-Length", src.Get("Content-Length"))
	if v := src.Get("X-Content-Type-Options"); v != "" {
		dst.Set("X-Content-Type-Options", v)
	}
}

func resolveCacheControl[T any](opts *Options, info *StorageInfo[T]) (string, bool) {
	var o HeaderOverride
	if opts != nil {
		o = opts.CacheControl
	}
	return o.resolve(info.CacheControl, DefaultCacheControl)
}

func resolveLastModified[T any](opts *Options, info *StorageInfo[T]) (string, bool, time.Time) {
	var o HeaderOverride
	if opts != nil {
		o = opts.LastModified
	}
	fallback := DefaultLastModified(info.ModTime)
	value, present := o.resolve(info.LastModified, fallback)
	// The conditional-evaluation machinery needs a time.Time, not the
	// formatted header string; reparse if an override supplied a raw
	// string so If-Modified-Since/If-Unmodified-Since/If-Range
	// comparisons still work.
	t := info.ModTime
	if o.set && !o.disabled {
		if parsed, ok := ParseHTTPDate(o.value); ok {
			t = parsed
		}
	}
	return value, present, t
}

func resolveETag[T any](opts *Options, info *StorageInfo[T]) (string, bool) {
	var o HeaderOverride
	if opts != nil {
		o = opts.ETag
	}
	weak := opts != nil && opts.WeakEtags
	fallback := DefaultETag(info.Size, info.ModTime, info.ContentEncoding, weak)
	return o.resolve(info.ETag, fallback)
}

// resolveContentType returns (mimeType, charset, present). charset is
// only meaningful when present is true and may be "". A Storage that
// sets MimeType but not MimeTypeCharset still gets the default
// pattern-table charset (spec.md §4.3) applied here, same as the
// engine's own MIMETypeFunc fallback below.
func resolveContentType[T any](opts *Options, info *StorageInfo[T]) (string, string, bool) {
	var o HeaderOverride
	if opts != nil {
		o = opts.ContentType
	}
	if o.set {
		if o.disabled {
			return "", "", false
		}
		return o.value, "", true
	}
	if info.MimeType != "" {
		charset := info.MimeTypeCharset
		if charset == "" {
			charset = LookupCharset(opts.charsets(), info.MimeType)
		}
		return info.MimeType, charset, true
	}

	mimeFunc := opts.mimeFunc()
	mimeType := mimeFunc(info.FileName)
	if mimeType == "" {
		fallback := ""
		if opts != nil {
			fallback = opts.DefaultContentType
		}
		if fallback == "" {
			return "", "", false
		}
		mimeType = fallback
	}
	charset := LookupCharset(opts.charsets(), mimeType)
	return mimeType, charset, true
}

// resolveDisposition returns (type, filename, present).
func resolveDisposition[T any](opts *Options, info *StorageInfo[T]) (string, string, bool) {
	var typeOverride, nameOverride HeaderOverride
	if opts != nil {
		typeOverride = opts.ContentDispositionType
		nameOverride = opts.ContentDispositionFilename
	}
	dispType, present := typeOverride.resolve(info.ContentDispositionType, DefaultContentDispositionType)
	if !present {
		return "", "", false
	}
	filename, _ := nameOverride.resolve(info.ContentDispositionFilename, info.FileName)
	return dispType, filename, true
}

// formatContentDisposition renders the Content-Disposition header,
// adding an RFC 6266 filename* extended parameter whenever filename
// contains non-ASCII bytes, per spec.md §4.5 step 6.
func formatContentDisposition(dispositionType, filename string) string {
	if filename == "" {
		return dispositionType
	}
	asciiName := asciiFallback(filename)
	header := fmt.Sprintf(`%s; filename="%s"`, dispositionType, escapeQuotedString(asciiName))
	if asciiName != filename {
		header += fmt.Sprintf(`; filename*=UTF-8''%s`, encodeRFC5987(filename))
	}
	return header
}

func escapeQuotedString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// asciiFallback replaces each non-ASCII or control character (one "_"
// per character, not per byte) for the plain
// filename= parameter, which RFC 6266 requires to stay within ISO-8859-1
// (we restrict further to ASCII for simplicity and safety).
func asciiFallback(s string) string {
	var b strings.Builder
	changed := false
	for _, r := range s {
		if r > 0x7E || r < 0x20 {
			b.WriteByte('_')
			changed = true
			continue
		}
		b.WriteRune(r)
	}
	if !changed {
		return s
	}
	return b.String()
}

// encodeRFC5987 percent-encodes s per RFC 5987 (used for filename*).
func encodeRFC5987(s string) string {
	const alwaysSafe = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_.~"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if strings.IndexByte(alwaysSafe, c) >= 0 {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

// buildRangeResponse implements spec.md §4.5 step 7's single- and
// multi-range 206 branches.
func buildRangeResponse[T any](ctx context.Context, storage Storage[T], info *StorageInfo[T], headers *OrderedHeaders, ranges []StreamRange, contentType, charset string, head bool) (*StreamResponse[T], error) {
	if len(ranges) == 1 {
		r := ranges[0]
		headers.Set("Content-Range", r.ContentRange(info.Size))
		headers.Set("Content-Length", strconv.FormatInt(r.Len(), 10))
		if head {
			return &StreamResponse[T]{StatusCode: 206, Headers: headers, Stream: NewEmptyStream(), StorageInfo: info}, nil
		}
		body, err := storage.CreateReadableStream(ctx, info, &r, false)
		if err != nil {
			return nil, errors.Wrap(err, "sendstream: create readable stream for range")
		}
		return &StreamResponse[T]{StatusCode: 206, Headers: headers, Stream: body, StorageInfo: info}, nil
	}

	boundary, err := GenerateBoundary()
	if err != nil {
		return nil, err
	}
	fullContentType := contentType
	if charset != "" {
		fullContentType = fmt.Sprintf("%s; charset=%s", contentType, charset)
	}
	headers.Set("Content-Type", fmt.Sprintf("multipart/byteranges; boundary=%s", boundary))
	headers.Del("Content-Encoding") // multipart parts carry the original content-type, not a single encoded body

	parts := make([]multipartPart, len(ranges))
	for i, r := range ranges {
		parts[i] = multipartPart{header: multipartPartHeader(boundary, i == 0, fullContentType, r, info.Size), rang: r}
	}
	trailer := []byte("\r\n--" + boundary + "--")

	contentLength := int64(len(trailer))
	for _, p := range parts {
		contentLength += int64(len(p.header)) + p.rang.Len()
	}
	headers.Set("Content-Length", strconv.FormatInt(contentLength, 10))

	if head {
		return &StreamResponse[T]{StatusCode: 206, Headers: headers, Stream: NewEmptyStream(), StorageInfo: info}, nil
	}

	var sources []Stream
	for _, p := range parts {
		r := p.rang
		partStream, err := storage.CreateReadableStream(ctx, info, &r, false)
		if err != nil {
			for _, s := range sources {
				_ = s.Close()
			}
			return nil, errors.Wrap(err, "sendstream: create readable stream for multipart range")
		}
		sources = append(sources, NewBufferStream(p.header), partStream)
	}
	sources = append(sources, NewBufferStream(trailer))

	body := NewMultiStream(sources, nil)
	return &StreamResponse[T]{StatusCode: 206, Headers: headers, Stream: body, StorageInfo: info}, nil
}

type multipartPart struct {
	header []byte
	rang   StreamRange
}

// multipartPartHeader renders one part's framing per spec.md §4.5 step 7.
func multipartPartHeader(boundary string, first bool, contentType string, r StreamRange, size int64) []byte {
	var b strings.Builder
	if !first {
		b.WriteString("\r\n")
	}
	b.WriteString("--")
	b.WriteString(boundary)
	b.WriteString("\r\n")
	b.WriteString("content-type: ")
	b.WriteString(contentType)
	b.WriteString("\r\n")
	b.WriteString("content-range: ")
	b.WriteString(r.ContentRange(size))
	b.WriteString("\r\n\r\n")
	return []byte(b.String())
}
