package sendstream

import (
	"fmt"
	"net/http"
	"net/textproto"
	"sort"
	"strconv"
	"strings"
	"time"
)

// FormatHTTPDate renders t the way Last-Modified/Date headers are
// formatted (RFC 7231 §7.1.1.1, the same layout net/http uses).
func FormatHTTPDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

// ParseHTTPDate parses an HTTP-date header value. Unparseable input
// returns ok=false; callers must treat that the same as an absent
// header (spec.md §4.1: unparseable dates never trigger 304/412).
func ParseHTTPDate(s string) (t time.Time, ok bool) {
	if s == "" {
		return time.Time{}, false
	}
	parsed, err := http.ParseTime(s)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// FormatStrongETag builds the strong ETag form spec.md §4.1 defines:
// "<size-hex>-<mtimeMs*1000-hex>[-<encoding>]". The encoding suffix is
// omitted when encoding is empty or "identity".
func FormatStrongETag(size int64, mtimeMs int64, encoding string) string {
	body := fmt.Sprintf("%x-%x", size, mtimeMs*1000)
	if encoding != "" && encoding != "identity" {
		body += "-" + encoding
	}
	return `"` + body + `"`
}

// FormatETag wraps FormatStrongETag, prefixing "W/" when weak is true.
func FormatETag(size int64, mtimeMs int64, encoding string, weak bool) string {
	strong := FormatStrongETag(size, mtimeMs, encoding)
	if weak {
		return "W/" + strong
	}
	return strong
}

// scanETag determines if a syntactically valid ETag is present at s. If
// so, the ETag and the remaining text after consuming it is returned.
// Grounded on the teacher's file_download.go scanETag.
func scanETag(s string) (etag string, remain string) {
	s = textproto.TrimString(s)
	start := 0
	if strings.HasPrefix(s, "W/") {
		start = 2
	}
	if len(s[start:]) < 2 || s[start] != '"' {
		return "", ""
	}
	for i := start + 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == 0x21 || c >= 0x23 && c <= 0x7E || c >= 0x80:
		case c == '"':
			return s[:i+1], s[i+1:]
		default:
			return "", ""
		}
	}
	return "", ""
}

// ETagStrongMatch reports whether a and b match using strong comparison
// (RFC 7232 §2.3.2): byte-equal, and neither is a weak tag.
func ETagStrongMatch(a, b string) bool {
	return a != "" && b != "" && a == b && a[0] == '"' && b[0] == '"'
}

// ETagWeakMatch reports whether a and b match using weak comparison:
// equal once any leading "W/" is stripped from both.
func ETagWeakMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.TrimPrefix(a, "W/") == strings.TrimPrefix(b, "W/")
}

// matchesETagList walks a comma-separated If-Match/If-None-Match list,
// returning true if "*" appears (and a representation exists) or any
// entry matches etag under the requested comparison strength.
func matchesETagList(list string, etag string, strong bool, haveRepresentation bool) bool {
	for {
		list = textproto.TrimString(list)
		if len(list) == 0 {
			return false
		}
		if list[0] == ',' {
			list = list[1:]
			continue
		}
		if list[0] == '*' {
			return haveRepresentation
		}
		candidate, remain := scanETag(list)
		if candidate == "" {
			return false
		}
		if strong {
			if ETagStrongMatch(candidate, etag) {
				return true
			}
		} else if ETagWeakMatch(candidate, etag) {
			return true
		}
		list = remain
	}
}

// FreshStatus implements spec.md §4.1's freshStatus conditional
// evaluation, returning 200, 304, or 412. lastModified may be the zero
// Time if the resource has none.
func FreshStatus(isGetOrHead bool, h http.Header, etag string, lastModified time.Time) int {
	haveRepresentation := etag != "" || !lastModified.IsZero()
	hasLastModified := !lastModified.IsZero()
	truncated := lastModified.Truncate(time.Second)

	checkedPrecondition := false
	if im := h.Get("If-Match"); im != "" {
		checkedPrecondition = true
		if !matchesETagList(im, etag, true, haveRepresentation) {
			return 412
		}
	}
	if !checkedPrecondition {
		if ius := h.Get("If-Unmodified-Since"); ius != "" && hasLastModified {
			if t, ok := ParseHTTPDate(ius); ok {
				if truncated.After(t) {
					return 412
				}
			}
		}
	}

	if inm := h.Get("If-None-Match"); inm != "" {
		if matchesETagList(inm, etag, false, haveRepresentation) {
			if isGetOrHead {
				return 304
			}
			return 412
		}
		return 200
	}
	if isGetOrHead {
		if ims := h.Get("If-Modified-Since"); ims != "" && hasLastModified {
			if t, ok := ParseHTTPDate(ims); ok {
				if !truncated.After(t) {
					return 304
				}
			}
		}
	}
	return 200
}

// IfRangeFresh implements spec.md §4.1's If-Range freshness check. An
// absent If-Range header is considered fresh (the Range header, if any,
// is honored). now is the reference clock, injected for testability.
func IfRangeFresh(h http.Header, etag string, lastModified time.Time, now time.Time) bool {
	ir := h.Get("If-Range")
	if ir == "" {
		return true
	}
	if candidate, _ := scanETag(ir); candidate != "" {
		return ETagStrongMatch(candidate, etag)
	}
	if lastModified.IsZero() {
		return false
	}
	t, ok := ParseHTTPDate(ir)
	if !ok {
		return false
	}
	truncated := lastModified.Truncate(time.Second)
	if !t.Equal(truncated) {
		return false
	}
	return !now.Before(t.Add(time.Second * 60))
}

// StreamRange is an inclusive byte interval, spec.md §3's StreamRange.
type StreamRange struct {
	Start, End int64
}

// Len returns the number of bytes the range covers.
func (r StreamRange) Len() int64 { return r.End - r.Start + 1 }

// ContentRange renders the Content-Range header value for a single
// range against a resource of the given total size.
func (r StreamRange) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// RangeOutcome classifies the result of parsing a Range header.
type RangeOutcome int

const (
	// RangeFull means the Range header was absent, malformed, used a
	// non-bytes unit, or coalesced to more than maxRanges: serve 200.
	RangeFull RangeOutcome = iota
	// RangeUnsatisfiable means every requested range lay beyond size: 416.
	RangeUnsatisfiable
	// RangeOk means Ranges holds one or more valid, coalesced ranges: 206.
	RangeOk
)

// RangeResult is the outcome of ParseRanges.
type RangeResult struct {
	Outcome RangeOutcome
	Ranges  []StreamRange
}

// ParseRanges parses a "Range: bytes=..." header per RFC 7233, combining
// overlapping/adjacent ranges and applying maxRanges per spec.md §4.1.
// rangeHeader=="" is treated as RangeFull (no Range header present).
func ParseRanges(rangeHeader string, size int64, maxRanges int) RangeResult {
	if rangeHeader == "" || size <= 0 {
		return RangeResult{Outcome: RangeFull}
	}
	const prefix = "bytes="
	if !strings.HasPrefix(rangeHeader, prefix) {
		return RangeResult{Outcome: RangeFull}
	}

	var (
		parsed    []StreamRange
		noOverlap bool
	)
	for _, part := range strings.Split(rangeHeader[len(prefix):], ",") {
		part = textproto.TrimString(part)
		if part == "" {
			continue
		}
		startStr, endStr, ok := strings.Cut(part, "-")
		if !ok {
			return RangeResult{Outcome: RangeFull}
		}
		startStr, endStr = textproto.TrimString(startStr), textproto.TrimString(endStr)

		var r StreamRange
		if startStr == "" {
			if endStr == "" || endStr[0] == '-' {
				return RangeResult{Outcome: RangeFull}
			}
			suffix, err := strconv.ParseInt(endStr, 10, 64)
			if err != nil || suffix < 0 {
				return RangeResult{Outcome: RangeFull}
			}
			if suffix > size {
				suffix = size
			}
			if suffix == 0 {
				continue
			}
			r.Start = size - suffix
			r.End = size - 1
		} else {
			start, err := strconv.ParseInt(startStr, 10, 64)
			if err != nil || start < 0 {
				return RangeResult{Outcome: RangeFull}
			}
			if start >= size {
				noOverlap = true
				continue
			}
			r.Start = start
			if endStr == "" {
				r.End = size - 1
			} else {
				end, err := strconv.ParseInt(endStr, 10, 64)
				if err != nil || start > end {
					return RangeResult{Outcome: RangeFull}
				}
				if end >= size {
					end = size - 1
				}
				r.End = end
			}
		}
		parsed = append(parsed, r)
	}

	if len(parsed) == 0 {
		if noOverlap {
			return RangeResult{Outcome: RangeUnsatisfiable}
		}
		return RangeResult{Outcome: RangeFull}
	}

	combined := coalesceRanges(parsed)
	if maxRanges > 0 && len(combined) > maxRanges {
		return RangeResult{Outcome: RangeFull}
	}
	return RangeResult{Outcome: RangeOk, Ranges: combined}
}

// coalesceRanges sorts ranges ascending by start and merges any that
// overlap or touch (spec.md §4.1: "Combine overlapping/adjacent ranges").
func coalesceRanges(ranges []StreamRange) []StreamRange {
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
	out := make([]StreamRange, 0, len(ranges))
	for _, r := range ranges {
		if n := len(out); n > 0 && r.Start <= out[n-1].End+1 {
			if r.End > out[n-1].End {
				out[n-1].End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// foldEncodingName applies spec.md §4.1's legacy aliasing:
// x-gzip -> gzip, x-compress -> compress.
func foldEncodingName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "x-gzip":
		return "gzip"
	case "x-compress":
		return "compress"
	default:
		return name
	}
}

// AcceptEncoding is a parsed Accept-Encoding header (spec.md §4.1).
type AcceptEncoding struct {
	weights    map[string]float64
	hasStar    bool
	starWeight float64
}

// ParseAcceptEncoding tokenizes an Accept-Encoding header value. An
// empty string (missing or empty header) yields a set that accepts
// identity only.
func ParseAcceptEncoding(header string) *AcceptEncoding {
	ae := &AcceptEncoding{weights: map[string]float64{}}
	if header == "" {
		return ae
	}
	for _, tok := range strings.Split(header, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		name, params, _ := strings.Cut(tok, ";")
		name = foldEncodingName(name)
		weight := 1.0
		for _, p := range strings.Split(params, ";") {
			p = strings.TrimSpace(p)
			key, val, ok := strings.Cut(p, "=")
			if !ok || strings.TrimSpace(key) != "q" {
				continue
			}
			if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
				weight = f
			}
		}
		if name == "*" {
			ae.hasStar = true
			ae.starWeight = weight
			continue
		}
		if name == "" {
			continue
		}
		ae.weights[name] = weight
	}
	return ae
}

// Accepts reports whether name is an acceptable content-coding under
// this Accept-Encoding, per spec.md §4.1 and the Open Question
// decisions recorded in DESIGN.md (identity always remains selectable
// as an availability fallback from the caller's perspective; Accepts
// itself reports the strict RFC-ish answer so callers can choose).
func (a *AcceptEncoding) Accepts(name string) bool {
	name = foldEncodingName(name)
	if w, explicit := a.weights[name]; explicit {
		return w > 0
	}
	if name == "identity" {
		return true
	}
	if a.hasStar {
		return a.starWeight > 0
	}
	return false
}

// Preferred picks the highest-weight acceptable encoding among order
// (server preference order, most preferred first), falling back to
// "identity" if nothing in order is acceptable — the engine always
// prefers availability over returning 406 (spec.md §9 Open Questions).
func (a *AcceptEncoding) Preferred(order []string) string {
	type scored struct {
		name   string
		weight float64
		rank   int
	}
	var candidates []scored
	for i, name := range order {
		folded := foldEncodingName(name)
		if w, explicit := a.weights[folded]; explicit {
			if w > 0 {
				candidates = append(candidates, scored{folded, w, i})
			}
			continue
		}
		if folded == "identity" {
			candidates = append(candidates, scored{folded, 1, i})
			continue
		}
		if a.hasStar && a.starWeight > 0 {
			candidates = append(candidates, scored{folded, a.starWeight, i})
		}
	}
	if len(candidates) == 0 {
		return "identity"
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].weight != candidates[j].weight {
			return candidates[i].weight > candidates[j].weight
		}
		return candidates[i].rank < candidates[j].rank
	})
	return candidates[0].name
}
