package sendstream

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAndParseHTTPDate(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	s := FormatHTTPDate(t0)
	assert.Equal(t, "Fri, 01 Mar 2024 12:30:00 GMT", s)

	parsed, ok := ParseHTTPDate(s)
	require.True(t, ok)
	assert.True(t, t0.Equal(parsed))

	_, ok = ParseHTTPDate("not a date")
	assert.False(t, ok)

	_, ok = ParseHTTPDate("")
	assert.False(t, ok)
}

func TestFormatETag(t *testing.T) {
	strong := FormatStrongETag(9, 1, "")
	assert.Equal(t, `"9-3e8"`, strong)

	withEncoding := FormatStrongETag(9, 1, "gzip")
	assert.Equal(t, `"9-3e8-gzip"`, withEncoding)

	identity := FormatStrongETag(9, 1, "identity")
	assert.Equal(t, `"9-3e8"`, identity)

	weak := FormatETag(9, 1, "", true)
	assert.Equal(t, `W/"9-3e8"`, weak)
}

func TestETagMatching(t *testing.T) {
	assert.True(t, ETagStrongMatch(`"abc"`, `"abc"`))
	assert.False(t, ETagStrongMatch(`W/"abc"`, `"abc"`))
	assert.False(t, ETagStrongMatch(`"abc"`, `"def"`))

	assert.True(t, ETagWeakMatch(`W/"abc"`, `"abc"`))
	assert.True(t, ETagWeakMatch(`"abc"`, `"abc"`))
	assert.False(t, ETagWeakMatch(`"abc"`, `"def"`))
}

func TestMatchesETagList(t *testing.T) {
	assert.True(t, matchesETagList(`"a", "b"`, `"b"`, true, true))
	assert.False(t, matchesETagList(`"a", "b"`, `"c"`, true, true))
	assert.True(t, matchesETagList(`*`, `"c"`, true, true))
	assert.False(t, matchesETagList(`*`, `"c"`, true, false))
}

func TestFreshStatus(t *testing.T) {
	modTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	etag := `"abc"`

	h := http.Header{}
	assert.Equal(t, 200, FreshStatus(true, h, etag, modTime))

	h = http.Header{"If-None-Match": []string{etag}}
	assert.Equal(t, 304, FreshStatus(true, h, etag, modTime))
	assert.Equal(t, 412, FreshStatus(false, h, etag, modTime))

	h = http.Header{"If-Match": []string{`"other"`}}
	assert.Equal(t, 412, FreshStatus(true, h, etag, modTime))

	h = http.Header{"If-Modified-Since": []string{FormatHTTPDate(modTime)}}
	assert.Equal(t, 304, FreshStatus(true, h, etag, modTime))

	h = http.Header{"If-Modified-Since": []string{FormatHTTPDate(modTime.Add(-time.Hour))}}
	assert.Equal(t, 200, FreshStatus(true, h, etag, modTime))

	h = http.Header{"If-Unmodified-Since": []string{FormatHTTPDate(modTime.Add(-time.Hour))}}
	assert.Equal(t, 412, FreshStatus(true, h, etag, modTime))
}

func TestIfRangeFresh(t *testing.T) {
	modTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	etag := `"abc"`
	now := modTime.Add(time.Hour)

	assert.True(t, IfRangeFresh(http.Header{}, etag, modTime, now))

	h := http.Header{"If-Range": []string{etag}}
	assert.True(t, IfRangeFresh(h, etag, modTime, now))

	h = http.Header{"If-Range": []string{`"stale"`}}
	assert.False(t, IfRangeFresh(h, etag, modTime, now))
}

func TestParseRangesSingle(t *testing.T) {
	result := ParseRanges("bytes=0-3", 9, 200)
	require.Equal(t, RangeOk, result.Outcome)
	require.Len(t, result.Ranges, 1)
	assert.Equal(t, StreamRange{Start: 0, End: 3}, result.Ranges[0])
	assert.Equal(t, int64(4), result.Ranges[0].Len())
	assert.Equal(t, "bytes 0-3/9", result.Ranges[0].ContentRange(9))
}

func TestParseRangesSuffix(t *testing.T) {
	result := ParseRanges("bytes=-3", 9, 200)
	require.Equal(t, RangeOk, result.Outcome)
	require.Len(t, result.Ranges, 1)
	assert.Equal(t, StreamRange{Start: 6, End: 8}, result.Ranges[0])
}

func TestParseRangesCoalesce(t *testing.T) {
	result := ParseRanges("bytes=0-1,2-3,5-6", 9, 200)
	require.Equal(t, RangeOk, result.Outcome)
	require.Len(t, result.Ranges, 2)
	assert.Equal(t, StreamRange{Start: 0, End: 3}, result.Ranges[0])
	assert.Equal(t, StreamRange{Start: 5, End: 6}, result.Ranges[1])
}

func TestParseRangesUnsatisfiable(t *testing.T) {
	result := ParseRanges("bytes=100-200", 9, 200)
	assert.Equal(t, RangeUnsatisfiable, result.Outcome)
}

func TestParseRangesMalformedFallsBackToFull(t *testing.T) {
	assert.Equal(t, RangeFull, ParseRanges("items=0-1", 9, 200).Outcome)
	assert.Equal(t, RangeFull, ParseRanges("bytes=abc-def", 9, 200).Outcome)
	assert.Equal(t, RangeFull, ParseRanges("", 9, 200).Outcome)
}

func TestParseRangesExceedsMax(t *testing.T) {
	result := ParseRanges("bytes=0-0,2-2,4-4", 9, 2)
	assert.Equal(t, RangeFull, result.Outcome)
}

func TestAcceptEncoding(t *testing.T) {
	ae := ParseAcceptEncoding("gzip;q=0.8, br;q=1.0, x-gzip")
	assert.True(t, ae.Accepts("gzip"))
	assert.True(t, ae.Accepts("br"))
	assert.True(t, ae.Accepts("identity"))
	assert.False(t, ae.Accepts("deflate"))

	assert.Equal(t, "br", ae.Preferred([]string{"br", "gzip"}))
}

func TestAcceptEncodingMissingHeaderMeansIdentityOnly(t *testing.T) {
	ae := ParseAcceptEncoding("")
	assert.True(t, ae.Accepts("identity"))
	assert.False(t, ae.Accepts("gzip"))
	assert.Equal(t, "identity", ae.Preferred([]string{"br", "gzip"}))
}

func TestAcceptEncodingWildcard(t *testing.T) {
	ae := ParseAcceptEncoding("*;q=0.5")
	assert.True(t, ae.Accepts("gzip"))
	assert.Equal(t, "gzip", ae.Preferred([]string{"gzip", "br"}))
}

func TestAcceptEncodingExplicitZeroDisablesIdentity(t *testing.T) {
	ae := ParseAcceptEncoding("identity;q=0, gzip")
	assert.False(t, ae.Accepts("identity"))
	assert.True(t, ae.Accepts("gzip"))
}
