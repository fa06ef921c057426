package sendstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStorageInfoSizeKnown(t *testing.T) {
	unknown := &StorageInfo[struct{}]{Size: -1}
	assert.False(t, unknown.SizeKnown())

	known := &StorageInfo[struct{}]{Size: 0}
	assert.True(t, known.SizeKnown())
}

func TestDefaultMIMEType(t *testing.T) {
	// mime.TypeByExtension commonly reports "text/html; charset=utf-8"
	// for .html; DefaultMIMEType strips the charset parameter so charset
	// selection stays a separate, overridable step.
	assert.Equal(t, "text/html", DefaultMIMEType("index.html"))
	assert.Equal(t, "", DefaultMIMEType("noext"))
}

func TestLookupCharset(t *testing.T) {
	rules := DefaultCharsets()
	assert.Equal(t, "UTF-8", LookupCharset(rules, "text/plain"))
	assert.Equal(t, "UTF-8", LookupCharset(rules, "application/json"))
	assert.Equal(t, "", LookupCharset(rules, "image/png"))
}

func TestDefaultETagAndLastModified(t *testing.T) {
	modTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "", DefaultETag(-1, modTime, "", false))
	assert.Equal(t, "", DefaultETag(9, time.Time{}, "", false))
	assert.NotEqual(t, "", DefaultETag(9, modTime, "", false))

	assert.Equal(t, "", DefaultLastModified(time.Time{}))
	assert.Equal(t, FormatHTTPDate(modTime), DefaultLastModified(modTime))
}
