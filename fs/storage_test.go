package fs

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/black-06/sendstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestStorageOpenAndRead(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "nums.txt", "012345678")

	storage := New(Options{Root: dir})
	info, err := storage.Open(context.Background(), "/nums.txt", http.Header{})
	require.NoError(t, err)
	assert.Equal(t, int64(9), info.Size)
	assert.Equal(t, "nums.txt", info.FileName)

	stream, err := storage.CreateReadableStream(context.Background(), info, nil, false)
	require.NoError(t, err)
	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "012345678", string(data))
	require.NoError(t, stream.Close())
	require.NoError(t, storage.Close(context.Background(), info))
}

func TestStorageOpenRange(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "nums.txt", "012345678")

	storage := New(Options{Root: dir})
	info, err := storage.Open(context.Background(), "/nums.txt", http.Header{})
	require.NoError(t, err)
	defer storage.Close(context.Background(), info)

	stream, err := storage.CreateReadableStream(context.Background(), info, &sendstream.StreamRange{Start: 2, End: 4}, false)
	require.NoError(t, err)
	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "234", string(data))
}

func TestStorageDoesNotExist(t *testing.T) {
	dir := t.TempDir()
	storage := New(Options{Root: dir})
	_, err := storage.Open(context.Background(), "/missing.txt", http.Header{})
	var se *sendstream.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, sendstream.ErrDoesNotExist, se.Kind)
}

func TestStorageIsDirectoryByDefault(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	storage := New(Options{Root: dir})
	_, err := storage.Open(context.Background(), "/sub", http.Header{})
	var se *sendstream.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, sendstream.ErrIsDirectory, se.Kind)
}

func TestStorageListFilesPolicy(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "b.txt", "b")
	writeTempFile(t, dir, "a.txt", "a")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644))

	storage := New(Options{Root: dir, OnDirectory: OnDirectoryListFiles})
	info, err := storage.Open(context.Background(), "", http.Header{})
	require.NoError(t, err)
	assert.Equal(t, "text/html", info.MimeType)

	stream, err := storage.CreateReadableStream(context.Background(), info, nil, false)
	require.NoError(t, err)
	data, err := io.ReadAll(stream)
	require.NoError(t, err)

	body := string(data)
	assert.Contains(t, body, "a.txt")
	assert.Contains(t, body, "b.txt")
	assert.NotContains(t, body, ".hidden")
	// lexicographic: a.txt must appear before b.txt
	assert.Less(t, indexOf(body, "a.txt"), indexOf(body, "b.txt"))
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestStorageEncodingVariantSelection(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "app.js", "identity-body")
	writeTempFile(t, dir, "app.js.gz", "gzip-body")

	storage := New(Options{
		Root: dir,
		ContentEncodingMappings: []EncodingMapping{
			{Pattern: "*", Encodings: []EncodingVariant{{Name: "gzip", Suffix: ".gz"}}},
		},
	})

	info, err := storage.Open(context.Background(), "/app.js", http.Header{"Accept-Encoding": {"gzip"}})
	require.NoError(t, err)
	assert.Equal(t, "gzip", info.ContentEncoding)
	assert.Equal(t, "Accept-Encoding", info.Vary)

	stream, err := storage.CreateReadableStream(context.Background(), info, nil, false)
	require.NoError(t, err)
	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "gzip-body", string(data))
	require.NoError(t, storage.Close(context.Background(), info))
}

func TestStorageEncodingVariantSelectionHonorsClientWeights(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "app.js", "identity-body")
	writeTempFile(t, dir, "app.js.gz", "gzip-body")
	writeTempFile(t, dir, "app.js.br", "brotli-body")

	storage := New(Options{
		Root: dir,
		ContentEncodingMappings: []EncodingMapping{
			// gzip listed first, but the client weights br higher.
			{Pattern: "*", Encodings: []EncodingVariant{{Name: "gzip", Suffix: ".gz"}, {Name: "br", Suffix: ".br"}}},
		},
	})

	info, err := storage.Open(context.Background(), "/app.js", http.Header{"Accept-Encoding": {"gzip;q=0.1, br;q=0.9"}})
	require.NoError(t, err)
	assert.Equal(t, "br", info.ContentEncoding)

	stream, err := storage.CreateReadableStream(context.Background(), info, nil, false)
	require.NoError(t, err)
	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "brotli-body", string(data))
	require.NoError(t, storage.Close(context.Background(), info))
}

func TestStorageEncodingVariantFallsBackToIdentity(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "app.js", "identity-body")

	storage := New(Options{
		Root: dir,
		ContentEncodingMappings: []EncodingMapping{
			{Pattern: "*", Encodings: []EncodingVariant{{Name: "gzip", Suffix: ".gz"}}},
		},
	})

	info, err := storage.Open(context.Background(), "/app.js", http.Header{"Accept-Encoding": {"gzip"}})
	require.NoError(t, err)
	assert.Equal(t, "", info.ContentEncoding)
	assert.Equal(t, "Accept-Encoding", info.Vary)
}
