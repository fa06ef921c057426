package fs

import (
	"testing"

	"github.com/black-06/sendstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kindOf(t *testing.T, err error) sendstream.ErrorKind {
	t.Helper()
	var se *sendstream.StorageError
	require.ErrorAs(t, err, &se)
	return se.Kind
}

func TestValidateReferenceOK(t *testing.T) {
	segments, err := validateReference("/a/b/name.txt", DefaultIgnoreFunc)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "name.txt"}, segments)
}

func TestValidateReferenceSegmentSlice(t *testing.T) {
	segments, err := validateReference([]string{"a", "name.txt"}, DefaultIgnoreFunc)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "name.txt"}, segments)
}

func TestValidateReferenceNotNormalized(t *testing.T) {
	_, err := validateReference("/pets/../name.txt", DefaultIgnoreFunc)
	assert.Equal(t, sendstream.ErrNotNormalized, kindOf(t, err))
}

func TestValidateReferenceForbiddenCharacter(t *testing.T) {
	_, err := validateReference("/some%00thing.txt", DefaultIgnoreFunc)
	assert.Equal(t, sendstream.ErrForbiddenCharacter, kindOf(t, err))
}

func TestValidateReferenceConsecutiveSlashes(t *testing.T) {
	_, err := validateReference("//name.txt", DefaultIgnoreFunc)
	assert.Equal(t, sendstream.ErrConsecutiveSlashes, kindOf(t, err))
}

func TestValidateReferenceTrailingSlash(t *testing.T) {
	_, err := validateReference("/dir/", DefaultIgnoreFunc)
	assert.Equal(t, sendstream.ErrTrailingSlash, kindOf(t, err))
}

func TestValidateReferenceMalformedPercentEncoding(t *testing.T) {
	_, err := validateReference("/bad%zzname", DefaultIgnoreFunc)
	assert.Equal(t, sendstream.ErrMalformedPath, kindOf(t, err))
}

func TestValidateReferenceIgnoredFile(t *testing.T) {
	_, err := validateReference("/.hidden", DefaultIgnoreFunc)
	assert.Equal(t, sendstream.ErrIgnoredFile, kindOf(t, err))
}

func TestValidateReferenceInvalidPath(t *testing.T) {
	// A decoded segment that itself contains a slash (e.g. "%2F") must
	// be rejected even though the raw segment had none.
	_, err := validateReference("/a%2Fb", DefaultIgnoreFunc)
	assert.Equal(t, sendstream.ErrInvalidPath, kindOf(t, err))
}

func TestDefaultIgnoreFunc(t *testing.T) {
	assert.True(t, DefaultIgnoreFunc(".git"))
	assert.False(t, DefaultIgnoreFunc("."))
	assert.False(t, DefaultIgnoreFunc(".."))
	assert.False(t, DefaultIgnoreFunc("name.txt"))
}
