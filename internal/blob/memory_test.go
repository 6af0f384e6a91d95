package blob

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutObject(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	uri, err := s.PutObject(context.Background(), "posters/abc.jpg", "image/jpeg", strings.NewReader("jpegbytes"))
	require.NoError(t, err)
	assert.Equal(t, "memory://posters/abc.jpg", uri)

	b, ok := s.Get("posters/abc.jpg")
	require.True(t, ok)
	assert.Equal(t, []byte("jpegbytes"), b)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStoreOverwrite(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	_, err := s.PutObject(context.Background(), "p", "", strings.NewReader("one"))
	require.NoError(t, err)
	_, err = s.PutObject(context.Background(), "p", "", strings.NewReader("two"))
	require.NoError(t, err)

	b, _ := s.Get("p")
	assert.Equal(t, []byte("two"), b)
	assert.Equal(t, 1, s.Len())
}
