package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStoreLifecycle(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "ical/abc/haircut-1.ics", []byte("BEGIN:VCALENDAR"), "text/calendar"))

	data, err := s.Get(ctx, "ical/abc/haircut-1.ics")
	require.NoError(t, err)
	assert.Equal(t, "BEGIN:VCALENDAR", string(data))

	require.NoError(t, s.Delete(ctx, "ical/abc/haircut-1.ics"))
	_, err = s.Get(ctx, "ical/abc/haircut-1.ics")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	assert.NoError(t, s.Delete(ctx, "ical/abc/haircut-1.ics"), "deleting twice is fine")
}

func TestKeysCannotEscapeRoot(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "../../etc/passwd", []byte("x"), "text/plain"))
	data, err := s.Get(ctx, "etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}
