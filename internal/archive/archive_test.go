package archive_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Travis-L-R/meshinfo/internal/archive"
)

func openTestArchive(t *testing.T) *archive.Archive {
	t.Helper()
	a, err := archive.Open(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestPutAndRecent(t *testing.T) {
	a := openTestArchive(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, a.Put("msh/us/json", []byte(`{"n":1}`), base))
	require.NoError(t, a.Put("msh/us/json", []byte(`{"n":2}`), base.Add(time.Second)))
	require.NoError(t, a.Put("msh/eu/json", []byte(`{"n":3}`), base.Add(2*time.Second)))

	recent, err := a.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "msh/eu/json", recent[0].Topic)
	assert.Equal(t, []byte(`{"n":3}`), recent[0].Payload)
	assert.Equal(t, []byte(`{"n":2}`), recent[1].Payload)
}

func TestCount(t *testing.T) {
	a := openTestArchive(t)
	now := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, a.Put("t", []byte("x"), now))
	}
	count, err := a.Count()
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestSameInstantFramesAllKept(t *testing.T) {
	a := openTestArchive(t)
	now := time.Now()
	require.NoError(t, a.Put("t", []byte("a"), now))
	require.NoError(t, a.Put("t", []byte("b"), now))

	count, err := a.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
