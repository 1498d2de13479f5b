package backup

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wileschulpusi/Review/internal/keyValStore"
)

func newTestKV(t *testing.T) *keyValStore.KeyValStore {
	t.Helper()
	dir, err := os.MkdirTemp("", "review_backup_test_*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
		Paths:  []string{dir},
		Logger: logrus.New(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return kv
}

func TestExportImport_Roundtrip(t *testing.T) {
	src := newTestKV(t)
	require.NoError(t, src.Write([]byte("paper::p1"), []byte(`{"id":"p1"}`)))
	require.NoError(t, src.Write([]byte("review::p1::00000000"), []byte(`{"index":0}`)))
	require.NoError(t, src.Write([]byte("handle::abc"), []byte(`{"id":"abc"}`)))
	// Keys outside the snapshot families stay behind.
	require.NoError(t, src.Write([]byte("scratch"), []byte("x")))

	var buf bytes.Buffer
	require.NoError(t, Export(src, &buf, time.Now()))

	dst := newTestKV(t)
	n, err := Import(dst, &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := dst.Read([]byte("paper::p1"))
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"id":"p1"}`), got)

	_, err = dst.Read([]byte("scratch"))
	assert.ErrorIs(t, err, keyValStore.ErrKeyNotFound)
}

func TestImport_RejectsGarbage(t *testing.T) {
	dst := newTestKV(t)

	_, err := Import(dst, bytes.NewReader([]byte("not an xz stream")))
	assert.Error(t, err)
}
