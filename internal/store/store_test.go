package store

import (
	"testing"

	"github.com/avelar-dev/medikit/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T, encryptionKey string) *Store {
	dir := t.TempDir()

	cfg, err := config.Load("", dir)
	require.NoError(t, err)
	cfg.Storage.EncryptionKey = encryptionKey

	st, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return st
}

func TestStore_KVRoundTrip(t *testing.T) {
	st := setupTestStore(t, "")

	val, err := st.Get("meds")
	require.NoError(t, err)
	assert.Nil(t, val)

	require.NoError(t, st.Set("meds", []byte(`[{"id":"a"}]`)))

	val, err = st.Get("meds")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[{"id":"a"}]`), val)

	require.NoError(t, st.Remove("meds"))

	val, err = st.Get("meds")
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestStore_RemoveAbsentKey(t *testing.T) {
	st := setupTestStore(t, "")
	assert.NoError(t, st.Remove("never-set"))
}

func TestStore_EncryptedRoundTrip(t *testing.T) {
	st := setupTestStore(t, "demo-passphrase")

	require.NoError(t, st.Set("meds", []byte(`[]`)))

	val, err := st.Get("meds")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[]`), val)
}

func TestAESCodec(t *testing.T) {
	codec := NewAESCodec("passphrase")

	enc, err := codec.Encode([]byte("hello"))
	require.NoError(t, err)
	assert.NotEqual(t, []byte("hello"), enc)

	dec, err := codec.Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), dec)

	// Different key cannot decode
	other := NewAESCodec("wrong")
	_, err = other.Decode(enc)
	assert.Error(t, err)
}

func TestAESCodec_ShortCiphertext(t *testing.T) {
	codec := NewAESCodec("passphrase")
	_, err := codec.Decode([]byte("short"))
	assert.Error(t, err)
}
