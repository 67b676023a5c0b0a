package envelope

import (
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	c := New()
	inputs := []string{"", "hello", "Ünïcödé ✓", string(make([]byte, 2048))}
	for _, in := range inputs {
		sealed, err := c.Encrypt(in, "master-key")
		require.NoError(t, err)

		out, err := c.Decrypt(sealed.Content, "master-key", sealed.Nonce)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestEncryptIsFresh(t *testing.T) {
	c := New()
	a, err := c.Encrypt("same message", "k")
	require.NoError(t, err)
	b, err := c.Encrypt("same message", "k")
	require.NoError(t, err)

	assert.NotEqual(t, a.Nonce, b.Nonce)
	assert.NotEqual(t, a.Content, b.Content)
}

func TestNonceAndTagSizes(t *testing.T) {
	sealed, err := Encrypt("abc", "k")
	require.NoError(t, err)

	nonce, err := base64.StdEncoding.DecodeString(sealed.Nonce)
	require.NoError(t, err)
	assert.Len(t, nonce, NonceLength)

	ct, err := base64.StdEncoding.DecodeString(sealed.Content)
	require.NoError(t, err)
	assert.Len(t, ct, len("abc")+TagLength)
}

func TestTamperedCiphertextFails(t *testing.T) {
	sealed, err := Encrypt("secret", "k")
	require.NoError(t, err)

	raw, _ := base64.StdEncoding.DecodeString(sealed.Content)
	raw[0] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)

	_, err = Decrypt(tampered, "k", sealed.Nonce)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecrypt))
}

func TestDecryptFailures(t *testing.T) {
	sealed, err := Encrypt("secret", "k")
	require.NoError(t, err)

	cases := map[string]struct{ content, key, nonce string }{
		"wrong key":        {sealed.Content, "other", sealed.Nonce},
		"missing key":      {sealed.Content, "", sealed.Nonce},
		"bad nonce base64": {sealed.Content, "k", "%%%"},
		"short nonce":      {sealed.Content, "k", base64.StdEncoding.EncodeToString([]byte("abc"))},
		"bad content":      {"not base64!", "k", sealed.Nonce},
		"truncated":        {base64.StdEncoding.EncodeToString([]byte("x")), "k", sealed.Nonce},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decrypt(tc.content, tc.key, tc.nonce)
			assert.ErrorIs(t, err, ErrDecrypt)
		})
	}
}

func TestEncryptWithoutKey(t *testing.T) {
	_, err := Encrypt("x", "")
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestCacheEvictionDoesNotAffectDecrypt(t *testing.T) {
	c := New()
	sealed, err := c.Encrypt("persist", "k")
	require.NoError(t, err)

	c.Purge()
	out, err := c.Decrypt(sealed.Content, "k", sealed.Nonce)
	require.NoError(t, err)
	assert.Equal(t, "persist", out)

	// Fill past capacity so the first key is evicted.
	for i := 0; i < cacheSize+10; i++ {
		_, err := c.Encrypt("filler", "k")
		require.NoError(t, err)
	}
	out, err = c.Decrypt(sealed.Content, "k", sealed.Nonce)
	require.NoError(t, err)
	assert.Equal(t, "persist", out)
}

func TestConcurrentUse(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sealed, err := c.Encrypt("parallel", "k")
			if !assert.NoError(t, err) {
				return
			}
			out, err := c.Decrypt(sealed.Content, "k", sealed.Nonce)
			assert.NoError(t, err)
			assert.Equal(t, "parallel", out)
		}()
	}
	wg.Wait()
}
