package utils

import (
	"context"
	"errors"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webpush-service/internal/logging"
)

type fakeResolver map[string][]netip.Addr

func (f fakeResolver) LookupNetIP(_ context.Context, _, host string) ([]netip.Addr, error) {
	addrs, ok := f[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	return addrs, nil
}

func TestIsLocalNetworkURL(t *testing.T) {
	resolver := fakeResolver{
		"hooks.example.com":    {netip.MustParseAddr("93.184.216.34")},
		"internal.example.com": {netip.MustParseAddr("10.0.0.7")},
	}
	cases := []struct {
		url  string
		want bool
	}{
		{"https://localhost/hook", true},
		{"http://api.localhost:8080", true},
		{"http://127.0.0.1:9000", true},
		{"http://10.1.2.3", true},
		{"http://172.16.0.1", true},
		{"http://172.32.0.1", false},
		{"http://192.168.1.10", true},
		{"http://169.254.169.254/latest/meta-data", true},
		{"http://[::1]:8080", true},
		{"http://[fd00::1]", true},
		{"http://[fe80::1]", true},
		{"http://0.0.0.0", true},
		{"http://0.1.2.3", true},
		{"http://100.64.0.1", true},
		{"http://100.127.255.254", true},
		{"http://100.128.0.1", false},
		{"http://[::ffff:169.254.169.254]", true},
		{"https://8.8.8.8/hook", false},
		{"https://hooks.example.com/approve", false},
		{"https://internal.example.com/approve", true},
	}
	for _, tc := range cases {
		got, err := IsLocalNetworkURL(context.Background(), resolver, tc.url)
		require.NoError(t, err, tc.url)
		assert.Equal(t, tc.want, got, tc.url)
	}
}

func TestIsLocalNetworkURLErrors(t *testing.T) {
	_, err := IsLocalNetworkURL(context.Background(), fakeResolver{}, "https://unknown.example.com")
	assert.Error(t, err)

	_, err = IsLocalNetworkURL(context.Background(), fakeResolver{}, "not a url")
	assert.Error(t, err)
}

func TestIsValidFingerprint(t *testing.T) {
	assert.True(t, IsValidFingerprint(strings.Repeat("ab", 32)))
	assert.True(t, IsValidFingerprint(strings.Repeat("AB", 32)))
	assert.False(t, IsValidFingerprint(strings.Repeat("ab", 31)))
	assert.False(t, IsValidFingerprint(strings.Repeat("zz", 32)))
	assert.False(t, IsValidFingerprint(""))
}

func TestRetry(t *testing.T) {
	logger := logging.NewNop()

	calls := 0
	err := Retry(context.Background(), logger, 3, time.Millisecond, func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = Retry(context.Background(), logger, 3, time.Millisecond, func() error {
		calls++
		return errors.New("permanent")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "permanent")
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Retry(ctx, logging.NewNop(), 5, time.Hour, func() error {
		calls++
		return errors.New("down")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
