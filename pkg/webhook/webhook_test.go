package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webpush-service/internal/utils"
)

func TestSendPostsJSON(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := New(Options{Timeout: time.Second}).Send(context.Background(), srv.URL, map[string]string{"state": "approved"})
	require.NoError(t, err)
	assert.Equal(t, "approved", got["state"])
}

func TestSendNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(Options{Timeout: time.Second}).Send(context.Background(), srv.URL, struct{}{})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

func TestSendNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := New(Options{Timeout: time.Second}).Send(context.Background(), url, struct{}{})
	assert.Error(t, err)
}

func TestSendDoesNotFollowRedirectsWhenGuarded(t *testing.T) {
	var internalHit atomic.Bool
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		internalHit.Store(true)
	}))
	defer internal.Close()
	public := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, internal.URL+"/latest/meta-data", http.StatusTemporaryRedirect)
	}))
	defer public.Close()

	// Both servers listen on loopback, so nothing is blocked at dial time here.
	c := New(Options{Timeout: time.Second, Blocked: func(netip.Addr) bool { return false }})
	err := c.Send(context.Background(), public.URL, struct{}{})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTemporaryRedirect, statusErr.StatusCode)
	assert.False(t, internalHit.Load())
}

func TestSendFollowsRedirectsWhenUnguarded(t *testing.T) {
	var hit atomic.Bool
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hit.Store(true)
	}))
	defer target.Close()
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusTemporaryRedirect)
	}))
	defer origin.Close()

	err := New(Options{Timeout: time.Second}).Send(context.Background(), origin.URL, struct{}{})
	require.NoError(t, err)
	assert.True(t, hit.Load())
}

func TestSendBlocksLocalAddressAtDial(t *testing.T) {
	var hit atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hit.Store(true)
	}))
	defer srv.Close()

	c := New(Options{Timeout: time.Second, Blocked: utils.IsLocalAddr})
	err := c.Send(context.Background(), srv.URL, struct{}{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlockedAddress)
	assert.False(t, hit.Load())
}

func TestDialGuard(t *testing.T) {
	guard := dialGuard(utils.IsLocalAddr)

	tests := map[string]bool{
		"93.184.216.34:443":          true,
		"127.0.0.1:80":               false,
		"169.254.169.254:80":         false,
		"10.1.2.3:8080":              false,
		"100.64.0.1:80":              false,
		"0.0.0.0:80":                 false,
		"[::1]:443":                  false,
		"[::ffff:127.0.0.1]:80":      false,
		"[2606:4700::6810:84e5]:443": true,
		"not-an-address":             false,
	}
	for address, allowed := range tests {
		err := guard("tcp", address, nil)
		if allowed {
			assert.NoError(t, err, address)
		} else {
			assert.ErrorIs(t, err, ErrBlockedAddress, address)
		}
	}
}
