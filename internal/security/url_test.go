package security

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	v := NewURLValidator()

	tests := []struct {
		name    string
		url     string
		wantErr error
	}{
		{"public https", "https://example.com/page", nil},
		{"public http", "http://example.com", nil},
		{"ftp scheme", "ftp://example.com/file", ErrUnsupportedScheme},
		{"file scheme", "file:///etc/passwd", ErrUnsupportedScheme},
		{"no host", "http://", ErrEmptyHost},
		{"localhost", "http://localhost:8080/admin", ErrBlockedHost},
		{"gcp metadata hostname", "http://metadata.google.internal/computeMetadata", ErrBlockedHost},
		{"loopback ip", "http://127.0.0.1/", ErrBlockedAddress},
		{"mapped loopback", "http://[::ffff:127.0.0.1]/", ErrBlockedAddress},
		{"private 10", "http://10.0.0.5/", ErrBlockedAddress},
		{"private 172", "http://172.16.3.4/", ErrBlockedAddress},
		{"private 192", "http://192.168.1.1/router", ErrBlockedAddress},
		{"aws metadata ip", "http://169.254.169.254/latest/meta-data/", ErrBlockedAddress},
		{"unspecified", "http://0.0.0.0/", ErrBlockedAddress},
		{"ipv6 loopback", "http://[::1]/", ErrBlockedAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.url)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidate_PlainHostnamePassesStaticCheck(t *testing.T) {
	// Hostnames are only fully checked at dial time, after resolution.
	v := NewURLValidator()
	assert.NoError(t, v.Validate("https://internal-service.corp/"))
}

func TestAllowLoopback(t *testing.T) {
	v := NewURLValidator(AllowLoopback())

	assert.NoError(t, v.Validate("http://127.0.0.1:9999/"))
	assert.NoError(t, v.Validate("http://localhost:9999/"))
	assert.ErrorIs(t, v.Validate("http://10.0.0.5/"), ErrBlockedAddress, "private ranges stay blocked")
}

func TestClient_BlocksLoopbackDial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "secret")
	}))
	defer srv.Close()

	client := NewURLValidator().Client(2 * time.Second)
	_, err := client.Get(srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlockedAddress)
}

func TestClient_AllowLoopbackFetches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "hello")
	}))
	defer srv.Close()

	client := NewURLValidator(AllowLoopback()).Client(2 * time.Second)
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestClient_BlocksRedirectToPrivate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://192.168.1.1/router", http.StatusFound)
	}))
	defer srv.Close()

	client := NewURLValidator(AllowLoopback()).Client(2 * time.Second)
	_, err := client.Get(srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlockedAddress)
}
