package secrets

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, "test-token", "secret")
	require.NoError(t, err)
	return client
}

func TestAdapterCredentials_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/secret/data/adapters/stripe-primary", r.URL.Path)
		fmt.Fprint(w, `{"data":{"data":{"api_key":"sk_live_abc","webhook_secret":"whsec_xyz"}}}`)
	})

	creds, err := client.AdapterCredentials("stripe-primary")
	require.NoError(t, err)
	assert.Equal(t, "sk_live_abc", creds["api_key"])
	assert.Equal(t, "whsec_xyz", creds["webhook_secret"])
}

func TestAdapterCredentials_NotFoundReturnsError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.AdapterCredentials("missing-adapter")
	assert.Error(t, err)
}

func TestAdapterCredentials_UnexpectedShapeReturnsError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"data":"not-a-map"}}`)
	})

	_, err := client.AdapterCredentials("odd-adapter")
	assert.Error(t, err)
}

func TestAdapterCredentials_NonStringValuesAreSkipped(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"data":{"api_key":"sk_live_abc","max_retries":3}}}`)
	})

	creds, err := client.AdapterCredentials("stripe-primary")
	require.NoError(t, err)
	assert.Equal(t, "sk_live_abc", creds["api_key"])
	_, ok := creds["max_retries"]
	assert.False(t, ok)
}
