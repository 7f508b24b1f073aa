package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := runCmd(t, "version")
	require.NoError(t, err)
	require.Equal(t, "aliasctl version "+version+"\n", out)
}

func TestAliasRequiresToken(t *testing.T) {
	t.Setenv("ALIASD_ACCESS_TOKEN", "")
	_, err := runCmd(t, "alias", "https://example.com")
	require.ErrorContains(t, err, "access token is required")
}

func TestAliasRetriesAndPrints(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/alias", r.URL.Path)
		require.Equal(t, "Bearer secret-token-123456", r.Header.Get("Authorization"))

		var body map[string]string
		//nolint:errcheck
		json.NewDecoder(r.Body).Decode(&body)

		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			//nolint:errcheck
			w.Write([]byte(`{"error":"context_invalidated","message":"gone"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		//nolint:errcheck
		json.NewEncoder(w).Encode(map[string]any{
			"provider": body["provider"],
			"address":  body["localPart"] + "@" + body["domain"],
			"mode":     "server",
			"created":  true,
		})
	}))
	defer srv.Close()

	out, err := runCmd(t, "alias", "https://shop.example.com",
		"--addr", srv.URL, "--token", "secret-token-123456",
		"--retry-delay", "1ms", "--provider", "addy",
		"--local-part", "shop", "--domain", "mine.example")
	require.NoError(t, err)
	require.Equal(t, "shop@mine.example\n", out)
	require.Equal(t, int32(2), calls.Load())
}

func TestPreviewJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		//nolint:errcheck
		w.Write([]byte(`{"provider":"addy","domain":"anonaddy.me","mode":"server","catchAll":false,"caution":false,"localPart":"abc","address":"","display":"Alias will be created by the provider","placeholder":true}`))
	}))
	defer srv.Close()

	out, err := runCmd(t, "preview", "--addr", srv.URL, "--token", "secret-token-123456", "--json")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, true, got["placeholder"])
	require.Equal(t, "anonaddy.me", got["domain"])
}

func TestAliasSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		//nolint:errcheck
		w.Write([]byte(`{"error":"alias_creation_failed","message":"Addy API token was rejected"}`))
	}))
	defer srv.Close()

	_, err := runCmd(t, "alias", "--addr", srv.URL, "--token", "secret-token-123456", "--retry-delay", "1ms")
	require.ErrorContains(t, err, "Addy API token was rejected")
}
