package addy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sipico/alias-relay/internal/testutil/mockaddy"
)

func TestNormalizeBaseURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"https://app.addy.io", "https://app.addy.io/api/v1"},
		{"https://app.addy.io/", "https://app.addy.io/api/v1"},
		{"https://app.addy.io/api", "https://app.addy.io/api/v1"},
		{"https://app.addy.io/api/v1", "https://app.addy.io/api/v1"},
		{"https://app.addy.io/api/v1/", "https://app.addy.io/api/v1"},
		{"  https://mail.example.org  ", "https://mail.example.org/api/v1"},
		{"", DefaultBaseURL},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeBaseURL(tt.in); got != tt.want {
				t.Errorf("NormalizeBaseURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestClientSendsAddyHeaders(t *testing.T) {
	t.Parallel()

	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		//nolint:errcheck
		w.Write([]byte(`{"data":{"id":"1","username":"jane"}}`))
	}))
	defer srv.Close()

	c := NewClient("tok", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()), WithRateLimit(0))
	details, err := c.AccountDetails(context.Background())
	if err != nil {
		t.Fatalf("AccountDetails() error = %v", err)
	}
	if details.Username != "jane" {
		t.Errorf("username = %q, want jane", details.Username)
	}
	if got.Get("Authorization") != "Bearer tok" {
		t.Errorf("Authorization = %q", got.Get("Authorization"))
	}
	if got.Get("X-Requested-With") != "XMLHttpRequest" {
		t.Errorf("X-Requested-With = %q", got.Get("X-Requested-With"))
	}
	if got.Get("Accept") != "application/json" {
		t.Errorf("Accept = %q", got.Get("Accept"))
	}
}

func TestClientFlatResponseFallback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		//nolint:errcheck
		w.Write([]byte(`[{"id":"u1","username":"flat","catch_all":false}]`))
	}))
	defer srv.Close()

	c := NewClient("tok", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	usernames, err := c.Usernames(context.Background())
	if err != nil {
		t.Fatalf("Usernames() error = %v", err)
	}
	if len(usernames) != 1 || usernames[0].Username != "flat" {
		t.Fatalf("unexpected usernames: %+v", usernames)
	}
	if !usernames[0].CatchAll.Set || usernames[0].CatchAll.Value {
		t.Errorf("catch_all = %+v, want set false", usernames[0].CatchAll)
	}
}

func TestClientErrors(t *testing.T) {
	t.Parallel()

	s := mockaddy.New()
	defer s.Close()

	t.Run("unauthorized", func(t *testing.T) {
		c := NewClient("bad", WithBaseURL(s.URL()), WithHTTPClient(s.Client()))
		_, err := c.AccountDetails(context.Background())
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("server error", func(t *testing.T) {
		s.SetNextError("/domains", http.StatusInternalServerError, "database down", 1)
		c := NewClient("test-token", WithBaseURL(s.URL()), WithHTTPClient(s.Client()))
		_, err := c.Domains(context.Background())
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %v", err)
		}
		if apiErr.StatusCode != http.StatusInternalServerError || apiErr.Message != "database down" {
			t.Errorf("unexpected error: %+v", apiErr)
		}
	})

	t.Run("missing domain", func(t *testing.T) {
		c := NewClient("test-token", WithBaseURL(s.URL()), WithHTTPClient(s.Client()))
		if _, err := c.CreateAlias(context.Background(), &CreateAliasRequest{}); err == nil {
			t.Error("expected error for missing domain")
		}
	})
}

func TestParseError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    error
		wantDetail string
	}{
		{"401", http.StatusUnauthorized, `{}`, ErrUnauthorized, ""},
		{"404", http.StatusNotFound, `{}`, ErrNotFound, ""},
		{
			name:       "laravel validation",
			status:     http.StatusUnprocessableEntity,
			body:       `{"message":"The given data was invalid.","errors":{"local_part":["The local part has already been taken."]}}`,
			wantDetail: "the given data was invalid. the local part has already been taken.",
		},
		{
			name:       "flat error list",
			status:     http.StatusUnprocessableEntity,
			body:       `{"error":"Invalid","errors":["Catch-All is enabled"]}`,
			wantDetail: "invalid catch-all is enabled",
		},
		{
			name:       "non json",
			status:     http.StatusBadGateway,
			body:       "upstream gone",
			wantDetail: "upstream gone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := parseError(tt.status, []byte(tt.body))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %T", err)
			}
			if apiErr.Detail() != tt.wantDetail {
				t.Errorf("Detail() = %q, want %q", apiErr.Detail(), tt.wantDetail)
			}
		})
	}
}

func TestFlagIgnoresNonBoolean(t *testing.T) {
	t.Parallel()

	var u Username
	if err := decodeData([]byte(`{"data":{"username":"x","catch_all":"yes"}}`), &u); err != nil {
		t.Fatalf("decodeData() error = %v", err)
	}
	if u.CatchAll.Set {
		t.Error("string catch_all must not count as a boolean")
	}
	if !u.CatchAll.Or(true) {
		t.Error("absent flag should take the default")
	}
}
