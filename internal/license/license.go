// Package license validates license keys against the customer-portal API and
// persists the result in the license blob.
package license

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sipico/alias-relay/internal/logging"
	"github.com/sipico/alias-relay/internal/storage"
)

const (
	// DefaultBaseURL is the customer-portal API.
	DefaultBaseURL = "https://api.polar.sh"

	activatePath = "/v1/customer-portal/license-keys/activate"
	validatePath = "/v1/customer-portal/license-keys/validate"

	activationLimitDetail = "activation limit"
)

// Plan is the feature tier unlocked by a license.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// ErrNoKey is returned when validating an empty key.
var ErrNoKey = errors.New("license: key is required")

// Status is the outcome of a validation.
type Status struct {
	Valid bool `json:"valid"`
	Plan  Plan `json:"plan"`
	// Key is masked except for its last four characters.
	Key         string    `json:"key,omitempty"`
	ValidatedAt time.Time `json:"validatedAt,omitempty"`
	// ReadOnly is set when the key could only be validated, not activated,
	// because its activation limit was reached.
	ReadOnly bool   `json:"readOnly,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// record is the persisted license blob.
type record struct {
	Key         string    `json:"key"`
	Valid       bool      `json:"valid"`
	Plan        Plan      `json:"plan"`
	ValidatedAt time.Time `json:"validatedAt"`
	ReadOnly    bool      `json:"readOnly,omitempty"`
}

// Validator talks to the license API.
type Validator struct {
	baseURL        string
	organizationID string
	httpClient     *http.Client
	store          storage.Store
	encryptionKey  []byte
	now            func() time.Time
	logger         *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithBaseURL sets a custom base URL (useful for testing with a mock server).
func WithBaseURL(url string) Option {
	return func(v *Validator) {
		v.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(v *Validator) {
		v.httpClient = client
	}
}

// WithStore persists results in store, encrypting the key when
// encryptionKey is set.
func WithStore(store storage.Store, encryptionKey []byte) Option {
	return func(v *Validator) {
		v.store = store
		v.encryptionKey = encryptionKey
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// NewValidator creates a Validator for the given organization.
func NewValidator(organizationID string, opts ...Option) *Validator {
	v := &Validator{
		baseURL:        DefaultBaseURL,
		organizationID: organizationID,
		now:            time.Now,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.httpClient == nil {
		v.httpClient = &http.Client{
			Timeout:   30 * time.Second,
			Transport: logging.NewTransport(http.DefaultTransport, v.logger, "license"),
		}
	}
	return v
}

// Validate activates key under label. A key whose activation limit is
// reached is checked through the read-only validate endpoint instead.
// Rejections are reported as an invalid Status; only transport and storage
// failures return an error.
func (v *Validator) Validate(ctx context.Context, key, label string) (*Status, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrNoKey
	}

	status, err := v.activate(ctx, key, label)
	if err != nil {
		return nil, err
	}
	status.Key = logging.MaskSecret(key)
	status.ValidatedAt = v.now().UTC()
	if status.Valid {
		status.Plan = PlanPro
	} else {
		status.Plan = PlanFree
	}

	if err := v.save(ctx, key, status); err != nil {
		return nil, err
	}
	v.logger.Info("license validated", "valid", status.Valid, "plan", status.Plan, "read_only", status.ReadOnly)
	return status, nil
}

func (v *Validator) activate(ctx context.Context, key, label string) (*Status, error) {
	code, body, err := v.post(ctx, activatePath, map[string]string{
		"key":             key,
		"organization_id": v.organizationID,
		"label":           label,
	})
	if err != nil {
		return nil, err
	}

	switch {
	case code >= 200 && code < 300:
		var resp struct {
			LicenseKey json.RawMessage `json:"license_key"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("license: failed to decode activation: %w", err)
		}
		return &Status{Valid: isObject(resp.LicenseKey)}, nil
	case code == http.StatusBadRequest || code == http.StatusForbidden:
		detail := parseDetail(body)
		if strings.Contains(strings.ToLower(detail), activationLimitDetail) {
			return v.validate(ctx, key)
		}
		return &Status{Valid: false, Detail: detail}, nil
	default:
		return &Status{Valid: false, Detail: parseDetail(body)}, nil
	}
}

func (v *Validator) validate(ctx context.Context, key string) (*Status, error) {
	code, body, err := v.post(ctx, validatePath, map[string]string{
		"key":             key,
		"organization_id": v.organizationID,
	})
	if err != nil {
		return nil, err
	}
	if code < 200 || code >= 300 {
		return &Status{Valid: false, ReadOnly: true, Detail: parseDetail(body)}, nil
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("license: failed to decode validation: %w", err)
	}
	return &Status{Valid: resp.Status == "granted", ReadOnly: true, Detail: resp.Status}, nil
}

func (v *Validator) post(ctx context.Context, path string, payload any) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("license: request failed: %w", err)
	}
	defer func() {
		//nolint:errcheck
		resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// Current returns the last persisted status, or the free plan.
func (v *Validator) Current(ctx context.Context) (*Status, error) {
	if v.store == nil {
		return &Status{Plan: PlanFree}, nil
	}
	raw, err := v.store.Get(ctx, storage.KeyLicense)
	if errors.Is(err, storage.ErrNotFound) {
		return &Status{Plan: PlanFree}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("license: load: %w", err)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("license: corrupt blob: %w", err)
	}
	key, err := storage.DecryptSecret(rec.Key, v.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("license: key: %w", err)
	}
	plan := rec.Plan
	if plan == "" {
		plan = PlanFree
	}
	return &Status{
		Valid:       rec.Valid,
		Plan:        plan,
		Key:         logging.MaskSecret(key),
		ValidatedAt: rec.ValidatedAt,
		ReadOnly:    rec.ReadOnly,
	}, nil
}

// Clear removes the persisted license.
func (v *Validator) Clear(ctx context.Context) error {
	if v.store == nil {
		return nil
	}
	if err := v.store.Delete(ctx, storage.KeyLicense); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}

func (v *Validator) save(ctx context.Context, key string, status *Status) error {
	if v.store == nil {
		return nil
	}
	stored := key
	if v.encryptionKey != nil {
		enc, err := storage.EncryptSecret(key, v.encryptionKey)
		if err != nil {
			return fmt.Errorf("license: encrypt key: %w", err)
		}
		stored = enc
	}
	data, err := json.Marshal(record{
		Key:         stored,
		Valid:       status.Valid,
		Plan:        status.Plan,
		ValidatedAt: status.ValidatedAt,
		ReadOnly:    status.ReadOnly,
	})
	if err != nil {
		return err
	}
	if err := v.store.Set(ctx, storage.KeyLicense, data); err != nil {
		return fmt.Errorf("license: save: %w", err)
	}
	return nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// parseDetail extracts the "detail" field, which is a string for business
// errors and a list of objects for request validation errors.
func parseDetail(body []byte) string {
	var resp struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}
	var s string
	if err := json.Unmarshal(resp.Detail, &s); err == nil {
		return s
	}
	return string(resp.Detail)
}
