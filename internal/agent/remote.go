package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dusk-indust/inquest/internal/ctxstore"
)

// Wire types for the remote investigation protocol. A snapshot travels as
// its entry list plus version metadata and is rehydrated on the far side.

type runRequest struct {
	SnapshotVersion int              `json:"snapshotVersion"`
	SnapshotPhase   string           `json:"snapshotPhase"`
	Entries         []ctxstore.Entry `json:"entries"`
}

type runResponse struct {
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

type cardResponse struct {
	Kind string `json:"kind"`
}

// Compile-time interface check.
var _ Adapter = (*Remote)(nil)

// Remote is an Adapter that drives an out-of-process investigator over
// HTTP/JSON. It lets the orchestrator mix in-process adapters with
// investigators owned by other teams or written in other languages.
type Remote struct {
	endpoint string
	kind     string
	http     *http.Client
}

// RemoteOption configures a Remote adapter.
type RemoteOption func(*Remote)

// WithHTTPClient replaces the underlying *http.Client entirely.
func WithHTTPClient(hc *http.Client) RemoteOption {
	return func(r *Remote) { r.http = hc }
}

// NewRemote creates a Remote adapter for the investigator hosted at endpoint.
// kind labels the findings' source; it should match the host's card.
func NewRemote(endpoint, kind string, opts ...RemoteOption) *Remote {
	r := &Remote{
		endpoint: strings.TrimRight(endpoint, "/"),
		kind:     kind,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Kind returns the remote investigator's kind.
func (r *Remote) Kind() string { return r.kind }

// Run posts the snapshot to the remote host and decodes the result. The
// caller's context carries the task timeout; a deadline hit surfaces as a
// request error and is handled by the scheduler's retry/degrade policy.
func (r *Remote) Run(ctx context.Context, snap *ctxstore.Snapshot) (*Result, error) {
	payload := runRequest{
		SnapshotVersion: snap.Version(),
		SnapshotPhase:   snap.Phase(),
		Entries:         snap.Entries(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("agent: marshal run request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/run", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("agent: build run request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent: call %s: %w", r.endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("agent: read response from %s: %w", r.endpoint, err)
	}

	var decoded runResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("agent: decode response from %s: %w", r.endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		if decoded.Error != "" {
			return nil, fmt.Errorf("agent: %s: %s", r.endpoint, decoded.Error)
		}
		return nil, fmt.Errorf("agent: %s: unexpected status %d", r.endpoint, resp.StatusCode)
	}
	if decoded.Result == nil {
		return nil, fmt.Errorf("agent: %s: empty result", r.endpoint)
	}
	return decoded.Result, nil
}

// Discover fetches the investigator card from a host base URL.
func Discover(ctx context.Context, hc *http.Client, baseURL string) (string, error) {
	if hc == nil {
		hc = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/card", nil)
	if err != nil {
		return "", fmt.Errorf("agent: build card request: %w", err)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("agent: discover %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("agent: discover %s: unexpected status %d", baseURL, resp.StatusCode)
	}
	var card cardResponse
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return "", fmt.Errorf("agent: decode card from %s: %w", baseURL, err)
	}
	return card.Kind, nil
}
