package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/jkallio/tourguide/pkg/api"
)

// RemoteClient is the hosted API a widget embed talks to: configuration
// fetch on load, progress push on change.
type RemoteClient interface {
	// FetchConfiguration loads the tour definition and the server's copy
	// of the client's progress.
	FetchConfiguration(ctx context.Context) (*api.Configuration, api.ProgressMap, error)

	// PushProgress uploads the client's progress. Idempotent upsert on
	// the server side.
	PushProgress(ctx context.Context, entries api.ProgressMap) error
}

// HTTPRemote implements RemoteClient against the HTTP boundary exposed by
// internal/server.
type HTTPRemote struct {
	baseURL  string
	apiKey   string
	clientID string
	configID string
	client   *http.Client
	log      *slog.Logger
}

var _ RemoteClient = (*HTTPRemote)(nil)

// NewHTTPRemote creates a RemoteClient for one (client, configuration)
// pair. httpClient may be nil.
func NewHTTPRemote(baseURL, apiKey, clientID, configID string, httpClient *http.Client, log *slog.Logger) *HTTPRemote {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &HTTPRemote{
		baseURL:  baseURL,
		apiKey:   apiKey,
		clientID: clientID,
		configID: configID,
		client:   httpClient,
		log:      log,
	}
}

// configurationResponse is the GET /get-configuration wire shape.
type configurationResponse struct {
	Configuration *api.Configuration `json:"configuration"`
	Progress      api.ProgressMap    `json:"progress,omitempty"`
}

// saveProgressRequest is the POST /save-progress wire shape: one progress
// entry per post, with the API key carried in the body.
type saveProgressRequest struct {
	ClientID        string             `json:"client_id"`
	ConfigurationID string             `json:"configuration_id"`
	StepID          string             `json:"step_id"`
	Status          api.ProgressStatus `json:"status"`
	APIKey          string             `json:"api_key,omitempty"`
	CompletedAt     *time.Time         `json:"completed_at,omitempty"`
	SkippedAt       *time.Time         `json:"skipped_at,omitempty"`
}

func (r *HTTPRemote) FetchConfiguration(ctx context.Context) (*api.Configuration, api.ProgressMap, error) {
	q := url.Values{}
	q.Set("configId", r.configID)
	q.Set("apiKey", r.apiKey)
	q.Set("clientId", r.clientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		r.baseURL+"/get-configuration?"+q.Encode(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", api.ErrConfigFetchFailed, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", api.ErrConfigFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, nil, fmt.Errorf("%w: status %d: %s", api.ErrConfigFetchFailed, resp.StatusCode, body)
	}

	var payload configurationResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, nil, fmt.Errorf("%w: decode: %v", api.ErrConfigFetchFailed, err)
	}
	if payload.Configuration == nil {
		return nil, nil, fmt.Errorf("%w: empty configuration", api.ErrConfigFetchFailed)
	}
	payload.Configuration.SortSteps()
	return payload.Configuration, payload.Progress, nil
}

func (r *HTTPRemote) PushProgress(ctx context.Context, entries api.ProgressMap) error {
	for stepID, entry := range entries {
		if entry.StepID == "" {
			entry.StepID = stepID
		}
		if err := r.pushOne(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

func (r *HTTPRemote) pushOne(ctx context.Context, entry api.ProgressEntry) error {
	body, err := json.Marshal(saveProgressRequest{
		ClientID:        r.clientID,
		ConfigurationID: r.configID,
		StepID:          entry.StepID,
		Status:          entry.Status,
		APIKey:          r.apiKey,
		CompletedAt:     entry.CompletedAt,
		SkippedAt:       entry.SkippedAt,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", api.ErrProgressSyncFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/save-progress", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", api.ErrProgressSyncFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", api.ErrProgressSyncFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%w: step %s: status %d", api.ErrProgressSyncFailed, entry.StepID, resp.StatusCode)
	}
	return nil
}
