package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/mgeaghan/cpg-chip/internal/log"
)

const (
	defaultPollInterval = 30 * time.Second
	maxResponseBytes    = 2 << 20
)

var (
	// ErrUnauthorized is returned when the service rejects the bearer token (HTTP 401).
	ErrUnauthorized = errors.New("batch service request unauthorized")
	// ErrForbidden is returned when the token may not act on the billing project (HTTP 403).
	ErrForbidden = errors.New("batch service request forbidden")
	// ErrNotFound is returned when the batch or endpoint does not exist (HTTP 404).
	ErrNotFound = errors.New("batch service resource not found")
	// ErrUnexpectedAPI wraps a success response whose body cannot be decoded.
	// Other non-success statuses are reported as *APIError.
	ErrUnexpectedAPI = errors.New("batch service unexpected response")
	// ErrNoToken wraps failures to find a token in the tokens file.
	ErrNoToken = errors.New("no batch service token")
)

// APIError carries a non-success response from the batch service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("batch service api error (status=%d)", e.StatusCode)
	}
	return fmt.Sprintf("batch service api error (status=%d): %s", e.StatusCode, body)
}

// ServiceOptions configures a ServiceBackend.
type ServiceOptions struct {
	URL        string
	Namespace  string
	TokensFile string
	// Token overrides the tokens file.
	Token string
	// HTTPClient is the base transport; the bearer token is layered on top.
	HTTPClient *http.Client
}

// ServiceBackend submits batches to the batch service REST API.
type ServiceBackend struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewServiceBackend builds an authenticated client for the batch service.
func NewServiceBackend(ctx context.Context, opts ServiceOptions) (*ServiceBackend, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.URL), "/")
	if baseURL == "" {
		return nil, errors.New("batch service url is required")
	}

	token := strings.TrimSpace(opts.Token)
	if token == "" {
		var err error
		token, err = ReadToken(opts.TokensFile, opts.Namespace)
		if err != nil {
			return nil, err
		}
	}

	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: 30 * time.Second}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
	client.Timeout = base.Timeout

	return &ServiceBackend{
		baseURL: baseURL,
		http:    client,
		logger:  log.WithComponent("batch"),
	}, nil
}

// DefaultTokensFile is the batch service tokens file in the user's home directory.
func DefaultTokensFile() string {
	if p := os.Getenv("HAIL_TOKENS_FILE"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".hail", "tokens.json")
	}
	return filepath.Join(home, ".hail", "tokens.json")
}

// ReadToken reads the bearer token for namespace from a tokens file
// shaped like {"default": "<token>"}.
func ReadToken(path, namespace string) (string, error) {
	if path == "" {
		path = DefaultTokensFile()
	}
	if namespace == "" {
		namespace = "default"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: read tokens file %s: %v", ErrNoToken, path, err)
	}
	var tokens map[string]string
	if err := json.Unmarshal(data, &tokens); err != nil {
		return "", fmt.Errorf("%w: parse tokens file %s: %v", ErrNoToken, path, err)
	}
	token := strings.TrimSpace(tokens[namespace])
	if token == "" {
		return "", fmt.Errorf("%w: namespace %q missing from %s", ErrNoToken, namespace, path)
	}
	return token, nil
}

type createBatchRequest struct {
	BillingProject string            `json:"billing_project"`
	Token          string            `json:"token"`
	NJobs          int               `json:"n_jobs"`
	Attributes     map[string]string `json:"attributes,omitempty"`
}

type createBatchResponse struct {
	ID int64 `json:"id"`
}

type batchStatus struct {
	ID       int64  `json:"id"`
	State    string `json:"state"`
	Complete bool   `json:"complete"`
}

// Submit creates the batch, uploads its jobs and closes it.
// Without opts.Wait it returns once the service has accepted the batch.
func (s *ServiceBackend) Submit(ctx context.Context, b *Batch, opts SubmitOptions) (*Submission, error) {
	spec, err := b.Spec()
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("batch_token", b.Token)

	var created createBatchResponse
	err = s.doJSON(ctx, http.MethodPost, "/api/v1alpha/batches/create", createBatchRequest{
		BillingProject: spec.BillingProject,
		Token:          spec.Token,
		NJobs:          spec.NJobs,
		Attributes:     spec.Attributes,
	}, &created)
	if err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}
	logger = logger.With("batch_id", created.ID)
	logger.Debug("batch created", "n_jobs", spec.NJobs)

	jobsPath := fmt.Sprintf("/api/v1alpha/batches/%d/jobs/create", created.ID)
	if err := s.doJSON(ctx, http.MethodPost, jobsPath, spec.Jobs, nil); err != nil {
		return nil, fmt.Errorf("create jobs for batch %d: %w", created.ID, err)
	}

	closePath := fmt.Sprintf("/api/v1alpha/batches/%d/close", created.ID)
	if err := s.doJSON(ctx, http.MethodPatch, closePath, nil, nil); err != nil {
		return nil, fmt.Errorf("close batch %d: %w", created.ID, err)
	}

	sub := &Submission{
		ID:    created.ID,
		Token: b.Token,
		URL:   fmt.Sprintf("%s/batches/%d", s.baseURL, created.ID),
		State: "running",
	}
	logger.Info("batch submitted", "url", sub.URL, "wait", opts.Wait)

	if !opts.Wait {
		return sub, nil
	}

	status, err := s.wait(ctx, created.ID, opts.PollInterval)
	if err != nil {
		return sub, err
	}
	sub.State = status.State
	logger.Info("batch complete", "state", status.State)
	return sub, nil
}

func (s *ServiceBackend) wait(ctx context.Context, id int64, interval time.Duration) (*batchStatus, error) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	path := fmt.Sprintf("/api/v1alpha/batches/%d", id)
	for {
		var status batchStatus
		if err := s.doJSON(ctx, http.MethodGet, path, nil, &status); err != nil {
			return nil, fmt.Errorf("poll batch %d: %w", id, err)
		}
		if status.Complete {
			return &status, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *ServiceBackend) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrUnexpectedAPI, err)
		}
		return nil
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
}
