package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"propsync/internal/app/client/config"
	"propsync/internal/domain/sync"
	"propsync/internal/utils/retry"

	"golang.org/x/exp/slog"
)

// APIError: ответ сервера с кодом ошибки
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Retryable сообщает, имеет ли смысл повторить запрос
func (e *APIError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// transportError: запрос не дошел до сервера или ответ не прочитан
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

type httpClient struct {
	client    *http.Client
	log       *slog.Logger
	baseURL   string
	token     string
	userAgent string
	policy    retry.Policy
}

func NewHTTPClient(cfg *config.Config, log *slog.Logger) *httpClient {
	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConnsPerHost: 10,
		},
	}

	policy := retry.Default()
	policy.MaxAttempts = cfg.RetryAttempts

	return &httpClient{
		client:    client,
		log:       log.With("component", "http_client"),
		baseURL:   cfg.BaseURL(),
		token:     cfg.APIToken,
		userAgent: "Propsync-Client/1.0",
		policy:    policy,
	}
}

// HealthCheck проверяет доступность сервера
func (h *httpClient) HealthCheck(ctx context.Context) error {
	return h.call(ctx, http.MethodGet, "/api/v1/health", nil, nil)
}

func (h *httpClient) Delta(ctx context.Context, req sync.DeltaSyncRequest) (*sync.DeltaSyncResponse, error) {
	var resp sync.DeltaSyncResponse
	if err := h.call(ctx, http.MethodPost, "/api/sync/delta", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (h *httpClient) Full(ctx context.Context, req sync.FullSyncRequest) (*sync.FullSyncResponse, error) {
	var resp sync.FullSyncResponse
	if err := h.call(ctx, http.MethodPost, "/api/sync/full", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (h *httpClient) Batch(ctx context.Context, req sync.BatchSyncRequest) (*sync.BatchSyncResponse, error) {
	var resp sync.BatchSyncResponse
	if err := h.call(ctx, http.MethodPost, "/api/sync/batch", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (h *httpClient) Resolve(ctx context.Context, req sync.ConflictResolutionRequest) (*sync.ConflictResolutionResponse, error) {
	var resp sync.ConflictResolutionResponse
	if err := h.call(ctx, http.MethodPost, "/api/sync/resolve-conflicts", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (h *httpClient) Status(ctx context.Context, deviceID string) (*sync.SyncStatus, error) {
	var resp sync.SyncStatus
	path := "/api/sync/status?" + url.Values{"device_id": {deviceID}}.Encode()
	if err := h.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (h *httpClient) Logs(ctx context.Context, req sync.LogsRequest) (*sync.LogsResponse, error) {
	q := url.Values{}
	if req.DeviceID != "" {
		q.Set("device_id", req.DeviceID)
	}
	if req.Page > 0 {
		q.Set("page", strconv.Itoa(req.Page))
	}
	if req.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(req.PageSize))
	}

	var resp sync.LogsResponse
	if err := h.call(ctx, http.MethodGet, "/api/sync/logs?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (h *httpClient) Metrics(ctx context.Context, deviceID string) (*sync.SyncMetrics, error) {
	var resp sync.SyncMetrics
	if err := h.call(ctx, http.MethodGet, "/api/sync/metrics/"+url.PathEscape(deviceID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// call выполняет запрос с повторами при сетевых ошибках, 5xx и 429
func (h *httpClient) call(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		payload = data
	}

	attempt := 0
	return h.policy.Do(ctx, func(ctx context.Context) error {
		attempt++
		err := h.do(ctx, method, path, payload, out)
		if err != nil && retryable(err) {
			h.log.Warn("request failed", "method", method, "path", path, "attempt", attempt, "error", err)
		}
		return err
	}, retryable)
}

func (h *httpClient) do(ctx context.Context, method, path string, payload []byte, out any) error {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	h.log.Debug("sending request", "method", method, "url", req.URL.String())

	resp, err := h.client.Do(req)
	if err != nil {
		return &transportError{err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &transportError{err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data, resp.Status)}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func retryable(err error) bool {
	var tErr *transportError
	if errors.As(err, &tErr) {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}

// errorMessage достает текст из ответа huma (detail) или middleware (error)
func errorMessage(data []byte, fallback string) string {
	var body struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
		Errors []struct {
			Message  string `json:"message"`
			Location string `json:"location"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return fallback
	}

	msg := body.Detail
	if msg == "" {
		msg = body.Error
	}
	for _, e := range body.Errors {
		msg += fmt.Sprintf("; %s: %s", e.Location, e.Message)
	}
	if msg == "" {
		return fallback
	}
	return msg
}
