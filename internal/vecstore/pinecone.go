package vecstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"driftmap/internal/config"
	"driftmap/internal/derrors"
)

const (
	pineconeTimeout    = 30 * time.Second
	pineconeMaxRetries = 3
	pineconeBaseDelay  = 500 * time.Millisecond
	pineconeMaxDelay   = 5 * time.Second
	pineconeMaxBody    = 4 << 20

	// The service caps upsert payloads; larger batches are split.
	upsertBatchSize = 100
)

// pineconeStore talks to a Pinecone serverless index over its data-plane
// REST API. Each repository gets its own namespace.
type pineconeStore struct {
	host      string
	apiKey    string
	namespace string
	client    *http.Client
	logger    *slog.Logger
}

// NewPineconeStore builds the managed-index backend. apiKey and indexHost
// are required; their absence is a configuration error, not a degradation.
func NewPineconeStore(cfg config.VectorConfig, logger *slog.Logger) (Store, error) {
	if cfg.APIKey == "" {
		return nil, derrors.New(derrors.CredentialsMissing, "pinecone provider selected but vector.apiKey is empty")
	}
	if cfg.IndexHost == "" {
		return nil, derrors.New(derrors.ConfigInvalid, "pinecone provider selected but vector.indexHost is empty")
	}

	host := cfg.IndexHost
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return &pineconeStore{
		host:      strings.TrimRight(host, "/"),
		apiKey:    cfg.APIKey,
		namespace: cfg.Namespace,
		client:    &http.Client{Timeout: pineconeTimeout},
		logger:    logger,
	}, nil
}

// APIError is an error response from the index service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pinecone error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// IsNotFound reports a 404 response.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsUnauthorized reports a 401 response.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// IsRateLimited reports a 429 response.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

type pineconeVector struct {
	ID       string            `json:"id"`
	Values   []float32         `json:"values"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type pineconeMatch struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// doRequest performs one HTTP exchange with bounded retries. Client errors
// (4xx) are returned to the caller immediately; network failures and server
// errors (5xx) retry with exponential backoff.
func (s *pineconeStore) doRequest(ctx context.Context, method, path string, body []byte, query url.Values) (*http.Response, error) {
	u := s.host + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= pineconeMaxRetries; attempt++ {
		if attempt > 0 {
			delay := pineconeBaseDelay * time.Duration(1<<uint(attempt-1))
			if delay > pineconeMaxDelay {
				delay = pineconeMaxDelay
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			s.logger.Debug("retrying vector store request",
				"attempt", attempt+1, "method", method, "path", path)
		}

		var reader io.Reader
		if body != nil {
			reader = strings.NewReader(string(body))
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Api-Key", s.apiKey)
		req.Header.Set("User-Agent", "driftmap")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return resp, nil
		}
		if resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("request failed after %d retries: %w", pineconeMaxRetries, lastErr)
}

func (s *pineconeStore) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	resp, err := s.doRequest(ctx, http.MethodPost, path, body, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, pineconeMaxBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, parseAPIError(resp.StatusCode, data)
	}
	return data, nil
}

func (s *pineconeStore) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	resp, err := s.doRequest(ctx, http.MethodGet, path, nil, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, pineconeMaxBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, parseAPIError(resp.StatusCode, data)
	}
	return data, nil
}

func parseAPIError(statusCode int, body []byte) error {
	var resp struct {
		Code    json.Number `json:"code"`
		Message string      `json:"message"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return &APIError{StatusCode: statusCode, Code: "unknown_error", Message: string(body)}
	}
	if resp.Error != nil {
		return &APIError{StatusCode: statusCode, Code: resp.Error.Code, Message: resp.Error.Message}
	}
	code := resp.Code.String()
	if code == "" {
		code = "unknown_error"
	}
	message := resp.Message
	if message == "" {
		message = fmt.Sprintf("HTTP %d", statusCode)
	}
	return &APIError{StatusCode: statusCode, Code: code, Message: message}
}

// Init verifies the index is reachable with the configured credentials.
func (s *pineconeStore) Init(ctx context.Context) error {
	if _, err := s.describeStats(ctx); err != nil {
		return fmt.Errorf("pinecone index unreachable: %w", err)
	}
	return nil
}

func (s *pineconeStore) Upsert(ctx context.Context, records []Record) error {
	for start := 0; start < len(records); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(records) {
			end = len(records)
		}

		vectors := make([]pineconeVector, 0, end-start)
		for _, r := range records[start:end] {
			vectors = append(vectors, pineconeVector{
				ID:       r.ID,
				Values:   r.Vector,
				Metadata: metadataToMap(r.Meta),
			})
		}

		payload := map[string]any{
			"vectors":   vectors,
			"namespace": s.namespace,
		}
		if _, err := s.post(ctx, "/vectors/upsert", payload); err != nil {
			return fmt.Errorf("upsert batch %d-%d: %w", start, end, err)
		}
	}
	return nil
}

func (s *pineconeStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	payload := map[string]any{
		"ids":       ids,
		"namespace": s.namespace,
	}
	_, err := s.post(ctx, "/vectors/delete", payload)
	return err
}

func (s *pineconeStore) Query(ctx context.Context, vector []float32, topK int, opts QueryOpts) ([]Match, error) {
	if opts.AllNamespaces {
		return s.queryAll(ctx, vector, topK)
	}
	namespace := opts.Namespace
	if namespace == "" {
		namespace = s.namespace
	}
	return s.queryNamespace(ctx, vector, topK, namespace)
}

func (s *pineconeStore) queryNamespace(ctx context.Context, vector []float32, topK int, namespace string) ([]Match, error) {
	payload := map[string]any{
		"vector":          vector,
		"topK":            topK,
		"namespace":       namespace,
		"includeMetadata": true,
	}
	body, err := s.post(ctx, "/query", payload)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Matches []pineconeMatch `json:"matches"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse query response: %w", err)
	}

	matches := make([]Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		matches = append(matches, Match{
			ID:    m.ID,
			Score: m.Score,
			Meta:  metadataFromMap(m.Metadata, namespace),
		})
	}
	return matches, nil
}

// queryAll fans the query out to every namespace the index reports and
// merges the results back down to topK.
func (s *pineconeStore) queryAll(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	namespaces, err := s.describeStats(ctx)
	if err != nil {
		return nil, err
	}

	var merged []Match
	for _, namespace := range namespaces {
		matches, err := s.queryNamespace(ctx, vector, topK, namespace)
		if err != nil {
			return nil, fmt.Errorf("namespace %q: %w", namespace, err)
		}
		merged = append(merged, matches...)
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].ID < merged[j].ID
	})
	if topK > 0 && len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

func (s *pineconeStore) Fetch(ctx context.Context, ids []string) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := url.Values{}
	for _, id := range ids {
		query.Add("ids", id)
	}
	query.Set("namespace", s.namespace)

	body, err := s.get(ctx, "/vectors/fetch", query)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Vectors map[string]pineconeVector `json:"vectors"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse fetch response: %w", err)
	}

	records := make([]Record, 0, len(resp.Vectors))
	for _, id := range ids {
		v, ok := resp.Vectors[id]
		if !ok {
			continue
		}
		meta := metadataFromMap(v.Metadata, s.namespace)
		records = append(records, Record{ID: v.ID, Vector: v.Values, Meta: *meta})
	}
	return records, nil
}

// Prune is a documented no-op: the data-plane API has no cheap way to
// enumerate IDs in a namespace. Deleted files are removed through Delete
// when the engine sees them disappear.
func (s *pineconeStore) Prune(context.Context, map[string]bool) (int, error) {
	return 0, nil
}

func (s *pineconeStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *pineconeStore) describeStats(ctx context.Context) ([]string, error) {
	body, err := s.post(ctx, "/describe_index_stats", map[string]any{})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Namespaces map[string]struct {
			VectorCount int `json:"vectorCount"`
		} `json:"namespaces"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse index stats: %w", err)
	}

	namespaces := make([]string, 0, len(resp.Namespaces))
	for namespace := range resp.Namespaces {
		namespaces = append(namespaces, namespace)
	}
	sort.Strings(namespaces)
	return namespaces, nil
}

func metadataToMap(m Metadata) map[string]string {
	out := map[string]string{
		"hash":    m.Hash,
		"modelId": m.ModelID,
	}
	if m.Language != "" {
		out["language"] = m.Language
	}
	if !m.UpdatedAt.IsZero() {
		out["updatedAt"] = m.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func metadataFromMap(m map[string]string, namespace string) *Metadata {
	meta := &Metadata{
		Hash:      m["hash"],
		ModelID:   m["modelId"],
		Namespace: namespace,
		Language:  m["language"],
	}
	if raw, ok := m["updatedAt"]; ok {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			meta.UpdatedAt = ts
		}
	}
	return meta
}
