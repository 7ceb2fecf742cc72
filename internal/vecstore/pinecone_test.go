package vecstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"driftmap/internal/config"
	"driftmap/internal/derrors"
	"driftmap/internal/logging"
)

func pineconeFromServer(t *testing.T, srv *httptest.Server, namespace string) Store {
	t.Helper()
	store, err := NewPineconeStore(config.VectorConfig{
		Provider:  ProviderPinecone,
		APIKey:    "test-key",
		IndexHost: srv.URL,
		Namespace: namespace,
	}, logging.Discard())
	if err != nil {
		t.Fatalf("NewPineconeStore failed: %v", err)
	}
	return store
}

func TestPineconeMissingCredentials(t *testing.T) {
	_, err := NewPineconeStore(config.VectorConfig{IndexHost: "index.example.com"}, logging.Discard())
	if derrors.CodeOf(err) != derrors.CredentialsMissing {
		t.Errorf("missing apiKey error code = %v, want CREDENTIALS_MISSING", derrors.CodeOf(err))
	}

	_, err = NewPineconeStore(config.VectorConfig{APIKey: "k"}, logging.Discard())
	if derrors.CodeOf(err) != derrors.ConfigInvalid {
		t.Errorf("missing indexHost error code = %v, want CONFIG_INVALID", derrors.CodeOf(err))
	}
	if !derrors.IsConfig(err) {
		t.Error("construction error should be a config error")
	}
}

func TestPineconeUpsertBatches(t *testing.T) {
	var mu sync.Mutex
	var batchSizes []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vectors/upsert" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Api-Key"); got != "test-key" {
			t.Errorf("Api-Key header = %q", got)
		}
		var payload struct {
			Vectors   []pineconeVector `json:"vectors"`
			Namespace string           `json:"namespace"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("failed to decode upsert body: %v", err)
		}
		if payload.Namespace != "repo-a" {
			t.Errorf("namespace = %q, want repo-a", payload.Namespace)
		}
		mu.Lock()
		batchSizes = append(batchSizes, len(payload.Vectors))
		mu.Unlock()
		_, _ = w.Write([]byte(`{"upsertedCount":1}`))
	}))
	defer srv.Close()

	store := pineconeFromServer(t, srv, "repo-a")
	records := make([]Record, 250)
	for i := range records {
		records[i] = Record{ID: fmt.Sprintf("src/f%d.ts", i), Vector: []float32{1, 0}}
	}

	if err := store.Upsert(context.Background(), records); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []int{100, 100, 50}
	if len(batchSizes) != len(want) {
		t.Fatalf("got %d batches %v, want %v", len(batchSizes), batchSizes, want)
	}
	for i := range want {
		if batchSizes[i] != want[i] {
			t.Errorf("batch %d size = %d, want %d", i, batchSizes[i], want[i])
		}
	}
}

func TestPineconeQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var payload struct {
			TopK            int    `json:"topK"`
			Namespace       string `json:"namespace"`
			IncludeMetadata bool   `json:"includeMetadata"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("failed to decode query body: %v", err)
		}
		if payload.TopK != 2 || payload.Namespace != "repo-a" || !payload.IncludeMetadata {
			t.Errorf("query payload = %+v", payload)
		}
		_, _ = w.Write([]byte(`{"matches":[
			{"id":"src/a.ts","score":0.97,"metadata":{"hash":"ha","modelId":"m1"}},
			{"id":"src/b.ts","score":0.71,"metadata":{"hash":"hb","modelId":"m1"}}
		]}`))
	}))
	defer srv.Close()

	store := pineconeFromServer(t, srv, "repo-a")
	matches, err := store.Query(context.Background(), []float32{1, 0}, 2, QueryOpts{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].ID != "src/a.ts" || matches[0].Score != 0.97 {
		t.Errorf("first match = %+v", matches[0])
	}
	if matches[0].Meta == nil || matches[0].Meta.Hash != "ha" || matches[0].Meta.Namespace != "repo-a" {
		t.Errorf("first match metadata = %+v", matches[0].Meta)
	}
}

func TestPineconeQueryAllNamespaces(t *testing.T) {
	var queries atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/describe_index_stats":
			_, _ = w.Write([]byte(`{"namespaces":{"repo-a":{"vectorCount":2},"repo-b":{"vectorCount":1}},"dimension":2}`))
		case "/query":
			queries.Add(1)
			var payload struct {
				Namespace string `json:"namespace"`
			}
			_ = json.NewDecoder(r.Body).Decode(&payload)
			if payload.Namespace == "repo-a" {
				_, _ = w.Write([]byte(`{"matches":[{"id":"a1","score":0.9},{"id":"a2","score":0.4}]}`))
			} else {
				_, _ = w.Write([]byte(`{"matches":[{"id":"b1","score":0.7}]}`))
			}
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	store := pineconeFromServer(t, srv, "repo-a")
	matches, err := store.Query(context.Background(), []float32{1, 0}, 2, QueryOpts{AllNamespaces: true})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if got := queries.Load(); got != 2 {
		t.Errorf("issued %d namespace queries, want 2", got)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want topK=2 after merge", len(matches))
	}
	if matches[0].ID != "a1" || matches[1].ID != "b1" {
		t.Errorf("merged order = %s, %s; want a1, b1", matches[0].ID, matches[1].ID)
	}
}

func TestPineconeClientErrorDoesNotRetry(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":7,"message":"invalid api key"}`))
	}))
	defer srv.Close()

	store := pineconeFromServer(t, srv, "repo-a")
	_, err := store.Query(context.Background(), []float32{1, 0}, 1, QueryOpts{})
	if err == nil {
		t.Fatal("expected error for 401 response")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error %T is not an APIError", err)
	}
	if !apiErr.IsUnauthorized() {
		t.Errorf("APIError = %+v, want unauthorized", apiErr)
	}
	if apiErr.Message != "invalid api key" {
		t.Errorf("message = %q", apiErr.Message)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("client error retried, %d requests", got)
	}
}

func TestPineconeServerErrorRetries(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"matches":[]}`))
	}))
	defer srv.Close()

	store := pineconeFromServer(t, srv, "repo-a")
	_, err := store.Query(context.Background(), []float32{1, 0}, 1, QueryOpts{})
	if err != nil {
		t.Fatalf("Query should succeed after retry: %v", err)
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("made %d requests, want 2 (one failure, one retry)", got)
	}
}

func TestPineconeDelete(t *testing.T) {
	var gotIDs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vectors/delete" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var payload struct {
			IDs       []string `json:"ids"`
			Namespace string   `json:"namespace"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		gotIDs = payload.IDs
		if payload.Namespace != "repo-a" {
			t.Errorf("namespace = %q", payload.Namespace)
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	store := pineconeFromServer(t, srv, "repo-a")
	if err := store.Delete(context.Background(), []string{"src/a.ts", "src/b.ts"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if len(gotIDs) != 2 || gotIDs[0] != "src/a.ts" {
		t.Errorf("deleted ids = %v", gotIDs)
	}
}

func TestPineconeFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vectors/fetch" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query()["ids"]; len(got) != 2 {
			t.Errorf("ids query = %v", got)
		}
		_, _ = w.Write([]byte(`{"vectors":{
			"src/a.ts":{"id":"src/a.ts","values":[1,0],"metadata":{"hash":"ha"}}
		}}`))
	}))
	defer srv.Close()

	store := pineconeFromServer(t, srv, "repo-a")
	records, err := store.Fetch(context.Background(), []string{"src/a.ts", "src/missing.ts"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].ID != "src/a.ts" || records[0].Meta.Hash != "ha" {
		t.Errorf("record = %+v", records[0])
	}
}

func TestPineconePruneIsNoOp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("Prune should not reach the network, got %s", r.URL.Path)
	}))
	defer srv.Close()

	store := pineconeFromServer(t, srv, "repo-a")
	removed, err := store.Prune(context.Background(), map[string]bool{"src/a.ts": true})
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("Prune removed %d, want 0", removed)
	}
}
