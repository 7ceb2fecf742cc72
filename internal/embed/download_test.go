package embed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"driftmap/internal/logging"
)

type artifactServer struct {
	*httptest.Server
	requests atomic.Int64
}

func newArtifactServer(t *testing.T, modelBody, vocabBody string) *artifactServer {
	t.Helper()
	srv := &artifactServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/model.onnx", func(w http.ResponseWriter, r *http.Request) {
		srv.requests.Add(1)
		_, _ = w.Write([]byte(modelBody))
	})
	mux.HandleFunc("/vocab.txt", func(w http.ResponseWriter, r *http.Request) {
		srv.requests.Add(1)
		_, _ = w.Write([]byte(vocabBody))
	})
	srv.Server = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func (s *artifactServer) spec(id string) ModelSpec {
	return ModelSpec{
		ID:        id,
		Dims:      384,
		MaxSeqLen: 256,
		ModelURL:  s.URL + "/model.onnx",
		VocabURL:  s.URL + "/vocab.txt",
	}
}

func TestEnsureModelDownloadsArtifacts(t *testing.T) {
	srv := newArtifactServer(t, "onnx-bytes", "vocab-lines")
	dir := filepath.Join(t.TempDir(), "all-minilm")
	d := NewDownloader(logging.Discard())

	if err := d.EnsureModel(context.Background(), dir, srv.spec("all-minilm")); err != nil {
		t.Fatalf("EnsureModel failed: %v", err)
	}

	model, err := os.ReadFile(ModelPath(dir))
	if err != nil {
		t.Fatalf("model artifact missing: %v", err)
	}
	if string(model) != "onnx-bytes" {
		t.Errorf("model content = %q, want %q", model, "onnx-bytes")
	}
	vocab, err := os.ReadFile(VocabPath(dir))
	if err != nil {
		t.Fatalf("vocabulary missing: %v", err)
	}
	if string(vocab) != "vocab-lines" {
		t.Errorf("vocabulary content = %q, want %q", vocab, "vocab-lines")
	}

	manifest, err := LoadManifest(dir)
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}
	if manifest.ModelID != "all-minilm" {
		t.Errorf("manifest model id = %q, want all-minilm", manifest.ModelID)
	}
	if manifest.Dims != 384 || manifest.MaxSeqLen != 256 {
		t.Errorf("manifest dims/seqlen = %d/%d, want 384/256", manifest.Dims, manifest.MaxSeqLen)
	}
	if manifest.FetchedAt.IsZero() {
		t.Error("manifest fetched_at not recorded")
	}
}

func TestEnsureModelSkipsWhenArtifactsPresent(t *testing.T) {
	srv := newArtifactServer(t, "onnx-bytes", "vocab-lines")
	dir := filepath.Join(t.TempDir(), "all-minilm")
	d := NewDownloader(logging.Discard())

	if err := d.EnsureModel(context.Background(), dir, srv.spec("all-minilm")); err != nil {
		t.Fatalf("first EnsureModel failed: %v", err)
	}
	before := srv.requests.Load()

	if err := d.EnsureModel(context.Background(), dir, srv.spec("all-minilm")); err != nil {
		t.Fatalf("second EnsureModel failed: %v", err)
	}
	if got := srv.requests.Load(); got != before {
		t.Errorf("second EnsureModel made %d requests, want 0", got-before)
	}
}

func TestEnsureModelRefetchesOnModelMismatch(t *testing.T) {
	srv := newArtifactServer(t, "onnx-bytes", "vocab-lines")
	dir := filepath.Join(t.TempDir(), "models")
	d := NewDownloader(logging.Discard())

	if err := d.EnsureModel(context.Background(), dir, srv.spec("old-model")); err != nil {
		t.Fatalf("first EnsureModel failed: %v", err)
	}
	before := srv.requests.Load()

	if err := d.EnsureModel(context.Background(), dir, srv.spec("new-model")); err != nil {
		t.Fatalf("second EnsureModel failed: %v", err)
	}
	if got := srv.requests.Load() - before; got != 2 {
		t.Errorf("mismatched manifest triggered %d requests, want 2", got)
	}

	manifest, err := LoadManifest(dir)
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}
	if manifest.ModelID != "new-model" {
		t.Errorf("manifest model id = %q, want new-model", manifest.ModelID)
	}
}

func TestEnsureModelHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	dir := filepath.Join(t.TempDir(), "missing")
	d := NewDownloader(logging.Discard())
	spec := ModelSpec{
		ID:       "missing",
		ModelURL: server.URL + "/model.onnx",
		VocabURL: server.URL + "/vocab.txt",
	}

	err := d.EnsureModel(context.Background(), dir, spec)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "unexpected status 404") {
		t.Errorf("error %q does not report the status", err)
	}
	if _, statErr := os.Stat(ModelPath(dir)); !os.IsNotExist(statErr) {
		t.Error("failed download left a model artifact behind")
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, ".fetch-*"))
	if len(leftovers) != 0 {
		t.Errorf("failed download left temp files: %v", leftovers)
	}
}

func TestEnsureModelFollowsRedirects(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/hop1", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+"/hop2", http.StatusFound)
	})
	mux.HandleFunc("/hop2", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+"/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("payload"))
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	d := NewDownloader(logging.Discard())
	if err := d.fetchFile(context.Background(), srv.URL+"/hop1", filepath.Join(dir, "out")); err != nil {
		t.Fatalf("fetchFile through redirects failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("content = %q, want payload", data)
	}
}

func TestEnsureModelRedirectLoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	}))
	defer srv.Close()

	d := NewDownloader(logging.Discard())
	err := d.fetchFile(context.Background(), srv.URL+"/loop", filepath.Join(t.TempDir(), "out"))
	if err == nil {
		t.Fatal("expected error for redirect loop")
	}
	if !strings.Contains(err.Error(), "redirects") {
		t.Errorf("error %q does not mention the redirect cap", err)
	}
}
