package embed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	// ModelFileName and VocabFileName key the on-disk presence check: both
	// present means no download.
	ModelFileName    = "model.onnx"
	VocabFileName    = "vocab.txt"
	ManifestFileName = "manifest.toml"

	downloadTimeout = 60 * time.Second
	maxRedirects    = 5
)

// ModelSpec identifies one embedding model and where to fetch its artifacts.
type ModelSpec struct {
	ID        string
	Dims      int
	MaxSeqLen int
	ModelURL  string
	VocabURL  string
}

// Manifest records what was fetched into a model directory.
type Manifest struct {
	ModelID   string    `toml:"model_id"`
	Dims      int       `toml:"dims"`
	MaxSeqLen int       `toml:"max_seq_len"`
	ModelURL  string    `toml:"model_url"`
	VocabURL  string    `toml:"vocab_url"`
	FetchedAt time.Time `toml:"fetched_at"`
}

// Downloader fetches model artifacts over HTTP.
type Downloader struct {
	client *http.Client
	logger *slog.Logger
}

// NewDownloader builds a downloader with a bounded wall-clock timeout and a
// redirect hop cap per file.
func NewDownloader(logger *slog.Logger) *Downloader {
	return &Downloader{
		client: &http.Client{
			Timeout: downloadTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		logger: logger,
	}
}

// ModelPath returns the model artifact path inside dir.
func ModelPath(dir string) string {
	return filepath.Join(dir, ModelFileName)
}

// VocabPath returns the vocabulary path inside dir.
func VocabPath(dir string) string {
	return filepath.Join(dir, VocabFileName)
}

// EnsureModel makes the model artifacts available in dir. Both files present
// with a matching manifest skips the network entirely; a manifest recorded
// for a different model id forces a refetch.
func (d *Downloader) EnsureModel(ctx context.Context, dir string, spec ModelSpec) error {
	modelPath := ModelPath(dir)
	vocabPath := VocabPath(dir)

	if artifactExists(modelPath) && artifactExists(vocabPath) {
		manifest, err := LoadManifest(dir)
		if err == nil && manifest.ModelID == spec.ID {
			d.logger.Debug("model artifacts present", "dir", dir, "model", spec.ID)
			return nil
		}
		d.logger.Warn("model artifacts do not match requested model, refetching",
			"dir", dir, "model", spec.ID, "error", err)
		if err := os.Remove(modelPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stale model: %w", err)
		}
		if err := os.Remove(vocabPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stale vocabulary: %w", err)
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model directory: %w", err)
	}

	if !artifactExists(modelPath) {
		d.logger.Info("downloading model artifact", "url", spec.ModelURL)
		if err := d.fetchFile(ctx, spec.ModelURL, modelPath); err != nil {
			return fmt.Errorf("download model: %w", err)
		}
	}
	if !artifactExists(vocabPath) {
		d.logger.Info("downloading vocabulary", "url", spec.VocabURL)
		if err := d.fetchFile(ctx, spec.VocabURL, vocabPath); err != nil {
			return fmt.Errorf("download vocabulary: %w", err)
		}
	}

	return writeManifest(dir, spec)
}

// fetchFile streams one URL into a temp file and renames it into place, so a
// partial download never masquerades as a finished artifact.
func (d *Downloader) fetchFile(ctx context.Context, url, dest string) error {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "driftmap")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".fetch-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("finalize artifact: %w", err)
	}
	return nil
}

// LoadManifest reads and decodes the manifest beside the artifacts.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

func writeManifest(dir string, spec ModelSpec) error {
	m := Manifest{
		ModelID:   spec.ID,
		Dims:      spec.Dims,
		MaxSeqLen: spec.MaxSeqLen,
		ModelURL:  spec.ModelURL,
		VocabURL:  spec.VocabURL,
		FetchedAt: time.Now().UTC(),
	}
	data, err := toml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFileName), data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func artifactExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
