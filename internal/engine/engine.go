// Package engine orchestrates a full analysis run: file collection,
// cached parsing, diff overlay, graph construction, embeddings, semantic
// edge discovery, and snapshot history.
package engine

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"driftmap/internal/adapters"
	"driftmap/internal/cache"
	"driftmap/internal/config"
	"driftmap/internal/derrors"
	"driftmap/internal/embed"
	"driftmap/internal/git"
	"driftmap/internal/graph"
	"driftmap/internal/logging"
	"driftmap/internal/semantic"
	"driftmap/internal/vecstore"
)

// parseWorkers bounds concurrent file reads and parses.
const parseWorkers = 8

// Geometry of the default sentence-embedding model (all-MiniLM-L6-v2).
const (
	modelDims   = 384
	modelSeqLen = 256
)

// skipDirs are never descended into during the file walk.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"__pycache__":  true,
	".driftmap":    true,
}

// Engine ties the analysis stages together for one repository root. All
// methods are safe for concurrent use.
type Engine struct {
	root     string
	cfg      *config.Config
	logger   *slog.Logger
	registry *adapters.Registry
	vcs      *git.Client
	builder  *graph.Builder
	db       *cache.DB
	store    *cache.Store
	vectors  vecstore.Store
	history  *History

	flight singleflight.Group

	vecOnce sync.Once
	vecErr  error

	mu       sync.Mutex
	pipeline *embed.Pipeline
	encoder  embed.Encoder
	embedOff bool // encoder permanently unavailable in this build
}

// New builds an engine for the tree rooted at root. Configuration problems
// are the only errors: everything else degrades at analysis time instead.
func New(root string, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, derrors.Wrap(derrors.ConfigInvalid, "invalid analysis root", err)
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}

	e := &Engine{
		root:     abs,
		cfg:      cfg,
		logger:   logger,
		registry: adapters.DefaultRegistry(logger),
		vcs:      git.NewClient(abs, logger),
	}

	rules, err := graph.LoadRules(filepath.Join(abs, ".driftmap", "rules.toml"))
	if err != nil {
		return nil, derrors.Wrap(derrors.ConfigInvalid, "invalid rules file", err)
	}
	e.builder = graph.NewBuilder(e.registry, e.vcs, rules, logger)

	if cfg.Cache.Enabled {
		db, err := cache.Open(cfg.CacheDir(abs), logger)
		if err != nil {
			logger.Warn("cache unavailable, analysis will not reuse results", "error", err)
		} else {
			e.db = db
			e.store = cache.NewStore(db)
		}
	}

	if cfg.Vector.Provider == config.ProviderSQLite && e.store == nil {
		logger.Debug("vector store disabled, cache is unavailable")
	} else {
		vectors, err := vecstore.Open(cfg.Vector, e.store, cfg.Embeddings.ModelID, modelDims, logger)
		if err != nil {
			if e.db != nil {
				e.db.Close()
			}
			return nil, err
		}
		e.vectors = vectors
	}

	e.history = NewHistory(filepath.Join(abs, ".driftmap", historyFileName), cfg.History.MaxSnapshots, logger)
	return e, nil
}

// Root returns the absolute analysis root.
func (e *Engine) Root() string {
	return e.root
}

// Config returns the engine's configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// History returns the snapshot history.
func (e *Engine) History() *History {
	return e.history
}

// Close releases the encoder, vector store, and cache handle.
func (e *Engine) Close() error {
	e.mu.Lock()
	enc := e.encoder
	e.encoder = nil
	e.pipeline = nil
	e.mu.Unlock()

	var first error
	if enc != nil {
		if err := enc.Close(); err != nil {
			first = err
		}
	}
	if e.vectors != nil {
		if err := e.vectors.Close(); err != nil && first == nil {
			first = err
		}
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Analyze runs the full pipeline and returns the resulting graph. Concurrent
// calls for the same root share one in-flight run; a shared run keeps the
// first caller's label.
func (e *Engine) Analyze(ctx context.Context, label string) (*graph.Graph, error) {
	v, err, shared := e.flight.Do(e.root, func() (any, error) {
		return e.analyze(ctx, label)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		e.logger.Debug("analysis shared with concurrent caller", "root", e.root)
	}
	return v.(*graph.Graph), nil
}

func (e *Engine) analyze(ctx context.Context, label string) (*graph.Graph, error) {
	started := time.Now()

	rels, err := e.collectFiles()
	if err != nil {
		return nil, err
	}

	embedRun := e.cfg.Embeddings.Enabled && len(rels) <= e.cfg.Embeddings.MaxFiles
	if e.cfg.Embeddings.Enabled && !embedRun {
		e.logger.Info("embeddings skipped, tree exceeds file ceiling",
			"files", len(rels), "maxFiles", e.cfg.Embeddings.MaxFiles)
	}

	parsed, texts, err := e.parseFiles(ctx, rels, embedRun)
	if err != nil {
		return nil, err
	}

	diff, baseRef := e.computeDiff()
	g := e.builder.Build(ctx, parsed, diff, baseRef)

	var embeddings map[string][]float32
	if embedRun {
		embeddings = e.runEmbeddings(ctx, texts)
	}

	live := make(map[string]bool, len(parsed))
	for _, pf := range parsed {
		live[pf.Path] = true
	}

	if len(embeddings) > 0 && e.cfg.Vector.SyncEnabled {
		if vs := e.readyVectors(ctx); vs != nil {
			e.syncVectors(ctx, vs, parsed, embeddings, live)
		}
	}
	if len(embeddings) > 0 {
		e.attachSemanticEdges(ctx, g, embeddings)
	}

	// Prune runs after this pass's batch writes committed, so rows written
	// this run are never collected.
	e.pruneCaches(live)

	e.appendSnapshot(g, label)

	e.logger.Info("analysis complete",
		"files", len(parsed),
		"nodes", len(g.Nodes),
		"edges", len(g.Edges),
		"duration", time.Since(started).Round(time.Millisecond))
	return g, nil
}

// collectFiles walks the root and returns sorted root-relative paths of
// files with a registered extension.
func (e *Engine) collectFiles() ([]string, error) {
	var rels []string
	err := filepath.WalkDir(e.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			e.logger.Debug("walk entry skipped", "path", p, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p == e.root {
				return nil
			}
			name := d.Name()
			if skipDirs[name] || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := e.registry.ResolvePath(p); !ok {
			return nil
		}
		rel, err := filepath.Rel(e.root, p)
		if err != nil {
			return nil
		}
		rels = append(rels, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, derrors.Wrap(derrors.InternalError, "file walk failed", err)
	}
	sort.Strings(rels)
	return rels, nil
}

// parsedSource is one file's per-run parse state.
type parsedSource struct {
	file  *adapters.ParsedFile
	text  *embed.FileText
	fresh bool
}

// parseFiles reads and parses the collected files with bounded parallelism,
// consulting the parse cache first. keepText retains file contents for the
// embedding stage. Unreadable and unparseable files are logged and skipped.
func (e *Engine) parseFiles(ctx context.Context, rels []string, keepText bool) ([]*adapters.ParsedFile, []embed.FileText, error) {
	results := make([]parsedSource, len(rels))

	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(parseWorkers)
	for i, rel := range rels {
		grp.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			content, err := os.ReadFile(filepath.Join(e.root, filepath.FromSlash(rel)))
			if err != nil {
				e.logger.Warn("file unreadable, excluded from analysis", "path", rel, "error", err)
				return nil
			}
			hash := adapters.HashContent(content)

			var pf *adapters.ParsedFile
			if e.store != nil {
				if hit, ok, err := e.store.GetParse(rel, hash); err == nil && ok {
					pf = hit
				}
			}
			fresh := pf == nil
			if fresh {
				pf = e.registry.Parse(content, rel)
				if pf == nil {
					return nil
				}
			}

			res := parsedSource{file: pf, fresh: fresh}
			if keepText {
				res.text = &embed.FileText{Path: rel, Hash: hash, Text: string(content)}
			}
			results[i] = res
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, nil, err
	}

	parsed := make([]*adapters.ParsedFile, 0, len(results))
	fresh := make([]*adapters.ParsedFile, 0)
	texts := make([]embed.FileText, 0)
	cacheHits := 0
	for _, r := range results {
		if r.file == nil {
			continue
		}
		parsed = append(parsed, r.file)
		if r.fresh {
			fresh = append(fresh, r.file)
		} else {
			cacheHits++
		}
		if r.text != nil {
			texts = append(texts, *r.text)
		}
	}

	if e.store != nil && len(fresh) > 0 {
		if err := e.store.SetParseBatch(fresh); err != nil {
			e.logger.Warn("parse cache write failed", "error", err)
		}
	}

	e.logger.Debug("files parsed",
		"files", len(parsed), "cacheHits", cacheHits, "parsed", len(fresh))
	return parsed, texts, nil
}

// computeDiff resolves the base branch and builds the change overlay. The
// returned ref is the merge base, so signature comparisons line up with the
// diff window. Outside a repository or when diffing is off, the graph
// carries no diff state.
func (e *Engine) computeDiff() (*git.DiffResult, string) {
	if e.cfg.SkipDiff {
		return nil, ""
	}
	if !e.vcs.IsRepo() {
		e.logger.Debug("not a git repository, diff skipped", "root", e.root)
		return nil, ""
	}
	base := e.vcs.DetectBaseBranch(e.cfg.BaseBranch)
	if base == "" {
		e.logger.Warn("no base branch found, all files treated as unchanged")
		return nil, ""
	}
	diff, err := e.vcs.Diff(base)
	if err != nil {
		e.logger.Warn("diff failed, all files treated as unchanged", "base", base, "error", err)
		return nil, ""
	}

	baseRef := base
	if mb, err := e.vcs.MergeBase(base, "HEAD"); err == nil {
		baseRef = mb
	}
	return diff, baseRef
}

// runEmbeddings lazily builds the embedding pipeline and embeds the
// collected files. Any failure disables embeddings for this run and
// returns nil.
func (e *Engine) runEmbeddings(ctx context.Context, texts []embed.FileText) map[string][]float32 {
	p, err := e.ensurePipeline(ctx)
	if err != nil {
		if errors.Is(err, embed.ErrEncoderUnavailable) {
			e.logger.Info("embedding encoder unavailable, semantic analysis skipped")
		} else {
			e.logger.Warn("embedding pipeline unavailable, semantic analysis skipped", "error", err)
		}
		return nil
	}
	vecs, err := p.EmbedFiles(ctx, texts)
	if err != nil {
		e.logger.Warn("embedding run failed, semantic analysis skipped", "error", err)
		return nil
	}
	return vecs
}

// ensurePipeline downloads model artifacts on first use and constructs the
// tokenizer, encoder, and pipeline. The result is reused across runs.
func (e *Engine) ensurePipeline(ctx context.Context) (*embed.Pipeline, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pipeline != nil {
		return e.pipeline, nil
	}
	if e.embedOff {
		return nil, embed.ErrEncoderUnavailable
	}

	spec := embed.ModelSpec{
		ID:        e.cfg.Embeddings.ModelID,
		Dims:      modelDims,
		MaxSeqLen: modelSeqLen,
		ModelURL:  e.cfg.Embeddings.ModelURL,
		VocabURL:  e.cfg.Embeddings.VocabURL,
	}
	dir := e.cfg.ResolveModelDir()
	if err := embed.NewDownloader(e.logger).EnsureModel(ctx, dir, spec); err != nil {
		return nil, err
	}

	tok, err := embed.NewTokenizer(embed.VocabPath(dir), spec.MaxSeqLen)
	if err != nil {
		return nil, err
	}
	enc, err := embed.NewONNXEncoder(embed.ModelPath(dir), spec.Dims)
	if err != nil {
		if errors.Is(err, embed.ErrEncoderUnavailable) {
			e.embedOff = true
		}
		return nil, err
	}

	e.encoder = enc
	e.pipeline = embed.NewPipeline(tok, enc, e.store, spec.ID, e.logger)
	return e.pipeline, nil
}

// readyVectors initializes the vector backend on first use. Failure marks
// it unusable for this process; callers degrade to nil.
func (e *Engine) readyVectors(ctx context.Context) vecstore.Store {
	if e.vectors == nil {
		return nil
	}
	e.vecOnce.Do(func() {
		e.vecErr = e.vectors.Init(ctx)
		if e.vecErr != nil {
			e.logger.Warn("vector store unavailable", "provider", e.cfg.Vector.Provider, "error", e.vecErr)
		}
	})
	if e.vecErr != nil {
		return nil
	}
	return e.vectors
}

// syncVectors pushes this run's embeddings to the given store and prunes
// rows for files no longer in the tree.
func (e *Engine) syncVectors(ctx context.Context, vs vecstore.Store, parsed []*adapters.ParsedFile, embeddings map[string][]float32, live map[string]bool) {
	byPath := make(map[string]*adapters.ParsedFile, len(parsed))
	for _, pf := range parsed {
		byPath[pf.Path] = pf
	}

	paths := make([]string, 0, len(embeddings))
	for p := range embeddings {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	now := time.Now().UTC()
	records := make([]vecstore.Record, 0, len(paths))
	for _, p := range paths {
		meta := vecstore.Metadata{
			ModelID:   e.cfg.Embeddings.ModelID,
			Namespace: e.cfg.Vector.Namespace,
			UpdatedAt: now,
		}
		if pf, ok := byPath[p]; ok {
			meta.Hash = pf.ContentHash
			meta.Language = pf.Language
		}
		records = append(records, vecstore.Record{ID: p, Vector: embeddings[p], Meta: meta})
	}

	if err := vs.Upsert(ctx, records); err != nil {
		e.logger.Warn("vector store sync failed", "error", err)
		return
	}
	if removed, err := vs.Prune(ctx, live); err != nil {
		e.logger.Warn("vector store prune failed", "error", err)
	} else if removed > 0 {
		e.logger.Debug("vector store pruned", "removed", removed)
	}
}

// attachSemanticEdges discovers similarity pairs and appends them as
// semantic edges. Remote providers are queried only when cloud search is
// enabled; everything else uses the in-process scan.
func (e *Engine) attachSemanticEdges(ctx context.Context, g *graph.Graph, embeddings map[string][]float32) {
	disc := semantic.NewDiscoverer(e.cfg.SimilarityThreshold, e.cfg.MaxSemanticEdgesPerFile, e.logger)
	depEdges := g.EdgeIndex(graph.LinkDependency)

	var pairs []semantic.Pair
	if vs := e.annStore(ctx); vs != nil {
		found, err := disc.DiscoverANN(ctx, embeddings, depEdges, vs)
		if err != nil {
			e.logger.Warn("ann similarity discovery failed, falling back to exact scan", "error", err)
			pairs = disc.Discover(embeddings, depEdges)
		} else {
			pairs = found
		}
	} else {
		pairs = disc.Discover(embeddings, depEdges)
	}
	semantic.Attach(g, pairs)
}

// annStore returns the remote store when it should serve similarity
// discovery: a non-default provider with cloud search enabled.
func (e *Engine) annStore(ctx context.Context) vecstore.Store {
	if e.cfg.Vector.Provider == config.ProviderSQLite || !e.cfg.Vector.CloudSearchEnabled {
		return nil
	}
	return e.readyVectors(ctx)
}

// pruneCaches removes cache rows for files that vanished from the tree.
func (e *Engine) pruneCaches(live map[string]bool) {
	if e.store == nil {
		return
	}
	if removed, err := e.store.PruneParse(live); err != nil {
		e.logger.Warn("parse cache prune failed", "error", err)
	} else if removed > 0 {
		e.logger.Debug("parse cache pruned", "removed", removed)
	}
	if removed, err := e.store.PruneEmbeddings(live); err != nil {
		e.logger.Warn("embedding cache prune failed", "error", err)
	} else if removed > 0 {
		e.logger.Debug("embedding cache pruned", "removed", removed)
	}
}

// Status reports the engine's operational state for the status command.
type Status struct {
	Root          string       `json:"root" yaml:"root"`
	Provider      string       `json:"provider" yaml:"provider"`
	CacheEnabled  bool         `json:"cacheEnabled" yaml:"cacheEnabled"`
	Cache         *cache.Stats `json:"cache,omitempty" yaml:"cache,omitempty"`
	ModelID       string       `json:"modelId" yaml:"modelId"`
	ModelPresent  bool         `json:"modelPresent" yaml:"modelPresent"`
	VocabPresent  bool         `json:"vocabPresent" yaml:"vocabPresent"`
	Snapshots     int          `json:"snapshots" yaml:"snapshots"`
	CurrentBranch string       `json:"currentBranch,omitempty" yaml:"currentBranch,omitempty"`
	BaseBranch    string       `json:"baseBranch,omitempty" yaml:"baseBranch,omitempty"`
}

// Status gathers operational state. It never fails; unavailable pieces are
// simply absent.
func (e *Engine) Status() *Status {
	st := &Status{
		Root:         e.root,
		Provider:     e.cfg.Vector.Provider,
		CacheEnabled: e.store != nil,
		ModelID:      e.cfg.Embeddings.ModelID,
		Snapshots:    e.history.Len(),
	}

	if e.store != nil {
		if stats, err := e.store.Stats(); err == nil {
			st.Cache = stats
		} else {
			e.logger.Debug("cache stats unavailable", "error", err)
		}
	}

	dir := e.cfg.ResolveModelDir()
	st.ModelPresent = fileExists(embed.ModelPath(dir))
	st.VocabPresent = fileExists(embed.VocabPath(dir))

	if e.vcs.IsRepo() {
		if branch, err := e.vcs.CurrentBranch(); err == nil {
			st.CurrentBranch = branch
		}
		st.BaseBranch = e.vcs.DetectBaseBranch(e.cfg.BaseBranch)
	}
	return st
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
