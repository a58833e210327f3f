package search

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"

	"github.com/likeshelf/likeshelf-server/internal/domain"
)

// SearchIndex wraps a Bleve index of liked items.
//
// All public methods are safe for concurrent use. The mutex guards the
// index handle while Rebuild swaps it.
//
// A marker file exists on disk while any store write is not yet reflected in
// the index. Finding it at startup means the process stopped between a
// commit and its indexing, so the index opens unhealthy.
type SearchIndex struct {
	index      bleve.Index
	path       string
	markerPath string
	logger     *slog.Logger
	mu         sync.RWMutex
	healthy    atomic.Bool

	markerMu sync.Mutex
	pending  int
}

// Options configures the search index.
type Options struct {
	DataPath string       // Directory for index storage
	Logger   *slog.Logger // Logger for operations (discards if nil)
}

// mappingVersion is incremented whenever the index mapping changes.
// A mismatch on startup drops the index and starts empty.
const mappingVersion = "likes-1"

const batchSize = 500

// NewSearchIndex creates or opens the search index under opts.DataPath.
// A corrupted index or one built with an older mapping is removed and recreated.
func NewSearchIndex(opts Options) (*SearchIndex, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if err := os.MkdirAll(opts.DataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	indexPath := filepath.Join(opts.DataPath, "search.bleve")
	versionPath := filepath.Join(opts.DataPath, "search.version")
	markerPath := filepath.Join(opts.DataPath, "search.dirty")

	var index bleve.Index
	needsRebuild := false

	indexExists := false
	if _, statErr := os.Stat(indexPath); statErr == nil {
		indexExists = true
	}

	if indexExists {
		existingVersion, readErr := os.ReadFile(versionPath)
		switch {
		case readErr != nil:
			logger.Info("search index has no version file, will rebuild with current mapping",
				"new_version", mappingVersion,
			)
			needsRebuild = true
		case string(existingVersion) != mappingVersion:
			logger.Info("search index mapping version changed, will rebuild",
				"old_version", string(existingVersion),
				"new_version", mappingVersion,
			)
			needsRebuild = true
		}
	}

	if !needsRebuild && indexExists {
		var err error
		index, err = bleve.Open(indexPath)
		if err != nil {
			logger.Warn("failed to open existing index, will recreate",
				"path", indexPath,
				"error", err,
			)
			needsRebuild = true
		}
	}

	if needsRebuild {
		if err := os.RemoveAll(indexPath); err != nil {
			return nil, fmt.Errorf("remove old index: %w", err)
		}
		index = nil
	}

	if index == nil {
		var err error
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
		if writeErr := os.WriteFile(versionPath, []byte(mappingVersion), 0o644); writeErr != nil {
			logger.Warn("failed to write search version file", "error", writeErr)
		}
		logger.Info("created new search index", "path", indexPath, "mapping_version", mappingVersion)
	} else {
		logger.Info("opened existing search index", "path", indexPath)
	}

	s := &SearchIndex{
		index:      index,
		path:       indexPath,
		markerPath: markerPath,
		logger:     logger,
	}
	if _, err := os.Stat(markerPath); err == nil {
		logger.Warn("search index has unfinished writes, rebuild required", "marker", markerPath)
	} else {
		s.healthy.Store(true)
	}
	return s, nil
}

// Close closes the index and releases resources.
func (s *SearchIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// Healthy reports whether every write since the last rebuild succeeded.
// An unhealthy index may be missing items and must not be trusted for candidates.
func (s *SearchIndex) Healthy() bool {
	return s.healthy.Load()
}

// NeedsRebuild reports whether the index can't be trusted for a store
// holding itemCount items.
func (s *SearchIndex) NeedsRebuild(itemCount int) bool {
	if !s.Healthy() {
		return true
	}
	docs, err := s.DocumentCount()
	return err != nil || docs != uint64(itemCount)
}

// BeginWrite is called before items are committed to the store. The marker
// stays on disk until every returned end func has run, which callers do once
// the committed items are indexed or the commit is abandoned.
func (s *SearchIndex) BeginWrite() (end func(), err error) {
	s.markerMu.Lock()
	defer s.markerMu.Unlock()

	if s.pending == 0 {
		if err := s.writeMarker(); err != nil {
			s.healthy.Store(false)
			return func() {}, err
		}
	}
	s.pending++

	var once sync.Once
	return func() { once.Do(s.endWrite) }, nil
}

func (s *SearchIndex) endWrite() {
	s.markerMu.Lock()
	defer s.markerMu.Unlock()

	s.pending--
	if s.pending == 0 && s.healthy.Load() {
		s.clearMarker()
	}
}

// Invalidate marks the index unhealthy until the next successful Rebuild.
// Searches stop using it immediately.
func (s *SearchIndex) Invalidate() {
	s.markerMu.Lock()
	defer s.markerMu.Unlock()

	s.healthy.Store(false)
	if err := s.writeMarker(); err != nil {
		s.logger.Warn("failed to write search index marker", "error", err)
	}
}

func (s *SearchIndex) writeMarker() error {
	f, err := os.Create(s.markerPath)
	if err != nil {
		return fmt.Errorf("create marker: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync marker: %w", err)
	}
	return f.Close()
}

// clearMarker removes the marker. markerMu must be held.
func (s *SearchIndex) clearMarker() {
	if err := os.Remove(s.markerPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove search index marker", "error", err)
	}
}

// IndexItems indexes (or re-indexes) items in chunks.
// A failure marks the index unhealthy until the next Rebuild.
func (s *SearchIndex) IndexItems(items []*domain.LikedItem) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.indexLocked(items); err != nil {
		s.healthy.Store(false)
		s.logger.Error("search index write failed, index marked unhealthy", "error", err)
		return err
	}
	return nil
}

func (s *SearchIndex) indexLocked(items []*domain.LikedItem) error {
	for start := 0; start < len(items); start += batchSize {
		end := min(start+batchSize, len(items))

		batch := s.index.NewBatch()
		for _, item := range items[start:end] {
			doc := ItemToDocument(item)
			if err := batch.Index(doc.ID, doc.ToMap()); err != nil {
				return fmt.Errorf("batch index %s: %w", doc.ID, err)
			}
		}

		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("commit batch %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// DocumentCount returns the total number of indexed documents.
func (s *SearchIndex) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

// Rebuild drops the index and indexes the items load returns from scratch.
// The index is unhealthy from the start of the call, so searches fall back
// to scanning instead of waiting. load runs under the exclusive lock: writes
// committed after it returns wait and are indexed on top.
func (s *SearchIndex) Rebuild(load func() ([]*domain.LikedItem, error)) error {
	s.Invalidate()

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := load()
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}

	if err := s.index.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	if err := os.RemoveAll(s.path); err != nil {
		return fmt.Errorf("remove index: %w", err)
	}

	index, err := bleve.New(s.path, buildIndexMapping())
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	s.index = index

	if err := s.indexLocked(items); err != nil {
		return err
	}

	s.markerMu.Lock()
	s.healthy.Store(true)
	if s.pending == 0 {
		s.clearMarker()
	}
	s.markerMu.Unlock()

	s.logger.Info("rebuilt search index", "path", s.path, "documents", len(items))
	return nil
}
