// Package store is the durable, file-backed memory store. Each memory is
// one JSON record file under records/, with a manifest (index.json)
// rebuilt from the record files whenever it is missing or out of step
// with the directory. Relationships live in a separate edge list
// (edges.json). All persisted formats tolerate unknown fields and default
// missing ones, so old engines can read files written by newer ones.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mnemo-dev/mnemo/internal/domain"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
	ErrLocked    = errors.New("data directory is locked by another process")
)

const (
	recordsDir = "records"
	indexFile  = "index.json"
	edgesFile  = "edges.json"
	lockFile   = ".lock"
)

// Store owns the data directory. Writes are serialized store-wide, which
// doubles as the per-id write queue: two concurrent reinforcements of the
// same memory cannot lose an update. Reads return copies so in-flight
// callers never observe a half-applied mutation.
type Store struct {
	dir    string
	logger *zap.Logger
	flk    *flock.Flock

	mu       sync.RWMutex
	memories map[uuid.UUID]*domain.Memory
	byHash   map[string]uuid.UUID
	edges    []domain.Relationship
}

type indexEntry struct {
	ID          uuid.UUID         `json:"id"`
	Type        domain.MemoryType `json:"type"`
	ContentHash string            `json:"content_hash"`
	Confidence  float64           `json:"confidence"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

type indexManifest struct {
	Version int          `json:"version"`
	Entries []indexEntry `json:"entries"`
}

// Open acquires an exclusive lock on dir, loads the corpus, and
// self-heals the index if it disagrees with the record files.
func Open(dir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, recordsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	flk := flock.New(filepath.Join(dir, lockFile))
	locked, err := flk.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock data directory: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}

	s := &Store{
		dir:      dir,
		logger:   logger,
		flk:      flk,
		memories: make(map[uuid.UUID]*domain.Memory),
		byHash:   make(map[string]uuid.UUID),
	}

	if err := s.load(); err != nil {
		_ = flk.Unlock()
		return nil, err
	}
	return s, nil
}

// Close releases the directory lock. The store must not be used after.
func (s *Store) Close() error {
	return s.flk.Unlock()
}

// Dir returns the data directory the store was opened on.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) load() error {
	ids, stale := s.loadIndex()
	if stale {
		var err error
		ids, err = s.scanRecordIDs()
		if err != nil {
			return err
		}
	}

	healthy := true
	for _, id := range ids {
		m, err := s.readRecord(id)
		if err != nil {
			s.logger.Warn("skipping corrupted memory record",
				zap.String("memory_id", id.String()),
				zap.Error(err))
			healthy = false
			continue
		}
		s.memories[m.ID] = m
		s.byHash[hashKey(m.Type, m.ContentHash)] = m.ID
	}

	if err := s.loadEdges(); err != nil {
		return err
	}

	if stale || !healthy {
		if err := s.writeIndex(); err != nil {
			return err
		}
		s.logger.Info("rebuilt store index", zap.Int("memories", len(s.memories)))
	}

	s.logger.Info("memory store opened",
		zap.String("dir", s.dir),
		zap.Int("memories", len(s.memories)),
		zap.Int("edges", len(s.edges)))
	return nil
}

// loadIndex returns the ids listed in the manifest and whether the
// manifest must be rebuilt (missing, unparseable, or out of step with the
// record files on disk).
func (s *Store) loadIndex() ([]uuid.UUID, bool) {
	data, err := os.ReadFile(filepath.Join(s.dir, indexFile))
	if err != nil {
		return nil, true
	}

	var manifest indexManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		s.logger.Warn("unreadable store index, rebuilding", zap.Error(err))
		return nil, true
	}

	onDisk, err := s.scanRecordIDs()
	if err != nil || len(onDisk) != len(manifest.Entries) {
		return nil, true
	}
	disk := make(map[uuid.UUID]struct{}, len(onDisk))
	for _, id := range onDisk {
		disk[id] = struct{}{}
	}

	ids := make([]uuid.UUID, 0, len(manifest.Entries))
	for _, e := range manifest.Entries {
		if _, ok := disk[e.ID]; !ok {
			return nil, true
		}
		ids = append(ids, e.ID)
	}
	return ids, false
}

func (s *Store) scanRecordIDs() ([]uuid.UUID, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, recordsDir))
	if err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}

	var ids []uuid.UUID
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(name, ".json"))
		if err != nil {
			s.logger.Warn("ignoring foreign file in records directory", zap.String("name", name))
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) recordPath(id uuid.UUID) string {
	return filepath.Join(s.dir, recordsDir, id.String()+".json")
}

func (s *Store) readRecord(id uuid.UUID) (*domain.Memory, error) {
	data, err := os.ReadFile(s.recordPath(id))
	if err != nil {
		return nil, err
	}
	var m domain.Memory
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.ID == uuid.Nil || !domain.ValidMemoryType(string(m.Type)) {
		return nil, fmt.Errorf("record %s has invalid identity fields", id)
	}
	if m.ContentHash == "" {
		m.ContentHash = HashContent(m.Content)
	}
	return &m, nil
}

// writeRecord commits a memory record atomically: full write to a temp
// file in the same directory, then rename.
func (s *Store) writeRecord(m *domain.Memory) error {
	return writeJSONAtomic(s.recordPath(m.ID), m)
}

func (s *Store) writeIndex() error {
	manifest := indexManifest{Version: 1, Entries: make([]indexEntry, 0, len(s.memories))}
	for _, m := range s.memories {
		manifest.Entries = append(manifest.Entries, indexEntry{
			ID:          m.ID,
			Type:        m.Type,
			ContentHash: m.ContentHash,
			Confidence:  m.Confidence.Current,
			UpdatedAt:   m.UpdatedAt,
		})
	}
	return writeJSONAtomic(filepath.Join(s.dir, indexFile), manifest)
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
