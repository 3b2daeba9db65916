// Package store implements the single-writer, file-backed document store
// that is the only component touching disk state.
//
// The document (entities snapshot) is the source of truth and is
// persisted as one JSON file with a temp-file-then-rename atomic write,
// adapting internal/memory/workspace.go's Write(). A modernc.org/sqlite
// database alongside it holds a crash-consistency write-ahead ledger
// only — load() never reads from it on the normal path — adapting the
// schema-versioned bootstrap style of internal/persistence/store.go.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/basket/go-strand/internal/entities"
	_ "modernc.org/sqlite"
)

const (
	walSchemaVersion = 1
)

// Store owns the in-memory document, a write lock, and the on-disk
// snapshot + WAL files.
type Store struct {
	mu   sync.RWMutex
	data *Data

	snapshotPath string
	walDB        *sql.DB
	logger       *slog.Logger

	counters   map[string]*atomic.Uint64
	countersMu sync.Mutex
}

// Open loads (or initializes) the document at dataDir/strand-state.json,
// opening a sibling WAL database for crash-consistency checksums.
// Returns ErrUnavailable if dataDir cannot be created or written to.
func Open(dataDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dataDir == "" {
		dataDir = defaultDataDir()
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data directory: %v", ErrUnavailable, err)
	}

	snapshotPath := filepath.Join(dataDir, "strand-state.json")
	walPath := filepath.Join(dataDir, "strand-wal.db")

	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=busy_timeout(5000)", walPath))
	if err != nil {
		return nil, fmt.Errorf("%w: open wal db: %v", ErrUnavailable, err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{
		snapshotPath: snapshotPath,
		walDB:        db,
		logger:       logger,
		counters:     make(map[string]*atomic.Uint64),
	}

	if err := s.initWALSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	data, err := s.readSnapshot()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.data = data
	s.seedCounters(data)

	return s, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".strand")
}

func (s *Store) initWALSchema(ctx context.Context) error {
	_, err := s.walDB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS write_log (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			written_at INTEGER NOT NULL,
			checksum   TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS schema_meta (
			version INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("init wal schema: %w", err)
	}
	var count int
	if err := s.walDB.QueryRowContext(ctx, `SELECT COUNT(1) FROM schema_meta;`).Scan(&count); err != nil {
		return fmt.Errorf("read wal schema meta: %w", err)
	}
	if count == 0 {
		if _, err := s.walDB.ExecContext(ctx, `INSERT INTO schema_meta (version) VALUES (?);`, walSchemaVersion); err != nil {
			return fmt.Errorf("seed wal schema meta: %w", err)
		}
	}
	return nil
}

// readSnapshot loads the JSON document from disk, or returns an empty
// document if the file does not exist yet. If the file is missing or
// unparseable but the WAL ledger has prior writes, this is a crash with
// no recoverable snapshot: return ErrUnavailable rather than silently
// starting over, per.
func (s *Store) readSnapshot() (*Data, error) {
	raw, err := os.ReadFile(s.snapshotPath)
	if os.IsNotExist(err) {
		walRows, walErr := s.walRowCount(context.Background())
		if walErr == nil && walRows > 0 {
			return nil, fmt.Errorf("%w: snapshot missing but write_log has %d prior writes; manual recovery required", ErrUnavailable, walRows)
		}
		return newData(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read snapshot: %v", ErrUnavailable, err)
	}

	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: parse snapshot: %v", ErrUnavailable, err)
	}
	return normalizeData(&d), nil
}

func (s *Store) walRowCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.walDB.QueryRowContext(ctx, `SELECT COUNT(1) FROM write_log;`).Scan(&n)
	return n, err
}

// persist serializes the current document and performs the atomic
// temp-file-then-rename write, adapting internal/memory/workspace.go's
// Write(). Must be called with mu held for writing.
func (s *Store) persist() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(s.snapshotPath)
	tmp, err := os.CreateTemp(dir, ".strand-state-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp snapshot: %v", ErrUnavailable, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write temp snapshot: %v", ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close temp snapshot: %v", ErrUnavailable, err)
	}
	if err := os.Rename(tmpName, s.snapshotPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename temp snapshot: %v", ErrUnavailable, err)
	}

	sum := sha256.Sum256(raw)
	_, walErr := s.walDB.Exec(`INSERT INTO write_log (written_at, checksum) VALUES (?, ?);`,
		time.Now().UnixMilli(), hex.EncodeToString(sum[:]))
	if walErr != nil {
		// The snapshot write already succeeded; the WAL ledger is a
		// diagnostic aid, not the source of truth, so log and continue
		// rather than surface this as StoreUnavailable.
		s.logger.Warn("store: wal ledger append failed", "error", walErr)
	}

	return nil
}

// Do runs mutate against the live document under the write lock, then
// persists. This is the only way callers change state: the
// load-snapshot -> mutate -> save pattern from collapses
// into one critical section here because the in-memory document IS the
// loaded snapshot. If mutate returns an error, no write occurs and the
// document is left exactly as it was (mutate must not partially apply
// changes it then errors out of; callers validate before mutating).
func (s *Store) Do(mutate func(*Data) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := mutate(s.data); err != nil {
		return err
	}
	return s.persist()
}

// View runs read against a snapshot-consistent view of the document
// under a read lock. It must not mutate what it's given.
func (s *Store) View(read func(*Data) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return read(s.data)
}

// Snapshot returns a deep copy of the current document, safe for the
// caller to hold and mutate without affecting the Store.
func (s *Store) Snapshot() (*Data, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneData(s.data)
}

func cloneData(d *Data) (*Data, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("clone snapshot: %w", err)
	}
	var clone Data
	if err := json.Unmarshal(raw, &clone); err != nil {
		return nil, fmt.Errorf("clone snapshot: %w", err)
	}
	return normalizeData(&clone), nil
}

func normalizeData(d *Data) *Data {
	if d.Strands == nil {
		d.Strands = make(map[string]*entities.Strand)
	}
	if d.Goals == nil {
		d.Goals = make(map[string]*entities.Goal)
	}
	if d.SessionIndex == nil {
		d.SessionIndex = make(map[string]SessionOwner)
	}
	if d.SessionStrandIndex == nil {
		d.SessionStrandIndex = make(map[string]string)
	}
	return d
}

// Close releases the WAL database handle.
func (s *Store) Close() error {
	return s.walDB.Close()
}

// NewID mints a monotonic id for prefix, seeded from the max existing
// numeric suffix of that prefix found at load time.
func (s *Store) NewID(prefix string) string {
	s.countersMu.Lock()
	counter, ok := s.counters[prefix]
	if !ok {
		counter = &atomic.Uint64{}
		s.counters[prefix] = counter
	}
	s.countersMu.Unlock()

	n := counter.Add(1)
	return prefix + strconv.FormatUint(n, 10)
}

func (s *Store) seedCounters(d *Data) {
	seed := func(prefix string, ids ...string) {
		max := uint64(0)
		for _, id := range ids {
			if !strings.HasPrefix(id, prefix) {
				continue
			}
			n, err := strconv.ParseUint(strings.TrimPrefix(id, prefix), 10, 64)
			if err == nil && n > max {
				max = n
			}
		}
		counter := &atomic.Uint64{}
		counter.Store(max)
		s.countersMu.Lock()
		s.counters[prefix] = counter
		s.countersMu.Unlock()
	}

	var strandIDs, goalIDs, taskIDs []string
	for id, strand := range d.Strands {
		strandIDs = append(strandIDs, id)
		_ = strand
	}
	for id, goal := range d.Goals {
		goalIDs = append(goalIDs, id)
		for _, t := range goal.Tasks {
			taskIDs = append(taskIDs, t.ID)
		}
	}
	seed("strand_", strandIDs...)
	seed("goal_", goalIDs...)
	seed("task_", taskIDs...)
}
