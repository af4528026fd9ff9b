package facilitator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitaliisemenov/svc-facilitator/internal/metrics"
)

// SchemaVersion is the only mirror file/document schema this facilitator
// understands. Anything else found on disk or in the database is treated
// as absent rather than partially trusted.
const SchemaVersion = "mirror@v2"

const lkgDocumentID = "mirror@v2"

// LKGMeta carries the bookkeeping fields written alongside a saved
// mirror: who asked for the save and how big the result was.
type LKGMeta struct {
	RequestID string
	Counts    map[string]int
}

type lkgFileEnvelope struct {
	Schema    string         `json:"schema"`
	SavedAt   string         `json:"savedAt"`
	RequestID string         `json:"requestId"`
	Counts    map[string]int `json:"counts,omitempty"`
	Mirror    MirrorMap      `json:"mirror"`
}

type lkgRawEnvelope struct {
	Schema    string `json:"schema"`
	SavedAt   string `json:"savedAt"`
	RequestID string `json:"requestId"`
	Mirror    any    `json:"mirror"`
}

// LKGStore owns the single filesystem path that holds the Last-Known-Good
// mirror, and optionally mirrors the same payload into a database table
// for a secondary fallback. DB mirroring is best-effort: its failure
// never fails a save, and its absence (nil pool) simply disables it.
type LKGStore struct {
	path      string
	pool      *pgxpool.Pool
	table     string
	validator *Validator
	logger    *slog.Logger
}

// NewLKGStore constructs an LKG Store. pool may be nil to disable the
// database mirror entirely.
func NewLKGStore(path string, pool *pgxpool.Pool, table string, logger *slog.Logger) *LKGStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LKGStore{path: path, pool: pool, table: table, validator: NewValidator(), logger: logger}
}

// EnsureExists creates an empty-mirror LKG file (and parent directories)
// if the file is absent. It is idempotent and safe to call on every boot.
func (s *LKGStore) EnsureExists(requestID string) error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat lkg file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create lkg directory: %w", err)
	}

	return s.writeAtomic(lkgFileEnvelope{
		Schema:    SchemaVersion,
		SavedAt:   time.Now().UTC().Format(time.RFC3339),
		RequestID: requestID,
		Mirror:    MirrorMap{},
	})
}

// Save atomically persists mirror as the new Last-Known-Good file, then
// best-effort mirrors the same payload into the database. A database
// failure is logged and swallowed; the caller's save still succeeds as
// far as the filesystem is concerned, which is what §4.1 requires.
func (s *LKGStore) Save(ctx context.Context, mirror MirrorMap, meta LKGMeta) error {
	env := lkgFileEnvelope{
		Schema:    SchemaVersion,
		SavedAt:   time.Now().UTC().Format(time.RFC3339),
		RequestID: meta.RequestID,
		Counts:    meta.Counts,
		Mirror:    mirror,
	}

	if err := s.writeAtomic(env); err != nil {
		metrics.LKGSaves.WithLabelValues("file", "error").Inc()
		return fmt.Errorf("write lkg file: %w", err)
	}
	metrics.LKGSaves.WithLabelValues("file", "ok").Inc()

	if s.pool != nil {
		if err := s.saveDB(ctx, env); err != nil {
			s.logger.Warn("lkg db mirror failed", "error", err)
			metrics.LKGSaves.WithLabelValues("db", "error").Inc()
		} else {
			metrics.LKGSaves.WithLabelValues("db", "ok").Inc()
		}
	}

	return nil
}

// writeAtomic implements the scoped-acquisition discipline from §4.1 and
// §9: write to a unique temp file in the same directory, fsync it,
// rename over the target, then best-effort fsync the directory. No
// partial write is ever visible as the target file.
func (s *LKGStore) writeAtomic(env lkgFileEnvelope) error {
	dir := filepath.Dir(s.path)

	tmp, err := os.CreateTemp(dir, ".lkg-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(0o600); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	enc := json.NewEncoder(tmp)
	if err := enc.Encode(env); err != nil {
		return fmt.Errorf("encode lkg payload: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	cleanup = false

	if dirFile, err := os.Open(dir); err == nil {
		_ = dirFile.Sync()
		dirFile.Close()
	}

	return nil
}

func (s *LKGStore) saveDB(ctx context.Context, env lkgFileEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal lkg payload: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, schema, payload, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET schema = $2, payload = $3, updated_at = now()
	`, s.table)

	_, err = s.pool.Exec(ctx, query, lkgDocumentID, SchemaVersion, payload)
	return err
}

// TryLoad reads and validates the on-disk LKG file. It never returns an
// error to the caller: missing file, corrupt JSON, schema mismatch, or a
// validation failure all produce a nil Snapshot, with the reason logged.
func (s *LKGStore) TryLoad() *Snapshot {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("lkg file read failed", "error", err)
		}
		return nil
	}

	var raw lkgRawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("lkg file corrupt", "error", err)
		return nil
	}

	if raw.Schema != SchemaVersion {
		s.logger.Warn("lkg file schema mismatch, ignoring", "schema", raw.Schema)
		return nil
	}

	mirror, ferr := s.validator.ParseMirror(raw.Mirror)
	if ferr != nil {
		s.logger.Warn("lkg file failed validation", "error", ferr)
		return nil
	}

	fetchedAt, err := time.Parse(time.RFC3339, raw.SavedAt)
	if err != nil {
		fetchedAt = time.Now().UTC()
	}

	return &Snapshot{Map: mirror, Source: SourceLKG, FetchedAt: fetchedAt}
}

// TryLoadDB reads and validates the database-mirrored LKG document. Like
// TryLoad, failures are swallowed and logged rather than raised.
func (s *LKGStore) TryLoadDB(ctx context.Context) *Snapshot {
	if s.pool == nil {
		return nil
	}

	query := fmt.Sprintf(`SELECT schema, payload, updated_at FROM %s WHERE id = $1`, s.table)

	var schema string
	var payload []byte
	var updatedAt time.Time
	err := s.pool.QueryRow(ctx, query, lkgDocumentID).Scan(&schema, &payload, &updatedAt)
	if err != nil {
		s.logger.Warn("lkg db load failed", "error", err)
		return nil
	}

	if schema != SchemaVersion {
		s.logger.Warn("lkg db document schema mismatch, ignoring", "schema", schema)
		return nil
	}

	var raw lkgRawEnvelope
	if err := json.Unmarshal(payload, &raw); err != nil {
		s.logger.Warn("lkg db document corrupt", "error", err)
		return nil
	}

	mirror, ferr := s.validator.ParseMirror(raw.Mirror)
	if ferr != nil {
		s.logger.Warn("lkg db document failed validation", "error", ferr)
		return nil
	}

	return &Snapshot{Map: mirror, Source: SourceLKG, FetchedAt: updatedAt.UTC()}
}
