package analysis

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // driver
)

// Cache stores analysis results keyed by a digest of the audio bytes, so
// uploading the same file twice costs one service call.
type Cache struct {
	db *sqlx.DB
}

type resultRow struct {
	Digest  string  `db:"digest"`
	BPM     float64 `db:"bpm"`
	Key     string  `db:"musical_key"`
	Mode    string  `db:"mode"`
	RMS     float64 `db:"rms"`
	Arousal float64 `db:"arousal"`
	Valence float64 `db:"valence"`
}

const schema = `
CREATE TABLE IF NOT EXISTS analysis_results (
	digest      TEXT PRIMARY KEY,
	bpm         REAL NOT NULL,
	musical_key TEXT NOT NULL,
	mode        TEXT NOT NULL,
	rms         REAL NOT NULL,
	arousal     REAL NOT NULL,
	valence     REAL NOT NULL,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// OpenCache opens (or creates) the sqlite database at path and migrates it.
func OpenCache(path string) (*Cache, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open analysis cache: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate analysis cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Digest keys a payload.
func Digest(audio []byte) string {
	sum := sha256.Sum256(audio)
	return hex.EncodeToString(sum[:])
}

// Get looks up a cached result.
func (c *Cache) Get(ctx context.Context, digest string) (Result, bool, error) {
	var row resultRow
	err := c.db.GetContext(ctx, &row,
		`SELECT digest, bpm, musical_key, mode, rms, arousal, valence
		 FROM analysis_results WHERE digest = ?`, digest)
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("load cached analysis: %w", err)
	}
	return Result{
		BPM:     row.BPM,
		Key:     row.Key,
		Mode:    row.Mode,
		RMS:     row.RMS,
		Arousal: row.Arousal,
		Valence: row.Valence,
	}, true, nil
}

// Put stores or replaces a result.
func (c *Cache) Put(ctx context.Context, digest string, r Result) error {
	_, err := c.db.NamedExecContext(ctx, `
		INSERT INTO analysis_results (digest, bpm, musical_key, mode, rms, arousal, valence)
		VALUES (:digest, :bpm, :musical_key, :mode, :rms, :arousal, :valence)
		ON CONFLICT(digest) DO UPDATE SET
			bpm = excluded.bpm, musical_key = excluded.musical_key, mode = excluded.mode,
			rms = excluded.rms, arousal = excluded.arousal, valence = excluded.valence`,
		resultRow{
			Digest:  digest,
			BPM:     r.BPM,
			Key:     r.Key,
			Mode:    r.Mode,
			RMS:     r.RMS,
			Arousal: r.Arousal,
			Valence: r.Valence,
		})
	if err != nil {
		return fmt.Errorf("store analysis: %w", err)
	}
	return nil
}

// Count returns the number of cached results.
func (c *Cache) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM analysis_results`); err != nil {
		return 0, fmt.Errorf("count cached analyses: %w", err)
	}
	return n, nil
}

// CachedAnalyzer consults the cache before calling through.
type CachedAnalyzer struct {
	next  Analyzer
	cache *Cache
}

// NewCachedAnalyzer wraps next with cache.
func NewCachedAnalyzer(next Analyzer, cache *Cache) *CachedAnalyzer {
	return &CachedAnalyzer{next: next, cache: cache}
}

// Analyze returns a cached result when one exists. Cache failures are
// logged and never fail the analysis.
func (a *CachedAnalyzer) Analyze(ctx context.Context, audio []byte) (Result, error) {
	digest := Digest(audio)
	r, ok, err := a.cache.Get(ctx, digest)
	if err != nil {
		log.Printf("WARN analysis cache: %v", err)
	}
	if ok {
		log.Printf("Analysis cache hit %s", digest[:12])
		return r, nil
	}

	r, err = a.next.Analyze(ctx, audio)
	if err != nil {
		return Result{}, err
	}
	if err := a.cache.Put(ctx, digest, r); err != nil {
		log.Printf("WARN analysis cache: %v", err)
	}
	return r, nil
}
