package semantic

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/datawise/datawise/internal/observability"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	scope TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	embedding BLOB,
	created_at TIMESTAMP NOT NULL
);
`

const indexSQL = `
CREATE INDEX IF NOT EXISTS idx_documents_scope ON documents(collection, scope, created_at);
`

// SQLiteStore keeps documents and their embeddings in a single sqlite file.
// Search ranks by cosine similarity when both the query and the stored
// document have embeddings, and by substring match otherwise.
type SQLiteStore struct {
	db       *sql.DB
	embedder Embedder
	logger   *slog.Logger
	now      func() time.Time
}

func OpenSQLite(ctx context.Context, path string, embedder Embedder, logger *slog.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("semantic store path is required")
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open semantic store: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{
		db:       db,
		embedder: embedder,
		logger:   observability.LoggerOrDiscard(logger),
		now:      time.Now,
	}, nil
}

// initSchema also upgrades stores created before documents carried a scope.
// Unscoped rows stay in the file but no search can reach them.
func initSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("init semantic store schema: %w", err)
	}
	hasScope, err := hasColumn(ctx, db, "documents", "scope")
	if err != nil {
		return err
	}
	if !hasScope {
		if _, err := db.ExecContext(ctx, `ALTER TABLE documents ADD COLUMN scope TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("add scope column: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, indexSQL); err != nil {
		return fmt.Errorf("init semantic store index: %w", err)
	}
	return nil
}

func hasColumn(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return false, fmt.Errorf("inspect %s columns: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, fmt.Errorf("scan %s column: %w", table, err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Add(ctx context.Context, collection, scope, content string, metadata map[string]string) (string, error) {
	if strings.TrimSpace(scope) == "" {
		return "", ErrScopeRequired
	}
	if strings.TrimSpace(content) == "" {
		return "", errors.New("document content is required")
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	encodedMetadata, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("marshal document metadata: %w", err)
	}

	var embedding []byte
	if vector := s.embed(ctx, content); vector != nil {
		embedding = encodeVector(vector)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, collection, scope, content, metadata, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, collection, scope, content, string(encodedMetadata), embedding, s.now().UTC())
	if err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

// Search returns matches from one scope only.
func (s *SQLiteStore) Search(ctx context.Context, collection, scope, text string, limit int) ([]Match, error) {
	if strings.TrimSpace(scope) == "" {
		return nil, ErrScopeRequired
	}
	if limit <= 0 {
		limit = 5
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if vector := s.embed(ctx, text); vector != nil {
		matches, err := s.searchByVector(ctx, collection, scope, vector, limit)
		if err != nil || len(matches) > 0 {
			return matches, err
		}
	}
	return s.searchByKeyword(ctx, collection, scope, text, limit)
}

func (s *SQLiteStore) searchByVector(ctx context.Context, collection, scope string, vector []float32, limit int) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, collection, scope, content, metadata, embedding, created_at
		FROM documents
		WHERE collection = ? AND scope = ? AND embedding IS NOT NULL
	`, collection, scope)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			document Document
			metadata string
			blob     []byte
		)
		if err := rows.Scan(&document.ID, &document.Collection, &document.Scope, &document.Content, &metadata, &blob, &document.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		document.Metadata = decodeMetadata(metadata)
		matches = append(matches, Match{Document: document, Score: CosineSimilarity(vector, decodeVector(blob))})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *SQLiteStore) searchByKeyword(ctx context.Context, collection, scope, text string, limit int) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, collection, scope, content, metadata, created_at
		FROM documents
		WHERE collection = ? AND scope = ? AND content LIKE ? ESCAPE '\'
		ORDER BY created_at DESC
		LIMIT ?
	`, collection, scope, "%"+escapeLike(text)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			document Document
			metadata string
		)
		if err := rows.Scan(&document.ID, &document.Collection, &document.Scope, &document.Content, &metadata, &document.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		document.Metadata = decodeMetadata(metadata)
		matches = append(matches, Match{Document: document, Score: 1})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return matches, nil
}

func (s *SQLiteStore) embed(ctx context.Context, text string) []float32 {
	if s.embedder == nil {
		return nil
	}
	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.logger.WarnContext(ctx, "embedding failed, using keyword matching", slog.String("error", err.Error()))
		return nil
	}
	return vector
}

func encodeVector(vector []float32) []byte {
	out := make([]byte, 4*len(vector))
	for i, value := range vector {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(value))
	}
	return out
}

func decodeVector(blob []byte) []float32 {
	out := make([]float32, len(blob)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out
}

func decodeMetadata(raw string) map[string]string {
	metadata := map[string]string{}
	_ = json.Unmarshal([]byte(raw), &metadata)
	return metadata
}

func escapeLike(text string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(text)
}
