// Package sqlite provides the SQLite durable-store backend.
//
// SQLite suits local development and single-node deployments. Embeddings
// are stored as JSON strings in TEXT columns; the similarity RPC is
// served by computing cosine similarity in-process over the owner's rows.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bwmarrin/snowflake"
	_ "github.com/mattn/go-sqlite3"

	"github.com/HUSAINTRIVEDI52/new-brain/pkg/storage"
)

// Client implements storage.Store backed by SQLite.
type Client struct {
	db    *sql.DB
	table string
	node  *snowflake.Node
}

// Config contains configuration for the SQLite backend.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// Table is the table holding memory records. Defaults to "memories".
	Table string
}

// NewClient opens the database, creating the file, schema, and indexes
// as needed.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.Table == "" {
		cfg.Table = "memories"
	}

	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("sqlite: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, fmt.Errorf("sqlite: id generator: %w", err)
	}

	client := &Client{db: db, table: cfg.Table, node: node}
	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			summary TEXT,
			embedding TEXT NOT NULL,
			metadata TEXT,
			importance REAL DEFAULT 1.0,
			access_count INTEGER DEFAULT 0,
			summary_count INTEGER DEFAULT 0,
			created_at DATETIME,
			last_accessed_at DATETIME
		)
	`, c.table)
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("sqlite: init tables: %w", err)
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_user ON %s(user_id)
	`, c.table, c.table)
	if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("sqlite: init index: %w", err)
	}
	return nil
}

// Insert persists a record, assigning a snowflake id when none is set.
func (c *Client) Insert(ctx context.Context, record *storage.Record) error {
	if record.ID == 0 {
		record.ID = c.node.Generate().Int64()
	}

	embeddingJSON, err := json.Marshal(record.Embedding)
	if err != nil {
		return fmt.Errorf("sqlite: Insert: %w", err)
	}
	metadataJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("sqlite: Insert: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, user_id, content, summary, embedding, metadata, importance,
		 access_count, summary_count, created_at, last_accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.table)

	_, err = c.db.ExecContext(ctx, query,
		record.ID,
		record.OwnerID,
		record.Content,
		record.Summary,
		string(embeddingJSON),
		string(metadataJSON),
		record.Importance,
		record.AccessCount,
		record.SummaryCount,
		record.CreatedAt,
		record.LastAccessedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: Insert: %w", err)
	}
	return nil
}

// UpdateFields applies a partial update within the owner partition.
func (c *Client) UpdateFields(ctx context.Context, id int64, owner string, updates *storage.FieldUpdates) error {
	setClause, args := buildSetClause(updates, "?")
	if setClause == "" {
		return nil
	}

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = ? AND user_id = ?`, c.table, setClause)
	args = append(args, id, owner)

	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlite: UpdateFields: %w", err)
	}
	return nil
}

// Delete removes a record by id within the owner partition.
func (c *Client) Delete(ctx context.Context, id int64, owner string) (bool, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ? AND user_id = ?`, c.table)
	result, err := c.db.ExecContext(ctx, query, id, owner)
	if err != nil {
		return false, fmt.Errorf("sqlite: Delete: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: Delete: %w", err)
	}
	return affected > 0, nil
}

// SelectByOwner returns every record in the owner partition.
func (c *Client) SelectByOwner(ctx context.Context, owner string) ([]*storage.Record, error) {
	query := fmt.Sprintf(`%s WHERE user_id = ? ORDER BY id`, c.selectClause())
	rows, err := c.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("sqlite: SelectByOwner: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

// SelectByIDs returns records matching the id batch within the owner
// partition. Missing ids are skipped silently.
func (c *Client) SelectByIDs(ctx context.Context, owner string, ids []int64) ([]*storage.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders, args := idPlaceholders(ids)
	args = append(args, owner)
	query := fmt.Sprintf(`%s WHERE id IN (%s) AND user_id = ?`, c.selectClause(), placeholders)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: SelectByIDs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

// SearchSimilar serves the similarity RPC by computing cosine similarity
// in-process over the owner's rows, SQLite having no native vector
// operations.
func (c *Client) SearchSimilar(ctx context.Context, owner string, query []float64, k int) ([]storage.SimilarMatch, error) {
	records, err := c.SelectByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("sqlite: SearchSimilar: %w", err)
	}

	matches := make([]storage.SimilarMatch, 0, len(records))
	for _, record := range records {
		matches = append(matches, storage.SimilarMatch{
			ID:         record.ID,
			Similarity: cosineSimilarity(query, record.Embedding),
		})
	}
	return topMatches(matches, k), nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) selectClause() string {
	return fmt.Sprintf(`
		SELECT id, user_id, content, summary, embedding, metadata, importance,
		       access_count, summary_count, created_at, last_accessed_at
		FROM %s`, c.table)
}

func scanRecords(rows *sql.Rows) ([]*storage.Record, error) {
	var records []*storage.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (*storage.Record, error) {
	var (
		record        storage.Record
		summary       sql.NullString
		embeddingJSON string
		metadataJSON  sql.NullString
		createdAt     time.Time
		lastAccessed  sql.NullTime
	)

	err := rows.Scan(
		&record.ID,
		&record.OwnerID,
		&record.Content,
		&summary,
		&embeddingJSON,
		&metadataJSON,
		&record.Importance,
		&record.AccessCount,
		&record.SummaryCount,
		&createdAt,
		&lastAccessed,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan: %w", err)
	}

	record.Summary = summary.String
	record.CreatedAt = createdAt
	if lastAccessed.Valid {
		record.LastAccessedAt = lastAccessed.Time
	} else {
		record.LastAccessedAt = createdAt
	}

	if err := json.Unmarshal([]byte(embeddingJSON), &record.Embedding); err != nil {
		return nil, fmt.Errorf("sqlite: decode embedding: %w", err)
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &record.Metadata); err != nil {
			return nil, fmt.Errorf("sqlite: decode metadata: %w", err)
		}
	}
	return &record, nil
}
