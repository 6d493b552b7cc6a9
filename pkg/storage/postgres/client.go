// Package postgres provides the PostgreSQL durable-store backend.
//
// Embeddings live in a pgvector column and the similarity RPC is served
// natively by the <=> cosine-distance operator, so similarity search
// never leaves the database.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/HUSAINTRIVEDI52/new-brain/pkg/storage"
)

// Client implements storage.Store backed by PostgreSQL with pgvector.
type Client struct {
	db         *sql.DB
	table      string
	dimensions int
	node       *snowflake.Node
}

// Config contains configuration for the PostgreSQL backend.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	// Table is the table holding memory records. Defaults to "memories".
	Table string

	// Dimensions is the embedding dimension used for the vector column.
	Dimensions int
}

// NewClient connects to PostgreSQL and prepares the schema, including the
// pgvector extension.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.Table == "" {
		cfg.Table = "memories"
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, fmt.Errorf("postgres: id generator: %w", err)
	}

	client := &Client{db: db, table: cfg.Table, dimensions: cfg.Dimensions, node: node}
	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) initTables(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("postgres: create extension: %w", err)
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			summary TEXT,
			embedding vector(%d) NOT NULL,
			metadata JSONB,
			importance DOUBLE PRECISION DEFAULT 1.0,
			access_count INTEGER DEFAULT 0,
			summary_count INTEGER DEFAULT 0,
			created_at TIMESTAMPTZ,
			last_accessed_at TIMESTAMPTZ
		)
	`, c.table, c.dimensions)
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("postgres: init tables: %w", err)
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_user ON %s(user_id)
	`, c.table, c.table)
	if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("postgres: init index: %w", err)
	}
	return nil
}

// Insert persists a record, assigning a snowflake id when none is set.
func (c *Client) Insert(ctx context.Context, record *storage.Record) error {
	if record.ID == 0 {
		record.ID = c.node.Generate().Int64()
	}

	metadataJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("postgres: Insert: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, user_id, content, summary, embedding, metadata, importance,
		 access_count, summary_count, created_at, last_accessed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, c.table)

	_, err = c.db.ExecContext(ctx, query,
		record.ID,
		record.OwnerID,
		record.Content,
		record.Summary,
		toVector(record.Embedding),
		string(metadataJSON),
		record.Importance,
		record.AccessCount,
		record.SummaryCount,
		record.CreatedAt,
		record.LastAccessedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: Insert: %w", err)
	}
	return nil
}

// UpdateFields applies a partial update within the owner partition.
func (c *Client) UpdateFields(ctx context.Context, id int64, owner string, updates *storage.FieldUpdates) error {
	setClause, args := buildSetClause(updates)
	if setClause == "" {
		return nil
	}

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d AND user_id = $%d`,
		c.table, setClause, len(args)+1, len(args)+2)
	args = append(args, id, owner)

	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres: UpdateFields: %w", err)
	}
	return nil
}

// Delete removes a record by id within the owner partition.
func (c *Client) Delete(ctx context.Context, id int64, owner string) (bool, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND user_id = $2`, c.table)
	result, err := c.db.ExecContext(ctx, query, id, owner)
	if err != nil {
		return false, fmt.Errorf("postgres: Delete: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: Delete: %w", err)
	}
	return affected > 0, nil
}

// SelectByOwner returns every record in the owner partition.
func (c *Client) SelectByOwner(ctx context.Context, owner string) ([]*storage.Record, error) {
	query := fmt.Sprintf(`%s WHERE user_id = $1 ORDER BY id`, c.selectClause())
	rows, err := c.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("postgres: SelectByOwner: %w", err)
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

	placeholders, args := idPlaceholders(ids, 1)
	query := fmt.Sprintf(`%s WHERE id IN (%s) AND user_id = $%d`,
		c.selectClause(), placeholders, len(ids)+1)
	args = append(args, owner)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: SelectByIDs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

// SearchSimilar serves the similarity RPC via pgvector's cosine-distance
// operator. Similarity is 1 - (embedding <=> query).
func (c *Client) SearchSimilar(ctx context.Context, owner string, query []float64, k int) ([]storage.SimilarMatch, error) {
	sqlQuery := fmt.Sprintf(`
		SELECT id, 1 - (embedding <=> $1) AS similarity
		FROM %s
		WHERE user_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, c.table)

	rows, err := c.db.QueryContext(ctx, sqlQuery, toVector(query), owner, k)
	if err != nil {
		return nil, fmt.Errorf("postgres: SearchSimilar: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []storage.SimilarMatch
	for rows.Next() {
		var m storage.SimilarMatch
		if err := rows.Scan(&m.ID, &m.Similarity); err != nil {
			return nil, fmt.Errorf("postgres: SearchSimilar: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return matches, nil
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
		record       storage.Record
		summary      sql.NullString
		embedding    pgvector.Vector
		metadataJSON sql.NullString
		createdAt    time.Time
		lastAccessed sql.NullTime
	)

	err := rows.Scan(
		&record.ID,
		&record.OwnerID,
		&record.Content,
		&summary,
		&embedding,
		&metadataJSON,
		&record.Importance,
		&record.AccessCount,
		&record.SummaryCount,
		&createdAt,
		&lastAccessed,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan: %w", err)
	}

	record.Summary = summary.String
	record.CreatedAt = createdAt
	if lastAccessed.Valid {
		record.LastAccessedAt = lastAccessed.Time
	} else {
		record.LastAccessedAt = createdAt
	}
	record.Embedding = fromVector(embedding)

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &record.Metadata); err != nil {
			return nil, fmt.Errorf("postgres: decode metadata: %w", err)
		}
	}
	return &record, nil
}
