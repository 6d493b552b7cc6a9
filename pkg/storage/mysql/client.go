// Package mysql provides the MySQL durable-store backend.
//
// Embeddings are stored as JSON text; the similarity RPC is served by
// computing cosine similarity in-process over the owner's rows, since
// stock MySQL has no vector operators.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	_ "github.com/go-sql-driver/mysql"

	"github.com/HUSAINTRIVEDI52/new-brain/pkg/storage"
)

// Client implements storage.Store backed by MySQL.
type Client struct {
	db    *sql.DB
	table string
	node  *snowflake.Node
}

// Config contains configuration for the MySQL backend.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string

	// Table is the table holding memory records. Defaults to "memories".
	Table string
}

// NewClient connects to MySQL and prepares the schema.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.Table == "" {
		cfg.Table = "memories"
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("mysql: ping: %w", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, fmt.Errorf("mysql: id generator: %w", err)
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
			id BIGINT PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			content TEXT NOT NULL,
			summary TEXT,
			embedding LONGTEXT NOT NULL,
			metadata JSON,
			importance DOUBLE DEFAULT 1.0,
			access_count INT DEFAULT 0,
			summary_count INT DEFAULT 0,
			created_at DATETIME(6),
			last_accessed_at DATETIME(6),
			INDEX idx_user (user_id)
		)
	`, c.table)
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("mysql: init tables: %w", err)
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
		return fmt.Errorf("mysql: Insert: %w", err)
	}
	metadataJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("mysql: Insert: %w", err)
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
		return fmt.Errorf("mysql: Insert: %w", err)
	}
	return nil
}

// UpdateFields applies a partial update within the owner partition.
func (c *Client) UpdateFields(ctx context.Context, id int64, owner string, updates *storage.FieldUpdates) error {
	setClause, args := buildSetClause(updates)
	if setClause == "" {
		return nil
	}

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = ? AND user_id = ?`, c.table, setClause)
	args = append(args, id, owner)

	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mysql: UpdateFields: %w", err)
	}
	return nil
}

// Delete removes a record by id within the owner partition.
func (c *Client) Delete(ctx context.Context, id int64, owner string) (bool, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ? AND user_id = ?`, c.table)
	result, err := c.db.ExecContext(ctx, query, id, owner)
	if err != nil {
		return false, fmt.Errorf("mysql: Delete: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mysql: Delete: %w", err)
	}
	return affected > 0, nil
}

// SelectByOwner returns every record in the owner partition.
func (c *Client) SelectByOwner(ctx context.Context, owner string) ([]*storage.Record, error) {
	query := fmt.Sprintf(`%s WHERE user_id = ? ORDER BY id`, c.selectClause())
	rows, err := c.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("mysql: SelectByOwner: %w", err)
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

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]interface{}, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, owner)

	query := fmt.Sprintf(`%s WHERE id IN (%s) AND user_id = ?`, c.selectClause(), placeholders)
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("mysql: SelectByIDs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

// SearchSimilar serves the similarity RPC by computing cosine similarity
// in-process over the owner's rows.
func (c *Client) SearchSimilar(ctx context.Context, owner string, query []float64, k int) ([]storage.SimilarMatch, error) {
	records, err := c.SelectByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("mysql: SearchSimilar: %w", err)
	}

	matches := make([]storage.SimilarMatch, 0, len(records))
	for _, record := range records {
		matches = append(matches, storage.SimilarMatch{
			ID:         record.ID,
			Similarity: cosineSimilarity(query, record.Embedding),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if k > 0 && k < len(matches) {
		matches = matches[:k]
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
		return nil, fmt.Errorf("mysql: scan: %w", err)
	}

	record.Summary = summary.String
	record.CreatedAt = createdAt
	if lastAccessed.Valid {
		record.LastAccessedAt = lastAccessed.Time
	} else {
		record.LastAccessedAt = createdAt
	}

	if err := json.Unmarshal([]byte(embeddingJSON), &record.Embedding); err != nil {
		return nil, fmt.Errorf("mysql: decode embedding: %w", err)
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &record.Metadata); err != nil {
			return nil, fmt.Errorf("mysql: decode metadata: %w", err)
		}
	}
	return &record, nil
}

func buildSetClause(updates *storage.FieldUpdates) (string, []interface{}) {
	var (
		sets []string
		args []interface{}
	)

	set := func(column string, value interface{}) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if updates.Content != nil {
		set("content", *updates.Content)
	}
	if updates.Summary != nil {
		set("summary", *updates.Summary)
	}
	if updates.Importance != nil {
		set("importance", *updates.Importance)
	}
	if updates.Metadata != nil {
		if encoded, err := json.Marshal(updates.Metadata); err == nil {
			set("metadata", string(encoded))
		}
	}
	if updates.Embedding != nil {
		if encoded, err := json.Marshal(updates.Embedding); err == nil {
			set("embedding", string(encoded))
		}
	}
	if updates.AccessCount != nil {
		set("access_count", *updates.AccessCount)
	}
	if updates.SummaryCount != nil {
		set("summary_count", *updates.SummaryCount)
	}
	if updates.LastAccessedAt != nil {
		set("last_accessed_at", *updates.LastAccessedAt)
	}

	return strings.Join(sets, ", "), args
}

func cosineSimilarity(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
