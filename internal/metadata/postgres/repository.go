package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/datawise/datawise/internal/conversation"
	"github.com/datawise/datawise/internal/dataset"
	"github.com/datawise/datawise/internal/metadata"
	"github.com/datawise/datawise/internal/pipeline"
)

const defaultListLimit = 50

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Check(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping metadata db: %w", err)
	}
	return nil
}

func (r *Repository) CreateDataset(ctx context.Context, in metadata.Dataset) (metadata.Dataset, error) {
	columns := in.Columns
	if columns == nil {
		columns = []dataset.Column{}
	}
	columnsJSON, err := json.Marshal(columns)
	if err != nil {
		return metadata.Dataset{}, fmt.Errorf("marshal dataset columns: %w", err)
	}

	query := `
INSERT INTO dataset (dataset_id, name, file_name, object_key, size_bytes, row_count, column_count, columns_json)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
RETURNING created_at`
	out := in
	out.Columns = columns
	if err := r.db.QueryRowContext(ctx, query,
		in.ID, in.Name, in.FileName, in.ObjectKey, in.SizeBytes, in.RowCount, in.ColumnCount, string(columnsJSON),
	).Scan(&out.CreatedAt); err != nil {
		return metadata.Dataset{}, fmt.Errorf("create dataset: %w", err)
	}
	return out, nil
}

func (r *Repository) GetDataset(ctx context.Context, id string) (metadata.Dataset, error) {
	query := `
SELECT dataset_id, name, file_name, object_key, size_bytes, row_count, column_count, columns_json, created_at
FROM dataset
WHERE dataset_id = $1`

	item, err := scanDataset(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return metadata.Dataset{}, metadata.ErrNotFound
		}
		return metadata.Dataset{}, fmt.Errorf("get dataset: %w", err)
	}
	return item, nil
}

func (r *Repository) ListDatasets(ctx context.Context, limit int) ([]metadata.Dataset, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT dataset_id, name, file_name, object_key, size_bytes, row_count, column_count, columns_json, created_at
FROM dataset
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	datasets := make([]metadata.Dataset, 0)
	for rows.Next() {
		item, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dataset row: %w", err)
		}
		datasets = append(datasets, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dataset rows: %w", err)
	}
	return datasets, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataset(row rowScanner) (metadata.Dataset, error) {
	var (
		item        metadata.Dataset
		columnsJSON []byte
	)
	if err := row.Scan(
		&item.ID,
		&item.Name,
		&item.FileName,
		&item.ObjectKey,
		&item.SizeBytes,
		&item.RowCount,
		&item.ColumnCount,
		&columnsJSON,
		&item.CreatedAt,
	); err != nil {
		return metadata.Dataset{}, err
	}
	if len(columnsJSON) > 0 {
		if err := json.Unmarshal(columnsJSON, &item.Columns); err != nil {
			return metadata.Dataset{}, fmt.Errorf("decode dataset columns: %w", err)
		}
	}
	return item, nil
}

func (r *Repository) CreateConversation(ctx context.Context, id, title string) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO conversation (conversation_id, title)
VALUES ($1, $2)`, id, title)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (r *Repository) GetConversation(ctx context.Context, id string) (metadata.Conversation, error) {
	var item metadata.Conversation
	err := r.db.QueryRowContext(ctx, `
SELECT conversation_id, title, created_at, updated_at
FROM conversation
WHERE conversation_id = $1`, id).Scan(&item.ID, &item.Title, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return metadata.Conversation{}, metadata.ErrNotFound
		}
		return metadata.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return item, nil
}

// SaveMessage appends a message and bumps the conversation's updated_at in
// one transaction.
func (r *Repository) SaveMessage(ctx context.Context, conversationID string, message conversation.Message) error {
	values := message.Metadata
	if values == nil {
		values = map[string]any{}
	}
	metadataJSON, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshal message metadata: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO message (conversation_id, role, content, metadata_json, created_at)
VALUES ($1, $2, $3, $4::jsonb, $5)`,
		conversationID, string(message.Role), message.Content, string(metadataJSON), message.Timestamp.UTC(),
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	result, err := tx.ExecContext(ctx, `
UPDATE conversation
SET updated_at = NOW()
WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch conversation rows affected: %w", err)
	}
	if affected == 0 {
		return metadata.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit message: %w", err)
	}
	return nil
}

func (r *Repository) ListMessages(ctx context.Context, conversationID string, limit int) ([]conversation.Message, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT role, content, metadata_json, created_at
FROM (
	SELECT message_id, role, content, metadata_json, created_at
	FROM message
	WHERE conversation_id = $1
	ORDER BY message_id DESC
	LIMIT $2
) AS recent
ORDER BY message_id ASC`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]conversation.Message, 0)
	for rows.Next() {
		var (
			message      conversation.Message
			role         string
			metadataJSON []byte
		)
		if err := rows.Scan(&role, &message.Content, &metadataJSON, &message.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		message.Role = conversation.Role(role)
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &message.Metadata); err != nil {
				return nil, fmt.Errorf("decode message metadata: %w", err)
			}
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return messages, nil
}

func (r *Repository) RecordQuery(ctx context.Context, record pipeline.QueryRecord) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO query_log (conversation_id, dataset_id, question, generated_sql, execution_status, execution_time_ms, result_rows, error_message, repaired)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		nullString(record.ConversationID),
		nullString(record.DatasetID),
		record.Question,
		record.SQL,
		record.Status,
		record.ExecutionTime.Milliseconds(),
		record.ResultRows,
		nullString(record.ErrorMessage),
		record.Repaired,
	)
	if err != nil {
		return fmt.Errorf("record query: %w", err)
	}
	return nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
