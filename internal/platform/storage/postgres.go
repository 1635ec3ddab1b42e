package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meditrack/meditrack/internal/platform/db"
)

const pgUniqueViolation = "23505"

// PostgresDocuments stores each record as a JSONB row in patient_records.
// The submission timestamp lives in its own TIMESTAMPTZ column and is handed
// back under "submissionDate" as a time.Time.
type PostgresDocuments struct {
	pool *pgxpool.Pool
}

func NewPostgresDocuments(pool *pgxpool.Pool) *PostgresDocuments {
	return &PostgresDocuments{pool: pool}
}

func (p *PostgresDocuments) Name() string { return "postgres" }

func (p *PostgresDocuments) All(ctx context.Context) ([]Document, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, doc, submitted_at FROM patient_records ORDER BY submitted_at DESC NULLS LAST`)
	if err != nil {
		return nil, fmt.Errorf("query patient_records: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var (
			id  string
			doc map[string]any
			at  *time.Time
		)
		if err := rows.Scan(&id, &doc, &at); err != nil {
			return nil, fmt.Errorf("scan patient_records: %w", err)
		}
		if doc == nil {
			doc = Document{}
		}
		doc["id"] = id
		if at != nil {
			doc["submissionDate"] = *at
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patient_records: %w", err)
	}
	return out, nil
}

func (p *PostgresDocuments) Insert(ctx context.Context, id string, doc Document) (string, error) {
	body, at := splitSubmitted(doc)
	_, err := p.pool.Exec(ctx,
		`INSERT INTO patient_records (id, doc, submitted_at) VALUES ($1, $2, $3)`,
		id, body, at)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return "", ErrDocumentExists
		}
		return "", fmt.Errorf("insert patient record: %w", err)
	}
	return id, nil
}

func (p *PostgresDocuments) Replace(ctx context.Context, id string, doc Document) error {
	body, at := splitSubmitted(doc)
	tag, err := p.pool.Exec(ctx,
		`UPDATE patient_records SET doc = $2, submitted_at = $3, updated_at = NOW() WHERE id = $1`,
		id, body, at)
	if err != nil {
		return fmt.Errorf("update patient record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (p *PostgresDocuments) Delete(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM patient_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (p *PostgresDocuments) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

// Stats reports pool statistics for the storage health endpoint.
func (p *PostgresDocuments) Stats() any { return db.GetPoolStats(p.pool) }

func (p *PostgresDocuments) Close(ctx context.Context) error {
	p.pool.Close()
	return nil
}

// splitSubmitted moves a time.Time submissionDate out of the JSON body.
func splitSubmitted(doc Document) (Document, *time.Time) {
	body := withoutID(doc)
	t, ok := body["submissionDate"].(time.Time)
	if !ok {
		return body, nil
	}
	delete(body, "submissionDate")
	return body, &t
}
