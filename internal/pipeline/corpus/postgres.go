// Package corpus implements the upstream corpus provider: it reads the
// extracted evidence chunks the ingestion pipeline wrote to PostgreSQL and
// hands them to the engine as an ordered snapshot. Chunk IDs are the stable
// strings the extraction stage assigned.
package corpus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/esglens/retrieval-engine/internal/rank"
	"github.com/esglens/retrieval-engine/pkg/logger"
	"github.com/esglens/retrieval-engine/pkg/postgres"
)

// Provider loads evidence chunks for engine fitting.
type Provider struct {
	client *postgres.Client
	logger *slog.Logger
}

// NewProvider wraps an existing postgres client.
func NewProvider(client *postgres.Client) *Provider {
	return &Provider{
		client: client,
		logger: logger.WithComponent("corpus-provider"),
	}
}

// LoadChunks returns every evidence chunk ordered by chunk_id, so repeated
// loads of an unchanged table produce the same snapshot. Metadata is stored
// as a JSON object of string values; a NULL column means no metadata.
func (p *Provider) LoadChunks(ctx context.Context) ([]rank.Document, error) {
	const query = `
		SELECT chunk_id, chunk_text, metadata
		FROM evidence_chunks
		ORDER BY chunk_id`

	rows, err := p.client.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying evidence chunks: %w", err)
	}
	defer rows.Close()

	var docs []rank.Document
	for rows.Next() {
		var (
			doc  rank.Document
			meta sql.NullString
		)
		if err := rows.Scan(&doc.ID, &doc.Text, &meta); err != nil {
			return nil, fmt.Errorf("scanning evidence chunk: %w", err)
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &doc.Metadata); err != nil {
				return nil, fmt.Errorf("decoding metadata for chunk %s: %w", doc.ID, err)
			}
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating evidence chunks: %w", err)
	}
	p.logger.Info("corpus snapshot loaded", "chunks", len(docs))
	return docs, nil
}
