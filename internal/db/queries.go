package db

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/arag/internal/chunk"
	"github.com/hpungsan/arag/internal/errors"
)

// InsertChunk stores one chunk and returns its id.
func InsertChunk(ctx context.Context, q Querier, filePath string, order int, content string) (int64, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO chunks (file_path, chunk_order, content) VALUES (?, ?, ?)`,
		filePath, order, content,
	)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return id, nil
}

// InsertSource records a content path seen by build. Files that produced no
// chunks (empty or skipped) are recorded too so the path set stays complete.
func InsertSource(ctx context.Context, q Querier, filePath string, chunkCount int, skipReason string) error {
	var reason sql.NullString
	if skipReason != "" {
		reason = sql.NullString{String: skipReason, Valid: true}
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO sources (file_path, chunk_count, skip_reason) VALUES (?, ?, ?)`,
		filePath, chunkCount, reason,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// SourcePaths returns every content path recorded at build time, sorted.
func SourcePaths(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT file_path FROM sources ORDER BY file_path`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return scanStrings(rows)
}

// SkippedSource is a content path that build recorded without chunks.
type SkippedSource struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// SkippedSources returns sources with a skip reason, sorted by path.
func SkippedSources(ctx context.Context, q Querier) ([]SkippedSource, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT file_path, skip_reason
		FROM sources
		WHERE skip_reason IS NOT NULL
		ORDER BY file_path
	`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []SkippedSource
	for rows.Next() {
		var s SkippedSource
		if err := rows.Scan(&s.Path, &s.Reason); err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// DeleteSource forgets a skipped content path. Paths with chunks are kept.
func DeleteSource(ctx context.Context, q Querier, filePath string) error {
	_, err := q.ExecContext(ctx,
		`DELETE FROM sources WHERE file_path = ? AND skip_reason IS NOT NULL`, filePath)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// DistinctPaths returns the set of file paths present in the store, sorted.
func DistinctPaths(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT DISTINCT file_path FROM chunks ORDER BY file_path`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return scanStrings(rows)
}

// CountChunks returns the number of stored chunks.
func CountChunks(ctx context.Context, q Querier) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// ChunksForPath returns a file's chunks in order.
func ChunksForPath(ctx context.Context, q Querier, filePath string) ([]chunk.Chunk, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, file_path, chunk_order, content
		FROM chunks
		WHERE file_path = ?
		ORDER BY chunk_order
	`, filePath)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return scanChunks(rows)
}

// HasEmbeddingColumn reports whether the embedding column has been added.
func HasEmbeddingColumn(ctx context.Context, q Querier) (bool, error) {
	rows, err := q.QueryContext(ctx, `SELECT name FROM pragma_table_info('chunks')`)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, errors.NewInternal(err)
		}
		if strings.EqualFold(name, "embedding") {
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		return false, errors.NewInternal(err)
	}
	return found, nil
}

// EnsureEmbeddingColumn adds the nullable embedding column if missing.
func EnsureEmbeddingColumn(ctx context.Context, q Querier) error {
	ok, err := HasEmbeddingColumn(ctx, q)
	if err != nil || ok {
		return err
	}
	if _, err := q.ExecContext(ctx, `ALTER TABLE chunks ADD COLUMN embedding BLOB`); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// CountEmbedded returns the number of chunks with a non-null embedding.
// A store without the embedding column has none.
func CountEmbedded(ctx context.Context, q Querier) (int, error) {
	ok, err := HasEmbeddingColumn(ctx, q)
	if err != nil || !ok {
		return 0, err
	}
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE embedding IS NOT NULL`).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// HasEmbeddings reports whether any chunk carries an embedding.
func HasEmbeddings(ctx context.Context, q Querier) (bool, error) {
	n, err := CountEmbedded(ctx, q)
	return n > 0, err
}

// PendingChunks returns chunks without an embedding, in id order.
func PendingChunks(ctx context.Context, q Querier) ([]chunk.Chunk, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, file_path, chunk_order, content
		FROM chunks
		WHERE embedding IS NULL
		ORDER BY id
	`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return scanChunks(rows)
}

// ClearEmbeddings resets every embedding to NULL.
func ClearEmbeddings(ctx context.Context, q Querier) error {
	if _, err := q.ExecContext(ctx, `UPDATE chunks SET embedding = NULL`); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// SetEmbedding stores vec for the chunk with the given id.
func SetEmbedding(ctx context.Context, q Querier, id int64, vec []float32) error {
	result, err := q.ExecContext(ctx, `UPDATE chunks SET embedding = ? WHERE id = ?`, EncodeVector(vec), id)
	if err != nil {
		return errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound("chunk")
	}
	return nil
}

// EmbeddingDimension returns the length of the first stored embedding.
// ok is false when no embedding exists yet.
func EmbeddingDimension(ctx context.Context, q Querier) (dim int, ok bool, err error) {
	has, err := HasEmbeddingColumn(ctx, q)
	if err != nil || !has {
		return 0, false, err
	}
	var blob []byte
	err = q.QueryRowContext(ctx, `SELECT embedding FROM chunks WHERE embedding IS NOT NULL ORDER BY id LIMIT 1`).Scan(&blob)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.NewInternal(err)
	}
	vec, err := DecodeVector(blob)
	if err != nil {
		return 0, false, err
	}
	return len(vec), true, nil
}

// LoadEmbeddings returns every stored embedding in id order.
func LoadEmbeddings(ctx context.Context, q Querier) ([]chunk.Vector, error) {
	has, err := HasEmbeddingColumn(ctx, q)
	if err != nil || !has {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, `SELECT id, embedding FROM chunks WHERE embedding IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var vecs []chunk.Vector
	for rows.Next() {
		var (
			id   int64
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, errors.NewInternal(err)
		}
		values, err := DecodeVector(blob)
		if err != nil {
			return nil, err
		}
		vecs = append(vecs, chunk.Vector{ID: id, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return vecs, nil
}

// GetChunksByIDs returns the chunks for ids in the same order as ids.
// Unknown ids are skipped.
func GetChunksByIDs(ctx context.Context, q Querier, ids []int64) ([]chunk.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, file_path, chunk_order, content
		FROM chunks
		WHERE id IN (`+strings.Join(placeholders, ", ")+`)
	`, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	found, err := scanChunks(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]chunk.Chunk, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}
	ordered := make([]chunk.Chunk, 0, len(found))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
		}
	}
	return ordered, nil
}

// scanChunks reads id, file_path, chunk_order, content rows and closes rows.
func scanChunks(rows *sql.Rows) ([]chunk.Chunk, error) {
	defer rows.Close()

	var chunks []chunk.Chunk
	for rows.Next() {
		var c chunk.Chunk
		if err := rows.Scan(&c.ID, &c.FilePath, &c.Order, &c.Content); err != nil {
			return nil, errors.NewInternal(err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return chunks, nil
}

// scanStrings reads single-column string rows and closes rows.
func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}
