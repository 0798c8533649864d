package sqlite

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/Gubeli/substans-kb/internal/core/ports/driven"
)

// LexicalIndexStore returns a LexicalIndexStore backed by this store.
func (s *Store) LexicalIndexStore() driven.LexicalIndexStore {
	return &lexicalIndexStore{store: s}
}

// VectorIndexStore returns a VectorIndexStore backed by this store.
func (s *Store) VectorIndexStore() driven.VectorIndexStore {
	return &vectorIndexStore{store: s}
}

// ==================== Lexical Index Store ====================

// lexicalIndexStore implements driven.LexicalIndexStore.
type lexicalIndexStore struct {
	store *Store
}

var _ driven.LexicalIndexStore = (*lexicalIndexStore)(nil)

// SaveDocument stores one document's postings, replacing previous state.
func (l *lexicalIndexStore) SaveDocument(ctx context.Context, doc driven.PersistedPostings) error {
	tx, err := l.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM postings WHERE doc_id = ?", doc.DocID); err != nil {
		return fmt.Errorf("clearing postings: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO lexical_docs (doc_id, gen, checksum, length)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			gen = excluded.gen,
			checksum = excluded.checksum,
			length = excluded.length
	`, doc.DocID, doc.Gen, doc.Checksum, doc.Length)
	if err != nil {
		return fmt.Errorf("saving lexical doc: %w", err)
	}

	for term, positions := range doc.Terms {
		encoded, err := json.Marshal(positions)
		if err != nil {
			return fmt.Errorf("marshalling positions: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO postings (term, doc_id, positions) VALUES (?, ?, ?)",
			term, doc.DocID, string(encoded))
		if err != nil {
			return fmt.Errorf("saving posting %q: %w", term, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

// DeleteDocument removes a document's persisted postings.
func (l *lexicalIndexStore) DeleteDocument(ctx context.Context, docID string) error {
	tx, err := l.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM postings WHERE doc_id = ?", docID); err != nil {
		return fmt.Errorf("deleting postings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM lexical_docs WHERE doc_id = ?", docID); err != nil {
		return fmt.Errorf("deleting lexical doc: %w", err)
	}
	return tx.Commit()
}

// DeleteAllDocuments clears all persisted postings.
func (l *lexicalIndexStore) DeleteAllDocuments(ctx context.Context) error {
	tx, err := l.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM postings"); err != nil {
		return fmt.Errorf("clearing postings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM lexical_docs"); err != nil {
		return fmt.Errorf("clearing lexical docs: %w", err)
	}
	return tx.Commit()
}

// LoadDocuments returns every persisted document's postings.
func (l *lexicalIndexStore) LoadDocuments(ctx context.Context) ([]driven.PersistedPostings, error) {
	rows, err := l.store.db.QueryContext(ctx,
		"SELECT doc_id, gen, checksum, length FROM lexical_docs ORDER BY doc_id ASC")
	if err != nil {
		return nil, fmt.Errorf("querying lexical docs: %w", err)
	}
	defer rows.Close()

	var docs []driven.PersistedPostings
	for rows.Next() {
		var doc driven.PersistedPostings
		if err := rows.Scan(&doc.DocID, &doc.Gen, &doc.Checksum, &doc.Length); err != nil {
			return nil, fmt.Errorf("scanning lexical doc: %w", err)
		}
		doc.Terms = make(map[string][]int)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating lexical docs: %w", err)
	}

	byID := make(map[string]*driven.PersistedPostings, len(docs))
	for i := range docs {
		byID[docs[i].DocID] = &docs[i]
	}

	postingRows, err := l.store.db.QueryContext(ctx,
		"SELECT term, doc_id, positions FROM postings")
	if err != nil {
		return nil, fmt.Errorf("querying postings: %w", err)
	}
	defer postingRows.Close()

	for postingRows.Next() {
		var term, docID, encoded string
		if err := postingRows.Scan(&term, &docID, &encoded); err != nil {
			return nil, fmt.Errorf("scanning posting: %w", err)
		}
		doc, ok := byID[docID]
		if !ok {
			continue
		}
		var positions []int
		if err := json.Unmarshal([]byte(encoded), &positions); err != nil {
			return nil, fmt.Errorf("unmarshalling positions for %q: %w", term, err)
		}
		doc.Terms[term] = positions
	}
	if err := postingRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating postings: %w", err)
	}
	return docs, nil
}

// ==================== Vector Index Store ====================

// vectorIndexStore implements driven.VectorIndexStore.
type vectorIndexStore struct {
	store *Store
}

var _ driven.VectorIndexStore = (*vectorIndexStore)(nil)

// SaveVector stores one document's embedding, replacing previous state.
func (v *vectorIndexStore) SaveVector(ctx context.Context, vec driven.PersistedVector) error {
	_, err := v.store.db.ExecContext(ctx, `
		INSERT INTO vectors (doc_id, gen, checksum, embedding)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			gen = excluded.gen,
			checksum = excluded.checksum,
			embedding = excluded.embedding
	`, vec.DocID, vec.Gen, vec.Checksum, encodeVector(vec.Embedding))
	if err != nil {
		return fmt.Errorf("saving vector: %w", err)
	}
	return nil
}

// DeleteVector removes a document's persisted embedding.
func (v *vectorIndexStore) DeleteVector(ctx context.Context, docID string) error {
	_, err := v.store.db.ExecContext(ctx, "DELETE FROM vectors WHERE doc_id = ?", docID)
	if err != nil {
		return fmt.Errorf("deleting vector: %w", err)
	}
	return nil
}

// DeleteAllVectors clears all persisted embeddings.
func (v *vectorIndexStore) DeleteAllVectors(ctx context.Context) error {
	_, err := v.store.db.ExecContext(ctx, "DELETE FROM vectors")
	if err != nil {
		return fmt.Errorf("clearing vectors: %w", err)
	}
	return nil
}

// LoadVectors returns every persisted embedding.
func (v *vectorIndexStore) LoadVectors(ctx context.Context) ([]driven.PersistedVector, error) {
	rows, err := v.store.db.QueryContext(ctx,
		"SELECT doc_id, gen, checksum, embedding FROM vectors ORDER BY doc_id ASC")
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var vectors []driven.PersistedVector
	for rows.Next() {
		var vec driven.PersistedVector
		var blob []byte
		if err := rows.Scan(&vec.DocID, &vec.Gen, &vec.Checksum, &blob); err != nil {
			return nil, fmt.Errorf("scanning vector: %w", err)
		}
		vec.Embedding, err = decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding vector for %s: %w", vec.DocID, err)
		}
		vectors = append(vectors, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vectors: %w", err)
	}
	return vectors, nil
}

// encodeVector packs an embedding as little-endian float32 bytes.
func encodeVector(embedding []float32) []byte {
	buf := make([]byte, 4*len(embedding))
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// decodeVector unpacks a little-endian float32 blob.
func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 4", len(blob))
	}
	embedding := make([]float32, len(blob)/4)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return embedding, nil
}
