package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/chatstack/chatstack/internal/model"
	"github.com/chatstack/chatstack/internal/pkg/dbutil"
	appErr "github.com/chatstack/chatstack/internal/pkg/errors"
)

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

var documentFields = []string{"id", "kb_id", "source", "content", "metadata", "ctime"}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":       doc.ID,
		"kb_id":    doc.KnowledgeBaseID,
		"source":   doc.Source,
		"content":  doc.Content,
		"metadata": string(meta),
		"ctime":    doc.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *DocumentRepo) GetByID(ctx context.Context, docID string) (*model.Document, error) {
	where := map[string]interface{}{
		"id": docID,
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, appErr.ErrNotFound
	}
	doc, err := scanDocument(rows)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *DocumentRepo) ListByKnowledgeBase(ctx context.Context, kbID string) ([]model.Document, error) {
	where := map[string]interface{}{
		"kb_id":    kbID,
		"_orderby": "ctime asc",
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := make([]model.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (r *DocumentRepo) Delete(ctx context.Context, docID string) error {
	sqlStr, args, err := builder.BuildDelete("documents", map[string]interface{}{"id": docID})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

// ListUnembedded returns documents that have no chunks yet, for the backfill
// job to retry after transient embedding outages.
func (r *DocumentRepo) ListUnembedded(ctx context.Context, limit int) ([]model.Document, error) {
	const query = `
		SELECT d.id, d.kb_id, d.source, d.content, d.metadata, d.ctime
		FROM documents d
		LEFT JOIN chunks c ON d.id = c.document_id
		WHERE c.id IS NULL AND d.content <> ''
		ORDER BY d.ctime ASC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := make([]model.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func scanDocument(rows *sql.Rows) (*model.Document, error) {
	var doc model.Document
	var meta string
	if err := rows.Scan(&doc.ID, &doc.KnowledgeBaseID, &doc.Source, &doc.Content, &meta, &doc.Ctime); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
		return nil, err
	}
	return &doc, nil
}
