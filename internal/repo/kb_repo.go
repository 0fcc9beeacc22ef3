package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/chatstack/chatstack/internal/model"
	"github.com/chatstack/chatstack/internal/pkg/dbutil"
	appErr "github.com/chatstack/chatstack/internal/pkg/errors"
)

type KnowledgeBaseRepo struct {
	db *sql.DB
}

func NewKnowledgeBaseRepo(db *sql.DB) *KnowledgeBaseRepo {
	return &KnowledgeBaseRepo{db: db}
}

var kbFields = []string{"id", "agent_id", "name", "kind", "ctime"}

func (r *KnowledgeBaseRepo) Create(ctx context.Context, kb *model.KnowledgeBase) error {
	data := map[string]interface{}{
		"id":       kb.ID,
		"agent_id": kb.AgentID,
		"name":     kb.Name,
		"kind":     kb.Kind,
		"ctime":    kb.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("knowledge_bases", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *KnowledgeBaseRepo) GetByID(ctx context.Context, kbID string) (*model.KnowledgeBase, error) {
	where := map[string]interface{}{
		"id": kbID,
	}
	sqlStr, args, err := builder.BuildSelect("knowledge_bases", where, kbFields)
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
	var kb model.KnowledgeBase
	if err := rows.Scan(&kb.ID, &kb.AgentID, &kb.Name, &kb.Kind, &kb.Ctime); err != nil {
		return nil, err
	}
	return &kb, nil
}

func (r *KnowledgeBaseRepo) ListByAgent(ctx context.Context, agentID string) ([]model.KnowledgeBase, error) {
	where := map[string]interface{}{
		"agent_id": agentID,
		"_orderby": "ctime asc",
	}
	sqlStr, args, err := builder.BuildSelect("knowledge_bases", where, kbFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	kbs := make([]model.KnowledgeBase, 0)
	for rows.Next() {
		var kb model.KnowledgeBase
		if err := rows.Scan(&kb.ID, &kb.AgentID, &kb.Name, &kb.Kind, &kb.Ctime); err != nil {
			return nil, err
		}
		kbs = append(kbs, kb)
	}
	return kbs, rows.Err()
}

func (r *KnowledgeBaseRepo) UpdateKind(ctx context.Context, kbID, kind string) error {
	where := map[string]interface{}{
		"id": kbID,
	}
	update := map[string]interface{}{
		"kind": kind,
	}
	sqlStr, args, err := builder.BuildUpdate("knowledge_bases", where, update)
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

// Delete removes the knowledge base; documents and chunks go with it via
// cascading foreign keys.
func (r *KnowledgeBaseRepo) Delete(ctx context.Context, kbID string) error {
	sqlStr, args, err := builder.BuildDelete("knowledge_bases", map[string]interface{}{"id": kbID})
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
