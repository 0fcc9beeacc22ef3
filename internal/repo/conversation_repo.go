package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/chatstack/chatstack/internal/model"
	"github.com/chatstack/chatstack/internal/pkg/dbutil"
	appErr "github.com/chatstack/chatstack/internal/pkg/errors"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var conversationFields = []string{"id", "agent_id", "title", "ctime"}

func (r *ConversationRepo) Create(ctx context.Context, conv *model.Conversation) error {
	data := map[string]interface{}{
		"id":       conv.ID,
		"agent_id": conv.AgentID,
		"title":    conv.Title,
		"ctime":    conv.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("conversations", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ConversationRepo) GetByID(ctx context.Context, convID string) (*model.Conversation, error) {
	where := map[string]interface{}{
		"id": convID,
	}
	sqlStr, args, err := builder.BuildSelect("conversations", where, conversationFields)
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
	var conv model.Conversation
	if err := rows.Scan(&conv.ID, &conv.AgentID, &conv.Title, &conv.Ctime); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *ConversationRepo) UpdateTitle(ctx context.Context, convID, title string) error {
	where := map[string]interface{}{
		"id":    convID,
		"title": "",
	}
	update := map[string]interface{}{
		"title": title,
	}
	sqlStr, args, err := builder.BuildUpdate("conversations", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ConversationRepo) ListByAgent(ctx context.Context, agentID string, limit, offset uint) ([]model.Conversation, error) {
	where := map[string]interface{}{
		"agent_id": agentID,
		"_orderby": "ctime desc",
	}
	if limit > 0 {
		where["_limit"] = []uint{offset, limit}
	}
	sqlStr, args, err := builder.BuildSelect("conversations", where, conversationFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	convs := make([]model.Conversation, 0)
	for rows.Next() {
		var conv model.Conversation
		if err := rows.Scan(&conv.ID, &conv.AgentID, &conv.Title, &conv.Ctime); err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}
