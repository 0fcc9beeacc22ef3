package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/chatstack/chatstack/internal/model"
	"github.com/chatstack/chatstack/internal/pkg/dbutil"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var messageFields = []string{"id", "conversation_id", "sender_type", "content", "ctime"}

func (r *MessageRepo) Create(ctx context.Context, msg *model.Message) error {
	data := map[string]interface{}{
		"id":              msg.ID,
		"conversation_id": msg.ConversationID,
		"sender_type":     msg.SenderType,
		"content":         msg.Content,
		"ctime":           msg.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("messages", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *MessageRepo) ListByConversation(ctx context.Context, convID string, limit, offset uint) ([]model.Message, error) {
	where := map[string]interface{}{
		"conversation_id": convID,
		"_orderby":        "ctime asc",
	}
	if limit > 0 {
		where["_limit"] = []uint{offset, limit}
	}
	sqlStr, args, err := builder.BuildSelect("messages", where, messageFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	msgs := make([]model.Message, 0)
	for rows.Next() {
		var msg model.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderType, &msg.Content, &msg.Ctime); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (r *MessageRepo) CountByConversation(ctx context.Context, convID string) (int, error) {
	row := r.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM messages WHERE conversation_id = $1", convID)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
