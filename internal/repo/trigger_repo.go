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

type TriggerRepo struct {
	db *sql.DB
}

func NewTriggerRepo(db *sql.DB) *TriggerRepo {
	return &TriggerRepo{db: db}
}

var triggerFields = []string{"id", "agent_id", "feature", "keywords", "config", "active"}

func (r *TriggerRepo) Create(ctx context.Context, trigger *model.LogicTrigger) error {
	keywords, err := json.Marshal(trigger.Keywords)
	if err != nil {
		return err
	}
	config, err := json.Marshal(trigger.Config)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":       trigger.ID,
		"agent_id": trigger.AgentID,
		"feature":  string(trigger.Feature),
		"keywords": string(keywords),
		"config":   string(config),
		"active":   trigger.Active,
	}
	sqlStr, args, err := builder.BuildInsert("logic_triggers", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *TriggerRepo) ListByAgent(ctx context.Context, agentID string) ([]model.LogicTrigger, error) {
	return r.list(ctx, map[string]interface{}{"agent_id": agentID})
}

func (r *TriggerRepo) ListActiveByAgent(ctx context.Context, agentID string) ([]model.LogicTrigger, error) {
	return r.list(ctx, map[string]interface{}{
		"agent_id": agentID,
		"active":   true,
	})
}

func (r *TriggerRepo) list(ctx context.Context, where map[string]interface{}) ([]model.LogicTrigger, error) {
	sqlStr, args, err := builder.BuildSelect("logic_triggers", where, triggerFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	triggers := make([]model.LogicTrigger, 0)
	for rows.Next() {
		var item model.LogicTrigger
		var keywords, config string
		if err := rows.Scan(&item.ID, &item.AgentID, &item.Feature, &keywords, &config, &item.Active); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(keywords), &item.Keywords); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(config), &item.Config); err != nil {
			return nil, err
		}
		triggers = append(triggers, item)
	}
	return triggers, rows.Err()
}

func (r *TriggerRepo) Delete(ctx context.Context, agentID, triggerID string) error {
	where := map[string]interface{}{
		"id":       triggerID,
		"agent_id": agentID,
	}
	sqlStr, args, err := builder.BuildDelete("logic_triggers", where)
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
