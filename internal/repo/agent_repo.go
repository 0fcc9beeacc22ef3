package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/chatstack/chatstack/internal/model"
	"github.com/chatstack/chatstack/internal/pkg/dbutil"
	appErr "github.com/chatstack/chatstack/internal/pkg/errors"
)

type AgentRepo struct {
	db *sql.DB
}

func NewAgentRepo(db *sql.DB) *AgentRepo {
	return &AgentRepo{db: db}
}

var agentFields = []string{"id", "name", "system_prompt", "personality", "temperature", "max_tokens", "ctime", "mtime"}

func (r *AgentRepo) Create(ctx context.Context, agent *model.Agent) error {
	data := map[string]interface{}{
		"id":            agent.ID,
		"name":          agent.Name,
		"system_prompt": agent.SystemPrompt,
		"personality":   agent.Personality,
		"temperature":   agent.Temperature,
		"max_tokens":    agent.MaxTokens,
		"ctime":         agent.Ctime,
		"mtime":         agent.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("agents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	if dbutil.IsConflict(err) {
		return appErr.ErrConflict
	}
	return err
}

func (r *AgentRepo) GetByID(ctx context.Context, agentID string) (*model.Agent, error) {
	where := map[string]interface{}{
		"id": agentID,
	}
	sqlStr, args, err := builder.BuildSelect("agents", where, agentFields)
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
	var agent model.Agent
	if err := rows.Scan(&agent.ID, &agent.Name, &agent.SystemPrompt, &agent.Personality, &agent.Temperature, &agent.MaxTokens, &agent.Ctime, &agent.Mtime); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *AgentRepo) Update(ctx context.Context, agent *model.Agent) error {
	where := map[string]interface{}{
		"id": agent.ID,
	}
	update := map[string]interface{}{
		"name":          agent.Name,
		"system_prompt": agent.SystemPrompt,
		"personality":   agent.Personality,
		"temperature":   agent.Temperature,
		"max_tokens":    agent.MaxTokens,
		"mtime":         agent.Mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("agents", where, update)
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

func (r *AgentRepo) Delete(ctx context.Context, agentID string) error {
	sqlStr, args, err := builder.BuildDelete("agents", map[string]interface{}{"id": agentID})
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

func (r *AgentRepo) List(ctx context.Context) ([]model.Agent, error) {
	where := map[string]interface{}{
		"_orderby": "ctime desc",
	}
	sqlStr, args, err := builder.BuildSelect("agents", where, agentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	agents := make([]model.Agent, 0)
	for rows.Next() {
		var agent model.Agent
		if err := rows.Scan(&agent.ID, &agent.Name, &agent.SystemPrompt, &agent.Personality, &agent.Temperature, &agent.MaxTokens, &agent.Ctime, &agent.Mtime); err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}
