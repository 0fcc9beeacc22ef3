package service

import (
	"context"
	"strings"
	"time"

	"github.com/chatstack/chatstack/internal/model"
	appErr "github.com/chatstack/chatstack/internal/pkg/errors"
	"github.com/chatstack/chatstack/internal/repo"
)

const (
	defaultMaxTokens   = 600
	defaultTemperature = float32(0.7)
)

type AgentService struct {
	agents   *repo.AgentRepo
	triggers *repo.TriggerRepo
}

func NewAgentService(agents *repo.AgentRepo, triggers *repo.TriggerRepo) *AgentService {
	return &AgentService{agents: agents, triggers: triggers}
}

func (s *AgentService) Create(ctx context.Context, agent *model.Agent) (*model.Agent, error) {
	agent.Name = strings.TrimSpace(agent.Name)
	if agent.Name == "" {
		return nil, appErr.ErrInvalid
	}
	if agent.MaxTokens <= 0 {
		agent.MaxTokens = defaultMaxTokens
	}
	if agent.Temperature <= 0 {
		agent.Temperature = defaultTemperature
	}
	now := time.Now().UnixMilli()
	agent.ID = newID()
	agent.Ctime = now
	agent.Mtime = now
	if err := s.agents.Create(ctx, agent); err != nil {
		return nil, err
	}
	return agent, nil
}

func (s *AgentService) Get(ctx context.Context, agentID string) (*model.Agent, error) {
	return s.agents.GetByID(ctx, agentID)
}

func (s *AgentService) List(ctx context.Context) ([]model.Agent, error) {
	return s.agents.List(ctx)
}

func (s *AgentService) Update(ctx context.Context, agent *model.Agent) error {
	agent.Name = strings.TrimSpace(agent.Name)
	if agent.ID == "" || agent.Name == "" {
		return appErr.ErrInvalid
	}
	agent.Mtime = time.Now().UnixMilli()
	return s.agents.Update(ctx, agent)
}

func (s *AgentService) Delete(ctx context.Context, agentID string) error {
	return s.agents.Delete(ctx, agentID)
}

func (s *AgentService) AddTrigger(ctx context.Context, trigger *model.LogicTrigger) (*model.LogicTrigger, error) {
	if trigger.AgentID == "" || !trigger.Feature.Valid() || len(trigger.Keywords) == 0 {
		return nil, appErr.ErrInvalid
	}
	if _, err := s.agents.GetByID(ctx, trigger.AgentID); err != nil {
		return nil, err
	}
	trigger.ID = newID()
	trigger.Active = true
	if err := s.triggers.Create(ctx, trigger); err != nil {
		return nil, err
	}
	return trigger, nil
}

func (s *AgentService) ListTriggers(ctx context.Context, agentID string) ([]model.LogicTrigger, error) {
	if _, err := s.agents.GetByID(ctx, agentID); err != nil {
		return nil, err
	}
	return s.triggers.ListByAgent(ctx, agentID)
}

func (s *AgentService) RemoveTrigger(ctx context.Context, agentID, triggerID string) error {
	return s.triggers.Delete(ctx, agentID, triggerID)
}
