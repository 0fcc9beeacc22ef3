package service

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/chatstack/chatstack/internal/model"
	"github.com/chatstack/chatstack/internal/repo"
)

type TriggerService struct {
	triggers *repo.TriggerRepo
	cache    *expirable.LRU[string, []model.LogicTrigger]
}

func NewTriggerService(triggers *repo.TriggerRepo) *TriggerService {
	return &TriggerService{
		triggers: triggers,
		cache:    expirable.NewLRU[string, []model.LogicTrigger](1024, nil, 5*time.Minute),
	}
}

// Evaluate matches the message against the agent's active triggers and
// returns a prompt hint plus the full triggered records for the caller to
// render. No configuration or no match yields ("", nil); a load failure is
// treated the same, the chat turn must not depend on trigger storage.
func (s *TriggerService) Evaluate(ctx context.Context, agentID, message string) (string, []model.LogicTrigger) {
	triggers, err := s.load(ctx, agentID)
	if err != nil {
		logutil.GetLogger(ctx).Warn("load logic triggers failed", zap.String("agent_id", agentID), zap.Error(err))
		return "", nil
	}
	if len(triggers) == 0 {
		return "", nil
	}
	lowered := strings.ToLower(message)
	var hints []string
	var matched []model.LogicTrigger
	for _, trigger := range triggers {
		if !matchKeywords(lowered, trigger.Keywords) {
			continue
		}
		if hint := featureHint(trigger); hint != "" {
			hints = append(hints, hint)
		}
		matched = append(matched, trigger)
	}
	return strings.Join(hints, " "), matched
}

func (s *TriggerService) load(ctx context.Context, agentID string) ([]model.LogicTrigger, error) {
	if cached, ok := s.cache.Get(agentID); ok {
		return cached, nil
	}
	triggers, err := s.triggers.ListActiveByAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	s.cache.Add(agentID, triggers)
	return triggers, nil
}

func matchKeywords(loweredMessage string, keywords []string) bool {
	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword != "" && strings.Contains(loweredMessage, keyword) {
			return true
		}
	}
	return false
}

func featureHint(trigger model.LogicTrigger) string {
	switch trigger.Feature {
	case model.FeatureLinkButton:
		label := trigger.Config.ButtonLabel
		if label == "" {
			label = trigger.Config.ButtonURL
		}
		if label == "" {
			return ""
		}
		return "You may offer: " + label + "."
	case model.FeatureMeetingSchedule:
		return "You may offer to schedule a meeting."
	case model.FeatureLeadCollection:
		return "You may ask the visitor for their contact information."
	}
	return ""
}
