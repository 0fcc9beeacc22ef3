package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/chatstack/chatstack/internal/model"
	"github.com/chatstack/chatstack/internal/pkg/response"
	"github.com/chatstack/chatstack/internal/service"
)

type AgentHandler struct {
	agents *service.AgentService
}

func NewAgentHandler(agents *service.AgentService) *AgentHandler {
	return &AgentHandler{agents: agents}
}

type agentRequest struct {
	Name         string  `json:"name"`
	SystemPrompt string  `json:"system_prompt"`
	Personality  string  `json:"personality"`
	Temperature  float32 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
}

func (h *AgentHandler) Create(c *gin.Context) {
	var req agentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	agent, err := h.agents.Create(c.Request.Context(), &model.Agent{
		Name:         req.Name,
		SystemPrompt: req.SystemPrompt,
		Personality:  req.Personality,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, agent)
}

func (h *AgentHandler) Get(c *gin.Context) {
	agent, err := h.agents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, agent)
}

func (h *AgentHandler) List(c *gin.Context) {
	agents, err := h.agents.List(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, agents)
}

func (h *AgentHandler) Update(c *gin.Context) {
	var req agentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	agent := &model.Agent{
		ID:           c.Param("id"),
		Name:         req.Name,
		SystemPrompt: req.SystemPrompt,
		Personality:  req.Personality,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
	}
	if err := h.agents.Update(c.Request.Context(), agent); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, agent)
}

func (h *AgentHandler) Delete(c *gin.Context) {
	if err := h.agents.Delete(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, nil)
}

type triggerRequest struct {
	Feature  string              `json:"feature"`
	Keywords []string            `json:"keywords"`
	Config   model.TriggerConfig `json:"config"`
}

func (h *AgentHandler) AddTrigger(c *gin.Context) {
	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	trigger, err := h.agents.AddTrigger(c.Request.Context(), &model.LogicTrigger{
		AgentID:  c.Param("id"),
		Feature:  model.TriggerFeature(req.Feature),
		Keywords: req.Keywords,
		Config:   req.Config,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, trigger)
}

func (h *AgentHandler) ListTriggers(c *gin.Context) {
	triggers, err := h.agents.ListTriggers(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, triggers)
}

func (h *AgentHandler) RemoveTrigger(c *gin.Context) {
	if err := h.agents.RemoveTrigger(c.Request.Context(), c.Param("id"), c.Param("trigger_id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, nil)
}
