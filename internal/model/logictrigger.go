package model

// TriggerFeature is a closed set: one case per action the widget can offer.
type TriggerFeature string

const (
	FeatureLeadCollection  TriggerFeature = "lead_collection"
	FeatureLinkButton      TriggerFeature = "link_button"
	FeatureMeetingSchedule TriggerFeature = "meeting_schedule"
)

func (f TriggerFeature) Valid() bool {
	switch f {
	case FeatureLeadCollection, FeatureLinkButton, FeatureMeetingSchedule:
		return true
	}
	return false
}

// TriggerConfig is the feature-specific payload. Only the fields relevant to
// the trigger's feature are set.
type TriggerConfig struct {
	ButtonLabel string   `json:"button_label,omitempty"`
	ButtonURL   string   `json:"button_url,omitempty"`
	MeetingURL  string   `json:"meeting_url,omitempty"`
	LeadFields  []string `json:"lead_fields,omitempty"`
}

// LogicTrigger is read-only to the chat pipeline; the dashboard owns writes.
type LogicTrigger struct {
	ID       string         `json:"id"`
	AgentID  string         `json:"agent_id"`
	Feature  TriggerFeature `json:"feature"`
	Keywords []string       `json:"keywords"`
	Config   TriggerConfig  `json:"config"`
	Active   bool           `json:"active"`
}
