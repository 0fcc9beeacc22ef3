package service

import (
	"testing"

	"github.com/chatstack/chatstack/internal/model"
)

func TestMatchKeywords(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		keywords []string
		want     bool
	}{
		{"substring match", "what is your pricing model", []string{"pricing"}, true},
		{"keyword case normalized", "tell me about pricing", []string{" PRICING "}, true},
		{"no match", "hello there", []string{"pricing", "demo"}, false},
		{"blank keywords ignored", "hello there", []string{"  ", ""}, false},
		{"second keyword matches", "book a demo please", []string{"pricing", "demo"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// callers lowercase the message before matching
			if got := matchKeywords(tt.message, tt.keywords); got != tt.want {
				t.Fatalf("matchKeywords(%q, %v) = %v, want %v", tt.message, tt.keywords, got, tt.want)
			}
		})
	}
}

func TestFeatureHint(t *testing.T) {
	tests := []struct {
		name    string
		trigger model.LogicTrigger
		want    string
	}{
		{
			name: "link button with label",
			trigger: model.LogicTrigger{
				Feature: model.FeatureLinkButton,
				Config:  model.TriggerConfig{ButtonLabel: "View pricing", ButtonURL: "https://example.com/p"},
			},
			want: "You may offer: View pricing.",
		},
		{
			name: "link button falls back to url",
			trigger: model.LogicTrigger{
				Feature: model.FeatureLinkButton,
				Config:  model.TriggerConfig{ButtonURL: "https://example.com/p"},
			},
			want: "You may offer: https://example.com/p.",
		},
		{
			name:    "link button without config",
			trigger: model.LogicTrigger{Feature: model.FeatureLinkButton},
			want:    "",
		},
		{
			name:    "meeting",
			trigger: model.LogicTrigger{Feature: model.FeatureMeetingSchedule},
			want:    "You may offer to schedule a meeting.",
		},
		{
			name:    "lead collection",
			trigger: model.LogicTrigger{Feature: model.FeatureLeadCollection},
			want:    "You may ask the visitor for their contact information.",
		},
		{
			name:    "unknown feature",
			trigger: model.LogicTrigger{Feature: "unknown"},
			want:    "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := featureHint(tt.trigger); got != tt.want {
				t.Fatalf("featureHint = %q, want %q", got, tt.want)
			}
		})
	}
}
