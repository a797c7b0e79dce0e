package nats

import (
	"time"

	"github.com/brojonat/geneva/service/analytics"
)

// ActionEvent is published for every step a chain completes.
// It is published to the subject "actions.{step}" in JetStream.
type ActionEvent struct {
	ID   string `json:"id"`
	Step string `json:"step"`

	// Who and which request
	Account    string `json:"account"`
	Reference  string `json:"reference,omitempty"`
	RequestURL string `json:"request_url,omitempty"`

	// Prior transaction confirmed by the step
	Signature string `json:"signature,omitempty"`

	// Generation details
	Prompt   string `json:"prompt,omitempty"`
	Tier     string `json:"tier,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	AssetID  string `json:"asset_id,omitempty"`

	Timestamp   time.Time `json:"timestamp"`
	PublishedAt time.Time `json:"published_at"`
}

// FromEvent converts an analytics event to an ActionEvent for publishing.
func FromEvent(e analytics.Event) *ActionEvent {
	return &ActionEvent{
		ID:          e.ID,
		Step:        e.Step,
		Account:     e.Account,
		Reference:   e.Reference,
		RequestURL:  e.RequestURL,
		Signature:   e.Signature,
		Prompt:      e.Prompt,
		Tier:        e.Tier,
		ImageURL:    e.ImageURL,
		AssetID:     e.AssetID,
		Timestamp:   e.Timestamp,
		PublishedAt: time.Now().UTC(),
	}
}

// Subject returns the JetStream subject an event is published to.
func (e *ActionEvent) Subject() string {
	return SubjectPrefix + e.Step
}
