package models

import "time"

// Mode tells how a question collects its answer.
type Mode string

const (
	// ModeSingle advances to the next question as soon as one option is picked.
	ModeSingle Mode = "single"
	// ModeMulti lets the user toggle options and advances only on an explicit
	// confirmation with at least one option selected.
	ModeMulti Mode = "multi"
)

// Question is one entry of the survey catalog. Options are referenced by
// index in callback data, never by label text.
type Question struct {
	ID      string   `yaml:"id"`
	Prompt  string   `yaml:"prompt"`
	Mode    Mode     `yaml:"mode"`
	Options []string `yaml:"options"`
}

// Lead is the immutable snapshot of one completed survey. It is built once
// at completion time and handed to the external sinks as-is.
type Lead struct {
	LeadID      string
	UserID      int64
	Username    string
	UTM         map[string]string
	StartedAt   time.Time
	CompletedAt time.Time
	// Answers maps question id to the selected option labels. Single-select
	// questions hold exactly one label.
	Answers map[string][]string
}
