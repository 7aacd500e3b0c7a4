package survey

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when an event references a question that
	// is not the session's current cursor. The answer store is not touched.
	ErrInvalidState = errors.New("answer does not match the current question")

	// ErrInvalidInput is returned for an out-of-range option index or a
	// confirmation on an empty multi-select. The answer store is not touched.
	ErrInvalidInput = errors.New("invalid selection")
)

// ConfigError describes a malformed catalog definition. Fatal at startup.
type ConfigError struct {
	QuestionID string
	Reason     string
}

func (e *ConfigError) Error() string {
	if e.QuestionID == "" {
		return fmt.Sprintf("invalid survey config: %s", e.Reason)
	}
	return fmt.Sprintf("invalid survey config: question %q: %s", e.QuestionID, e.Reason)
}
