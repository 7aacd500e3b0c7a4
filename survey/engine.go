package survey

import (
	"time"

	"github.com/google/uuid"

	"github.com/korjavin/leadbot/models"
	"github.com/korjavin/leadbot/session"
)

// ActionKind tells the caller what to do after an event was applied.
type ActionKind int

const (
	// ActionRender means a new question should be shown to the user.
	ActionRender ActionKind = iota
	// ActionAwaitConfirm means the same multi-select question should be
	// re-rendered with updated selection marks.
	ActionAwaitConfirm
	// ActionComplete means the survey finished and Record carries the
	// completed snapshot.
	ActionComplete
)

// Action is the outcome of applying one inbound event.
type Action struct {
	Kind     ActionKind
	Question *models.Question
	Record   *models.Lead
}

// Engine advances sessions through the catalog. It is the only component
// that mutates a session's answer store. The engine itself is stateless, so
// one instance serves all users.
type Engine struct {
	catalog *Catalog
}

func NewEngine(catalog *Catalog) *Engine {
	return &Engine{catalog: catalog}
}

// Catalog returns the catalog the engine runs on.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Start resets the session to a fresh survey: new lead id, new start
// timestamp, empty answer store, cursor at the welcome screen.
func (e *Engine) Start(s *session.Session, username string, utm map[string]string) {
	s.LeadID = uuid.NewString()
	s.Username = username
	s.UTM = utm
	s.StartedAt = time.Now()
	s.Cursor = session.CursorWelcome
	s.Answers = make(map[string][]string)
}

// Begin acknowledges the welcome screen and returns the first question to
// render. The cursor moves to the first catalog entry not yet answered.
func (e *Engine) Begin(s *session.Session) *models.Question {
	q := e.nextQuestion(s)
	if q == nil {
		// Can only happen with an empty store, which Parse rejects.
		s.Cursor = session.CursorDone
		return nil
	}
	s.Cursor = q.ID
	return q
}

// Apply records the selection of option optionIdx on question questionID.
//
// The event is rejected with ErrInvalidState when questionID is not the
// session's cursor, and with ErrInvalidInput when the index is out of
// bounds. Rejected events never mutate the answer store.
func (e *Engine) Apply(s *session.Session, questionID string, optionIdx int) (Action, error) {
	if s.Cursor != questionID {
		return Action{}, ErrInvalidState
	}
	q, ok := e.catalog.ByID(questionID)
	if !ok {
		return Action{}, ErrInvalidState
	}
	if optionIdx < 0 || optionIdx >= len(q.Options) {
		return Action{}, ErrInvalidInput
	}

	label := q.Options[optionIdx]
	if q.Mode == models.ModeMulti {
		e.toggle(s, questionID, label)
		return Action{Kind: ActionAwaitConfirm, Question: q}, nil
	}

	s.Answers[questionID] = []string{label}
	return e.advance(s), nil
}

// Confirm finishes a multi-select question. At least one option must be
// selected; an empty selection is rejected with ErrInvalidInput and the
// cursor stays put.
func (e *Engine) Confirm(s *session.Session, questionID string) (Action, error) {
	if s.Cursor != questionID {
		return Action{}, ErrInvalidState
	}
	q, ok := e.catalog.ByID(questionID)
	if !ok || q.Mode != models.ModeMulti {
		return Action{}, ErrInvalidInput
	}
	if len(s.Answers[questionID]) == 0 {
		return Action{}, ErrInvalidInput
	}
	return e.advance(s), nil
}

// Selected reports whether the label is currently toggled on for the
// question. Used for rendering selection marks.
func (e *Engine) Selected(s *session.Session, questionID, label string) bool {
	for _, v := range s.Answers[questionID] {
		if v == label {
			return true
		}
	}
	return false
}

// toggle flips membership of label in the question's answer set. Toggling
// the last label off removes the entry entirely, so the question does not
// count as answered.
func (e *Engine) toggle(s *session.Session, questionID, label string) {
	current := s.Answers[questionID]
	for i, v := range current {
		if v == label {
			current = append(current[:i], current[i+1:]...)
			if len(current) == 0 {
				delete(s.Answers, questionID)
			} else {
				s.Answers[questionID] = current
			}
			return
		}
	}
	s.Answers[questionID] = append(current, label)
}

// advance moves the cursor to the next unanswered question, or produces the
// completed record when none is left.
func (e *Engine) advance(s *session.Session) Action {
	if q := e.nextQuestion(s); q != nil {
		s.Cursor = q.ID
		return Action{Kind: ActionRender, Question: q}
	}
	s.Cursor = session.CursorDone
	return Action{Kind: ActionComplete, Record: e.snapshot(s)}
}

// nextQuestion picks the first catalog entry, in declared order, whose id
// is not present in the answer store. Ids answered before a mid-survey
// restart are deliberately skipped rather than re-asked.
func (e *Engine) nextQuestion(s *session.Session) *models.Question {
	for i := range e.catalog.questions {
		q := &e.catalog.questions[i]
		if _, answered := s.Answers[q.ID]; !answered {
			return q
		}
	}
	return nil
}

// snapshot copies the session into an immutable completed record.
func (e *Engine) snapshot(s *session.Session) *models.Lead {
	answers := make(map[string][]string, len(s.Answers))
	for id, vals := range s.Answers {
		answers[id] = append([]string(nil), vals...)
	}
	utm := make(map[string]string, len(s.UTM))
	for k, v := range s.UTM {
		utm[k] = v
	}
	return &models.Lead{
		LeadID:      s.LeadID,
		UserID:      s.UserID,
		Username:    s.Username,
		UTM:         utm,
		StartedAt:   s.StartedAt,
		CompletedAt: time.Now(),
		Answers:     answers,
	}
}
