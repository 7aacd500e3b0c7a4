package survey

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/korjavin/leadbot/models"
)

// WelcomeScreen holds the texts shown before the first question.
type WelcomeScreen struct {
	Title       string `yaml:"title"`
	StartButton string `yaml:"start_button"`
	LaterButton string `yaml:"later_button"`
}

// FinalScreen holds the texts shown after the last answer.
type FinalScreen struct {
	Title        string `yaml:"title"`
	PreregButton string `yaml:"prereg_button"`
	DoneButton   string `yaml:"done_button"`
}

// Catalog is the ordered, immutable list of survey questions plus the
// surrounding screen texts. Loaded once at startup and read-only after.
type Catalog struct {
	Welcome   WelcomeScreen
	Final     FinalScreen
	questions []models.Question
	index     map[string]int
}

type catalogFile struct {
	Welcome   WelcomeScreen     `yaml:"welcome"`
	Final     FinalScreen       `yaml:"final"`
	Questions []models.Question `yaml:"questions"`
}

// Question ids end up in callback data and sheet columns, so keep them
// machine-friendly. The "@" cursor sentinels can never collide with these.
var idPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// Load reads and validates a catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read survey config: %w", err)
	}
	return Parse(data)
}

// Parse builds a catalog from raw YAML, validating every question.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("yaml: %v", err)}
	}
	if len(file.Questions) == 0 {
		return nil, &ConfigError{Reason: "no questions defined"}
	}

	index := make(map[string]int, len(file.Questions))
	for i, q := range file.Questions {
		if q.ID == "" {
			return nil, &ConfigError{Reason: fmt.Sprintf("question #%d has no id", i+1)}
		}
		if !idPattern.MatchString(q.ID) {
			return nil, &ConfigError{QuestionID: q.ID, Reason: "id must match [a-z0-9_]+"}
		}
		if _, dup := index[q.ID]; dup {
			return nil, &ConfigError{QuestionID: q.ID, Reason: "duplicate id"}
		}
		if q.Prompt == "" {
			return nil, &ConfigError{QuestionID: q.ID, Reason: "missing prompt"}
		}
		if q.Mode != models.ModeSingle && q.Mode != models.ModeMulti {
			return nil, &ConfigError{QuestionID: q.ID, Reason: fmt.Sprintf("unknown mode %q", q.Mode)}
		}
		if len(q.Options) == 0 {
			return nil, &ConfigError{QuestionID: q.ID, Reason: "empty options"}
		}
		index[q.ID] = i
	}

	return &Catalog{
		Welcome:   file.Welcome,
		Final:     file.Final,
		questions: file.Questions,
		index:     index,
	}, nil
}

// Questions returns the catalog entries in declared order.
func (c *Catalog) Questions() []models.Question {
	return c.questions
}

// Len returns the number of questions.
func (c *Catalog) Len() int {
	return len(c.questions)
}

// ByID looks a question up by id.
func (c *Catalog) ByID(id string) (*models.Question, bool) {
	i, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return &c.questions[i], true
}
