package survey

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/korjavin/leadbot/models"
)

const sampleCatalog = `welcome:
  title: Добро пожаловать!
  start_button: Начать
  later_button: Позже
final:
  title: Спасибо!
  prereg_button: Предзапись
  done_button: Готово
questions:
  - id: platforms
    prompt: Где вы продаёте?
    mode: single
    options: [Wildberries, Ozon, На обеих]
  - id: reasons
    prompt: Почему это происходило?
    mode: multi
    options: [Сборка, Логистика, Другое]
`

func TestParseCatalog(t *testing.T) {
	c, err := Parse([]byte(sampleCatalog))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 questions, got %d", c.Len())
	}
	if c.Welcome.Title == "" || c.Final.DoneButton == "" {
		t.Fatalf("screen texts not parsed: %+v %+v", c.Welcome, c.Final)
	}
	q, ok := c.ByID("reasons")
	if !ok {
		t.Fatalf("question reasons not found")
	}
	if q.Mode != models.ModeMulti || len(q.Options) != 3 {
		t.Fatalf("unexpected question: %+v", q)
	}
	if c.Questions()[0].ID != "platforms" {
		t.Fatalf("declared order not preserved: %+v", c.Questions())
	}
}

func TestParseCatalogErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"empty", ""},
		{"no questions", "welcome:\n  title: hi\n"},
		{"missing id", "questions:\n  - prompt: p\n    mode: single\n    options: [a]\n"},
		{"bad id", "questions:\n  - id: '@done'\n    prompt: p\n    mode: single\n    options: [a]\n"},
		{"missing prompt", "questions:\n  - id: q1\n    mode: single\n    options: [a]\n"},
		{"bad mode", "questions:\n  - id: q1\n    prompt: p\n    mode: text\n    options: [a]\n"},
		{"empty options", "questions:\n  - id: q1\n    prompt: p\n    mode: single\n    options: []\n"},
		{"duplicate id", "questions:\n  - id: q1\n    prompt: p\n    mode: single\n    options: [a]\n  - id: q1\n    prompt: p\n    mode: single\n    options: [a]\n"},
	}
	for _, tc := range cases {
		if _, err := Parse([]byte(tc.yaml)); err == nil {
			t.Fatalf("%s: expected a config error", tc.name)
		} else if _, ok := err.(*ConfigError); !ok {
			t.Fatalf("%s: expected *ConfigError, got %T: %v", tc.name, err, err)
		}
	}
}

func TestLoadCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "survey.yaml")
	if err := os.WriteFile(path, []byte(sampleCatalog), 0644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 questions, got %d", c.Len())
	}
}

func TestLoadCatalogMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file to fail")
	}
}
