package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/korjavin/leadbot/models"
	"github.com/korjavin/leadbot/survey"
)

const testCatalog = `questions:
  - id: platforms
    prompt: Где вы продаёте?
    mode: single
    options: [Wildberries, Ozon]
  - id: reasons
    prompt: Почему это происходило?
    mode: multi
    options: [Сборка, Логистика]
`

type fakeAppender struct {
	rows [][]interface{}
	err  error
}

func (f *fakeAppender) Append(_ context.Context, row []interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, row)
	return nil
}

type fakeNotifier struct {
	texts []string
	err   error
}

func (f *fakeNotifier) Notify(text string) error {
	if f.err != nil {
		return f.err
	}
	f.texts = append(f.texts, text)
	return nil
}

type fakeBackup struct {
	leads []*models.Lead
}

func (f *fakeBackup) BackupLead(lead *models.Lead) error {
	f.leads = append(f.leads, lead)
	return nil
}

func testLead() *models.Lead {
	start := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	return &models.Lead{
		LeadID:      "lead-1",
		UserID:      42,
		Username:    "tester",
		UTM:         map[string]string{"utm_source": "vk", "utm_term": "seller"},
		StartedAt:   start,
		CompletedAt: start.Add(2 * time.Minute),
		Answers: map[string][]string{
			"platforms": {"Ozon"},
			"reasons":   {"Сборка", "Логистика"},
		},
	}
}

func testReporter(t *testing.T, sink Appender, notifier Notifier, backup Backup) *Reporter {
	t.Helper()
	catalog, err := survey.Parse([]byte(testCatalog))
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	return New(catalog, sink, notifier, backup)
}

func TestRowColumnOrder(t *testing.T) {
	r := testReporter(t, nil, nil, nil)
	lead := testLead()

	row := r.Row(lead)
	want := []interface{}{
		"lead-1",
		"42",
		"tester",
		"2026-08-29T10:00:00Z",
		"2026-08-29T10:02:00Z",
		"Ozon",
		"Сборка, Логистика",
		// utm_source, medium, campaign, term, content
		"vk", "", "", "seller", "",
	}
	if len(row) != len(want) {
		t.Fatalf("expected %d columns, got %d: %v", len(want), len(row), row)
	}
	for i := range want {
		if row[i] != want[i] {
			t.Fatalf("column %d: expected %q, got %q", i, want[i], row[i])
		}
	}

	headers := r.Headers()
	if len(headers) != len(row) {
		t.Fatalf("headers/row mismatch: %d vs %d", len(headers), len(row))
	}
	if headers[0] != "Lead ID" || headers[5] != "Где вы продаёте?" {
		t.Fatalf("unexpected headers: %v", headers)
	}
}

func TestReportHappyPath(t *testing.T) {
	sink := &fakeAppender{}
	notifier := &fakeNotifier{}
	backup := &fakeBackup{}
	r := testReporter(t, sink, notifier, backup)

	saved := r.Report(context.Background(), testLead())
	if !saved {
		t.Fatalf("expected saved=true")
	}
	if len(sink.rows) != 1 {
		t.Fatalf("expected one appended row, got %d", len(sink.rows))
	}
	if len(backup.leads) != 0 {
		t.Fatalf("backup used on the happy path")
	}
	if len(notifier.texts) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.texts))
	}
	if !strings.Contains(notifier.texts[0], "✅ Сохранено") {
		t.Fatalf("notification should report a saved lead:\n%s", notifier.texts[0])
	}
}

func TestReportSinkFailureFallsBackToBackup(t *testing.T) {
	sink := &fakeAppender{err: errors.New("quota exceeded")}
	notifier := &fakeNotifier{}
	backup := &fakeBackup{}
	r := testReporter(t, sink, notifier, backup)

	saved := r.Report(context.Background(), testLead())
	if saved {
		t.Fatalf("expected saved=false when the sink fails")
	}
	if len(backup.leads) != 1 {
		t.Fatalf("expected the lead in the local backup, got %d", len(backup.leads))
	}
	// The channel is still notified, with the failure spelled out.
	if len(notifier.texts) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.texts))
	}
	if !strings.Contains(notifier.texts[0], "Не сохранено") {
		t.Fatalf("notification should report the failed save:\n%s", notifier.texts[0])
	}
}

func TestReportNotifierFailureIsSwallowed(t *testing.T) {
	sink := &fakeAppender{}
	notifier := &fakeNotifier{err: errors.New("channel gone")}
	r := testReporter(t, sink, notifier, &fakeBackup{})

	if saved := r.Report(context.Background(), testLead()); !saved {
		t.Fatalf("notifier failure must not affect the save outcome")
	}
}

func TestReportWithoutSinkUsesBackup(t *testing.T) {
	backup := &fakeBackup{}
	r := testReporter(t, nil, nil, backup)

	if saved := r.Report(context.Background(), testLead()); saved {
		t.Fatalf("expected saved=false without a sink")
	}
	if len(backup.leads) != 1 {
		t.Fatalf("expected the lead in the local backup")
	}
}

func TestSummaryListsAllQuestions(t *testing.T) {
	r := testReporter(t, nil, nil, nil)
	lead := testLead()
	delete(lead.Answers, "reasons")

	text := r.Summary(lead, true)
	if !strings.Contains(text, "Где вы продаёте?: Ozon") {
		t.Fatalf("summary misses an answered question:\n%s", text)
	}
	if !strings.Contains(text, "Почему это происходило?: Не указано") {
		t.Fatalf("summary should placeholder unanswered questions:\n%s", text)
	}
	if !strings.Contains(text, "utm_source: vk") {
		t.Fatalf("summary misses attribution tags:\n%s", text)
	}
}
