// Package report turns a completed lead into the flat sheet row, pushes it
// to the external sinks and formats the channel notification.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/korjavin/leadbot/logx"
	"github.com/korjavin/leadbot/models"
	"github.com/korjavin/leadbot/survey"
	"github.com/korjavin/leadbot/utm"
)

// Appender is the tabular-store sink. Implementations retry internally;
// appends are not deduplicated, so a retried call may produce a duplicate
// row.
type Appender interface {
	Append(ctx context.Context, row []interface{}) error
}

// Notifier delivers the human-readable lead summary to the admin channel.
type Notifier interface {
	Notify(text string) error
}

// Backup keeps a local copy of leads the sheet refused.
type Backup interface {
	BackupLead(lead *models.Lead) error
}

// Reporter hands completed leads to the external sinks. Sink failures are
// never fatal: the lead ends up either in the sheet or in the local backup,
// and the notification says which.
type Reporter struct {
	catalog  *survey.Catalog
	sink     Appender
	notifier Notifier
	backup   Backup
}

// New builds a reporter. sink may be nil when the sheet integration is
// disabled; every lead then goes straight to the backup.
func New(catalog *survey.Catalog, sink Appender, notifier Notifier, backup Backup) *Reporter {
	return &Reporter{catalog: catalog, sink: sink, notifier: notifier, backup: backup}
}

// Report persists the lead and notifies the channel. Returns whether the
// sheet append succeeded; callers do not block user-visible completion on
// the outcome.
func (r *Reporter) Report(ctx context.Context, lead *models.Lead) bool {
	saved := false
	if r.sink != nil {
		if err := r.sink.Append(ctx, r.Row(lead)); err != nil {
			logx.Errorf("Failed to save lead %s to sheet: %v", lead.LeadID, err)
		} else {
			saved = true
		}
	} else {
		logx.Warnf("Sheet integration disabled, lead %s goes to local backup only", lead.LeadID)
	}

	if !saved && r.backup != nil {
		if err := r.backup.BackupLead(lead); err != nil {
			logx.Errorf("Failed to back up lead %s locally: %v", lead.LeadID, err)
		} else {
			logx.Infof("Lead %s stored in local backup", lead.LeadID)
		}
	}

	if r.notifier != nil {
		if err := r.notifier.Notify(r.Summary(lead, saved)); err != nil {
			// Non-fatal: the lead is already persisted (or backed up).
			logx.Errorf("Failed to notify channel about lead %s: %v", lead.LeadID, err)
		}
	}

	return saved
}

// Row flattens the lead into the fixed column order: lead id, user id,
// username, start time, completion time, one column per catalog question in
// catalog order, one column per recognized attribution key.
func (r *Reporter) Row(lead *models.Lead) []interface{} {
	row := []interface{}{
		lead.LeadID,
		fmt.Sprintf("%d", lead.UserID),
		lead.Username,
		lead.StartedAt.Format(time.RFC3339),
		lead.CompletedAt.Format(time.RFC3339),
	}
	for _, q := range r.catalog.Questions() {
		row = append(row, strings.Join(lead.Answers[q.ID], ", "))
	}
	for _, key := range utm.RecognizedKeys {
		row = append(row, lead.UTM[key])
	}
	return row
}

// Headers returns the column names matching Row's order.
func (r *Reporter) Headers() []string {
	headers := []string{"Lead ID", "User ID", "Username", "Started At", "Completed At"}
	for _, q := range r.catalog.Questions() {
		headers = append(headers, q.Prompt)
	}
	for _, key := range utm.RecognizedKeys {
		headers = append(headers, key)
	}
	return headers
}

// Summary formats the channel notification for one lead.
func (r *Reporter) Summary(lead *models.Lead, saved bool) string {
	var b strings.Builder
	b.WriteString("🎉 Новый лид заполнил анкету!\n\n")
	fmt.Fprintf(&b, "📋 Lead ID: %s\n", lead.LeadID)
	fmt.Fprintf(&b, "👤 Пользователь: @%s (ID: %d)\n", lead.Username, lead.UserID)
	fmt.Fprintf(&b, "📅 Завершено: %s\n", lead.CompletedAt.Format("02.01.2006 15:04:05"))
	if saved {
		b.WriteString("💾 Google Sheets: ✅ Сохранено\n")
	} else {
		b.WriteString("💾 Google Sheets: ❌ Не сохранено, лид в локальном бэкапе\n")
	}

	b.WriteString("\n📊 Ответы:\n")
	for _, q := range r.catalog.Questions() {
		answer := strings.Join(lead.Answers[q.ID], ", ")
		if answer == "" {
			answer = "Не указано"
		}
		fmt.Fprintf(&b, "• %s: %s\n", q.Prompt, answer)
	}

	if len(lead.UTM) > 0 {
		b.WriteString("\n🏷 UTM-метки:\n")
		for _, key := range utm.RecognizedKeys {
			if v, ok := lead.UTM[key]; ok {
				fmt.Fprintf(&b, "• %s: %s\n", key, v)
			}
		}
	}

	return b.String()
}
