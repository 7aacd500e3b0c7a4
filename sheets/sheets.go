// Package sheets appends completed leads to a Google spreadsheet.
package sheets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/korjavin/leadbot/logx"
)

const (
	appendRange = "A:Z"
	maxRetries  = 3
	retryDelay  = 2 * time.Second
)

// Client talks to the Google Sheets API with bounded retries on append.
type Client struct {
	srv           *sheets.Service
	spreadsheetID string
}

// New builds a client from service-account credentials, given either as raw
// JSON or as a path to a key file.
func New(ctx context.Context, spreadsheetID, credentialsJSON, credentialsFile string) (*Client, error) {
	data := []byte(credentialsJSON)
	if len(data) == 0 {
		var err error
		data, err = os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read Google credentials: %w", err)
		}
	}

	srv, err := sheets.NewService(ctx,
		option.WithCredentialsJSON(data),
		option.WithScopes(sheets.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("failed to create Sheets service: %w", err)
	}

	return &Client{srv: srv, spreadsheetID: spreadsheetID}, nil
}

// Append adds one row to the end of the sheet. The call is retried with
// exponential backoff a few times, then gives up; a retried append may
// produce a duplicate row since the sink is not idempotent.
func (c *Client) Append(ctx context.Context, row []interface{}) error {
	body := &sheets.ValueRange{Values: [][]interface{}{row}}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay * (1 << (attempt - 1))
			logx.Warnf("Sheets append attempt %d/%d failed: %v; retrying in %s", attempt, maxRetries, lastErr, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		result, err := c.srv.Spreadsheets.Values.Append(c.spreadsheetID, appendRange, body).
			ValueInputOption("RAW").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		if err == nil {
			rows := int64(0)
			if result.Updates != nil {
				rows = result.Updates.UpdatedRows
			}
			logx.Infof("Appended %d row(s) to sheet %s", rows, c.spreadsheetID)
			return nil
		}
		lastErr = err
	}

	return fmt.Errorf("sheets append failed after %d attempts: %w", maxRetries, lastErr)
}

// SetupHeaders clears the sheet and writes the header row. Meant for the
// one-off -setup-headers run, not for normal operation.
func (c *Client) SetupHeaders(ctx context.Context, headers []string) error {
	if _, err := c.srv.Spreadsheets.Values.Clear(c.spreadsheetID, appendRange, &sheets.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to clear sheet: %w", err)
	}

	row := make([]interface{}, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	body := &sheets.ValueRange{Values: [][]interface{}{row}}
	if _, err := c.srv.Spreadsheets.Values.Update(c.spreadsheetID, "A1", body).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	logx.Infof("Wrote %d header columns to sheet %s", len(headers), c.spreadsheetID)
	return nil
}

// Stats counts total leads and today's leads from the sheet. The completion
// timestamp is expected in column E (index 4), as written by the reporter.
func (c *Client) Stats(ctx context.Context) (total, today int, err error) {
	result, err := c.srv.Spreadsheets.Values.Get(c.spreadsheetID, appendRange).Context(ctx).Do()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read sheet: %w", err)
	}

	values := result.Values
	if len(values) <= 1 {
		return 0, 0, nil
	}
	total = len(values) - 1

	prefix := time.Now().Format("2006-01-02")
	for _, row := range values[1:] {
		if len(row) <= 4 {
			continue
		}
		if s, ok := row[4].(string); ok && strings.HasPrefix(s, prefix) {
			today++
		}
	}
	return total, today, nil
}
