// Package utm extracts attribution tags from the /start deep-link payload.
//
// Links like t.me/bot?start=<payload> carry marketing attribution either as
// base64-encoded JSON or as a URL-encoded query string. Only utm_* keys are
// kept; everything else is dropped.
package utm

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"
)

// RecognizedKeys is the fixed set of attribution columns in the sheet, in
// column order.
var RecognizedKeys = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content"}

// Parse extracts utm_* tags from a start payload. An empty or unparseable
// payload yields an empty map, never an error: attribution is best-effort.
func Parse(payload string) map[string]string {
	tags := make(map[string]string)
	if payload == "" {
		return tags
	}

	// Base64 JSON first, the format our ad links use.
	if decoded, err := base64.StdEncoding.DecodeString(payload); err == nil {
		var data map[string]string
		if err := json.Unmarshal(decoded, &data); err == nil {
			for k, v := range data {
				if strings.HasPrefix(k, "utm_") {
					tags[k] = v
				}
			}
			if len(tags) > 0 {
				return tags
			}
		}
	}

	// Fall back to a URL-encoded query string.
	if values, err := url.ParseQuery(payload); err == nil {
		for k, vs := range values {
			if strings.HasPrefix(k, "utm_") && len(vs) > 0 {
				tags[k] = vs[0]
			}
		}
	}

	return tags
}
