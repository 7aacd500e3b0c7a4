package utm

import (
	"encoding/base64"
	"reflect"
	"testing"
)

func TestParseBase64JSON(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString(
		[]byte(`{"utm_source":"vk","utm_campaign":"spring","other":"dropped"}`))

	got := Parse(payload)
	want := map[string]string{"utm_source": "vk", "utm_campaign": "spring"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected tags: %v", got)
	}
}

func TestParseQueryString(t *testing.T) {
	got := Parse("utm_source=tg&utm_medium=cpc&ref=ignored")
	want := map[string]string{"utm_source": "tg", "utm_medium": "cpc"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected tags: %v", got)
	}
}

func TestParseEmptyAndGarbage(t *testing.T) {
	for _, payload := range []string{"", "%%%not-a-payload", "just_words"} {
		if got := Parse(payload); len(got) != 0 {
			t.Fatalf("payload %q: expected no tags, got %v", payload, got)
		}
	}
}

func TestParseBase64NonUTMFallsThrough(t *testing.T) {
	// Valid base64 JSON without utm_ keys should still try the query form.
	payload := base64.StdEncoding.EncodeToString([]byte(`{"foo":"bar"}`))
	if got := Parse(payload); len(got) != 0 {
		t.Fatalf("expected no tags, got %v", got)
	}
}
