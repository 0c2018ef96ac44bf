package overlay

import (
	"encoding/json"
	"testing"

	"xsnotify/internal/app"
)

func TestEnsureClientParam(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ws://127.0.0.1:42070", "ws://127.0.0.1:42070?client=" + app.Name},
		{"ws://127.0.0.1:42070/?foo=1", "ws://127.0.0.1:42070/?foo=1&client=" + app.Name},
		{"ws://host/?client=other", "ws://host/?client=other"},
		{"ws://host/?foo=1&client=other", "ws://host/?foo=1&client=other"},
	}
	for _, c := range cases {
		if got := EnsureClientParam(c.in); got != c.want {
			t.Fatalf("EnsureClientParam(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestBuildMessageShape(t *testing.T) {
	b, err := buildMessage("Title", "line1\nline2", 3, 0.6)
	if err != nil {
		t.Fatalf("buildMessage: %v", err)
	}

	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("envelope unmarshal: %v", err)
	}
	if env.Sender != app.Name || env.Target != "xsoverlay" || env.Command != "SendNotification" {
		t.Fatalf("envelope = %+v", env)
	}

	// jsonData carries the payload as a serialized string, not a nested object.
	var payload notification
	if err := json.Unmarshal([]byte(env.JSONData), &payload); err != nil {
		t.Fatalf("jsonData unmarshal: %v", err)
	}
	if payload.Title != "Title" || payload.Content != "line1\nline2" {
		t.Fatalf("payload = %+v", payload)
	}
	if payload.Type != 1 {
		t.Fatalf("type = %d, want 1", payload.Type)
	}
	if payload.SourceApp != app.Name {
		t.Fatalf("sourceApp = %q", payload.SourceApp)
	}
	if payload.Timeout != 3 || payload.Opacity != 0.6 {
		t.Fatalf("timeout/opacity = %v/%v", payload.Timeout, payload.Opacity)
	}
}
