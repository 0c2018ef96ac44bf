// Package overlay delivers notifications to XSOverlay over its websocket
// command API.
package overlay

import (
	"encoding/json"
	"strings"

	"xsnotify/internal/app"
)

// notification is the XSOverlay SendNotification payload. Type 1 is the
// standard popup.
type notification struct {
	Title     string  `json:"title"`
	Content   string  `json:"content"`
	SourceApp string  `json:"sourceApp"`
	Type      int     `json:"type"`
	Timeout   float64 `json:"timeout"`
	Opacity   float64 `json:"opacity"`
}

// envelope is the outer command frame. XSOverlay expects the payload
// JSON-serialized into the jsonData string, not nested as an object.
type envelope struct {
	Sender   string `json:"sender"`
	Target   string `json:"target"`
	Command  string `json:"command"`
	JSONData string `json:"jsonData"`
}

// buildMessage serializes the full wire frame for one notification.
func buildMessage(title, content string, timeout, opacity float64) ([]byte, error) {
	payload, err := json.Marshal(notification{
		Title:     title,
		Content:   content,
		SourceApp: app.Name,
		Type:      1,
		Timeout:   timeout,
		Opacity:   opacity,
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{
		Sender:   app.Name,
		Target:   "xsoverlay",
		Command:  "SendNotification",
		JSONData: string(payload),
	})
}

// EnsureClientParam makes sure the endpoint carries the client identity
// query parameter XSOverlay uses to label connections. URLs that already
// have one are returned unchanged.
func EnsureClientParam(endpoint string) string {
	if strings.Contains(endpoint, "?client=") || strings.Contains(endpoint, "&client=") {
		return endpoint
	}
	joiner := "?"
	if strings.Contains(endpoint, "?") {
		joiner = "&"
	}
	return endpoint + joiner + "client=" + app.Name
}
