package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harunnryd/stella/pkg/errorsx"
)

// Webhook event types.
const (
	TypeCallStart  = "call:start"
	TypeCallUpdate = "call:update"
	TypeCallEnd    = "call:end"
)

// Event is one call-lifecycle delivery from the telephony platform.
type Event struct {
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

type EventData struct {
	CallID string   `json:"callId"`
	Text   string   `json:"text,omitempty"`
	STT    *STTData `json:"stt,omitempty"`
}

type STTData struct {
	Text string `json:"text"`
}

// Utterance is the transcribed text of an update, preferring the STT block
// when it is non-empty, trimmed of surrounding whitespace.
func (e Event) Utterance() string {
	if e.Data.STT != nil && e.Data.STT.Text != "" {
		return strings.TrimSpace(e.Data.STT.Text)
	}
	return strings.TrimSpace(e.Data.Text)
}

// ParseEvent decodes a raw webhook body. Anything that is not a JSON object
// matches errorsx.ErrMalformedEvent.
func ParseEvent(body []byte) (Event, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Event{}, errorsx.Classify(errorsx.ErrMalformedEvent, fmt.Errorf("body is not a json object"), errorsx.ReasonMalformedEvent)
	}
	var ev Event
	if err := json.Unmarshal(trimmed, &ev); err != nil {
		return Event{}, errorsx.Classify(errorsx.ErrMalformedEvent, err, errorsx.ReasonMalformedEvent)
	}
	ev.Type = strings.TrimSpace(ev.Type)
	ev.Data.CallID = strings.TrimSpace(ev.Data.CallID)
	return ev, nil
}
