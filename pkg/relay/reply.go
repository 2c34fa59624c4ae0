package relay

// DefaultFallbackText is spoken when a translation cannot be produced.
const DefaultFallbackText = "One moment please."

// Reply is the synchronous webhook response body.
type Reply struct {
	OK    bool       `json:"ok,omitempty"`
	Reply *ReplyBody `json:"reply,omitempty"`
}

type ReplyBody struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Ack acknowledges an event without speaking.
func Ack() Reply {
	return Reply{OK: true}
}

// Speak asks the platform to say text on the call.
func Speak(text string) Reply {
	return Reply{Reply: &ReplyBody{Type: "text", Text: text}}
}

// IsSpeech reports whether the reply carries text to speak.
func (r Reply) IsSpeech() bool {
	return r.Reply != nil
}
