package metrics

// Relay event names. Events carry call_id and trace_id tags when known.
const (
	EventCallStart         = "call_start"
	EventCallEnd           = "call_end"
	EventCallExpired       = "call_expired"
	EventUtteranceEmpty    = "utterance_empty"
	EventLanguageDetected  = "language_detected"
	EventTranslationDone   = "translation_done"
	EventTranslationFailed = "translation_failed"
	EventUnknown           = "event_unknown"
	EventMalformed         = "event_malformed"
	EventSignatureRejected = "signature_rejected"
)

// Translator breaker events.
const (
	EventBreakerDenied = "breaker_denied"
	EventBreakerOpen   = "breaker_open"
	EventBreakerClose  = "breaker_close"
	EventRateLimit     = "rate_limit"
)

// Tag keys shared by emitters and sinks.
const (
	TagCallID     = "call_id"
	TagTraceID    = "trace_id"
	TagSource     = "source"
	TagTarget     = "target"
	TagProvider   = "provider"
	TagReasonCode = "reason_code"
	TagComponent  = "component"
)

// Field keys.
const (
	FieldInput  = "input"
	FieldOutput = "output"
)
