package errorsx

import "errors"

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonSignatureInvalid ReasonCode = "signature_invalid"
	ReasonMalformedEvent   ReasonCode = "malformed_event"

	ReasonTranslationFailure     ReasonCode = "translation_failure"
	ReasonTranslationTimeout     ReasonCode = "translation_timeout"
	ReasonTranslationRateLimit   ReasonCode = "translation_rate_limit"
	ReasonTranslationCircuitOpen ReasonCode = "translation_circuit_open"
	ReasonTranslationEmpty       ReasonCode = "translation_empty"
	ReasonTranslationPanic       ReasonCode = "translation_panic"

	ReasonSessionStore ReasonCode = "session_store"
	ReasonEventPublish ReasonCode = "event_publish"

	ReasonConfiguration ReasonCode = "configuration"
)

// Sentinels for the relay error taxonomy. Only ErrConfiguration is fatal;
// the rest are recovered at the webhook boundary.
var (
	ErrSignatureInvalid   = errors.New("webhook signature invalid")
	ErrMalformedEvent     = errors.New("malformed webhook event")
	ErrTranslationFailure = errors.New("translation failed")
	ErrConfiguration      = errors.New("invalid configuration")
)
