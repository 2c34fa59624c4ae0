package signature

import (
	"net/http"
	"strings"

	twilioclient "github.com/twilio/twilio-go/client"
)

const TwilioHeader = "X-Twilio-Signature"

// TwilioVerifier validates Twilio-style request signatures for relays that
// sit behind a Twilio-signed proxy. JSON deliveries must carry the
// bodySHA256 query parameter.
type TwilioVerifier struct {
	AuthToken string
	PublicURL string
}

func (v *TwilioVerifier) Name() string { return "twilio" }

func (v *TwilioVerifier) Verify(r *http.Request, body []byte) bool {
	if v == nil || r == nil || v.AuthToken == "" {
		return false
	}
	sig := r.Header.Get(TwilioHeader)
	if sig == "" {
		return false
	}
	validator := twilioclient.NewRequestValidator(v.AuthToken)
	return validator.ValidateBody(v.requestURL(r), body, sig)
}

func (v *TwilioVerifier) requestURL(r *http.Request) string {
	if v.PublicURL != "" {
		base := strings.TrimRight(v.PublicURL, "/")
		return base + r.URL.RequestURI()
	}
	scheme := r.URL.Scheme
	if scheme == "" {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		} else {
			scheme = "https"
		}
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
