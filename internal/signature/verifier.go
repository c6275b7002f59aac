// Package signature authenticates inbound webhook requests: HMAC-SHA256
// over "{timestamp}.{raw_body}" with a per-provider shared secret and a
// bounded timestamp tolerance as replay-window defense.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Verification modes.
const (
	ModePermissiveAudit = "permissive_audit"
	ModeEnforce         = "enforce"
)

// Failure reasons. NotConfigured is permissive-mode-only: enforce mode
// refuses to construct without a secret for every provider.
const (
	ReasonVerified         = "verified"
	ReasonMissingSignature = "missing_signature"
	ReasonMissingTimestamp = "missing_timestamp"
	ReasonInvalidTimestamp = "invalid_timestamp"
	ReasonStaleTimestamp   = "stale_timestamp"
	ReasonInvalidSignature = "invalid_signature"
	ReasonNotConfigured    = "not_configured"
)

// Outcome is the result of verifying one request.
type Outcome struct {
	Verified bool
	Reason   string
}

// Verifier checks webhook signatures for all configured providers.
type Verifier struct {
	mode      string
	tolerance time.Duration
	secrets   map[string]string
	now       func() time.Time
}

// New builds a verifier. Enforce mode with any missing provider secret is
// a configuration error: fail closed, never downgrade to permissive.
func New(mode string, tolerance time.Duration, secrets map[string]string) (*Verifier, error) {
	switch mode {
	case ModePermissiveAudit, ModeEnforce:
	default:
		return nil, fmt.Errorf("unknown signature mode %q", mode)
	}
	if mode == ModeEnforce {
		for provider, secret := range secrets {
			if secret == "" {
				return nil, fmt.Errorf("enforce mode requires a webhook secret for provider %q", provider)
			}
		}
	}
	return &Verifier{
		mode:      mode,
		tolerance: tolerance,
		secrets:   secrets,
		now:       time.Now,
	}, nil
}

// Enforcing reports whether verification failures abort ingestion.
func (v *Verifier) Enforcing() bool {
	return v.mode == ModeEnforce
}

// Verify checks the signature of one raw request body. The timestamp
// header carries unix seconds; the signature header carries the hex HMAC.
func (v *Verifier) Verify(provider string, body []byte, timestamp, sig string) Outcome {
	secret, ok := v.secrets[provider]
	if !ok || secret == "" {
		return Outcome{Verified: false, Reason: ReasonNotConfigured}
	}
	if sig == "" {
		return Outcome{Verified: false, Reason: ReasonMissingSignature}
	}
	if timestamp == "" {
		return Outcome{Verified: false, Reason: ReasonMissingTimestamp}
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return Outcome{Verified: false, Reason: ReasonInvalidTimestamp}
	}
	age := v.now().Sub(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if age > v.tolerance {
		return Outcome{Verified: false, Reason: ReasonStaleTimestamp}
	}

	expected := Compute(secret, timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return Outcome{Verified: false, Reason: ReasonInvalidSignature}
	}
	return Outcome{Verified: true, Reason: ReasonVerified}
}

// Compute returns the hex HMAC-SHA256 of "{timestamp}.{body}".
func Compute(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
