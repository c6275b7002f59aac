package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bencrane/outbound-engine-x-api/internal/domain"
	"github.com/bencrane/outbound-engine-x-api/internal/ingest"
)

// Providers sign request bodies and carry the signature and send time in
// these headers. Some providers use their own header names instead.
const (
	headerSignature = "X-Webhook-Signature"
	headerTimestamp = "X-Webhook-Timestamp"
)

var providerHeaders = map[string][2]string{
	domain.ProviderSmartlead:  {"X-Smartlead-Signature", "X-Smartlead-Timestamp"},
	domain.ProviderHeyreach:   {"X-Heyreach-Signature", "X-Heyreach-Timestamp"},
	domain.ProviderLob:        {"Lob-Signature", "Lob-Signature-Timestamp"},
	domain.ProviderEmailbison: {"X-Emailbison-Signature", "X-Emailbison-Timestamp"},
}

func signatureHeaders(r *http.Request, provider string) (timestamp, sig string) {
	sig = r.Header.Get(headerSignature)
	timestamp = r.Header.Get(headerTimestamp)
	if alt, ok := providerHeaders[provider]; ok {
		if sig == "" {
			sig = r.Header.Get(alt[0])
		}
		if timestamp == "" {
			timestamp = r.Header.Get(alt[1])
		}
	}
	return timestamp, sig
}

const maxWebhookBody = 1 << 20 // 1 MiB

type WebhookHandler struct {
	pipeline *ingest.Pipeline
}

func NewWebhookHandler(p *ingest.Pipeline) *WebhookHandler {
	return &WebhookHandler{pipeline: p}
}

// Receive ingests one provider webhook delivery.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if !domain.KnownProvider(provider) {
		respondError(w, http.StatusNotFound, "unknown provider")
		return
	}

	// Anything unparseable, an empty body included, flows into the
	// pipeline and dead-letters there; it stays stored and replayable.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	timestamp, sig := signatureHeaders(r, provider)
	outcome := h.pipeline.Process(r.Context(), provider, body, timestamp, sig)

	respondJSON(w, outcome.HTTPStatus, outcome)
}
