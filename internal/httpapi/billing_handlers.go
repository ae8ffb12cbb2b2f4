package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"statuswise.org/internal/billing"
)

const signatureHeader = "X-Signature"

// handleBillingWebhook is the ingress for billing provider deliveries.
// The signature is verified over the raw body before anything is
// decoded, so a forged payload never reaches the reconciler.
func (a *API) handleBillingWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.reconciler == nil {
		writeError(w, r, http.StatusNotFound, "billing is disabled")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 256<<10))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "unreadable body")
		return
	}

	if err := a.reconciler.VerifySignature(body, r.Header.Get(signatureHeader)); err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid signature")
		return
	}

	var evt billing.Event
	if err := json.Unmarshal(body, &evt); err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed payload")
		return
	}

	outcome, err := a.reconciler.Reconcile(r.Context(), evt)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrMalformedEvent):
			writeError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, billing.ErrUnknownUser):
			writeError(w, r, http.StatusNotFound, err.Error())
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"outcome": string(outcome),
	})
}
