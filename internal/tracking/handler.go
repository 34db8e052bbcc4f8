package tracking

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aoemotors/driveflow/internal/observability/metrics"
	"github.com/aoemotors/driveflow/pkg/logging"
)

// Handler serves tracked-link redirects.
type Handler struct {
	codec   *Codec
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewHandler creates a redirect handler for issued tracking tokens.
func NewHandler(codec *Codec, m *metrics.Metrics, logger *logging.Logger) *Handler {
	if codec == nil {
		panic("tracking: codec required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{codec: codec, metrics: m, logger: logger}
}

// Redirect handles GET /r/{token}: 302 to the embedded target on a valid,
// unexpired token, plain-text error otherwise.
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	payload, err := h.codec.Verify(token)
	if err != nil {
		switch {
		case errors.Is(err, ErrExpired):
			h.metrics.ObserveTokenVerification("expired")
			http.Error(w, "expired", http.StatusBadRequest)
		default:
			h.metrics.ObserveTokenVerification("bad_signature")
			http.Error(w, "bad signature", http.StatusBadRequest)
		}
		return
	}
	if payload.TargetURL == "" {
		h.metrics.ObserveTokenVerification("missing_url")
		http.Error(w, "missing url", http.StatusBadRequest)
		return
	}

	h.metrics.ObserveTokenVerification("ok")

	// Click logging is best-effort and must never fail the redirect.
	h.metrics.ObserveLinkClick()
	h.logger.Info("tracked link clicked",
		"request_id", payload.RequestID,
		"wa_id", payload.WAID,
		"kind", payload.Kind,
	)

	http.Redirect(w, r, payload.TargetURL, http.StatusFound)
}
