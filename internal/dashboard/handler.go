package dashboard

import (
	"net/http"

	"github.com/wolfman30/clinicdesk/internal/access"
	"github.com/wolfman30/clinicdesk/internal/http/apiresponse"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// Handler serves GET /stats.
type Handler struct {
	aggregator *Aggregator
	logger     *logging.Logger
}

func NewHandler(aggregator *Aggregator, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{aggregator: aggregator, logger: logger}
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	actor, err := access.RequireActor(r.Context())
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	stats, err := h.aggregator.Stats(r.Context(), actor)
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	apiresponse.OK(w, "", stats)
}
