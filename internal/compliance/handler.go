package compliance

import (
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/clinicdesk/internal/apperr"
	"github.com/wolfman30/clinicdesk/internal/http/apiresponse"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// Handler serves the admin audit trail.
type Handler struct {
	store  Store
	logger *logging.Logger
}

func NewHandler(store Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

type eventPage struct {
	Items []AuditEvent `json:"items"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
}

// ListEvents handles GET /admin/audit. Filters: actor_id, entity_id,
// event_type (comma list), from and to (RFC3339).
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := apiresponse.PageParams(r)
	filter := AuditFilter{
		ActorID:  strings.TrimSpace(q.Get("actor_id")),
		EntityID: strings.TrimSpace(q.Get("entity_id")),
		Limit:    page.Limit,
		Offset:   page.Offset(),
	}
	for _, t := range strings.Split(q.Get("event_type"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			filter.EventTypes = append(filter.EventTypes, AuditEventType(t))
		}
	}
	var err error
	if filter.StartTime, err = parseBound(q.Get("from")); err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	if filter.EndTime, err = parseBound(q.Get("to")); err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}

	events, err := h.store.QueryEvents(r.Context(), filter)
	if err != nil {
		apiresponse.Error(w, r, h.logger, err)
		return
	}
	apiresponse.OK(w, "", eventPage{Items: events, Page: page.Page, Limit: page.Limit})
}

func parseBound(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperr.BadRequest("Invalid date format")
	}
	return t, nil
}
