package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/roach88/meltshop/internal/alert"
	"github.com/roach88/meltshop/internal/eventlog"
	"github.com/roach88/meltshop/internal/ir"
	"github.com/roach88/meltshop/internal/journal"
)

// handleListEvents filters by ?label= (repeatable) and ?since=.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	since, err := parseTime(r, "since")
	if err != nil {
		writeError(w, err)
		return
	}
	var preds []journal.Predicate[ir.Event]
	for _, label := range r.URL.Query()["label"] {
		preds = append(preds, eventlog.HasLabel(label))
	}
	if !since.IsZero() {
		preds = append(preds, eventlog.Since(since))
	}
	s.run(w, r, "list events", http.StatusOK, func() (any, error) {
		return s.plant.Events().All(preds...), nil
	})
}

type eventRequest struct {
	Timestamp  *time.Time     `json:"timestamp,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Labels     []string       `json:"labels,omitempty"`
}

// handleCreateEvent appends an event. Rules run before the response is
// written, so alerts raised by the event are already visible.
func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	var ts time.Time
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}
	s.run(w, r, "create event", http.StatusCreated, func() (any, error) {
		return s.plant.Events().Create(ts, req.Properties, req.Labels), nil
	})
}

// handleListAlerts filters by ?subject= and ?status=pending|acknowledged.
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var preds []journal.Predicate[alert.Alert]
	if subject := q.Get("subject"); subject != "" {
		preds = append(preds, alert.BySubject(subject))
	}
	switch q.Get("status") {
	case "":
	case "pending":
		preds = append(preds, alert.Pending)
	case "acknowledged":
		preds = append(preds, alert.Acknowledged)
	default:
		writeError(w, badRequest("invalid status %q", q.Get("status")))
		return
	}
	s.run(w, r, "list alerts", http.StatusOK, func() (any, error) {
		return s.plant.Alerts().All(preds...), nil
	})
}

// handleAcknowledge acknowledges one alert. Acknowledging twice returns
// the same acknowledged alert.
func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.run(w, r, "acknowledge alert", http.StatusOK, func() (any, error) {
		a, ok := s.plant.Alerts().Acknowledge(id)
		if !ok {
			return nil, notFound("alert %q not found", id)
		}
		return a, nil
	})
}
