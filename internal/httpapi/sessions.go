package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/roach88/meltshop/internal/session"
)

// handleListSessions dispatches ?id=, ?machine= or, by default, the
// completed sessions. ?all=true lists every session regardless of state.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.run(w, r, "list sessions", http.StatusOK, func() (any, error) {
		var out []session.Session
		if q.Get("all") == "true" {
			out = s.plant.Sessions().All()
		} else {
			out = s.plant.Sessions().Query(session.Filter{ID: q.Get("id"), Machine: q.Get("machine")}).Sessions
		}
		if out == nil {
			out = []session.Session{}
		}
		return out, nil
	})
}

type startRequest struct {
	Machine string     `json:"machine"`
	Start   *time.Time `json:"start,omitempty"`
}

// handleStartSession is idempotent: while the machine has an Active
// session it is returned with 200, otherwise a new one is created (201).
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	s.runStatus(w, r, "start session", http.StatusCreated, func(status *int) (any, error) {
		m, ok := s.plant.Machine(req.Machine)
		if !ok {
			return nil, notFound("machine %q not found", req.Machine)
		}
		if existing, ok := s.plant.Sessions().Active(m.Name()); ok {
			*status = http.StatusOK
			return existing, nil
		}
		var opts []session.StartOption
		if req.Start != nil {
			opts = append(opts, session.WithStart(*req.Start))
		}
		return s.plant.Sessions().Start(m, opts...), nil
	})
}

func (s *Server) lookupSession(r *http.Request) (session.Session, error) {
	id := mux.Vars(r)["id"]
	sess, ok := s.plant.Sessions().Find(id)
	if !ok {
		return session.Session{}, notFound("session %q not found", id)
	}
	return sess, nil
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "get session", http.StatusOK, func() (any, error) {
		return s.lookupSession(r)
	})
}

type patchRequest struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var req patchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.run(w, r, "update session", http.StatusOK, func() (any, error) {
		sess, err := s.lookupSession(r)
		if err != nil {
			return nil, err
		}
		return sess.Update(session.Patch{Start: req.Start, End: req.End}), nil
	})
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "stop session", http.StatusOK, func() (any, error) {
		sess, err := s.lookupSession(r)
		if err != nil {
			return nil, err
		}
		return sess.Stop(), nil
	})
}
