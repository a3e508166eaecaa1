package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/roach88/meltshop/internal/ledger"
	"github.com/roach88/meltshop/internal/machine"
	"github.com/roach88/meltshop/internal/sensor"
)

type machineView struct {
	Name    string   `json:"name"`
	Weight  float64  `json:"weight"`
	Sensors []string `json:"sensors"`
	Pending int      `json:"pending_alerts"`
}

func viewMachine(m *machine.Machine) machineView {
	pending := 0
	for _, a := range m.Alerts() {
		if a.Pending() {
			pending++
		}
	}
	keys := m.SensorKeys()
	if keys == nil {
		keys = []string{}
	}
	return machineView{Name: m.Name(), Weight: m.Weight(), Sensors: keys, Pending: pending}
}

func (s *Server) lookupMachine(r *http.Request) (*machine.Machine, error) {
	name := mux.Vars(r)["name"]
	m, ok := s.plant.Machine(name)
	if !ok {
		return nil, notFound("machine %q not found", name)
	}
	return m, nil
}

func (s *Server) handleListMachines(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "list machines", http.StatusOK, func() (any, error) {
		out := []machineView{}
		for _, m := range s.plant.Machines() {
			out = append(out, viewMachine(m))
		}
		return out, nil
	})
}

func (s *Server) handleGetMachine(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "get machine", http.StatusOK, func() (any, error) {
		m, err := s.lookupMachine(r)
		if err != nil {
			return nil, err
		}
		return viewMachine(m), nil
	})
}

type amountRequest struct {
	Amount float64 `json:"amount"`
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	s.mutateWeight(w, r, "load", (*machine.Machine).Load)
}

func (s *Server) handleDispense(w http.ResponseWriter, r *http.Request) {
	s.mutateWeight(w, r, "dispense", (*machine.Machine).Dispense)
}

func (s *Server) mutateWeight(w http.ResponseWriter, r *http.Request, op string, apply func(*machine.Machine, float64) ledger.Sample) {
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.run(w, r, op, http.StatusOK, func() (any, error) {
		m, err := s.lookupMachine(r)
		if err != nil {
			return nil, err
		}
		sample := apply(m, req.Amount)
		s.metrics.SetWeight(m.Name(), sample.Weight)
		return sample, nil
	})
}

type weightView struct {
	Machine   string     `json:"machine"`
	Weight    float64    `json:"weight,omitempty"`
	At        *time.Time `json:"at,omitempty"`
	From      *time.Time `json:"from,omitempty"`
	To        *time.Time `json:"to,omitempty"`
	Loaded    *float64   `json:"loaded,omitempty"`
	Dispensed *float64   `json:"dispensed,omitempty"`
}

// handleWeight answers current (no params), point-in-time (?at=) and range
// (?from=&to=) ledger questions.
func (s *Server) handleWeight(w http.ResponseWriter, r *http.Request) {
	at, err := parseTime(r, "at")
	if err != nil {
		writeError(w, err)
		return
	}
	from, err := parseTime(r, "from")
	if err != nil {
		writeError(w, err)
		return
	}
	to, err := parseTime(r, "to")
	if err != nil {
		writeError(w, err)
		return
	}

	q := ledger.Current()
	switch {
	case !from.IsZero() || !to.IsZero():
		if from.IsZero() || to.IsZero() {
			writeError(w, badRequest("range queries need both from and to"))
			return
		}
		q = ledger.Range(from, to)
	case !at.IsZero():
		q = ledger.At(at)
	}

	s.run(w, r, "weight", http.StatusOK, func() (any, error) {
		m, err := s.lookupMachine(r)
		if err != nil {
			return nil, err
		}
		ans, err := m.Chronology().Query(q)
		if err != nil {
			return nil, badRequest("%v", err)
		}
		v := weightView{Machine: m.Name()}
		switch q.Kind {
		case ledger.QueryRange:
			v.From, v.To = &q.From, &q.To
			v.Loaded, v.Dispensed = &ans.Totals.Loaded, &ans.Totals.Dispensed
		case ledger.QueryAt:
			v.At = &q.At
			v.Weight = ans.Weight
		case ledger.QueryCurrent:
			v.Weight = ans.Weight
		}
		return v, nil
	})
}

// handleMeasurements serves ?from=&to=&step= sensor history. Sensors are
// safe for concurrent use, so the read runs on the request goroutine; only
// the machine lookup goes through the engine.
func (s *Server) handleMeasurements(w http.ResponseWriter, r *http.Request) {
	from, err := parseTime(r, "from")
	if err != nil {
		writeError(w, err)
		return
	}
	to, err := parseTime(r, "to")
	if err != nil {
		writeError(w, err)
		return
	}
	var step time.Duration
	if raw := r.URL.Query().Get("step"); raw != "" {
		if step, err = time.ParseDuration(raw); err != nil {
			writeError(w, badRequest("invalid step: %v", err))
			return
		}
	}

	var sn sensor.Sensor
	err = s.exec.Do(r.Context(), "lookup sensor", func() error {
		m, err := s.lookupMachine(r)
		if err != nil {
			return err
		}
		key := mux.Vars(r)["key"]
		var ok bool
		if sn, ok = m.Sensor(key); !ok {
			return notFound("sensor %q not found on %s", key, m.Name())
		}
		if to.IsZero() {
			to = s.plant.Clock().Now()
		}
		if from.IsZero() {
			from = to.Add(-time.Hour)
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	readings, err := sn.Measurements(r.Context(), sensor.Range{Start: from, End: to}, step)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sensor": sn.Name(), "readings": readings})
}
