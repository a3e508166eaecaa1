package session

import "github.com/roach88/meltshop/internal/pubsub"

// Filter selects sessions in Query. At most one field is honored, with
// precedence Stream, then ID, then Machine. The zero Filter selects every
// Completed session.
type Filter struct {
	Stream  func(Notification)
	ID      string
	Machine string
}

// Result is the answer to a Query. Exactly one of Sessions or Subscription
// is meaningful, depending on the filter shape.
type Result struct {
	Sessions     []Session
	Subscription *pubsub.Subscription
}

// Query dispatches f to Stream, Find, ByMachine or Completed.
// An ID that matches nothing yields an empty Sessions slice.
func (r *Registry) Query(f Filter) Result {
	switch {
	case f.Stream != nil:
		return Result{Sessions: []Session{}, Subscription: r.Stream(f.Stream)}
	case f.ID != "":
		s, ok := r.Find(f.ID)
		if !ok {
			return Result{Sessions: []Session{}}
		}
		return Result{Sessions: []Session{s}}
	case f.Machine != "":
		return Result{Sessions: r.ByMachine(f.Machine)}
	default:
		return Result{Sessions: r.Completed()}
	}
}
