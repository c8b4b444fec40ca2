package server

import (
	"github.com/morezero/action-gateway/pkg/action"
	"github.com/morezero/action-gateway/pkg/manager"
)

// Router chains managers over one envelope: each manager handles only its own
// names, so earlier misses are silent and only the final manager reports an
// unknown action.
type Router struct {
	chain []manager.Dispatcher
}

// NewRouter creates a Router over the given managers, tried in order.
func NewRouter(managers ...manager.Dispatcher) *Router {
	return &Router{chain: managers}
}

// Route dispatches the envelope through the chain. With an empty chain the
// envelope is left untouched.
func (r *Router) Route(act *action.Action) {
	if len(r.chain) == 0 {
		return
	}
	for _, d := range r.chain[:len(r.chain)-1] {
		if d.DispatchIfPresent(act) {
			return
		}
	}
	r.chain[len(r.chain)-1].Dispatch(act)
}
