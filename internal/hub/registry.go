package hub

// registry is the live mapping from principals to open connections. Both
// indexes are mutated together, only by the actor, so a connection id in
// the principal index always has a matching entry in the table.
type registry struct {
	byID        map[string]*connState
	byPrincipal map[string]map[string]*connState
}

func newRegistry() *registry {
	return &registry{
		byID:        make(map[string]*connState),
		byPrincipal: make(map[string]map[string]*connState),
	}
}

func (r *registry) add(c *connState) {
	r.byID[c.id] = c
	set := r.byPrincipal[c.principal.ID]
	if set == nil {
		set = make(map[string]*connState)
		r.byPrincipal[c.principal.ID] = set
	}
	set[c.id] = c
}

// remove deletes both index entries and returns the state, or nil if the
// id is unknown (removal is idempotent).
func (r *registry) remove(id string) *connState {
	c, ok := r.byID[id]
	if !ok {
		return nil
	}
	delete(r.byID, id)
	if set := r.byPrincipal[c.principal.ID]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(r.byPrincipal, c.principal.ID)
		}
	}
	return c
}

func (r *registry) principalConns(principalID string) map[string]*connState {
	return r.byPrincipal[principalID]
}

func (r *registry) count() int { return len(r.byID) }

func (r *registry) principalCount() int { return len(r.byPrincipal) }
