package hub

// subscriptions maps channel ids to subscriber connections. Channels have
// no creation step: the first subscribe creates one, the last unsubscribe
// drops it. Owned by the actor.
type subscriptions struct {
	byChannel map[string]map[string]*connState
}

func newSubscriptions() *subscriptions {
	return &subscriptions{byChannel: make(map[string]map[string]*connState)}
}

// subscribe is idempotent: adding an existing membership is a no-op.
func (s *subscriptions) subscribe(c *connState, channel string) {
	set := s.byChannel[channel]
	if set == nil {
		set = make(map[string]*connState)
		s.byChannel[channel] = set
	}
	set[c.id] = c
	c.channels[channel] = struct{}{}
}

func (s *subscriptions) unsubscribe(c *connState, channel string) {
	if set := s.byChannel[channel]; set != nil {
		delete(set, c.id)
		if len(set) == 0 {
			delete(s.byChannel, channel)
		}
	}
	delete(c.channels, channel)
}

// drop removes the connection from every channel it was subscribed to,
// keeping subscriber sets a subset of open connections.
func (s *subscriptions) drop(c *connState) {
	for channel := range c.channels {
		if set := s.byChannel[channel]; set != nil {
			delete(set, c.id)
			if len(set) == 0 {
				delete(s.byChannel, channel)
			}
		}
	}
	c.channels = make(map[string]struct{})
}

func (s *subscriptions) members(channel string) map[string]*connState {
	return s.byChannel[channel]
}

func (s *subscriptions) channelCount() int { return len(s.byChannel) }
