package graph

// Prune drops every non-pending channel whose both directions have gone
// stale — no update in 2*pruneTimeout, where a direction that never had an
// update counts as stale — bounding graph memory growth from nodes that
// vanished without cleanly closing. It does not tell local channels from
// remote ones. This supplements SPEC_FULL §4.5's
// keepalive refresh, which only concerns the daemon's own channels; see
// SPEC_FULL.md §C.4.
func (g *Graph) Prune(now int64, pruneTimeout int64) []uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := now - 2*pruneTimeout
	var pruned []uint64
	for scid, ch := range g.channels {
		if ch.Pending {
			continue
		}
		if staleHalf(&ch.Halves[0], cutoff) && staleHalf(&ch.Halves[1], cutoff) {
			pruned = append(pruned, scid)
		}
	}

	for _, scid := range pruned {
		ch := g.channels[scid]
		delete(g.channels, scid)
		for _, nid := range ch.NodeIDs {
			if n, ok := g.nodes[nid]; ok {
				delete(n.Channels, scid)
			}
		}
	}

	return pruned
}

func staleHalf(h *HalfChannel, cutoff int64) bool {
	if !h.Defined() {
		return true
	}
	return h.LastTimestamp < cutoff
}
