package graph

import (
	"fmt"
	"sort"
	"sync"

	gossipwire "github.com/lightningnetwork/gossipd/wire"
)

// Graph is the in-memory routing graph: channels, nodes, and the broadcast
// log derived from them. It is single-owner per the concurrency model in
// SPEC_FULL.md §5 — the daemon controller is the only mutator; peer
// sessions only read through the ForEach*/Get* accessors.
//
// The mutex here exists for defensive depth only: the
// control-flow is cooperative single-goroutine-per-tick by design, but
// peer goroutines take read snapshots between suspension points, so a
// narrow RWMutex avoids a data race detector false class of bugs without
// changing the single-owner semantics the spec requires.
type Graph struct {
	mu sync.RWMutex

	nodes    map[NodeID]*Node
	channels map[uint64]*Channel
	log      *broadcastLog

	store *Store
}

// New creates an empty graph, or replays store if non-nil.
func New(store *Store) (*Graph, error) {
	g := &Graph{
		nodes:    make(map[NodeID]*Node),
		channels: make(map[uint64]*Channel),
		log:      newBroadcastLog(),
		store:    store,
	}
	if store != nil {
		if err := store.Replay(g); err != nil {
			return nil, fmt.Errorf("replay gossip store: %w", err)
		}
	}
	return g, nil
}

// NextBroadcastIndex is the index the next appended entry will receive;
// used to initialize a peer admitted without initial_routing_sync.
func (g *Graph) NextBroadcastIndex() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.log.NextIndex()
}

// NextAfter is the accessor the peer send pump polls each tick.
func (g *Graph) NextAfter(after uint64, tsMin, tsMax uint32) (msgType gossipwire.MessageType, payload []byte, newIndex uint64, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.log.nextAfter(after, tsMin, tsMax)
}

// GetChannel returns the channel for scid, or ErrChannelNotFound. Pending
// (not yet funding-confirmed) channels are not visible here.
func (g *Graph) GetChannel(scid uint64) (*Channel, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.channels[scid]
	if !ok || c.Pending {
		return nil, ErrChannelNotFound
	}
	return c, nil
}

// GetNode returns the node for id, or ErrNodeNotFound.
func (g *Graph) GetNode(id NodeID) (*Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return n, nil
}

// ForEachChannel calls cb for every channel in the graph. cb must not
// mutate the graph.
func (g *Graph) ForEachChannel(cb func(*Channel) error) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, c := range g.channels {
		if c.Pending {
			continue
		}
		if err := cb(c); err != nil {
			return err
		}
	}
	return nil
}

// ForEachNode calls cb for every node in the graph.
func (g *Graph) ForEachNode(cb func(*Node) error) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, n := range g.nodes {
		if err := cb(n); err != nil {
			return err
		}
	}
	return nil
}

// ChannelsInRange returns every channel whose scid's block height falls in
// [first, first+num), sorted by scid, for query_channel_range.
func (g *Graph) ChannelsInRange(first, num uint32) []gossipwire.ShortChannelID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	end := uint64(first) + uint64(num)
	var out []gossipwire.ShortChannelID
	for _, c := range g.channels {
		if c.Pending {
			continue
		}
		bh := uint64(c.SCID.BlockHeight)
		if bh >= uint64(first) && bh < end {
			out = append(out, c.SCID)
		}
	}
	sortSCIDs(out)
	return out
}

func sortSCIDs(ids []gossipwire.ShortChannelID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].ToUint64() < ids[j].ToUint64() })
}

func (g *Graph) nodeOrCreate(id NodeID) *Node {
	n, ok := g.nodes[id]
	if !ok {
		n = &Node{ID: id, LastTimestamp: -1, Channels: make(map[uint64]struct{})}
		g.nodes[id] = n
	}
	return n
}
