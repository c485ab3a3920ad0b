package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	gossipwire "github.com/lightningnetwork/gossipd/wire"
)

func scidN(block uint32) gossipwire.ShortChannelID {
	return gossipwire.ShortChannelID{BlockHeight: block, TxIndex: 0, TxPosition: 0}
}

func newTestGraph(t *testing.T) *Graph {
	t.Helper()
	g, err := New(nil)
	require.NoError(t, err)
	return g
}

// seedChannel directly installs a live (non-pending) channel, bypassing
// signature verification — this package's own tests only need realistic
// graph *state*, not a cryptographically valid announcement.
func seedChannel(g *Graph, scid gossipwire.ShortChannelID, n1, n2 NodeID) *Channel {
	id := scid.ToUint64()
	ch := &Channel{
		SCID:    scid,
		NodeIDs: [2]NodeID{n1, n2},
		Halves:  [2]HalfChannel{{LastTimestamp: -1}, {LastTimestamp: -1}},
	}
	g.channels[id] = ch
	g.nodeOrCreate(n1).Channels[id] = struct{}{}
	g.nodeOrCreate(n2).Channels[id] = struct{}{}
	return ch
}

func TestGetChannelExcludesPending(t *testing.T) {
	g := newTestGraph(t)
	ch := seedChannel(g, scidN(10), NodeID{1}, NodeID{2})
	ch.Pending = true

	_, err := g.GetChannel(ch.SCID.ToUint64())
	require.ErrorIs(t, err, ErrChannelNotFound)

	ch.Pending = false
	got, err := g.GetChannel(ch.SCID.ToUint64())
	require.NoError(t, err)
	require.Same(t, ch, got)
}

func TestForEachChannelSkipsPending(t *testing.T) {
	g := newTestGraph(t)
	seedChannel(g, scidN(1), NodeID{1}, NodeID{2})
	pending := seedChannel(g, scidN(2), NodeID{3}, NodeID{4})
	pending.Pending = true

	var seen []uint64
	err := g.ForEachChannel(func(c *Channel) error {
		seen = append(seen, c.SCID.ToUint64())
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{scidN(1).ToUint64()}, seen)
}

func TestChannelsInRangeSortedAndBounded(t *testing.T) {
	g := newTestGraph(t)
	seedChannel(g, scidN(5), NodeID{1}, NodeID{2})
	seedChannel(g, scidN(1), NodeID{1}, NodeID{2})
	seedChannel(g, scidN(9), NodeID{1}, NodeID{2})
	pending := seedChannel(g, scidN(3), NodeID{1}, NodeID{2})
	pending.Pending = true

	got := g.ChannelsInRange(0, 10)
	require.Len(t, got, 3)
	require.Equal(t, uint32(1), got[0].BlockHeight)
	require.Equal(t, uint32(5), got[1].BlockHeight)
	require.Equal(t, uint32(9), got[2].BlockHeight)

	got = g.ChannelsInRange(6, 10)
	require.Equal(t, []gossipwire.ShortChannelID{scidN(9)}, got)
}

func TestBroadcastLogNextAfterFiltersAndAdvancesCursor(t *testing.T) {
	log := newBroadcastLog()
	log.append(100, gossipwire.MsgChannelAnnouncement, []byte("a"))
	log.append(200, gossipwire.MsgNodeAnnouncement, []byte("b"))
	log.append(300, gossipwire.MsgChannelUpdate, []byte("c"))

	// A narrow window that only the middle entry satisfies; the cursor
	// should still advance past the excluded third entry in one call so a
	// repeat poll doesn't rescan from scratch.
	msgType, payload, idx, ok := log.nextAfter(0, 150, 250)
	require.True(t, ok)
	require.Equal(t, gossipwire.MsgNodeAnnouncement, msgType)
	require.Equal(t, []byte("b"), payload)
	require.Equal(t, uint64(2), idx)

	_, _, idx, ok = log.nextAfter(idx, 150, 250)
	require.False(t, ok)
	require.Equal(t, uint64(3), idx)
}

func TestOutpointSpentRemovesChannelAndNodeLinks(t *testing.T) {
	g := newTestGraph(t)
	n1, n2 := NodeID{1}, NodeID{2}
	ch := seedChannel(g, scidN(1), n1, n2)

	g.OutpointSpent(ch.SCID)

	_, err := g.GetChannel(ch.SCID.ToUint64())
	require.ErrorIs(t, err, ErrChannelNotFound)

	node, err := g.GetNode(n1)
	require.NoError(t, err)
	require.NotContains(t, node.Channels, ch.SCID.ToUint64())
}

func TestPruneDropsChannelsStaleOnBothSides(t *testing.T) {
	g := newTestGraph(t)
	stale := seedChannel(g, scidN(1), NodeID{1}, NodeID{2})
	stale.Halves[0].LastTimestamp = 0
	stale.Halves[1].LastTimestamp = 0

	fresh := seedChannel(g, scidN(2), NodeID{3}, NodeID{4})
	fresh.Halves[0].LastTimestamp = 1000
	fresh.Halves[1].LastTimestamp = 1000

	pruned := g.Prune(1000, 100)
	require.Equal(t, []uint64{stale.SCID.ToUint64()}, pruned)

	_, err := g.GetChannel(fresh.SCID.ToUint64())
	require.NoError(t, err)
}

func TestSortNodeIDsDedupsAndOrders(t *testing.T) {
	ids := []NodeID{{3}, {1}, {2}, {1}}
	got := SortNodeIDs(ids)
	require.Equal(t, []NodeID{{1}, {2}, {3}}, got)
}
