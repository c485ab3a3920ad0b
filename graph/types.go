package graph

import (
	"bytes"
	"net"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	gossipwire "github.com/lightningnetwork/gossipd/wire"
)

// NodeID is the map-key form of a compressed secp256k1 public key. btcec's
// PublicKey is not directly comparable, so every node/channel index in the
// graph is keyed on this fixed-size array instead, mirroring the way the
// teacher's routing package keys its vertex maps on a [33]byte.
type NodeID [33]byte

// NewNodeID derives a NodeID from a parsed public key.
func NewNodeID(pub *btcec.PublicKey) NodeID {
	var id NodeID
	copy(id[:], pub.SerializeCompressed())
	return id
}

// Less gives the total byte order over node ids the spec's dedup/sort steps
// rely on (pending_nodes sort in the scid-query reply, node1/node2 ordering
// in channel_announcement).
func (n NodeID) Less(other NodeID) bool {
	return bytes.Compare(n[:], other[:]) < 0
}

// SortNodeIDs sorts and deduplicates ids in place, returning the deduped
// slice.
func SortNodeIDs(ids []NodeID) []NodeID {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	out := ids[:0]
	var last NodeID
	haveLast := false
	for _, id := range ids {
		if haveLast && id == last {
			continue
		}
		out = append(out, id)
		last = id
		haveLast = true
	}
	return out
}

// HalfChannel is one direction of a Channel. It is Defined iff LastTimestamp
// >= 0, and Enabled iff Defined and the disabled bit is clear.
type HalfChannel struct {
	LastTimestamp   int64
	MessageFlags    uint8
	ChannelFlags    uint8
	CltvDelta       uint16
	HtlcMinMsat     uint64
	HtlcMaxMsat     uint64
	BaseFeeMsat     uint32
	ProportionalFee uint32
	RawUpdate       []byte
}

// Defined reports whether this half-channel has ever received a valid
// channel_update.
func (h *HalfChannel) Defined() bool { return h.LastTimestamp >= 0 }

// Disabled reports the BOLT#7 disabled bit (bit 1 of ChannelFlags).
func (h *HalfChannel) Disabled() bool { return h.ChannelFlags&0x02 != 0 }

// Enabled reports whether this half-channel is usable: defined and not
// disabled.
func (h *HalfChannel) Enabled() bool { return h.Defined() && !h.Disabled() }

// Channel is a funded, announced (or pending-announcement) channel.
type Channel struct {
	SCID     gossipwire.ShortChannelID
	NodeIDs  [2]NodeID
	Satoshis uint64
	Halves   [2]HalfChannel

	// Pending is true from the moment a channel_announcement's
	// signatures are validated until ResolvePending confirms the
	// funding output. Only non-pending channels satisfy the "channel is
	// in the graph iff ... funding output confirmed" invariant, so
	// pending channels are excluded from ForEachChannel, GetChannel, and
	// ChannelsInRange.
	Pending bool

	// LocalDisabled is set when the local endpoint of this channel has
	// lost its peer connection; it drives maybe_update_local_channel.
	LocalDisabled bool

	// RawAnnouncement is the cached signed channel_announcement. It is
	// set when the announcement is ingested, while the channel is still
	// Pending; nil means the channel has no public announcement.
	RawAnnouncement []byte
}

// Announced reports whether this channel has a cached public announcement.
func (c *Channel) Announced() bool { return c.RawAnnouncement != nil }

// Node is a node referenced by a channel or one whose node_announcement has
// been accepted. Its Channels set may be empty.
type Node struct {
	ID              NodeID
	LastTimestamp   int64
	Alias           gossipwire.Alias
	RGB             gossipwire.RGB
	GlobalFeatures  gossipwire.FeatureVector
	Addresses       []net.Addr

	// NodeAnnouncementIndex is the broadcast log index of the cached
	// announcement; 0 means none has been accepted yet.
	NodeAnnouncementIndex uint64
	RawAnnouncement       []byte

	Channels map[uint64]struct{}
}

// HasAnnouncement reports whether a node_announcement has ever been
// accepted for this node.
func (n *Node) HasAnnouncement() bool { return n.NodeAnnouncementIndex != 0 }
