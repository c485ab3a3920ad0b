package graph

import (
	"math"

	gossipwire "github.com/lightningnetwork/gossipd/wire"
)

// BroadcastSentinel is the peer broadcast_index value meaning "send nothing
// until this peer installs an explicit gossip_timestamp_filter".
const BroadcastSentinel uint64 = math.MaxUint64

// logEntry is one accepted gossip message, in the order the graph accepted
// it. msgType lets a peer session's send pump decode payload back into the
// concrete wire.Message to resend, without having to guess from the bytes
// alone which of the three gossip message types produced them.
type logEntry struct {
	index     uint64
	timestamp uint32
	msgType   gossipwire.MessageType
	payload   []byte
}

// broadcastLog is the monotonic, indexed sequence of canonical gossip
// messages every peer session's send pump walks forward through.
type broadcastLog struct {
	entries   []logEntry
	nextIndex uint64
}

func newBroadcastLog() *broadcastLog {
	return &broadcastLog{nextIndex: 1}
}

// append adds a new entry and returns its assigned index.
func (b *broadcastLog) append(timestamp uint32, msgType gossipwire.MessageType, payload []byte) uint64 {
	idx := b.nextIndex
	b.entries = append(b.entries, logEntry{index: idx, timestamp: timestamp, msgType: msgType, payload: payload})
	b.nextIndex++
	return idx
}

// NextIndex is the index that would be assigned to the next appended entry.
func (b *broadcastLog) NextIndex() uint64 { return b.nextIndex }

// nextAfter returns the first entry with index > after whose timestamp
// falls in [tsMin, tsMax], plus the index the caller should pass as `after`
// on its next call. ok is false when there is nothing left to deliver
// within the log's current bounds (the caller should stop pumping, not
// retry from the same cursor).
//
// entries are append-only and indices assigned 1..n in order, so the
// search is a direct slice index rather than a linear scan from the start.
func (b *broadcastLog) nextAfter(after uint64, tsMin, tsMax uint32) (msgType gossipwire.MessageType, payload []byte, newIndex uint64, ok bool) {
	start := uint64(len(b.entries))
	if after < start {
		start = after
	}
	for _, e := range b.entries[start:] {
		if e.index <= after {
			continue
		}
		if e.timestamp < tsMin || e.timestamp > tsMax {
			// Skip but still advance the cursor past it so a
			// narrow filter doesn't force an O(n) rescan on every
			// pump call.
			after = e.index
			continue
		}
		return e.msgType, e.payload, e.index, true
	}
	return 0, nil, after, false
}
