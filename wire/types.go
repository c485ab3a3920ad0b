package wire

import (
	"encoding/binary"
	"fmt"
)

// ShortChannelID encodes the BOLT#7 scid: the coinbase transaction's block
// height, its index within the block, and the funding output index, packed
// into a single uint64 on the wire.
type ShortChannelID struct {
	BlockHeight uint32
	TxIndex     uint32
	TxPosition  uint16
}

// ToUint64 packs the scid the way channel_announcement and the query
// messages put it on the wire: 3 bytes block height, 3 bytes tx index, 2
// bytes output index, big-endian, fit into the low 64 bits.
func (s ShortChannelID) ToUint64() uint64 {
	return (uint64(s.BlockHeight&0xffffff) << 40) |
		(uint64(s.TxIndex&0xffffff) << 16) |
		uint64(s.TxPosition)
}

// NewShortChanIDFromInt unpacks a wire-encoded scid back into its three
// components.
func NewShortChanIDFromInt(id uint64) ShortChannelID {
	return ShortChannelID{
		BlockHeight: uint32(id >> 40),
		TxIndex:     uint32(id>>16) & 0xffffff,
		TxPosition:  uint16(id),
	}
}

func (s ShortChannelID) String() string {
	return fmt.Sprintf("%dx%dx%d", s.BlockHeight, s.TxIndex, s.TxPosition)
}

// MilliSatoshi is an amount expressed in thousandths of a satoshi, the unit
// channel_update's htlc minimum/maximum fields use.
type MilliSatoshi uint64

// ChanUpdateFlag is the bitfield attached to channel_update that encodes the
// direction and disable bit.
type ChanUpdateFlag uint16

const (
	// ChanUpdateDirection is set when the update describes the
	// node2->node1 direction.
	ChanUpdateDirection ChanUpdateFlag = 1

	// ChanUpdateDisabled marks the advertised direction as unusable.
	ChanUpdateDisabled ChanUpdateFlag = 1 << 1
)

// FeatureVector is a variable-length compact bitfield as used by init,
// node_announcement and channel_announcement.
type FeatureVector []byte

// IsSet reports whether the feature bit at the given position is set. Bit 0
// is the least-significant bit of the last byte, matching the BOLT
// big-endian-byte/little-endian-bit convention.
func (f FeatureVector) IsSet(bit uint32) bool {
	byteIdx := len(f) - 1 - int(bit/8)
	if byteIdx < 0 || byteIdx >= len(f) {
		return false
	}
	return f[byteIdx]&(1<<(bit%8)) != 0
}

// ChainHash identifies the blockchain this gossip instance speaks for.
type ChainHash [32]byte

func writeUint16(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }
func writeUint32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func writeUint64(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }
