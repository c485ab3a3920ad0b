package wire

import (
	"encoding/binary"
	"io"
)

// QueryChannelRange asks the peer to enumerate the scids of every channel
// it knows about whose funding transaction fell within
// [FirstBlockHeight, FirstBlockHeight+NumBlocks).
type QueryChannelRange struct {
	ChainHash       ChainHash
	FirstBlockHeight uint32
	NumBlocks       uint32
}

var _ Message = (*QueryChannelRange)(nil)

func (q *QueryChannelRange) MsgType() MessageType { return MsgQueryChannelRange }

func (q *QueryChannelRange) MaxPayloadLength() uint32 { return 40 }

func (q *QueryChannelRange) Encode(w io.Writer) error {
	if _, err := w.Write(q.ChainHash[:]); err != nil {
		return err
	}
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[:4], q.FirstBlockHeight)
	binary.BigEndian.PutUint32(buf[4:], q.NumBlocks)
	_, err := w.Write(buf[:])
	return err
}

func (q *QueryChannelRange) Decode(r io.Reader) error {
	if _, err := io.ReadFull(r, q.ChainHash[:]); err != nil {
		return err
	}
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	q.FirstBlockHeight = binary.BigEndian.Uint32(buf[:4])
	q.NumBlocks = binary.BigEndian.Uint32(buf[4:])
	return nil
}

// ReplyChannelRange answers a QueryChannelRange, possibly split across
// several messages when the scid list would otherwise exceed the maximum
// payload size (see discovery.ChunkRange).
type ReplyChannelRange struct {
	ChainHash       ChainHash
	FirstBlockHeight uint32
	NumBlocks       uint32
	Complete        uint8
	ShortChanIDs    []ShortChannelID
}

var _ Message = (*ReplyChannelRange)(nil)

func (r *ReplyChannelRange) MsgType() MessageType { return MsgReplyChannelRange }

func (r *ReplyChannelRange) MaxPayloadLength() uint32 { return 65533 }

func (r *ReplyChannelRange) Encode(w io.Writer) error {
	if _, err := w.Write(r.ChainHash[:]); err != nil {
		return err
	}
	var hdr [9]byte
	binary.BigEndian.PutUint32(hdr[:4], r.FirstBlockHeight)
	binary.BigEndian.PutUint32(hdr[4:8], r.NumBlocks)
	hdr[8] = r.Complete
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	encoded, err := encodeShortChanIDs(r.ShortChanIDs)
	if err != nil {
		return err
	}
	return writeVarOctets(w, encoded)
}

func (r *ReplyChannelRange) Decode(rd io.Reader) error {
	if _, err := io.ReadFull(rd, r.ChainHash[:]); err != nil {
		return err
	}
	var hdr [9]byte
	if _, err := io.ReadFull(rd, hdr[:]); err != nil {
		return err
	}
	r.FirstBlockHeight = binary.BigEndian.Uint32(hdr[:4])
	r.NumBlocks = binary.BigEndian.Uint32(hdr[4:8])
	r.Complete = hdr[8]

	raw, err := readVarOctets(rd)
	if err != nil {
		return err
	}
	r.ShortChanIDs, err = decodeShortChanIDs(raw)
	return err
}

// GossipTimestampFilter asks the peer to restrict the broadcast stream it
// forwards to announcements/updates whose timestamp falls in
// [FirstTimestamp, FirstTimestamp+TimestampRange).
type GossipTimestampFilter struct {
	ChainHash       ChainHash
	FirstTimestamp  uint32
	TimestampRange  uint32
}

var _ Message = (*GossipTimestampFilter)(nil)

func (g *GossipTimestampFilter) MsgType() MessageType { return MsgGossipTimestampFilter }

func (g *GossipTimestampFilter) MaxPayloadLength() uint32 { return 40 }

func (g *GossipTimestampFilter) Encode(w io.Writer) error {
	if _, err := w.Write(g.ChainHash[:]); err != nil {
		return err
	}
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[:4], g.FirstTimestamp)
	binary.BigEndian.PutUint32(buf[4:], g.TimestampRange)
	_, err := w.Write(buf[:])
	return err
}

func (g *GossipTimestampFilter) Decode(r io.Reader) error {
	if _, err := io.ReadFull(r, g.ChainHash[:]); err != nil {
		return err
	}
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	g.FirstTimestamp = binary.BigEndian.Uint32(buf[:4])
	g.TimestampRange = binary.BigEndian.Uint32(buf[4:])
	return nil
}

// InRange reports whether ts falls within the filter's window.
func (g *GossipTimestampFilter) InRange(ts uint32) bool {
	if g.TimestampRange == 0 {
		return false
	}
	end := uint64(g.FirstTimestamp) + uint64(g.TimestampRange)
	return uint64(ts) >= uint64(g.FirstTimestamp) && uint64(ts) < end
}
