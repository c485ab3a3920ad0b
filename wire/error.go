package wire

import (
	"encoding/binary"
	"io"
)

// Error is the BOLT#1 error message: sent in response to a protocol
// violation the peer session has detected, scoped to a channel id (or the
// zero id, meaning the whole connection).
type Error struct {
	ChanID uint64
	Data   []byte
}

var _ Message = (*Error)(nil)

func (e *Error) MsgType() MessageType { return MsgError }

func (e *Error) MaxPayloadLength() uint32 { return 65533 }

func (e *Error) Encode(w io.Writer) error {
	var hdr [10]byte
	binary.BigEndian.PutUint64(hdr[:8], e.ChanID)
	binary.BigEndian.PutUint16(hdr[8:], uint16(len(e.Data)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(e.Data)
	return err
}

func (e *Error) Decode(r io.Reader) error {
	var hdr [10]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	e.ChanID = binary.BigEndian.Uint64(hdr[:8])
	dataLen := binary.BigEndian.Uint16(hdr[8:])
	e.Data = make([]byte, dataLen)
	_, err := io.ReadFull(r, e.Data)
	return err
}
