package wire

import (
	"encoding/binary"
	"io"
)

// Pong answers a Ping, echoing back the requested amount of padding.
type Pong struct {
	PaddingBytes []byte
}

var _ Message = (*Pong)(nil)

func (p *Pong) MsgType() MessageType { return MsgPong }

func (p *Pong) MaxPayloadLength() uint32 { return 65533 }

func (p *Pong) Encode(w io.Writer) error {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(p.PaddingBytes)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(p.PaddingBytes)
	return err
}

func (p *Pong) Decode(r io.Reader) error {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return err
	}
	padLen := binary.BigEndian.Uint16(lenBuf[:])
	p.PaddingBytes = make([]byte, padLen)
	_, err := io.ReadFull(r, p.PaddingBytes)
	return err
}
