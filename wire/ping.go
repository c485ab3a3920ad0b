package wire

import (
	"encoding/binary"
	"io"
)

// Ping is sent periodically to keep a connection alive and to solicit a Pong
// carrying a specific amount of padding, letting either side pad traffic to
// disguise message sizes.
type Ping struct {
	NumPongBytes uint16
	PaddingBytes []byte
}

var _ Message = (*Ping)(nil)

func (p *Ping) MsgType() MessageType { return MsgPing }

func (p *Ping) MaxPayloadLength() uint32 { return 65531 }

func (p *Ping) Encode(w io.Writer) error {
	var hdr [4]byte
	binary.BigEndian.PutUint16(hdr[:2], p.NumPongBytes)
	binary.BigEndian.PutUint16(hdr[2:], uint16(len(p.PaddingBytes)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(p.PaddingBytes)
	return err
}

func (p *Ping) Decode(r io.Reader) error {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	p.NumPongBytes = binary.BigEndian.Uint16(hdr[:2])
	padLen := binary.BigEndian.Uint16(hdr[2:])
	p.PaddingBytes = make([]byte, padLen)
	_, err := io.ReadFull(r, p.PaddingBytes)
	return err
}
