package wire

import (
	"bytes"
	"encoding/binary"
	"io"
)

// ChannelUpdate advertises one direction's routing policy for a channel:
// the fee and HTLC constraints the announcing node applies when forwarding
// across it.
type ChannelUpdate struct {
	Signature       *ecdsaSignature
	ChainHash       ChainHash
	ShortChanID     ShortChannelID
	Timestamp       uint32
	MessageFlags    uint8
	ChannelFlags    ChanUpdateFlag
	TimeLockDelta   uint16
	HTLCMinimumMsat MilliSatoshi
	HTLCMaximumMsat MilliSatoshi
	BaseFee         uint32
	FeeRate         uint32
}

var _ Message = (*ChannelUpdate)(nil)

func (c *ChannelUpdate) MsgType() MessageType { return MsgChannelUpdate }

func (c *ChannelUpdate) MaxPayloadLength() uint32 { return 8192 }

// htlcMaxPresent is bit 0 of MessageFlags: set when HTLCMaximumMsat is
// present on the wire (it always is in this implementation, but the flag is
// kept for forward compatibility with peers running older software).
const htlcMaxPresent uint8 = 1

func (c *ChannelUpdate) DataToSign() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.Write(c.ChainHash[:]); err != nil {
		return nil, err
	}
	var scidBuf [8]byte
	binary.BigEndian.PutUint64(scidBuf[:], c.ShortChanID.ToUint64())
	buf.Write(scidBuf[:])

	var rest [4]byte
	binary.BigEndian.PutUint32(rest[:], c.Timestamp)
	buf.Write(rest[:])

	buf.WriteByte(c.MessageFlags | htlcMaxPresent)
	var flags [2]byte
	binary.BigEndian.PutUint16(flags[:], uint16(c.ChannelFlags))
	buf.Write(flags[:])

	var tl [2]byte
	binary.BigEndian.PutUint16(tl[:], c.TimeLockDelta)
	buf.Write(tl[:])

	var htlcMin [8]byte
	binary.BigEndian.PutUint64(htlcMin[:], uint64(c.HTLCMinimumMsat))
	buf.Write(htlcMin[:])

	var baseFee, feeRate [4]byte
	binary.BigEndian.PutUint32(baseFee[:], c.BaseFee)
	buf.Write(baseFee[:])
	binary.BigEndian.PutUint32(feeRate[:], c.FeeRate)
	buf.Write(feeRate[:])

	var htlcMax [8]byte
	binary.BigEndian.PutUint64(htlcMax[:], uint64(c.HTLCMaximumMsat))
	buf.Write(htlcMax[:])

	return buf.Bytes(), nil
}

func (c *ChannelUpdate) Encode(w io.Writer) error {
	if err := writeSignature(w, c.Signature); err != nil {
		return err
	}
	data, err := c.DataToSign()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (c *ChannelUpdate) Decode(r io.Reader) error {
	var err error
	if c.Signature, err = readSignature(r); err != nil {
		return err
	}
	if _, err = io.ReadFull(r, c.ChainHash[:]); err != nil {
		return err
	}
	var scidBuf [8]byte
	if _, err = io.ReadFull(r, scidBuf[:]); err != nil {
		return err
	}
	c.ShortChanID = NewShortChanIDFromInt(binary.BigEndian.Uint64(scidBuf[:]))

	var ts [4]byte
	if _, err = io.ReadFull(r, ts[:]); err != nil {
		return err
	}
	c.Timestamp = binary.BigEndian.Uint32(ts[:])

	var mFlags [1]byte
	if _, err = io.ReadFull(r, mFlags[:]); err != nil {
		return err
	}
	c.MessageFlags = mFlags[0]

	var cFlags [2]byte
	if _, err = io.ReadFull(r, cFlags[:]); err != nil {
		return err
	}
	c.ChannelFlags = ChanUpdateFlag(binary.BigEndian.Uint16(cFlags[:]))

	var tl [2]byte
	if _, err = io.ReadFull(r, tl[:]); err != nil {
		return err
	}
	c.TimeLockDelta = binary.BigEndian.Uint16(tl[:])

	var htlcMin [8]byte
	if _, err = io.ReadFull(r, htlcMin[:]); err != nil {
		return err
	}
	c.HTLCMinimumMsat = MilliSatoshi(binary.BigEndian.Uint64(htlcMin[:]))

	var baseFee, feeRate [4]byte
	if _, err = io.ReadFull(r, baseFee[:]); err != nil {
		return err
	}
	c.BaseFee = binary.BigEndian.Uint32(baseFee[:])
	if _, err = io.ReadFull(r, feeRate[:]); err != nil {
		return err
	}
	c.FeeRate = binary.BigEndian.Uint32(feeRate[:])

	var htlcMax [8]byte
	if _, err = io.ReadFull(r, htlcMax[:]); err != nil {
		return err
	}
	c.HTLCMaximumMsat = MilliSatoshi(binary.BigEndian.Uint64(htlcMax[:]))

	return nil
}

// IsDisabled reports whether the disabled bit is set in ChannelFlags.
func (c *ChannelUpdate) IsDisabled() bool {
	return c.ChannelFlags&ChanUpdateDisabled != 0
}

// Direction reports which endpoint (0 or 1) originated this update, per the
// direction bit in ChannelFlags.
func (c *ChannelUpdate) Direction() uint8 {
	return uint8(c.ChannelFlags & ChanUpdateDirection)
}
