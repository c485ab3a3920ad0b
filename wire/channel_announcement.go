package wire

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
)

// ChannelAnnouncement proves the existence of a channel: two node
// signatures and two bitcoin-key signatures, each covering the same digest,
// attest that both endpoints and both funding keys agree on the channel's
// identity.
type ChannelAnnouncement struct {
	NodeSig1    *ecdsaSignature
	NodeSig2    *ecdsaSignature
	BitcoinSig1 *ecdsaSignature
	BitcoinSig2 *ecdsaSignature

	Features      FeatureVector
	ChainHash     ChainHash
	ShortChanID   ShortChannelID
	NodeID1       *btcec.PublicKey
	NodeID2       *btcec.PublicKey
	BitcoinKey1   *btcec.PublicKey
	BitcoinKey2   *btcec.PublicKey
}

var _ Message = (*ChannelAnnouncement)(nil)

func (c *ChannelAnnouncement) MsgType() MessageType { return MsgChannelAnnouncement }

func (c *ChannelAnnouncement) MaxPayloadLength() uint32 { return 8192 }

// DataToSign returns the portion of the message covered by all four
// signatures: everything after the signature fields.
func (c *ChannelAnnouncement) DataToSign() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeFeatureVector(&buf, c.Features); err != nil {
		return nil, err
	}
	if _, err := buf.Write(c.ChainHash[:]); err != nil {
		return nil, err
	}
	var scidBuf [8]byte
	binary.BigEndian.PutUint64(scidBuf[:], c.ShortChanID.ToUint64())
	if _, err := buf.Write(scidBuf[:]); err != nil {
		return nil, err
	}
	for _, pub := range []*btcec.PublicKey{c.NodeID1, c.NodeID2, c.BitcoinKey1, c.BitcoinKey2} {
		if err := writePubKey(&buf, pub); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (c *ChannelAnnouncement) Encode(w io.Writer) error {
	for _, sig := range []*ecdsaSignature{c.NodeSig1, c.NodeSig2, c.BitcoinSig1, c.BitcoinSig2} {
		if err := writeSignature(w, sig); err != nil {
			return err
		}
	}
	data, err := c.DataToSign()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (c *ChannelAnnouncement) Decode(r io.Reader) error {
	var err error
	if c.NodeSig1, err = readSignature(r); err != nil {
		return err
	}
	if c.NodeSig2, err = readSignature(r); err != nil {
		return err
	}
	if c.BitcoinSig1, err = readSignature(r); err != nil {
		return err
	}
	if c.BitcoinSig2, err = readSignature(r); err != nil {
		return err
	}

	if c.Features, err = readFeatureVector(r); err != nil {
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

	if c.NodeID1, err = readPubKey(r); err != nil {
		return err
	}
	if c.NodeID2, err = readPubKey(r); err != nil {
		return err
	}
	if c.BitcoinKey1, err = readPubKey(r); err != nil {
		return err
	}
	if c.BitcoinKey2, err = readPubKey(r); err != nil {
		return err
	}
	return nil
}

func writeFeatureVector(w io.Writer, f FeatureVector) error {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(f)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(f)
	return err
}

func readFeatureVector(r io.Reader) (FeatureVector, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	f := make(FeatureVector, n)
	if _, err := io.ReadFull(r, f); err != nil {
		return nil, err
	}
	return f, nil
}
