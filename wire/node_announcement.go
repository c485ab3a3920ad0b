package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"

	"github.com/btcsuite/btcd/btcec/v2"
)

var aliasSpecLen = 32

// RGB is the node's chosen display color.
type RGB struct {
	Red, Green, Blue uint8
}

// Alias is a free-form, zero-padded 32-byte display name. It is not unique
// and carries no protocol meaning beyond display.
type Alias [32]byte

// NewAlias truncates s to the wire length and zero-pads the remainder.
func NewAlias(s string) Alias {
	var a Alias
	data := []byte(s)
	if len(data) > aliasSpecLen {
		data = data[:aliasSpecLen]
	}
	copy(a[:], data)
	return a
}

func (a Alias) String() string {
	end := len(a)
	for end > 0 && a[end-1] == 0 {
		end--
	}
	return string(a[:end])
}

// NodeAnnouncement advertises a node's identity, display metadata, and the
// addresses at which it accepts incoming connections.
type NodeAnnouncement struct {
	Signature *ecdsaSignature
	Features  FeatureVector
	Timestamp uint32
	NodeID    *btcec.PublicKey
	RGBColor  RGB
	Alias     Alias
	Addresses []net.Addr
}

var _ Message = (*NodeAnnouncement)(nil)

func (a *NodeAnnouncement) MsgType() MessageType { return MsgNodeAnnouncement }

func (a *NodeAnnouncement) MaxPayloadLength() uint32 { return 8192 }

// DataToSign returns every field except the leading signature.
func (a *NodeAnnouncement) DataToSign() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeFeatureVector(&buf, a.Features); err != nil {
		return nil, err
	}
	var ts [4]byte
	binary.BigEndian.PutUint32(ts[:], a.Timestamp)
	if _, err := buf.Write(ts[:]); err != nil {
		return nil, err
	}
	if err := writePubKey(&buf, a.NodeID); err != nil {
		return nil, err
	}
	if _, err := buf.Write([]byte{a.RGBColor.Red, a.RGBColor.Green, a.RGBColor.Blue}); err != nil {
		return nil, err
	}
	if _, err := buf.Write(a.Alias[:]); err != nil {
		return nil, err
	}
	if err := writeAddresses(&buf, a.Addresses); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (a *NodeAnnouncement) Encode(w io.Writer) error {
	if err := writeSignature(w, a.Signature); err != nil {
		return err
	}
	data, err := a.DataToSign()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (a *NodeAnnouncement) Decode(r io.Reader) error {
	var err error
	if a.Signature, err = readSignature(r); err != nil {
		return err
	}
	if a.Features, err = readFeatureVector(r); err != nil {
		return err
	}
	var ts [4]byte
	if _, err = io.ReadFull(r, ts[:]); err != nil {
		return err
	}
	a.Timestamp = binary.BigEndian.Uint32(ts[:])
	if a.NodeID, err = readPubKey(r); err != nil {
		return err
	}
	var rgb [3]byte
	if _, err = io.ReadFull(r, rgb[:]); err != nil {
		return err
	}
	a.RGBColor = RGB{rgb[0], rgb[1], rgb[2]}
	if _, err = io.ReadFull(r, a.Alias[:]); err != nil {
		return err
	}
	if a.Addresses, err = readAddresses(r); err != nil {
		return err
	}
	return nil
}

// Address type tags, as laid out in BOLT#7.
const (
	addrTypeIPv4 uint8 = 1
	addrTypeIPv6 uint8 = 2
)

func writeAddresses(w io.Writer, addrs []net.Addr) error {
	var body bytes.Buffer
	for _, addr := range addrs {
		tcp, ok := addr.(*net.TCPAddr)
		if !ok {
			continue
		}
		ip4 := tcp.IP.To4()
		if ip4 != nil {
			body.WriteByte(addrTypeIPv4)
			body.Write(ip4)
		} else {
			ip6 := tcp.IP.To16()
			if ip6 == nil {
				continue
			}
			body.WriteByte(addrTypeIPv6)
			body.Write(ip6)
		}
		var portBuf [2]byte
		binary.BigEndian.PutUint16(portBuf[:], uint16(tcp.Port))
		body.Write(portBuf[:])
	}

	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(body.Len()))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(body.Bytes())
	return err
}

func readAddresses(r io.Reader) ([]net.Addr, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	total := binary.BigEndian.Uint16(lenBuf[:])
	body := make([]byte, total)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	var addrs []net.Addr
	buf := bytes.NewReader(body)
	for buf.Len() > 0 {
		tByte, err := buf.ReadByte()
		if err != nil {
			return nil, err
		}
		var ip net.IP
		switch tByte {
		case addrTypeIPv4:
			raw := make([]byte, 4)
			if _, err := io.ReadFull(buf, raw); err != nil {
				return nil, err
			}
			ip = net.IP(raw)
		case addrTypeIPv6:
			raw := make([]byte, 16)
			if _, err := io.ReadFull(buf, raw); err != nil {
				return nil, err
			}
			ip = net.IP(raw)
		default:
			return nil, errors.New("unknown address descriptor")
		}
		var portBuf [2]byte
		if _, err := io.ReadFull(buf, portBuf[:]); err != nil {
			return nil, err
		}
		port := binary.BigEndian.Uint16(portBuf[:])
		addrs = append(addrs, &net.TCPAddr{IP: ip, Port: int(port)})
	}
	return addrs, nil
}
