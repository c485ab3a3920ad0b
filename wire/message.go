package wire

// code derived from https://github.com/btcsuite/btcd/blob/master/wire/message.go

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxMessagePayload is the maximum bytes a message can be, regardless of any
// individual limit imposed by a message's own MaxPayloadLength. The wire
// protocol omits a length field and checksum: messages arrive already
// decrypted and authenticated off the connection daemon's fd.
const MaxMessagePayload = 65535

// MessageType is the 2-byte big-endian integer identifying a message's
// concrete type on the wire.
type MessageType uint16

// The message types this gossip engine speaks. Numbering matches BOLT#1/#7.
const (
	MsgPing                      MessageType = 18
	MsgPong                      MessageType = 19
	MsgError                     MessageType = 17
	MsgChannelAnnouncement       MessageType = 256
	MsgNodeAnnouncement          MessageType = 257
	MsgChannelUpdate             MessageType = 258
	MsgAnnounceSignatures        MessageType = 259
	MsgQueryShortChanIDs         MessageType = 261
	MsgReplyShortChanIDsEnd      MessageType = 262
	MsgQueryChannelRange         MessageType = 263
	MsgReplyChannelRange         MessageType = 264
	MsgGossipTimestampFilter     MessageType = 265
)

// UnknownMessage is returned by ReadMessage when the type prefix does not
// match any message this package knows how to decode.
type UnknownMessage struct {
	Type MessageType
}

func (u *UnknownMessage) Error() string {
	return fmt.Sprintf("unknown message type %d", u.Type)
}

// Message is the interface every gossip wire message implements.
type Message interface {
	Decode(r io.Reader) error
	Encode(w io.Writer) error
	MsgType() MessageType
	MaxPayloadLength() uint32
}

// NewMessage constructs a zero-valued Message for msgType, for callers
// (such as the broadcast log replay path) that only have the type tag and
// need to Decode into the right concrete type.
func NewMessage(msgType MessageType) (Message, error) {
	return makeEmptyMessage(msgType)
}

func makeEmptyMessage(msgType MessageType) (Message, error) {
	switch msgType {
	case MsgPing:
		return &Ping{}, nil
	case MsgPong:
		return &Pong{}, nil
	case MsgError:
		return &Error{}, nil
	case MsgChannelAnnouncement:
		return &ChannelAnnouncement{}, nil
	case MsgNodeAnnouncement:
		return &NodeAnnouncement{}, nil
	case MsgChannelUpdate:
		return &ChannelUpdate{}, nil
	case MsgQueryShortChanIDs:
		return &QueryShortChanIDs{}, nil
	case MsgReplyShortChanIDsEnd:
		return &ReplyShortChanIDsEnd{}, nil
	case MsgQueryChannelRange:
		return &QueryChannelRange{}, nil
	case MsgReplyChannelRange:
		return &ReplyChannelRange{}, nil
	case MsgGossipTimestampFilter:
		return &GossipTimestampFilter{}, nil
	default:
		return nil, &UnknownMessage{Type: msgType}
	}
}

// WriteMessage encodes msg's 2-byte type prefix followed by its payload to
// w, enforcing both the global and per-message payload ceilings.
func WriteMessage(w io.Writer, msg Message) (int, error) {
	var buf bytes.Buffer
	if err := msg.Encode(&buf); err != nil {
		return 0, err
	}
	payload := buf.Bytes()

	if len(payload) > MaxMessagePayload {
		return 0, fmt.Errorf("payload of %d bytes exceeds max message "+
			"size %d", len(payload), MaxMessagePayload)
	}
	if mpl := msg.MaxPayloadLength(); uint32(len(payload)) > mpl {
		return 0, fmt.Errorf("payload of %d bytes exceeds max payload "+
			"%d for message type %d", len(payload), mpl, msg.MsgType())
	}

	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(msg.MsgType()))

	total := 0
	n, err := w.Write(hdr[:])
	total += n
	if err != nil {
		return total, err
	}
	n, err = w.Write(payload)
	total += n
	return total, err
}

// ReadMessage reads the 2-byte type prefix and dispatches to the matching
// concrete Message's Decode.
func ReadMessage(r io.Reader) (Message, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	msgType := MessageType(binary.BigEndian.Uint16(hdr[:]))

	msg, err := makeEmptyMessage(msgType)
	if err != nil {
		return nil, err
	}
	if err := msg.Decode(r); err != nil {
		return nil, err
	}
	return msg, nil
}
