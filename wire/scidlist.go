package wire

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
)

// Encoding tags for a short_channel_id list, per BOLT#7. Using the standard
// library's compress/zlib and encoding/binary here is a deliberate exception
// to the "prefer an ecosystem library" rule: the wire format mandates this
// exact zlib stream and a library substitute would not produce
// interoperable bytes.
const (
	encodingSortedPlain uint8 = 0x00
	encodingZlib        uint8 = 0x01
)

// EncodeShortChanIDs is the exported form of encodeShortChanIDs, used by
// the discovery package to measure a candidate reply_channel_range chunk's
// encoded size before committing to it.
func EncodeShortChanIDs(ids []ShortChannelID) ([]byte, error) {
	return encodeShortChanIDs(ids)
}

// encodeShortChanIDs serializes ids as 8-byte big-endian entries, trying
// zlib compression and falling back to the uncompressed form whenever
// compression does not actually shrink the payload.
func encodeShortChanIDs(ids []ShortChannelID) ([]byte, error) {
	var plain bytes.Buffer
	for _, id := range ids {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], id.ToUint64())
		plain.Write(buf[:])
	}

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(plain.Bytes()); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	if compressed.Len() < plain.Len() {
		out := make([]byte, 1+compressed.Len())
		out[0] = encodingZlib
		copy(out[1:], compressed.Bytes())
		return out, nil
	}

	out := make([]byte, 1+plain.Len())
	out[0] = encodingSortedPlain
	copy(out[1:], plain.Bytes())
	return out, nil
}

func decodeShortChanIDs(raw []byte) ([]ShortChannelID, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	tag := raw[0]
	body := raw[1:]

	var plain []byte
	switch tag {
	case encodingSortedPlain:
		plain = body
	case encodingZlib:
		zr, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("invalid zlib scid list: %w", err)
		}
		defer zr.Close()
		decoded, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("invalid zlib scid list: %w", err)
		}
		plain = decoded
	default:
		return nil, fmt.Errorf("unknown scid list encoding 0x%02x", tag)
	}

	if len(plain)%8 != 0 {
		return nil, fmt.Errorf("scid list length %d not a multiple of 8", len(plain))
	}

	ids := make([]ShortChannelID, 0, len(plain)/8)
	for i := 0; i < len(plain); i += 8 {
		ids = append(ids, NewShortChanIDFromInt(binary.BigEndian.Uint64(plain[i:i+8])))
	}
	return ids, nil
}

func writeVarOctets(w io.Writer, data []byte) error {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readVarOctets(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	data := make([]byte, n)
	_, err := io.ReadFull(r, data)
	return data, err
}
