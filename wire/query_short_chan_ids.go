package wire

import (
	"io"
)

// QueryShortChanIDs asks the peer to resend the full announcement/update
// set for a specific list of channels, identified by scid.
type QueryShortChanIDs struct {
	ChainHash ChainHash
	ShortChanIDs []ShortChannelID

	// QueryFlags is an optional per-scid bitmask supplementing the base
	// query (see SPEC_FULL.md C.2); nil when the peer did not send one.
	QueryFlags []byte
}

var _ Message = (*QueryShortChanIDs)(nil)

func (q *QueryShortChanIDs) MsgType() MessageType { return MsgQueryShortChanIDs }

func (q *QueryShortChanIDs) MaxPayloadLength() uint32 { return 65533 }

func (q *QueryShortChanIDs) Encode(w io.Writer) error {
	if _, err := w.Write(q.ChainHash[:]); err != nil {
		return err
	}
	encoded, err := encodeShortChanIDs(q.ShortChanIDs)
	if err != nil {
		return err
	}
	if err := writeVarOctets(w, encoded); err != nil {
		return err
	}
	if q.QueryFlags == nil {
		return nil
	}
	return writeVarOctets(w, q.QueryFlags)
}

func (q *QueryShortChanIDs) Decode(r io.Reader) error {
	if _, err := io.ReadFull(r, q.ChainHash[:]); err != nil {
		return err
	}
	raw, err := readVarOctets(r)
	if err != nil {
		return err
	}
	if q.ShortChanIDs, err = decodeShortChanIDs(raw); err != nil {
		return err
	}

	flags, err := readVarOctets(r)
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}
	q.QueryFlags = flags
	return nil
}

// ReplyShortChanIDsEnd marks the end of the batch of announcements/updates
// sent in response to a QueryShortChanIDs.
type ReplyShortChanIDsEnd struct {
	ChainHash ChainHash
	Complete  uint8
}

var _ Message = (*ReplyShortChanIDsEnd)(nil)

func (r *ReplyShortChanIDsEnd) MsgType() MessageType { return MsgReplyShortChanIDsEnd }

func (r *ReplyShortChanIDsEnd) MaxPayloadLength() uint32 { return 33 }

func (r *ReplyShortChanIDsEnd) Encode(w io.Writer) error {
	if _, err := w.Write(r.ChainHash[:]); err != nil {
		return err
	}
	_, err := w.Write([]byte{r.Complete})
	return err
}

func (r *ReplyShortChanIDsEnd) Decode(rd io.Reader) error {
	if _, err := io.ReadFull(rd, r.ChainHash[:]); err != nil {
		return err
	}
	var b [1]byte
	if _, err := io.ReadFull(rd, b[:]); err != nil {
		return err
	}
	r.Complete = b[0]
	return nil
}
