package discovery

import (
	"bytes"
	"fmt"
	"math"

	"github.com/lightningnetwork/gossipd/gossiperr"
	"github.com/lightningnetwork/gossipd/graph"
	gossipwire "github.com/lightningnetwork/gossipd/wire"
)

// scid-query sub-state stages, per SPEC_FULL §4.3 "scid-id query reply".
const (
	scidStageChannels int = iota
	scidStageNodes
	scidStageEnd
	scidStageIdle
)

type scidQueryState struct {
	stage        int
	scids        []gossipwire.ShortChannelID
	idx          int
	pendingNodes []graph.NodeID
	nodeIdx      int
}

func (s *scidQueryState) active() bool { return s.stage != scidStageIdle }

// rangeQueryState tracks a query_channel_range *this* syncer issued, per
// SPEC_FULL §4.3 "Range-query accumulator".
type rangeQueryState struct {
	active     bool
	firstBlock uint32
	numBlocks  uint32
	bitmap     []byte
	scids      []gossipwire.ShortChannelID
}

// Config bundles a GossipSyncer's collaborators. SendMessage and Disconnect
// are injected rather than depending on the peer package directly, the same
// pattern discovery.Config uses for Broadcast — it lets the syncer be
// driven and tested without a live socket.
type Config struct {
	Graph     *graph.Graph
	Gossiper  *AuthenticatedGossiper
	ChainHash gossipwire.ChainHash
	PeerID    graph.NodeID

	// GossipQueriesFeature and InitialRoutingSync decide the initial
	// broadcast cursor and filter, per SPEC_FULL §4.4 "Initial cursor".
	GossipQueriesFeature bool
	InitialRoutingSync   bool

	SendMessage func(msg gossipwire.Message) error
	Disconnect  func(reason string)

	// NotifyChannelUpdateAccepted fires after a peer-sourced
	// channel_update is ingested, so the controller can re-check whether
	// its own node_announcement needs to go out (SPEC_FULL §4.5).
	NotifyChannelUpdateAccepted func()

	// DeliverChannelRange fires once a range query this syncer issued
	// completes (its coverage bitmap goes all-ones).
	DeliverChannelRange func(scids []gossipwire.ShortChannelID, complete bool)
}

// GossipSyncer is the per-peer gossip protocol state machine: the receive
// dispatch table of SPEC_FULL §4.3 and the send pump of §4.4. One instance
// is owned by each peer session.
type GossipSyncer struct {
	cfg Config

	tsMin, tsMax   uint32
	broadcastIndex uint64

	pongsOutstanding int

	scidQuery  scidQueryState
	rangeQuery rangeQueryState

	flushTimerPending bool
}

// NewGossipSyncer constructs a syncer and sets its initial cursor per
// SPEC_FULL §4.4.
func NewGossipSyncer(cfg Config) *GossipSyncer {
	s := &GossipSyncer{cfg: cfg}
	s.scidQuery.stage = scidStageIdle

	switch {
	case cfg.GossipQueriesFeature:
		s.broadcastIndex = graph.BroadcastSentinel
		// ts_min > ts_max means "send nothing" until an explicit
		// gossip_timestamp_filter arrives.
		s.tsMin, s.tsMax = 1, 0
	case cfg.InitialRoutingSync:
		s.broadcastIndex = 0
		s.tsMin, s.tsMax = 0, math.MaxUint32
	default:
		s.broadcastIndex = cfg.Graph.NextBroadcastIndex()
		s.tsMin, s.tsMax = 0, math.MaxUint32
	}

	return s
}

// HandleMessage dispatches msg per the SPEC_FULL §4.3 receive table. A nil
// return means the message was handled (possibly by silently dropping it
// or bouncing a wire error back to the peer); a non-nil *gossiperr.Error
// tells the caller (the peer session) what tier of reaction is needed —
// typically TierProtocol, which closes the connection.
func (s *GossipSyncer) HandleMessage(msg gossipwire.Message) *gossiperr.Error {
	switch m := msg.(type) {
	case *gossipwire.ChannelAnnouncement:
		return s.handleAnnouncement(m)
	case *gossipwire.NodeAnnouncement:
		return s.handleAnnouncement(m)
	case *gossipwire.ChannelUpdate:
		return s.handleAnnouncement(m)
	case *gossipwire.QueryShortChanIDs:
		return s.handleQueryShortChanIDs(m)
	case *gossipwire.ReplyShortChanIDsEnd:
		log.Debugf("peer %x: scid-query batch complete", s.cfg.PeerID[:4])
		return nil
	case *gossipwire.GossipTimestampFilter:
		return s.handleGossipTimestampFilter(m)
	case *gossipwire.QueryChannelRange:
		return s.handleQueryChannelRange(m)
	case *gossipwire.ReplyChannelRange:
		return s.handleReplyChannelRange(m)
	case *gossipwire.Ping:
		return s.handlePing(m)
	case *gossipwire.Pong:
		return s.handlePong(m)
	default:
		return gossiperr.Protocol(0, "unsupported gossip message type %T", msg)
	}
}

func (s *GossipSyncer) chainHashOK(h gossipwire.ChainHash) bool {
	if h != s.cfg.ChainHash {
		log.Debugf("peer %x: chain-hash mismatch on query/filter message, "+
			"soft-dropping", s.cfg.PeerID[:4])
		return false
	}
	return true
}

func (s *GossipSyncer) sendMessage(msg gossipwire.Message) error {
	if s.cfg.SendMessage == nil {
		return nil
	}
	return s.cfg.SendMessage(msg)
}

// handleAnnouncement routes a channel_announcement/node_announcement/
// channel_update to graph ingestion. Per SPEC_FULL §4.2/§4.3, an ingestion
// failure is reported back to the peer as a wire error rather than closing
// the connection — rejecting a stale policy or an already-known channel is
// routine, not a protocol violation.
func (s *GossipSyncer) handleAnnouncement(msg gossipwire.Message) *gossiperr.Error {
	err := <-s.cfg.Gossiper.ProcessRemoteAnnouncement(msg)
	if err != nil {
		log.Debugf("peer %x: rejecting %T: %v", s.cfg.PeerID[:4], msg, err)
		if sendErr := s.sendMessage(&gossipwire.Error{Data: []byte(err.Error())}); sendErr != nil {
			return gossiperr.Protocol(0, "send rejection to peer: %v", sendErr)
		}
		return nil
	}

	if _, ok := msg.(*gossipwire.ChannelUpdate); ok {
		if s.cfg.NotifyChannelUpdateAccepted != nil {
			s.cfg.NotifyChannelUpdateAccepted()
		}
	}
	return nil
}

// handleQueryShortChanIDs begins the scid-query reply sub-state. The
// outbound pump (DumpGossip) does the actual emitting so progress is
// interleaved with everything else this peer is owed.
func (s *GossipSyncer) handleQueryShortChanIDs(m *gossipwire.QueryShortChanIDs) *gossiperr.Error {
	if !s.chainHashOK(m.ChainHash) {
		return nil
	}
	if s.scidQuery.active() {
		return gossiperr.Protocol(0, "query_short_channel_ids received while "+
			"a prior query is still in flight")
	}

	s.scidQuery = scidQueryState{
		stage: scidStageChannels,
		scids: m.ShortChanIDs,
	}
	return nil
}

func (s *GossipSyncer) handleGossipTimestampFilter(m *gossipwire.GossipTimestampFilter) *gossiperr.Error {
	if !s.chainHashOK(m.ChainHash) {
		return nil
	}

	s.tsMin = m.FirstTimestamp
	rawEnd := int64(m.FirstTimestamp) + int64(m.TimestampRange) - 1
	switch {
	case rawEnd < 0:
		s.tsMax = 0
	case rawEnd > math.MaxUint32:
		s.tsMax = math.MaxUint32
	default:
		s.tsMax = uint32(rawEnd)
	}

	s.broadcastIndex = 0
	s.flushTimerPending = false
	return nil
}

// handleQueryChannelRange answers immediately with one or more
// reply_channel_range chunks; SPEC_FULL §4.4's priority ordering only
// concerns the scid-query sub-state, so range-query replies go straight
// out rather than through another staged sub-state.
func (s *GossipSyncer) handleQueryChannelRange(m *gossipwire.QueryChannelRange) *gossiperr.Error {
	if !s.chainHashOK(m.ChainHash) {
		return nil
	}

	chunks := ChunkRange(s.cfg.Graph, m.ChainHash, m.FirstBlockHeight, m.NumBlocks)
	for _, chunk := range chunks {
		if err := s.sendMessage(chunk); err != nil {
			return gossiperr.Protocol(0, "send reply_channel_range: %v", err)
		}
	}
	return nil
}

// StartRangeQuery issues a query_channel_range and arms the accumulator
// that collects the (possibly many) reply_channel_range records answering
// it. Only one can be in flight at a time.
func (s *GossipSyncer) StartRangeQuery(firstBlock, numBlocks uint32) *gossiperr.Error {
	if s.rangeQuery.active {
		return gossiperr.Protocol(0, "a channel-range query is already in flight")
	}

	s.rangeQuery = rangeQueryState{
		active:     true,
		firstBlock: firstBlock,
		numBlocks:  numBlocks,
		bitmap:     make([]byte, numBlocks),
	}

	err := s.sendMessage(&gossipwire.QueryChannelRange{
		ChainHash:        s.cfg.ChainHash,
		FirstBlockHeight: firstBlock,
		NumBlocks:        numBlocks,
	})
	if err != nil {
		s.rangeQuery = rangeQueryState{}
		return gossiperr.Protocol(0, "send query_channel_range: %v", err)
	}
	return nil
}

func (s *GossipSyncer) handleReplyChannelRange(m *gossipwire.ReplyChannelRange) *gossiperr.Error {
	if !s.chainHashOK(m.ChainHash) {
		return nil
	}

	rq := &s.rangeQuery
	if !rq.active {
		return gossiperr.Protocol(0, "reply_channel_range received with no "+
			"outstanding query")
	}

	f, n := m.FirstBlockHeight, m.NumBlocks
	if uint64(f) < uint64(rq.firstBlock) ||
		uint64(f)+uint64(n) > uint64(rq.firstBlock)+uint64(rq.numBlocks) {
		return gossiperr.Protocol(0, "reply_channel_range [%d,%d) falls "+
			"outside the requested [%d,%d)", f, f+n, rq.firstBlock,
			rq.firstBlock+rq.numBlocks)
	}

	start := f - rq.firstBlock
	for i := uint32(0); i < n; i++ {
		if rq.bitmap[start+i] != 0 {
			return gossiperr.Protocol(0, "reply_channel_range "+
				"[%d,%d) overlaps a block already covered", f, f+n)
		}
	}
	for i := uint32(0); i < n; i++ {
		rq.bitmap[start+i] = 1
	}
	rq.scids = append(rq.scids, m.ShortChanIDs...)

	complete := true
	for _, b := range rq.bitmap {
		if b == 0 {
			complete = false
			break
		}
	}
	if complete {
		scids := rq.scids
		replyComplete := m.Complete != 0
		s.rangeQuery = rangeQueryState{}
		if s.cfg.DeliverChannelRange != nil {
			s.cfg.DeliverChannelRange(scids, replyComplete)
		}
	}
	return nil
}

// handlePing answers per SPEC_FULL §4.3's ping contract: a pong is only
// sent back when the requested padding is itself within bounds, so a
// misbehaving peer can't use ping to make us emit an oversized message.
func (s *GossipSyncer) handlePing(m *gossipwire.Ping) *gossiperr.Error {
	if m.NumPongBytes >= 65532 {
		return nil
	}
	err := s.sendMessage(&gossipwire.Pong{PaddingBytes: make([]byte, m.NumPongBytes)})
	if err != nil {
		return gossiperr.Protocol(0, "send pong: %v", err)
	}
	return nil
}

func (s *GossipSyncer) handlePong(_ *gossipwire.Pong) *gossiperr.Error {
	if s.pongsOutstanding == 0 {
		return gossiperr.Protocol(0, "unsolicited pong")
	}
	s.pongsOutstanding--
	return nil
}

// SendPing emits a ping and marks one pong as outstanding.
func (s *GossipSyncer) SendPing(numPongBytes uint16, paddingLen int) *gossiperr.Error {
	err := s.sendMessage(&gossipwire.Ping{
		NumPongBytes: numPongBytes,
		PaddingBytes: make([]byte, paddingLen),
	})
	if err != nil {
		return gossiperr.Protocol(0, "send ping: %v", err)
	}
	s.pongsOutstanding++
	return nil
}

// DumpGossip is the send pump of SPEC_FULL §4.4: invoked whenever the
// outbound queue is writable, it emits at most one logical batch and
// reports whether it should be called again immediately.
func (s *GossipSyncer) DumpGossip() bool {
	if sent, ok := s.pumpScidQuery(); ok {
		return sent
	}

	if s.flushTimerPending {
		return false
	}

	msgType, payload, newIndex, ok := s.cfg.Graph.NextAfter(s.broadcastIndex, s.tsMin, s.tsMax)
	s.broadcastIndex = newIndex
	if !ok {
		s.flushTimerPending = true
		return false
	}

	msg, err := decodeBroadcastEntry(msgType, payload)
	if err != nil {
		log.Errorf("peer %x: corrupt broadcast log entry: %v", s.cfg.PeerID[:4], err)
		return true
	}
	if err := s.sendMessage(msg); err != nil {
		log.Errorf("peer %x: send failed: %v", s.cfg.PeerID[:4], err)
	}
	return true
}

// FlushTimerFired is called by the owning peer session's per-peer
// staggered timer once it expires; it clears the "nothing to send right
// now" gate so the next DumpGossip call re-checks the broadcast log.
func (s *GossipSyncer) FlushTimerFired() {
	s.flushTimerPending = false
}

// pumpScidQuery advances the scid-query reply sub-state by exactly one
// logical batch. ok is false when there is no active scid query, meaning
// the caller should fall through to the broadcast-log priority tier.
func (s *GossipSyncer) pumpScidQuery() (sent bool, ok bool) {
	sq := &s.scidQuery
	if !sq.active() {
		return false, false
	}

	switch sq.stage {
	case scidStageChannels:
		for sq.idx < len(sq.scids) {
			scid := sq.scids[sq.idx]
			sq.idx++

			ch, err := s.cfg.Graph.GetChannel(scid.ToUint64())
			if err != nil || !ch.Announced() {
				continue
			}

			s.emitRaw(gossipwire.MsgChannelAnnouncement, ch.RawAnnouncement)
			for i := 0; i < 2; i++ {
				if ch.Halves[i].Defined() {
					s.emitRaw(gossipwire.MsgChannelUpdate, ch.Halves[i].RawUpdate)
				}
			}
			sq.pendingNodes = append(sq.pendingNodes, ch.NodeIDs[0], ch.NodeIDs[1])
			return true, true
		}

		sq.pendingNodes = graph.SortNodeIDs(sq.pendingNodes)
		sq.stage = scidStageNodes
		sq.nodeIdx = 0
		return s.pumpScidQuery()

	case scidStageNodes:
		for sq.nodeIdx < len(sq.pendingNodes) {
			nid := sq.pendingNodes[sq.nodeIdx]
			sq.nodeIdx++

			n, err := s.cfg.Graph.GetNode(nid)
			if err != nil || !n.HasAnnouncement() {
				continue
			}
			s.emitRaw(gossipwire.MsgNodeAnnouncement, n.RawAnnouncement)
			return true, true
		}

		sq.stage = scidStageEnd
		return s.pumpScidQuery()

	case scidStageEnd:
		err := s.sendMessage(&gossipwire.ReplyShortChanIDsEnd{
			ChainHash: s.cfg.ChainHash,
			Complete:  1,
		})
		if err != nil {
			log.Errorf("peer %x: send reply_short_channel_ids_end: %v",
				s.cfg.PeerID[:4], err)
		}
		*sq = scidQueryState{stage: scidStageIdle}
		return true, true

	default:
		return false, false
	}
}

func (s *GossipSyncer) emitRaw(msgType gossipwire.MessageType, raw []byte) {
	msg, err := decodeBroadcastEntry(msgType, raw)
	if err != nil {
		log.Errorf("peer %x: corrupt cached announcement: %v", s.cfg.PeerID[:4], err)
		return
	}
	if err := s.sendMessage(msg); err != nil {
		log.Errorf("peer %x: send failed: %v", s.cfg.PeerID[:4], err)
	}
}

// decodeBroadcastEntry decodes an encode-only payload (no 2-byte type
// prefix, the form cached in the graph and the broadcast log) back into
// its concrete wire.Message given the message type tag stored alongside it.
func decodeBroadcastEntry(msgType gossipwire.MessageType, payload []byte) (gossipwire.Message, error) {
	msg, err := gossipwire.NewMessage(msgType)
	if err != nil {
		return nil, fmt.Errorf("unknown broadcast entry type %d: %w", msgType, err)
	}
	if err := msg.Decode(bytes.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("decode broadcast entry of type %d: %w", msgType, err)
	}
	return msg, nil
}
