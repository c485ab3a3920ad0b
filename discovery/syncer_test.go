package discovery

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/gossipd/gossiperr"
	"github.com/lightningnetwork/gossipd/graph"
	gossipwire "github.com/lightningnetwork/gossipd/wire"
)

type sentRecorder struct {
	sent []gossipwire.Message
}

func (r *sentRecorder) send(msg gossipwire.Message) error {
	r.sent = append(r.sent, msg)
	return nil
}

func newTestSyncer(t *testing.T, rec *sentRecorder) *GossipSyncer {
	t.Helper()
	g, err := graph.New(nil)
	require.NoError(t, err)
	return NewGossipSyncer(Config{
		Graph:       g,
		ChainHash:   gossipwire.ChainHash{0xAA},
		SendMessage: rec.send,
	})
}

func TestHandlePingRepliesWithinBounds(t *testing.T) {
	rec := &sentRecorder{}
	s := newTestSyncer(t, rec)

	gerr := s.HandleMessage(&gossipwire.Ping{NumPongBytes: 10})
	require.Nil(t, gerr)
	require.Len(t, rec.sent, 1)
	pong, ok := rec.sent[0].(*gossipwire.Pong)
	require.True(t, ok)
	require.Len(t, pong.PaddingBytes, 10)
}

func TestHandlePingIgnoresOversizedRequest(t *testing.T) {
	rec := &sentRecorder{}
	s := newTestSyncer(t, rec)

	gerr := s.HandleMessage(&gossipwire.Ping{NumPongBytes: 65532})
	require.Nil(t, gerr)
	require.Empty(t, rec.sent)
}

func TestSendPingThenPongClearsOutstanding(t *testing.T) {
	rec := &sentRecorder{}
	s := newTestSyncer(t, rec)

	gerr := s.SendPing(5, 5)
	require.Nil(t, gerr)
	require.Equal(t, 1, s.pongsOutstanding)

	gerr = s.HandleMessage(&gossipwire.Pong{})
	require.Nil(t, gerr)
	require.Equal(t, 0, s.pongsOutstanding)
}

func TestUnsolicitedPongIsProtocolError(t *testing.T) {
	rec := &sentRecorder{}
	s := newTestSyncer(t, rec)

	gerr := s.HandleMessage(&gossipwire.Pong{})
	require.NotNil(t, gerr)
	require.Equal(t, gossiperr.TierProtocol, gerr.Tier)
}

func TestHandleGossipTimestampFilterSaturatesAtMax(t *testing.T) {
	rec := &sentRecorder{}
	s := newTestSyncer(t, rec)

	gerr := s.HandleMessage(&gossipwire.GossipTimestampFilter{
		ChainHash:      s.cfg.ChainHash,
		FirstTimestamp: 100,
		TimestampRange: math.MaxUint32,
	})
	require.Nil(t, gerr)
	require.Equal(t, uint32(100), s.tsMin)
	require.Equal(t, uint32(math.MaxUint32), s.tsMax)
	require.Equal(t, uint64(0), s.broadcastIndex)
}

func TestHandleGossipTimestampFilterResetsCursorAndFlushGate(t *testing.T) {
	rec := &sentRecorder{}
	s := newTestSyncer(t, rec)
	s.broadcastIndex = 42
	s.flushTimerPending = true

	gerr := s.HandleMessage(&gossipwire.GossipTimestampFilter{
		ChainHash:      s.cfg.ChainHash,
		FirstTimestamp: 5,
		TimestampRange: 10,
	})
	require.Nil(t, gerr)
	require.Equal(t, uint32(5), s.tsMin)
	require.Equal(t, uint32(14), s.tsMax)
	require.Equal(t, uint64(0), s.broadcastIndex)
	require.False(t, s.flushTimerPending)
}

func TestChainHashMismatchIsSoftDropNotProtocolError(t *testing.T) {
	rec := &sentRecorder{}
	s := newTestSyncer(t, rec)

	wrong := gossipwire.ChainHash{0xBB}
	gerr := s.HandleMessage(&gossipwire.QueryChannelRange{
		ChainHash:        wrong,
		FirstBlockHeight: 0,
		NumBlocks:        10,
	})
	require.Nil(t, gerr)
	require.Empty(t, rec.sent)
}

func TestHandleQueryShortChanIDsRejectsWhileBusy(t *testing.T) {
	rec := &sentRecorder{}
	s := newTestSyncer(t, rec)

	m := &gossipwire.QueryShortChanIDs{ChainHash: s.cfg.ChainHash}
	gerr := s.HandleMessage(m)
	require.Nil(t, gerr)
	require.True(t, s.scidQuery.active())

	gerr = s.HandleMessage(m)
	require.NotNil(t, gerr)
	require.Equal(t, gossiperr.TierProtocol, gerr.Tier)
}

func TestPumpScidQueryWithNoKnownChannelsEndsImmediately(t *testing.T) {
	rec := &sentRecorder{}
	s := newTestSyncer(t, rec)

	gerr := s.HandleMessage(&gossipwire.QueryShortChanIDs{
		ChainHash:    s.cfg.ChainHash,
		ShortChanIDs: []gossipwire.ShortChannelID{{BlockHeight: 1}, {BlockHeight: 2}},
	})
	require.Nil(t, gerr)

	for s.scidQuery.active() {
		s.DumpGossip()
	}

	require.Len(t, rec.sent, 1)
	end, ok := rec.sent[0].(*gossipwire.ReplyShortChanIDsEnd)
	require.True(t, ok)
	require.EqualValues(t, 1, end.Complete)
}

func TestDumpGossipArmsFlushTimerWhenBroadcastLogIsEmpty(t *testing.T) {
	rec := &sentRecorder{}
	s := newTestSyncer(t, rec)
	s.tsMin, s.tsMax = 0, math.MaxUint32

	again := s.DumpGossip()
	require.False(t, again)
	require.True(t, s.flushTimerPending)
	require.Empty(t, rec.sent)

	// A second call returns immediately without touching the graph again.
	again = s.DumpGossip()
	require.False(t, again)

	s.FlushTimerFired()
	require.False(t, s.flushTimerPending)
}

func TestStartRangeQueryRejectsSecondInFlight(t *testing.T) {
	rec := &sentRecorder{}
	s := newTestSyncer(t, rec)

	gerr := s.StartRangeQuery(0, 100)
	require.Nil(t, gerr)

	gerr = s.StartRangeQuery(0, 100)
	require.NotNil(t, gerr)
	require.Equal(t, gossiperr.TierProtocol, gerr.Tier)
}

func TestHandleReplyChannelRangeRejectsOutOfRange(t *testing.T) {
	rec := &sentRecorder{}
	s := newTestSyncer(t, rec)
	require.Nil(t, s.StartRangeQuery(100, 50))

	gerr := s.HandleMessage(&gossipwire.ReplyChannelRange{
		ChainHash:        s.cfg.ChainHash,
		FirstBlockHeight: 90,
		NumBlocks:        10,
		Complete:         1,
	})
	require.NotNil(t, gerr)
	require.Equal(t, gossiperr.TierProtocol, gerr.Tier)
}

func TestHandleReplyChannelRangeRejectsOverlap(t *testing.T) {
	rec := &sentRecorder{}
	s := newTestSyncer(t, rec)
	require.Nil(t, s.StartRangeQuery(100, 50))

	gerr := s.HandleMessage(&gossipwire.ReplyChannelRange{
		ChainHash: s.cfg.ChainHash, FirstBlockHeight: 100, NumBlocks: 10, Complete: 1,
	})
	require.Nil(t, gerr)

	gerr = s.HandleMessage(&gossipwire.ReplyChannelRange{
		ChainHash: s.cfg.ChainHash, FirstBlockHeight: 105, NumBlocks: 10, Complete: 1,
	})
	require.NotNil(t, gerr)
	require.Equal(t, gossiperr.TierProtocol, gerr.Tier)
}

func TestHandleReplyChannelRangeDeliversOnceBitmapIsFull(t *testing.T) {
	rec := &sentRecorder{}
	s := newTestSyncer(t, rec)

	var delivered []gossipwire.ShortChannelID
	var deliveredComplete bool
	called := false
	s.cfg.DeliverChannelRange = func(scids []gossipwire.ShortChannelID, complete bool) {
		called = true
		delivered = scids
		deliveredComplete = complete
	}

	require.Nil(t, s.StartRangeQuery(100, 20))

	first := []gossipwire.ShortChannelID{{BlockHeight: 101}}
	gerr := s.HandleMessage(&gossipwire.ReplyChannelRange{
		ChainHash: s.cfg.ChainHash, FirstBlockHeight: 100, NumBlocks: 10,
		Complete: 1, ShortChanIDs: first,
	})
	require.Nil(t, gerr)
	require.False(t, called)

	second := []gossipwire.ShortChannelID{{BlockHeight: 115}}
	gerr = s.HandleMessage(&gossipwire.ReplyChannelRange{
		ChainHash: s.cfg.ChainHash, FirstBlockHeight: 110, NumBlocks: 10,
		Complete: 1, ShortChanIDs: second,
	})
	require.Nil(t, gerr)
	require.True(t, called)
	require.True(t, deliveredComplete)
	require.Equal(t, append(append([]gossipwire.ShortChannelID{}, first...), second...), delivered)
	require.False(t, s.rangeQuery.active)
}

func TestHandleMessageRejectsUnknownType(t *testing.T) {
	rec := &sentRecorder{}
	s := newTestSyncer(t, rec)

	gerr := s.HandleMessage(&gossipwire.Error{})
	require.NotNil(t, gerr)
	require.Equal(t, gossiperr.TierProtocol, gerr.Tier)
}
