package discovery

import (
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/gossipd/graph"
	gossipwire "github.com/lightningnetwork/gossipd/wire"
)

// compactSig signs digest with priv and returns the raw 64-byte r||s
// encoding the wire package's signature fields expect, mirroring how the
// real signer (fd3) returns a signature for signerrpc to wrap.
func compactSig(t *testing.T, priv *btcec.PrivateKey, digest []byte) []byte {
	t.Helper()
	sig := ecdsa.Sign(priv, digest)
	r, s := sig.R(), sig.S()
	rBytes, sBytes := r.Bytes(), s.Bytes()

	out := make([]byte, 64)
	copy(out[:32], rBytes[:])
	copy(out[32:], sBytes[:])
	return out
}

func digestOf(t *testing.T, data []byte) []byte {
	t.Helper()
	return chainhash.DoubleHashB(data)
}

func newKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv
}

func signedChannelAnnouncement(t *testing.T, scid gossipwire.ShortChannelID, n1, n2, b1, b2 *btcec.PrivateKey) *gossipwire.ChannelAnnouncement {
	t.Helper()
	msg := &gossipwire.ChannelAnnouncement{
		ChainHash:   gossipwire.ChainHash{0x01},
		ShortChanID: scid,
		NodeID1:     n1.PubKey(),
		NodeID2:     n2.PubKey(),
		BitcoinKey1: b1.PubKey(),
		BitcoinKey2: b2.PubKey(),
	}

	data, err := msg.DataToSign()
	require.NoError(t, err)
	digest := digestOf(t, data)

	var sigErr error
	msg.NodeSig1, sigErr = gossipwire.NewSignatureFromCompact(compactSig(t, n1, digest))
	require.NoError(t, sigErr)
	msg.NodeSig2, sigErr = gossipwire.NewSignatureFromCompact(compactSig(t, n2, digest))
	require.NoError(t, sigErr)
	msg.BitcoinSig1, sigErr = gossipwire.NewSignatureFromCompact(compactSig(t, b1, digest))
	require.NoError(t, sigErr)
	msg.BitcoinSig2, sigErr = gossipwire.NewSignatureFromCompact(compactSig(t, b2, digest))
	require.NoError(t, sigErr)

	return msg
}

func signedNodeAnnouncement(t *testing.T, priv *btcec.PrivateKey, ts uint32) *gossipwire.NodeAnnouncement {
	t.Helper()
	msg := &gossipwire.NodeAnnouncement{
		Timestamp: ts,
		NodeID:    priv.PubKey(),
		Alias:     gossipwire.NewAlias("test-node"),
	}
	data, err := msg.DataToSign()
	require.NoError(t, err)
	digest := digestOf(t, data)

	msg.Signature, err = gossipwire.NewSignatureFromCompact(compactSig(t, priv, digest))
	require.NoError(t, err)
	return msg
}

func signedChannelUpdate(t *testing.T, priv *btcec.PrivateKey, scid gossipwire.ShortChannelID, direction uint8, ts uint32) *gossipwire.ChannelUpdate {
	t.Helper()
	msg := &gossipwire.ChannelUpdate{
		ShortChanID:  scid,
		Timestamp:    ts,
		ChannelFlags: gossipwire.ChanUpdateFlag(direction),
		BaseFee:      1000,
		FeeRate:      10,
	}
	data, err := msg.DataToSign()
	require.NoError(t, err)
	digest := digestOf(t, data)

	msg.Signature, err = gossipwire.NewSignatureFromCompact(compactSig(t, priv, digest))
	require.NoError(t, err)
	return msg
}

func newTestGossiper(t *testing.T, lookup TxOutLookup) (*AuthenticatedGossiper, *graph.Graph, *[][]byte) {
	t.Helper()
	g, err := graph.New(nil)
	require.NoError(t, err)

	var broadcasts [][]byte
	gossiper := New(Config{
		Graph:       g,
		ChainHash:   gossipwire.ChainHash{0x01},
		LookupTxOut: lookup,
		Clock:       clock.NewTestClock(time.Unix(500000, 0)),
		Broadcast: func(payload []byte) {
			broadcasts = append(broadcasts, payload)
		},
	})
	return gossiper, g, &broadcasts
}

func TestProcessRemoteChannelAnnouncementResolvesAndBroadcasts(t *testing.T) {
	n1, n2, b1, b2 := newKey(t), newKey(t), newKey(t), newKey(t)
	scid := gossipwire.ShortChannelID{BlockHeight: 100, TxIndex: 1, TxPosition: 0}

	gossiper, g, broadcasts := newTestGossiper(t, func(s gossipwire.ShortChannelID) (uint64, error) {
		require.Equal(t, scid, s)
		return 100000, nil
	})

	msg := signedChannelAnnouncement(t, scid, n1, n2, b1, b2)
	err := <-gossiper.ProcessRemoteAnnouncement(msg)
	require.NoError(t, err)

	ch, err := g.GetChannel(scid.ToUint64())
	require.NoError(t, err)
	require.Equal(t, uint64(100000), ch.Satoshis)
	require.Len(t, *broadcasts, 1)
}

func TestProcessRemoteChannelAnnouncementRejectsInvalidSignature(t *testing.T) {
	n1, n2, b1, b2 := newKey(t), newKey(t), newKey(t), newKey(t)
	scid := gossipwire.ShortChannelID{BlockHeight: 1, TxIndex: 0, TxPosition: 0}

	gossiper, g, broadcasts := newTestGossiper(t, func(gossipwire.ShortChannelID) (uint64, error) {
		t.Fatal("funding lookup should not be reached for an invalid signature")
		return 0, nil
	})

	msg := signedChannelAnnouncement(t, scid, n1, n2, b1, b2)
	// Corrupt one signature after signing so it no longer matches the
	// digest, without touching the duplicate-scid fast path.
	msg.NodeSig2 = msg.NodeSig1

	err := <-gossiper.ProcessRemoteAnnouncement(msg)
	require.Error(t, err)

	_, err = g.GetChannel(scid.ToUint64())
	require.ErrorIs(t, err, graph.ErrChannelNotFound)
	require.Empty(t, *broadcasts)
}

func TestProcessRemoteChannelAnnouncementLookupFailureLeavesChannelPending(t *testing.T) {
	n1, n2, b1, b2 := newKey(t), newKey(t), newKey(t), newKey(t)
	scid := gossipwire.ShortChannelID{BlockHeight: 2, TxIndex: 0, TxPosition: 0}

	lookupErr := errors.New("funding output not yet confirmed")
	gossiper, g, _ := newTestGossiper(t, func(gossipwire.ShortChannelID) (uint64, error) {
		return 0, lookupErr
	})

	msg := signedChannelAnnouncement(t, scid, n1, n2, b1, b2)
	err := <-gossiper.ProcessRemoteAnnouncement(msg)
	require.Error(t, err)

	// The channel record exists (IngestChannelAnnouncement ran) but stays
	// pending, so GetChannel still reports it as not found.
	_, err = g.GetChannel(scid.ToUint64())
	require.ErrorIs(t, err, graph.ErrChannelNotFound)
}

func TestProcessRemoteNodeAnnouncementIngestsAndBroadcasts(t *testing.T) {
	priv := newKey(t)
	gossiper, g, broadcasts := newTestGossiper(t, nil)

	msg := signedNodeAnnouncement(t, priv, 100)
	err := <-gossiper.ProcessRemoteAnnouncement(msg)
	require.NoError(t, err)

	n, err := g.GetNode(graph.NewNodeID(priv.PubKey()))
	require.NoError(t, err)
	require.Equal(t, "test-node", n.Alias.String())
	require.Len(t, *broadcasts, 1)
}

func TestProcessRemoteNodeAnnouncementRejectsInvalidSignature(t *testing.T) {
	priv := newKey(t)
	other := newKey(t)
	gossiper, g, _ := newTestGossiper(t, nil)

	msg := signedNodeAnnouncement(t, priv, 100)
	// Re-sign with a different key so the embedded NodeID no longer
	// matches the signature.
	data, err := msg.DataToSign()
	require.NoError(t, err)
	msg.Signature, err = gossipwire.NewSignatureFromCompact(compactSig(t, other, digestOf(t, data)))
	require.NoError(t, err)

	err = <-gossiper.ProcessRemoteAnnouncement(msg)
	require.Error(t, err)

	_, err = g.GetNode(graph.NewNodeID(priv.PubKey()))
	require.ErrorIs(t, err, graph.ErrNodeNotFound)
}

func TestProcessChannelUpdateRemoteAcceptsOnExistingChannel(t *testing.T) {
	n1, n2, b1, b2 := newKey(t), newKey(t), newKey(t), newKey(t)
	scid := gossipwire.ShortChannelID{BlockHeight: 3, TxIndex: 0, TxPosition: 0}

	gossiper, g, broadcasts := newTestGossiper(t, func(gossipwire.ShortChannelID) (uint64, error) {
		return 50000, nil
	})

	ann := signedChannelAnnouncement(t, scid, n1, n2, b1, b2)
	require.NoError(t, <-gossiper.ProcessRemoteAnnouncement(ann))
	*broadcasts = nil

	upd := signedChannelUpdate(t, n1, scid, 0, 10)
	err := <-gossiper.ProcessRemoteAnnouncement(upd)
	require.NoError(t, err)

	ch, err := g.GetChannel(scid.ToUint64())
	require.NoError(t, err)
	require.Equal(t, uint32(1000), ch.Halves[0].BaseFeeMsat)
	require.Len(t, *broadcasts, 1)
}

func TestProcessLocalChannelUpdateRejectionIsFatal(t *testing.T) {
	priv := newKey(t)
	gossiper, _, _ := newTestGossiper(t, nil)

	// No channel exists for this scid, so the update is rejected; since
	// it is locally-produced, the gossiper must wrap it as fatal rather
	// than a routine protocol error (SPEC_FULL §4.5).
	upd := signedChannelUpdate(t, priv, gossipwire.ShortChannelID{BlockHeight: 999}, 0, 1)
	err := <-gossiper.ProcessLocalAnnouncement(upd)
	require.Error(t, err)
	require.ErrorIs(t, err, graph.ErrChannelNotFound)
	require.Contains(t, err.Error(), "fatal")
}

func TestProcessRejectsUnsupportedMessageType(t *testing.T) {
	gossiper, _, _ := newTestGossiper(t, nil)
	err := <-gossiper.ProcessRemoteAnnouncement(&gossipwire.Ping{})
	require.Error(t, err)
}
