// Package peer owns one gossip peer's live connection: the read/write
// loops over an already-decrypted byte stream, the outbound message queue,
// and the per-peer staggered broadcast-flush timer that drives the
// discovery.GossipSyncer send pump. SPEC_FULL §4.3-4.4, §5.
package peer

import (
	"io"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/queue"
	"github.com/lightningnetwork/lnd/ticker"

	"github.com/lightningnetwork/gossipd/discovery"
	"github.com/lightningnetwork/gossipd/graph"
	"github.com/lightningnetwork/gossipd/gossiperr"
	gossipwire "github.com/lightningnetwork/gossipd/wire"
)

// defaultOutboundQueueSize is the output buffer size of the outbound
// ConcurrentQueue. The queue itself is unbounded: past this size it keeps
// messages in an overflow list, so SendMessage does not block on a slow
// peer and the number of buffered messages is not capped.
const defaultOutboundQueueSize = 50

// defaultFlushInterval is how often DumpGossip is re-armed once it has
// drained everything currently owed to this peer, matching the "staggered
// per-peer timer" SPEC_FULL §4.4 calls for.
const defaultFlushInterval = time.Second

// defaultRateLimit and defaultRateBurst bound inbound gossip processing per
// peer (SPEC_FULL §C.3).
const (
	defaultRateLimit = 100.0 // messages/sec
	defaultRateBurst = 200.0
)

// Config bundles a Session's collaborators. Graph/Gossiper/ChainHash and
// the GossipSyncer tuning knobs are passed straight through to
// discovery.NewGossipSyncer; Conn is the already-authenticated,
// already-decrypted byte stream the connection daemon handed us (SPEC_FULL
// §1, §6 — this package never dials, listens, or touches the noise
// handshake itself).
type Config struct {
	PeerID graph.NodeID
	Conn   io.ReadWriteCloser

	Graph     *graph.Graph
	Gossiper  *discovery.AuthenticatedGossiper
	ChainHash gossipwire.ChainHash

	GossipQueriesFeature bool
	InitialRoutingSync   bool

	NotifyChannelUpdateAccepted func()
	DeliverChannelRange         func(scids []gossipwire.ShortChannelID, complete bool)

	// OnDisconnect is called exactly once, from whichever goroutine first
	// detects the connection is gone, with the error that triggered the
	// teardown (nil for a clean Stop()).
	OnDisconnect func(peerID graph.NodeID, err error)

	// FlushTicker overrides the broadcast-flush timer; nil uses
	// ticker.New(defaultFlushInterval). Tests inject a ticker.Mock so
	// FlushTimerFired fires deterministically via Force instead of
	// waiting on a wall-clock interval.
	FlushTicker ticker.Ticker

	// OutboundQueueSize overrides defaultOutboundQueueSize; zero means
	// use the default.
	OutboundQueueSize int

	// Clock drives the inbound rate limiter; nil uses
	// clock.NewDefaultClock().
	Clock clock.Clock

	// RateLimit/RateBurst override the inbound token bucket; zero means
	// use the package defaults.
	RateLimit float64
	RateBurst float64
}

// Session is one connected peer's gossip state: the syncer, the outbound
// queue, and the goroutines pumping both ends of Conn.
type Session struct {
	cfg    Config
	syncer *discovery.GossipSyncer

	outbound    *queue.ConcurrentQueue
	flushTicker ticker.Ticker
	limiter     *tokenBucket

	quit chan struct{}
	wg   sync.WaitGroup

	stopOnce sync.Once
}

// NewSession constructs a Session and its GossipSyncer, wiring the
// syncer's SendMessage/Disconnect callbacks to this session's own outbound
// queue and teardown path.
func NewSession(cfg Config) *Session {
	queueSize := cfg.OutboundQueueSize
	if queueSize <= 0 {
		queueSize = defaultOutboundQueueSize
	}

	flushTicker := cfg.FlushTicker
	if flushTicker == nil {
		flushTicker = ticker.New(defaultFlushInterval)
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewDefaultClock()
	}

	rateLimit := cfg.RateLimit
	if rateLimit <= 0 {
		rateLimit = defaultRateLimit
	}
	rateBurst := cfg.RateBurst
	if rateBurst <= 0 {
		rateBurst = defaultRateBurst
	}

	s := &Session{
		cfg:         cfg,
		outbound:    queue.NewConcurrentQueue(queueSize),
		flushTicker: flushTicker,
		limiter:     newTokenBucket(clk, rateLimit, rateBurst),
		quit:        make(chan struct{}),
	}

	s.syncer = discovery.NewGossipSyncer(discovery.Config{
		Graph:                       cfg.Graph,
		Gossiper:                    cfg.Gossiper,
		ChainHash:                   cfg.ChainHash,
		PeerID:                      cfg.PeerID,
		GossipQueriesFeature:        cfg.GossipQueriesFeature,
		InitialRoutingSync:          cfg.InitialRoutingSync,
		SendMessage:                 s.enqueue,
		Disconnect:                  s.teardownReason,
		NotifyChannelUpdateAccepted: cfg.NotifyChannelUpdateAccepted,
		DeliverChannelRange:         cfg.DeliverChannelRange,
	})

	return s
}

// ID returns the node id this session speaks for.
func (s *Session) ID() graph.NodeID { return s.cfg.PeerID }

// Syncer exposes the underlying GossipSyncer, for the controller to drive
// StartRangeQuery/SendPing on an established session.
func (s *Session) Syncer() *discovery.GossipSyncer { return s.syncer }

// Start launches the read, write, and flush-timer goroutines. It returns
// immediately; failures surface through Config.OnDisconnect.
func (s *Session) Start() {
	s.outbound.Start()
	s.flushTicker.Resume()

	s.wg.Add(3)
	go s.readLoop()
	go s.writeLoop()
	go s.flushLoop()
}

// Stop tears the session down and blocks until every goroutine has exited.
func (s *Session) Stop() {
	s.teardownReason("")
	s.wg.Wait()
}

func (s *Session) teardownReason(reason string) {
	s.stopOnce.Do(func() {
		close(s.quit)
		s.cfg.Conn.Close()
		s.outbound.Stop()
		s.flushTicker.Stop()

		if s.cfg.OnDisconnect == nil {
			return
		}
		var err error
		if reason != "" {
			err = &disconnectError{reason: reason}
		}
		s.cfg.OnDisconnect(s.cfg.PeerID, err)
	})
}

type disconnectError struct{ reason string }

func (e *disconnectError) Error() string { return e.reason }

// enqueue is handed to the GossipSyncer as SendMessage: it hands msg to the
// outbound queue without blocking on the wire, so a slow write doesn't
// stall the syncer's receive-dispatch goroutine.
func (s *Session) enqueue(msg gossipwire.Message) error {
	select {
	case s.outbound.ChanIn() <- msg:
		return nil
	case <-s.quit:
		return io.ErrClosedPipe
	}
}

func (s *Session) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case item, ok := <-s.outbound.ChanOut():
			if !ok {
				return
			}
			msg, ok := item.(gossipwire.Message)
			if !ok {
				log.Errorf("peer %x: non-message enqueued on outbound "+
					"queue: %T", s.cfg.PeerID[:4], item)
				continue
			}
			if _, err := gossipwire.WriteMessage(s.cfg.Conn, msg); err != nil {
				log.Errorf("peer %x: write failed: %v", s.cfg.PeerID[:4], err)
				s.teardownReason(err.Error())
				return
			}
		case <-s.quit:
			return
		}
	}
}

func (s *Session) readLoop() {
	defer s.wg.Done()

	for {
		msg, err := gossipwire.ReadMessage(s.cfg.Conn)
		if err != nil {
			select {
			case <-s.quit:
			default:
				log.Debugf("peer %x: read failed: %v", s.cfg.PeerID[:4], err)
				s.teardownReason(err.Error())
			}
			return
		}

		if !s.limiter.Allow() {
			log.Debugf("peer %x: inbound rate limit exceeded, dropping %T",
				s.cfg.PeerID[:4], msg)
			continue
		}

		gerr := s.syncer.HandleMessage(msg)
		if gerr == nil {
			continue
		}

		log.Debugf("peer %x: %v", s.cfg.PeerID[:4], gerr)
		if gerr.Tier == gossiperr.TierProtocol {
			s.teardownReason(gerr.Error())
			return
		}
	}
}

func (s *Session) flushLoop() {
	defer s.wg.Done()

	// Drain whatever the syncer is already owed (initial routing sync,
	// any scid query queued before Start) before waiting on the first
	// tick.
	s.pump()

	for {
		select {
		case <-s.flushTicker.Ticks():
			s.pump()
		case <-s.quit:
			return
		}
	}
}

// pump clears the syncer's flush gate and drains DumpGossip until it
// reports nothing left to send, matching the "one logical batch per call,
// re-armed by the next timer tick" discipline of SPEC_FULL §4.4.
func (s *Session) pump() {
	s.syncer.FlushTimerFired()
	for s.syncer.DumpGossip() {
		select {
		case <-s.quit:
			return
		default:
		}
	}
}
