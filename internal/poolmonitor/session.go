// Package poolmonitor implements PoolMonitor (spec §4.4): a map of
// per-(wallet,token) monitoring sessions, each a bounded-lifetime
// sampler that records price points and exits on sell-signal, timeout,
// or shutdown. The session map + mutex pattern and the ticker-driven
// sampler loop are grounded on the trading bot's PositionTracker and
// monitorPositions/prefetchLoop idiom, repurposed from a trade-exit
// tracker into a read-only price-history recorder.
package poolmonitor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"solana-tx-tracker/internal/chainrpc"
	"solana-tx-tracker/internal/storage"
)

// State is a MonitoringSession's lifecycle state (spec §3, §4.4).
type State string

const (
	Idle      State = "IDLE"
	Active    State = "ACTIVE"
	Completed State = "COMPLETED"
	TimedOut  State = "TIMED_OUT"
	Cancelled State = "CANCELLED"
)

// maxConsecutiveSamplerErrors forces a TimedOut(sampler_error) transition
// (spec §4.4 failure semantics, design guidance: 5).
const maxConsecutiveSamplerErrors = 5

// SampleCadence bounds the sampler loop to at most one sample per second
// (spec §4.4 design target).
const SampleCadence = 1 * time.Second

// Session is one (wallet,token) monitoring session. All mutation goes
// through the owning Monitor's map mutex at insert/lookup/remove time;
// a session's own fields are only ever touched by its sampler goroutine
// plus the handful of signal methods below, which use their own lock.
type Session struct {
	ID uuid.UUID

	Wallet      string
	Token       string
	PoolAddress string

	mu           sync.Mutex
	state        State
	startSlot    uint64
	startTime    time.Time
	deadline     time.Time
	initialPrice *storage.PricePoint
	finalReason  string

	cancel context.CancelFunc
	done   chan struct{}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transitionTerminal moves the session to a terminal state exactly
// once; subsequent calls (duplicate SELL signals, repeated shutdown) are
// a no-op, per spec §4.4's idempotent-terminal-transition requirement.
func (s *Session) transitionTerminal(next State, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Completed || s.state == TimedOut || s.state == Cancelled {
		return false
	}
	s.state = next
	s.finalReason = reason
	return true
}

// Monitor owns the session map and the collaborators samplers need to
// derive price points.
type Monitor struct {
	store  storage.Store
	rpc    *chainrpc.Client
	oracle solUSDReader
	quoter tokenQuoter
	maxDur time.Duration

	mu       sync.Mutex
	sessions map[key]*Session
}

type key struct {
	wallet string
	token  string
}

type solUSDReader interface {
	Get() float64
}

// New builds a PoolMonitor. maxDuration is POOL_MONITORING_MAX_DURATION
// (spec §4.4, default 60s).
func New(store storage.Store, rpc *chainrpc.Client, oracle solUSDReader, maxDuration time.Duration) *Monitor {
	return &Monitor{
		store:    store,
		rpc:      rpc,
		oracle:   oracle,
		maxDur:   maxDuration,
		sessions: make(map[key]*Session),
	}
}

// OnBuy creates an Active session for (wallet,token) if isFirstBuy is
// true and a pool address was decoded (spec §4.4 transitions). Returns
// nil if no session was created (not a first buy, or no pool address).
func (m *Monitor) OnBuy(ctx context.Context, wallet, token, poolAddress string, slot uint64, blockTimestamp int64, priceSol, priceUsd, marketCap *float64, txSignature string, isFirstBuy bool) *Session {
	if !isFirstBuy || poolAddress == "" {
		return nil
	}

	k := key{wallet: wallet, token: token}

	m.mu.Lock()
	if _, exists := m.sessions[k]; exists {
		m.mu.Unlock()
		return nil
	}
	sessCtx, cancel := context.WithCancel(ctx)
	sess := &Session{
		ID:          uuid.New(),
		Wallet:      wallet,
		Token:       token,
		PoolAddress: poolAddress,
		state:       Active,
		startSlot:   slot,
		startTime:   time.Now(),
		deadline:    time.Now().Add(m.maxDur),
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	sess.initialPrice = buildPricePoint(priceSol, priceUsd, marketCap, m.solUsd(), slot, time.Unix(blockTimestamp, 0))
	m.sessions[k] = sess
	m.mu.Unlock()

	if err := m.store.InsertSession(ctx, storage.SessionKey{Wallet: wallet, Token: token}, sess.startTime); err != nil {
		log.Warn().Err(err).Str("session", sess.ID.String()).Msg("failed to persist new session row")
	}

	if sess.initialPrice != nil {
		if err := m.store.SavePriceSample(ctx, storage.SessionKey{Wallet: wallet, Token: token}, *sess.initialPrice); err != nil {
			log.Warn().Err(err).Str("session", sess.ID.String()).Msg("failed to persist initial price sample")
		}
	}

	go m.runSampler(sessCtx, sess)
	log.Info().Str("session", sess.ID.String()).Str("wallet", wallet).Str("token", token).Msg("pool monitoring session started")
	return sess
}

// OnSell records a terminal sample and transitions an Active session to
// Completed (spec §4.4). A no-op if no Active session exists.
func (m *Monitor) OnSell(ctx context.Context, wallet, token string, slot uint64, blockTimestamp int64, priceSol, priceUsd, marketCap *float64, txSignature string) {
	m.mu.Lock()
	sess, exists := m.sessions[key{wallet: wallet, token: token}]
	m.mu.Unlock()
	if !exists {
		return
	}

	if !sess.transitionTerminal(Completed, "sell_signal") {
		log.Debug().Str("session", sess.ID.String()).Msg("duplicate sell signal for a terminal session, dropping")
		return
	}

	point := buildPricePoint(priceSol, priceUsd, marketCap, m.solUsd(), slot, time.Unix(blockTimestamp, 0))
	if err := m.store.FinalizeSession(ctx, storage.SessionKey{Wallet: wallet, Token: token}, "sell_signal", point); err != nil {
		log.Warn().Err(err).Str("session", sess.ID.String()).Msg("failed to finalize session")
	}

	sess.cancel()
}

// solUsd returns the oracle's current SOL/USD price, or 0 if no oracle
// is configured — used to derive priceSol from a priceUsd-only event
// (spec §4.4's partial-seed requirement).
func (m *Monitor) solUsd() float64 {
	if m.oracle == nil {
		return 0
	}
	return m.oracle.Get()
}

// buildPricePoint seeds a PricePoint from whatever subset of
// priceSol/priceUsd/marketCap an event carried (spec §4.4: "seed
// partially, deriving priceSol from priceUsd/solUsd if needed").
// Returns nil if neither price is known.
func buildPricePoint(priceSol, priceUsd, marketCap *float64, solUsd float64, slot uint64, at time.Time) *storage.PricePoint {
	if priceSol == nil && priceUsd == nil {
		return nil
	}

	var ps, pu float64
	switch {
	case priceSol != nil && priceUsd != nil:
		ps, pu = *priceSol, *priceUsd
	case priceSol != nil:
		ps = *priceSol
		pu = ps * solUsd
	default:
		pu = *priceUsd
		if solUsd > 0 {
			ps = pu / solUsd
		}
	}

	var mc float64
	if marketCap != nil {
		mc = *marketCap
	}

	return &storage.PricePoint{SampledAt: at, Slot: slot, PriceSol: ps, PriceUsd: pu, MarketCap: mc}
}

// Shutdown transitions every Active session to Cancelled and waits for
// their samplers to exit (spec §4.4 "on shutdown").
func (m *Monitor) Shutdown(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, sess := range sessions {
		if sess.transitionTerminal(Cancelled, "shutdown") {
			if err := m.store.FinalizeSession(ctx, storage.SessionKey{Wallet: sess.Wallet, Token: sess.Token}, "shutdown", nil); err != nil {
				log.Warn().Err(err).Str("session", sess.ID.String()).Msg("failed to finalize session on shutdown")
			}
			sess.cancel()
		}
		<-sess.done
	}
}

// Active reports whether a session in the Active state currently exists
// for (wallet,token).
func (m *Monitor) Active(wallet, token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[key{wallet: wallet, token: token}]
	return ok && sess.State() == Active
}

// Count returns the number of sessions tracked (any state, until removed).
func (m *Monitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Monitor) remove(sess *Session) {
	m.mu.Lock()
	delete(m.sessions, key{wallet: sess.Wallet, token: sess.Token})
	m.mu.Unlock()
}
