package poolmonitor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"solana-tx-tracker/internal/metrics"
	"solana-tx-tracker/internal/storage"
)

var errNoQuoter = errors.New("poolmonitor: no token quoter configured")

// tokenQuoter derives the SOL value of one unit of a mint, used to
// re-price a session's token on each sampler tick.
type tokenQuoter interface {
	QuoteTokenToSol(ctx context.Context, mint string, amountRaw uint64) (uint64, error)
}

// Quoter is set on Monitor construction so sessions can sample price;
// kept separate from chainrpc.Client because pricing goes through a
// swap-quote endpoint, not the validator RPC.
func (m *Monitor) SetQuoter(q tokenQuoter) { m.quoter = q }

func (m *Monitor) runSampler(ctx context.Context, sess *Session) {
	defer close(sess.done)
	defer m.remove(sess)

	ticker := time.NewTicker(SampleCadence)
	defer ticker.Stop()

	consecutiveErrors := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if sess.State() != Active {
				return
			}

			now := time.Now()
			if !now.Before(sess.deadlineAt()) {
				if sess.transitionTerminal(TimedOut, "deadline_exceeded") {
					if err := m.store.FinalizeSession(ctx, storage.SessionKey{Wallet: sess.Wallet, Token: sess.Token}, "deadline_exceeded", nil); err != nil {
						log.Warn().Err(err).Str("session", sess.ID.String()).Msg("failed to finalize timed-out session")
					}
				}
				return
			}

			sampleStart := time.Now()
			point, err := m.sample(ctx, sess)
			metrics.ObserveSampler(time.Since(sampleStart).Seconds())
			if err != nil {
				consecutiveErrors++
				metrics.IncSamplerError()
				log.Warn().Err(err).Str("session", sess.ID.String()).Int("consecutiveErrors", consecutiveErrors).Msg("pool sampler error")
				if consecutiveErrors >= maxConsecutiveSamplerErrors {
					if sess.transitionTerminal(TimedOut, "sampler_error") {
						if ferr := m.store.FinalizeSession(ctx, storage.SessionKey{Wallet: sess.Wallet, Token: sess.Token}, "sampler_error", nil); ferr != nil {
							log.Warn().Err(ferr).Str("session", sess.ID.String()).Msg("failed to finalize sampler_error session")
						}
					}
					return
				}
				continue
			}
			consecutiveErrors = 0

			if err := m.store.SavePriceSample(ctx, storage.SessionKey{Wallet: sess.Wallet, Token: sess.Token}, point); err != nil {
				log.Warn().Err(err).Str("session", sess.ID.String()).Msg("failed to persist price sample")
			}
		}
	}
}

func (s *Session) deadlineAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline
}

// sample derives one PricePoint for a session's token: total supply from
// chainrpc, a quote for one whole token -> SOL from the quoter, and the
// cached SOL/USD oracle price (spec §4.4 "samples pool reserves, derives
// priceSol, priceUsd, marketCap").
func (m *Monitor) sample(ctx context.Context, sess *Session) (storage.PricePoint, error) {
	supply, err := m.rpc.GetTokenSupply(ctx, sess.Token)
	if err != nil {
		return storage.PricePoint{}, err
	}

	unit := uint64(1)
	for i := uint8(0); i < supply.Decimals; i++ {
		unit *= 10
	}

	if m.quoter == nil {
		return storage.PricePoint{}, errNoQuoter
	}
	lamportsOut, err := m.quoter.QuoteTokenToSol(ctx, sess.Token, unit)
	if err != nil {
		return storage.PricePoint{}, err
	}

	priceSol := float64(lamportsOut) / 1_000_000_000
	solUsd := 0.0
	if m.oracle != nil {
		solUsd = m.oracle.Get()
	}
	priceUsd := priceSol * solUsd
	marketCap := supply.Human() * priceUsd

	return storage.PricePoint{
		SampledAt: time.Now(),
		Slot:      sess.startSlot,
		PriceSol:  priceSol,
		PriceUsd:  priceUsd,
		MarketCap: marketCap,
	}, nil
}
