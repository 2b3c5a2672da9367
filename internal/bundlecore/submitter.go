package bundlecore

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/ligun0805/asset-rescue/internal/fees"
)

const simulateTimeout = 20 * time.Second

// State is a phase of the submission loop.
type State int

const (
	StateIdle State = iota
	StateAwaitingHead
	StateSubmitting
	StateAwaitingResolution
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingHead:
		return "awaiting-head"
	case StateSubmitting:
		return "submitting"
	case StateAwaitingResolution:
		return "awaiting-resolution"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Attempt records one relay round trip.
type Attempt struct {
	Number      int
	TargetBlock uint64
	Quote       fees.Quote
	FundingWei  *big.Int
	Txs         []*types.Transaction
	Resolution  Resolution
	TxHashes    []common.Hash
	Simulation  *SimulationReport
	Err         error
}

// Result is the outcome of Run.
type Result struct {
	Included    bool
	TargetBlock uint64
	TxHashes    []common.Hash
	Attempts    int
}

// Submitter resubmits a bundle on every new head until the relay reports inclusion.
// Attempts are strictly serialized: heads that arrive during an attempt are queued
// and only the newest of them is used once the attempt resolves.
type Submitter struct {
	ChainID  *big.Int
	Chain    ChainReader
	Relay    Relay
	Injector *FundingInjector
	Policy   Policy
	Log      logrus.FieldLogger

	// OnAttempt observes each finished attempt.
	OnAttempt func(Attempt)
	// OnState observes state transitions.
	OnState func(State)

	state State
}

func (s *Submitter) log() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}

func (s *Submitter) setState(st State) {
	s.state = st
	if s.OnState != nil {
		s.OnState(st)
	}
}

// State returns the current loop phase.
func (s *Submitter) State() State { return s.state }

// Run blocks until the bundle is included, ctx is cancelled, or the policy gives up.
func (s *Submitter) Run(ctx context.Context, base *Bundle, totalGas uint64) (*Result, error) {
	switch {
	case s.ChainID == nil:
		return nil, errors.New("chain id is nil")
	case s.Chain == nil || s.Relay == nil || s.Injector == nil:
		return nil, errors.New("submitter is not configured")
	case base.Len() == 0:
		return nil, errors.New("empty bundle")
	}
	s.setState(StateIdle)

	buf := s.Policy.HeadBuffer
	if buf <= 0 {
		buf = 16
	}
	heads := make(chan uint64, buf)
	sub, err := s.Chain.SubscribeHeads(ctx, heads)
	if err != nil {
		return nil, fmt.Errorf("subscribe heads: %w", err)
	}
	defer sub.Unsubscribe()

	bo := s.Policy.newBackoff()
	res := &Result{}
	var last uint64
	signFails := 0

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		s.setState(StateAwaitingHead)

		var head uint64
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case err, ok := <-sub.Err():
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			if !ok || err == nil {
				err = ErrSubscriptionClosed
			}
			return res, fmt.Errorf("head subscription: %w", err)
		case head = <-heads:
		}
		head = latestHead(heads, head)
		if head <= last {
			s.log().WithField("head", head).Debug("stale head skipped")
			continue
		}
		last = head

		res.Attempts++
		a := s.attempt(ctx, base, totalGas, head, res.Attempts)
		if s.OnAttempt != nil {
			s.OnAttempt(a)
		}
		if a.Err == nil && a.Resolution == ResolutionIncluded {
			s.setState(StateTerminated)
			res.Included = true
			res.TargetBlock = a.TargetBlock
			res.TxHashes = a.TxHashes
			return res, nil
		}

		var se *SigningError
		if errors.As(a.Err, &se) {
			signFails++
		} else {
			signFails = 0
		}
		if max := s.Policy.MaxSigningFailures; max > 0 && signFails >= max {
			return res, fmt.Errorf("%w (%d in a row): %w", ErrSigningEscalated, signFails, a.Err)
		}
		if max := s.Policy.MaxAttempts; max > 0 && res.Attempts >= max {
			return res, ErrAttemptsExhausted
		}
		if bo != nil {
			if err := sleepCtx(ctx, bo.Duration()); err != nil {
				return res, err
			}
		}
	}
}

// Refresh derives this attempt's fee quote from the observed rate (wei) and
// returns a freshly funded, fee-stamped copy of base.
func (s *Submitter) Refresh(base *Bundle, totalGas uint64, observedWei *big.Int, attempt int) (*Bundle, fees.Quote, error) {
	return s.Injector.inject(base, totalGas, fees.WeiToGwei(observedWei), attempt)
}

func (s *Submitter) attempt(ctx context.Context, base *Bundle, totalGas, head uint64, n int) Attempt {
	a := Attempt{Number: n, TargetBlock: head + 1}
	log := s.log().WithFields(logrus.Fields{"attempt": n, "target_block": a.TargetBlock})
	fail := func(err error) Attempt {
		a.Err = err
		log.WithError(err).Warn("attempt failed, waiting for next block")
		return a
	}

	s.setState(StateSubmitting)
	rate, err := s.Chain.CurrentFeeRate(ctx)
	if err != nil {
		return fail(fmt.Errorf("fee rate: %w", err))
	}
	bundle, q, err := s.Refresh(base, totalGas, rate, n-1)
	if err != nil {
		return fail(err)
	}
	a.Quote = q
	a.FundingWei = bundle.Intents[0].Value
	log.WithFields(logrus.Fields{
		"observed_gwei": q.Observed.StringFixed(fees.DefaultPlaces),
		"padded_gwei":   q.Padded.StringFixed(fees.DefaultPlaces),
		"tip_gwei":      fees.WeiToGwei(q.MaxPriorityFeePerGas).StringFixed(fees.DefaultPlaces),
		"funding_eth":   fees.WeiToEther(a.FundingWei).StringFixed(fees.DefaultPlaces),
		"txs":           bundle.Len(),
	}).Info("submitting bundle")

	txs, err := SignBundle(ctx, bundle, s.ChainID, s.Chain)
	if err != nil {
		return fail(err)
	}
	a.Txs = txs
	for i, tx := range txs {
		log.WithFields(logrus.Fields{"index": i, "hash": tx.Hash().Hex()}).Debug(txAsHex(tx))
	}

	actx, cancel := s.attemptContext(ctx)
	defer cancel()

	pending, err := s.Relay.Submit(actx, txs, a.TargetBlock)
	if err != nil {
		return fail(asRelayError("submit", err))
	}
	s.setState(StateAwaitingResolution)
	r, err := pending.Wait(actx)
	if err != nil {
		return fail(asRelayError("wait", err))
	}
	a.Resolution = r

	if r == ResolutionIncluded {
		a.TxHashes = pending.IncludedTxHashes()
		for i, h := range a.TxHashes {
			log.WithFields(logrus.Fields{"index": i, "tx": h.Hex()}).Info("included")
		}
		return a
	}

	entry := log.WithField("resolution", r.String())
	if s.Policy.Simulate {
		sctx, scancel := context.WithTimeout(ctx, simulateTimeout)
		sim, err := pending.Simulate(sctx)
		scancel()
		if err != nil {
			entry = entry.WithField("simulation_error", err.Error())
		} else {
			a.Simulation = sim
			entry = entry.WithField("total_gas_used", sim.TotalGasUsed)
			if reason := sim.FirstFailure(); reason != "" {
				entry = entry.WithField("simulation", reason)
			}
		}
	}
	entry.Info("bundle not included, retrying on next block")
	return a
}

func (s *Submitter) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Policy.AttemptTimeout > 0 {
		return context.WithTimeout(ctx, s.Policy.AttemptTimeout)
	}
	return context.WithCancel(ctx)
}

func asRelayError(op string, err error) error {
	var re *RelayError
	if errors.As(err, &re) {
		return err
	}
	return &RelayError{Op: op, Err: err}
}

// latestHead drains queued heads without blocking and returns the newest.
func latestHead(ch <-chan uint64, head uint64) uint64 {
	for {
		select {
		case h := <-ch:
			if h > head {
				head = h
			}
		default:
			return head
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
