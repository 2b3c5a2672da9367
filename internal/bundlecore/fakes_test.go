package bundlecore

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T) *KeySigner {
	t.Helper()
	prv, err := crypto.GenerateKey()
	require.NoError(t, err)
	return NewKeySigner(prv)
}

type failingSigner struct {
	addr common.Address
	err  error
}

func (s *failingSigner) Address() common.Address { return s.addr }
func (s *failingSigner) SignTx(*types.Transaction, *big.Int) (*types.Transaction, error) {
	return nil, s.err
}

// ---------- chain ----------

type fakeSub struct {
	errc chan error
	once sync.Once
}

func (s *fakeSub) Err() <-chan error { return s.errc }
func (s *fakeSub) Unsubscribe()      { s.once.Do(func() { close(s.errc) }) }

type MockChain struct {
	mu sync.Mutex

	FeeRateFunc  func(ctx context.Context) (*big.Int, error)
	EstimateFunc func(in *TxIntent, from common.Address) (uint64, error)
	Nonces       map[common.Address]uint64
	InitialHeads []uint64

	heads chan<- uint64
	sub   *fakeSub
}

func (m *MockChain) CurrentFeeRate(ctx context.Context) (*big.Int, error) {
	if m.FeeRateFunc != nil {
		return m.FeeRateFunc(ctx)
	}
	return big.NewInt(10_000_000_000), nil
}

func (m *MockChain) EstimateGas(_ context.Context, in *TxIntent, from common.Address) (uint64, error) {
	if m.EstimateFunc != nil {
		return m.EstimateFunc(in, from)
	}
	return 50_000, nil
}

func (m *MockChain) BundleNonce(_ context.Context, addr common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Nonces[addr], nil
}

func (m *MockChain) SubscribeHeads(_ context.Context, ch chan<- uint64) (ethereum.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heads = ch
	m.sub = &fakeSub{errc: make(chan error, 1)}
	for _, h := range m.InitialHeads {
		ch <- h
	}
	return m.sub, nil
}

func (m *MockChain) emit(n uint64) {
	m.mu.Lock()
	ch := m.heads
	m.mu.Unlock()
	ch <- n
}

func (m *MockChain) fail(err error) {
	m.mu.Lock()
	sub := m.sub
	m.mu.Unlock()
	sub.errc <- err
}

// ---------- assets / encoder ----------

type encodeCall struct {
	Kind   AssetKind
	Method string
	Args   []interface{}
}

type MockEncoder struct {
	Calls []encodeCall
}

func (m *MockEncoder) Encode(kind AssetKind, method string, args ...interface{}) ([]byte, error) {
	m.Calls = append(m.Calls, encodeCall{Kind: kind, Method: method, Args: args})
	return []byte(fmt.Sprintf("%s/%s/%d", kind, method, len(m.Calls))), nil
}

type MockAssets struct {
	BalancesFunc func(contract common.Address, owners []common.Address, ids []*big.Int) ([]*big.Int, error)
}

func (m *MockAssets) BatchBalances(_ context.Context, contract common.Address, owners []common.Address, ids []*big.Int) ([]*big.Int, error) {
	if m.BalancesFunc != nil {
		return m.BalancesFunc(contract, owners, ids)
	}
	out := make([]*big.Int, len(ids))
	for i := range out {
		out[i] = big.NewInt(1)
	}
	return out, nil
}

// ---------- relay ----------

type submission struct {
	Target uint64
	Txs    []*types.Transaction
}

type MockRelay struct {
	mu sync.Mutex

	// Resolutions is consumed one per Wait; the last entry repeats.
	Resolutions []Resolution
	SubmitFunc  func(n int) error
	// StallFunc makes Wait of submission n block until its context ends.
	StallFunc func(n int) bool

	Submits     []submission
	inflight    int
	MaxInflight int
	Simulated   int
}

func (m *MockRelay) Submit(_ context.Context, txs []*types.Transaction, target uint64) (PendingBundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Submits = append(m.Submits, submission{Target: target, Txs: txs})
	n := len(m.Submits)
	if m.SubmitFunc != nil {
		if err := m.SubmitFunc(n); err != nil {
			return nil, err
		}
	}
	m.inflight++
	if m.inflight > m.MaxInflight {
		m.MaxInflight = m.inflight
	}
	return &mockPending{relay: m, n: n, txs: txs}, nil
}

func (m *MockRelay) submitted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Submits)
}

type mockPending struct {
	relay *MockRelay
	n     int
	txs   []*types.Transaction
}

func (p *mockPending) Wait(ctx context.Context) (Resolution, error) {
	m := p.relay
	if m.StallFunc != nil && m.StallFunc(p.n) {
		<-ctx.Done()
		m.mu.Lock()
		m.inflight--
		m.mu.Unlock()
		return ResolutionNotIncluded, ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight--
	if len(m.Resolutions) == 0 {
		return ResolutionNotIncluded, nil
	}
	i := p.n - 1
	if i >= len(m.Resolutions) {
		i = len(m.Resolutions) - 1
	}
	return m.Resolutions[i], nil
}

func (p *mockPending) Simulate(context.Context) (*SimulationReport, error) {
	p.relay.mu.Lock()
	p.relay.Simulated++
	p.relay.mu.Unlock()
	return &SimulationReport{
		TotalGasUsed: 42,
		Results:      []SimTxResult{{}, {Revert: "ERC1155: insufficient balance"}},
	}, nil
}

func (p *mockPending) IncludedTxHashes() []common.Hash {
	out := make([]common.Hash, len(p.txs))
	for i, tx := range p.txs {
		out[i] = tx.Hash()
	}
	return out
}

var errBoom = errors.New("boom")
