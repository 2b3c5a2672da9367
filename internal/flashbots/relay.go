// Package flashbots submits bundles to a Flashbots-compatible relay and tracks
// whether they landed.
package flashbots

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lmittmann/flashbots"
	"github.com/lmittmann/w3/w3types"
	"github.com/sirupsen/logrus"

	"github.com/ligun0805/asset-rescue/internal/bundlecore"
)

// DefaultRelayURL is the Flashbots mainnet relay.
const DefaultRelayURL = "https://relay.flashbots.net"

// Checker reads the chain state Wait needs to resolve a bundle.
type Checker interface {
	BlockNumber(ctx context.Context) (uint64, error)
	Receipt(ctx context.Context, h common.Hash) (*types.Receipt, error)
	NonceAt(ctx context.Context, addr common.Address, block *big.Int) (uint64, error)
}

type caller interface {
	CallCtx(ctx context.Context, calls ...w3types.RPCCaller) error
}

type Options struct {
	// PollInterval is how often Wait checks the head while waiting for the target block.
	PollInterval time.Duration
	Log          logrus.FieldLogger
}

// Client talks to one relay. Requests are signed with the auth key
// (X-Flashbots-Signature); the key only identifies the searcher.
type Client struct {
	URL     string
	AuthKey common.Address

	rpc   caller
	chain Checker
	poll  time.Duration
	log   logrus.FieldLogger
}

var _ bundlecore.Relay = (*Client)(nil)

// Dial connects to url. A nil authKey gets a fresh random key.
func Dial(url string, authKey *ecdsa.PrivateKey, chain Checker, opt Options) (*Client, error) {
	if authKey == nil {
		k, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("generate auth key: %w", err)
		}
		authKey = k
	}
	rc, err := flashbots.Dial(url, authKey)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", url, err)
	}
	c := newClient(rc, chain, opt)
	c.URL = url
	c.AuthKey = crypto.PubkeyToAddress(authKey.PublicKey)
	return c, nil
}

func newClient(rc caller, chain Checker, opt Options) *Client {
	c := &Client{rpc: rc, chain: chain, poll: opt.PollInterval, log: opt.Log}
	if c.poll <= 0 {
		c.poll = time.Second
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	return c
}

// Submit sends eth_sendBundle for targetBlock.
func (c *Client) Submit(ctx context.Context, txs []*types.Transaction, targetBlock uint64) (bundlecore.PendingBundle, error) {
	if len(txs) == 0 {
		return nil, errors.New("empty bundle")
	}
	senders := make([]common.Address, len(txs))
	for i, tx := range txs {
		from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
		if err != nil {
			return nil, fmt.Errorf("recover sender of tx #%d: %w", i, err)
		}
		senders[i] = from
	}

	var bundleHash common.Hash
	err := c.rpc.CallCtx(ctx,
		flashbots.SendBundle(&flashbots.SendBundleRequest{
			Transactions: txs,
			BlockNumber:  new(big.Int).SetUint64(targetBlock),
		}).Returns(&bundleHash),
	)
	if err != nil {
		return nil, &bundlecore.RelayError{Op: "eth_sendBundle", Err: normalize(err)}
	}
	c.log.WithFields(logrus.Fields{"bundle": bundleHash.Hex(), "target_block": targetBlock}).Debug("bundle accepted by relay")
	return &pendingBundle{c: c, hash: bundleHash, target: targetBlock, txs: txs, senders: senders}, nil
}

type pendingBundle struct {
	c       *Client
	hash    common.Hash
	target  uint64
	txs     []*types.Transaction
	senders []common.Address
}

// Wait blocks until the chain reaches the target block and reports whether the bundle landed in it.
func (p *pendingBundle) Wait(ctx context.Context) (bundlecore.Resolution, error) {
	t := time.NewTicker(p.c.poll)
	defer t.Stop()
	for {
		head, err := p.c.chain.BlockNumber(ctx)
		if err != nil {
			return bundlecore.ResolutionNotIncluded, fmt.Errorf("block number: %w", err)
		}
		if head >= p.target {
			break
		}
		select {
		case <-ctx.Done():
			return bundlecore.ResolutionNotIncluded, ctx.Err()
		case <-t.C:
		}
	}
	return p.resolve(ctx)
}

func (p *pendingBundle) resolve(ctx context.Context) (bundlecore.Resolution, error) {
	included := true
	for _, tx := range p.txs {
		r, err := p.c.chain.Receipt(ctx, tx.Hash())
		if err != nil {
			return bundlecore.ResolutionNotIncluded, fmt.Errorf("receipt %s: %w", tx.Hash().Hex(), err)
		}
		if r == nil || r.BlockNumber == nil || r.BlockNumber.Uint64() != p.target {
			included = false
			break
		}
	}
	if included {
		return bundlecore.ResolutionIncluded, nil
	}

	seen := make(map[common.Address]bool, len(p.senders))
	for i, from := range p.senders {
		if seen[from] {
			continue
		}
		seen[from] = true
		n, err := p.c.chain.NonceAt(ctx, from, nil)
		if err != nil {
			return bundlecore.ResolutionNotIncluded, fmt.Errorf("nonce of %s: %w", from.Hex(), err)
		}
		if n > p.txs[i].Nonce() {
			return bundlecore.ResolutionAccountNonceTooHigh, nil
		}
	}
	return bundlecore.ResolutionNotIncluded, nil
}

func (p *pendingBundle) IncludedTxHashes() []common.Hash {
	out := make([]common.Hash, len(p.txs))
	for i, tx := range p.txs {
		out[i] = tx.Hash()
	}
	return out
}

// Simulate runs eth_callBundle against the target block.
func (p *pendingBundle) Simulate(ctx context.Context) (*bundlecore.SimulationReport, error) {
	var resp *flashbots.CallBundleResponse
	err := p.c.rpc.CallCtx(ctx,
		flashbots.CallBundle(&flashbots.CallBundleRequest{
			Transactions: p.txs,
			BlockNumber:  new(big.Int).SetUint64(p.target),
		}).Returns(&resp),
	)
	if err != nil {
		return nil, &bundlecore.RelayError{Op: "eth_callBundle", Err: normalize(err)}
	}
	return reportFrom(resp), nil
}

func reportFrom(resp *flashbots.CallBundleResponse) *bundlecore.SimulationReport {
	if resp == nil {
		return &bundlecore.SimulationReport{}
	}
	rep := &bundlecore.SimulationReport{
		BundleHash:   resp.BundleHash,
		TotalGasUsed: resp.TotalGasUsed,
		Results:      make([]bundlecore.SimTxResult, len(resp.Results)),
	}
	for i, r := range resp.Results {
		res := bundlecore.SimTxResult{TxHash: r.TxHash, GasUsed: r.GasUsed, Revert: r.Revert}
		if r.Error != nil {
			res.Error = Friendly(r.Error.Error())
		}
		rep.Results[i] = res
	}
	if b, err := json.Marshal(resp); err == nil {
		rep.RawJSON = string(b)
	}
	return rep
}
