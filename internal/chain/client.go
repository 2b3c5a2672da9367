// Package chain reads chain state for the rescue flow: fee rates, gas estimates,
// nonces, receipts and new heads.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ligun0805/asset-rescue/internal/bundlecore"
)

// Backend is the subset of *ethclient.Client the reader needs.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	FeeHistory(ctx context.Context, blockCount uint64, lastBlock *big.Int, rewardPercentiles []float64) (*ethereum.FeeHistory, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// FeeSource selects what CurrentFeeRate observes.
type FeeSource int

const (
	// FeeSourceGasPrice uses eth_gasPrice.
	FeeSourceGasPrice FeeSource = iota
	// FeeSourceBaseFee uses the next block's base fee from eth_feeHistory.
	FeeSourceBaseFee
)

func (s FeeSource) String() string {
	if s == FeeSourceBaseFee {
		return "basefee"
	}
	return "gasprice"
}

func ParseFeeSource(s string) (FeeSource, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "gasprice", "gas_price":
		return FeeSourceGasPrice, nil
	case "basefee", "base_fee":
		return FeeSourceBaseFee, nil
	}
	return 0, fmt.Errorf("unknown fee source %q", s)
}

type Options struct {
	FeeSource FeeSource
	// RateLimit caps node requests per second; 0 disables the limiter.
	RateLimit float64
	// PollInterval is used for head polling when the node cannot push heads.
	PollInterval time.Duration
	Retries      int
	Log          logrus.FieldLogger
}

// Client implements bundlecore.ChainReader on top of a node backend.
type Client struct {
	b         Backend
	feeSource FeeSource
	limiter   *rate.Limiter
	poll      time.Duration
	retries   int
	retryMin  time.Duration
	log       logrus.FieldLogger
}

var _ bundlecore.ChainReader = (*Client)(nil)

func New(b Backend, opt Options) *Client {
	c := &Client{
		b:         b,
		feeSource: opt.FeeSource,
		poll:      opt.PollInterval,
		retries:   opt.Retries,
		retryMin:  defaultRetryMin,
		log:       opt.Log,
	}
	if opt.RateLimit > 0 {
		burst := int(opt.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opt.RateLimit), burst)
	}
	if c.poll <= 0 {
		c.poll = 2 * time.Second
	}
	if c.retries <= 0 {
		c.retries = defaultRetries
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	return c
}

// Dial connects to an http(s) or ws(s) endpoint. Heads are pushed over ws and
// polled over http.
func Dial(ctx context.Context, url string, opt Options) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return New(ec, opt), nil
}

// Close releases the backend connection if it holds one.
func (c *Client) Close() {
	if cl, ok := c.b.(interface{ Close() }); ok {
		cl.Close()
	}
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := c.retry(ctx, func() (err error) {
		id, err = c.b.ChainID(ctx)
		return err
	})
	return id, err
}

// CurrentFeeRate returns the observed fee rate in wei per gas.
func (c *Client) CurrentFeeRate(ctx context.Context) (*big.Int, error) {
	if c.feeSource == FeeSourceBaseFee {
		return c.NextBaseFee(ctx)
	}
	var p *big.Int
	err := c.retry(ctx, func() (err error) {
		p, err = c.b.SuggestGasPrice(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("eth_gasPrice: %w", err)
	}
	return p, nil
}

// NextBaseFee returns the base fee of the pending block via eth_feeHistory.
func (c *Client) NextBaseFee(ctx context.Context) (*big.Int, error) {
	var fh *ethereum.FeeHistory
	err := c.retry(ctx, func() (err error) {
		fh, err = c.b.FeeHistory(ctx, 1, nil, []float64{50})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("eth_feeHistory: %w", err)
	}
	if len(fh.BaseFee) < 2 {
		return nil, errors.New("feeHistory: short baseFee array")
	}
	bf := fh.BaseFee[len(fh.BaseFee)-1]
	if bf == nil {
		return nil, errors.New("feeHistory: no baseFee (pre-1559?)")
	}
	return new(big.Int).Set(bf), nil
}

// EstimateGas estimates intent as sent by from. Reverts are returned without retry.
func (c *Client) EstimateGas(ctx context.Context, in *bundlecore.TxIntent, from common.Address) (uint64, error) {
	to := in.To
	msg := ethereum.CallMsg{From: from, To: &to, Data: in.Data, Value: in.Value}
	var g uint64
	err := c.retry(ctx, func() (err error) {
		g, err = c.b.EstimateGas(ctx, msg)
		return err
	})
	if err != nil {
		if IsRevert(err) {
			return 0, errors.New(RevertReason(err))
		}
		return 0, err
	}
	return g, nil
}

// CallContract implements ethereum.ContractCaller with retry.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	var ret []byte
	err := c.retry(ctx, func() (err error) {
		ret, err = c.b.CallContract(ctx, msg, block)
		return err
	})
	return ret, err
}

func (c *Client) PendingNonce(ctx context.Context, addr common.Address) (uint64, error) {
	var n uint64
	err := c.retry(ctx, func() (err error) {
		n, err = c.b.PendingNonceAt(ctx, addr)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("pending nonce of %s: %w", addr.Hex(), err)
	}
	return n, nil
}

// BundleNonce returns the nonce addr's first bundle tx must carry: the confirmed
// nonce. Transactions of addr still waiting in the mempool are replaced by the
// bundle rather than queued behind.
func (c *Client) BundleNonce(ctx context.Context, addr common.Address) (uint64, error) {
	latest, err := c.NonceAt(ctx, addr, nil)
	if err != nil {
		return 0, fmt.Errorf("latest nonce of %s: %w", addr.Hex(), err)
	}
	pending, err := c.PendingNonce(ctx, addr)
	if err != nil {
		return 0, err
	}
	if pending > latest {
		c.log.WithFields(logrus.Fields{
			"account": addr.Hex(),
			"latest":  latest,
			"pending": pending,
		}).Warn("account has pending txs, bundle replaces them")
	}
	return latest, nil
}

// NonceAt returns the confirmed nonce of addr at block (nil = latest).
func (c *Client) NonceAt(ctx context.Context, addr common.Address, block *big.Int) (uint64, error) {
	var n uint64
	err := c.retry(ctx, func() (err error) {
		n, err = c.b.NonceAt(ctx, addr, block)
		return err
	})
	return n, err
}

// Balance returns the latest ETH balance of addr in wei.
func (c *Client) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	var bal *big.Int
	err := c.retry(ctx, func() (err error) {
		bal, err = c.b.BalanceAt(ctx, addr, nil)
		return err
	})
	return bal, err
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := c.retry(ctx, func() (err error) {
		n, err = c.b.BlockNumber(ctx)
		return err
	})
	return n, err
}

// Receipt returns the receipt of h, or nil when the transaction is not mined.
func (c *Client) Receipt(ctx context.Context, h common.Hash) (*types.Receipt, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	r, err := c.b.TransactionReceipt(ctx, h)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	return r, err
}

// Snapshot is a one-off view of the fee market for the startup summary.
type Snapshot struct {
	Head        uint64
	BaseFee     *big.Int
	NextBaseFee *big.Int
	GasPrice    *big.Int
}

func (c *Client) Snapshot(ctx context.Context) (*Snapshot, error) {
	var h *types.Header
	if err := c.retry(ctx, func() (err error) {
		h, err = c.b.HeaderByNumber(ctx, nil)
		return err
	}); err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}
	s := &Snapshot{Head: h.Number.Uint64(), BaseFee: h.BaseFee}
	if nb, err := c.NextBaseFee(ctx); err == nil {
		s.NextBaseFee = nb
	}
	if gp, err := c.b.SuggestGasPrice(ctx); err == nil {
		s.GasPrice = gp
	}
	return s, nil
}
