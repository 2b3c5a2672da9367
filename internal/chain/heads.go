package chain

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
)

// SubscribeHeads delivers new block numbers to ch. It uses eth_subscribe when
// the transport supports notifications and polls eth_blockNumber otherwise.
// Numbers at or below the last delivered one are not sent again.
func (c *Client) SubscribeHeads(ctx context.Context, ch chan<- uint64) (ethereum.Subscription, error) {
	hdrs := make(chan *types.Header, cap(ch)+1)
	inner, err := c.b.SubscribeNewHead(ctx, hdrs)
	switch {
	case errors.Is(err, rpc.ErrNotificationsUnsupported):
		c.log.WithField("interval", c.poll).Info("node cannot push heads, polling")
		return c.pollHeads(ctx, ch), nil
	case err != nil:
		return nil, err
	}
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer inner.Unsubscribe()
		var last uint64
		for {
			select {
			case <-quit:
				return nil
			case err := <-inner.Err():
				return err
			case h := <-hdrs:
				if h == nil || h.Number == nil {
					continue
				}
				n := h.Number.Uint64()
				if n <= last {
					continue
				}
				last = n
				select {
				case ch <- n:
				case <-quit:
					return nil
				}
			}
		}
	}), nil
}

func (c *Client) pollHeads(ctx context.Context, ch chan<- uint64) ethereum.Subscription {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		t := time.NewTicker(c.poll)
		defer t.Stop()
		var last uint64
		for {
			n, err := c.BlockNumber(ctx)
			switch {
			case err != nil && ctx.Err() != nil:
				return nil
			case err != nil:
				c.log.WithError(err).Debug("head poll failed")
			case n > last:
				last = n
				select {
				case ch <- n:
				case <-quit:
					return nil
				}
			}
			select {
			case <-quit:
				return nil
			case <-ctx.Done():
				return nil
			case <-t.C:
			}
		}
	})
}
