package assets

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ligun0805/asset-rescue/internal/bundlecore"
)

// Reader answers token state queries with eth_call.
type Reader struct {
	caller ethereum.ContractCaller
	enc    *Encoder
}

func NewReader(caller ethereum.ContractCaller, enc *Encoder) *Reader {
	return &Reader{caller: caller, enc: enc}
}

func (r *Reader) call(ctx context.Context, kind bundlecore.AssetKind, contract common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := r.enc.Encode(kind, method, args...)
	if err != nil {
		return nil, err
	}
	ret, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", method, contract.Hex(), err)
	}
	if len(ret) == 0 {
		return nil, fmt.Errorf("%s on %s: empty return (not a contract?)", method, contract.Hex())
	}
	return r.enc.Decode(kind, method, ret)
}

// BatchBalances returns balanceOfBatch(owners, ids) aligned index-for-index with ids.
func (r *Reader) BatchBalances(ctx context.Context, contract common.Address, owners []common.Address, ids []*big.Int) ([]*big.Int, error) {
	if len(owners) != len(ids) {
		return nil, fmt.Errorf("balanceOfBatch: %d owners for %d ids", len(owners), len(ids))
	}
	out, err := r.call(ctx, bundlecore.KindBatchFungible, contract, "balanceOfBatch", owners, ids)
	if err != nil {
		return nil, err
	}
	bals, ok := out[0].([]*big.Int)
	if !ok {
		return nil, errors.New("balanceOfBatch: unexpected return type")
	}
	if len(bals) != len(ids) {
		return nil, fmt.Errorf("balanceOfBatch: got %d values for %d ids", len(bals), len(ids))
	}
	return bals, nil
}

// OwnerOf returns the current holder of a unique token.
func (r *Reader) OwnerOf(ctx context.Context, contract common.Address, id *big.Int) (common.Address, error) {
	out, err := r.call(ctx, bundlecore.KindUnique, contract, "ownerOf", id)
	if err != nil {
		return common.Address{}, err
	}
	owner, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, errors.New("ownerOf: unexpected return type")
	}
	return owner, nil
}
