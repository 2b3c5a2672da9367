package bundlecore

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// KeySigner signs with an in-memory ECDSA key.
type KeySigner struct {
	prv  *ecdsa.PrivateKey
	addr common.Address
}

// NewKeySigner wraps a parsed private key.
func NewKeySigner(prv *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{prv: prv, addr: gethcrypto.PubkeyToAddress(prv.PublicKey)}
}

// KeySignerFromHex parses a hex key (with / without 0x).
func KeySignerFromHex(s string) (*KeySigner, error) {
	prv, err := hexToECDSAPriv(s)
	if err != nil {
		return nil, err
	}
	return NewKeySigner(prv), nil
}

func (k *KeySigner) Address() common.Address { return k.addr }

// SignTx signs with the latest signer for the chain.
func (k *KeySigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), k.prv)
}

// Build EIP-1559 transaction.
func buildDynamicTx(chain *big.Int, nonce uint64, to *common.Address, value *big.Int, gasLimit uint64, tip, feeCap *big.Int, data []byte) *types.Transaction {
	if value == nil {
		value = new(big.Int)
	}
	df := &types.DynamicFeeTx{
		ChainID:   chain,
		Nonce:     nonce,
		Gas:       gasLimit,
		GasTipCap: new(big.Int).Set(tip),
		GasFeeCap: new(big.Int).Set(feeCap),
		To:        to,
		Value:     new(big.Int).Set(value),
		Data:      data,
	}
	return types.NewTx(df)
}

// NonceSource returns the nonce an account's first bundle tx must use. This is
// the confirmed nonce, so txs of the account still in the mempool get replaced.
type NonceSource interface {
	BundleNonce(ctx context.Context, addr common.Address) (uint64, error)
}

// SignBundle assigns per-signer nonces in bundle order and signs every intent.
// Intents must already carry fee fields.
func SignBundle(ctx context.Context, b *Bundle, chainID *big.Int, nonces NonceSource) ([]*types.Transaction, error) {
	next := make(map[common.Address]uint64)
	out := make([]*types.Transaction, 0, b.Len())
	for i, in := range b.Intents {
		if in.GasFeeCap == nil || in.GasTipCap == nil {
			return nil, fmt.Errorf("bundle tx #%d has no fee fields", i)
		}
		from := in.Signer.Address()
		n, ok := next[from]
		if !ok {
			var err error
			n, err = nonces.BundleNonce(ctx, from)
			if err != nil {
				return nil, fmt.Errorf("nonce(%s): %w", from.Hex(), err)
			}
		}
		next[from] = n + 1

		to := in.To
		tx := buildDynamicTx(chainID, n, &to, in.Value, in.GasLimit, in.GasTipCap, in.GasFeeCap, in.Data)
		signed, err := in.Signer.SignTx(tx, chainID)
		if err != nil {
			return nil, &SigningError{Index: i, Err: err}
		}
		out = append(out, signed)
	}
	return out, nil
}

// Hex-encode transaction.
func txAsHex(tx *types.Transaction) string {
	b, _ := tx.MarshalBinary()
	return "0x" + hex.EncodeToString(b)
}
