package bundlecore

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// Builder turns the configured transfers into an ordered, fee-less bundle.
type Builder struct {
	Estimator GasEstimator
	Assets    AssetQuery
	Encoder   CallEncoder
	// Recipient receives the assets; zero means the funding signer's address.
	Recipient common.Address
	Log       logrus.FieldLogger
}

func (b *Builder) log() logrus.FieldLogger {
	if b.Log == nil {
		return logrus.StandardLogger()
	}
	return b.Log
}

// Build encodes one intent per batch-fungible spec and one intent per unique-token id,
// estimates each against source, and returns them in spec order.
// totalGas includes the funding transfer that Inject will prepend.
func (b *Builder) Build(ctx context.Context, specs []TransferSpec, source, funding Signer) (*Bundle, uint64, error) {
	if len(specs) == 0 {
		return nil, 0, errors.New("no transfers configured")
	}
	if source == nil || funding == nil {
		return nil, 0, errors.New("source and funding signers are required")
	}
	from := source.Address()
	to := b.Recipient
	if to == (common.Address{}) {
		to = funding.Address()
	}

	bundle := &Bundle{Intents: make([]*TxIntent, 0, len(specs))}
	total := FundingGasLimit

	for i := range specs {
		spec := specs[i]
		if len(spec.IDs) == 0 {
			return nil, 0, fmt.Errorf("transfer #%d %s has no ids", i, &spec)
		}
		switch spec.Kind {
		case KindBatchFungible:
			owners := make([]common.Address, len(spec.IDs))
			for j := range owners {
				owners[j] = from
			}
			qty, err := b.Assets.BatchBalances(ctx, spec.Contract, owners, spec.IDs)
			if err != nil {
				return nil, 0, fmt.Errorf("balances for transfer #%d %s: %w", i, &spec, err)
			}
			if len(qty) != len(spec.IDs) {
				return nil, 0, fmt.Errorf("balances for transfer #%d %s: got %d values for %d ids", i, &spec, len(qty), len(spec.IDs))
			}
			// zero balances stay in place so ids and amounts remain aligned
			spec.Quantities = make([]*big.Int, len(qty))
			for j, q := range qty {
				if q == nil {
					q = new(big.Int)
				}
				spec.Quantities[j] = new(big.Int).Set(q)
			}
			data, err := b.Encoder.Encode(KindBatchFungible, "safeBatchTransferFrom", from, to, spec.IDs, spec.Quantities, make([]byte, 32))
			if err != nil {
				return nil, 0, fmt.Errorf("encode transfer #%d %s: %w", i, &spec, err)
			}
			in := &TxIntent{To: spec.Contract, Data: data, Value: new(big.Int), Signer: source, Spec: &spec}
			if err := b.estimate(ctx, in, i, from); err != nil {
				return nil, 0, err
			}
			bundle.Intents = append(bundle.Intents, in)
			total += in.GasLimit
			b.log().WithFields(logrus.Fields{
				"transfer": spec.String(), "ids": bigsString(spec.IDs), "amounts": bigsString(spec.Quantities), "gas": in.GasLimit,
			}).Info("batch transfer prepared")

		case KindUnique:
			for _, id := range spec.IDs {
				data, err := b.Encoder.Encode(KindUnique, "transferFrom", from, to, id)
				if err != nil {
					return nil, 0, fmt.Errorf("encode transfer #%d %s id=%s: %w", i, &spec, id, err)
				}
				in := &TxIntent{To: spec.Contract, Data: data, Value: new(big.Int), Signer: source, Spec: &spec, TokenID: id}
				if err := b.estimate(ctx, in, i, from); err != nil {
					return nil, 0, err
				}
				bundle.Intents = append(bundle.Intents, in)
				total += in.GasLimit
				b.log().WithFields(logrus.Fields{"transfer": spec.String(), "id": id.String(), "gas": in.GasLimit}).Info("token transfer prepared")
			}

		default:
			return nil, 0, fmt.Errorf("transfer #%d: unsupported asset kind %s", i, spec.Kind)
		}
	}

	b.log().WithFields(logrus.Fields{"txs": bundle.Len(), "total_gas": total}).Info("bundle built")
	return bundle, total, nil
}

func (b *Builder) estimate(ctx context.Context, in *TxIntent, index int, from common.Address) error {
	gas, err := b.Estimator.EstimateGas(ctx, in, from)
	if err == nil && gas == 0 {
		err = errors.New("estimate returned zero gas")
	}
	if err != nil {
		return &EstimationError{Index: index, Spec: in.Spec, TokenID: in.TokenID, Err: err}
	}
	in.GasLimit = gas
	return nil
}

func bigsString(xs []*big.Int) []string {
	out := make([]string, len(xs))
	for i, x := range xs {
		out[i] = bigString(x)
	}
	return out
}
