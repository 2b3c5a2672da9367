package config

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-multierror"

	"github.com/ligun0805/asset-rescue/internal/bundlecore"
)

var errNegative = errors.New("must not be negative")

// Run is the fixed description of one rescue: which assets move where.
// It is decoded once at startup and never mutated.
type Run struct {
	ChainID   int64
	Recipient common.Address // zero means the funding signer's address
	Transfers []bundlecore.TransferSpec
}

type runFile struct {
	ChainID   int64           `toml:"chain_id"`
	Recipient string          `toml:"recipient"`
	Transfers []transferEntry `toml:"transfer"`
}

type transferEntry struct {
	Label    string    `toml:"label"`
	Kind     string    `toml:"kind"`
	Contract string    `toml:"contract"`
	IDs      []tokenID `toml:"ids"`
}

// tokenID accepts integers and decimal or 0x-prefixed strings.
type tokenID struct{ v *big.Int }

func (t *tokenID) UnmarshalTOML(data interface{}) error {
	switch x := data.(type) {
	case int64:
		if x < 0 {
			return fmt.Errorf("token id %d %w", x, errNegative)
		}
		t.v = big.NewInt(x)
	case string:
		s := strings.TrimSpace(x)
		v, ok := new(big.Int).SetString(s, 0)
		if !ok {
			return fmt.Errorf("token id %q is not a number", x)
		}
		if v.Sign() < 0 {
			return fmt.Errorf("token id %q %w", x, errNegative)
		}
		t.v = v
	default:
		return fmt.Errorf("token id has unsupported type %T", data)
	}
	return nil
}

// LoadRun reads and validates a transfers file.
func LoadRun(path string) (*Run, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transfers file: %w", err)
	}
	defer f.Close()
	run, err := DecodeRun(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return run, nil
}

// DecodeRun parses a transfers document and reports every problem at once.
func DecodeRun(r io.Reader) (*Run, error) {
	var rf runFile
	md, err := toml.NewDecoder(r).Decode(&rf)
	if err != nil {
		return nil, err
	}

	var errs *multierror.Error
	for _, k := range md.Undecoded() {
		errs = multierror.Append(errs, fmt.Errorf("unknown key %q", k.String()))
	}
	run := &Run{ChainID: rf.ChainID}
	if rf.ChainID < 0 {
		errs = multierror.Append(errs, fmt.Errorf("chain_id %w", errNegative))
	}
	if rf.Recipient != "" {
		if !common.IsHexAddress(rf.Recipient) {
			errs = multierror.Append(errs, fmt.Errorf("recipient %q is not an address", rf.Recipient))
		} else {
			run.Recipient = common.HexToAddress(rf.Recipient)
		}
	}
	if len(rf.Transfers) == 0 {
		errs = multierror.Append(errs, errors.New("no [[transfer]] entries"))
	}

	for i, e := range rf.Transfers {
		name := fmt.Sprintf("transfer[%d]", i)
		if e.Label != "" {
			name = fmt.Sprintf("transfer[%d] %q", i, e.Label)
		}
		spec := bundlecore.TransferSpec{Label: e.Label}

		kind, err := bundlecore.ParseAssetKind(e.Kind)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", name, err))
		}
		spec.Kind = kind
		if !common.IsHexAddress(e.Contract) {
			errs = multierror.Append(errs, fmt.Errorf("%s: contract %q is not an address", name, e.Contract))
		} else {
			spec.Contract = common.HexToAddress(e.Contract)
		}
		if len(e.IDs) == 0 {
			errs = multierror.Append(errs, fmt.Errorf("%s: no ids", name))
		}
		seen := make(map[string]bool, len(e.IDs))
		for _, id := range e.IDs {
			if id.v == nil {
				continue
			}
			if seen[id.v.String()] {
				errs = multierror.Append(errs, fmt.Errorf("%s: duplicate id %s", name, id.v))
				continue
			}
			seen[id.v.String()] = true
			spec.IDs = append(spec.IDs, id.v)
		}
		if spec.Label == "" {
			spec.Label = fmt.Sprintf("%s@%s", spec.Kind, spec.Contract.Hex())
		}
		run.Transfers = append(run.Transfers, spec)
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return run, nil
}
