package assets

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/ligun0805/asset-rescue/internal/bundlecore"
)

// Encoder packs calldata for the supported token standards.
type Encoder struct {
	erc1155 abi.ABI
	erc721  abi.ABI
}

func NewEncoder() (*Encoder, error) {
	a1155, err := abi.JSON(strings.NewReader(erc1155ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc1155 abi: %w", err)
	}
	a721, err := abi.JSON(strings.NewReader(erc721ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc721 abi: %w", err)
	}
	return &Encoder{erc1155: a1155, erc721: a721}, nil
}

// MustEncoder panics if the embedded ABIs do not parse.
func MustEncoder() *Encoder {
	e, err := NewEncoder()
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Encoder) abiFor(kind bundlecore.AssetKind) (*abi.ABI, error) {
	switch kind {
	case bundlecore.KindBatchFungible:
		return &e.erc1155, nil
	case bundlecore.KindUnique:
		return &e.erc721, nil
	}
	return nil, fmt.Errorf("unsupported asset kind %s", kind)
}

// Encode packs method(args...) for the contract standard of kind.
func (e *Encoder) Encode(kind bundlecore.AssetKind, method string, args ...interface{}) ([]byte, error) {
	a, err := e.abiFor(kind)
	if err != nil {
		return nil, err
	}
	data, err := a.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("encode %s.%s: %w", kind, method, err)
	}
	return data, nil
}

// Decode unpacks the return data of method.
func (e *Encoder) Decode(kind bundlecore.AssetKind, method string, ret []byte) ([]interface{}, error) {
	a, err := e.abiFor(kind)
	if err != nil {
		return nil, err
	}
	out, err := a.Unpack(method, ret)
	if err != nil {
		return nil, fmt.Errorf("decode %s.%s: %w", kind, method, err)
	}
	return out, nil
}
