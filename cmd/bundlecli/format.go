package main

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ligun0805/asset-rescue/internal/fees"
)

func formatGwei(v *big.Int) string {
	if v == nil {
		return "n/a"
	}
	return fees.WeiToGwei(v).StringFixed(2)
}

func formatEther(v *big.Int) string {
	if v == nil {
		return "n/a"
	}
	return fees.WeiToEther(v).StringFixed(6)
}

// explorerLink joins a block explorer tx prefix and a hash.
func explorerLink(prefix string, h common.Hash) string {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + h.Hex()
}
