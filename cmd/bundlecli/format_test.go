package main

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestExplorerLink(t *testing.T) {
	h := common.HexToHash("0x01")
	require.Equal(t, "https://etherscan.io/tx/"+h.Hex(), explorerLink("https://etherscan.io/tx/", h))
	require.Equal(t, "https://etherscan.io/tx/"+h.Hex(), explorerLink("https://etherscan.io/tx", h))
}

func TestFormatting(t *testing.T) {
	require.Equal(t, "11.50", formatGwei(big.NewInt(11_500_000_000)))
	require.Equal(t, "0.001150", formatEther(big.NewInt(1_150_000_000_000_000)))
	require.Equal(t, "n/a", formatEther(nil))
	require.Equal(t, "***", maskHex("0x1234"))
	require.Equal(t, "0xabcd…7890", maskHex("0xabcdef1234567890"))
	require.Equal(t, "ab", trim0x(" 0xab "))
}
