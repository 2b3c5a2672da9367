package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/ligun0805/asset-rescue/internal/bundlecore"
)

// printConfig prints the resolved settings with keys masked, then the fee market.
func (a *app) printConfig(ctx context.Context) {
	st := a.st
	fmt.Println("=== CONFIG (.env) ===")
	fmt.Println("RPC_URL           :", st.RPCURL)
	if st.WSURL != "" {
		fmt.Println("WS_URL            :", st.WSURL)
	}
	fmt.Println("CHAIN_ID          :", a.chainID.String())
	fmt.Println("RELAY_URL         :", st.RelayURL)
	fmt.Println("FLASHBOTS_AUTH_PK :", maskHex(st.FlashbotsAuthPKHex))
	fmt.Println("SAFE_PRIVATE_KEY  :", maskHex(st.SafePrivateKeyHex))
	fmt.Println("  -> Safe address :", a.funding.Address().Hex())
	if bal, err := a.chain.Balance(ctx, a.funding.Address()); err == nil {
		fmt.Println("  -> Safe balance :", formatEther(bal), "ETH")
	}
	fmt.Println("Source address    :", a.source.Address().Hex())
	fmt.Println("Recipient         :", a.recipient.Hex())
	fmt.Println("Fee source / mode :", st.FeeSource, "/", st.FeeMode)
	fmt.Println("Padding (gwei)    :", st.PaddingGwei.String())
	if st.EscalationGwei.IsPositive() {
		fmt.Println("Escalation (gwei) :", st.EscalationGwei.String())
	}
	if st.MaxAttempts > 0 {
		fmt.Println("Max attempts      :", st.MaxAttempts)
	} else {
		fmt.Println("Max attempts      : unbounded")
	}
	fmt.Println("Transfers         :", st.TransfersFile)
	for _, t := range a.run.Transfers {
		fmt.Printf("  - %-8s %s ids=%s\n", t.Kind, t.Contract.Hex(), idList(t))
	}
	fmt.Println("=====================")

	snap, err := a.chain.Snapshot(ctx)
	if err != nil {
		fmt.Println("[net] snapshot error:", err)
		return
	}
	fmt.Printf("[net] head=%d baseFee(now)=%s gwei baseFee(next)=%s gwei gasPrice=%s gwei\n",
		snap.Head, formatGwei(snap.BaseFee), formatGwei(snap.NextBaseFee), formatGwei(snap.GasPrice))
}

func idList(t bundlecore.TransferSpec) string {
	parts := make([]string, len(t.IDs))
	for i, id := range t.IDs {
		parts[i] = id.String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}
