package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/ligun0805/asset-rescue/internal/assets"
	"github.com/ligun0805/asset-rescue/internal/bundlecore"
	"github.com/ligun0805/asset-rescue/internal/chain"
	"github.com/ligun0805/asset-rescue/internal/config"
	"github.com/ligun0805/asset-rescue/internal/flashbots"
)

// app holds everything the rescue needs once configuration is resolved.
type app struct {
	st        config.Settings
	run       *config.Run
	log       logrus.FieldLogger
	chain     *chain.Client
	relay     *flashbots.Client
	enc       *assets.Encoder
	reader    *assets.Reader
	chainID   *big.Int
	source    *bundlecore.KeySigner
	funding   *bundlecore.KeySigner
	recipient common.Address
}

func setup(ctx context.Context, st config.Settings, log logrus.FieldLogger) (*app, error) {
	run, err := config.LoadRun(st.TransfersFile)
	if err != nil {
		return nil, err
	}
	a := &app{st: st, run: run, log: log}

	if st.SafePrivateKeyHex == "" {
		return nil, errors.New("SAFE_PRIVATE_KEY is empty in env")
	}
	if a.funding, err = bundlecore.KeySignerFromHex(st.SafePrivateKeyHex); err != nil {
		return nil, fmt.Errorf("SAFE_PRIVATE_KEY: %w", err)
	}
	fromPK := st.FromPrivateKeyHex
	if fromPK == "" {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return nil, errors.New("FROM_PRIVATE_KEY is empty and stdin is not a terminal")
		}
		if fromPK, err = readPassword("Private key of the compromised address: "); err != nil {
			return nil, err
		}
	}
	if a.source, err = bundlecore.KeySignerFromHex(fromPK); err != nil {
		return nil, fmt.Errorf("source key: %w", err)
	}
	if a.source.Address() == a.funding.Address() {
		return nil, errors.New("source and funding keys are the same account")
	}

	a.recipient = a.funding.Address()
	switch {
	case run.Recipient != (common.Address{}):
		a.recipient = run.Recipient
	case st.Recipient != "":
		if !common.IsHexAddress(st.Recipient) {
			return nil, fmt.Errorf("RECIPIENT %q is not an address", st.Recipient)
		}
		a.recipient = common.HexToAddress(st.Recipient)
	}

	a.chain, err = chain.Dial(ctx, a.st.HeadURL(), chain.Options{
		FeeSource:    st.FeeSource,
		RateLimit:    st.RPCRateLimit,
		PollInterval: st.HeadPollInterval,
		Log:          log.WithField("component", "chain"),
	})
	if err != nil {
		return nil, err
	}
	if a.chainID, err = a.resolveChainID(ctx); err != nil {
		a.close()
		return nil, err
	}

	var authKey *ecdsa.PrivateKey
	if st.FlashbotsAuthPKHex != "" {
		if authKey, err = crypto.HexToECDSA(trim0x(st.FlashbotsAuthPKHex)); err != nil {
			a.close()
			return nil, fmt.Errorf("FLASHBOTS_AUTH_PK: %w", err)
		}
	}
	a.relay, err = flashbots.Dial(st.RelayURL, authKey, a.chain, flashbots.Options{
		PollInterval: st.HeadPollInterval / 2,
		Log:          log.WithField("component", "relay"),
	})
	if err != nil {
		a.close()
		return nil, err
	}
	if authKey == nil {
		log.WithField("auth_address", a.relay.AuthKey.Hex()).Info("FLASHBOTS_AUTH_PK not set, using a random relay auth key")
	}

	a.enc = assets.MustEncoder()
	a.reader = assets.NewReader(a.chain, a.enc)
	return a, nil
}

// resolveChainID prefers the transfers file, then CHAIN_ID, and refuses to
// run against a node on a different chain.
func (a *app) resolveChainID(ctx context.Context) (*big.Int, error) {
	node, err := a.chain.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	want := a.run.ChainID
	if want == 0 {
		want = a.st.ChainID
	}
	if want != 0 && node.Cmp(big.NewInt(want)) != 0 {
		return nil, fmt.Errorf("configured chain id %d but node reports %s", want, node)
	}
	return node, nil
}

func (a *app) close() {
	if a.chain != nil {
		a.chain.Close()
	}
}

func (a *app) build(ctx context.Context) (*bundlecore.Bundle, uint64, error) {
	a.checkOwnership(ctx)
	b := &bundlecore.Builder{
		Estimator: a.chain,
		Assets:    a.reader,
		Encoder:   a.enc,
		Recipient: a.recipient,
		Log:       a.log,
	}
	return b.Build(ctx, a.run.Transfers, a.source, a.funding)
}

// checkOwnership warns about unique tokens the source no longer holds.
// Estimation fails for them anyway; this names the token up front.
func (a *app) checkOwnership(ctx context.Context) {
	for _, spec := range a.run.Transfers {
		if spec.Kind != bundlecore.KindUnique {
			continue
		}
		for _, id := range spec.IDs {
			owner, err := a.reader.OwnerOf(ctx, spec.Contract, id)
			if err != nil {
				a.log.WithError(err).WithFields(logrus.Fields{"transfer": spec.Label, "id": id.String()}).Debug("ownerOf failed")
				continue
			}
			if owner != a.source.Address() {
				a.log.WithFields(logrus.Fields{"transfer": spec.Label, "id": id.String(), "owner": owner.Hex()}).Warn("token is not held by the source address")
			}
		}
	}
}

func (a *app) submitter() *bundlecore.Submitter {
	return &bundlecore.Submitter{
		ChainID: a.chainID,
		Chain:   a.chain,
		Relay:   a.relay,
		Injector: &bundlecore.FundingInjector{
			Model:   a.st.FeeModel(),
			Funding: a.funding,
			Target:  a.source,
		},
		Policy: a.st.Policy(),
		Log:    a.log,
	}
}
