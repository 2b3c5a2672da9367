package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/ligun0805/asset-rescue/internal/bundlecore"
	"github.com/ligun0805/asset-rescue/internal/config"
	"github.com/ligun0805/asset-rescue/internal/logging"
)

const (
	exitIncluded = 0
	exitSetup    = 1
	exitStopped  = 2
)

func main() {
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")
	os.Exit(run())
}

func run() int {
	st, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return exitSetup
	}
	logger, err := logging.New(os.Stdout, st.LogLevel, st.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitSetup
	}
	log := logger.WithField("run_id", uuid.NewString())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, st, log)
	if err != nil {
		log.WithError(err).Error("setup failed")
		return exitSetup
	}
	defer a.close()
	a.printConfig(ctx)

	bundle, totalGas, err := a.build(ctx)
	if err != nil {
		var ee *bundlecore.EstimationError
		if errors.As(err, &ee) {
			log.WithFields(logrus.Fields{"transfer": ee.Spec.String(), "index": ee.Index}).WithError(ee.Err).Error("gas estimation failed, nothing was submitted")
		} else {
			log.WithError(err).Error("building bundle failed")
		}
		return exitSetup
	}

	res, err := a.submitter().Run(ctx, bundle, totalGas)
	if err != nil {
		attempts := 0
		if res != nil {
			attempts = res.Attempts
		}
		log.WithError(err).WithField("attempts", attempts).Error("stopped without inclusion")
		return exitStopped
	}

	log.WithFields(logrus.Fields{"attempts": res.Attempts, "block": res.TargetBlock}).Info("bundle included")
	for _, h := range res.TxHashes {
		fmt.Println(explorerLink(st.ExplorerTxURL, h))
	}
	return exitIncluded
}
