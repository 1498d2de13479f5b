// reviewd serves a confidential review ledger over HTTP with an in-process
// decryption oracle. Key material and ledger state live under the data
// directory and survive restarts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	review "github.com/wileschulpusi/Review"
	"github.com/wileschulpusi/Review/internal/config"
	"github.com/wileschulpusi/Review/pkg/apiServer"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to yaml config")
		dataPath   = flag.String("data", "", "data directory (overrides config)")
		listenAddr = flag.String("listen", "", "HTTP listen address (overrides config)")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	log := logrus.New()
	if *debug {
		log.SetLevel(logrus.DebugLevel)
	}

	conf, err := config.Load(*configPath)
	if err != nil {
		log.WithField("error", err).Fatal("load config")
	}
	if *dataPath != "" {
		conf.DataPath = *dataPath
	}
	if *listenAddr != "" {
		conf.ListenAddr = *listenAddr
	}
	if *debug {
		conf.Debug = true
		log.SetLevel(logrus.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, log); err != nil {
		log.WithField("error", err).Error("daemon error")
		os.Exit(1)
	}
}

func run(ctx context.Context, conf config.Config, log *logrus.Logger) error {
	if err := os.MkdirAll(conf.DataPath, 0o700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	o, err := loadOrCreateOracle(filepath.Join(conf.DataPath, "oracle.key"), conf.KeyBits, log)
	if err != nil {
		return fmt.Errorf("setup oracle: %w", err)
	}

	ledger, err := review.New(review.Config{
		Paths:           []string{conf.DataPath},
		MinimumFreeGB:   conf.MinimumFreeGB,
		Logger:          log,
		PublicKey:       o.PublicKey(),
		OracleVerifyKey: o.VerifyKey(),
		EventBuffer:     conf.EventBuffer,
	})
	if err != nil {
		return fmt.Errorf("create ledger: %w", err)
	}
	if err := ledger.Start(ctx); err != nil {
		return fmt.Errorf("start ledger: %w", err)
	}

	go logEvents(ledger, log)

	server := &http.Server{
		Addr:              conf.ListenAddr,
		Handler:           apiServer.New(ledger, apiServer.WithLogger(log)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("listenAddr", conf.ListenAddr).Info("serving ledger API")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		_ = ledger.Close(context.Background())
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithField("error", err).Warn("http shutdown")
	}
	return ledger.Close(shutdownCtx)
}

func logEvents(ledger *review.Ledger, log *logrus.Logger) {
	for ev := range ledger.Events() {
		log.WithFields(logrus.Fields{
			"kind":    ev.Kind,
			"paper":   ev.PaperID,
			"handle":  ev.Handle,
			"traceId": ev.TraceID,
		}).Info("ledger event")
	}
}
