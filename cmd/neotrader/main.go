package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"neotrader/internal/broker/neo"
	"neotrader/internal/cli"
	"neotrader/internal/config"
	"neotrader/internal/engine"
	"neotrader/internal/logger"
	"neotrader/internal/marketdata"
	"neotrader/internal/metrics"
)

func main() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Runtime.Log.Level,
		Format:     cfg.Runtime.Log.Format,
		Output:     cfg.Runtime.Log.File,
		MaxSize:    cfg.Runtime.Log.MaxSize,
		MaxBackups: cfg.Runtime.Log.MaxBackups,
		MaxAge:     cfg.Runtime.Log.MaxAge,
		Compress:   cfg.Runtime.Log.Compress,
	})

	log.Info("Starting Neo bracket trading CLI.")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := neo.New(cfg.Broker, cfg.Trading, log)
	if !client.DemoMode() {
		if err := client.Login(ctx, promptOTP); err != nil {
			log.WithError(err).Fatal("Broker authentication failed.")
		}
	} else {
		log.Info("Demo mode enabled, orders will not reach the broker.")
	}

	var m *metrics.Metrics
	if cfg.Metrics.ListenAddr != "" {
		m = metrics.New()
		go func() {
			if err := m.Serve(cfg.Metrics.ListenAddr); err != nil {
				log.WithError(err).Error("Metrics listener stopped.")
			}
		}()
	}

	quotes := marketdata.New(client, log, cfg.Trading.PollInterval)
	executor := engine.NewExecutor(cfg, client, log, m)
	manager := engine.NewManager(executor, quotes, log)
	terminal := cli.New(manager, quotes, log)

	go func() {
		terminal.Run(ctx)
		// Operator quit from the prompt.
		sigCh <- syscall.SIGTERM
	}()
	<-sigCh

	cancel()
	manager.Cleanup()

	log.Info("Application shut down.")
}

func promptOTP() (string, error) {
	fmt.Print("Please enter the OTP received: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
