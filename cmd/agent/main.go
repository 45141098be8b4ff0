package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/layer-3/agent"
	"github.com/layer-3/agent/adapters/chain"
	"github.com/layer-3/agent/adapters/events"
	"github.com/layer-3/agent/adapters/store"
	"github.com/layer-3/agent/backend"
	"github.com/layer-3/agent/config"
	"github.com/layer-3/agent/logging"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, listen string

	flagSet := pflag.NewFlagSet("agent", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", os.Getenv("AGENT_CONFIG"), "path to the YAML config file")
	flagSet.StringVar(&listen, "listen", "", "address to listen on, overrides the config")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath, os.Getenv)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Listen = listen
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []agent.Option{agent.WithLogger(logger)}

	var publisher message.Publisher
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()

		publisher, err = redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: redisClient},
			logging.NewWatermillAdapter(logger),
		)
		if err != nil {
			return fmt.Errorf("failed to create Redis publisher: %w", err)
		}
		opts = append(opts, agent.WithReplayGuard(store.NewRedisStore(redisClient, store.DefaultRetention)))
		logger.Info("using redis for nonces and events")
	} else {
		publisher = gochannel.NewGoChannel(gochannel.Config{}, logging.NewWatermillAdapter(logger))
	}
	defer publisher.Close()
	opts = append(opts, agent.WithEventPublisher(events.NewWatermillPublisher(publisher)))

	if cfg.EthRPCURL != "" {
		checker, err := chain.DialEthChecker(ctx, cfg.EthRPCURL)
		if err != nil {
			return err
		}
		opts = append(opts, agent.WithTransactionChecker(checker))
	} else {
		logger.Warn("no chain rpc configured, payments cannot be confirmed")
	}

	svc := backend.NewService(backend.NewMemoryStore(), backend.NewIPFSPinner(backend.IPFSConfig{
		APIURL: cfg.IPFSAPIURL,
	}, logger.Named("ipfs")))
	opts = append(opts, agent.WithOnAfterAuth(svc.OnAfterAuth))

	a, err := agent.New(*cfg, opts...)
	if err != nil {
		return err
	}
	if err := svc.Register(a); err != nil {
		return fmt.Errorf("failed to register methods: %w", err)
	}

	if err := a.Run(ctx); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return err
	}
	return nil
}
