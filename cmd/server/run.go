package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gocsprbridge/CSPRRPC"
	"gocsprbridge/EVMRPC"
	"gocsprbridge/config"
	"gocsprbridge/ledger"
	"gocsprbridge/proof"
	"gocsprbridge/redis"
	"gocsprbridge/signer"
	"gocsprbridge/types"
	"gocsprbridge/workers"
	"gocsprbridge/workers/handlers"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// storage backs cursors and per-direction ledgers
type storage struct {
	cursors workers.CursorStore
	store   func(types.Direction) ledger.Store
	close   func() error
}

func openStorage(ctx context.Context, cfg *config.Configuration, log zerolog.Logger) (*storage, error) {
	if cfg.Server.RedisHost == "" {
		log.Warn().Msg("no redis host configured, ledger kept in memory and lost on restart")
		mem := map[types.Direction]*ledger.Memory{}
		return &storage{
			cursors: ledger.NewMemoryCursors(),
			store: func(d types.Direction) ledger.Store {
				if _, ok := mem[d]; !ok {
					mem[d] = ledger.NewMemory()
				}
				return mem[d]
			},
			close: func() error { return nil },
		}, nil
	}

	client := redis.New(cfg.Server.RedisHost, cfg.Server.RedisPort, log)
	// without persistence do not continue
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("cannot connect to redis: %w", err)
	}
	return &storage{
		cursors: client,
		store:   func(d types.Direction) ledger.Store { return client.Ledger(d) },
		close:   client.Close,
	}, nil
}

func buildBridge(cfg *config.Configuration, st *storage, log zerolog.Logger) (*workers.Bridge, error) {
	attester, err := signer.New(cfg.Signer.Secp256k1Key, cfg.Signer.Ed25519Seed)
	if err != nil {
		return nil, err
	}

	casperGW := CSPRRPC.NewGateway(cfg.Casper.RPCList, cfg.Casper.VaultHash, 0, log)
	evmGW := EVMRPC.NewGateway(cfg.EVM.RPCList, cfg.EVM.TokenAddress, cfg.EVM.BlockBatch, log)

	mintBuilder, err := EVMRPC.NewMintBuilder(evmGW, cfg.EVM.PrivateKey, cfg.EVM.VerifierAddr, cfg.EVM.ChainID, cfg.EVM.GasLimit)
	if err != nil {
		return nil, err
	}
	releaseBuilder, err := CSPRRPC.NewReleaseBuilder(cfg.Casper.PrivateKey, cfg.Casper.ChainName, cfg.Casper.VaultHash, cfg.Casper.PaymentMotes)
	if err != nil {
		return nil, err
	}
	log.Info().Str("evmRelayer", mintBuilder.From().Hex()).Str("casperRelayer", releaseBuilder.Account()).Msg("relayer accounts")

	type side struct {
		chain   types.ChainID
		gateway workers.Gateway
		decode  workers.DecodeFunc
		builder workers.TxBuilder
		dec     int
		maxBits int
		norm    proof.RecipientFunc
		depth   uint64
		poll    time.Duration
		batch   uint64
		start   uint64
	}
	casper := side{
		chain: types.CHAIN_CASPER, gateway: casperGW, decode: CSPRRPC.DecodeLock, builder: releaseBuilder,
		dec: cfg.Decimals.Casper, maxBits: config.CASPER_AMOUNT_BITS, norm: CSPRRPC.NormalizeRecipient,
		depth: cfg.Casper.Confirmations, poll: cfg.Casper.PollInterval, batch: cfg.Casper.BlockBatch, start: cfg.Casper.StartBlock,
	}
	evm := side{
		chain: types.CHAIN_EVM, gateway: evmGW, decode: EVMRPC.DecodeBurn, builder: mintBuilder,
		dec: cfg.Decimals.EVM, maxBits: config.EVM_AMOUNT_BITS, norm: EVMRPC.NormalizeRecipient,
		depth: cfg.EVM.Confirmations, poll: cfg.EVM.PollInterval, batch: cfg.EVM.BlockBatch, start: cfg.EVM.StartBlock,
	}

	route := func(src, dst side) (workers.Route, error) {
		direction := types.Direction{Source: src.chain, Destination: dst.chain}
		scheme, err := signer.SchemeFor(dst.chain)
		if err != nil {
			return workers.Route{}, err
		}
		l := ledger.New(direction, st.store(direction), log)

		watcher := workers.NewChainWatcher(workers.WatcherParams{
			Chain:         src.chain,
			Gateway:       src.gateway,
			Decode:        src.decode,
			Cursors:       st.cursors,
			Confirmations: src.depth,
			PollInterval:  src.poll,
			BlockBatch:    src.batch,
			StartBlock:    src.start,
		}, log)

		executor := workers.NewSubmissionExecutor(workers.ExecutorParams{
			Chain:            dst.chain,
			Gateway:          dst.gateway,
			Builder:          dst.builder,
			Ledger:           l,
			BroadcastRetries: cfg.Executor.BroadcastRetries,
			PollInterval:     cfg.Executor.PollInterval,
			MaxPollAttempts:  cfg.Executor.PollAttempts,
		}, log)

		pipeline := workers.NewPipeline(workers.PipelineParams{
			Direction: direction,
			Ledger:    l,
			Builder: proof.NewBuilder(proof.Params{
				Destination:  dst.chain,
				SourceDec:    src.dec,
				DestDec:      dst.dec,
				DestMaxBits:  dst.maxBits,
				NormalizeDst: dst.norm,
			}),
			Attester: attester,
			Scheme:   scheme,
			Executor: executor,
		}, log)

		return workers.Route{Watcher: watcher, Pipeline: pipeline}, nil
	}

	toEVM, err := route(casper, evm)
	if err != nil {
		return nil, err
	}
	toCasper, err := route(evm, casper)
	if err != nil {
		return nil, err
	}

	return workers.NewBridge(
		[]workers.Route{toEVM, toCasper},
		map[types.ChainID]workers.Gateway{types.CHAIN_CASPER: casperGW, types.CHAIN_EVM: evmGW},
		log,
	), nil
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	log.Info().Msg("Starting CSPR bridge")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	bridge, err := buildBridge(cfg, st, log)
	if err != nil {
		return err
	}

	if err := bridge.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return workers.ServeHTTP(gctx, cfg.Server.Listen, workers.NewRouter(handlers.New(bridge, log), log), log)
	})
	g.Go(func() error {
		<-gctx.Done()
		return bridge.Stop()
	})

	err = g.Wait()
	log.Info().Msg("CSPR bridge stopped")
	return err
}
