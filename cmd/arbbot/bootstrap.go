package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/venuearb/config"
	"github.com/alejandrodnm/venuearb/internal/adapters/notify"
	"github.com/alejandrodnm/venuearb/internal/adapters/onchain"
	"github.com/alejandrodnm/venuearb/internal/application/engine"
	"github.com/alejandrodnm/venuearb/internal/domain"
	"github.com/alejandrodnm/venuearb/internal/ports"
	"github.com/ethereum/go-ethereum/common"
)

// application es el grafo de dependencias ya resuelto.
type application struct {
	client      *onchain.Client
	watcher     *onchain.SwapWatcher
	coordinator *engine.Coordinator
}

func (a *application) close() {
	a.client.Close()
}

// bootstrap conecta con el nodo, resuelve assets y pools y construye el
// coordinator. Cualquier error aquí es fatal: nada se suscribe todavía.
func bootstrap(ctx context.Context, cfg *config.Config, store ports.CycleStore) (*application, error) {
	client, err := onchain.Dial(ctx, cfg.RPC(), cfg.Network.RatePerSec)
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			client.Close()
		}
	}()

	key, signer, err := onchain.ParsePrivateKey(cfg.Network.PrivateKey)
	if err != nil {
		return nil, err
	}

	base, err := onchain.ResolveAsset(ctx, client, common.HexToAddress(cfg.Assets.ArbFor))
	if err != nil {
		return nil, err
	}
	target, err := onchain.ResolveAsset(ctx, client, common.HexToAddress(cfg.Assets.ArbAgainst))
	if err != nil {
		return nil, err
	}

	classicPool, err := onchain.ResolveClassicPool(ctx, client,
		cfg.Venues.Classic.Name, common.HexToAddress(cfg.Venues.Classic.Factory), base, target)
	if err != nil {
		return nil, err
	}
	concPool, err := onchain.ResolveConcentratedPool(ctx, client,
		cfg.Venues.Concentrated.Name, common.HexToAddress(cfg.Venues.Concentrated.Factory),
		cfg.Venues.Concentrated.Fee, base, target)
	if err != nil {
		return nil, err
	}

	venues := engine.Venues{
		Concentrated: onchain.NewConcentratedVenue(client, concPool, common.HexToAddress(cfg.Venues.Concentrated.Quoter)),
		Classic:      onchain.NewClassicVenue(client, classicPool, common.HexToAddress(cfg.Venues.Classic.Router)),
	}

	settlement, err := onchain.NewSettlementClient(ctx, client,
		common.HexToAddress(cfg.Execution.SettlementAddress), key, cfg.Strategy.GasLimit)
	if err != nil {
		return nil, err
	}

	threshold, err := cfg.Threshold()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	gasPriceWei, err := cfg.GasPriceWei()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	execCfg := engine.ExecutorConfig{
		Live:           cfg.Execution.Deployed,
		Asset0:         base,
		Asset1:         target,
		ConfirmTimeout: cfg.ConfirmTimeout(),
	}
	if cfg.Execution.Target != "" {
		execCfg.Target = common.HexToAddress(cfg.Execution.Target)
	}

	console := notify.NewConsole(notify.ConsoleConfig{
		Units:            cfg.Strategy.Units,
		Base:             base,
		Target:           target,
		ConcentratedName: concPool.Name,
		ClassicName:      classicPool.Name,
	})

	coord := engine.New(
		venues,
		client,
		engine.NewEstimator(venues, engine.EstimatorConfig{GasLimit: cfg.Strategy.GasLimit, GasPriceWei: gasPriceWei}),
		engine.NewExecutor(client, settlement, execCfg),
		console,
		store,
		engine.Config{Threshold: threshold, ResubscribeBackoff: cfg.ResubscribeBackoff()},
	)

	block, err := client.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("bootstrap: ready",
		"base", base.Symbol,
		"target", target.Symbol,
		"classic_pool", classicPool.Address.Hex(),
		"concentrated_pool", concPool.Address.Hex(),
		"signer", signer.Hex(),
		"block", block,
	)
	console.Startup([]domain.PoolHandle{classicPool, concPool}, block, cfg.Execution.Deployed)

	ok = true
	return &application{
		client:      client,
		watcher:     onchain.NewSwapWatcher(client),
		coordinator: coord,
	}, nil
}
