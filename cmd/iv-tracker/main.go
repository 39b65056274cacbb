package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/contactkeval/iv-tracker/internal/api"
	"github.com/contactkeval/iv-tracker/internal/cache"
	"github.com/contactkeval/iv-tracker/internal/config"
	"github.com/contactkeval/iv-tracker/internal/data"
	"github.com/contactkeval/iv-tracker/internal/logger"
	"github.com/contactkeval/iv-tracker/internal/market"
	"github.com/contactkeval/iv-tracker/internal/metrics"
	"github.com/contactkeval/iv-tracker/internal/report"
	"github.com/contactkeval/iv-tracker/internal/session"
	"github.com/contactkeval/iv-tracker/internal/store"
	"github.com/contactkeval/iv-tracker/internal/tracker"
)

func main() {
	envFile := flag.String("env", ".env", "optional .env file")
	rest := flag.Bool("rest", false, "run the HTTP API")
	addr := flag.String("addr", "", "HTTP listen address (overrides IVT_ADDR)")
	once := flag.Bool("once", false, "run one cycle for -symbol and export the series")
	mode := flag.String("mode", "automatic", "session mode for -once: automatic or manual")
	sym := flag.String("symbol", "NIFTY", "contract root (automatic) or option symbol (manual)")
	tf := flag.String("timeframe", "1", "bar timeframe")
	side := flag.String("side", "", "call or put")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.Errorf("config: %v", err)
		os.Exit(1)
	}
	if lvl, err := logger.ParseLevel(cfg.Verbosity); err == nil {
		logger.SetVerbosity(int(lvl))
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(cfg.StoreDir)
	if err != nil {
		logger.Errorf("store: %v", err)
		os.Exit(1)
	}
	cal, err := market.NewCalendar(cfg.Holidays)
	if err != nil {
		logger.Errorf("holidays: %v", err)
		os.Exit(1)
	}
	catalog, err := config.LoadContracts(cfg.ContractsFile)
	if err != nil {
		logger.Errorf("contracts: %v", err)
		os.Exit(1)
	}
	m := metrics.New()

	sup := tracker.New(ctx, tracker.Deps{
		Gateway:  newGateway(cfg),
		Store:    st,
		Cache:    newCache(ctx, cfg),
		Calendar: cal,
		Catalog:  catalog,
		Sessions: session.NewManager(),
		Metrics:  m,
	}, tracker.PolicyFrom(cfg))
	defer sup.Close()

	if *once {
		if err := runOnce(ctx, sup, cfg, tracker.StartRequest{
			Mode:      session.Mode(*mode),
			Symbol:    *sym,
			Timeframe: *tf,
			Side:      *side,
		}); err != nil {
			logger.Errorf("%v", err)
			sup.Close()
			os.Exit(1)
		}
		return
	}
	if !*rest {
		logger.Infof("nothing to do, pass -rest or -once")
		return
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewRouter(sup, api.Options{Metrics: m}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			logger.Warnf("http shutdown: %v", err)
		}
	}()
	logger.Infof("starting REST server on %s", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("http: %v", err)
		os.Exit(1)
	}
}

// runOnce primes one session and writes its series next to the store.
func runOnce(ctx context.Context, sup *tracker.Supervisor, cfg *config.AppConfig, req tracker.StartRequest) error {
	began := time.Now()
	res, err := sup.Start(ctx, req)
	if err != nil {
		return err
	}
	for _, d := range res.Diagnostics {
		logger.Infof("%s", d)
	}
	ser, err := sup.Series(ctx, res.ResolvedSymbol)
	if err != nil {
		return err
	}
	path, err := report.WriteJSON(res, ser, cfg.StoreDir)
	if err != nil {
		return err
	}
	logger.Infof("finished in %v, wrote %d points to %s", time.Since(began), ser.Len(), path)
	return nil
}

// newGateway builds the configured gateway, chained to the configured
// fallback gateway if any. Synthetic data never backs a real gateway.
func newGateway(cfg *config.AppConfig) data.Gateway {
	primary := gatewayOf(cfg, cfg.Gateway)
	if cfg.Fallback == "" {
		logger.Infof("%s gateway enabled", primary.Name())
		return primary
	}
	gw := data.WithFallback(primary, gatewayOf(cfg, cfg.Fallback))
	logger.Infof("%s gateway enabled", gw.Name())
	return gw
}

func gatewayOf(cfg *config.AppConfig, kind string) data.Gateway {
	switch kind {
	case "fyers":
		return data.NewFyersGateway(cfg.Fyers.AppID, cfg.Fyers.AccessToken, cfg.Fyers.BaseURL, nil)
	case "massive":
		return data.NewMassiveGateway(cfg.Massive.APIKey, nil)
	case "local":
		return data.NewLocalGateway(cfg.DataDir, nil)
	default:
		return data.NewSyntheticGateway(cfg.Rate)
	}
}

func newCache(ctx context.Context, cfg *config.AppConfig) cache.Cache {
	if cfg.Cache.Backend != "redis" {
		return cache.NewMemory()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.Addr,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
	})
	rc := cache.NewRedis(client, cfg.Cache.Prefix, cfg.Cache.TTL)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx); err != nil {
		logger.Warnf("redis %s unreachable (%v), using memory cache", cfg.Cache.Addr, err)
		_ = client.Close()
		return cache.NewMemory()
	}
	logger.Infof("redis cache at %s", cfg.Cache.Addr)
	return rc
}
