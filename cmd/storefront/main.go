package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	catalogapp "github.com/dwikikusuma/bullion-store/internal/catalog/app"
	catalogdomain "github.com/dwikikusuma/bullion-store/internal/catalog/domain"
	catalogmem "github.com/dwikikusuma/bullion-store/internal/catalog/infra/memory"
	catalogpg "github.com/dwikikusuma/bullion-store/internal/catalog/infra/postgres"

	checkoutapp "github.com/dwikikusuma/bullion-store/internal/checkout/app"
	"github.com/dwikikusuma/bullion-store/internal/checkout/crypto"
	checkoutadapter "github.com/dwikikusuma/bullion-store/internal/checkout/infra/adapter"
	"github.com/dwikikusuma/bullion-store/internal/checkout/infra/mock"
	"github.com/dwikikusuma/bullion-store/internal/checkout/policy"

	orderapp "github.com/dwikikusuma/bullion-store/internal/order/app"
	ordermem "github.com/dwikikusuma/bullion-store/internal/order/infra/memory"
	orderpg "github.com/dwikikusuma/bullion-store/internal/order/infra/postgres"
	orderredis "github.com/dwikikusuma/bullion-store/internal/order/infra/redis"

	"github.com/dwikikusuma/bullion-store/internal/gateway"
	"github.com/dwikikusuma/bullion-store/internal/pricing"
	"github.com/dwikikusuma/bullion-store/internal/session"
	"github.com/dwikikusuma/bullion-store/pkg/config"
	"github.com/dwikikusuma/bullion-store/pkg/logger"
	"github.com/dwikikusuma/bullion-store/pkg/postgres"
	"github.com/dwikikusuma/bullion-store/pkg/shutdown"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const orderTTL = 7 * 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(logger.Options{Service: "storefront", Env: cfg.AppEnv, Level: cfg.LogLevel, AddSource: true})

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("storefront stopped", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("bye")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	checks := &readyChecks{}

	var pool *pgxpool.Pool
	if cfg.CatalogSource == "postgres" || cfg.OrderSink == "postgres" {
		p, err := postgres.Open(ctx, postgres.Config{URL: cfg.DatabaseURL})
		if err != nil {
			return fmt.Errorf("db open: %w", err)
		}
		defer p.Close()
		pool = p
		checks.add("postgres", pool.Ping)
	}

	// Catalog
	seed, err := catalogmem.LoadSeed(cfg.CatalogSeedPath)
	if err != nil {
		return err
	}
	products, err := catalogRepo(ctx, cfg, pool, seed)
	if err != nil {
		return err
	}
	catalogSvc := catalogapp.NewService(products)
	if err := catalogSvc.Load(ctx); err != nil {
		return err
	}

	// Pricing and checkout policy
	fee := cfg.Checkout.Fee
	if fee <= 0 {
		fee = pricing.DefaultFee
	}
	pricer := pricing.NewCalculator(checkoutadapter.NewCatalogServiceReader(catalogSvc), fee)

	kyc, err := policy.NewKyc(cfg.Checkout.KycRule)
	if err != nil {
		return err
	}
	currencies, err := crypto.NewRegistry(currencyDefinitions(cfg.Checkout.Currencies))
	if err != nil {
		return err
	}

	// Orders
	viewer, closeViewer, err := orderViewer(ctx, cfg, pool, checks)
	if err != nil {
		return err
	}
	defer closeViewer()
	finalizer := orderapp.NewFinalizer(orderapp.NewIDGenerator(cfg.OrderIDStrategy), viewer, log)

	sessions := session.NewManager(session.Deps{
		Pricer:     pricer,
		Policy:     kyc,
		Currencies: currencies,
		Wallet:     mock.Wallet{},
		Kyc:        mock.Kyc{},
		Payments:   mock.Payments{},
		Orders:     finalizer,
		Timing: checkoutapp.Timing{
			WalletConnectDelay: cfg.Checkout.WalletConnectDelay,
			CopyFeedback:       cfg.Checkout.CopyFeedback,
		},
		Logger: log,
	})
	defer sessions.Close()

	handler := gateway.New(catalogSvc, sessions, finalizer, currencies, log)
	checks.apply(handler)

	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	server := &http.Server{
		Addr:              httpAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcAddr := fmt.Sprintf(":%d", cfg.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", grpcAddr, err)
	}
	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http server starting", slog.String("addr", httpAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		log.Info("grpc health starting", slog.String("addr", grpcAddr))
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown requested", slog.Any("cause", context.Cause(gctx)))
		healthSrv.Shutdown()

		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()

		if err := server.Shutdown(stopCtx); err != nil {
			log.Error("http shutdown error", slog.Any("err", err))
		}

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopCtx.Done():
			log.Warn("graceful stop timeout, forcing stop")
			grpcServer.Stop()
		case <-stopped:
		}
		return nil
	})

	return g.Wait()
}

func catalogRepo(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, seed []catalogdomain.Product) (catalogapp.ProductRepo, error) {
	switch cfg.CatalogSource {
	case "memory":
		return catalogmem.NewProductRepo(seed), nil
	case "postgres":
		repo := catalogpg.NewProductRepo(pool)
		if err := repo.Migrate(ctx); err != nil {
			return nil, err
		}
		if err := repo.Seed(ctx, seed); err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown catalog source %q", cfg.CatalogSource)
	}
}

func orderViewer(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, checks *readyChecks) (orderapp.StatusViewer, func(), error) {
	switch cfg.OrderSink {
	case "memory":
		return ordermem.NewOrderStore(), func() {}, nil
	case "postgres":
		repo := orderpg.NewOrderRepo(pool)
		if err := repo.Migrate(ctx); err != nil {
			return nil, nil, err
		}
		return repo, func() {}, nil
	case "redis":
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := goredis.NewClient(opts)
		bus := orderredis.NewOrderBus(client, orderTTL)
		if err := bus.Ping(ctx); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		checks.add("redis", bus.Ping)
		return bus, func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown order sink %q", cfg.OrderSink)
	}
}

func currencyDefinitions(in []config.Currency) []crypto.Definition {
	if len(in) == 0 {
		return nil
	}
	out := make([]crypto.Definition, 0, len(in))
	for _, c := range in {
		out = append(out, crypto.Definition{
			Name:    c.Name,
			Symbol:  c.Symbol,
			Network: c.Network,
			Address: c.Address,
			UsdRate: c.UsdRate,
		})
	}
	return out
}

// readyChecks collects probes for backing services until the handler
// exists.
type readyChecks struct {
	names  []string
	checks []gateway.ReadyCheck
}

func (r *readyChecks) add(name string, check gateway.ReadyCheck) {
	r.names = append(r.names, name)
	r.checks = append(r.checks, check)
}

func (r *readyChecks) apply(h *gateway.Handler) {
	for i, name := range r.names {
		h.AddReadyCheck(name, r.checks[i])
	}
}
