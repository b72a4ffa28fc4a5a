package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/config"
	"storefront/internal/coupon"
	"storefront/internal/database"
	"storefront/internal/handler"
	"storefront/internal/inventory"
	"storefront/internal/ledger"
	"storefront/internal/notify"
	"storefront/internal/order"
	"storefront/internal/payment"
	"storefront/internal/pricing"
	"storefront/internal/repository"
	"storefront/internal/router"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := config.NewLogger(cfg.Logger)
	logger.Info().Msg("starting storefront fulfillment service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisClient := database.NewRedis(ctx, cfg.Redis, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Repositories.
	inventoryRepo := repository.NewInventoryRepository(logger)
	ledgerRepo := repository.NewLedgerRepository(pool, logger)
	couponRepo := repository.NewCouponRepository(logger)
	cartRepo := repository.NewCartRepository(logger)
	orderRepo := repository.NewOrderRepository(pool, logger)
	paymentRepo := repository.NewPaymentRepository(pool, logger)

	// Services.
	catalogSrc := catalog.NewSource(logger)
	stockLedger := inventory.NewLedger(inventoryRepo, logger)
	balanceCache := ledger.NewBalanceCache(redisClient, logger)
	moneyLedger := ledger.NewService(ledgerRepo, pool, balanceCache, logger)
	couponValidator := coupon.NewValidator(couponRepo, logger)
	pricingEngine := pricing.NewEngine(couponValidator, moneyLedger, cfg.Pricing, logger)
	notifier := notify.New(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	defer notifier.Close()

	workflow := order.NewWorkflow(
		orderRepo, cartRepo, catalogSrc, stockLedger, moneyLedger,
		couponValidator, pricingEngine, notifier, pool, cfg.Pricing, logger,
	)

	gateway := payment.NewGateway(cfg.Gateway, logger)
	reconciler := payment.NewReconciler(paymentRepo, workflow, gateway, pool, cfg.Gateway.Currency, logger)

	cartService := cart.NewService(cartRepo, catalogSrc, pool, logger)

	mux := router.New(router.Handlers{
		Health:    handler.NewHealthHandler(pool, logger),
		Cart:      handler.NewCartHandler(cartService, logger),
		Order:     handler.NewOrderHandler(workflow, reconciler, logger),
		Wallet:    handler.NewWalletHandler(moneyLedger, pool, logger),
		Inventory: handler.NewInventoryHandler(stockLedger, pool, logger),
		Webhook:   handler.NewWebhookHandler(reconciler, cfg.Gateway.WebhookSecret, logger),
	}, logger)

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("address", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		moneyLedger.RunSweeper(gctx, cfg.Pricing.SweepInterval)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info().Msg("shutdown complete")
	return nil
}
