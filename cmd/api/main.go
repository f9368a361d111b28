package main

import (
	"os"
	"os/signal"
	"syscall"

	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/infra/cache"
	"storefront/internal/infra/db"
	"storefront/internal/infra/notify"
	"storefront/internal/infra/payment"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/logger"
	"storefront/internal/server"
	"storefront/internal/usecase"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"
)

func main() {
	app := &cli.App{
		Name:  "storefront",
		Usage: "cart, checkout and payment API",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "start the HTTP server",
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "apply or roll back database migrations",
				Subcommands: []*cli.Command{
					{
						Name:   "up",
						Usage:  "apply all pending migrations",
						Action: migrateUp,
					},
					{
						Name:   "down",
						Usage:  "roll back the latest migration",
						Action: migrateDown,
					},
				},
			},
		},
		// サブコマンド無しはserve
		Action: serve,
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("storefront exited")
	}
}

func bootstrap() (config.Config, *logrus.Logger, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	log := logger.New(cfg)

	//DB接続
	gormDB, err := db.Connect(cfg, log)
	if err != nil {
		return config.Config{}, nil, nil, errors.Wrap(err, "connect database")
	}
	return cfg, log, gormDB, nil
}

func migrateUp(_ *cli.Context) error {
	_, log, gormDB, err := bootstrap()
	if err != nil {
		return err
	}
	if err := db.RunMigrations(gormDB); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}

func migrateDown(_ *cli.Context) error {
	_, log, gormDB, err := bootstrap()
	if err != nil {
		return err
	}
	if err := db.RollbackMigrations(gormDB); err != nil {
		return err
	}
	log.Info("migration rolled back")
	return nil
}

func serve(c *cli.Context) error {
	cfg, log, gormDB, err := bootstrap()
	if err != nil {
		return err
	}
	if err := db.RunMigrations(gormDB); err != nil {
		return err
	}

	//Repository（GORM実装）生成
	repos := infraRepo.NewRepos(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)

	//カートキャッシュ
	var cartCache cache.CartCache = cache.Noop{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		cartCache = cache.NewRedisCache(rdb, cfg.CartCacheTTL)
		log.WithFields(logrus.Fields{"addr": cfg.RedisAddr, "ttl": cfg.CartCacheTTL}).Info("cart cache enabled")
	}

	//支払い通知
	var notifier interface {
		usecase.Notifier
		Close() error
	} = notify.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		notifier = notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		log.WithField("topic", cfg.KafkaTopic).Info("order notifications enabled")
	}
	defer func() {
		if err := notifier.Close(); err != nil {
			log.WithError(err).Warn("close notifier")
		}
	}()

	//決済
	processor := payment.NewClient(payment.ClientConfig{
		BaseURL:   cfg.PaymentAPIBase,
		SecretKey: cfg.PaymentSecretKey,
		Timeout:   cfg.PaymentTimeout,
	})
	verifier := payment.NewVerifier(cfg.PaymentWebhookSecret, cfg.WebhookTolerance)

	//Usecase生成
	clock := usecase.SystemClock()
	guard := usecase.NewInventoryGuard()
	transitioner := usecase.NewOrderTransitioner(guard, clock, log)
	payments := usecase.NewPaymentUsecase(txm, repos, processor, cfg.PaymentTimeout, log)

	cartUC := usecase.NewCartUsecase(txm, repos, cartCache, guard, clock, cfg.CartTTL, log)
	checkoutUC := usecase.NewCheckoutUsecase(txm, repos, usecase.NewOrderBuilder(guard, clock, cfg.Currency), payments, cartCache, clock, log)
	orderUC := usecase.NewOrderUsecase(txm, repos, transitioner, log)
	adminUC := usecase.NewAdminOrderUsecase(txm, repos, transitioner, log)
	reconciler := usecase.NewWebhookReconciler(txm, repos, verifier, processor, transitioner, notifier, clock, cfg.WebhookTimeout, log)

	//Handler生成
	e := server.New(cfg.JWTSecret, log, server.Handlers{
		Cart:     handler.NewCartHandler(cartUC),
		Checkout: handler.NewCheckoutHandler(checkoutUC),
		Order:    handler.NewOrderHandler(orderUC, payments),
		Webhook:  handler.NewWebhookHandler(reconciler),
		Admin:    handler.NewAdminOrderHandler(adminUC, reconciler),
	})

	//Server起動
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.Start(ctx, e, cfg.Addr(), log)
}
