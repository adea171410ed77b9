package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	commonerrors "github.com/retailcore/salesaga/pkg/errors"
	"github.com/retailcore/salesaga/pkg/health"
	"github.com/retailcore/salesaga/pkg/logger"
	"github.com/retailcore/salesaga/pkg/response"
	"github.com/retailcore/salesaga/pkg/snowflake"
	"github.com/retailcore/salesaga/pkg/tracing"

	"github.com/retailcore/salesaga/internal/sales/client"
	"github.com/retailcore/salesaga/internal/sales/config"
	"github.com/retailcore/salesaga/internal/sales/metrics"
	"github.com/retailcore/salesaga/internal/sales/repository"
	"github.com/retailcore/salesaga/internal/sales/service"
)

type redisChecker struct {
	rdb *redis.Client
}

func (c *redisChecker) Name() string { return "redis" }

func (c *redisChecker) Check(ctx context.Context) health.CheckResult {
	start := time.Now()
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return health.CheckResult{Status: health.StatusDown, Latency: time.Since(start), Message: err.Error()}
	}
	return health.CheckResult{Status: health.StatusUp, Latency: time.Since(start)}
}

func main() {
	cfg := config.Load()
	log := logger.New(cfg.ServiceName, os.Stdout)
	log.Info("starting sales service")

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		log.WithError(err).Error("open database")
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.WithError(err).Error("ping database")
		os.Exit(1)
	}
	log.Info("connected to PostgreSQL")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer rdb.Close()

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.WithError(err).Error("ping redis")
		os.Exit(1)
	}
	log.Info("connected to Redis")

	shutdownTracing, err := tracing.Init(tracing.Config{
		ServiceName: cfg.ServiceName,
		Endpoint:    cfg.JaegerEndpoint,
		Enabled:     cfg.TracingEnabled,
		SampleRate:  cfg.TracingSampleRate,
	})
	if err != nil {
		log.WithError(err).Error("init tracing")
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	idGen, err := snowflake.New(cfg.WorkerID)
	if err != nil {
		log.WithError(err).Error("init id generator")
		os.Exit(1)
	}

	m := metrics.New()
	inventoryClient := client.NewInventoryClient(cfg.InventoryBaseURL)
	ledgerClient := client.NewLedgerClient(cfg.LedgerBaseURL)
	store := repository.NewSaleRepository(db)
	queue := service.NewReconcileQueue(rdb)

	svc := service.NewSaleService(inventoryClient, ledgerClient, store, queue,
		idGen, m, tracing.Tracer(), log)

	worker := service.NewReconcileWorker(store, ledgerClient, rdb, m, log)
	c := cron.New()
	if _, err := c.AddFunc(cfg.ReconcileCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := worker.Run(ctx); err != nil {
			log.WithError(err).Error("ledger reconcile run failed")
		}
	}); err != nil {
		log.WithError(err).Error("schedule reconcile worker")
		os.Exit(1)
	}
	c.Start()
	defer c.Stop()

	h := health.New()
	h.Register(&health.DBChecker{DB: db})
	h.Register(&redisChecker{rdb: rdb})
	h.SetReady(true)

	mux := http.NewServeMux()
	mux.Handle("/health", h.Handler())
	mux.Handle("/metrics", m.Handler())

	mux.HandleFunc("/v1/sales/complete", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req service.CompleteSaleRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			response.WriteErrorCode(w, r, commonerrors.CodeInvalidParam, "invalid request body")
			return
		}
		sale, err := svc.CompleteSale(r.Context(), &req)
		if err != nil {
			response.WriteError(w, r, commonerrors.AsError(err))
			return
		}
		response.WriteJSON(w, http.StatusOK, sale)
	})

	mux.HandleFunc("/v1/sales", func(w http.ResponseWriter, r *http.Request) {
		var sale *repository.Sale
		var err error
		if raw := r.URL.Query().Get("saleId"); raw != "" {
			saleID, _ := strconv.ParseInt(raw, 10, 64)
			sale, err = svc.GetSaleByID(r.Context(), saleID)
		} else {
			sale, err = svc.GetSale(r.Context(), r.URL.Query().Get("saleNumber"))
		}
		if err != nil {
			response.WriteError(w, r, commonerrors.AsError(err))
			return
		}
		response.WriteJSON(w, http.StatusOK, sale)
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: tracing.HTTPMiddleware(mux),
	}

	go func() {
		log.Infof("HTTP server listening", map[string]interface{}{"port": cfg.HTTPPort})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP server error")
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	h.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
	log.Info("shutdown complete")
}
