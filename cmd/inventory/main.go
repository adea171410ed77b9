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

	commonerrors "github.com/retailcore/salesaga/pkg/errors"
	"github.com/retailcore/salesaga/pkg/health"
	"github.com/retailcore/salesaga/pkg/logger"
	"github.com/retailcore/salesaga/pkg/response"
	"github.com/retailcore/salesaga/pkg/tracing"

	"github.com/retailcore/salesaga/internal/inventory/config"
	"github.com/retailcore/salesaga/internal/inventory/repository"
	"github.com/retailcore/salesaga/internal/inventory/service"
)

// productView 对外的商品视图
type productView struct {
	ProductID     int64  `json:"productId"`
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	Price         string `json:"price"`
	StockQuantity int64  `json:"stockQuantity"`
	Status        int    `json:"status"`
}

func viewOf(p *repository.Product) *productView {
	return &productView{
		ProductID:     p.ProductID,
		SKU:           p.SKU,
		Name:          p.Name,
		Price:         p.Price,
		StockQuantity: p.StockQuantity,
		Status:        p.Status,
	}
}

func main() {
	cfg := config.Load()
	log := logger.New(cfg.ServiceName, os.Stdout)
	log.Info("starting inventory service")

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

	repo := repository.NewProductRepository(db)
	svc := service.NewStockService(repo, log)

	h := health.New()
	h.Register(&health.DBChecker{DB: db})
	h.SetReady(true)

	mux := http.NewServeMux()
	mux.Handle("/health", h.Handler())

	mux.HandleFunc("/v1/products", func(w http.ResponseWriter, r *http.Request) {
		var product *repository.Product
		var err error
		if sku := r.URL.Query().Get("sku"); sku != "" {
			product, err = svc.GetProductBySKU(r.Context(), sku)
		} else {
			productID, _ := strconv.ParseInt(r.URL.Query().Get("productId"), 10, 64)
			product, err = svc.GetProduct(r.Context(), productID)
		}
		if err != nil {
			response.WriteError(w, r, commonerrors.AsError(err))
			return
		}
		response.WriteJSON(w, http.StatusOK, viewOf(product))
	})

	mux.HandleFunc("/v1/availability", func(w http.ResponseWriter, r *http.Request) {
		productID, _ := strconv.ParseInt(r.URL.Query().Get("productId"), 10, 64)
		quantity, _ := strconv.ParseInt(r.URL.Query().Get("quantity"), 10, 64)
		avail, err := svc.CheckAvailability(r.Context(), productID, quantity)
		if err != nil {
			response.WriteError(w, r, commonerrors.AsError(err))
			return
		}
		response.WriteJSON(w, http.StatusOK, avail)
	})

	mux.HandleFunc("/internal/reserve", func(w http.ResponseWriter, r *http.Request) {
		handleMutation(w, r, svc.Reserve)
	})

	mux.HandleFunc("/internal/release", func(w http.ResponseWriter, r *http.Request) {
		handleMutation(w, r, svc.Release)
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

type mutationRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int64 `json:"quantity"`
}

func handleMutation(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64, int64) (*repository.Product, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req mutationRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		response.WriteErrorCode(w, r, commonerrors.CodeInvalidParam, "invalid request body")
		return
	}
	product, err := fn(r.Context(), req.ProductID, req.Quantity)
	if err != nil {
		response.WriteError(w, r, commonerrors.AsError(err))
		return
	}
	response.WriteJSON(w, http.StatusOK, viewOf(product))
}
