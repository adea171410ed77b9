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
	"syscall"
	"time"

	_ "github.com/lib/pq"

	commonerrors "github.com/retailcore/salesaga/pkg/errors"
	"github.com/retailcore/salesaga/pkg/health"
	"github.com/retailcore/salesaga/pkg/logger"
	"github.com/retailcore/salesaga/pkg/response"
	"github.com/retailcore/salesaga/pkg/snowflake"
	"github.com/retailcore/salesaga/pkg/tracing"

	"github.com/retailcore/salesaga/internal/ledger/config"
	"github.com/retailcore/salesaga/internal/ledger/repository"
	"github.com/retailcore/salesaga/internal/ledger/service"
)

type registerRequest struct {
	ReferenceType string               `json:"referenceType"`
	ReferenceID   string               `json:"referenceId"`
	Entries       []service.EntryInput `json:"entries"`
}

type deleteRequest struct {
	ReferenceType string `json:"referenceType"`
	ReferenceID   string `json:"referenceId"`
}

func main() {
	cfg := config.Load()
	log := logger.New(cfg.ServiceName, os.Stdout)
	log.Info("starting ledger service")

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

	idGen, err := snowflake.New(cfg.WorkerID)
	if err != nil {
		log.WithError(err).Error("init id generator")
		os.Exit(1)
	}

	repo := repository.NewJournalRepository(db)
	svc := service.NewJournalService(repo, idGen, log)

	h := health.New()
	h.Register(&health.DBChecker{DB: db})
	h.SetReady(true)

	mux := http.NewServeMux()
	mux.Handle("/health", h.Handler())

	mux.HandleFunc("/internal/journal", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req registerRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			response.WriteErrorCode(w, r, commonerrors.CodeInvalidParam, "invalid request body")
			return
		}
		entries, err := svc.RegisterBatch(r.Context(), req.ReferenceType, req.ReferenceID, req.Entries)
		if err != nil {
			response.WriteError(w, r, commonerrors.AsError(err))
			return
		}
		ids := make([]int64, len(entries))
		for i, e := range entries {
			ids[i] = e.JournalID
		}
		response.WriteJSON(w, http.StatusOK, map[string]interface{}{"journalIds": ids})
	})

	mux.HandleFunc("/internal/journal/delete", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req deleteRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			response.WriteErrorCode(w, r, commonerrors.CodeInvalidParam, "invalid request body")
			return
		}
		deleted, err := svc.DeleteByReference(r.Context(), req.ReferenceType, req.ReferenceID)
		if err != nil {
			response.WriteError(w, r, commonerrors.AsError(err))
			return
		}
		response.WriteJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
	})

	mux.HandleFunc("/v1/journal", func(w http.ResponseWriter, r *http.Request) {
		entries, err := svc.GetByReference(r.Context(),
			r.URL.Query().Get("referenceType"), r.URL.Query().Get("referenceId"))
		if err != nil {
			response.WriteError(w, r, commonerrors.AsError(err))
			return
		}
		response.WriteJSON(w, http.StatusOK, entries)
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
