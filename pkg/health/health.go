package health

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/retailcore/salesaga/pkg/response"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Checker probes one dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

type CheckResult struct {
	Status  Status        `json:"status"`
	Latency time.Duration `json:"latency"`
	Message string        `json:"message,omitempty"`
}

type Response struct {
	Status       Status                 `json:"status"`
	Dependencies map[string]CheckResult `json:"dependencies,omitempty"`
}

type Health struct {
	checkers []Checker
	ready    atomic.Bool
}

const defaultCheckTimeout = 2 * time.Second

func New() *Health {
	return &Health{}
}

func (h *Health) Register(c Checker) {
	if c == nil {
		return
	}
	h.checkers = append(h.checkers, c)
}

func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Live 存活检查（只检查进程是否响应）
func (h *Health) Live() Response {
	return Response{Status: StatusUp}
}

// Ready 就绪检查（检查所有依赖）
func (h *Health) Ready(ctx context.Context) Response {
	if !h.ready.Load() {
		return Response{Status: StatusDown}
	}
	deps := h.runChecks(ctx)
	return Response{
		Status:       summarize(deps),
		Dependencies: deps,
	}
}

// Handler serves /health with live and ready semantics by query param.
func (h *Health) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var resp Response
		if r.URL.Query().Get("probe") == "live" {
			resp = h.Live()
		} else {
			resp = h.Ready(r.Context())
		}
		status := http.StatusOK
		if resp.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		response.WriteJSON(w, status, resp)
	})
}

func (h *Health) runChecks(ctx context.Context) map[string]CheckResult {
	if len(h.checkers) == 0 {
		return nil
	}

	results := make(map[string]CheckResult, len(h.checkers))
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(len(h.checkers))

	for _, c := range h.checkers {
		c := c
		go func() {
			defer wg.Done()

			start := time.Now()
			depCtx, cancel := context.WithTimeout(ctx, defaultCheckTimeout)
			defer cancel()

			res := c.Check(depCtx)
			if res.Latency <= 0 {
				res.Latency = time.Since(start)
			}
			if res.Status == "" {
				res.Status = StatusDown
			}

			mu.Lock()
			results[c.Name()] = res
			mu.Unlock()
		}()
	}

	wg.Wait()
	return results
}

func summarize(deps map[string]CheckResult) Status {
	status := StatusUp
	for _, res := range deps {
		if res.Status == StatusDown {
			return StatusDown
		}
		if res.Status == StatusDegraded {
			status = StatusDegraded
		}
	}
	return status
}

// DBChecker pings a SQL database.
type DBChecker struct {
	DB        *sql.DB
	CheckName string
}

func (c *DBChecker) Name() string {
	if c.CheckName != "" {
		return c.CheckName
	}
	return "postgres"
}

func (c *DBChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	if err := c.DB.PingContext(ctx); err != nil {
		return CheckResult{Status: StatusDown, Latency: time.Since(start), Message: err.Error()}
	}
	return CheckResult{Status: StatusUp, Latency: time.Since(start)}
}
