package db

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

// StoreHealth is one store's entry in the health report.
type StoreHealth struct {
	Status string     `json:"status"`
	Error  string     `json:"error,omitempty"`
	Pool   *PoolStats `json:"pool,omitempty"`
}

func poolStats(p Pool) *PoolStats {
	pool, ok := p.(*pgxpool.Pool)
	if !ok {
		return nil
	}
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// CheckStores pings every store concurrently and reports whether all are up.
func CheckStores(ctx context.Context, stores ...*Store) (map[string]StoreHealth, bool) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		report  = make(map[string]StoreHealth, len(stores))
		healthy = true
	)
	for _, s := range stores {
		wg.Add(1)
		go func(s *Store) {
			defer wg.Done()
			h := StoreHealth{Status: "healthy", Pool: poolStats(s.pool)}
			if err := s.Ping(ctx); err != nil {
				h.Status = "unhealthy"
				h.Error = err.Error()
			}
			mu.Lock()
			defer mu.Unlock()
			report[s.Name()] = h
			if h.Status != "healthy" {
				healthy = false
			}
		}(s)
	}
	wg.Wait()
	return report, healthy
}

// HealthHandler answers 200 when every store responds and 503 otherwise.
func HealthHandler(version string, stores ...*Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		report, ok := CheckStores(c.Request().Context(), stores...)
		status, code := "healthy", http.StatusOK
		if !ok {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		return c.JSON(code, map[string]interface{}{
			"status":  status,
			"version": version,
			"stores":  report,
		})
	}
}
