// Package health serves the /healthz endpoint shared by the hookline
// binaries. Liveness hinges on the Postgres pool: a service that cannot
// reach its store must drop out of rotation before it accepts work it
// cannot record.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const pingTimeout = time.Second

// Report is the /healthz response body.
type Report struct {
	Healthy  bool   `json:"healthy"`
	Database string `json:"database,omitempty"`
}

// HTTPHandler pings the pool on each probe and answers 503 when the store
// is unreachable. A nil pool (stateless tools, tests) is always healthy.
func HTTPHandler(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep := Report{Healthy: true}
		code := http.StatusOK

		if pool != nil {
			rep.Database = "up"
			ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
			defer cancel()
			if err := pool.Ping(ctx); err != nil {
				rep.Healthy = false
				rep.Database = "unreachable"
				code = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(rep)
	}
}
