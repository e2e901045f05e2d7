// Package rategate serializes all inbound work behind one global limiter.
package rategate

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/kleinsuche/kleinsuche/internal/telemetry"
)

// Gate admits at most one request per configured interval across all
// callers. There is no per-client bucketing: the scraped site sees one
// stream of traffic, so the whole service shares a single admission slot.
type Gate struct {
	limiter *rate.Limiter
}

// New returns a gate enforcing the given minimum spacing between
// admissions. A non-positive interval disables throttling.
func New(interval time.Duration) *Gate {
	if interval <= 0 {
		return &Gate{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Gate{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Admit blocks until the caller may proceed. Admission never fails; the
// only error path is the caller's context expiring while waiting.
func (g *Gate) Admit(ctx context.Context) error {
	start := time.Now()
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate gate wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		telemetry.ObserveRateGateDelay(waited)
	}
	return nil
}

// Middleware applies the gate before routing, so every endpoint competes
// for the same admission slot.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := g.Admit(r.Context()); err != nil {
			// Client went away while queued; nothing useful to write.
			return
		}
		next.ServeHTTP(w, r)
	})
}
