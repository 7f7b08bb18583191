package controllers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	envHeader    = "X-Storefront-Env"
	probeTimeout = 2 * time.Second
)

type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady probes every dependency in parallel under one deadline and
// answers 503 naming each one that failed. Nil pingers are not probed.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		checks, failing := probe(r.Context(), deps)
		if len(failing) > 0 {
			err := pkgerrors.Wrap(pkgerrors.CodeDependency, failing[0].err, "dependencies unavailable")
			names := make([]string, len(failing))
			for i, f := range failing {
				names[i] = f.name
			}
			responses.WriteError(r.Context(), logg, w, err.WithDetails(map[string]any{"failing": names, "checks": checks}))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}

type probeFailure struct {
	name string
	err  error
}

func probe(ctx context.Context, deps map[string]Pinger) (map[string]string, []probeFailure) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		checks  = make(map[string]string, len(deps))
		failing []probeFailure
		g       errgroup.Group
	)
	for name, dep := range deps {
		if dep == nil {
			continue
		}
		g.Go(func() error {
			err := dep.Ping(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[name] = "unavailable"
				failing = append(failing, probeFailure{name: name, err: err})
				return nil
			}
			checks[name] = "ok"
			return nil
		})
	}
	_ = g.Wait()
	sort.Slice(failing, func(i, j int) bool { return failing[i].name < failing[j].name })
	return checks, failing
}
