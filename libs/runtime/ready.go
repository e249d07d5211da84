package runtime

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// ReadyCheck is a named dependency check for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

// NewBaseMuxWithReady returns a mux with /healthz (liveness) and /readyz
// (all checks must pass) already registered.
func NewBaseMuxWithReady(checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /readyz", ReadyHandler(checks...))
	return mux
}

// ReadyHandler runs every check concurrently with a 2s budget each.
func ReadyHandler(checks ...ReadyCheck) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		failures := RunChecks(r.Context(), checks...)
		if len(failures) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(strings.Join(failures, "; ")))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

// RunChecks returns "name: error" for each failing check, sorted by name.
func RunChecks(ctx context.Context, checks ...ReadyCheck) []string {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		failures []string
	)
	for _, check := range checks {
		if check.Check == nil {
			continue
		}
		wg.Add(1)
		go func(check ReadyCheck) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := check.Check(checkCtx); err != nil {
				name := check.Name
				if name == "" {
					name = "dependency"
				}
				mu.Lock()
				failures = append(failures, name+": "+err.Error())
				mu.Unlock()
			}
		}(check)
	}
	wg.Wait()
	sort.Strings(failures)
	return failures
}
