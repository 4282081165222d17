package observability

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	PagesFetched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "xinfadi_pages_fetched_total",
			Help: "Listing pages fetched successfully",
		},
	)
	RecordsFetched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "xinfadi_records_fetched_total",
			Help: "Raw price records received from the listing API",
		},
	)
	PageFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "xinfadi_page_failures_total",
			Help: "Page requests that ended a crawl early",
		},
	)
	ChunksWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spreadsheet_chunks_written_total",
			Help: "Row chunks written to a remote spreadsheet",
		},
		[]string{"backend"},
	)
	Runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawl_runs_total",
			Help: "Crawl runs by outcome",
		},
		[]string{"result"},
	)
)

var registerOnce sync.Once

func register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(PagesFetched, RecordsFetched, PageFailures, ChunksWritten, Runs)
	})
}

// Start serves /metrics on port until ctx is cancelled.
func Start(ctx context.Context, port string) {
	register()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: ":" + port, Handler: mux}

	go func() {
		log.Info().Str("port", port).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
