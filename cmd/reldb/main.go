// reldb is a small embeddable relational store: a pager-backed B+Tree
// row store with a pull/push query executor.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nainya/reldb/internal/config"
	"github.com/nainya/reldb/internal/logger"
	"github.com/nainya/reldb/internal/metrics"
	"github.com/nainya/reldb/pkg/engine"
	"github.com/nainya/reldb/pkg/rowstore"
)

var (
	dbPath      = flag.String("db", "reldb.db", "Database file path")
	configPath  = flag.String("config", "", "Optional YAML config file path, overrides -db/-metrics")
	metricsAddr = flag.String("metrics", "", "Optional host:port to serve /metrics")
)

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
		cfg = loaded
	}
	if *configPath == "" {
		cfg.Path = *dbPath
		if *metricsAddr != "" {
			cfg.MetricsAddr = *metricsAddr
		}
	}

	logger.InitGlobalLogger(logger.Config{Level: cfg.LogLevel, Pretty: true})
	lg := logger.GetGlobalLogger()

	st, err := rowstore.Open(cfg.Path)
	if err != nil {
		log.Fatalf("opening database at %s: %v", cfg.Path, err)
	}
	defer st.Close()

	m := metrics.NewMetrics()
	st.SetMetrics(m)

	ex := engine.New(st)
	ex.SetMetrics(m)

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			lg.Info("serving metrics").Str("addr", cfg.MetricsAddr).Send()
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				lg.Error("metrics server").Err(err).Send()
			}
		}()
	}

	fmt.Printf("reldb open at %s (tables: %d)\n", cfg.Path, len(st.Schema().Tables))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	lg.Info("shutting down").Send()
}
