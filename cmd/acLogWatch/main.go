package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"justapengu.in/acstats/internal/ingest"
	"justapengu.in/acstats/internal/store"
)

var configPath string

func init() {
	flag.StringVar(&configPath, "c", "./config.yml", "config path")
	flag.Parse()
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetLevel(logrus.DebugLevel)

	logger.Infof("Starting acLogWatch - Assetto Corsa lap time watcher")

	config, err := readConfig()

	if err != nil {
		logger.WithError(err).Fatalf("Could not read config at %s", configPath)
	}

	laptimeStore, err := store.Open(config.Watcher.Database, logger)

	if err != nil {
		logger.WithError(err).Fatal("Could not open lap time store")
	}

	defer laptimeStore.Close()

	registry := prometheus.NewRegistry()
	metrics := ingest.NewMetrics(registry)

	if config.Watcher.MetricsAddress != "" {
		go serveMetrics(config.Watcher.MetricsAddress, registry, logger)
	}

	logWatcher, err := ingest.NewWatcher(config.Watcher, laptimeStore, logger, metrics)

	if err != nil {
		logger.WithError(err).Fatal("Could not initialise log watcher")
	}

	ctx, cfn := context.WithCancel(context.Background())

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func() {
		<-c
		logger.Infof("Shutting down")
		cfn()
	}()

	if err := logWatcher.Run(ctx); err != nil {
		logger.WithError(err).Fatal("Log watcher stopped")
	}

	logger.Infof("Log watcher stopped. Exiting")
}

func serveMetrics(address string, registry *prometheus.Registry, logger logrus.FieldLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	logger.Infof("Serving ingestion metrics on %s/metrics", address)

	if err := http.ListenAndServe(address, mux); err != nil {
		logger.WithError(err).Errorf("Could not serve metrics on %s", address)
	}
}

type watcherConfig struct {
	Watcher ingest.Config `json:"watcher" yaml:"watcher"`
}

func readConfig() (*watcherConfig, error) {
	config := &watcherConfig{Watcher: ingest.DefaultConfig()}

	data, err := os.ReadFile(configPath)

	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}

	return config, nil
}
