package main

import (
	"flag"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"justapengu.in/acstats/internal/store"
	"justapengu.in/acstats/internal/web"
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

	logger.Infof("Starting acStatsWeb - Assetto Corsa lap time leaderboards")

	config, err := readConfig()

	if err != nil {
		logger.WithError(err).Fatalf("Could not read config at %s", configPath)
	}

	laptimeStore, err := store.Open(config.Web.Database, logger)

	if err != nil {
		logger.WithError(err).Fatal("Could not open lap time store")
	}

	defer laptimeStore.Close()

	handler, err := web.New(config.Web, laptimeStore, logger)

	if err != nil {
		logger.WithError(err).Fatal("Could not initialise web display")
	}

	logger.Infof("acStatsWeb listening on %s", config.Web.Address)

	if err := http.ListenAndServe(config.Web.Address, handler.Router()); err != nil {
		logger.WithError(err).Fatal("Could not start web server")
	}
}

type webConfig struct {
	Web web.Config `json:"web" yaml:"web"`
}

func readConfig() (*webConfig, error) {
	config := &webConfig{Web: web.DefaultConfig()}

	data, err := os.ReadFile(configPath)

	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}

	return config, nil
}
