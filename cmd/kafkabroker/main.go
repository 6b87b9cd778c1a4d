package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arikaya/kafkabroker/internal/logging"
	"github.com/arikaya/kafkabroker/internal/metadata"
	"github.com/arikaya/kafkabroker/internal/metrics"
	"github.com/arikaya/kafkabroker/internal/partitionlog"
	"github.com/arikaya/kafkabroker/internal/protocol"
	"github.com/arikaya/kafkabroker/internal/server"
)

var (
	listenAddr  string
	metadataLog string
	metricsAddr string
	logLevel    string
	logDir      string
)

func main() {
	root := &cobra.Command{
		Use:   "kafkabroker",
		Short: "A Kafka wire-protocol broker core",
		RunE:  run,
	}

	root.Flags().StringVar(&listenAddr, "listen-addr", "0.0.0.0:9092", "address to accept client connections on")
	root.Flags().StringVar(&metadataLog, "metadata-log", "/tmp/kraft-combined-logs/__cluster_metadata-0/00000000000000000000.log", "path to the cluster metadata log")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on; empty disables it")
	root.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.Flags().StringVar(&logDir, "log-dir", "/tmp/kraft-combined-logs", "directory partition log mirrors are written under")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	log := logging.New(logLevel)

	mdStore := metadata.NewStore()
	if err := mdStore.Load(metadataLog); err != nil {
		log.Warn().Err(err).Str("path", metadataLog).Msg("metadata log not loaded; starting with an empty topic set")
	}

	logStore := partitionlog.NewStore(logDir)

	var recorder metrics.Recorder = metrics.NopRecorder()
	if metricsAddr != "" {
		reg := metrics.NewRegistry()
		recorder = reg
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", reg.Handler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		log.Info().Str("addr", metricsAddr).Msg("serving metrics")
	}

	dispatcher := protocol.NewDispatcher(mdStore, logStore, recorder)

	srv := server.New(server.Config{
		ListenAddr: listenAddr,
		Dispatcher: dispatcher,
		Logger:     log,
	})
	if err := srv.Start(); err != nil {
		log.Error().Err(err).Str("addr", listenAddr).Msg("failed to bind listener")
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutting down")
	srv.Stop()
	return nil
}
