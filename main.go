//go:build linux

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/spf13/cobra"

	"github.com/Geal/proust/broker"
	log "github.com/Geal/proust/logging"
	"github.com/Geal/proust/network"
	"github.com/Geal/proust/supervisor"
	"github.com/Geal/proust/types"
)

var config = types.DefaultConfiguration()

var rootCmd = &cobra.Command{
	Use:          "proust",
	Short:        "A Kafka v0 compatible broker",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), &config)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&config.LogDir, "log-dir", config.LogDir, "directory holding partitions, offsets and raft state")
	f.StringVar(&config.BrokerHost, "broker-host", config.BrokerHost, "host advertised to clients, a private IP is picked when empty")
	f.Int32Var(&config.BrokerPort, "broker-port", config.BrokerPort, "port the broker listens on")
	f.Int32Var(&config.NodeID, "node-id", config.NodeID, "id of this broker")
	f.IntVar(&config.FlushIntervalMs, "flush-interval-ms", config.FlushIntervalMs, "interval between partition flushes, 0 disables them")
	f.Int64Var(&config.StorageIncrement, "storage-increment", config.StorageIncrement, "growth step of partition files in bytes")
	f.Int32Var(&config.MaxRequestSize, "max-request-size", config.MaxRequestSize, "largest request frame accepted in bytes")
	f.BoolVar(&config.AutoCreateTopics, "auto-create-topics", config.AutoCreateTopics, "create unknown topics on Metadata and Produce requests")
	f.Int32Var(&config.DefaultNumPartitions, "num-partitions", config.DefaultNumPartitions, "partition count of auto created topics")
	f.IntVar(&config.FetchCacheSize, "fetch-cache-size", config.FetchCacheSize, "decoded messages cached per partition")
	f.IntVar(&config.MaxRestarts, "max-restarts", config.MaxRestarts, "restarts of the event loop before giving up")
	f.BoolVar(&config.RaftEnabled, "raft", config.RaftEnabled, "replicate topic metadata with raft")
	f.StringVar(&config.RaftAddress, "raft-address", config.RaftAddress, "raft transport address")
	f.StringVar(&config.RaftID, "raft-id", config.RaftID, "raft server id, derived from the node id when empty")
	f.BoolVar(&config.Bootstrap, "bootstrap", config.Bootstrap, "bootstrap a new raft cluster")
	f.StringVar(&config.LogLevel, "log-level", config.LogLevel, "TRACE, DEBUG, INFO, WARN or ERROR")
}

func setupMetrics() error {
	sink := metrics.NewInmemSink(10*time.Second, time.Minute)
	// dumps the metrics to stderr on SIGUSR1
	metrics.DefaultInmemSignal(sink)
	cfg := metrics.DefaultConfig("proust")
	cfg.EnableHostname = false
	_, err := metrics.NewGlobal(cfg, sink)
	return err
}

func run(ctx context.Context, config *types.Configuration) error {
	log.SetLogLevel(config.LogLevel)
	if err := setupMetrics(); err != nil {
		return err
	}

	b, err := broker.New(config)
	if err != nil {
		return err
	}
	b.Startup(ctx)

	sup := supervisor.Supervisor{Name: "event loop", MaxRestarts: config.MaxRestarts, Backoff: 100 * time.Millisecond}
	err = sup.Run(ctx, func(ctx context.Context) error {
		server, err := network.NewServer(network.Config{Address: config.ListenAddress(), MaxFrameSize: config.MaxRequestSize}, b)
		if err != nil {
			return err
		}
		defer server.Close()
		log.Info("Server is listening on %v...", server.Addr())
		return server.Run(ctx)
	})

	if shutdownErr := b.Shutdown(); shutdownErr != nil {
		log.Error("broker shutdown: %v", shutdownErr)
	}
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
