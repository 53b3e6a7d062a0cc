package broker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-metrics"

	log "github.com/Geal/proust/logging"
	"github.com/Geal/proust/protocol"
	"github.com/Geal/proust/raft"
	"github.com/Geal/proust/types"
	"github.com/Geal/proust/utils"
)

const offsetsFileName = "__consumer_offsets.db"

var validTopicName = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,249}$`)

type partitionKey struct {
	topic string
	index int32
}

// Broker serves the Kafka requests of a single node
type Broker struct {
	Config   *types.Configuration
	Registry *raft.Registry
	Offsets  *OffsetStore

	mu         sync.RWMutex
	partitions map[partitionKey]*Partition

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens the metadata registry and the offset store under config.LogDir
func New(config *types.Configuration) (*Broker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := utils.EnsurePath(config.LogDir, true); err != nil {
		return nil, err
	}
	b := &Broker{Config: config, partitions: make(map[partitionKey]*Partition)}

	var err error
	if config.RaftEnabled {
		b.Registry, err = raft.Setup(config)
		if err != nil {
			return nil, fmt.Errorf("raft setup failed: %w", err)
		}
	} else {
		b.Registry = raft.NewLocalRegistry(config.NodeID)
		if err := b.loadTopics(); err != nil {
			return nil, err
		}
	}

	if b.Registry.IsController() {
		self := types.Node{NodeID: config.NodeID, Host: config.AdvertisedHost(), Port: config.BrokerPort}
		if err := b.Registry.RegisterNode(self); err != nil {
			b.Registry.Close()
			return nil, err
		}
	}

	b.Offsets, err = OpenOffsetStore(filepath.Join(config.LogDir, offsetsFileName))
	if err != nil {
		b.Registry.Close()
		return nil, err
	}
	return b, nil
}

// loadTopics registers the topics found on disk, partition directories are named topic-N
func (b *Broker) loadTopics() error {
	dirs, err := os.ReadDir(b.Config.LogDir)
	if err != nil {
		return err
	}
	counts := make(map[string]int32)
	for _, dir := range dirs {
		if !dir.IsDir() {
			continue
		}
		i := strings.LastIndexByte(dir.Name(), '-')
		if i <= 0 {
			continue
		}
		topic := dir.Name()[:i]
		index, err := strconv.Atoi(dir.Name()[i+1:])
		if err != nil || index < 0 || !validTopicName.MatchString(topic) {
			continue
		}
		counts[topic] = max(counts[topic], int32(index)+1)
	}
	for topic, n := range counts {
		if _, err := b.Registry.CreateTopic(topic, n, b.Config.NodeID); err != nil {
			return err
		}
	}
	if len(counts) > 0 {
		log.Info("loaded %d topics from %v", len(counts), b.Config.LogDir)
	}
	return nil
}

// Startup starts the periodic flush of partitions to disk
func (b *Broker) Startup(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	interval := time.Duration(b.Config.FlushIntervalMs) * time.Millisecond
	if interval <= 0 {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.Flush()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Flush syncs every open partition
func (b *Broker) Flush() {
	for _, p := range b.openPartitions() {
		if err := p.Sync(); err != nil {
			log.Error("flushing partition %v: %v", p, err)
		}
	}
}

func (b *Broker) openPartitions() []*Partition {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Partition, 0, len(b.partitions))
	for _, p := range b.partitions {
		out = append(out, p)
	}
	return out
}

// Shutdown stops the flusher and closes partitions, offsets and the registry
func (b *Broker) Shutdown() error {
	log.Info("Broker Shutdown...")
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()

	var errs []error
	b.mu.Lock()
	for key, p := range b.partitions {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %v: %w", p, err))
		}
		delete(b.partitions, key)
	}
	b.mu.Unlock()
	if err := b.Offsets.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := b.Registry.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ensureTopic returns the topic, creating it when auto creation is enabled
func (b *Broker) ensureTopic(name string) (types.Topic, protocol.Error) {
	if topic, ok := b.Registry.Topic(name); ok {
		return topic, protocol.ErrNone
	}
	if !b.Config.AutoCreateTopics {
		return types.Topic{}, protocol.ErrUnknownTopicOrPartition
	}
	if !validTopicName.MatchString(name) {
		return types.Topic{}, protocol.ErrInvalidTopic
	}
	if !b.Registry.IsController() {
		return types.Topic{}, protocol.ErrLeaderNotAvailable
	}
	topic, err := b.Registry.CreateTopic(name, b.Config.DefaultNumPartitions, b.Config.NodeID)
	if err != nil {
		log.Error("auto creating topic %v: %v", name, err)
		if errors.Is(err, raft.ErrNoLeader) {
			return types.Topic{}, protocol.ErrLeaderNotAvailable
		}
		return types.Topic{}, protocol.ErrUnknownServerError
	}
	return topic, protocol.ErrNone
}

// partition returns the open log of a partition known to the registry, opening it on first use
func (b *Broker) partition(topic string, index int32) (*Partition, protocol.Error) {
	key := partitionKey{topic, index}
	b.mu.RLock()
	p, ok := b.partitions[key]
	b.mu.RUnlock()
	if ok {
		return p, protocol.ErrNone
	}
	state, ok := b.Registry.Partition(topic, index)
	if !ok {
		return nil, protocol.ErrUnknownTopicOrPartition
	}
	if state.LeaderID != b.Config.NodeID {
		return nil, protocol.ErrNotLeaderForPartition
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.partitions[key]; ok {
		return p, protocol.ErrNone
	}
	p, err := OpenPartition(b.Config.LogDir, topic, index, b.Config.StorageIncrement, b.Config.FetchCacheSize)
	if err != nil {
		log.Error("%v", err)
		return nil, protocol.ErrUnknownServerError
	}
	p.MaxDecompressedSize = int(b.Config.MaxRequestSize)
	b.partitions[key] = p
	metrics.SetGauge([]string{"broker", "partitions"}, float32(len(b.partitions)))
	return p, protocol.ErrNone
}

// Dispatch decodes a request body, handles it and returns the encoded response
func (b *Broker) Dispatch(body []byte) ([]byte, error) {
	start := time.Now()
	req, err := protocol.DecodeRequest(body)
	if err != nil {
		metrics.IncrCounter([]string{"broker", "decode_errors"}, 1)
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	labels := []metrics.Label{{Name: "api", Value: protocol.APIName(req.APIKey)}}
	defer metrics.MeasureSinceWithLabels([]string{"broker", "request"}, start, labels)

	log.Debug("Received %v v%v | CorrelationID: %v | ClientID: %v", protocol.APIName(req.APIKey), req.APIVersion, req.CorrelationID, req.ClientID)
	res, err := b.Handle(req)
	if err != nil {
		metrics.IncrCounterWithLabels([]string{"broker", "errors"}, 1, labels)
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return protocol.EncodeResponse(res), nil
}
