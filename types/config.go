package types

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"

	sockaddr "github.com/hashicorp/go-sockaddr"
)

// Configuration of a broker
type Configuration struct {
	LogDir     string
	BrokerHost string // advertised in Metadata and GroupCoordinator responses, discovered when empty
	BrokerPort int32
	NodeID     int32

	FlushIntervalMs  int
	StorageIncrement int64 // growth step of partition files
	MaxRequestSize   int32

	AutoCreateTopics     bool
	DefaultNumPartitions int32
	FetchCacheSize       int
	MaxRestarts          int

	RaftEnabled bool
	RaftAddress string
	RaftID      string
	Bootstrap   bool

	LogLevel string
}

// DefaultConfiguration returns the configuration used when no flag is set
func DefaultConfiguration() Configuration {
	return Configuration{
		LogDir:               filepath.Join("/tmp", "proust"),
		BrokerPort:           9092,
		FlushIntervalMs:      5000,
		StorageIncrement:     1 << 20,
		MaxRequestSize:       100 << 20,
		AutoCreateTopics:     true,
		DefaultNumPartitions: 1,
		FetchCacheSize:       1024,
		MaxRestarts:          5,
		RaftAddress:          "localhost:2221",
		Bootstrap:            true,
		LogLevel:             "INFO",
	}
}

// ListenAddress is the address the event loop binds
func (c *Configuration) ListenAddress() string {
	return net.JoinHostPort("", strconv.Itoa(int(c.BrokerPort)))
}

// AdvertisedHost returns BrokerHost, or the first private IP of this host when it is empty
func (c *Configuration) AdvertisedHost() string {
	if c.BrokerHost != "" {
		return c.BrokerHost
	}
	ip, err := sockaddr.GetPrivateIP()
	if err != nil || ip == "" {
		return "localhost"
	}
	return ip
}

// Validate checks the values that would make the broker misbehave
func (c *Configuration) Validate() error {
	switch {
	case c.LogDir == "":
		return fmt.Errorf("log dir is required")
	case c.BrokerPort < 0 || c.BrokerPort > 65535:
		return fmt.Errorf("invalid broker port %d", c.BrokerPort)
	case c.StorageIncrement <= 0:
		return fmt.Errorf("storage increment must be positive, got %d", c.StorageIncrement)
	case c.MaxRequestSize <= 0:
		return fmt.Errorf("max request size must be positive, got %d", c.MaxRequestSize)
	case c.DefaultNumPartitions <= 0:
		return fmt.Errorf("default partition count must be positive, got %d", c.DefaultNumPartitions)
	case c.FetchCacheSize <= 0:
		return fmt.Errorf("fetch cache size must be positive, got %d", c.FetchCacheSize)
	case c.MaxRestarts < 0:
		return fmt.Errorf("max restarts can't be negative")
	}
	if c.RaftID == "" {
		c.RaftID = fmt.Sprintf("raft-broker-%d", c.NodeID)
	}
	return nil
}
