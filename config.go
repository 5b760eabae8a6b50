package rnet

import (
	"os"

	"gopkg.in/yaml.v2"
)

// HostConfig configures a Host. Zero values are replaced with ENet-derived
// defaults by NewHost, the way the original clamps MTU/window/bandwidth at
// connect time rather than requiring every field to be filled in.
type HostConfig struct {
	Address            string `yaml:"address"`
	PeerCount          int    `yaml:"peer_count"`
	ChannelLimit       int    `yaml:"channel_limit"`
	IncomingBandwidth  uint32 `yaml:"incoming_bandwidth"`
	OutgoingBandwidth  uint32 `yaml:"outgoing_bandwidth"`
	DuplicatePeers     int    `yaml:"duplicate_peers"`
	MaximumPacketSize  uint32 `yaml:"maximum_packet_size"`
	MaximumWaitingData uint32 `yaml:"maximum_waiting_data"`
	MTU                uint32 `yaml:"mtu"`
}

// LoadHostConfig reads a YAML-encoded HostConfig from path, following the
// LoadConfig/GetConfKey shape of HimbeerserverDE-multiserver/config.go.
func LoadHostConfig(path string) (*HostConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapf(err, "rnet: read host config %q", path)
	}

	cfg := &HostConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, wrapf(err, "rnet: parse host config %q", path)
	}
	applyHostConfigDefaults(cfg)
	return cfg, nil
}

func applyHostConfigDefaults(cfg *HostConfig) {
	if cfg.ChannelLimit == 0 {
		cfg.ChannelLimit = MaximumChannelCount
	}
	if cfg.MTU == 0 {
		cfg.MTU = DefaultMTU
	}
	if cfg.MaximumPacketSize == 0 {
		cfg.MaximumPacketSize = hostDefaultMaximumPacketSize
	}
	if cfg.MaximumWaitingData == 0 {
		cfg.MaximumWaitingData = hostDefaultMaximumWaitingData
	}
	if cfg.DuplicatePeers == 0 {
		cfg.DuplicatePeers = MaximumPeerID
	}
}
