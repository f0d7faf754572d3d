package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Hardfork names one of the protocol's successive activation points.
type Hardfork string

const (
	HFAspidochelone Hardfork = "Aspidochelone"
	HFBasilisk      Hardfork = "Basilisk"
	HFCockatrice    Hardfork = "Cockatrice"
	HFDomovoi       Hardfork = "Domovoi"
	HFEchidna       Hardfork = "Echidna"
)

// ProtocolSettings is the core's own in-scope configuration data: knobs
// read by the core but set by external configuration. Loadable from YAML
// the way neo-style nodes load protocol.yml.
type ProtocolSettings struct {
	ValidatorsCount             uint32 `yaml:"validators_count"`
	MillisecondsPerBlock        uint32 `yaml:"milliseconds_per_block"`
	MaxTransactionsPerBlock     uint32 `yaml:"max_transactions_per_block"`
	MaxBlockSize                uint32 `yaml:"max_block_size"`
	MaxBlockSysFee              int64  `yaml:"max_block_sysfee"`
	MaxTraceableBlocks          uint32 `yaml:"max_traceable_blocks"`
	MaxValidUntilBlockIncrement uint32 `yaml:"max_valid_until_block_increment"`
	AddressVersion              byte   `yaml:"address_version"`

	// HardforkActivationHeights maps a Hardfork name to the block index at
	// which it activates. A hardfork absent from the map is treated as
	// always-active at height 0 (matching neo-style nodes' "unset = from
	// genesis" convention).
	HardforkActivationHeights map[Hardfork]uint32 `yaml:"hardfork_activation_heights"`
}

// DefaultProtocolSettings returns a standalone single-validator
// configuration: one validator producing block 1 within a single block
// time, suitable for an end-to-end smoke test.
func DefaultProtocolSettings() *ProtocolSettings {
	return &ProtocolSettings{
		ValidatorsCount:             1,
		MillisecondsPerBlock:        15000,
		MaxTransactionsPerBlock:     512,
		MaxBlockSize:                2 * 1024 * 1024,
		MaxBlockSysFee:              900_000_000_00,
		MaxTraceableBlocks:          2_102_400,
		MaxValidUntilBlockIncrement: 5760,
		AddressVersion:              0x35,
		HardforkActivationHeights:   map[Hardfork]uint32{},
	}
}

// LoadProtocolSettings reads a ProtocolSettings from a YAML file at path.
func LoadProtocolSettings(path string) (*ProtocolSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	settings := DefaultProtocolSettings()
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// IsHardforkActive reports whether hf is active at height, per its
// configured activation height; a hardfork with no configured height is
// active from genesis.
func (p *ProtocolSettings) IsHardforkActive(hf Hardfork, height uint32) bool {
	activation, ok := p.HardforkActivationHeights[hf]
	if !ok {
		return true
	}
	return height >= activation
}

// EchidnaActive adapts IsHardforkActive to the
// `func(height uint32) bool` shape pkg/ledger.TraceabilitySettings expects.
func (p *ProtocolSettings) EchidnaActive(height uint32) bool {
	return p.IsHardforkActive(HFEchidna, height)
}
