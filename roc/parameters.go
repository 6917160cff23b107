package roc

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// DefaultDmaPageSize is the DMA page size used by the cards' firmware.
const DefaultDmaPageSize = 8 * 1024

// Parameters holds the construction-time configuration of a DMA channel.
// It is to be populated directly or by a yaml unmarshal call; zero values
// select the documented defaults.
type Parameters struct {
	// GeneratorEnabled turns on the on-card data generator.  Channels
	// default to the generator being enabled; set GeneratorDisabled to
	// read out real front-end data.
	GeneratorDisabled bool `yaml:"GeneratorDisabled"`

	// GeneratorPattern selects the pattern the data generator produces,
	// a member of {incremental, alternating, constant}.  Empty selects
	// incremental.
	GeneratorPattern string `yaml:"GeneratorPattern"`

	// GeneratorDataSize is the length of data written to each DMA page by
	// the generator, in bytes.  Zero selects the DMA page size.
	GeneratorDataSize int `yaml:"GeneratorDataSize"`

	// GeneratorSeed seeds the generator for non-incremental patterns
	GeneratorSeed uint32 `yaml:"GeneratorSeed"`

	// LoopbackMode selects the data path loopback, a member of
	// {none, internal, ddg, diu, siu}.  Empty selects internal.
	LoopbackMode string `yaml:"LoopbackMode"`

	// LinkMask is the set of link IDs to activate.  Empty selects link 0
	// only.  Ignored by the single-link card.
	LinkMask []int `yaml:"LinkMask"`

	// DmaPageSize is the size of a single DMA page in bytes.  Zero selects
	// the firmware default of 8 KiB.
	DmaPageSize int `yaml:"DmaPageSize"`

	// InitialResetLevel is the reset applied when the channel is created,
	// a member of {nothing, internal, internal-diu, internal-diu-siu}.
	// Empty selects nothing.
	InitialResetLevel string `yaml:"InitialResetLevel"`

	// LinkQueueCapacity overrides the per-link transfer queue depth.
	// Zero selects the firmware FIFO depth.  Intended for emulation and
	// testing; the hardware depth is fixed.
	LinkQueueCapacity int `yaml:"LinkQueueCapacity"`

	// ReadyQueueCapacity overrides the ready queue depth.  Zero selects
	// the default.
	ReadyQueueCapacity int `yaml:"ReadyQueueCapacity"`
}

// LoadYaml converts a (path to a) yaml file into a Parameters struct
func LoadYaml(path string) (Parameters, error) {
	p := Parameters{}
	f, err := os.Open(path)
	if err != nil {
		return p, err
	}
	defer f.Close()

	err = yaml.NewDecoder(f).Decode(&p)
	return p, err
}

// PageSize returns the configured DMA page size, applying the default.
func (p Parameters) PageSize() int {
	if p.DmaPageSize == 0 {
		return DefaultDmaPageSize
	}
	return p.DmaPageSize
}

// Links returns the configured link mask, applying the default of {0},
// and rejecting IDs outside [0, maxLinks).
func (p Parameters) Links(maxLinks int) ([]int, error) {
	if len(p.LinkMask) == 0 {
		return []int{0}, nil
	}
	seen := make(map[int]bool, len(p.LinkMask))
	out := make([]int, 0, len(p.LinkMask))
	for _, id := range p.LinkMask {
		if id < 0 || id >= maxLinks {
			return nil, fmt.Errorf("%w: link ID %d outside supported range [0, %d)", ErrConfiguration, id, maxLinks)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: link ID %d appears twice in link mask", ErrConfiguration, id)
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}
