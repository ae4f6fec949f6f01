package device

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/bobuhiro11/gosvga/memory"
	"github.com/bobuhiro11/gosvga/render"
	"github.com/bobuhiro11/gosvga/surface"
)

// Default id limits.
const (
	DefaultMaxContexts = 256
	DefaultMaxSurfaces = 32 * 1024
)

var errBadPageSize = errors.New("page size must be a power of two of at least 512 bytes")

// Config sizes the resources a Device accepts from the guest. Zero fields
// take their defaults.
type Config struct {
	PageSize        uint32
	MaxMOBSize      uint64
	MaxDescriptors  int
	MaxSurfaceBytes uint64
	MaxContexts     uint32
	MaxSurfaces     uint32
	MaxShaders      uint32
}

// DefaultConfig returns the configuration New falls back to.
func DefaultConfig() Config {
	return Config{
		PageSize:        memory.PageSize,
		MaxMOBSize:      memory.MaxGBOBytes,
		MaxDescriptors:  memory.DefaultMaxDescriptors,
		MaxSurfaceBytes: surface.DefaultMaxBytes,
		MaxContexts:     DefaultMaxContexts,
		MaxSurfaces:     DefaultMaxSurfaces,
		MaxShaders:      render.DefaultMaxShader,
	}
}

// withDefaults fills the zero fields of c and checks the result.
func (c Config) withDefaults() (Config, error) {
	d := DefaultConfig()

	if c.PageSize == 0 {
		c.PageSize = d.PageSize
	}

	if c.MaxMOBSize == 0 {
		c.MaxMOBSize = d.MaxMOBSize
	}

	if c.MaxDescriptors == 0 {
		c.MaxDescriptors = d.MaxDescriptors
	}

	if c.MaxSurfaceBytes == 0 {
		c.MaxSurfaceBytes = d.MaxSurfaceBytes
	}

	if c.MaxContexts == 0 {
		c.MaxContexts = d.MaxContexts
	}

	if c.MaxSurfaces == 0 {
		c.MaxSurfaces = d.MaxSurfaces
	}

	if c.MaxShaders == 0 {
		c.MaxShaders = d.MaxShaders
	}

	if c.PageSize < 512 || bits.OnesCount32(c.PageSize) != 1 {
		return c, fmt.Errorf("%w: %d", errBadPageSize, c.PageSize)
	}

	return c, nil
}

func (c Config) limits() memory.Limits {
	return memory.Limits{
		PageSize:       c.PageSize,
		MaxBytes:       c.MaxMOBSize,
		MaxDescriptors: c.MaxDescriptors,
	}
}
