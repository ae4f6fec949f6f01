package flag

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bobuhiro11/gosvga/device"
)

// ParseSize parses a size string as number[gGmMkK]. The multiplier is optional,
// and if not set, the unit passed in is used. The number can be any base and
// size.
func ParseSize(s, unit string) (int, error) {
	sz := strings.TrimRight(s, "gGmMkK")
	if len(sz) == 0 {
		return -1, fmt.Errorf("%q:can't parse as num[gGmMkK]:%w", s, strconv.ErrSyntax)
	}

	amt, err := strconv.ParseUint(sz, 0, 0)
	if err != nil {
		return -1, err
	}

	if len(s) > len(sz) {
		unit = s[len(sz):]
	}

	switch unit {
	case "G", "g":
		return int(amt) << 30, nil
	case "M", "m":
		return int(amt) << 20, nil
	case "K", "k":
		return int(amt) << 10, nil
	case "":
		return int(amt), nil
	}

	return -1, fmt.Errorf("can not parse %q as num[gGmMkK]:%w", s, strconv.ErrSyntax)
}

// ParseLevel parses a log level name such as "debug" or "warn".
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level

	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("log level %q: %w", s, err)
	}

	return l, nil
}

// Limits are the device resource limits settable on the command line.
type Limits struct {
	PageSize        string `name:"page-size" default:"4k" help:"guest page size as number[kK]"`
	MaxMOBSize      string `name:"max-mob-size" default:"128M" help:"largest guest memory object as number[gGmMkK]"`
	MaxDescriptors  int    `name:"max-descriptors" default:"65536" help:"most descriptors per memory object"`
	MaxSurfaceBytes string `name:"max-surface-mem" default:"256M" help:"surface storage budget as number[gGmMkK]"`
	MaxContexts     uint32 `name:"max-contexts" default:"256" help:"exclusive upper bound of context ids"`
	MaxSurfaces     uint32 `name:"max-surfaces" default:"32768" help:"exclusive upper bound of surface ids"`
	MaxShaders      uint32 `name:"max-shaders" default:"8192" help:"exclusive upper bound of shader ids per context"`
}

// Config turns l into a device configuration.
func (l *Limits) Config() (device.Config, error) {
	pageSize, err := ParseSize(l.PageSize, "")
	if err != nil {
		return device.Config{}, err
	}

	mobSize, err := ParseSize(l.MaxMOBSize, "m")
	if err != nil {
		return device.Config{}, err
	}

	surfaceBytes, err := ParseSize(l.MaxSurfaceBytes, "m")
	if err != nil {
		return device.Config{}, err
	}

	return device.Config{
		PageSize:        uint32(pageSize),
		MaxMOBSize:      uint64(mobSize),
		MaxDescriptors:  l.MaxDescriptors,
		MaxSurfaceBytes: uint64(surfaceBytes),
		MaxContexts:     l.MaxContexts,
		MaxSurfaces:     l.MaxSurfaces,
		MaxShaders:      l.MaxShaders,
	}, nil
}
