// Package migration saves and restores the 3D state of the device and
// streams it between hosts.
//
// A snapshot is a little-endian byte stream:
//
//	header
//	per context: context record, shaders, constants, texture states, query
//	per surface: surface record, level records, level data
//
// Sections added after the first layout are gated on the version in the
// header, so old snapshots load into the current model.
package migration

import (
	"github.com/bobuhiro11/gosvga/render"
	"github.com/bobuhiro11/gosvga/surface"
)

// Magic starts every snapshot ("SVG3").
const Magic uint32 = 0x33475653

// Snapshot versions. Each one adds or changes a single section.
const (
	// VersionLegacy has the short render-state array, one level geometry
	// per surface and no texture or query sections.
	VersionLegacy uint32 = 1
	// VersionMipLevels records the geometry of every level.
	VersionMipLevels uint32 = 2
	// VersionTextureStates adds the texture-stage section.
	VersionTextureStates uint32 = 3
	// VersionContextLayout widens the render-state array.
	VersionContextLayout uint32 = 4
	// VersionOcclusionQuery adds the query section.
	VersionOcclusionQuery uint32 = 5

	CurrentVersion = VersionOcclusionQuery
)

// State is the set of registries a snapshot covers.
type State struct {
	Contexts *render.Registry
	Surfaces *surface.Registry
}
