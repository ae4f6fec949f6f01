// Package render holds the rendering contexts of the device: fixed-function
// and programmable pipeline state, the shader programs defined in each
// context, and the per-context occlusion query.
//
// Contexts refer to surfaces and shaders by id only. A referenced object may
// be destroyed at any time; users check liveness when they follow an id.
package render

import (
	"fmt"

	"github.com/bobuhiro11/gosvga/svga"
)

// Slot counts of a context.
const (
	RenderStateMax   = 99
	TextureStageMax  = 8
	TextureStateMax  = 30
	TransformMax     = 14
	FaceMax          = 5
	MaxClipPlanes    = 32
	MaxLights        = 32
	RenderTargetMax  = 10
	MaxShaderConsts  = 256
	DefaultMaxShader = 8192
)

// UpdateFlags records which aggregates of a context have been set. The
// flag-gated aggregates are only replayed into a backend when their bit is
// set.
type UpdateFlags uint32

const (
	UpdateScissor UpdateFlags = 1 << iota
	UpdateZRange
	UpdateViewport
	UpdateVertexShader
	UpdatePixelShader
	UpdateTransform
	UpdateMaterial
	UpdateRenderState
	UpdateTextureState
	UpdateClipPlane
	UpdateLight
	UpdateRenderTarget
	UpdateShaderConst
)

// RenderStateName indexes the render-state slots.
type RenderStateName uint32

const (
	RSZEnable RenderStateName = iota
	RSZWriteEnable
	RSAlphaTestEnable
	RSDitherEnable
	RSBlendEnable
	RSFogEnable
	RSSpecularEnable
	RSStencilEnable
	RSLightingEnable
	RSNormalizeNormals
	RSPointSpriteEnable
	RSPointScaleEnable
	RSStencilRef
	RSStencilMask
	RSStencilWriteMask
	RSFogStart
	RSFogEnd
	RSFogDensity
	RSPointSize
	RSPointSizeMin
	RSPointSizeMax
	RSPointScaleA
	RSPointScaleB
	RSPointScaleC
	RSFogColor
	RSAmbient
	RSClipPlaneEnable
	RSFogMode
	RSFillMode
	RSShadeMode
	RSLinePattern
	RSSrcBlend
	RSDstBlend
	RSBlendEquation
	RSCullMode
	RSZFunc
	RSAlphaFunc
	RSStencilFunc
)

// RenderState is one render-state slot. Name is RSUnset while the slot has
// never been set.
type RenderState struct {
	Name  RenderStateName
	Value uint32
}

// RSUnset marks an unset render-state or texture-state slot.
const RSUnset = RenderStateName(svga.InvalidID)

// IsSet reports whether the slot holds a value.
func (r RenderState) IsSet() bool {
	return r.Name != RSUnset
}

// TextureStateName indexes the texture-state slots of a stage.
type TextureStateName uint32

const (
	TSBindTexture TextureStateName = iota
	TSColorOp
	TSColorArg1
	TSColorArg2
	TSAlphaOp
	TSAlphaArg1
	TSAlphaArg2
	TSAddressU
	TSAddressV
	TSMipFilter
	TSMagFilter
	TSMinFilter
)

// TSUnset marks an unset texture-state slot.
const TSUnset = TextureStateName(svga.InvalidID)

// TextureState is one texture-state slot of a stage.
type TextureState struct {
	Stage uint32
	Name  TextureStateName
	Value uint32
}

// IsSet reports whether the slot holds a value.
func (t TextureState) IsSet() bool {
	return t.Name != TSUnset
}

// Transform is a 4x4 matrix slot.
type Transform struct {
	Valid  bool
	Matrix [16]float32
}

// MaterialData is the fixed-function material of one face.
type MaterialData struct {
	Diffuse   [4]float32
	Ambient   [4]float32
	Specular  [4]float32
	Emissive  [4]float32
	Shininess float32
}

// Material is a per-face material slot.
type Material struct {
	Valid bool
	Data  MaterialData
}

// ClipPlane is a user clip plane slot.
type ClipPlane struct {
	Valid bool
	Plane [4]float32
}

// LightType is the kind of a fixed-function light.
type LightType uint32

const (
	LightInvalid LightType = iota
	LightPoint
	LightSpot1
	LightSpot2
	LightDirectional
)

// LightData is the 29-word description of a fixed-function light.
type LightData struct {
	Type         LightType
	InWorldSpace uint32
	Diffuse      [4]float32
	Specular     [4]float32
	Ambient      [4]float32
	Position     [4]float32
	Direction    [4]float32
	Range        float32
	Falloff      float32
	Attenuation0 float32
	Attenuation1 float32
	Attenuation2 float32
	Theta        float32
	Phi          float32
}

// Light is a light slot. Enabled and Valid are tracked separately: a light
// can be enabled before its data is set.
type Light struct {
	Enabled bool
	Valid   bool
	Data    LightData
}

// RenderTargetType indexes the render-target slots.
type RenderTargetType uint32

const (
	RTDepth RenderTargetType = iota
	RTStencil
	RTColor0
	RTColor1
	RTColor2
	RTColor3
	RTColor4
	RTColor5
	RTColor6
	RTColor7
)

func (t RenderTargetType) String() string {
	switch t {
	case RTDepth:
		return "depth"
	case RTStencil:
		return "stencil"
	default:
		return fmt.Sprintf("color%d", uint32(t-RTColor0))
	}
}

// SurfaceImage names one face/mip of a surface.
type SurfaceImage struct {
	SID    svga.ID
	Face   uint32
	Mipmap uint32
}

// NoImage is an empty render-target slot.
var NoImage = SurfaceImage{SID: svga.InvalidID}

// Rect is a scissor or viewport rectangle.
type Rect struct {
	X, Y, W, H uint32
}

// ZRange is the depth range.
type ZRange struct {
	Min, Max float32
}
