// Package backend declares the host rendering backend the device drives.
// The device owns guest-visible state; a backend owns host objects and is
// told about every change by id.
package backend

import (
	"github.com/bobuhiro11/gosvga/render"
	"github.com/bobuhiro11/gosvga/shader"
	"github.com/bobuhiro11/gosvga/surface"
	"github.com/bobuhiro11/gosvga/svga"
)

// Backend receives the host-side effect of device operations and of
// replaying a loaded snapshot.
type Backend interface {
	DefineContext(cid svga.ID) error
	DestroyContext(cid svga.ID) error

	DefineSurface(s *surface.Surface) error
	DestroySurface(sid svga.ID) error

	DefineShader(cid, shid svga.ID, kind shader.Kind, code []byte) error
	DestroyShader(cid, shid svga.ID, kind shader.Kind) error

	SetRenderTarget(cid svga.ID, typ render.RenderTargetType, img render.SurfaceImage) error
	SetRenderStates(cid svga.ID, states []render.RenderState) error
	SetTextureStates(cid svga.ID, states []render.TextureState) error
	SetClipPlane(cid svga.ID, index uint32, plane [4]float32) error
	SetLightData(cid svga.ID, index uint32, data render.LightData) error
	SetLightEnabled(cid svga.ID, index uint32, enabled bool) error
	SetTransform(cid svga.ID, typ uint32, m [16]float32) error
	SetMaterial(cid svga.ID, face uint32, m render.MaterialData) error
	SetScissorRect(cid svga.ID, r render.Rect) error
	SetZRange(cid svga.ID, z render.ZRange) error
	SetViewport(cid svga.ID, r render.Rect) error
	SetShader(cid svga.ID, kind shader.Kind, shid svga.ID) error
	SetShaderConst(cid svga.ID, kind shader.Kind, reg uint32, k render.Constant) error

	QueryBegin(cid svga.ID) error
	QueryEnd(cid svga.ID) error
	// QueryWait blocks until the issued query of cid has a result and
	// returns the sample count.
	QueryWait(cid svga.ID) (uint32, error)
}
