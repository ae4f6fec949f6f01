// Package device is the 3D resource and state engine of a virtual SVGA
// adapter. The command decoder calls one Device method per guest command;
// the Device validates it, updates its registries and forwards the effect
// to the rendering backend.
package device

import (
	"fmt"
	"io"

	"github.com/bobuhiro11/gosvga/backend"
	"github.com/bobuhiro11/gosvga/memory"
	"github.com/bobuhiro11/gosvga/migration"
	"github.com/bobuhiro11/gosvga/render"
	"github.com/bobuhiro11/gosvga/shader"
	"github.com/bobuhiro11/gosvga/surface"
	"github.com/bobuhiro11/gosvga/svga"
)

// Device owns the guest-visible 3D state of one adapter.
type Device struct {
	Config

	mobs     *memory.Registry
	contexts *render.Registry
	surfaces *surface.Registry
	be       backend.Backend
}

// New returns a device reading guest memory through guest and driving be.
func New(c Config, guest memory.Guest, be backend.Backend) (*Device, error) {
	c, err := c.withDefaults()
	if err != nil {
		return nil, err
	}

	return &Device{
		Config:   c,
		mobs:     memory.NewRegistry(guest, c.limits()),
		contexts: render.NewRegistry(c.MaxContexts, c.MaxShaders),
		surfaces: surface.NewRegistry(c.MaxSurfaces, c.MaxSurfaceBytes),
		be:       be,
	}, nil
}

// MOBs returns the guest memory objects of the device.
func (d *Device) MOBs() *memory.Registry { return d.mobs }

// Contexts returns the rendering contexts of the device.
func (d *Device) Contexts() *render.Registry { return d.contexts }

// Surfaces returns the surfaces of the device.
func (d *Device) Surfaces() *surface.Registry { return d.surfaces }

// Backend returns the backend the device drives.
func (d *Device) Backend() backend.Backend { return d.be }

// State returns the registries a snapshot covers.
func (d *Device) State() migration.State {
	return migration.State{Contexts: d.contexts, Surfaces: d.surfaces}
}

// Reset destroys every context, surface and MOB.
func (d *Device) Reset() error {
	if err := d.teardown(); err != nil {
		return err
	}

	d.mobs.Reset()
	svga.Logger().Info("device reset")

	return nil
}

// teardown destroys the contexts and surfaces in the backend and empties
// their registries.
func (d *Device) teardown() error {
	for _, cid := range d.contexts.IDs() {
		if err := d.be.DestroyContext(cid); err != nil {
			return fmt.Errorf("reset context %v: %w", cid, err)
		}
	}

	for _, sid := range d.surfaces.IDs() {
		if err := d.be.DestroySurface(sid); err != nil {
			return fmt.Errorf("reset surface %v: %w", sid, err)
		}
	}

	d.contexts.Reset()
	d.surfaces.Reset()

	return nil
}

// Save writes the 3D state in the current snapshot layout.
func (d *Device) Save(w io.Writer) error {
	return migration.Save(w, d.State(), d.be)
}

// SaveVersion writes the 3D state in the layout of version.
func (d *Device) SaveVersion(w io.Writer, version uint32) error {
	return migration.SaveVersion(w, d.State(), d.be, version)
}

// Load replaces the 3D state with the snapshot read from r and replays it
// into the backend. A snapshot that does not load leaves the device as it
// was.
func (d *Device) Load(r io.Reader) (uint32, error) {
	next := migration.State{
		Contexts: render.NewRegistry(d.MaxContexts, d.MaxShaders),
		Surfaces: surface.NewRegistry(d.MaxSurfaces, d.MaxSurfaceBytes),
	}

	version, err := migration.Load(r, next)
	if err != nil {
		return 0, err
	}

	if err := d.teardown(); err != nil {
		return 0, err
	}

	d.contexts = next.Contexts
	d.surfaces = next.Surfaces

	if err := migration.Replay(d.be, next); err != nil {
		return 0, err
	}

	return version, nil
}

// DefineMOB creates MOB id over descs.
func (d *Device) DefineMOB(id svga.ID, descs []memory.Descriptor) error {
	_, err := d.mobs.Define(id, descs)

	return err
}

// DefineMOBPageTable creates MOB id from a guest page table.
func (d *Device) DefineMOBPageTable(id svga.ID, format memory.Format, base uint64, size uint32) error {
	_, err := d.mobs.DefinePageTable(id, format, base, size)

	return err
}

// DestroyMOB removes MOB id.
func (d *Device) DestroyMOB(id svga.ID) error {
	return d.mobs.Destroy(id)
}

// CopyMOB copies n bytes from offset srcOff of MOB src to offset dstOff of
// MOB dst.
func (d *Device) CopyMOB(dst svga.ID, dstOff uint64, src svga.ID, srcOff, n uint64) error {
	sm, err := d.mobs.Lookup(src)
	if err != nil {
		return err
	}

	dm, err := d.mobs.Lookup(dst)
	if err != nil {
		return err
	}

	return d.mobs.Copy(dm, dstOff, sm, srcOff, n)
}

// DefineSurface creates surface id and its host texture.
func (d *Device) DefineSurface(id svga.ID, p surface.Params) error {
	s, err := d.surfaces.Define(id, p)
	if err != nil {
		return err
	}

	if err := d.be.DefineSurface(s); err != nil {
		_ = d.surfaces.Destroy(id)

		return fmt.Errorf("define surface %v: %w", id, err)
	}

	return nil
}

// DestroySurface removes surface id. Contexts still referring to it are
// left alone.
func (d *Device) DestroySurface(id svga.ID) error {
	if err := d.surfaces.Destroy(id); err != nil {
		return err
	}

	if err := d.be.DestroySurface(id); err != nil {
		return fmt.Errorf("destroy surface %v: %w", id, err)
	}

	return nil
}

// UploadSurface copies a level of surface sid from MOB mid.
func (d *Device) UploadSurface(sid svga.ID, face, level uint32, mid svga.ID, off uint64, pitch uint32) error {
	m, err := d.mobs.Lookup(mid)
	if err != nil {
		return err
	}

	return d.surfaces.UploadFromMOB(d.mobs, m, off, pitch, sid, face, level)
}

// ReadbackSurface copies a level of surface sid into MOB mid.
func (d *Device) ReadbackSurface(sid svga.ID, face, level uint32, mid svga.ID, off uint64, pitch uint32) error {
	m, err := d.mobs.Lookup(mid)
	if err != nil {
		return err
	}

	return d.surfaces.ReadbackToMOB(d.mobs, m, off, pitch, sid, face, level)
}

// DefineContext creates context cid.
func (d *Device) DefineContext(cid svga.ID) error {
	if _, err := d.contexts.Define(cid); err != nil {
		return err
	}

	if err := d.be.DefineContext(cid); err != nil {
		_ = d.contexts.Destroy(cid)

		return fmt.Errorf("define context %v: %w", cid, err)
	}

	return nil
}

// DestroyContext removes context cid and its shaders.
func (d *Device) DestroyContext(cid svga.ID) error {
	if err := d.contexts.Destroy(cid); err != nil {
		return err
	}

	if err := d.be.DestroyContext(cid); err != nil {
		return fmt.Errorf("destroy context %v: %w", cid, err)
	}

	return nil
}

// update applies set to context cid and then push to the backend. The
// context is put back if the backend fails.
func (d *Device) update(cid svga.ID, set func(*render.Context) error, push func() error) error {
	c, err := d.contexts.Get(cid)
	if err != nil {
		return err
	}

	cp := c.Checkpoint()

	if err := set(c); err != nil {
		return fmt.Errorf("context %v: %w", cid, err)
	}

	if err := push(); err != nil {
		c.Rollback(cp)

		return fmt.Errorf("context %v: backend: %w", cid, err)
	}

	return nil
}

// SetRenderStates applies states to context cid in order.
func (d *Device) SetRenderStates(cid svga.ID, states []render.RenderState) error {
	return d.update(cid,
		func(c *render.Context) error { return c.SetRenderStates(states) },
		func() error { return d.be.SetRenderStates(cid, states) })
}

// SetTextureStates applies states to context cid in order.
func (d *Device) SetTextureStates(cid svga.ID, states []render.TextureState) error {
	return d.update(cid,
		func(c *render.Context) error { return c.SetTextureStates(states) },
		func() error { return d.be.SetTextureStates(cid, states) })
}

// SetTransform stores matrix m in transform slot typ of context cid.
func (d *Device) SetTransform(cid svga.ID, typ uint32, m [16]float32) error {
	return d.update(cid,
		func(c *render.Context) error { return c.SetTransform(typ, m) },
		func() error { return d.be.SetTransform(cid, typ, m) })
}

// SetMaterial stores the material of face in context cid.
func (d *Device) SetMaterial(cid svga.ID, face uint32, m render.MaterialData) error {
	return d.update(cid,
		func(c *render.Context) error { return c.SetMaterial(face, m) },
		func() error { return d.be.SetMaterial(cid, face, m) })
}

// SetClipPlane stores user clip plane index of context cid.
func (d *Device) SetClipPlane(cid svga.ID, index uint32, plane [4]float32) error {
	return d.update(cid,
		func(c *render.Context) error { return c.SetClipPlane(index, plane) },
		func() error { return d.be.SetClipPlane(cid, index, plane) })
}

// SetLightData stores light index of context cid.
func (d *Device) SetLightData(cid svga.ID, index uint32, data render.LightData) error {
	return d.update(cid,
		func(c *render.Context) error { return c.SetLightData(index, data) },
		func() error { return d.be.SetLightData(cid, index, data) })
}

// SetLightEnabled switches light index of context cid.
func (d *Device) SetLightEnabled(cid svga.ID, index uint32, enabled bool) error {
	return d.update(cid,
		func(c *render.Context) error { return c.SetLightEnabled(index, enabled) },
		func() error { return d.be.SetLightEnabled(cid, index, enabled) })
}

// SetRenderTarget binds img to slot typ of context cid. The surface must
// exist and have the named face and mip level.
func (d *Device) SetRenderTarget(cid svga.ID, typ render.RenderTargetType, img render.SurfaceImage) error {
	var s *surface.Surface

	if img.SID.Valid() {
		var err error
		if s, err = d.surfaces.Get(img.SID); err != nil {
			return fmt.Errorf("render target %v: %w", typ, err)
		}

		if _, err := s.Index(img.Face, img.Mipmap); err != nil {
			return fmt.Errorf("render target %v: %w", typ, err)
		}
	}

	err := d.update(cid,
		func(c *render.Context) error { return c.SetRenderTarget(typ, img) },
		func() error { return d.be.SetRenderTarget(cid, typ, img) })
	if err != nil {
		return err
	}

	if s != nil {
		s.Context = cid
	}

	return nil
}

// SetScissor stores the scissor rectangle of context cid.
func (d *Device) SetScissor(cid svga.ID, r render.Rect) error {
	return d.update(cid,
		func(c *render.Context) error { c.SetScissor(r); return nil },
		func() error { return d.be.SetScissorRect(cid, r) })
}

// SetViewport stores the viewport of context cid.
func (d *Device) SetViewport(cid svga.ID, r render.Rect) error {
	return d.update(cid,
		func(c *render.Context) error { c.SetViewport(r); return nil },
		func() error { return d.be.SetViewport(cid, r) })
}

// SetZRange stores the depth range of context cid.
func (d *Device) SetZRange(cid svga.ID, z render.ZRange) error {
	return d.update(cid,
		func(c *render.Context) error { c.SetZRange(z); return nil },
		func() error { return d.be.SetZRange(cid, z) })
}

// DefineShader validates code and stores it as shader shid of context cid.
// The shader is stored only once the backend has accepted it.
func (d *Device) DefineShader(cid, shid svga.ID, kind shader.Kind, code []byte) error {
	c, err := d.contexts.Get(cid)
	if err != nil {
		return err
	}

	p, err := c.PrepareShader(shid, kind, code)
	if err != nil {
		return fmt.Errorf("context %v: %w", cid, err)
	}

	if err := d.be.DefineShader(cid, shid, kind, p.Code); err != nil {
		return fmt.Errorf("context %v: backend: %w", cid, err)
	}

	if err := c.StoreShader(p); err != nil {
		return fmt.Errorf("context %v: %w", cid, err)
	}

	return nil
}

// DestroyShader removes shader shid of context cid.
func (d *Device) DestroyShader(cid, shid svga.ID, kind shader.Kind) error {
	c, err := d.contexts.Get(cid)
	if err != nil {
		return err
	}

	if _, err := c.Shader(shid, kind); err != nil {
		return fmt.Errorf("context %v: destroy: %w", cid, err)
	}

	if err := d.be.DestroyShader(cid, shid, kind); err != nil {
		return fmt.Errorf("context %v: backend: %w", cid, err)
	}

	return c.DestroyShader(shid, kind)
}

// SetShader binds shader shid of kind in context cid. InvalidID unbinds.
func (d *Device) SetShader(cid svga.ID, kind shader.Kind, shid svga.ID) error {
	return d.update(cid,
		func(c *render.Context) error { return c.BindShader(kind, shid) },
		func() error { return d.be.SetShader(cid, kind, shid) })
}

// SetShaderConst stores one constant register of context cid.
func (d *Device) SetShaderConst(cid svga.ID, kind shader.Kind, reg uint32, typ render.ConstType, value [4]uint32) error {
	return d.update(cid,
		func(c *render.Context) error { return c.SetShaderConst(kind, reg, typ, value) },
		func() error {
			return d.be.SetShaderConst(cid, kind, reg, render.Constant{Valid: true, Type: typ, Value: value})
		})
}

// BeginQuery starts the occlusion query of context cid.
func (d *Device) BeginQuery(cid svga.ID) error {
	return d.update(cid,
		func(c *render.Context) error { c.BeginQuery(); return nil },
		func() error { return d.be.QueryBegin(cid) })
}

// EndQuery stops the occlusion query of context cid.
func (d *Device) EndQuery(cid svga.ID) error {
	return d.update(cid,
		func(c *render.Context) error { return c.EndQuery() },
		func() error { return d.be.QueryEnd(cid) })
}

// WaitQuery waits for the result of the occlusion query of context cid.
func (d *Device) WaitQuery(cid svga.ID) (render.Query, error) {
	c, err := d.contexts.Get(cid)
	if err != nil {
		return render.Query{}, err
	}

	if c.Query.State == render.QuerySignaled {
		return c.Query, nil
	}

	if c.Query.State != render.QueryIssued {
		return c.Query, fmt.Errorf("context %v: wait for query in state %v: %w", cid, c.Query.State, render.ErrQueryState)
	}

	n, err := d.be.QueryWait(cid)
	if err != nil {
		return c.Query, fmt.Errorf("context %v: backend: %w", cid, err)
	}

	if err := c.SignalQuery(n); err != nil {
		return c.Query, err
	}

	return c.Query, nil
}
