package surface

import (
	"fmt"

	"github.com/bobuhiro11/gosvga/svga"
	"github.com/gogpu/gputypes"
)

// Flags are the capability flags a surface is defined with.
type Flags uint32

const (
	FlagCubemap          Flags = 1 << 0
	FlagHintStatic       Flags = 1 << 1
	FlagHintDynamic      Flags = 1 << 2
	FlagHintIndexBuffer  Flags = 1 << 3
	FlagHintVertexBuffer Flags = 1 << 4
	FlagHintTexture      Flags = 1 << 5
	FlagHintRenderTarget Flags = 1 << 6
	FlagHintDepthStencil Flags = 1 << 7
	FlagHintWriteOnly    Flags = 1 << 8
	FlagMaskableAA       Flags = 1 << 9
	FlagAutogenMipmaps   Flags = 1 << 10
)

const (
	// CubeFaces is the face count of a cubemap.
	CubeFaces = 6

	// MaxLevels bounds the mipmap chain of one face.
	MaxLevels = 16
)

// Size is a level extent in pixels.
type Size struct {
	Width, Height, Depth uint32
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%dx%d", s.Width, s.Height, s.Depth)
}

// MipmapLevel is one face/level sub-resource. Data is nil while the level
// holds no contents.
type MipmapLevel struct {
	Size     Size
	ByteSize uint32
	Pitch    uint32
	Data     []byte
	Dirty    bool
}

// Surface is a guest image resource.
type Surface struct {
	ID               svga.ID
	Format           Format
	Flags            Flags
	Faces            uint32
	Levels           uint32
	Mips             []MipmapLevel
	MultisampleCount uint32
	AutogenFilter    uint32
	// Context is the context the surface was last bound in, or InvalidID.
	// It is not kept up to date when that context goes away.
	Context svga.ID
	Dirty   bool
}

// Index returns the position of (face, level) in Mips.
func (s *Surface) Index(face, level uint32) (int, error) {
	if face >= s.Faces || level >= s.Levels {
		return 0, fmt.Errorf("surface %v face %d level %d (%d faces, %d levels): %w",
			s.ID, face, level, s.Faces, s.Levels, svga.ErrOutOfRange)
	}

	return int(level + face*s.Levels), nil
}

// Level returns the sub-resource (face, level).
func (s *Surface) Level(face, level uint32) (*MipmapLevel, error) {
	i, err := s.Index(face, level)
	if err != nil {
		return nil, err
	}

	return &s.Mips[i], nil
}

// Bytes returns the storage all levels need.
func (s *Surface) Bytes() uint64 {
	var n uint64
	for i := range s.Mips {
		n += uint64(s.Mips[i].ByteSize)
	}

	return n
}

// Sizes returns the level geometry of face 0.
func (s *Surface) Sizes() []Size {
	sizes := make([]Size, s.Levels)
	for i := range sizes {
		sizes[i] = s.Mips[i].Size
	}

	return sizes
}

// Descriptor describes the host texture backing the surface.
func (s *Surface) Descriptor() gputypes.TextureDescriptor {
	base := s.Mips[0].Size

	d := gputypes.TextureDescriptor{
		Label:         fmt.Sprintf("sid %v", s.ID),
		Size:          gputypes.NewExtent3D(base.Width, base.Height, base.Depth),
		MipLevelCount: s.Levels,
		SampleCount:   max(s.MultisampleCount, 1),
		Dimension:     gputypes.TextureDimension2D,
		Format:        s.Format.TextureFormat(),
		Usage:         gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst | gputypes.TextureUsageTextureBinding,
	}

	switch {
	case s.Faces == CubeFaces:
		d.Size.DepthOrArrayLayers = CubeFaces
	case base.Depth > 1:
		d.Dimension = gputypes.TextureDimension3D
	}

	if s.Flags&(FlagHintRenderTarget|FlagHintDepthStencil) != 0 || d.Format.IsDepthStencil() {
		d.Usage |= gputypes.TextureUsageRenderAttachment
	}

	return d
}

// Params are the guest-supplied properties of a new surface. Sizes lists
// the level geometry shared by every face.
type Params struct {
	Format           Format
	Flags            Flags
	Faces            uint32
	Sizes            []Size
	MultisampleCount uint32
	AutogenFilter    uint32
}

// newSurface validates p and lays out its levels without allocating data.
func newSurface(id svga.ID, p Params) (*Surface, error) {
	if !p.Format.Valid() {
		return nil, fmt.Errorf("surface %v: format %v: %w", id, p.Format, svga.ErrMalformedInput)
	}

	faces := p.Faces
	if faces == 0 {
		faces = 1
		if p.Flags&FlagCubemap != 0 {
			faces = CubeFaces
		}
	}

	if faces != 1 && faces != CubeFaces {
		return nil, fmt.Errorf("surface %v: %d faces: %w", id, faces, svga.ErrMalformedInput)
	}

	if (faces == CubeFaces) != (p.Flags&FlagCubemap != 0) {
		return nil, fmt.Errorf("surface %v: %d faces with flags %#x: %w", id, faces, uint32(p.Flags), svga.ErrMalformedInput)
	}

	if len(p.Sizes) == 0 || len(p.Sizes) > MaxLevels {
		return nil, fmt.Errorf("surface %v: %d levels: %w", id, len(p.Sizes), svga.ErrOutOfRange)
	}

	levels := uint32(len(p.Sizes))

	s := &Surface{
		ID:               id,
		Format:           p.Format,
		Flags:            p.Flags,
		Faces:            faces,
		Levels:           levels,
		Mips:             make([]MipmapLevel, faces*levels),
		MultisampleCount: p.MultisampleCount,
		AutogenFilter:    p.AutogenFilter,
		Context:          svga.InvalidID,
	}

	for face := uint32(0); face < faces; face++ {
		for level, size := range p.Sizes {
			pitch, bytes, err := LevelLayout(p.Format, size)
			if err != nil {
				return nil, fmt.Errorf("surface %v level %d: %w", id, level, err)
			}

			s.Mips[uint32(level)+face*levels] = MipmapLevel{Size: size, ByteSize: bytes, Pitch: pitch}
		}
	}

	return s, nil
}
