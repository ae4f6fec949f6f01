// Package surface keeps the guest's image resources: 2D, cube and volume
// surfaces made of per-face mipmap levels.
package surface

import (
	"fmt"

	"github.com/bobuhiro11/gosvga/svga"
	"github.com/gogpu/gputypes"
)

// Format is a guest surface format.
type Format uint32

const (
	FormatInvalid        Format = 0
	FormatX8R8G8B8       Format = 1
	FormatA8R8G8B8       Format = 2
	FormatR5G6B5         Format = 3
	FormatX1R5G5B5       Format = 4
	FormatA1R5G5B5       Format = 5
	FormatA4R4G4B4       Format = 6
	FormatZD32           Format = 7
	FormatZD16           Format = 8
	FormatZD24S8         Format = 9
	FormatZD15S1         Format = 10
	FormatLuminance8     Format = 11
	FormatLuminance4A4   Format = 12
	FormatLuminance16    Format = 13
	FormatLuminance8A8   Format = 14
	FormatDXT1           Format = 15
	FormatDXT2           Format = 16
	FormatDXT3           Format = 17
	FormatDXT4           Format = 18
	FormatDXT5           Format = 19
	FormatBumpU8V8       Format = 20
	FormatBumpL6V5U5     Format = 21
	FormatBumpX8L8V8U8   Format = 22
	FormatARGBS10E5      Format = 24
	FormatARGBS23E8      Format = 25
	FormatA2R10G10B10    Format = 26
	FormatV8U8           Format = 27
	FormatQ8W8V8U8       Format = 28
	FormatCxV8U8         Format = 29
	FormatX8L8V8U8       Format = 30
	FormatA2W10V10U10    Format = 31
	FormatAlpha8         Format = 32
	FormatRS10E5         Format = 33
	FormatRS23E8         Format = 34
	FormatRGS10E5        Format = 35
	FormatRGS23E8        Format = 36
	FormatBuffer         Format = 37
	FormatZD24X8         Format = 38
	FormatV16U16         Format = 39
	FormatG16R16         Format = 40
	FormatA16B16G16R16   Format = 41
	FormatUYVY           Format = 42
	FormatYUY2           Format = 43
)

// block describes the storage unit of a format: bytes per block and the
// block extent in pixels. Uncompressed formats have 1x1 blocks.
type block struct {
	name    string
	bytes   uint32
	w, h    uint32
	texture gputypes.TextureFormat
}

var formats = map[Format]block{
	FormatX8R8G8B8:     {"X8R8G8B8", 4, 1, 1, gputypes.TextureFormatBGRA8Unorm},
	FormatA8R8G8B8:     {"A8R8G8B8", 4, 1, 1, gputypes.TextureFormatBGRA8Unorm},
	FormatR5G6B5:       {"R5G6B5", 2, 1, 1, gputypes.TextureFormatUndefined},
	FormatX1R5G5B5:     {"X1R5G5B5", 2, 1, 1, gputypes.TextureFormatUndefined},
	FormatA1R5G5B5:     {"A1R5G5B5", 2, 1, 1, gputypes.TextureFormatUndefined},
	FormatA4R4G4B4:     {"A4R4G4B4", 2, 1, 1, gputypes.TextureFormatUndefined},
	FormatZD32:         {"Z_D32", 4, 1, 1, gputypes.TextureFormatDepth32Float},
	FormatZD16:         {"Z_D16", 2, 1, 1, gputypes.TextureFormatDepth16Unorm},
	FormatZD24S8:       {"Z_D24S8", 4, 1, 1, gputypes.TextureFormatDepth24PlusStencil8},
	FormatZD15S1:       {"Z_D15S1", 2, 1, 1, gputypes.TextureFormatUndefined},
	FormatLuminance8:   {"LUMINANCE8", 1, 1, 1, gputypes.TextureFormatR8Unorm},
	FormatLuminance4A4: {"LUMINANCE4_ALPHA4", 1, 1, 1, gputypes.TextureFormatUndefined},
	FormatLuminance16:  {"LUMINANCE16", 2, 1, 1, gputypes.TextureFormatR16Unorm},
	FormatLuminance8A8: {"LUMINANCE8_ALPHA8", 2, 1, 1, gputypes.TextureFormatRG8Unorm},
	FormatDXT1:         {"DXT1", 8, 4, 4, gputypes.TextureFormatBC1RGBAUnorm},
	FormatDXT2:         {"DXT2", 16, 4, 4, gputypes.TextureFormatBC2RGBAUnorm},
	FormatDXT3:         {"DXT3", 16, 4, 4, gputypes.TextureFormatBC2RGBAUnorm},
	FormatDXT4:         {"DXT4", 16, 4, 4, gputypes.TextureFormatBC3RGBAUnorm},
	FormatDXT5:         {"DXT5", 16, 4, 4, gputypes.TextureFormatBC3RGBAUnorm},
	FormatBumpU8V8:     {"BUMPU8V8", 2, 1, 1, gputypes.TextureFormatRG8Snorm},
	FormatBumpL6V5U5:   {"BUMPL6V5U5", 2, 1, 1, gputypes.TextureFormatUndefined},
	FormatBumpX8L8V8U8: {"BUMPX8L8V8U8", 4, 1, 1, gputypes.TextureFormatRGBA8Snorm},
	FormatARGBS10E5:    {"ARGB_S10E5", 8, 1, 1, gputypes.TextureFormatRGBA16Float},
	FormatARGBS23E8:    {"ARGB_S23E8", 16, 1, 1, gputypes.TextureFormatRGBA32Float},
	FormatA2R10G10B10:  {"A2R10G10B10", 4, 1, 1, gputypes.TextureFormatRGB10A2Unorm},
	FormatV8U8:         {"V8U8", 2, 1, 1, gputypes.TextureFormatRG8Snorm},
	FormatQ8W8V8U8:     {"Q8W8V8U8", 4, 1, 1, gputypes.TextureFormatRGBA8Snorm},
	FormatCxV8U8:       {"CxV8U8", 2, 1, 1, gputypes.TextureFormatRG8Snorm},
	FormatX8L8V8U8:     {"X8L8V8U8", 4, 1, 1, gputypes.TextureFormatRGBA8Snorm},
	FormatA2W10V10U10:  {"A2W10V10U10", 4, 1, 1, gputypes.TextureFormatUndefined},
	FormatAlpha8:       {"ALPHA8", 1, 1, 1, gputypes.TextureFormatR8Unorm},
	FormatRS10E5:       {"R_S10E5", 2, 1, 1, gputypes.TextureFormatR16Float},
	FormatRS23E8:       {"R_S23E8", 4, 1, 1, gputypes.TextureFormatR32Float},
	FormatRGS10E5:      {"RG_S10E5", 4, 1, 1, gputypes.TextureFormatRG16Float},
	FormatRGS23E8:      {"RG_S23E8", 8, 1, 1, gputypes.TextureFormatRG32Float},
	FormatBuffer:       {"BUFFER", 1, 1, 1, gputypes.TextureFormatUndefined},
	FormatZD24X8:       {"Z_D24X8", 4, 1, 1, gputypes.TextureFormatDepth24Plus},
	FormatV16U16:       {"V16U16", 4, 1, 1, gputypes.TextureFormatRG16Snorm},
	FormatG16R16:       {"G16R16", 4, 1, 1, gputypes.TextureFormatRG16Unorm},
	FormatA16B16G16R16: {"A16B16G16R16", 8, 1, 1, gputypes.TextureFormatRGBA16Unorm},
	FormatUYVY:         {"UYVY", 4, 2, 1, gputypes.TextureFormatUndefined},
	FormatYUY2:         {"YUY2", 4, 2, 1, gputypes.TextureFormatUndefined},
}

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	_, ok := formats[f]

	return ok
}

func (f Format) String() string {
	if b, ok := formats[f]; ok {
		return b.name
	}

	return fmt.Sprintf("format(%d)", uint32(f))
}

// Block returns the bytes per block and the block extent in pixels.
func (f Format) Block() (bytes, w, h uint32) {
	b := formats[f]

	return b.bytes, b.w, b.h
}

// Compressed reports whether f stores pixels in multi-pixel blocks.
func (f Format) Compressed() bool {
	b := formats[f]

	return b.w > 1 || b.h > 1
}

// TextureFormat maps f onto the host texture format a backend creates for
// it. Formats without a host equivalent map to TextureFormatUndefined.
func (f Format) TextureFormat() gputypes.TextureFormat {
	return formats[f].texture
}

// maxLevelBytes bounds a single mipmap level.
const maxLevelBytes = 1 << 31

// LevelLayout returns the row pitch and byte size of a level of the given
// dimensions. Compressed formats are rounded up to whole blocks and their
// pitch covers one row of blocks.
func LevelLayout(f Format, size Size) (pitch, bytes uint32, err error) {
	b, ok := formats[f]
	if !ok {
		return 0, 0, fmt.Errorf("format %v: %w", f, svga.ErrMalformedInput)
	}

	if size.Width == 0 || size.Height == 0 || size.Depth == 0 {
		return 0, 0, fmt.Errorf("level %v: %w", size, svga.ErrMalformedInput)
	}

	var p uint64

	rows := uint64(size.Height)

	if b.w > 1 || b.h > 1 {
		p = (uint64(size.Width) + uint64(b.w) - 1) / uint64(b.w) * uint64(b.bytes)
		rows = (rows + uint64(b.h) - 1) / uint64(b.h)
	} else {
		p = uint64(size.Width) * uint64(b.bytes)
	}

	total := p * rows * uint64(size.Depth)
	if total >= maxLevelBytes {
		return 0, 0, fmt.Errorf("level %v of %v is %d bytes: %w", size, f, total, svga.ErrOutOfRange)
	}

	return uint32(p), uint32(total), nil
}
