package memory

import (
	"encoding/binary"
	"fmt"

	"github.com/bobuhiro11/gosvga/svga"
	"golang.org/x/sys/unix"
)

const (
	// PageSize is the guest page size descriptors are counted in.
	PageSize = 4096

	// MaxGBOBytes is the largest guest-backed object accepted.
	MaxGBOBytes = 128 << 20

	// DefaultMaxDescriptors bounds the descriptor list of one GBO.
	DefaultMaxDescriptors = 1 << 16

	// guestAddrMask drops garbage some guests leave in the top bits of
	// page numbers.
	guestAddrMask = 0x00000FFFFFFFFFFF
)

// Limits bounds the guest-backed objects a registry accepts.
type Limits struct {
	PageSize       uint32
	MaxBytes       uint64
	MaxDescriptors int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		PageSize:       PageSize,
		MaxBytes:       MaxGBOBytes,
		MaxDescriptors: DefaultMaxDescriptors,
	}
}

func (l Limits) normalize() Limits {
	d := DefaultLimits()

	if l.PageSize == 0 {
		l.PageSize = d.PageSize
	}

	if l.MaxBytes == 0 {
		l.MaxBytes = d.MaxBytes
	}

	if l.MaxDescriptors <= 0 {
		l.MaxDescriptors = d.MaxDescriptors
	}

	return l
}

// Descriptor is one physically contiguous run of guest pages.
type Descriptor struct {
	Addr  uint64
	Pages uint32
}

// GBO is a flat byte range scattered over guest pages. Byte i of the
// object lives in the descriptor whose cumulative page range covers i.
type GBO struct {
	descs    []Descriptor
	pages    uint32
	pageSize uint32

	host []byte
}

// NewGBO builds a GBO from descs in byte order. Descriptors that continue
// the previous one are merged.
func NewGBO(descs []Descriptor, lim Limits) (*GBO, error) {
	lim = lim.normalize()

	if len(descs) == 0 {
		return nil, fmt.Errorf("gbo without descriptors: %w", svga.ErrMalformedInput)
	}

	g := &GBO{pageSize: lim.PageSize}

	var total uint64

	for i, d := range descs {
		if d.Pages == 0 {
			return nil, fmt.Errorf("descriptor %d has no pages: %w", i, svga.ErrMalformedInput)
		}

		total += uint64(d.Pages)
		if total*uint64(lim.PageSize) > lim.MaxBytes {
			return nil, fmt.Errorf("gbo larger than %d bytes: %w", lim.MaxBytes, svga.ErrOutOfRange)
		}

		d.Addr &= guestAddrMask

		if n := len(g.descs); n > 0 {
			prev := &g.descs[n-1]
			if prev.Addr+uint64(prev.Pages)*uint64(lim.PageSize) == d.Addr {
				prev.Pages += d.Pages

				continue
			}
		}

		if len(g.descs) == lim.MaxDescriptors {
			return nil, fmt.Errorf("gbo needs more than %d descriptors: %w",
				lim.MaxDescriptors, svga.ErrTooManyDescriptors)
		}

		g.descs = append(g.descs, d)
	}

	g.pages = uint32(total)

	return g, nil
}

// Descriptors returns a copy of the merged descriptor list.
func (g *GBO) Descriptors() []Descriptor {
	return append([]Descriptor(nil), g.descs...)
}

// Pages returns the number of guest pages covered.
func (g *GBO) Pages() uint32 {
	return g.pages
}

// Size returns the object size in bytes, always a whole number of pages.
func (g *GBO) Size() uint64 {
	return uint64(g.pages) * uint64(g.pageSize)
}

// Realized reports whether the GBO has a host backing buffer.
func (g *GBO) Realized() bool {
	return g.host != nil
}

// Host returns the realized buffer, or nil. The buffer is valid until the
// MOB holding it is unrealized or destroyed.
func (g *GBO) Host() []byte {
	return g.host
}

func (g *GBO) checkRange(off, n uint64) error {
	if off+n < off || off+n > g.Size() {
		return fmt.Errorf("range %d+%d beyond %d bytes: %w", off, n, g.Size(), svga.ErrOutOfRange)
	}

	return nil
}

// span is the part of an access that falls into one descriptor.
type span struct {
	addr uint64
	n    uint64
}

// spans splits n bytes at object offset off at descriptor boundaries.
func (g *GBO) spans(off, n uint64) []span {
	var (
		out  []span
		base uint64
	)

	for _, d := range g.descs {
		if n == 0 {
			break
		}

		size := uint64(d.Pages) * uint64(g.pageSize)
		if off >= base+size {
			base += size

			continue
		}

		k := min(n, base+size-off)
		out = append(out, span{addr: d.Addr + off - base, n: k})

		n -= k
		off += k
		base += size
	}

	return out
}

// checkGuest fails unless every guest byte of [off, off+n) is backed and,
// for writes, writable.
func (g *GBO) checkGuest(mem Guest, off, n uint64, write bool) ([]span, error) {
	if err := g.checkRange(off, n); err != nil {
		return nil, err
	}

	sp := g.spans(off, n)

	for _, s := range sp {
		if err := mem.CheckPhys(s.addr, int(s.n), write); err != nil {
			return nil, fmt.Errorf("gbo guest %#x: %w", s.addr, err)
		}
	}

	return sp, nil
}

// transfer moves p to or from guest memory at object offset off. Every
// descriptor the access touches is checked before any byte moves.
func (g *GBO) transfer(mem Guest, off uint64, p []byte, write bool) error {
	sp, err := g.checkGuest(mem, off, uint64(len(p)), write)
	if err != nil {
		return err
	}

	for _, s := range sp {
		if write {
			err = mem.WritePhys(s.addr, p[:s.n])
		} else {
			err = mem.ReadPhys(s.addr, p[:s.n])
		}

		if err != nil {
			return fmt.Errorf("gbo guest %#x: %w", s.addr, err)
		}

		p = p[s.n:]
	}

	return nil
}

// ReadGuest reads len(p) bytes at object offset off from guest memory.
func (g *GBO) ReadGuest(mem Guest, off uint64, p []byte) error {
	return g.transfer(mem, off, p, false)
}

// WriteGuest writes p to guest memory at object offset off.
func (g *GBO) WriteGuest(mem Guest, off uint64, p []byte) error {
	return g.transfer(mem, off, p, true)
}

// Copy moves n bytes between two GBOs through guest memory using a
// page-sized bounce buffer. Both ranges are checked against guest memory
// before the first chunk moves.
func Copy(mem Guest, dst *GBO, dstOff uint64, src *GBO, srcOff uint64, n uint64) error {
	if _, err := src.checkGuest(mem, srcOff, n, false); err != nil {
		return fmt.Errorf("copy source: %w", err)
	}

	if _, err := dst.checkGuest(mem, dstOff, n, true); err != nil {
		return fmt.Errorf("copy destination: %w", err)
	}

	buf := make([]byte, min(n, uint64(src.pageSize)))

	for n > 0 {
		chunk := buf[:min(n, uint64(len(buf)))]

		if err := src.ReadGuest(mem, srcOff, chunk); err != nil {
			return err
		}

		if err := dst.WriteGuest(mem, dstOff, chunk); err != nil {
			return err
		}

		srcOff += uint64(len(chunk))
		dstOff += uint64(len(chunk))
		n -= uint64(len(chunk))
	}

	return nil
}

// realize allocates the host buffer and fills it from guest memory. It is
// a no-op on a realized GBO. On failure the GBO is left unrealized.
func (g *GBO) realize(mem Guest) error {
	if g.host != nil {
		return nil
	}

	buf, err := unix.Mmap(-1, 0, int(g.Size()), unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return fmt.Errorf("backing store of %d bytes: %v: %w", g.Size(), err, svga.ErrOutOfMemory)
	}

	if err := g.ReadGuest(mem, 0, buf); err != nil {
		_ = unix.Munmap(buf)

		return err
	}

	g.host = buf

	return nil
}

func (g *GBO) unrealize() error {
	if g.host == nil {
		return nil
	}

	buf := g.host
	g.host = nil

	if err := unix.Munmap(buf); err != nil {
		return fmt.Errorf("release backing store: %w", err)
	}

	return nil
}

// Mob page-table formats.
type Format uint32

const (
	PTDepth0 Format = iota
	PTDepth1
	PTDepth2
	Range
	PTDepth64_0
	PTDepth64_1
	PTDepth64_2
)

func (f Format) String() string {
	switch f {
	case PTDepth0:
		return "ptdepth0"
	case PTDepth1:
		return "ptdepth1"
	case PTDepth2:
		return "ptdepth2"
	case Range:
		return "range"
	case PTDepth64_0:
		return "ptdepth64_0"
	case PTDepth64_1:
		return "ptdepth64_1"
	case PTDepth64_2:
		return "ptdepth64_2"
	default:
		return fmt.Sprintf("format(%d)", uint32(f))
	}
}

// NewGBOFromPageTable walks the guest page table rooted at page number base
// and builds a GBO of size bytes. Depth 0 names the only data page, depth 1
// a page of data page numbers, depth 2 a page of depth-1 page numbers.
// Range maps size bytes of contiguous pages starting at base.
func NewGBOFromPageTable(mem Guest, format Format, base uint64, size uint32, lim Limits) (*GBO, error) {
	lim = lim.normalize()

	if size == 0 || uint64(size) > lim.MaxBytes {
		return nil, fmt.Errorf("gbo size %d: %w", size, svga.ErrOutOfRange)
	}

	ps := uint64(lim.PageSize)
	pages := (uint64(size) + ps - 1) / ps
	wide := format >= PTDepth64_0

	entry := uint64(4)
	if wide {
		entry = 8
	}

	perPage := ps / entry

	depth := format
	if wide {
		depth -= PTDepth64_0
	}

	var ppns []uint64

	switch {
	case format == Range:
		return NewGBO([]Descriptor{{Addr: base * ps, Pages: uint32(pages)}}, lim)
	case format > PTDepth64_2:
		return nil, fmt.Errorf("page table %v: %w", format, svga.ErrMalformedInput)
	case depth == PTDepth0:
		if pages != 1 {
			return nil, fmt.Errorf("%v covers one page, not %d: %w", format, pages, svga.ErrMalformedInput)
		}

		ppns = []uint64{base}
	case depth == PTDepth1:
		if pages > perPage {
			return nil, fmt.Errorf("%v covers %d pages, not %d: %w", format, perPage, pages, svga.ErrOutOfRange)
		}

		var err error

		ppns, err = readPPNs(mem, base, ps, entry, pages)
		if err != nil {
			return nil, err
		}
	case depth == PTDepth2:
		if pages > perPage*perPage {
			return nil, fmt.Errorf("%v covers %d pages, not %d: %w", format, perPage*perPage, pages, svga.ErrOutOfRange)
		}

		roots, err := readPPNs(mem, base, ps, entry, (pages+perPage-1)/perPage)
		if err != nil {
			return nil, err
		}

		for _, root := range roots {
			leaf, err := readPPNs(mem, root, ps, entry, min(pages-uint64(len(ppns)), perPage))
			if err != nil {
				return nil, err
			}

			ppns = append(ppns, leaf...)
		}
	}

	descs := make([]Descriptor, len(ppns))
	for i, ppn := range ppns {
		descs[i] = Descriptor{Addr: ppn * ps, Pages: 1}
	}

	return NewGBO(descs, lim)
}

// readPPNs reads n page numbers of entry bytes each from the page ppn.
func readPPNs(mem Guest, ppn, pageSize, entry, n uint64) ([]uint64, error) {
	page := make([]byte, n*entry)

	addr := (ppn * pageSize) & guestAddrMask
	if err := mem.ReadPhys(addr, page); err != nil {
		return nil, fmt.Errorf("read page table at %#x: %w", addr, err)
	}

	out := make([]uint64, n)

	for i := range out {
		if entry == 8 {
			out[i] = binary.LittleEndian.Uint64(page[i*8:])
		} else {
			out[i] = uint64(binary.LittleEndian.Uint32(page[i*4:]))
		}
	}

	return out, nil
}
