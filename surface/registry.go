package surface

import (
	"fmt"

	"github.com/bobuhiro11/gosvga/memory"
	"github.com/bobuhiro11/gosvga/svga"
)

// DefaultMaxBytes is the default budget for level storage.
const DefaultMaxBytes = 256 << 20

// Registry owns the surfaces of the device, indexed by id. All level
// storage is charged against a byte budget.
type Registry struct {
	arena    *svga.Arena[Surface]
	maxBytes uint64
	used     uint64
}

// NewRegistry returns a registry accepting ids below maxIDs and at most
// maxBytes of level storage.
func NewRegistry(maxIDs uint32, maxBytes uint64) *Registry {
	if maxBytes == 0 {
		maxBytes = DefaultMaxBytes
	}

	return &Registry{
		arena:    svga.NewArena[Surface](maxIDs),
		maxBytes: maxBytes,
	}
}

// Used returns the bytes of level storage currently charged.
func (r *Registry) Used() uint64 {
	return r.used
}

// MaxBytes returns the level storage budget.
func (r *Registry) MaxBytes() uint64 {
	return r.maxBytes
}

// Limit returns the exclusive upper bound for surface ids.
func (r *Registry) Limit() uint32 {
	return r.arena.Limit()
}

func (r *Registry) charge(id svga.ID, n uint64) error {
	if r.used+n > r.maxBytes {
		return fmt.Errorf("surface %v needs %d bytes, %d of %d in use: %w",
			id, n, r.used, r.maxBytes, svga.ErrOutOfMemory)
	}

	r.used += n

	return nil
}

// Define creates surface id and allocates zeroed storage for every level.
// Nothing is kept if any step fails.
func (r *Registry) Define(id svga.ID, p Params) (*Surface, error) {
	if r.arena.Has(id) {
		return nil, fmt.Errorf("define surface %v: %w", id, svga.ErrDuplicateID)
	}

	s, err := newSurface(id, p)
	if err != nil {
		return nil, err
	}

	if err := r.insert(s); err != nil {
		return nil, err
	}

	for i := range s.Mips {
		s.Mips[i].Data = make([]byte, s.Mips[i].ByteSize)
	}

	return s, nil
}

// Insert adds a fully built surface, e.g. one decoded from a snapshot.
// Level storage is charged whether or not the levels hold data.
func (r *Registry) Insert(s *Surface) error {
	if s == nil || uint32(len(s.Mips)) != s.Faces*s.Levels {
		return fmt.Errorf("insert surface: inconsistent level array: %w", svga.ErrMalformedInput)
	}

	for i := range s.Mips {
		if d := s.Mips[i].Data; d != nil && uint32(len(d)) != s.Mips[i].ByteSize {
			return fmt.Errorf("insert surface %v: level %d holds %d of %d bytes: %w",
				s.ID, i, len(d), s.Mips[i].ByteSize, svga.ErrMalformedInput)
		}
	}

	return r.insert(s)
}

func (r *Registry) insert(s *Surface) error {
	n := s.Bytes()
	if err := r.charge(s.ID, n); err != nil {
		return err
	}

	if _, err := r.arena.Define(s.ID, s); err != nil {
		r.used -= n

		return fmt.Errorf("define surface: %w", err)
	}

	return nil
}

// Destroy removes surface id and releases its storage. References held by
// contexts are left alone.
func (r *Registry) Destroy(id svga.ID) error {
	s, err := r.arena.Remove(id)
	if err != nil {
		return fmt.Errorf("destroy surface: %w", err)
	}

	r.used -= s.Bytes()

	return nil
}

// Get returns surface id.
func (r *Registry) Get(id svga.ID) (*Surface, error) {
	s, err := r.arena.Get(id)
	if err != nil {
		return nil, fmt.Errorf("surface: %w", err)
	}

	return s, nil
}

// Has reports whether surface id exists.
func (r *Registry) Has(id svga.ID) bool {
	return r.arena.Has(id)
}

// Len returns the number of surfaces.
func (r *Registry) Len() int {
	return r.arena.Len()
}

// IDs returns the surface ids in ascending order.
func (r *Registry) IDs() []svga.ID {
	return r.arena.IDs()
}

// Range calls fn for every surface in ascending id order until fn returns
// false.
func (r *Registry) Range(fn func(*Surface) bool) {
	r.arena.Range(func(_ svga.ID, s *Surface) bool {
		return fn(s)
	})
}

// Reset destroys every surface.
func (r *Registry) Reset() {
	r.arena.Reset()
	r.used = 0
}

func (r *Registry) level(id svga.ID, face, level uint32) (*Surface, *MipmapLevel, error) {
	s, err := r.Get(id)
	if err != nil {
		return nil, nil, err
	}

	m, err := s.Level(face, level)
	if err != nil {
		return nil, nil, err
	}

	return s, m, nil
}

func checkLevelRange(m *MipmapLevel, off uint32, n int) error {
	if uint64(off)+uint64(n) > uint64(m.ByteSize) {
		return fmt.Errorf("range %d+%d beyond level of %d bytes: %w", off, n, m.ByteSize, svga.ErrOutOfRange)
	}

	return nil
}

// WriteLevel stores p at byte offset off of a level and marks the level and
// the surface dirty.
func (r *Registry) WriteLevel(id svga.ID, face, level, off uint32, p []byte) error {
	s, m, err := r.level(id, face, level)
	if err != nil {
		return err
	}

	if err := checkLevelRange(m, off, len(p)); err != nil {
		return fmt.Errorf("write surface %v: %w", id, err)
	}

	if m.Data == nil {
		m.Data = make([]byte, m.ByteSize)
	}

	copy(m.Data[off:], p)
	m.Dirty = true
	s.Dirty = true

	return nil
}

// ReadLevel copies len(p) bytes at byte offset off of a level into p. A
// level without data reads as zeros.
func (r *Registry) ReadLevel(id svga.ID, face, level, off uint32, p []byte) error {
	_, m, err := r.level(id, face, level)
	if err != nil {
		return err
	}

	if err := checkLevelRange(m, off, len(p)); err != nil {
		return fmt.Errorf("read surface %v: %w", id, err)
	}

	if m.Data == nil {
		clear(p)

		return nil
	}

	copy(p, m.Data[off:])

	return nil
}

// Flush clears the dirty marks of surface id and returns the indices of the
// levels that were dirty.
func (r *Registry) Flush(id svga.ID) ([]int, error) {
	s, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	var dirty []int

	for i := range s.Mips {
		if s.Mips[i].Dirty {
			dirty = append(dirty, i)
			s.Mips[i].Dirty = false
		}
	}

	s.Dirty = false

	return dirty, nil
}

// rows returns the number of pitch-sized rows of a level, counting block
// rows for compressed formats and every depth slice.
func rows(m *MipmapLevel) uint32 {
	if m.Pitch == 0 {
		return 0
	}

	return m.ByteSize / m.Pitch
}

// UploadFromMOB fills a level from a guest memory object. The level rows
// are read starting at mobOff, mobPitch bytes apart; zero means the level's
// own pitch.
func (r *Registry) UploadFromMOB(mobs *memory.Registry, mob *memory.MOB, mobOff uint64, mobPitch uint32,
	id svga.ID, face, level uint32,
) error {
	s, m, err := r.level(id, face, level)
	if err != nil {
		return err
	}

	if mobPitch == 0 {
		mobPitch = m.Pitch
	}

	if mobPitch < m.Pitch {
		return fmt.Errorf("upload surface %v: mob pitch %d below row size %d: %w", id, mobPitch, m.Pitch, svga.ErrOutOfRange)
	}

	buf := make([]byte, m.ByteSize)

	for row := uint32(0); row < rows(m); row++ {
		dst := buf[row*m.Pitch : (row+1)*m.Pitch]
		if err := mobs.Read(mob, mobOff+uint64(row)*uint64(mobPitch), dst); err != nil {
			return fmt.Errorf("upload surface %v row %d: %w", id, row, err)
		}
	}

	m.Data = buf
	m.Dirty = true
	s.Dirty = true

	return nil
}

// ReadbackToMOB writes a level into a guest memory object, the inverse of
// UploadFromMOB.
func (r *Registry) ReadbackToMOB(mobs *memory.Registry, mob *memory.MOB, mobOff uint64, mobPitch uint32,
	id svga.ID, face, level uint32,
) error {
	_, m, err := r.level(id, face, level)
	if err != nil {
		return err
	}

	if mobPitch == 0 {
		mobPitch = m.Pitch
	}

	if mobPitch < m.Pitch {
		return fmt.Errorf("readback surface %v: mob pitch %d below row size %d: %w", id, mobPitch, m.Pitch, svga.ErrOutOfRange)
	}

	n := rows(m)
	if n > 0 {
		end := mobOff + uint64(n-1)*uint64(mobPitch) + uint64(m.Pitch)
		if end > mob.Size() {
			return fmt.Errorf("readback surface %v: needs %d bytes of mob %v: %w", id, end, mob.ID, svga.ErrOutOfRange)
		}
	}

	data := m.Data
	if data == nil {
		data = make([]byte, m.ByteSize)
	}

	for row := uint32(0); row < n; row++ {
		if err := mobs.Write(mob, mobOff+uint64(row)*uint64(mobPitch), data[row*m.Pitch:(row+1)*m.Pitch]); err != nil {
			return fmt.Errorf("readback surface %v row %d: %w", id, row, err)
		}
	}

	return nil
}
