// Package memory models the guest memory the device reaches through DMA:
// guest RAM, guest-backed objects (GBOs) described by scatter/gather
// descriptor lists, and the id-indexed registry of memory objects (MOBs).
package memory

import (
	"errors"
	"fmt"

	"github.com/bobuhiro11/gosvga/svga"
	"golang.org/x/sys/unix"
)

var (
	errNoSlotsAvail = errors.New("maximal numbers of slots exhausted")
	errSlotNotFound = errors.New("unable to find MemorySlot")

	// ErrUnmapped is returned for guest accesses outside every RAM slot.
	ErrUnmapped = fmt.Errorf("guest address not backed by RAM: %w", svga.ErrOutOfRange)

	// ErrReadOnly is returned for writes into a read-only slot.
	ErrReadOnly = errors.New("guest memory slot is read-only")
)

// Slot flags.
const (
	FlagReadOnly uint32 = 1 << iota
)

// Guest is guest-physical memory as seen by the device.
type Guest interface {
	ReadPhys(addr uint64, p []byte) error
	WritePhys(addr uint64, p []byte) error
	CheckPhys(addr uint64, n int, write bool) error
}

// Memory is guest RAM made of anonymous host mappings.
type Memory struct {
	Slots    []*MemorySlot
	MaxSlots uint32
	AS       *AddressSpace
}

type MemorySlot struct {
	Addr  uint64
	Size  int
	Slot  uint8
	Flags uint32
	Buf   []byte
}

func (s *MemorySlot) end() uint64 {
	return s.Addr + uint64(s.Size)
}

// New returns guest RAM of ramsize bytes mapped at guest address 0.
func New(ramsize int, maxSlots uint32) (*Memory, error) {
	if maxSlots == 0 {
		maxSlots = 1
	}

	mgnt := &Memory{
		MaxSlots: maxSlots,
		AS:       NewAddressSpace("phys-ram", 0, ^uint64(0)),
	}

	if err := mgnt.NewMemorySlot(0, ramsize, 0); err != nil {
		return nil, err
	}

	return mgnt, nil
}

func (m *Memory) FindSlot(addr uint64, size int) (*MemorySlot, error) {
	for _, slot := range m.Slots {
		if slot.Addr == addr && slot.Size == size {
			return slot, nil
		}
	}

	return nil, errSlotNotFound
}

func (m *Memory) NewMemorySlot(addr uint64, size int, flags uint32) error {
	var err error

	if len(m.Slots) >= int(m.MaxSlots) {
		return errNoSlotsAvail
	}

	if size <= 0 {
		return fmt.Errorf("slot size %d: %w", size, svga.ErrOutOfRange)
	}

	as := NewAddressSpace(fmt.Sprintf("slot%d", len(m.Slots)), addr, uint64(size))
	if err := m.AS.AddAddress(as); err != nil {
		return fmt.Errorf("slot at %#x: %w", addr, err)
	}

	slot := &MemorySlot{
		Addr:  addr,
		Size:  size,
		Slot:  uint8(len(m.Slots)),
		Flags: flags,
	}

	slot.Buf, err = unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		m.AS.RemoveAddress(as)

		return fmt.Errorf("map %d bytes: %v: %w", size, err, svga.ErrOutOfMemory)
	}

	m.Slots = append(m.Slots, slot)

	return nil
}

func (m *Memory) slotAt(addr uint64) (*MemorySlot, error) {
	for _, slot := range m.Slots {
		if addr >= slot.Addr && addr < slot.end() {
			return slot, nil
		}
	}

	return nil, fmt.Errorf("%#x: %w", addr, ErrUnmapped)
}

type piece struct {
	slot *MemorySlot
	off  uint64
	n    int
}

// resolve splits [addr, addr+n) into per-slot pieces. It fails unless the
// whole range is backed and, for writes, writable.
func (m *Memory) resolve(addr uint64, n int, write bool) ([]piece, error) {
	if addr+uint64(n) < addr {
		return nil, fmt.Errorf("%#x+%d wraps: %w", addr, n, svga.ErrOutOfRange)
	}

	var pieces []piece

	for a, rest := addr, n; rest > 0; {
		slot, err := m.slotAt(a)
		if err != nil {
			return nil, err
		}

		if write && slot.Flags&FlagReadOnly != 0 {
			return nil, fmt.Errorf("%#x: %w", a, ErrReadOnly)
		}

		k := int(min(uint64(rest), slot.end()-a))
		pieces = append(pieces, piece{slot: slot, off: a - slot.Addr, n: k})
		a += uint64(k)
		rest -= k
	}

	return pieces, nil
}

// access copies between p and guest memory at addr. The range must be
// fully backed before anything is copied.
func (m *Memory) access(addr uint64, p []byte, write bool) error {
	pieces, err := m.resolve(addr, len(p), write)
	if err != nil {
		return err
	}

	done := 0

	for _, pc := range pieces {
		if write {
			copy(pc.slot.Buf[pc.off:], p[done:done+pc.n])
		} else {
			copy(p[done:done+pc.n], pc.slot.Buf[pc.off:])
		}

		done += pc.n
	}

	return nil
}

// CheckPhys reports whether n bytes at addr could be read, or written if
// write is set, without touching them.
func (m *Memory) CheckPhys(addr uint64, n int, write bool) error {
	_, err := m.resolve(addr, n, write)

	return err
}

// ReadPhys copies guest memory at addr into p.
func (m *Memory) ReadPhys(addr uint64, p []byte) error {
	return m.access(addr, p, false)
}

// WritePhys copies p into guest memory at addr.
func (m *Memory) WritePhys(addr uint64, p []byte) error {
	return m.access(addr, p, true)
}

// Size returns the number of mapped guest bytes.
func (m *Memory) Size() uint64 {
	var n uint64
	for _, slot := range m.Slots {
		n += uint64(slot.Size)
	}

	return n
}

// Close unmaps every slot.
func (m *Memory) Close() error {
	var errs []error

	for _, slot := range m.Slots {
		if err := unix.Munmap(slot.Buf); err != nil {
			errs = append(errs, err)
		}

		slot.Buf = nil
	}

	m.Slots = nil
	m.AS = NewAddressSpace("phys-ram", 0, ^uint64(0))

	return errors.Join(errs...)
}
