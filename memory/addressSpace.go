package memory

import (
	"errors"
)

var errAddrSpaceOccupied = errors.New("address space occupied")

// AddressSpace is a named range of guest addresses with non-overlapping
// sub-ranges.
type AddressSpace struct {
	Name      string
	Start     uint64
	Size      uint64
	Addresses []*AddressSpace
}

func NewAddressSpace(name string, start uint64, size uint64) *AddressSpace {
	return &AddressSpace{
		Name:  name,
		Start: start,
		Size:  size,
	}
}

// last returns the last address of a, which avoids overflow at the top of
// the 64-bit space.
func (a *AddressSpace) last() uint64 {
	return a.Start + a.Size - 1
}

func (a *AddressSpace) AddAddress(addr *AddressSpace) error {
	if addr.Size == 0 || !a.InRange(addr) || !a.IsFree(addr) {
		return errAddrSpaceOccupied
	}

	a.Addresses = append(a.Addresses, addr)

	return nil
}

// RemoveAddress drops a sub-range added with AddAddress.
func (a *AddressSpace) RemoveAddress(addr *AddressSpace) {
	for i, sub := range a.Addresses {
		if sub == addr {
			a.Addresses = append(a.Addresses[:i], a.Addresses[i+1:]...)

			return
		}
	}
}

// InRange reports whether addr lies entirely within a.
func (a *AddressSpace) InRange(addr *AddressSpace) bool {
	return addr.Start >= a.Start && addr.last() <= a.last() && addr.last() >= addr.Start
}

// Overlaps reports whether a and b share at least one address.
func (a *AddressSpace) Overlaps(b *AddressSpace) bool {
	return a.Start <= b.last() && b.Start <= a.last()
}

// IsFree reports whether ad overlaps none of the sub-ranges of a.
func (a *AddressSpace) IsFree(ad *AddressSpace) bool {
	for _, addr := range a.Addresses {
		if addr.Overlaps(ad) {
			return false
		}
	}

	return true
}
