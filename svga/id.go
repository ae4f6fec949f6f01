// Package svga holds the pieces shared by every part of the 3D state engine:
// resource ids, error kinds, the id-indexed slot arena and the logger.
package svga

import "fmt"

// ID is a guest-visible resource id (context, surface, shader or MOB).
type ID uint32

// InvalidID is the universal "none" id. A slot holding it is empty.
const InvalidID ID = 0xFFFFFFFF

// Valid reports whether id refers to something, i.e. is not InvalidID.
func (id ID) Valid() bool {
	return id != InvalidID
}

func (id ID) String() string {
	if id == InvalidID {
		return "invalid"
	}

	return fmt.Sprintf("%d", uint32(id))
}
