package migration_test

import (
	"errors"
	"testing"

	"github.com/bobuhiro11/gosvga/migration"
	"github.com/bobuhiro11/gosvga/render"
	"github.com/bobuhiro11/gosvga/surface"
	"github.com/bobuhiro11/gosvga/svga"
)

func TestPipe(t *testing.T) {
	t.Parallel()

	src := newState()
	populate(t, src)

	dst := newState()

	v, err := migration.Pipe(src, nil, dst)
	if err != nil {
		t.Fatal(err)
	}

	if v != migration.CurrentVersion || dst.Contexts.Len() != 1 || dst.Surfaces.Len() != 1 {
		t.Fatalf("version %d, %d contexts, %d surfaces", v, dst.Contexts.Len(), dst.Surfaces.Len())
	}
}

func TestPipeLoadFailure(t *testing.T) {
	t.Parallel()

	src := newState()
	populate(t, src)

	// The destination accepts no surfaces at all.
	dst := migration.State{
		Contexts: render.NewRegistry(64, 64),
		Surfaces: surface.NewRegistry(0, 0),
	}

	if _, err := migration.Pipe(src, nil, dst); !errors.Is(err, svga.ErrOutOfRange) {
		t.Fatalf("Pipe = %v", err)
	}
}
