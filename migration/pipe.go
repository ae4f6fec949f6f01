package migration

import (
	"io"

	"github.com/bobuhiro11/gosvga/backend"
	"golang.org/x/sync/errgroup"
)

// Pipe saves src and loads the stream into dst at the same time, without
// holding the whole snapshot in memory. It returns the loaded version.
func Pipe(src State, be backend.Backend, dst State) (uint32, error) {
	pr, pw := io.Pipe()

	var version uint32

	g := new(errgroup.Group)

	g.Go(func() error {
		err := Save(pw, src, be)
		pw.CloseWithError(err)

		return err
	})

	g.Go(func() error {
		v, err := Load(pr, dst)
		pr.CloseWithError(err)
		version = v

		return err
	})

	if err := g.Wait(); err != nil {
		return 0, err
	}

	return version, nil
}
