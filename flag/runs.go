package flag

import (
	"bytes"
	"fmt"
	"net"
	"os"

	"github.com/bobuhiro11/gosvga/backend"
	"github.com/bobuhiro11/gosvga/device"
	"github.com/bobuhiro11/gosvga/render"
	"github.com/bobuhiro11/gosvga/shader"
	"github.com/bobuhiro11/gosvga/surface"
	"github.com/bobuhiro11/gosvga/svga"
)

// ValidateCMD checks a file of little-endian shader tokens.
type ValidateCMD struct {
	Kind string `enum:"vertex,pixel" default:"pixel" help:"shader kind: vertex or pixel"`
	File string `arg:"" type:"existingfile" help:"token file"`
}

// InspectCMD prints the contents of a snapshot.
type InspectCMD struct {
	File  string `arg:"" type:"existingfile" help:"snapshot file"`
	Calls bool   `default:"true" negatable:"" help:"print the backend calls of the replay"`
}

// ConvertCMD rewrites a snapshot in another layout.
type ConvertCMD struct {
	Version uint32 `default:"5" help:"snapshot version to write"`
	In      string `arg:"" type:"existingfile" help:"snapshot to read"`
	Out     string `arg:"" help:"snapshot to write"`
}

// SendCMD streams a snapshot file to a ReceiveCMD.
type SendCMD struct {
	Addr string `arg:"" help:"receiver host:port"`
	File string `arg:"" type:"existingfile" help:"snapshot file"`
}

// ReceiveCMD accepts one snapshot and stores it once it loads.
type ReceiveCMD struct {
	Addr string `arg:"" help:"host:port to listen on"`
	Out  string `arg:"" help:"file to store the snapshot in"`
}

func (v *ValidateCMD) Run(env *Env) error {
	kind, err := shader.ParseKind(v.Kind)
	if err != nil {
		return err
	}

	code, err := os.ReadFile(v.File)
	if err != nil {
		return err
	}

	bc, err := shader.Parse(kind, code)
	if err != nil {
		return fmt.Errorf("%s: %w", v.File, err)
	}

	fmt.Fprintf(env.Out, "%s: %v %d.%d shader, %d instructions\n",
		v.File, bc.Kind, bc.Major, bc.Minor, bc.Instructions)

	return nil
}

// load reads a snapshot file into a fresh device driving a recorder.
func load(env *Env, path string) (*device.Device, *backend.Recorder, uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, 0, err
	}
	defer f.Close()

	rec := backend.NewRecorder()

	d, err := device.New(env.Config, nil, rec)
	if err != nil {
		return nil, nil, 0, err
	}

	version, err := d.Load(f)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%s: %w", path, err)
	}

	return d, rec, version, nil
}

func (i *InspectCMD) Run(env *Env) error {
	d, rec, version, err := load(env, i.File)
	if err != nil {
		return err
	}

	fmt.Fprintf(env.Out, "snapshot version %d: %d contexts, %d surfaces\n",
		version, d.Contexts().Len(), d.Surfaces().Len())

	d.Contexts().Range(func(c *render.Context) bool {
		set := 0

		for _, rs := range c.RenderStates {
			if rs.IsSet() {
				set++
			}
		}

		fmt.Fprintf(env.Out, "context %v: flags %#x, %d render states, %d vertex / %d pixel shaders, vs %v ps %v, query %v\n",
			c.ID, uint32(c.Flags), set, len(c.Shaders(shader.Vertex)), len(c.Shaders(shader.Pixel)),
			c.VertexShader, c.PixelShader, c.Query.State)

		return true
	})

	d.Surfaces().Range(func(s *surface.Surface) bool {
		fmt.Fprintf(env.Out, "surface %v: %v, %d faces x %d levels, base %v, %d bytes\n",
			s.ID, s.Format, s.Faces, s.Levels, s.Mips[0].Size, s.Bytes())

		return true
	})

	if i.Calls {
		for _, c := range rec.Calls() {
			fmt.Fprintf(env.Out, "  %v\n", c)
		}
	}

	return nil
}

func (c *ConvertCMD) Run(env *Env) error {
	d, _, from, err := load(env, c.In)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := d.SaveVersion(&buf, c.Version); err != nil {
		return err
	}

	if err := os.WriteFile(c.Out, buf.Bytes(), 0o644); err != nil {
		return err
	}

	svga.Logger().Info("snapshot converted", "from", from, "to", c.Version, "bytes", buf.Len())

	return nil
}

func (s *SendCMD) Run(env *Env) error {
	snap, err := os.ReadFile(s.File)
	if err != nil {
		return err
	}

	conn, err := net.Dial("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.Addr, err)
	}
	defer conn.Close()

	return Send(conn, snap)
}

func (r *ReceiveCMD) Run(env *Env) error {
	ln, err := net.Listen("tcp", r.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", r.Addr, err)
	}
	defer ln.Close()

	conn, err := ln.Accept()
	if err != nil {
		return fmt.Errorf("accept: %w", err)
	}
	defer conn.Close()

	snap, err := Receive(conn, env.Config)
	if err != nil {
		return err
	}

	return os.WriteFile(r.Out, snap, 0o644)
}
