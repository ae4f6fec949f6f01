package flag

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/bobuhiro11/gosvga/device"
	"github.com/bobuhiro11/gosvga/svga"
)

// CLI is the command line of gosvga.
type CLI struct {
	LogLevel string `name:"log-level" default:"warn" help:"log level: debug, info, warn or error"`
	Limits   Limits `embed:""`

	Validate ValidateCMD `cmd:"" help:"Validate a shader token stream."`
	Inspect  InspectCMD  `cmd:"" help:"Load a snapshot, replay it and print what it holds."`
	Convert  ConvertCMD  `cmd:"" help:"Rewrite a snapshot in another version."`
	Send     SendCMD     `cmd:"" help:"Stream a snapshot to a receiving host."`
	Receive  ReceiveCMD  `cmd:"" help:"Accept one streamed snapshot and store it."`
}

// Env is what every command runs with.
type Env struct {
	Config device.Config
	Out    io.Writer
}

func Parse() error {
	c := CLI{}

	programName := "gosvga"
	programDesc := "gosvga validates shaders and inspects, converts and migrates SVGA 3D device snapshots"

	ctx := kong.Parse(&c,
		kong.Name(programName),
		kong.Description(programDesc),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	env, err := c.Env(os.Stdout)
	if err != nil {
		return err
	}

	return ctx.Run(env)
}

// Env installs the logger selected by c and builds the command
// environment.
func (c *CLI) Env(out io.Writer) (*Env, error) {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}

	svga.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := c.Limits.Config()
	if err != nil {
		return nil, err
	}

	return &Env{Config: cfg, Out: out}, nil
}
