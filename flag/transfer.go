package flag

import (
	"bytes"
	"fmt"
	"io"

	"github.com/bobuhiro11/gosvga/backend"
	"github.com/bobuhiro11/gosvga/device"
	"github.com/bobuhiro11/gosvga/migration"
	"github.com/bobuhiro11/gosvga/svga"
)

// Send streams snap over conn and waits for the receiver to confirm it.
func Send(conn io.ReadWriter, snap []byte) error {
	sender := migration.NewSender(conn)
	recv := migration.NewReceiver(conn)

	if err := sender.SendSnapshot3D(snap); err != nil {
		return err
	}

	if err := sender.SendDone(); err != nil {
		return err
	}

	if _, err := recv.Expect(migration.MsgReady); err != nil {
		return fmt.Errorf("wait for receiver: %w", err)
	}

	svga.Logger().Info("snapshot sent", "bytes", len(snap))

	return nil
}

// Receive accepts one snapshot from conn, checks that it loads and replays
// under cfg and confirms it to the sender.
func Receive(conn io.ReadWriter, cfg device.Config) ([]byte, error) {
	sender := migration.NewSender(conn)
	recv := migration.NewReceiver(conn)

	snap, err := recv.Expect(migration.MsgSnapshot3D)
	if err != nil {
		return nil, err
	}

	d, err := device.New(cfg, nil, backend.NewRecorder())
	if err != nil {
		return nil, err
	}

	version, err := d.Load(bytes.NewReader(snap))
	if err != nil {
		return nil, fmt.Errorf("received snapshot: %w", err)
	}

	if _, err := recv.Expect(migration.MsgDone); err != nil {
		return nil, err
	}

	if err := sender.SendReady(); err != nil {
		return nil, err
	}

	svga.Logger().Info("snapshot received", "version", version, "bytes", len(snap))

	return snap, nil
}
