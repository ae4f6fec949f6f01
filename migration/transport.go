// This file implements the framed binary transport used to stream a
// snapshot between the source and destination over a TCP connection.
//
// Wire format for each message:
//
//	[4-byte big-endian type][8-byte big-endian payload length][payload bytes]

package migration

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bobuhiro11/gosvga/backend"
	"golang.org/x/sync/errgroup"
)

// MsgType identifies a migration protocol message.
type MsgType uint32

const (
	MsgSnapshot3D MsgType = 1 // snapshot stream as written by Save
	MsgDone       MsgType = 2 // source signals end-of-migration
	MsgReady      MsgType = 3 // destination confirms it has loaded the state
)

func (t MsgType) String() string {
	switch t {
	case MsgSnapshot3D:
		return "snapshot3d"
	case MsgDone:
		return "done"
	case MsgReady:
		return "ready"
	default:
		return fmt.Sprintf("msg(%d)", uint32(t))
	}
}

// MaxPayload bounds the payload a Receiver accepts.
const MaxPayload = 1 << 32

var (
	errPayloadTooLarge = errors.New("payload too large")
	errUnexpectedMsg   = errors.New("unexpected message")
)

// Sender writes framed messages to an underlying writer (typically a TCP conn).
type Sender struct {
	w io.Writer
}

// NewSender wraps w as a migration Sender.
func NewSender(w io.Writer) *Sender { return &Sender{w: w} }

// send writes a single framed message.
func (s *Sender) send(t MsgType, payload []byte) error {
	hdr := make([]byte, 12)
	binary.BigEndian.PutUint32(hdr[0:4], uint32(t))
	binary.BigEndian.PutUint64(hdr[4:12], uint64(len(payload)))

	if _, err := s.w.Write(hdr); err != nil {
		return fmt.Errorf("send header: %w", err)
	}

	if len(payload) > 0 {
		if _, err := s.w.Write(payload); err != nil {
			return fmt.Errorf("send payload: %w", err)
		}
	}

	return nil
}

// SendSnapshot3D sends an already encoded snapshot.
func (s *Sender) SendSnapshot3D(snap []byte) error {
	return s.send(MsgSnapshot3D, snap)
}

// SendState saves st and sends it as a MsgSnapshot3D.
func (s *Sender) SendState(st State, be backend.Backend) error {
	pr, pw := io.Pipe()

	g := new(errgroup.Group)

	g.Go(func() error {
		err := Save(pw, st, be)
		pw.CloseWithError(err)

		return err
	})

	payload, err := io.ReadAll(pr)

	if werr := g.Wait(); werr != nil {
		return fmt.Errorf("encode snapshot: %w", werr)
	}

	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	return s.send(MsgSnapshot3D, payload)
}

// SendDone signals the end of the migration stream.
func (s *Sender) SendDone() error { return s.send(MsgDone, nil) }

// SendReady signals that the destination has loaded the state.
func (s *Sender) SendReady() error { return s.send(MsgReady, nil) }

// Receiver reads framed messages from an underlying reader.
type Receiver struct {
	r io.Reader
}

// NewReceiver wraps r as a migration Receiver.
func NewReceiver(r io.Reader) *Receiver { return &Receiver{r: r} }

// Next reads the next message header and returns the type and full payload.
func (r *Receiver) Next() (MsgType, []byte, error) {
	hdr := make([]byte, 12)
	if _, err := io.ReadFull(r.r, hdr); err != nil {
		return 0, nil, fmt.Errorf("read header: %w", err)
	}

	t := MsgType(binary.BigEndian.Uint32(hdr[0:4]))
	length := binary.BigEndian.Uint64(hdr[4:12])

	if length == 0 {
		return t, nil, nil
	}

	if length > MaxPayload {
		return 0, nil, fmt.Errorf("%w: type=%v len=%d", errPayloadTooLarge, t, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return 0, nil, fmt.Errorf("read payload (type=%v len=%d): %w", t, length, err)
	}

	return t, payload, nil
}

// Expect reads the next message and fails unless it has type want.
func (r *Receiver) Expect(want MsgType) ([]byte, error) {
	t, payload, err := r.Next()
	if err != nil {
		return nil, err
	}

	if t != want {
		return nil, fmt.Errorf("%w: got %v, want %v", errUnexpectedMsg, t, want)
	}

	return payload, nil
}

// DecodeSnapshot3D loads a MsgSnapshot3D payload into st and returns the
// snapshot version.
func DecodeSnapshot3D(payload []byte, st State) (uint32, error) {
	v, err := Load(bytes.NewReader(payload), st)
	if err != nil {
		return 0, fmt.Errorf("decode snapshot: %w", err)
	}

	return v, nil
}
