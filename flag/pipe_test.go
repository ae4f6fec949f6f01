package flag_test

import "io"

type conn struct {
	io.Reader
	io.Writer
}

// pipePair returns the two ends of an in-memory full-duplex connection.
func pipePair() (io.ReadWriter, io.ReadWriter) {
	r1, w1 := io.Pipe()
	r2, w2 := io.Pipe()

	return conn{Reader: r1, Writer: w2}, conn{Reader: r2, Writer: w1}
}
