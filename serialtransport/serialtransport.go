// Package serialtransport implements policy.Transport over a real serial
// port using github.com/tarm/serial, grounded on the connection shape used by
// the retrieved Lakeshore 332 and recirculating-chiller instrument drivers:
// open a serial.Port with a fixed serial.Config, read into a buffer, write
// replies straight through. Unlike those drivers (which speak a
// query/response protocol over blocking reads), host-comms needs a
// non-blocking "whatever is available right now" read, so ReadAvailable runs
// the blocking serial.Port.Read in a background goroutine and drains
// whatever has accumulated in an internal channel-backed buffer.
package serialtransport

import (
	"time"

	"github.com/tarm/serial"
)

// Config mirrors the subset of config.Serial this package needs, kept
// independent of the config package so serialtransport has no import-cycle
// risk with it.
type Config struct {
	Device            string
	BaudRate          int
	ReadTimeoutMillis int
}

// Transport implements policy.Transport over a real serial.Port.
type Transport struct {
	port   *serial.Port
	chunks chan []byte
	done   chan struct{}
}

// Open opens the serial port per cfg and starts the background reader.
func Open(cfg Config) (*Transport, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.BaudRate,
		ReadTimeout: time.Duration(cfg.ReadTimeoutMillis) * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	t := &Transport{
		port:   port,
		chunks: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

func (t *Transport) readLoop() {
	buf := make([]byte, 256)
	for {
		select {
		case <-t.done:
			return
		default:
		}
		n, err := t.port.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case t.chunks <- chunk:
			case <-t.done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// ReadAvailable drains every chunk the background reader has accumulated
// since the last call, returning nil if nothing is pending. It never
// blocks, matching policy.Transport's contract for the host-comms task's
// non-blocking poll loop.
func (t *Transport) ReadAvailable() []byte {
	var out []byte
	for {
		select {
		case chunk := <-t.chunks:
			out = append(out, chunk...)
		default:
			return out
		}
	}
}

// Write sends a formatted reply out over the serial port.
func (t *Transport) Write(p []byte) (int, error) {
	return t.port.Write(p)
}

// Close stops the background reader and closes the underlying port.
func (t *Transport) Close() error {
	close(t.done)
	return t.port.Close()
}
