// Package entropy provides the randomness source used by the legacy
// key-agreement path: the enclave's hardware-backed random device when
// running inside the secure module, or the system CSPRNG otherwise.
package entropy

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
)

// Source produces cryptographically secure random bytes.
type Source interface {
	// Read fills buf completely or returns an error. A short read from
	// the underlying device is never silently returned: callers observe
	// either a full buffer or a fatal error for the request.
	Read(buf []byte) error
}

// SystemSource is backed by the Go runtime's CSPRNG (crypto/rand). It is
// used for the legacy suite when no enclave device is configured; the
// hybrid suite's key generation reads crypto/rand directly and does not
// go through a Source.
type SystemSource struct{}

func (SystemSource) Read(buf []byte) error {
	_, err := io.ReadFull(rand.Reader, buf)
	if err != nil {
		return fmt.Errorf("system entropy read: %w", err)
	}
	return nil
}

// NitroSource reads from the AWS Nitro Enclave NSM device. A single
// request to the device may return fewer bytes than asked for; Read
// loops, issuing further requests, until the output buffer is full.
// A failure from the device at any point is fatal to the request in
// progress and is never silently substituted with the system CSPRNG.
type NitroSource struct {
	devicePath string
	readFunc   func(fd *os.File, buf []byte) (int, error)
}

// NewNitroSource opens the NSM device at path. Callers should treat a
// non-nil error as fatal to startup in enclave mode.
func NewNitroSource(path string) (*NitroSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open nsm device %s: %w", path, err)
	}
	f.Close()
	return &NitroSource{devicePath: path, readFunc: readNSMRandom}, nil
}

func (n *NitroSource) Read(buf []byte) error {
	f, err := os.Open(n.devicePath)
	if err != nil {
		return fmt.Errorf("open nsm device: %w", err)
	}
	defer f.Close()

	filled := 0
	for filled < len(buf) {
		n, err := n.readFunc(f, buf[filled:])
		if err != nil {
			return fmt.Errorf("nsm random read: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("nsm random read: device returned zero bytes")
		}
		filled += n
	}
	return nil
}

// reader adapts a Source to io.Reader so it can be passed directly to
// stdlib key-generation functions that expect one (crypto/ecdh's
// GenerateKey, for instance).
type reader struct{ src Source }

// AsReader wraps src as an io.Reader. Read always either fills p
// completely or returns an error; it never returns a short count without
// an error, matching Source's own contract.
func AsReader(src Source) io.Reader {
	return reader{src: src}
}

func (r reader) Read(p []byte) (int, error) {
	if err := r.src.Read(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// readNSMRandom performs one plain read from the opened device file. It
// does not speak the NSM request/response protocol (no GetRandom ioctl).
// NitroSource calls it through its readFunc field, which tests replace so
// the looping and error-propagation behavior can be exercised without
// real hardware.
var readNSMRandom = func(f *os.File, buf []byte) (int, error) {
	return f.Read(buf)
}
