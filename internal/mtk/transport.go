// Package mtk implements the MediaTek BootROM/Preloader and Download Agent
// wire protocols used to flash and dump the eMMC storage of MT8590-based
// devices over USB.
package mtk

import (
	"encoding/binary"
	"fmt"
)

// Endpoints is the abstract bulk IN/OUT endpoint pair the Transport rides on.
// A real implementation wraps a USB library (see transport_gousb.go); tests
// use an in-memory fake. Each call should behave like a single bulk transfer:
// it may return fewer bytes than requested, never more.
type Endpoints interface {
	ReadBulk(buf []byte) (int, error)
	WriteBulk(buf []byte) (int, error)
}

// Transport is a framed byte channel over a USB bulk IN/OUT endpoint pair.
// It owns a receive buffer so callers can request arbitrary read sizes
// without worrying about USB packet boundaries. All multi-byte integers
// exchanged with the device are big-endian on the wire.
type Transport struct {
	ep      Endpoints
	pktsize int

	rxBuffer    []byte
	rxOffset    int
	rxAvailable int

	verbose bool
}

// NewTransport wraps ep in a Transport that buffers reads in pktsize chunks.
func NewTransport(ep Endpoints, pktsize int, verbose bool) *Transport {
	return &Transport{
		ep:       ep,
		pktsize:  pktsize,
		rxBuffer: make([]byte, pktsize),
		verbose:  verbose,
	}
}

// Read fills buf completely, refilling the internal receive buffer with bulk
// IN transfers as needed. A nil buf consumes and discards n bytes — used
// where the device sends fields the protocol requires reading but never
// interprets.
func (t *Transport) Read(buf []byte, n int) error {
	offset := 0
	for offset < n {
		if t.rxAvailable == 0 {
			transferred, err := t.ep.ReadBulk(t.rxBuffer[:t.pktsize])
			if err != nil {
				return fmt.Errorf("bulk IN transfer: %w", err)
			}
			t.rxOffset = 0
			t.rxAvailable = transferred
		}

		count := n - offset
		if count > t.rxAvailable {
			count = t.rxAvailable
		}
		if buf != nil {
			copy(buf[offset:offset+count], t.rxBuffer[t.rxOffset:t.rxOffset+count])
		}

		offset += count
		t.rxOffset += count
		t.rxAvailable -= count
	}

	if buf != nil && t.verbose {
		logRX(buf[:n])
	}

	return nil
}

// Discard consumes and discards n bytes from the device, without surfacing
// them to the caller. Equivalent to Read(nil, n).
func (t *Transport) Discard(n int) error {
	return t.Read(nil, n)
}

// Write issues bulk OUT transfers until all of buf has been sent.
func (t *Transport) Write(buf []byte) error {
	if t.verbose {
		logTX(buf)
	}

	offset := 0
	for offset < len(buf) {
		transferred, err := t.ep.WriteBulk(buf[offset:])
		if err != nil {
			return fmt.Errorf("bulk OUT transfer: %w", err)
		}
		if transferred == 0 {
			return fmt.Errorf("bulk OUT transfer: zero bytes transferred")
		}
		offset += transferred
	}
	return nil
}

// ReadU8 reads a single byte.
func (t *Transport) ReadU8() (uint8, error) {
	var buf [1]byte
	if err := t.Read(buf[:], 1); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadU16 reads a big-endian uint16.
func (t *Transport) ReadU16() (uint16, error) {
	var buf [2]byte
	if err := t.Read(buf[:], 2); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

// ReadU32 reads a big-endian uint32.
func (t *Transport) ReadU32() (uint32, error) {
	var buf [4]byte
	if err := t.Read(buf[:], 4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// ReadU64 reads a big-endian uint64.
func (t *Transport) ReadU64() (uint64, error) {
	var buf [8]byte
	if err := t.Read(buf[:], 8); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// WriteU8 writes a single byte.
func (t *Transport) WriteU8(v uint8) error {
	return t.Write([]byte{v})
}

// WriteU16 writes v as big-endian.
func (t *Transport) WriteU16(v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	return t.Write(buf[:])
}

// WriteU32 writes v as big-endian.
func (t *Transport) WriteU32(v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return t.Write(buf[:])
}

// WriteU64 writes v as big-endian.
func (t *Transport) WriteU64(v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return t.Write(buf[:])
}

// EchoU8 writes v, reads back a byte of the same width, and fails if they
// differ.
func (t *Transport) EchoU8(v uint8) error {
	if err := t.WriteU8(v); err != nil {
		return err
	}
	reply, err := t.ReadU8()
	if err != nil {
		return err
	}
	if reply != v {
		return &ProtocolError{Op: "echo8", Msg: fmt.Sprintf("wrote 0x%02x, device echoed 0x%02x", v, reply)}
	}
	return nil
}

// EchoU16 is the 16-bit form of EchoU8.
func (t *Transport) EchoU16(v uint16) error {
	if err := t.WriteU16(v); err != nil {
		return err
	}
	reply, err := t.ReadU16()
	if err != nil {
		return err
	}
	if reply != v {
		return &ProtocolError{Op: "echo16", Msg: fmt.Sprintf("wrote 0x%04x, device echoed 0x%04x", v, reply)}
	}
	return nil
}

// EchoU32 is the 32-bit form of EchoU8.
func (t *Transport) EchoU32(v uint32) error {
	if err := t.WriteU32(v); err != nil {
		return err
	}
	reply, err := t.ReadU32()
	if err != nil {
		return err
	}
	if reply != v {
		return &ProtocolError{Op: "echo32", Msg: fmt.Sprintf("wrote 0x%08x, device echoed 0x%08x", v, reply)}
	}
	return nil
}

// EchoU64 is the 64-bit form of EchoU8.
func (t *Transport) EchoU64(v uint64) error {
	if err := t.WriteU64(v); err != nil {
		return err
	}
	reply, err := t.ReadU64()
	if err != nil {
		return err
	}
	if reply != v {
		return &ProtocolError{Op: "echo64", Msg: fmt.Sprintf("wrote 0x%016x, device echoed 0x%016x", v, reply)}
	}
	return nil
}
