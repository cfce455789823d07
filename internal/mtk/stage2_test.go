package mtk

import (
	"bytes"
	"errors"
	"testing"
)

// memHandler is an IOHandler backed by an in-memory byte slice, standing in
// for a host file in tests.
type memHandler struct {
	data []byte
}

func (h *memHandler) ProvideTx(offset uint64, buf []byte) error {
	n := copy(buf, h.data[offset:])
	if n != len(buf) {
		return errors.New("short read from source")
	}
	return nil
}

func (h *memHandler) ConsumeRx(offset uint64, buf []byte) error {
	if int(offset)+len(buf) > len(h.data) {
		grown := make([]byte, int(offset)+len(buf))
		copy(grown, h.data)
		h.data = grown
	}
	copy(h.data[offset:], buf)
	return nil
}

func appendU8(buf []byte, v uint8) []byte  { return append(buf, v) }
func appendU16(buf []byte, v uint16) []byte {
	return append(buf, byte(v>>8), byte(v))
}
func appendU32(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
func appendU64(buf []byte, v uint64) []byte {
	return appendU32(appendU32(buf, uint32(v>>32)), uint32(v))
}

func TestStage2ReadMatchesSeedAndFollowsAckCadence(t *testing.T) {
	seed := bytes.Repeat([]byte{0x5A, 0x11, 0x22, 0x33}, 1024) // 4KiB seed pattern, well under one chunk

	ep := newFakeEndpoints(1 << 16)
	var resp []byte
	resp = appendU8(resp, mtkDAAck) // ack after READ header
	resp = append(resp, seed...)
	resp = appendU16(resp, checksum16(seed))
	ep.feed(resp)

	tr := NewTransport(ep, 1<<16, false)
	s2 := NewStage2(tr)
	h := &memHandler{data: make([]byte, len(seed))}

	if err := s2.Read(mtkDAStorageSDMMC, 0, uint64(len(seed)), h, nil); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(h.data, seed) {
		t.Fatalf("consumed data does not match seed")
	}

	// Exactly one host ACK must follow the chunk on the wire.
	tx := ep.tx.Bytes()
	if tx[len(tx)-1] != mtkDAAck {
		t.Fatalf("expected trailing host ACK, got last byte 0x%02x", tx[len(tx)-1])
	}
}

func TestStage2ReadChecksumMismatchIsProtocolError(t *testing.T) {
	chunk := bytes.Repeat([]byte{0x42}, 16)
	corruptChecksum := checksum16(chunk) + 1 // mismatched on purpose

	ep := newFakeEndpoints(1 << 12)
	var resp []byte
	resp = appendU8(resp, mtkDAAck)
	resp = append(resp, chunk...)
	resp = appendU16(resp, corruptChecksum)
	ep.feed(resp)

	tr := NewTransport(ep, 1<<12, false)
	s2 := NewStage2(tr)
	h := &memHandler{data: make([]byte, len(chunk))}

	err := s2.Read(mtkDAStorageSDMMC, 0, uint64(len(chunk)), h, nil)
	if err == nil {
		t.Fatal("expected a checksum-mismatch protocol error")
	}
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProtocolError, got %T: %v", err, err)
	}
}

func TestStage2WriteRoundTripsFileBytes(t *testing.T) {
	payload := bytes.Repeat([]byte{0x07, 0x08}, 2048) // 4KiB

	ep := newFakeEndpoints(1 << 16)
	var resp []byte
	resp = appendU8(resp, mtkDAAck) // ack after SDMMC_WRITE_DATA header
	resp = appendU8(resp, mtkDAContChar) // continue after first (only) chunk
	ep.feed(resp)

	tr := NewTransport(ep, 1<<16, false)
	s2 := NewStage2(tr)
	h := &memHandler{data: payload}

	if err := s2.Write(mtkDAStorageSDMMC, mtkDAEMMCPartUser, 0x1000, uint64(len(payload)), h, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	tx := ep.tx.Bytes()
	if !bytes.Contains(tx, payload) {
		t.Fatal("payload bytes were not written to the wire")
	}
}

func TestStage2WriteStopsOnNonContinue(t *testing.T) {
	payload := bytes.Repeat([]byte{0xEE}, 16)

	ep := newFakeEndpoints(1 << 12)
	var resp []byte
	resp = appendU8(resp, mtkDAAck)
	resp = appendU8(resp, 0x00) // not CONT_CHAR: device aborted
	ep.feed(resp)

	tr := NewTransport(ep, 1<<12, false)
	s2 := NewStage2(tr)
	h := &memHandler{data: payload}

	err := s2.Write(mtkDAStorageSDMMC, mtkDAEMMCPartUser, 0, uint64(len(payload)), h, nil)
	if err == nil {
		t.Fatal("expected an error when the device does not return CONT_CHAR")
	}
}
