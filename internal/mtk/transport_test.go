package mtk

import (
	"errors"
	"testing"
)

func TestTransportBigEndianRoundTrip(t *testing.T) {
	ep := newFakeEndpoints(64)
	tx := NewTransport(ep, 64, false)

	if err := tx.WriteU8(0x12); err != nil {
		t.Fatalf("WriteU8: %v", err)
	}
	if err := tx.WriteU16(0x1234); err != nil {
		t.Fatalf("WriteU16: %v", err)
	}
	if err := tx.WriteU32(0x12345678); err != nil {
		t.Fatalf("WriteU32: %v", err)
	}
	if err := tx.WriteU64(0x1122334455667788); err != nil {
		t.Fatalf("WriteU64: %v", err)
	}

	// Feed the written bytes right back as if the device echoed them.
	ep.feed(ep.tx.Bytes())

	rx := NewTransport(ep, 64, false)
	u8, err := rx.ReadU8()
	if err != nil || u8 != 0x12 {
		t.Fatalf("ReadU8 = %#x, %v", u8, err)
	}
	u16, err := rx.ReadU16()
	if err != nil || u16 != 0x1234 {
		t.Fatalf("ReadU16 = %#x, %v", u16, err)
	}
	u32, err := rx.ReadU32()
	if err != nil || u32 != 0x12345678 {
		t.Fatalf("ReadU32 = %#x, %v", u32, err)
	}
	u64, err := rx.ReadU64()
	if err != nil || u64 != 0x1122334455667788 {
		t.Fatalf("ReadU64 = %#x, %v", u64, err)
	}
}

func TestTransportReadAcrossPacketBoundaries(t *testing.T) {
	ep := newFakeEndpoints(4)
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	ep.feed(payload)

	tx := NewTransport(ep, 4, false)
	got := make([]byte, len(payload))
	if err := tx.Read(got, len(got)); err != nil {
		t.Fatalf("Read: %v", err)
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("byte %d: got %d, want %d", i, got[i], payload[i])
		}
	}
}

func TestTransportDiscard(t *testing.T) {
	ep := newFakeEndpoints(8)
	ep.feed([]byte{1, 2, 3, 4, 5})

	tx := NewTransport(ep, 8, false)
	if err := tx.Discard(3); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	b, err := tx.ReadU8()
	if err != nil {
		t.Fatalf("ReadU8: %v", err)
	}
	if b != 4 {
		t.Fatalf("got %d, want 4", b)
	}
}

func TestTransportEchoMismatchIsProtocolError(t *testing.T) {
	ep := newFakeEndpoints(8)
	ep.feed([]byte{0x99}) // device echoes back the wrong value

	tx := NewTransport(ep, 8, false)
	err := tx.EchoU8(0x42)
	if err == nil {
		t.Fatal("expected an error on echo mismatch")
	}
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("expected *ProtocolError, got %T: %v", err, err)
	}
}
