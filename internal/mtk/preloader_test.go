package mtk

import (
	"bytes"
	"testing"
)

func TestPreloaderGetHWCode(t *testing.T) {
	ep := newFakeEndpoints(64)
	var resp []byte
	resp = appendU16(resp, 0x8590)
	resp = appendU16(resp, 0) // status OK
	ep.feed(resp)

	tr := NewTransport(ep, 64, false)
	p := NewPreloader(tr)

	hwCode, err := p.GetHWCode()
	if err != nil {
		t.Fatalf("GetHWCode: %v", err)
	}
	if hwCode != 0x8590 {
		t.Fatalf("hwCode = 0x%04x, want 0x8590", hwCode)
	}
}

func TestPreloaderGetHWCodeNonZeroStatus(t *testing.T) {
	ep := newFakeEndpoints(64)
	var resp []byte
	resp = appendU16(resp, 0x8590)
	resp = appendU16(resp, 0x7017) // device-reported error status
	ep.feed(resp)

	tr := NewTransport(ep, 64, false)
	p := NewPreloader(tr)

	if _, err := p.GetHWCode(); err == nil {
		t.Fatal("expected a protocol error on non-zero status")
	}
}

func TestSyncSucceedsOnFirstAttempt(t *testing.T) {
	ep := newFakeEndpoints(64)
	ep.feed([]byte{0x5F, 0xF5, 0xAF, 0xFA})

	tr := NewTransport(ep, 64, false)
	if err := Sync(tr); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	want := []byte{0xA0, 0x0A, 0x50, 0x05}
	if !bytes.Equal(ep.tx.Bytes(), want) {
		t.Fatalf("kick bytes = % x, want % x", ep.tx.Bytes(), want)
	}
}

func TestPreloaderRunBROMQueryDance(t *testing.T) {
	ep := newFakeEndpoints(64)
	var resp []byte
	resp = appendU8(resp, opGetTargetConfig) // echo of the 0xD8 write
	resp = append(resp, make([]byte, 6)...)  // 6-byte target config read
	resp = appendU8(resp, 0x01)              // BLVer
	resp = appendU8(resp, 0x02)              // BROMVer
	resp = appendU8(resp, 0x00)              // 1-byte discard after GET_HW_SW_VER
	resp = append(resp, make([]byte, 8)...)  // 8-byte discard after the 50ms sleep
	resp = appendU8(resp, 0x01)              // second, duplicate BLVer read
	ep.feed(resp)

	tr := NewTransport(ep, 64, false)
	p := NewPreloader(tr)

	q, err := p.RunBROMQueryDance()
	if err != nil {
		t.Fatalf("RunBROMQueryDance: %v", err)
	}
	if q.BLVer != 0x01 {
		t.Fatalf("BLVer = 0x%02x, want 0x01", q.BLVer)
	}
	if q.BROMVer != 0x02 {
		t.Fatalf("BROMVer = 0x%02x, want 0x02", q.BROMVer)
	}

	wantTX := []byte{opGetTargetConfig, opGetBLVer, opGetBROMVer, opGetHWSWVer, opGetBLVer}
	if !bytes.Equal(ep.tx.Bytes(), wantTX) {
		t.Fatalf("opcodes written = % x, want % x", ep.tx.Bytes(), wantTX)
	}
}

func TestPreloaderSendDAStreamsChunksAndChecksStatus(t *testing.T) {
	ep := newFakeEndpoints(1 << 16)
	var resp []byte
	resp = appendU16(resp, 0) // pre-status
	resp = appendU16(resp, 0) // post-status
	ep.feed(resp)

	tr := NewTransport(ep, 1<<16, false)
	p := NewPreloader(tr)

	region := LoadRegion{StartAddr: 0x40000000, Len: 5000, SigOffset: 4984, SigLen: 16}
	payload := bytes.Repeat([]byte{0x01}, 5000)

	var lastOffset uint64
	err := p.SendDA(region, payload, func(ev ProgressEvent) { lastOffset = ev.Offset })
	if err != nil {
		t.Fatalf("SendDA: %v", err)
	}
	if lastOffset != uint64(len(payload)) {
		t.Fatalf("last reported offset = %d, want %d", lastOffset, len(payload))
	}

	tx := ep.tx.Bytes()
	if !bytes.Contains(tx, payload[:stage1DAChunkSize]) {
		t.Fatal("first chunk was not written to the wire")
	}
}
