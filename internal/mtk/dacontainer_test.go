package mtk

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildContainer assembles a minimal but structurally valid DA container
// with a single entry and two load regions (Stage-1 signed, Stage-2
// unsigned), followed by the regions' payload bytes.
func buildContainer(t *testing.T, hwCode, hwVer, swVer uint16, stage1Payload, stage2Payload []byte) []byte {
	t.Helper()

	hdr := daHeader{Magic: daInfoMagic, Version: daInfoVersion, EntryCount: 1}
	headerSize := binary.Size(hdr)
	entrySize := binary.Size(daEntry{})

	stage1Offset := uint32(headerSize + entrySize)
	stage2Offset := stage1Offset + uint32(len(stage1Payload))

	entry := daEntry{
		Magic:            daEntryMagic,
		HWCode:           hwCode,
		HWVersion:        hwVer,
		SWVersion:        swVer,
		EntryRegionIndex: 0,
		LoadRegionsCount: 2,
	}
	entry.LoadRegions[0] = LoadRegion{
		Offset: stage1Offset, StartAddr: 0x40000000, Len: uint32(len(stage1Payload)),
		SigOffset: uint32(len(stage1Payload)) - 16, SigLen: 16,
	}
	entry.LoadRegions[1] = LoadRegion{
		Offset: stage2Offset, StartAddr: 0x50000000, Len: uint32(len(stage2Payload)),
		SigOffset: uint32(len(stage2Payload)), SigLen: 0,
	}

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, hdr); err != nil {
		t.Fatalf("writing header: %v", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, entry); err != nil {
		t.Fatalf("writing entry: %v", err)
	}
	buf.Write(stage1Payload)
	buf.Write(stage2Payload)

	return buf.Bytes()
}

func TestDAContainerSelectAndLoad(t *testing.T) {
	stage1 := bytes.Repeat([]byte{0xAA}, 64)
	stage2 := bytes.Repeat([]byte{0xBB}, 128)
	raw := buildContainer(t, 0x8590, 1, 1, stage1, stage2)

	c, err := Load(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	sel, err := c.Select(0x8590, 2, 2)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	if sel.Stage1Region.StartAddr != 0x40000000 {
		t.Fatalf("stage1 start addr = 0x%x", sel.Stage1Region.StartAddr)
	}
	if sel.Stage2Region.StartAddr != 0x50000000 {
		t.Fatalf("stage2 start addr = 0x%x", sel.Stage2Region.StartAddr)
	}

	got, err := c.RegionBytes(sel.Stage1Region)
	if err != nil {
		t.Fatalf("RegionBytes(stage1): %v", err)
	}
	if !bytes.Equal(got, stage1) {
		t.Fatalf("stage1 payload mismatch")
	}

	got, err = c.RegionBytes(sel.Stage2Region)
	if err != nil {
		t.Fatalf("RegionBytes(stage2): %v", err)
	}
	if !bytes.Equal(got, stage2) {
		t.Fatalf("stage2 payload mismatch")
	}
}

func TestDAContainerNoMatchingEntry(t *testing.T) {
	raw := buildContainer(t, 0x8590, 1, 1, make([]byte, 32), make([]byte, 32))
	c, err := Load(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := c.Select(0x9999, 2, 2); err == nil {
		t.Fatal("expected a ContainerError for an unmatched hw_code")
	}
}

func TestDAContainerBadMagic(t *testing.T) {
	raw := buildContainer(t, 0x8590, 1, 1, make([]byte, 32), make([]byte, 32))
	raw[0] ^= 0xFF // corrupt the magic

	if _, err := Load(bytes.NewReader(raw)); err == nil {
		t.Fatal("expected a ContainerError for a bad magic")
	}
}

func TestDAContainerTruncated(t *testing.T) {
	raw := buildContainer(t, 0x8590, 1, 1, make([]byte, 32), make([]byte, 32))
	truncated := raw[:len(raw)-200]

	if _, err := Load(bytes.NewReader(truncated)); err == nil {
		t.Fatal("expected a ContainerError for a truncated container")
	}
}
