package mtk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// LoadRegion describes one contiguous piece of a DA entry's payload as laid
// out in the container file and as it must be uploaded into device RAM.
type LoadRegion struct {
	Offset    uint32 // byte offset of this region within the container file
	StartAddr uint32 // device RAM address to load this region at
	Len       uint32 // total region length, including any trailing signature
	SigOffset uint32 // offset of the trailing signature within the region
	SigLen    uint32 // length of the trailing signature
}

// daEntry is one selectable DA entry: a HW/SW version range, and the set of
// load regions it is built from (normally Stage-1 followed by Stage-2).
type daEntry struct {
	Magic            uint32
	HWCode           uint16
	HWSubCode        uint16
	HWVersion        uint16
	SWVersion        uint16
	PageSize         uint16
	_                uint16 // reserved, wire padding
	EntryRegionIndex uint32
	LoadRegionsCount uint32
	LoadRegions      [daEntryLoadRegions]LoadRegion
}

// daHeader is the fixed-size prefix of a DA container file.
type daHeader struct {
	Magic       uint32
	Version     uint32
	Identifier  [daIdentifierLen]byte
	Description [daDescriptionLen]byte
	EntryCount  uint32
}

// Container is the immutable, fully-parsed in-memory form of a Download
// Agent binary. It is built once by Load and shared by reference across
// Stage-1 and Stage-2 — nothing in this package mutates it after parsing.
type Container struct {
	file    io.ReaderAt
	header  daHeader
	entries []daEntry
}

// Selection is the pair of load regions (DA selection result, spec.md §3):
// stage1Region is the first region at or after the chosen entry's
// EntryRegionIndex with a non-zero signature length, and stage2Region is the
// region immediately following it.
type Selection struct {
	Entry        int
	Stage1Region LoadRegion
	Stage2Region LoadRegion
}

// Load reads and validates a DA container's header and entry table from r.
// Per spec.md §4.2, only the fixed header-prefix-plus-entry-table bytes are
// read into memory here; region payload bytes are read on demand from r by
// RegionBytes during the Stage-1/Stage-2 upload, so a multi-megabyte DA
// binary is never loaded whole just to inspect its metadata.
//
// The on-disk layout is little-endian regardless of host byte order (spec.md
// §9); all fields are decoded explicitly with encoding/binary rather than by
// casting a raw byte slice onto the struct, so this parser behaves
// identically on a big-endian host.
func Load(r io.ReadSeeker) (*Container, error) {
	var hdr daHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("reading DA container header: %w", err)
	}
	if hdr.Magic != daInfoMagic {
		return nil, &ContainerError{Msg: fmt.Sprintf("bad header magic 0x%08x", hdr.Magic)}
	}
	if hdr.Version != daInfoVersion {
		return nil, &ContainerError{Msg: fmt.Sprintf("unsupported container version %d", hdr.Version)}
	}

	headerSize := int64(binary.Size(hdr))
	entrySize := int64(binary.Size(daEntry{}))
	total := headerSize + int64(hdr.EntryCount)*entrySize

	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("seeking DA container: %w", err)
	}
	if size < total {
		return nil, &ContainerError{Msg: fmt.Sprintf("truncated container: need %d bytes, have %d", total, size)}
	}

	entryTable := make([]byte, total-headerSize)
	if _, err := r.Seek(headerSize, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking DA container: %w", err)
	}
	if _, err := io.ReadFull(r, entryTable); err != nil {
		return nil, fmt.Errorf("reading DA container entries: %w", err)
	}

	entries := make([]daEntry, hdr.EntryCount)
	if err := binary.Read(bytes.NewReader(entryTable), binary.LittleEndian, entries); err != nil {
		return nil, fmt.Errorf("reading DA container entries: %w", err)
	}
	for i := range entries {
		if entries[i].Magic != daEntryMagic {
			return nil, &ContainerError{Msg: fmt.Sprintf("entry %d: bad entry magic 0x%08x", i, entries[i].Magic)}
		}
	}

	file, ok := r.(io.ReaderAt)
	if !ok {
		return nil, fmt.Errorf("DA container source does not support random access reads")
	}
	return &Container{file: file, header: hdr, entries: entries}, nil
}

// Select picks the DA entry matching the device's HW/SW identity (spec.md
// §4.3: the first entry whose hw_code matches exactly and whose hw_ver and
// sw_ver are at most the device's), then derives the Stage-1/Stage-2 load
// regions from it (spec.md §3's DA selection result).
func (c *Container) Select(hwCode, hwVer, swVer uint16) (*Selection, error) {
	for i := range c.entries {
		e := &c.entries[i]
		if e.HWCode == hwCode && e.HWVersion <= hwVer && e.SWVersion <= swVer {
			return c.selectRegions(i)
		}
	}
	return nil, &ContainerError{Msg: fmt.Sprintf("no DA entry matches hw_code=0x%04x hw_ver=0x%04x sw_ver=0x%04x", hwCode, hwVer, swVer)}
}

func (c *Container) selectRegions(entryIndex int) (*Selection, error) {
	e := &c.entries[entryIndex]

	if e.LoadRegionsCount > uint32(daEntryLoadRegions) {
		return nil, &ContainerError{Msg: fmt.Sprintf("entry %d: load_regions_count %d exceeds %d", entryIndex, e.LoadRegionsCount, daEntryLoadRegions)}
	}
	if e.EntryRegionIndex >= e.LoadRegionsCount {
		return nil, &ContainerError{Msg: fmt.Sprintf("entry %d: entry_region_index %d >= load_regions_count %d", entryIndex, e.EntryRegionIndex, e.LoadRegionsCount)}
	}

	stage1Index := -1
	for i := int(e.EntryRegionIndex); i < int(e.LoadRegionsCount); i++ {
		if e.LoadRegions[i].SigLen > 0 {
			stage1Index = i
			break
		}
	}
	if stage1Index < 0 {
		return nil, &ContainerError{Msg: fmt.Sprintf("entry %d: no signed load region at or after index %d", entryIndex, e.EntryRegionIndex)}
	}
	stage2Index := stage1Index + 1
	if stage2Index >= int(e.LoadRegionsCount) {
		return nil, &ContainerError{Msg: fmt.Sprintf("entry %d: no Stage-2 region following region %d", entryIndex, stage1Index)}
	}

	stage1 := e.LoadRegions[stage1Index]
	stage2 := e.LoadRegions[stage2Index]
	if err := validateRegion(stage1); err != nil {
		return nil, err
	}
	if err := validateRegion(stage2); err != nil {
		return nil, err
	}

	return &Selection{Entry: entryIndex, Stage1Region: stage1, Stage2Region: stage2}, nil
}

func validateRegion(r LoadRegion) error {
	if r.SigOffset+r.SigLen != r.Len {
		return &ContainerError{Msg: fmt.Sprintf("load region: sig_offset(%d)+sig_len(%d) != len(%d)", r.SigOffset, r.SigLen, r.Len)}
	}
	return nil
}

// RegionBytes reads the container payload bytes for r directly from the
// underlying file at its absolute offset, as they must be streamed onto the
// transport during Stage-1/Stage-2 upload.
func (c *Container) RegionBytes(r LoadRegion) ([]byte, error) {
	buf := make([]byte, r.Len)
	if _, err := c.file.ReadAt(buf, int64(r.Offset)); err != nil {
		return nil, fmt.Errorf("reading load region at offset %d: %w", r.Offset, err)
	}
	return buf, nil
}
