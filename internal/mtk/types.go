package mtk

// DeviceState is the orchestrator's three-state progression. It only ever
// advances: None -> Preloader -> Stage2.
type DeviceState int

const (
	// StateNone means the device was just detected over USB and has not yet
	// been synced with the BootROM/Preloader.
	StateNone DeviceState = iota
	// StatePreloader means the BootROM/Preloader is speaking and ready for
	// the DA upload sequence.
	StatePreloader
	// StateStage2 means DA Stage 2 is running and ready for block I/O.
	StateStage2
)

func (s DeviceState) String() string {
	switch s {
	case StateNone:
		return "none"
	case StatePreloader:
		return "preloader"
	case StateStage2:
		return "stage2"
	default:
		return "unknown"
	}
}

// OperationKind distinguishes a storage read from a storage write.
type OperationKind int

const (
	// OpDump reads length bytes starting at address out of the device.
	OpDump OperationKind = iota
	// OpFlash writes length bytes starting at address into the device.
	OpFlash
)

func (k OperationKind) String() string {
	if k == OpFlash {
		return "flash"
	}
	return "dump"
}

// IOHandler bridges the Stage-2 transfer loop to a host file without the
// core ever buffering a whole flash image. ProvideTx is called to fill buf
// with the next count bytes to send (a Flash operation); ConsumeRx is
// called to persist the count bytes just received (a Dump operation).
// offset is the operation-relative byte offset, always monotone from 0.
type IOHandler interface {
	ProvideTx(offset uint64, buf []byte) error
	ConsumeRx(offset uint64, buf []byte) error
}

// Operation is a single I/O request: dump length bytes starting at address
// to Handler, or flash length bytes starting at address from Handler.
// Created by the CLI layer from user input, consumed exactly once by the
// Stage-2 client.
type Operation struct {
	Kind    OperationKind
	Address uint64
	Length  uint64
	Handler IOHandler
}

// Validate enforces the data-model invariant length > 0. The "Flash source
// must contain at least length bytes" invariant is checked by the caller
// that owns the file (see cmd/mtkflash), since the core
// never opens host files itself.
func (o *Operation) Validate() error {
	if o.Length == 0 {
		return &UsageError{Msg: "zero-length operation"}
	}
	return nil
}

// PassInfo is the post-Stage-2 handshake structure. The fixed header is 10
// bytes on the wire: ack + 1 byte padding + two big-endian u32 fields.
// SOCOk is only filled in when DownloadStatus == ACK, from the last byte of
// a separate conditional 4-byte trailing read.
type PassInfo struct {
	Ack            uint8
	DownloadStatus uint32
	BootStyle      uint32
	SOCOk          uint8
}

// ProgressEvent is an optional side-channel snapshot of orchestrator
// progress, consumed by the CLI's plain-text printer, the interactive TUI,
// and/or the local status HTTP endpoint. The core protocol logic never
// reads it back — it is purely observational.
type ProgressEvent struct {
	Phase          string
	OperationIndex int
	OperationCount int
	Offset         uint64
	Total          uint64
}

// ProgressFunc receives ProgressEvents as the orchestrator advances. A nil
// ProgressFunc is a valid, zero-cost no-op.
type ProgressFunc func(ProgressEvent)

func (f ProgressFunc) emit(ev ProgressEvent) {
	if f != nil {
		f(ev)
	}
}
