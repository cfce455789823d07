package mtk

// USB identity (spec.md §6).
const (
	USBVendorID = 0x0E8D // MediaTek
)

// DA container constants (spec.md §3, §6).
const (
	daInfoMagic      uint32 = 0x22668899
	daInfoVersion    uint32 = 4 // the single supported DA_INFO header version
	daEntryMagic     uint32 = 0xDADADADA
	daEntryLoadRegions = 16 // fixed-size load_regions[N] slot count per entry

	daIdentifierLen  = 64
	daDescriptionLen = 64
)

// Preloader opcodes (spec.md §4.3).
const (
	opGetHWCode      = 0xFD
	opGetHWSWVer     = 0xFC
	opGetTargetConfig = 0xD8
	opDisableWDT     = 0xD4 // write32
	opSendDA         = 0xD7
	opJumpDA         = 0xD5

	// Ad-hoc BootROM queries interleaved before the Stage-1 upload
	// (spec.md §4.3): required by empirical device behavior, byte-exact.
	opGetBLVer  = 0xFE
	opGetBROMVer = 0xFF
)

// DA Stage-1/Stage-2 wire constants (spec.md §6).
const (
	mtkDASyncChar      = 0xC0
	mtkDAAck           = 0x5A
	mtkDAContChar      = 0x69
	mtkDASOCOk         = 0xC1
	mtkDANandNotFound  = 0xBC3
	mtkDAHostOSLinux   = 0x01
	mtkDAStorageSDMMC  = 0x02
	mtkDAEMMCPartUser  = 0x08
)

// DA Stage-2 opcodes (spec.md §4.5).
const (
	opUSBCheckStatus    = 0x72
	opSwitchPart        = 0x60
	opRead              = 0xD6
	opSDMMCWriteData    = 0x61
	opEnableWatchdog    = 0xDB
)

// Stage-1/Stage-2 chunk sizes (spec.md §4.4, §4.5).
const (
	stage1DAChunkSize  = 0x1000    // Preloader SEND_DA upload chunk
	stage2DeviceCfgChunkSize = 4096 // Stage-2 host->device config chunk_size field
	stage2ReadChunkSize  = 0x100000 // 1 MiB
	stage2WriteChunkSize = 0x100000 // 1 MiB
)

// postStage2ReportLengths are the seven fixed-length reports the device
// emits right after accepting Stage 2, consumed and discarded (spec.md
// §4.4). This exact sequence is a device-dictated protocol requirement,
// not an implementation detail — do not "clean it up".
var postStage2ReportLengths = [7]int{0x1c, 0x11, 0xE, 0x9, 0x5c, 0x1c, 0x26}
