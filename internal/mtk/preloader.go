package mtk

import (
	"fmt"
	"time"
)

// syncKick/syncEcho are the BootROM handshake bytes: the host repeatedly
// sends a kick byte until the BootROM, which resets its USB stack on power-on
// and may not be listening yet, replies with the bit-inverted echo. Four
// rounds confirm the link is alive in both directions before any real
// command is issued.
var (
	syncKick = [4]uint8{0xA0, 0x0A, 0x50, 0x05}
	syncEcho = [4]uint8{0x5F, 0xF5, 0xAF, 0xFA}
)

const syncMaxAttempts = 1000

// Sync performs the initial BootROM handshake (spec.md §4.6, "a short
// byte-level dance until the device responds with a known sync pattern").
// It is only needed when the device starts in StateNone; a device already
// declared Preloader or Stage2 skips it.
func Sync(t *Transport) error {
	for attempt := 0; ; attempt++ {
		if attempt >= syncMaxAttempts {
			return protoErr("sync", "no response from BootROM after %d attempts", syncMaxAttempts)
		}

		ok := true
		for i, kick := range syncKick {
			if err := t.WriteU8(kick); err != nil {
				return err
			}
			reply, err := t.ReadU8()
			if err != nil {
				return err
			}
			if reply != syncEcho[i] {
				ok = false
				break
			}
		}
		if ok {
			return nil
		}
	}
}

// HWIdentity is the device's reported HW/SW identity, used to select a DA
// container entry (spec.md §4.3).
type HWIdentity struct {
	HWCode    uint16
	HWSubCode uint16
	HWVer     uint16
	SWVer     uint16
}

// Preloader speaks the BootROM/Preloader command protocol over a Transport:
// identity queries, watchdog disable, staged code upload and jump.
type Preloader struct {
	t *Transport
}

// NewPreloader wraps t in a Preloader client.
func NewPreloader(t *Transport) *Preloader {
	return &Preloader{t: t}
}

func (p *Preloader) checkStatus(op string, status uint16) error {
	if status != 0 {
		return protoErr(op, "device returned non-zero status 0x%04x", status)
	}
	return nil
}

// GetHWCode issues GET_HW_CODE (0xFD).
func (p *Preloader) GetHWCode() (uint16, error) {
	if err := p.t.WriteU8(opGetHWCode); err != nil {
		return 0, err
	}
	hwCode, err := p.t.ReadU16()
	if err != nil {
		return 0, err
	}
	status, err := p.t.ReadU16()
	if err != nil {
		return 0, err
	}
	if err := p.checkStatus("GET_HW_CODE", status); err != nil {
		return 0, err
	}
	return hwCode, nil
}

// GetHWSWVer issues GET_HW_SW_VER (0xFC).
func (p *Preloader) GetHWSWVer() (hwSubCode, hwVer, swVer uint16, err error) {
	if err = p.t.WriteU8(opGetHWSWVer); err != nil {
		return
	}
	if hwSubCode, err = p.t.ReadU16(); err != nil {
		return
	}
	if hwVer, err = p.t.ReadU16(); err != nil {
		return
	}
	if swVer, err = p.t.ReadU16(); err != nil {
		return
	}
	status, e := p.t.ReadU16()
	if e != nil {
		err = e
		return
	}
	err = p.checkStatus("GET_HW_SW_VER", status)
	return
}

// GetTargetConfig issues GET_TARGET_CONFIG (0xD8).
func (p *Preloader) GetTargetConfig() (uint32, error) {
	if err := p.t.WriteU8(opGetTargetConfig); err != nil {
		return 0, err
	}
	cfg, err := p.t.ReadU32()
	if err != nil {
		return 0, err
	}
	status, err := p.t.ReadU16()
	if err != nil {
		return 0, err
	}
	if err := p.checkStatus("GET_TARGET_CONFIG", status); err != nil {
		return 0, err
	}
	return cfg, nil
}

// DisableWDT issues the watchdog-disable WRITE32 (0xD4) with the fixed
// register/value pair the BootROM expects.
func (p *Preloader) DisableWDT() error {
	const wdtRegister = 0x10007000
	const wdtDisablePattern = 0x22000064

	if err := p.t.WriteU8(opDisableWDT); err != nil {
		return err
	}
	if err := p.t.WriteU32(wdtRegister); err != nil {
		return err
	}
	if err := p.t.WriteU32(wdtDisablePattern); err != nil {
		return err
	}
	status, err := p.t.ReadU16()
	if err != nil {
		return err
	}
	return p.checkStatus("WRITE32", status)
}

// Identify runs GET_HW_CODE, GET_HW_SW_VER, and GET_TARGET_CONFIG in the
// order the Preloader expects and returns the combined identity.
func (p *Preloader) Identify() (HWIdentity, uint32, error) {
	hwCode, err := p.GetHWCode()
	if err != nil {
		return HWIdentity{}, 0, fmt.Errorf("GET_HW_CODE: %w", err)
	}
	hwSubCode, hwVer, swVer, err := p.GetHWSWVer()
	if err != nil {
		return HWIdentity{}, 0, fmt.Errorf("GET_HW_SW_VER: %w", err)
	}
	cfg, err := p.GetTargetConfig()
	if err != nil {
		return HWIdentity{}, 0, fmt.Errorf("GET_TARGET_CONFIG: %w", err)
	}
	return HWIdentity{HWCode: hwCode, HWSubCode: hwSubCode, HWVer: hwVer, SWVer: swVer}, cfg, nil
}

// BROMQuery is the set of values read (and mostly discarded) by the
// pre-Stage-1 ad-hoc BootROM query dance.
type BROMQuery struct {
	BLVer   uint8
	BROMVer uint8
}

// RunBROMQueryDance reproduces, byte for byte, the pre-Stage-1 sequence of
// single-byte opcode queries observed on real devices (spec.md §4.3, §9):
// target config, BL version, BROM version, HW/SW version (the latter
// followed by a 1-byte read, an undocumented 50ms sleep and an 8-byte read,
// all discarded), and then a second,
// duplicate BL version read. Several of these values are never interpreted
// again. This is deliberate: the device has only been validated against this
// exact sequence, so nothing here is "cleaned up" even though it looks
// redundant.
func (p *Preloader) RunBROMQueryDance() (BROMQuery, error) {
	var q BROMQuery

	if err := p.t.EchoU8(opGetTargetConfig); err != nil {
		return q, err
	}
	if err := p.t.Discard(6); err != nil {
		return q, err
	}

	blVer, err := p.queryByte(opGetBLVer)
	if err != nil {
		return q, err
	}
	q.BLVer = blVer

	bromVer, err := p.queryByte(opGetBROMVer)
	if err != nil {
		return q, err
	}
	q.BROMVer = bromVer

	if err := p.t.WriteU8(opGetHWSWVer); err != nil {
		return q, err
	}
	if err := p.t.Discard(1); err != nil {
		return q, err
	}
	time.Sleep(50 * time.Millisecond)
	if err := p.t.Discard(8); err != nil {
		return q, err
	}

	if _, err := p.queryByte(opGetBLVer); err != nil {
		return q, err
	}

	return q, nil
}

func (p *Preloader) queryByte(opcode uint8) (uint8, error) {
	if err := p.t.WriteU8(opcode); err != nil {
		return 0, err
	}
	return p.t.ReadU8()
}

// SendDA streams a load region to the device via SEND_DA (0xD7), reporting
// progress through report as it goes. region must be the Stage-1 region
// selected from the DA container.
func (p *Preloader) SendDA(region LoadRegion, payload []byte, report ProgressFunc) error {
	if err := p.t.WriteU8(opSendDA); err != nil {
		return err
	}
	if err := p.t.WriteU32(region.StartAddr); err != nil {
		return err
	}
	if err := p.t.WriteU32(region.Len); err != nil {
		return err
	}
	if err := p.t.WriteU32(region.SigLen); err != nil {
		return err
	}

	preStatus, err := p.t.ReadU16()
	if err != nil {
		return err
	}
	if err := p.checkStatus("SEND_DA (pre)", preStatus); err != nil {
		return err
	}

	sent := uint64(0)
	total := uint64(len(payload))
	for sent < total {
		chunkLen := uint64(stage1DAChunkSize)
		if remaining := total - sent; remaining < chunkLen {
			chunkLen = remaining
		}
		chunk := payload[sent : sent+chunkLen]
		if err := p.t.Write(chunk); err != nil {
			return err
		}
		sent += chunkLen
		report.emit(ProgressEvent{Phase: "stage1-upload", Offset: sent, Total: total})
	}

	postStatus, err := p.t.ReadU16()
	if err != nil {
		return err
	}
	return p.checkStatus("SEND_DA (post)", postStatus)
}

// JumpDA issues JUMP_DA (0xD5) to hand off execution to the just-uploaded
// Stage-1 code. After this call the device no longer speaks Preloader.
func (p *Preloader) JumpDA(addr uint32) error {
	if err := p.t.WriteU8(opJumpDA); err != nil {
		return err
	}
	if err := p.t.WriteU32(addr); err != nil {
		return err
	}
	status, err := p.t.ReadU16()
	if err != nil {
		return err
	}
	return p.checkStatus("JUMP_DA", status)
}
