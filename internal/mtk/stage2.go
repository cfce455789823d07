package mtk

// Stage2 drives the DA Stage-2 client: partition selection, block read/write
// with chunk framing and checksums, and watchdog-triggered reboot (spec.md
// §4.5).
type Stage2 struct {
	t *Transport
}

// NewStage2 wraps t in a Stage2 client.
func NewStage2(t *Transport) *Stage2 {
	return &Stage2{t: t}
}

// CheckUSBStatus issues USB_CHECK_STATUS (0x72) and validates the device
// reports a usable USB link.
func (s *Stage2) CheckUSBStatus() error {
	if err := s.t.WriteU8(opUSBCheckStatus); err != nil {
		return err
	}
	ack, err := s.t.ReadU8()
	if err != nil {
		return err
	}
	if ack != mtkDAAck {
		return protoErr("usb-check-status", "device returned 0x%02x instead of ACK", ack)
	}
	status, err := s.t.ReadU8()
	if err != nil {
		return err
	}
	if status != 1 {
		return protoErr("usb-check-status", "device did not return valid USB status: 0x%02x", status)
	}
	return nil
}

// SwitchPartition issues SWITCH_PART (0x60) for partID (typically
// EMMC_PART_USER).
func (s *Stage2) SwitchPartition(partID uint8) error {
	if err := s.t.WriteU8(opSwitchPart); err != nil {
		return err
	}
	if err := s.t.WriteU8(partID); err != nil {
		return err
	}
	ack, err := s.t.ReadU8()
	if err != nil {
		return err
	}
	if ack != mtkDAAck {
		return protoErr("switch-part", "device returned 0x%02x instead of ACK", ack)
	}
	return nil
}

func checksum16(buf []byte) uint16 {
	var sum uint32
	for _, b := range buf {
		sum += uint32(b)
	}
	return uint16(sum)
}

// Read performs a block read from storage (spec.md §4.5 "Read operation"),
// handing each received chunk to handler.ConsumeRx as it arrives so the full
// transfer is never buffered in memory.
func (s *Stage2) Read(storage uint8, addr, length uint64, handler IOHandler, report ProgressFunc) error {
	if err := s.t.WriteU8(opRead); err != nil {
		return err
	}
	if err := s.t.WriteU8(mtkDAHostOSLinux); err != nil {
		return err
	}
	if err := s.t.WriteU8(storage); err != nil {
		return err
	}
	if err := s.t.WriteU64(addr); err != nil {
		return err
	}
	if err := s.t.WriteU64(length); err != nil {
		return err
	}

	ack, err := s.t.ReadU8()
	if err != nil {
		return err
	}
	if ack != mtkDAAck {
		return protoErr("read", "device rejected read with 0x%02x", ack)
	}

	if err := s.t.WriteU32(stage2ReadChunkSize); err != nil {
		return err
	}

	buf := make([]byte, stage2ReadChunkSize)
	offset := uint64(0)
	for offset < length {
		chunkLen := uint64(stage2ReadChunkSize)
		if remaining := length - offset; remaining < chunkLen {
			chunkLen = remaining
		}
		chunk := buf[:chunkLen]
		if err := s.t.Read(chunk, int(chunkLen)); err != nil {
			return err
		}

		want := checksum16(chunk)
		got, err := s.t.ReadU16()
		if err != nil {
			return err
		}
		if got != want {
			return protoErr("read", "checksum mismatch at offset 0x%x: device said 0x%04x, computed 0x%04x", offset, got, want)
		}

		if err := s.t.WriteU8(mtkDAAck); err != nil {
			return err
		}
		if err := handler.ConsumeRx(offset, chunk); err != nil {
			return err
		}

		offset += chunkLen
		report.emit(ProgressEvent{Phase: "stage2-read", Offset: offset, Total: length})
	}
	return nil
}

// Write performs a block write to storage (spec.md §4.5 "Write operation"),
// pulling each chunk from handler.ProvideTx so the full transfer is never
// buffered in memory.
func (s *Stage2) Write(storage, partID uint8, addr, length uint64, handler IOHandler, report ProgressFunc) error {
	if err := s.t.WriteU8(opSDMMCWriteData); err != nil {
		return err
	}
	if err := s.t.WriteU8(storage); err != nil {
		return err
	}
	if err := s.t.WriteU8(partID); err != nil {
		return err
	}
	if err := s.t.WriteU64(addr); err != nil {
		return err
	}
	if err := s.t.WriteU64(length); err != nil {
		return err
	}
	if err := s.t.WriteU32(stage2WriteChunkSize); err != nil {
		return err
	}

	ack, err := s.t.ReadU8()
	if err != nil {
		return err
	}
	if ack != mtkDAAck {
		return protoErr("sdmmc-write-data", "device rejected write with 0x%02x", ack)
	}

	buf := make([]byte, stage2WriteChunkSize)
	offset := uint64(0)
	for offset < length {
		if err := s.t.WriteU8(mtkDAAck); err != nil {
			return err
		}

		chunkLen := uint64(stage2WriteChunkSize)
		if remaining := length - offset; remaining < chunkLen {
			chunkLen = remaining
		}
		chunk := buf[:chunkLen]
		if err := handler.ProvideTx(offset, chunk); err != nil {
			return err
		}
		if err := s.t.Write(chunk); err != nil {
			return err
		}
		if err := s.t.WriteU16(checksum16(chunk)); err != nil {
			return err
		}

		cont, err := s.t.ReadU8()
		if err != nil {
			return err
		}
		if cont != mtkDAContChar {
			return protoErr("sdmmc-write-data", "device ended transfer with 0x%02x instead of CONT_CHAR", cont)
		}

		offset += chunkLen
		report.emit(ProgressEvent{Phase: "stage2-write", Offset: offset, Total: length})
	}
	return nil
}

// EnableWatchdog issues ENABLE_WATCHDOG (0xDB). Rebooting the device after a
// flash/dump run uses timeoutMS=0, async=false, bootup=false, dlbit=false,
// notResetRTC=true (spec.md §4.5 "Reboot").
func (s *Stage2) EnableWatchdog(timeoutMS uint32, async, bootup, dlbit, notResetRTC bool) error {
	if err := s.t.WriteU8(opEnableWatchdog); err != nil {
		return err
	}
	if err := s.t.WriteU32(timeoutMS); err != nil {
		return err
	}
	for _, b := range []bool{async, bootup, dlbit, notResetRTC} {
		v := uint8(0)
		if b {
			v = 1
		}
		if err := s.t.WriteU8(v); err != nil {
			return err
		}
	}
	ack, err := s.t.ReadU8()
	if err != nil {
		return err
	}
	if ack != mtkDAAck {
		return protoErr("enable-watchdog", "device returned 0x%02x instead of ACK", ack)
	}
	return nil
}
