package mtk

import "time"

// SyncResult is what DA Stage-1 reports immediately after the Preloader
// jump (spec.md §4.4).
type SyncResult struct {
	NANDRet  uint32
	EMMCRet  uint32
	EMMCID   [4]uint32
	DAMajor  uint8
	DAMinor  uint8
}

// Stage1 drives the DA Stage-1 hand-off: post-jump sync, Stage-2 upload, and
// the resulting pass/fail report.
type Stage1 struct {
	t *Transport
}

// NewStage1 wraps t in a Stage1 client.
func NewStage1(t *Transport) *Stage1 {
	return &Stage1{t: t}
}

// Sync reads the post-jump sync byte and the NAND/eMMC probe results, acks,
// and reads the DA version (spec.md §4.4 steps 1-6). The caller must check
// NANDRet == NAND_NOT_FOUND and EMMCRet == 0; eMMC targets never report a
// NAND controller.
func (s *Stage1) Sync() (SyncResult, error) {
	var r SyncResult

	syncChar, err := s.t.ReadU8()
	if err != nil {
		return r, err
	}
	if syncChar != mtkDASyncChar {
		return r, protoErr("stage1-sync", "expected sync char 0x%02x, got 0x%02x", mtkDASyncChar, syncChar)
	}

	if r.NANDRet, err = s.t.ReadU32(); err != nil {
		return r, err
	}

	nandCount, err := s.t.ReadU16()
	if err != nil {
		return r, err
	}
	if err := s.t.Discard(int(nandCount) * 2); err != nil {
		return r, err
	}

	if r.EMMCRet, err = s.t.ReadU32(); err != nil {
		return r, err
	}

	for i := range r.EMMCID {
		if r.EMMCID[i], err = s.t.ReadU32(); err != nil {
			return r, err
		}
	}

	if err := s.t.WriteU8(mtkDAAck); err != nil {
		return r, err
	}

	if r.DAMajor, err = s.t.ReadU8(); err != nil {
		return r, err
	}
	if r.DAMinor, err = s.t.ReadU8(); err != nil {
		return r, err
	}
	// da_patch: discarded.
	if err := s.t.Discard(1); err != nil {
		return r, err
	}

	return r, nil
}

// sendDeviceConfig sends the fixed byte sequence the device expects ahead of
// the Stage-2 upload (spec.md §6). Every field is a device-dictated
// constant; none of it is computed from the DA container or device
// identity.
func (s *Stage1) sendDeviceConfig() error {
	writes := []struct {
		write func() error
	}{
		{func() error { return s.t.WriteU8(0xFF) }},       // bromver
		{func() error { return s.t.WriteU8(0x01) }},       // blver
		{func() error { return s.t.WriteU16(0x0008) }},    // nor_chip
		{func() error { return s.t.WriteU8(0x00) }},       // nor_chip_select
		{func() error { return s.t.WriteU32(0x7007FFFF) }}, // nand_acccon
		{func() error { return s.t.WriteU8(0x01) }},       // bmtflag
		{func() error { return s.t.WriteU32(0x00000000) }}, // bmtpartsize
		{func() error { return s.t.WriteU8(0x02) }},       // force_charge
		{func() error { return s.t.WriteU8(0x01) }},       // resetkeys
		{func() error { return s.t.WriteU8(0x02) }},       // ext_clock
		{func() error { return s.t.WriteU8(0x00) }},       // msdc_boot_ch
	}
	for _, w := range writes {
		if err := w.write(); err != nil {
			return err
		}
	}
	return nil
}

// SendDA uploads the Stage-2 region using the richer Stage-2 send protocol
// (spec.md §4.4 "Send-DA (Stage-2)"). region is the Stage-2 load region
// selected from the DA container; payload is its bytes.
func (s *Stage1) SendDA(region LoadRegion, payload []byte, report ProgressFunc) error {
	if err := s.sendDeviceConfig(); err != nil {
		return err
	}

	time.Sleep(350 * time.Millisecond)
	if _, err := s.t.ReadU32(); err != nil { // cfg_echo: informational only
		return err
	}

	if err := s.t.WriteU32(region.StartAddr); err != nil {
		return err
	}
	total := uint64(len(payload))
	if err := s.t.WriteU32(uint32(total)); err != nil {
		return err
	}
	if err := s.t.WriteU32(stage2DeviceCfgChunkSize); err != nil {
		return err
	}

	ack, err := s.t.ReadU8()
	if err != nil {
		return err
	}
	if ack != mtkDAAck {
		return protoErr("stage2-send-da", "device rejected upload with 0x%02x", ack)
	}

	sent := uint64(0)
	for sent < total {
		chunkLen := uint64(stage2DeviceCfgChunkSize)
		if remaining := total - sent; remaining < chunkLen {
			chunkLen = remaining
		}
		if err := s.t.Write(payload[sent : sent+chunkLen]); err != nil {
			return err
		}
		sent += chunkLen

		ack, err := s.t.ReadU8()
		if err != nil {
			return err
		}
		if ack != mtkDAAck {
			return protoErr("stage2-send-da", "device aborted upload mid-chunk with 0x%02x", ack)
		}
		report.emit(ProgressEvent{Phase: "stage2-upload", Offset: sent, Total: total})
	}

	time.Sleep(500 * time.Millisecond)
	if err := s.t.WriteU8(mtkDAAck); err != nil {
		return err
	}
	finalAck, err := s.t.ReadU8()
	if err != nil {
		return err
	}
	if finalAck != mtkDAAck {
		return protoErr("stage2-send-da", "device did not confirm upload, got 0x%02x", finalAck)
	}
	return nil
}

// DrainPostStage2Reports reads and discards the seven fixed-length reports
// the device emits right after accepting Stage 2 (spec.md §4.4, §9). The
// lengths are a device-dictated constant sequence, not derived from
// anything; do not reorder or resize them.
func (s *Stage1) DrainPostStage2Reports() error {
	for _, n := range postStage2ReportLengths {
		if err := s.t.Discard(n); err != nil {
			return err
		}
	}
	return nil
}

// ReadPassInfo reads the fixed 10-byte PassInfo header (ack, a pad byte,
// download_status, boot_style) and, if Ack is not ACK but DownloadStatus is,
// reads the four trailing status bytes and validates SOC_OK (spec.md §3,
// §4.4). SOCOk is only populated by that conditional trailing read; it stays
// zero when Ack already signals success.
func (s *Stage1) ReadPassInfo() (PassInfo, error) {
	var pi PassInfo
	var err error

	if pi.Ack, err = s.t.ReadU8(); err != nil {
		return pi, err
	}
	if err = s.t.Discard(1); err != nil { // pad
		return pi, err
	}
	if pi.DownloadStatus, err = s.t.ReadU32(); err != nil {
		return pi, err
	}
	if pi.BootStyle, err = s.t.ReadU32(); err != nil {
		return pi, err
	}

	if pi.Ack == mtkDAAck {
		return pi, nil
	}

	if pi.DownloadStatus == mtkDAAck {
		for i := 0; i < 3; i++ {
			if _, err := s.t.ReadU8(); err != nil {
				return pi, err
			}
		}
		soc, err := s.t.ReadU8()
		if err != nil {
			return pi, err
		}
		pi.SOCOk = soc
		if soc != mtkDASOCOk {
			return pi, protoErr("pass-info", "SOC status 0x%02x != SOC_OK", soc)
		}
	}

	return pi, nil
}
