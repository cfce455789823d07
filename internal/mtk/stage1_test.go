package mtk

import "testing"

func TestStage1ReadPassInfoImmediateAck(t *testing.T) {
	ep := newFakeEndpoints(64)
	var resp []byte
	resp = appendU8(resp, mtkDAAck)  // ack
	resp = appendU8(resp, 0)         // pad
	resp = appendU32(resp, 0x1234)   // download_status
	resp = appendU32(resp, 0x5678)   // boot_style
	ep.feed(resp)

	tr := NewTransport(ep, 64, false)
	s1 := NewStage1(tr)

	pi, err := s1.ReadPassInfo()
	if err != nil {
		t.Fatalf("ReadPassInfo: %v", err)
	}
	if pi.DownloadStatus != 0x1234 {
		t.Fatalf("DownloadStatus = 0x%x, want 0x1234", pi.DownloadStatus)
	}
	if pi.BootStyle != 0x5678 {
		t.Fatalf("BootStyle = 0x%x, want 0x5678", pi.BootStyle)
	}
	if pi.SOCOk != 0 {
		t.Fatalf("SOCOk = 0x%02x, want 0 (no trailing read on immediate ack)", pi.SOCOk)
	}
}

func TestStage1ReadPassInfoDownloadStatusAckValidatesSOC(t *testing.T) {
	ep := newFakeEndpoints(64)
	var resp []byte
	resp = appendU8(resp, 0x00)         // ack != ACK
	resp = appendU8(resp, 0)            // pad
	resp = appendU32(resp, uint32(mtkDAAck)) // download_status == ACK
	resp = appendU32(resp, 0)           // boot_style
	resp = append(resp, 0, 0, 0)        // 3 discarded trailing bytes
	resp = appendU8(resp, mtkDASOCOk)   // soc_ok
	ep.feed(resp)

	tr := NewTransport(ep, 64, false)
	s1 := NewStage1(tr)

	pi, err := s1.ReadPassInfo()
	if err != nil {
		t.Fatalf("ReadPassInfo: %v", err)
	}
	if pi.SOCOk != mtkDASOCOk {
		t.Fatalf("SOCOk = 0x%02x, want 0x%02x", pi.SOCOk, mtkDASOCOk)
	}
}

func TestStage1ReadPassInfoBadSOCIsProtocolError(t *testing.T) {
	ep := newFakeEndpoints(64)
	var resp []byte
	resp = appendU8(resp, 0x00)
	resp = appendU8(resp, 0)
	resp = appendU32(resp, uint32(mtkDAAck))
	resp = appendU32(resp, 0)
	resp = append(resp, 0, 0, 0)
	resp = appendU8(resp, 0xFF) // not SOC_OK
	ep.feed(resp)

	tr := NewTransport(ep, 64, false)
	s1 := NewStage1(tr)

	if _, err := s1.ReadPassInfo(); err == nil {
		t.Fatal("expected a protocol error for a bad SOC status")
	}
}
