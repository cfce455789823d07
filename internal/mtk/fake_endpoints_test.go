package mtk

import (
	"bytes"
	"fmt"
)

// fakeEndpoints is an in-memory Endpoints double: rx is what the "device"
// will send to the host (pre-seeded by the test), tx records what the host
// sent. Used to drive the protocol clients end to end without real USB.
type fakeEndpoints struct {
	rx      *bytes.Buffer
	tx      *bytes.Buffer
	pktsize int
}

func newFakeEndpoints(pktsize int) *fakeEndpoints {
	return &fakeEndpoints{rx: new(bytes.Buffer), tx: new(bytes.Buffer), pktsize: pktsize}
}

func (f *fakeEndpoints) ReadBulk(buf []byte) (int, error) {
	n := len(buf)
	if f.rx.Len() < n {
		n = f.rx.Len()
	}
	if n == 0 {
		return 0, fmt.Errorf("fakeEndpoints: no more data queued from device")
	}
	return f.rx.Read(buf[:n])
}

func (f *fakeEndpoints) WriteBulk(buf []byte) (int, error) {
	return f.tx.Write(buf)
}

// feed queues bytes the fake device will emit to the host on the next reads.
func (f *fakeEndpoints) feed(b []byte) {
	f.rx.Write(b)
}
