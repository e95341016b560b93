package serialport

import "bytes"

// Mock is a test-only Backend driven by a scripted sequence of exchanges,
// in the same spirit as tamzrod-modbus-replicator's fakeClient: each call
// consumes one scripted Exchange and asserts nothing about ordering beyond
// what the caller enforces by writing the script in call order.
type Mock struct {
	Exchanges []Exchange
	pos       int

	ClearCalls     int
	TransmitCalls  int
	TransceiveCall int
	ReceiveCalls   int
}

// Exchange describes one scripted request/response pair. WantWrite, when
// non-nil, is compared against the bytes passed to Transmit/Transceive;
// a mismatch fails the call (returns ok=false) the same way a real port
// would on a bus collision. Resp is returned for Transceive/Receive.
// OK overrides the default success flag (true unless Resp is shorter than
// the expectedLen passed to Transceive/Receive; WantLen is not consulted).
type Exchange struct {
	WantWrite []byte
	Resp      []byte
	WantLen   int
	OK        *bool
}

func NewMock(exchanges ...Exchange) *Mock {
	return &Mock{Exchanges: exchanges}
}

func (m *Mock) next() (Exchange, bool) {
	if m.pos >= len(m.Exchanges) {
		return Exchange{}, false
	}
	e := m.Exchanges[m.pos]
	m.pos++
	return e, true
}

func (m *Mock) ClearInput() bool {
	m.ClearCalls++
	return true
}

func (m *Mock) Transmit(data []byte) bool {
	m.TransmitCalls++
	e, ok := m.next()
	if !ok {
		return false
	}
	if e.WantWrite != nil && !bytes.Equal(e.WantWrite, data) {
		return false
	}
	if e.OK != nil {
		return *e.OK
	}
	return true
}

func (m *Mock) Transceive(data []byte, expectedLen int) ([]byte, bool) {
	m.TransceiveCall++
	e, ok := m.next()
	if !ok {
		return nil, false
	}
	if e.WantWrite != nil && !bytes.Equal(e.WantWrite, data) {
		return nil, false
	}
	if e.OK != nil {
		return e.Resp, *e.OK
	}
	return e.Resp, len(e.Resp) >= expectedLen
}

func (m *Mock) Receive(expectedLen int) ([]byte, bool) {
	m.ReceiveCalls++
	e, ok := m.next()
	if !ok {
		return nil, false
	}
	if e.OK != nil {
		return e.Resp, *e.OK
	}
	return e.Resp, len(e.Resp) >= expectedLen
}

// Exhausted reports whether every scripted exchange has been consumed.
func (m *Mock) Exhausted() bool { return m.pos >= len(m.Exchanges) }

// BoolPtr is a small helper for building Exchange.OK literals inline.
func BoolPtr(b bool) *bool { return &b }
