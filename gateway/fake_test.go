package gateway

import (
	"sync"
	"time"

	"github.com/nextabc-lab/swap"
)

const testGatewayAddress = 0x01

// 模拟射频网络：记录网关发送的数据包，由模拟设备同步应答
type fakeTransport struct {
	mu      sync.Mutex
	handler func(frame *swap.Frame)
	sent    [][]byte
	motes   []*fakeMote
	channel byte
	sync    uint16
	address byte
}

func newFakeTransport(motes ...*fakeMote) *fakeTransport {
	return &fakeTransport{
		motes:   motes,
		sync:    0xB547,
		address: testGatewayAddress,
	}
}

func (f *fakeTransport) Connect() error { return nil }
func (f *fakeTransport) Close() error   { return nil }

func (f *fakeTransport) OnFrame(handler func(frame *swap.Frame)) {
	f.mu.Lock()
	f.handler = handler
	f.mu.Unlock()
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	f.sent = append(f.sent, append([]byte(nil), data...))
	motes := f.motes
	f.mu.Unlock()
	pkt, err := swap.ParsePacket(&swap.Frame{Data: data})
	if nil != err {
		return err
	}
	for _, m := range motes {
		for _, reply := range m.respond(pkt) {
			f.deliver(reply)
		}
	}
	return nil
}

func (f *fakeTransport) deliver(pkt *swap.Packet) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if nil != handler {
		handler(&swap.Frame{Data: pkt.Bytes()})
	}
}

func (f *fakeTransport) packets() []*swap.Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*swap.Packet, 0, len(f.sent))
	for _, data := range f.sent {
		pkt, _ := swap.ParsePacket(&swap.Frame{Data: data})
		out = append(out, pkt)
	}
	return out
}

func (f *fakeTransport) lastSent() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if 0 == len(f.sent) {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// commandsTo 统计发往指定地址和寄存器的COMMAND数量
func (f *fakeTransport) commandsTo(addr byte, regId byte) int {
	count := 0
	for _, pkt := range f.packets() {
		if swap.FunctionCommand == pkt.Function && addr == pkt.DestAddress && regId == pkt.RegId {
			count++
		}
	}
	return count
}

func (f *fakeTransport) HwVersion() uint32   { return 0x0100 }
func (f *fakeTransport) FwVersion() uint32   { return 0x0105 }
func (f *fakeTransport) FreqChannel() byte   { return f.channel }
func (f *fakeTransport) SyncWord() uint16    { return f.sync }
func (f *fakeTransport) DeviceAddress() byte { return f.address }

func (f *fakeTransport) SetFreqChannel(channel byte) error {
	f.channel = channel
	return nil
}

func (f *fakeTransport) SetSyncWord(sync uint16) error {
	f.sync = sync
	return nil
}

func (f *fakeTransport) SetDeviceAddress(addr byte) error {
	f.address = addr
	return nil
}

////

type fakeMote struct {
	mu      sync.Mutex
	address byte
	nonce   byte
	code    []byte
	regs    map[byte]swap.Value
	// 不应答COMMAND
	silent bool
}

func newFakeMote(address byte, manufacturerId, productId uint32) *fakeMote {
	code := swap.ValueOfInt(uint64(manufacturerId)<<32|uint64(productId), 8)
	return &fakeMote{
		address: address,
		nonce:   0x10,
		code:    code.Bytes(),
		regs:    make(map[byte]swap.Value),
	}
}

func (m *fakeMote) info(regId byte, val swap.Value) *swap.Packet {
	m.nonce++
	return swap.NewInfo(m.address, m.nonce, 0, m.address, regId, val)
}

func (m *fakeMote) respond(pkt *swap.Packet) []*swap.Packet {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch pkt.Function {
	case swap.FunctionQuery:
		if swap.BroadcastAddress == pkt.DestAddress && swap.RegProductCode == pkt.RegId {
			return []*swap.Packet{m.info(swap.RegProductCode, swap.NewValue(m.code))}
		}
		if m.address == pkt.DestAddress {
			if val, ok := m.regs[pkt.RegId]; ok {
				return []*swap.Packet{m.info(pkt.RegId, val)}
			}
		}
	case swap.FunctionCommand:
		if m.address != pkt.DestAddress || m.silent {
			return nil
		}
		m.regs[pkt.RegId] = pkt.Value
		if swap.RegDeviceAddr == pkt.RegId {
			m.address = byte(pkt.Value.ToInteger())
		}
		return []*swap.Packet{m.info(pkt.RegId, pkt.Value)}
	}
	return nil
}

////

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) observe(event Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *eventRecorder) count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if t == e.Type {
			n++
		}
	}
	return n
}

func (r *eventRecorder) last(t EventType) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if t == r.events[i].Type {
			return r.events[i], true
		}
	}
	return Event{}, false
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.AckTimeout = time.Millisecond * 20
	opts.RepeaterWindow = 0
	return opts
}

func newTestGateway(transport *fakeTransport, profiles ProfileRepository) (*Gateway, *eventRecorder) {
	gw := New(transport, profiles, testOptions())
	recorder := new(eventRecorder)
	gw.Observe(recorder.observe)
	return gw, recorder
}
