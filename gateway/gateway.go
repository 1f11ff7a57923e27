package gateway

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/nextabc-lab/swap"
	"github.com/nextabc-lab/swap/util"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//
// Gateway 是SWAP协议引擎：维护网络拓扑(设备/寄存器/Endpoint)，分发接收到的数据包，
// 执行命令应答与重试，以及向全网设备下发网络参数。
// 拓扑数据保存在网关持有的切片中，相互之间使用索引(Handle)引用。
//

var (
	ErrUnknownMote     = errors.New("unknown mote")
	ErrUnknownRegister = errors.New("unknown register")
	ErrUnknownEndpoint = errors.New("unknown endpoint")
	ErrNotConnected    = errors.New("gateway not connected")
	ErrValueRange      = errors.New("value out of range")
	ErrAckTimeout      = errors.New("ack timeout")
	ErrMoteAsleep      = errors.New("mote is in power-down mode")
)
	ErrUnknownRegister  = errors.New("unknown register")
	ErrUnknownEndpoint  = errors.New("unknown endpoint")
	ErrNotConnected     = errors.New("gateway not connected")
	ErrValueRange       = errors.New("value out of range")
	ErrAckTimeout       = errors.New("ack timeout")
	ErrMoteAsleep       = errors.New("mote is in power-down mode")
)

type Gateway struct {
	transport Transport
	profiles  ProfileRepository
	opts      Options
	log       *zap.SugaredLogger

	// 拓扑和应答状态
	mu *sync.Mutex
	// 需要等待应答的操作互斥，保证同一时间只有一个应答期望
	ctrl *sync.Mutex

	connected   bool
	motes       []*mote
	registers   []*register
	endpoints   []*endpoint
	address     byte
	nonce       byte
	security    byte
	freqChannel byte
	netId       uint16
	local       map[byte]swap.Value

	expect  *expectation
	acks    util.Lazy
	repeats *swap.ExpiringMap

	obsLock   *sync.RWMutex
	observers []Observer
}

func New(transport Transport, profiles ProfileRepository, opts Options) *Gateway {
	if nil == profiles {
		profiles = NewMemoryProfiles()
	}
	if nil == opts.Logger {
		opts.Logger = swap.ZapSugarLogger
	}
	if opts.MaxTries < 1 {
		opts.MaxTries = 1
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = DefaultAckTimeout
	}
	return &Gateway{
		transport: transport,
		profiles:  profiles,
		opts:      opts,
		log:       opts.Logger,
		mu:        new(sync.Mutex),
		ctrl:      new(sync.Mutex),
		security:  opts.Security & swap.MaxSecurityOption,
		local:     make(map[byte]swap.Value),
		acks:      util.NewLazy(),
		repeats:   swap.NewExpiringMap(),
		obsLock:   new(sync.RWMutex),
	}
}

// Observe 注册事件回调
func (g *Gateway) Observe(observer Observer) {
	g.obsLock.Lock()
	g.observers = append(g.observers, observer)
	g.obsLock.Unlock()
}

// Connect 连接Modem，清空拓扑，并广播查询产品码以发现设备
func (g *Gateway) Connect() error {
	g.transport.OnFrame(g.HandleFrame)
	if err := g.transport.Connect(); nil != err {
		return errors.WithMessage(err, "connect modem")
	}
	g.mu.Lock()
	g.motes, g.registers, g.endpoints = nil, nil, nil
	g.expect = nil
	g.address = g.transport.DeviceAddress()
	g.freqChannel = g.transport.FreqChannel()
	g.netId = g.transport.SyncWord()
	g.initLocalRegisters()
	g.connected = true
	g.mu.Unlock()
	motesGauge.Set(0)

	g.log.Infof("网关已连接: 地址=%02X, 信道=%d, 网络ID=%04X", g.address, g.freqChannel, g.netId)
	return g.sendPacket(swap.NewQuery(g.address, g.security, swap.BroadcastAddress, swap.BroadcastAddress, swap.RegProductCode))
}

// Disconnect 断开Modem
func (g *Gateway) Disconnect() error {
	g.mu.Lock()
	g.connected = false
	g.expect = nil
	g.mu.Unlock()
	return g.transport.Close()
}

func (g *Gateway) IsConnected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}

// HandleFrame 处理Modem接收到的射频数据帧。无效数据帧被丢弃。
func (g *Gateway) HandleFrame(frame *swap.Frame) {
	pkt, err := swap.ParsePacket(frame)
	if nil != err {
		framesDropped.WithLabelValues("malformed").Inc()
		g.log.Debug("丢弃无效数据包: ", err)
		return
	}
	framesReceived.WithLabelValues(pkt.Function.String()).Inc()
	if g.isRepeated(pkt) {
		framesDropped.WithLabelValues("repeated").Inc()
		return
	}
	out := new(outbox)
	g.mu.Lock()
	g.dispatch(pkt, out)
	g.mu.Unlock()
	g.flush(out)
}

// 重复包过滤表容量上限
const maxRepeaterEntries = 256

// 中继设备转发的数据包只有跳数不同，在时间窗口内只处理一次
func (g *Gateway) isRepeated(pkt *swap.Packet) bool {
	if g.opts.RepeaterWindow <= 0 {
		return false
	}
	raw := pkt.Bytes()
	raw[2] &= 0x0F
	if g.repeats.Len() >= maxRepeaterEntries {
		g.repeats.Purge()
		for g.repeats.Len() >= maxRepeaterEntries {
			key, ok := g.repeats.Oldest()
			if !ok {
				break
			}
			g.repeats.Del(key)
		}
	}
	return !g.repeats.Add(hex.EncodeToString(raw), nil, g.opts.RepeaterWindow)
}

func (g *Gateway) dispatch(pkt *swap.Packet, out *outbox) {
	switch pkt.Function {
	case swap.FunctionInfo:
		g.onInfo(pkt, out)

	case swap.FunctionQuery:
		if pkt.DestAddress == g.address {
			g.onLocalQuery(pkt, out)
		}

	case swap.FunctionCommand:
		if pkt.DestAddress == g.address && pkt.DestAddress == pkt.RegAddress {
			g.onLocalCommand(pkt, out)
		}

	default:
		framesDropped.WithLabelValues("function").Inc()
	}
}

func (g *Gateway) onInfo(pkt *swap.Packet, out *outbox) {
	if nil != g.expect && g.expect.match(pkt) {
		g.acks.Store(pkt)
		g.expect = nil
	}
	if m := g.moteByAddress(pkt.SrcAddress); nil != m {
		m.nonce = pkt.Nonce
		m.security = pkt.Security
		m.lastSeen = time.Now()
	}
	switch pkt.RegId {
	case swap.RegProductCode:
		g.onProductCode(pkt, out)
	case swap.RegDeviceAddr:
		g.onDeviceAddress(pkt, out)
	case swap.RegSystemState:
		g.onSystemState(pkt, out)
	default:
		g.onRegisterInfo(pkt, out)
	}
}

func (g *Gateway) onProductCode(pkt *swap.Packet, out *outbox) {
	if swap.ProductCodeLength != pkt.Value.Len() {
		framesDropped.WithLabelValues("product_code").Inc()
		return
	}
	if nil != g.moteByAddress(pkt.SrcAddress) {
		return
	}
	m := newMote(pkt.Value.Bytes(), pkt.SrcAddress)
	m.nonce = pkt.Nonce
	m.security = pkt.Security
	m.handle = MoteHandle(len(g.motes))
	profile, found := g.profiles.Lookup(m.manufacturerId, m.productId)
	if found {
		m.powerDown = profile.PowerDown
		m.manufacturer = profile.Manufacturer
		m.product = profile.Product
	} else {
		g.log.Warnf("未找到设备描述: %08X:%08X, 地址=%02X", m.manufacturerId, m.productId, m.address)
	}
	g.motes = append(g.motes, m)
	motesGauge.Set(float64(g.moteCount()))
	g.log.Infof("发现设备: %08X:%08X, 地址=%02X", m.manufacturerId, m.productId, m.address)
	out.add(Event{Type: EventMoteDiscovered, Mote: m.snapshot()})
	if found {
		g.createEndpoints(m, profile, out)
	}
}

func (g *Gateway) createEndpoints(m *mote, profile *Profile, out *outbox) {
	for _, rp := range profile.Registers {
		reg := &register{
			handle: RegisterHandle(len(g.registers)),
			mote:   m.handle,
			id:     rp.Id,
			value:  swap.NewValue(make([]byte, rp.RegisterSize())),
		}
		g.registers = append(g.registers, reg)
		m.registers = append(m.registers, reg.handle)
		for _, epp := range rp.Endpoints {
			ep := &endpoint{
				handle:   EndpointHandle(len(g.endpoints)),
				register: reg.handle,
				profile:  epp,
			}
			if _, err := ep.update(reg.value); nil != err {
				g.log.Errorf("Endpoint(%s)位置无效: %s", epp.Name, err)
				continue
			}
			g.endpoints = append(g.endpoints, ep)
			reg.endpoints = append(reg.endpoints, ep.handle)
			out.add(Event{Type: EventEndpointDiscovered, Mote: m.snapshot(), Endpoint: g.endpointSnapshot(ep)})
		}
	}
}

// 设备修改地址后，可能使用旧地址或新地址上报
func (g *Gateway) onDeviceAddress(pkt *swap.Packet, out *outbox) {
	if pkt.Value.IsEmpty() {
		return
	}
	newAddr := byte(pkt.Value.ToInteger())
	m := g.moteByPendingAddress(newAddr)
	if nil == m {
		m = g.moteByAddress(pkt.SrcAddress)
	}
	if nil == m {
		return
	}
	m.pendingAddress = 0
	if m.address == newAddr {
		return
	}
	if stale := g.moteByAddress(newAddr); nil != stale && stale != m {
		g.log.Warnf("地址冲突，删除旧设备: %02X", newAddr)
		g.removeMote(stale, out)
	}
	old := m.address
	m.address = newAddr
	g.log.Infof("设备地址变更: %02X -> %02X", old, newAddr)
	out.add(Event{Type: EventMoteAddressChanged, Mote: m.snapshot(), OldAddress: old})
}

func (g *Gateway) onSystemState(pkt *swap.Packet, out *outbox) {
	m := g.moteByAddress(pkt.SrcAddress)
	if nil == m || 1 != pkt.Value.Len() {
		return
	}
	state := pkt.Value.Bytes()[0]
	if m.state == state {
		return
	}
	m.state = state
	out.add(Event{Type: EventMoteStateChanged, Mote: m.snapshot()})
	if swap.StateSync == state {
		out.add(Event{Type: EventMoteSync, Mote: m.snapshot()})
	}
}

func (g *Gateway) onRegisterInfo(pkt *swap.Packet, out *outbox) {
	m := g.moteByAddress(pkt.RegAddress)
	if nil == m {
		return
	}
	reg := g.registerOf(m, pkt.RegId)
	if nil == reg {
		return
	}
	reg.value = pkt.Value
	for _, h := range reg.endpoints {
		ep := g.endpoints[h]
		changed, err := ep.update(reg.value)
		if nil != err {
			g.log.Warnf("寄存器(%02X:%d)数据不匹配Endpoint(%s): %s", m.address, reg.id, ep.profile.Name, err)
			continue
		}
		if changed {
			out.add(Event{Type: EventEndpointChanged, Mote: m.snapshot(), Endpoint: g.endpointSnapshot(ep)})
		}
	}
}

////

// RemoveMote 删除设备及其寄存器和Endpoint
func (g *Gateway) RemoveMote(h MoteHandle) error {
	out := new(outbox)
	g.mu.Lock()
	m := g.moteOf(h)
	if nil == m {
		g.mu.Unlock()
		return ErrUnknownMote
	}
	g.removeMote(m, out)
	g.mu.Unlock()
	g.flush(out)
	return nil
}

func (g *Gateway) removeMote(m *mote, out *outbox) {
	for _, rh := range m.registers {
		for _, eh := range g.registers[rh].endpoints {
			g.endpoints[eh] = nil
		}
		g.registers[rh] = nil
	}
	g.motes[m.handle] = nil
	motesGauge.Set(float64(g.moteCount()))
	out.add(Event{Type: EventMoteRemoved, Mote: m.snapshot()})
}

// Motes 返回全部设备的快照
func (g *Gateway) Motes() []Mote {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Mote, 0, len(g.motes))
	for _, m := range g.motes {
		if nil != m {
			out = append(out, m.snapshot())
		}
	}
	return out
}

func (g *Gateway) Mote(h MoteHandle) (Mote, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if m := g.moteOf(h); nil != m {
		return m.snapshot(), true
	}
	return Mote{}, false
}

func (g *Gateway) MoteByAddress(addr byte) (Mote, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if m := g.moteByAddress(addr); nil != m {
		return m.snapshot(), true
	}
	return Mote{}, false
}

// Registers 返回设备的寄存器快照
func (g *Gateway) Registers(h MoteHandle) []Register {
	g.mu.Lock()
	defer g.mu.Unlock()
	m := g.moteOf(h)
	if nil == m {
		return nil
	}
	out := make([]Register, 0, len(m.registers))
	for _, rh := range m.registers {
		reg := g.registers[rh]
		out = append(out, Register{Handle: rh, Mote: h, Address: m.address, Id: reg.id, Value: reg.value})
	}
	return out
}

// Endpoints 返回全部Endpoint的快照
func (g *Gateway) Endpoints() []Endpoint {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Endpoint, 0, len(g.endpoints))
	for _, ep := range g.endpoints {
		if nil != ep {
			out = append(out, g.endpointSnapshot(ep))
		}
	}
	return out
}

func (g *Gateway) Endpoint(h EndpointHandle) (Endpoint, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ep := g.endpointOf(h); nil != ep {
		return g.endpointSnapshot(ep), true
	}
	return Endpoint{}, false
}

// FindEndpoint 按设备地址和寄存器ID查找Endpoint
func (g *Gateway) FindEndpoint(addr byte, regId byte) []Endpoint {
	g.mu.Lock()
	defer g.mu.Unlock()
	m := g.moteByAddress(addr)
	if nil == m {
		return nil
	}
	reg := g.registerOf(m, regId)
	if nil == reg {
		return nil
	}
	out := make([]Endpoint, 0, len(reg.endpoints))
	for _, h := range reg.endpoints {
		out = append(out, g.endpointSnapshot(g.endpoints[h]))
	}
	return out
}

func (g *Gateway) Address() byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.address
}

func (g *Gateway) FreqChannel() byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.freqChannel
}

func (g *Gateway) NetId() uint16 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.netId
}

func (g *Gateway) Security() byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.security
}

////

func (g *Gateway) moteOf(h MoteHandle) *mote {
	if h < 0 || int(h) >= len(g.motes) {
		return nil
	}
	return g.motes[h]
}

func (g *Gateway) moteByAddress(addr byte) *mote {
	for _, m := range g.motes {
		if nil != m && m.address == addr {
			return m
		}
	}
	return nil
}

func (g *Gateway) moteByPendingAddress(addr byte) *mote {
	if swap.BroadcastAddress == addr {
		return nil
	}
	for _, m := range g.motes {
		if nil != m && m.pendingAddress == addr {
			return m
		}
	}
	return nil
}

func (g *Gateway) moteCount() int {
	count := 0
	for _, m := range g.motes {
		if nil != m {
			count++
		}
	}
	return count
}

func (g *Gateway) registerOf(m *mote, regId byte) *register {
	for _, rh := range m.registers {
		if reg := g.registers[rh]; reg.id == regId {
			return reg
		}
	}
	return nil
}

func (g *Gateway) endpointOf(h EndpointHandle) *endpoint {
	if h < 0 || int(h) >= len(g.endpoints) {
		return nil
	}
	return g.endpoints[h]
}

func (g *Gateway) endpointSnapshot(ep *endpoint) Endpoint {
	reg := g.registers[ep.register]
	m := g.motes[reg.mote]
	return Endpoint{
		Handle:    ep.handle,
		Register:  reg.handle,
		Mote:      m.handle,
		Address:   m.address,
		RegId:     reg.id,
		Name:      ep.profile.Name,
		Type:      ep.profile.Type,
		Direction: ep.profile.Direction,
		Layout:    ep.profile.Layout,
		Factor:    ep.profile.Factor,
		Offset:    ep.profile.Offset,
		Unit:      ep.profile.Unit,
		Value:     ep.value,
	}
}

////

// 在网关锁内收集事件和应答，解锁后再发送
type outbox struct {
	events  []Event
	replies []*swap.Packet
}

func (o *outbox) add(event Event) {
	o.events = append(o.events, event)
}

func (o *outbox) reply(pkt *swap.Packet) {
	o.replies = append(o.replies, pkt)
}

func (g *Gateway) flush(out *outbox) {
	for _, pkt := range out.replies {
		if err := g.sendPacket(pkt); nil != err {
			g.log.Error("发送应答出错: ", err)
		}
	}
	if 0 == len(out.events) {
		return
	}
	g.obsLock.RLock()
	observers := g.observers
	g.obsLock.RUnlock()
	for _, event := range out.events {
		for _, observer := range observers {
			observer(event)
		}
	}
}

func (g *Gateway) sendPacket(pkt *swap.Packet) error {
	return g.sendBytes(pkt.Bytes(), pkt.Function)
}

func (g *Gateway) sendBytes(data []byte, function swap.Function) error {
	if err := g.transport.Send(data); nil != err {
		return err
	}
	framesSent.WithLabelValues(function.String()).Inc()
	return nil
}
