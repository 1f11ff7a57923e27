package gateway

import (
	"fmt"

	"github.com/nextabc-lab/swap"
	"github.com/pkg/errors"
)

// CmdRegister 向设备寄存器发送COMMAND，返回预期的INFO应答。
// 休眠设备的命令保存到待发送位置，由 SendPending 发送。
func (g *Gateway) CmdRegister(h MoteHandle, regId byte, val swap.Value) (*swap.Packet, error) {
	g.mu.Lock()
	m, err := g.checkMote(h)
	if nil != err {
		g.mu.Unlock()
		return nil, err
	}
	data, expected := g.buildCommand(m, regId, val)
	if m.powerDown {
		m.pending = data
		g.mu.Unlock()
		g.log.Debugf("设备(%02X)处于休眠模式，命令待发送: %X", m.address, data)
		return expected, nil
	}
	g.mu.Unlock()
	return expected, g.sendBytes(data, swap.FunctionCommand)
}

// QryRegister 向设备寄存器发送QUERY，不等待应答
func (g *Gateway) QryRegister(h MoteHandle, regId byte) error {
	g.mu.Lock()
	m, err := g.checkMote(h)
	if nil != err {
		g.mu.Unlock()
		return err
	}
	pkt := swap.NewQuery(g.address, g.security, m.address, m.address, regId)
	if m.powerDown {
		m.pending = pkt.Bytes()
		g.mu.Unlock()
		return nil
	}
	g.mu.Unlock()
	return g.sendPacket(pkt)
}

// SendPending 发送休眠设备的待发送数据包，返回是否有数据包被发送
func (g *Gateway) SendPending(h MoteHandle) (bool, error) {
	g.mu.Lock()
	m, err := g.checkMote(h)
	if nil != err {
		g.mu.Unlock()
		return false, err
	}
	data := m.pending
	m.pending = nil
	g.mu.Unlock()
	if nil == data {
		return false, nil
	}
	return true, g.sendBytes(data, swap.Function(data[4]))
}

// CmdRegisterWack 发送COMMAND并等待应答，超时重发，最多发送 MaxTries 次
func (g *Gateway) CmdRegisterWack(h MoteHandle, regId byte, val swap.Value) (AckResult, error) {
	g.ctrl.Lock()
	defer g.ctrl.Unlock()
	return g.commandWack(h, regId, val)
}

// QueryRegister 查询寄存器并等待设备上报的值
func (g *Gateway) QueryRegister(h MoteHandle, regId byte) (swap.Value, error) {
	g.ctrl.Lock()
	defer g.ctrl.Unlock()
	for try := 1; try <= g.opts.MaxTries; try++ {
		g.mu.Lock()
		m, err := g.checkMote(h)
		if nil != err {
			g.mu.Unlock()
			return swap.Value{}, err
		}
		if m.powerDown {
			g.mu.Unlock()
			return swap.Value{}, ErrMoteAsleep
		}
		pkt := swap.NewQuery(g.address, g.security, m.address, m.address, regId)
		g.arm(&expectation{ack: pkt, anyValue: true})
		g.mu.Unlock()
		if err := g.sendPacket(pkt); nil != err {
			g.disarm()
			return swap.Value{}, err
		}
		if info, ok := g.await(g.opts.AckTimeout); ok {
			return info.Value, nil
		}
		g.log.Debugf("查询寄存器(%02X:%d)超时，第%d次", pkt.RegAddress, regId, try)
	}
	return swap.Value{}, ErrAckTimeout
}

// CmdEndpoint 将Endpoint值合并到寄存器当前值中，发送整个寄存器的COMMAND
func (g *Gateway) CmdEndpoint(h EndpointHandle, val swap.Value) (*swap.Packet, error) {
	mh, regId, merged, err := g.mergeEndpoint(h, val)
	if nil != err {
		return nil, err
	}
	return g.CmdRegister(mh, regId, merged)
}

// CmdEndpointWack 同 CmdEndpoint，并等待应答
func (g *Gateway) CmdEndpointWack(h EndpointHandle, val swap.Value) (AckResult, error) {
	g.ctrl.Lock()
	defer g.ctrl.Unlock()
	mh, regId, merged, err := g.mergeEndpoint(h, val)
	if nil != err {
		return AckFailed, err
	}
	return g.commandWack(mh, regId, merged)
}

// QryEndpoint 查询Endpoint所在的寄存器
func (g *Gateway) QryEndpoint(h EndpointHandle) error {
	g.mu.Lock()
	ep := g.endpointOf(h)
	if nil == ep {
		g.mu.Unlock()
		return ErrUnknownEndpoint
	}
	reg := g.registers[ep.register]
	g.mu.Unlock()
	return g.QryRegister(reg.mote, reg.id)
}

// Restart 重启设备
func (g *Gateway) Restart(h MoteHandle) (AckResult, error) {
	return g.CmdRegisterWack(h, swap.RegSystemState, swap.ValueOfInt(swap.StateRestart, 1))
}

// LeaveSync 让处于SYNC状态的设备恢复工作状态。设备在SYNC状态下保持接收，命令直接发送。
func (g *Gateway) LeaveSync(h MoteHandle) error {
	g.mu.Lock()
	m, err := g.checkMote(h)
	if nil != err {
		g.mu.Unlock()
		return err
	}
	state := uint64(swap.StateRxOn)
	if m.powerDown {
		state = swap.StateRxOff
	}
	data, _ := g.buildCommand(m, swap.RegSystemState, swap.ValueOfInt(state, 1))
	g.mu.Unlock()
	return g.sendBytes(data, swap.FunctionCommand)
}

////

func (g *Gateway) checkMote(h MoteHandle) (*mote, error) {
	if !g.connected {
		return nil, ErrNotConnected
	}
	m := g.moteOf(h)
	if nil == m {
		return nil, errors.WithMessage(ErrUnknownMote, fmt.Sprintf("handle %d", h))
	}
	return m, nil
}

// 创建COMMAND数据包和预期应答。修改设备地址的命令由设备使用新地址应答。
// 调用时必须持有 g.mu
func (g *Gateway) buildCommand(m *mote, regId byte, val swap.Value) ([]byte, *swap.Packet) {
	cmd := swap.NewCommand(g.address, m.nextNonce(), g.security, m.address, regId, val)
	ackAddress := m.address
	if swap.RegDeviceAddr == regId && !val.IsEmpty() {
		ackAddress = byte(val.ToInteger())
		m.pendingAddress = ackAddress
	}
	if reg := g.registerOf(m, regId); nil != reg {
		reg.value = val
	}
	return cmd.Bytes(), swap.NewInfo(m.address, 0, 0, ackAddress, regId, val)
}

func (g *Gateway) mergeEndpoint(h EndpointHandle, val swap.Value) (MoteHandle, byte, swap.Value, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ep := g.endpointOf(h)
	if nil == ep {
		return 0, 0, swap.Value{}, ErrUnknownEndpoint
	}
	reg := g.registers[ep.register]
	merged, err := ep.profile.Layout.Merge(reg.value, val)
	if nil != err {
		return 0, 0, swap.Value{}, errors.WithMessage(err, ep.profile.Name)
	}
	return reg.mote, reg.id, merged, nil
}

// 调用时必须持有 g.ctrl
func (g *Gateway) commandWack(h MoteHandle, regId byte, val swap.Value) (AckResult, error) {
	for try := 1; try <= g.opts.MaxTries; try++ {
		g.mu.Lock()
		m, err := g.checkMote(h)
		if nil != err {
			g.mu.Unlock()
			return AckFailed, err
		}
		data, expected := g.buildCommand(m, regId, val)
		if m.powerDown {
			m.pending = data
			g.mu.Unlock()
			return AckDeferred, nil
		}
		g.arm(&expectation{ack: expected})
		addr := m.address
		g.mu.Unlock()
		if err := g.sendBytes(data, swap.FunctionCommand); nil != err {
			g.disarm()
			return AckFailed, err
		}
		if _, ok := g.await(g.opts.AckTimeout); ok {
			return AckOK, nil
		}
		g.log.Debugf("设备(%02X)寄存器(%d)应答超时，第%d次", addr, regId, try)
	}
	return AckFailed, nil
}

func (g *Gateway) disarm() {
	g.mu.Lock()
	g.expect = nil
	g.mu.Unlock()
}
