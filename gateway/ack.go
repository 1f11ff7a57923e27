package gateway

import (
	"time"

	"github.com/nextabc-lab/swap"
)

// AckResult 需要应答的命令的结果
type AckResult int

const (
	AckOK AckResult = iota
	// 休眠设备，命令已保存到待发送位置
	AckDeferred
	AckFailed
)

func (r AckResult) String() string {
	switch r {
	case AckOK:
		return "ACKED"
	case AckDeferred:
		return "DEFERRED"
	default:
		return "FAILED"
	}
}

// CheckAck 应答为INFO数据包，且寄存器地址、寄存器ID和值(包括长度)完全相同
func CheckAck(expected, received *swap.Packet) bool {
	if nil == expected || nil == received {
		return false
	}
	return swap.FunctionInfo == received.Function &&
		expected.RegAddress == received.RegAddress &&
		expected.RegId == received.RegId &&
		expected.Value.Equal(received.Value)
}

type expectation struct {
	ack *swap.Packet
	// 查询只匹配寄存器，不比较值
	anyValue bool
}

func (e *expectation) match(pkt *swap.Packet) bool {
	if e.anyValue {
		return swap.FunctionInfo == pkt.Function &&
			e.ack.RegAddress == pkt.RegAddress &&
			e.ack.RegId == pkt.RegId
	}
	return CheckAck(e.ack, pkt)
}

// WaitForAck 等待与expected匹配的INFO，超时返回false。无论结果如何，等待结束后清除应答期望。
// 应答可能在调用之前到达，需要可靠等待时使用 CmdRegisterWack。
func (g *Gateway) WaitForAck(expected *swap.Packet, timeout time.Duration) bool {
	g.ctrl.Lock()
	defer g.ctrl.Unlock()
	g.mu.Lock()
	g.arm(&expectation{ack: expected})
	g.mu.Unlock()
	_, ok := g.await(timeout)
	return ok
}

// 调用时必须持有 g.mu
func (g *Gateway) arm(e *expectation) {
	g.expect = e
	g.acks.Reset()
}

func (g *Gateway) await(timeout time.Duration) (*swap.Packet, bool) {
	v, err := g.acks.Take(timeout)
	g.mu.Lock()
	g.expect = nil
	g.mu.Unlock()
	if nil != err {
		ackTimeouts.Inc()
		return nil, false
	}
	return v.(*swap.Packet), true
}
