package gateway

import "github.com/nextabc-lab/swap"

// 网关自身的寄存器，应答发往网关地址的QUERY和COMMAND
func (g *Gateway) initLocalRegisters() {
	g.local = map[byte]swap.Value{
		swap.RegProductCode: swap.NewValue(swap.DefaultProductCode),
		swap.RegHwVersion:   swap.ValueOfInt(uint64(g.transport.HwVersion()), 4),
		swap.RegFwVersion:   swap.ValueOfInt(uint64(g.transport.FwVersion()), 4),
		swap.RegSystemState: swap.ValueOfInt(swap.StateRxOn, 1),
		swap.RegFreqChannel: swap.ValueOfInt(uint64(g.freqChannel), 1),
		swap.RegSecuOption:  swap.ValueOfInt(uint64(g.security), 1),
		swap.RegNetworkId:   swap.ValueOfInt(uint64(g.netId), swap.NetworkIdLength),
		swap.RegDeviceAddr:  swap.ValueOfInt(uint64(g.address), 1),
	}
}

func (g *Gateway) onLocalQuery(pkt *swap.Packet, out *outbox) {
	val, ok := g.local[pkt.RegId]
	if !ok {
		g.log.Debugf("查询未知的网关寄存器: %d", pkt.RegId)
		return
	}
	out.reply(g.localInfo(pkt.RegId, val))
}

// COMMAND只更新网关寄存器的值，不修改Modem参数
func (g *Gateway) onLocalCommand(pkt *swap.Packet, out *outbox) {
	g.local[pkt.RegId] = pkt.Value
	out.reply(g.localInfo(pkt.RegId, pkt.Value))
}

func (g *Gateway) localInfo(regId byte, val swap.Value) *swap.Packet {
	nonce := g.nonce
	g.nonce++
	return swap.NewInfo(g.address, nonce, g.security, g.address, regId, val)
}

// LocalRegister 返回网关自身寄存器的值
func (g *Gateway) LocalRegister(regId byte) (swap.Value, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	val, ok := g.local[regId]
	return val, ok
}
