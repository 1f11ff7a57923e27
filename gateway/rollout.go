package gateway

import (
	"fmt"

	"github.com/nextabc-lab/swap"
	"github.com/pkg/errors"
)

// RolloutResult 网络参数下发结果。按设备地址记录。
type RolloutResult struct {
	Param    string
	Acked    []byte
	Deferred []byte
	Failed   []byte
}

// Success 全部在线设备都已应答；休眠设备不计为失败
func (r RolloutResult) Success() bool {
	return 0 == len(r.Failed)
}

func (r RolloutResult) String() string {
	return fmt.Sprintf("%s{acked=%X, deferred=%X, failed=%X}", r.Param, r.Acked, r.Deferred, r.Failed)
}

// SetFreqChannel 向全部设备下发频率信道，然后修改网关Modem
func (g *Gateway) SetFreqChannel(channel byte) (RolloutResult, error) {
	if channel > swap.MaxFreqChannel {
		return RolloutResult{Param: "freqChannel"}, errors.WithMessage(ErrValueRange, fmt.Sprintf("freqChannel=%X", channel))
	}
	g.ctrl.Lock()
	defer g.ctrl.Unlock()
	result, err := g.rollout("freqChannel", swap.RegFreqChannel, swap.ValueOfInt(uint64(channel), 1))
	if nil != err {
		return result, err
	}
	if err := g.transport.SetFreqChannel(channel); nil != err {
		return result, errors.WithMessage(err, "modem frequency channel")
	}
	g.mu.Lock()
	g.freqChannel = channel
	g.local[swap.RegFreqChannel] = swap.ValueOfInt(uint64(channel), 1)
	g.mu.Unlock()
	return result, nil
}

// SetNetId 向全部设备下发网络ID，然后修改网关Modem的同步字
func (g *Gateway) SetNetId(netId uint16) (RolloutResult, error) {
	g.ctrl.Lock()
	defer g.ctrl.Unlock()
	val := swap.ValueOfInt(uint64(netId), swap.NetworkIdLength)
	result, err := g.rollout("netId", swap.RegNetworkId, val)
	if nil != err {
		return result, err
	}
	if err := g.transport.SetSyncWord(netId); nil != err {
		return result, errors.WithMessage(err, "modem sync word")
	}
	g.mu.Lock()
	g.netId = netId
	g.local[swap.RegNetworkId] = val
	g.mu.Unlock()
	return result, nil
}

// SetSecurity 向全部设备下发安全选项，然后修改网关的安全选项
func (g *Gateway) SetSecurity(security byte) (RolloutResult, error) {
	if security > swap.MaxSecurityOption {
		return RolloutResult{Param: "security"}, errors.Errorf("invalid security option: %d", security)
	}
	g.ctrl.Lock()
	defer g.ctrl.Unlock()
	result, err := g.rollout("security", swap.RegSecuOption, swap.ValueOfInt(uint64(security), 1))
	if nil != err {
		return result, err
	}
	g.mu.Lock()
	g.security = security
	g.local[swap.RegSecuOption] = swap.ValueOfInt(uint64(security), 1)
	g.mu.Unlock()
	return result, nil
}

// SetDevAddress 向全部设备下发设备地址，然后修改网关Modem的地址。
// 多个设备设置为同一地址时，后应答的设备取代先前的设备。
func (g *Gateway) SetDevAddress(addr byte) (RolloutResult, error) {
	if swap.BroadcastAddress == addr {
		return RolloutResult{Param: "devAddress"}, errors.New("address 0 is broadcast")
	}
	g.ctrl.Lock()
	defer g.ctrl.Unlock()
	g.mu.Lock()
	count := g.moteCount()
	g.mu.Unlock()
	if count > 1 {
		g.log.Warnf("%d个设备将使用相同地址(%02X)", count, addr)
	}
	result, err := g.rollout("devAddress", swap.RegDeviceAddr, swap.ValueOfInt(uint64(addr), 1))
	if nil != err {
		return result, err
	}
	if err := g.transport.SetDeviceAddress(addr); nil != err {
		return result, errors.WithMessage(err, "modem device address")
	}
	g.mu.Lock()
	g.address = addr
	g.local[swap.RegDeviceAddr] = swap.ValueOfInt(uint64(addr), 1)
	g.mu.Unlock()
	return result, nil
}

// 逐个设备发送命令并等待应答。单个设备失败不影响其它设备。调用时必须持有 g.ctrl
func (g *Gateway) rollout(param string, regId byte, val swap.Value) (RolloutResult, error) {
	result := RolloutResult{Param: param}
	g.mu.Lock()
	if !g.connected {
		g.mu.Unlock()
		return result, ErrNotConnected
	}
	handles := make([]MoteHandle, 0, len(g.motes))
	for _, m := range g.motes {
		if nil != m {
			handles = append(handles, m.handle)
		}
	}
	g.mu.Unlock()

	for _, h := range handles {
		m, ok := g.Mote(h)
		if !ok {
			continue
		}
		ack, err := g.commandWack(h, regId, val)
		if nil != err {
			if ErrUnknownMote == errors.Cause(err) {
				continue
			}
			return result, err
		}
		switch ack {
		case AckOK:
			result.Acked = append(result.Acked, m.Address)
		case AckDeferred:
			result.Deferred = append(result.Deferred, m.Address)
		default:
			rolloutFailures.WithLabelValues(param).Inc()
			g.log.Warnf("设备(%02X)未应答参数(%s)", m.Address, param)
			result.Failed = append(result.Failed, m.Address)
		}
	}
	g.log.Info("网络参数下发完成: ", result)
	return result, nil
}
