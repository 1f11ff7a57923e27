package bridge

import (
	"github.com/nextabc-lab/swap"
	"github.com/nextabc-lab/swap/gateway"
)

// Controller 是控制台和MQTT桥接使用的网关操作，由 *gateway.Gateway 实现
type Controller interface {
	Observe(observer gateway.Observer)

	Motes() []gateway.Mote
	MoteByAddress(addr byte) (gateway.Mote, bool)
	Endpoints() []gateway.Endpoint
	Endpoint(h gateway.EndpointHandle) (gateway.Endpoint, bool)

	CmdRegisterWack(h gateway.MoteHandle, regId byte, val swap.Value) (gateway.AckResult, error)
	QueryRegister(h gateway.MoteHandle, regId byte) (swap.Value, error)
	SendPending(h gateway.MoteHandle) (bool, error)
	CmdEndpointWack(h gateway.EndpointHandle, val swap.Value) (gateway.AckResult, error)
	Restart(h gateway.MoteHandle) (gateway.AckResult, error)
	LeaveSync(h gateway.MoteHandle) error

	SetFreqChannel(channel byte) (gateway.RolloutResult, error)
	SetNetId(netId uint16) (gateway.RolloutResult, error)
	SetSecurity(security byte) (gateway.RolloutResult, error)
	SetDevAddress(addr byte) (gateway.RolloutResult, error)
}

var _ Controller = (*gateway.Gateway)(nil)
