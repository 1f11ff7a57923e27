package gateway

import "fmt"

type EventType int

const (
	EventMoteDiscovered EventType = iota
	EventMoteAddressChanged
	EventMoteStateChanged
	// 设备进入SYNC状态，在 EventMoteStateChanged 之后发出
	EventMoteSync
	EventMoteRemoved
	EventEndpointDiscovered
	EventEndpointChanged
)

func (t EventType) String() string {
	switch t {
	case EventMoteDiscovered:
		return "MoteDiscovered"
	case EventMoteAddressChanged:
		return "MoteAddressChanged"
	case EventMoteStateChanged:
		return "MoteStateChanged"
	case EventMoteSync:
		return "MoteSync"
	case EventMoteRemoved:
		return "MoteRemoved"
	case EventEndpointDiscovered:
		return "EndpointDiscovered"
	case EventEndpointChanged:
		return "EndpointChanged"
	default:
		return fmt.Sprintf("Event(%d)", int(t))
	}
}

// Event 携带事件发生时的数据快照
type Event struct {
	Type EventType
	Mote Mote
	// 仅 Endpoint 事件有效
	Endpoint Endpoint
	// 仅 EventMoteAddressChanged 有效
	OldAddress byte
}

// Observer 在网关锁之外、数据帧接收协程中被调用。回调中不能调用需要等待应答的操作。
type Observer func(event Event)
