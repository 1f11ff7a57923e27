package gateway

import "github.com/nextabc-lab/swap"

// EndpointHandle 是Endpoint在网关中的索引
type EndpointHandle int

// Endpoint 数据快照
type Endpoint struct {
	Handle    EndpointHandle
	Register  RegisterHandle
	Mote      MoteHandle
	Address   byte
	RegId     byte
	Name      string
	Type      EndpointType
	Direction Direction
	Layout    Layout
	Factor    float64
	Offset    float64
	Unit      string
	Value     swap.Value
}

// Number 按 factor 和 offset 换算后的数值
func (e Endpoint) Number() float64 {
	return float64(e.Value.ToLong())*e.Factor + e.Offset
}

type endpoint struct {
	handle   EndpointHandle
	register RegisterHandle
	profile  EndpointProfile
	value    swap.Value
}

// 寄存器值更新后刷新Endpoint值，返回是否变化
func (e *endpoint) update(reg swap.Value) (bool, error) {
	val, err := e.profile.Layout.Extract(reg)
	if nil != err {
		return false, err
	}
	if val.Equal(e.value) {
		return false, nil
	}
	e.value = val
	return true, nil
}
