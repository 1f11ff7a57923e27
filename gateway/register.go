package gateway

import "github.com/nextabc-lab/swap"

// RegisterHandle 是寄存器在网关中的索引
type RegisterHandle int

// Register 寄存器数据快照
type Register struct {
	Handle  RegisterHandle
	Mote    MoteHandle
	Address byte
	Id      byte
	Value   swap.Value
}

type register struct {
	handle    RegisterHandle
	mote      MoteHandle
	id        byte
	value     swap.Value
	endpoints []EndpointHandle
}
