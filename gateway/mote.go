package gateway

import (
	"encoding/binary"
	"time"

	"github.com/nextabc-lab/swap"
)

// MoteHandle 是设备在网关中的索引；设备被删除后不再有效
type MoteHandle int

// Mote 设备数据快照
type Mote struct {
	Handle         MoteHandle
	ManufacturerId uint32
	ProductId      uint32
	Manufacturer   string
	Product        string
	Address        byte
	Nonce          byte
	Security       byte
	PowerDown      bool
	State          byte
	HasPending     bool
	LastSeen       time.Time
}

type mote struct {
	handle         MoteHandle
	manufacturerId uint32
	productId      uint32
	manufacturer   string
	product        string
	address        byte
	nonce          byte
	security       byte
	powerDown      bool
	state          byte
	lastSeen       time.Time
	// 休眠设备的待发送命令
	pending []byte
	// 已发出但未确认的地址修改
	pendingAddress byte
	registers      []RegisterHandle
}

// 产品码前4字节为厂商ID，后4字节为产品ID，均为大字节序
func newMote(productCode []byte, address byte) *mote {
	br := swap.WrapByteReader(productCode, binary.BigEndian)
	return &mote{
		manufacturerId: br.GetUint32(),
		productId:      br.GetUint32(),
		address:        address,
		state:          swap.StateRxOn,
		lastSeen:       time.Now(),
	}
}

// 每次发送命令后Nonce循环加1
func (m *mote) nextNonce() byte {
	n := m.nonce
	m.nonce++
	return n
}

func (m *mote) snapshot() Mote {
	return Mote{
		Handle:         m.handle,
		ManufacturerId: m.manufacturerId,
		ProductId:      m.productId,
		Manufacturer:   m.manufacturer,
		Product:        m.product,
		Address:        m.address,
		Nonce:          m.nonce,
		Security:       m.security,
		PowerDown:      m.powerDown,
		State:          m.state,
		HasPending:     nil != m.pending,
		LastSeen:       m.lastSeen,
	}
}
