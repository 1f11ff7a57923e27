package swap

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
)

//
// SWAP数据包。线上字节布局：
//
//   0 目标地址
//   1 源地址
//   2 跳数(高4位) | 安全选项(低4位)
//   3 Nonce
//   4 功能码
//   5 寄存器地址
//   6 寄存器ID
//   7.. 寄存器值(大字节序，QUERY为空)
//

const (
	PacketHeaderLen = 7
)

type Packet struct {
	DestAddress byte
	SrcAddress  byte
	Hop         byte
	Security    byte
	Nonce       byte
	Function    Function
	RegAddress  byte
	RegId       byte
	Value       Value
	// 仅在接收时有效
	RSSI byte
	LQI  byte
}

// NewCommand 创建COMMAND数据包；命令总是发往寄存器所属设备
func NewCommand(src, nonce, security, regAddress, regId byte, val Value) *Packet {
	return &Packet{
		DestAddress: regAddress,
		SrcAddress:  src,
		Security:    security,
		Nonce:       nonce,
		Function:    FunctionCommand,
		RegAddress:  regAddress,
		RegId:       regId,
		Value:       val,
	}
}

// NewQuery 创建QUERY数据包，不带数据
func NewQuery(src, security, destAddress, regAddress, regId byte) *Packet {
	return &Packet{
		DestAddress: destAddress,
		SrcAddress:  src,
		Security:    security,
		Function:    FunctionQuery,
		RegAddress:  regAddress,
		RegId:       regId,
	}
}

// NewInfo 创建INFO数据包，以广播方式发送
func NewInfo(src, nonce, security, regAddress, regId byte, val Value) *Packet {
	return &Packet{
		DestAddress: BroadcastAddress,
		SrcAddress:  src,
		Security:    security,
		Nonce:       nonce,
		Function:    FunctionInfo,
		RegAddress:  regAddress,
		RegId:       regId,
		Value:       val,
	}
}

// ParsePacket 将射频数据帧解析为SWAP数据包
func ParsePacket(frame *Frame) (*Packet, error) {
	if len(frame.Data) < PacketHeaderLen {
		return nil, errors.WithMessage(ErrMalformedFrame,
			"packet too short: "+strconv.Itoa(len(frame.Data)))
	}
	br := WrapByteReader(frame.Data, binary.BigEndian)
	pkt := &Packet{
		RSSI: frame.RSSI,
		LQI:  frame.LQI,
	}
	pkt.DestAddress = br.GetByte()
	pkt.SrcAddress = br.GetByte()
	hopSecu := br.GetByte()
	pkt.Hop = (hopSecu >> 4) & 0x0F
	pkt.Security = hopSecu & 0x0F
	pkt.Nonce = br.GetByte()
	pkt.Function = Function(br.GetByte())
	pkt.RegAddress = br.GetByte()
	pkt.RegId = br.GetByte()
	pkt.Value = Value{data: br.GetRemaining()}
	return pkt, nil
}

// DecodeLine 解析Modem上报的一行文本数据
func DecodeLine(line string) (*Packet, error) {
	frame, err := ParseFrame(line)
	if nil != err {
		return nil, err
	}
	return ParsePacket(frame)
}

// Bytes 编码为 7 + 数据长度 个字节
func (p *Packet) Bytes() []byte {
	bw := NewByteWriter(binary.BigEndian)
	bw.PutByte(p.DestAddress)
	bw.PutByte(p.SrcAddress)
	bw.PutNibbles(p.Hop, p.Security)
	bw.PutByte(p.Nonce)
	bw.PutByte(byte(p.Function))
	bw.PutByte(p.RegAddress)
	bw.PutByte(p.RegId)
	bw.PutBytes(p.Value.data)
	return bw.Bytes()
}

func (p *Packet) Frame() *Frame {
	return &Frame{Data: p.Bytes()}
}

func (p *Packet) String() string {
	return fmt.Sprintf("%s{dest=%02X src=%02X hop=%d secu=%d nonce=%02X reg=%02X:%02X value=%s}",
		p.Function, p.DestAddress, p.SrcAddress, p.Hop, p.Security, p.Nonce,
		p.RegAddress, p.RegId, p.Value.Hex())
}
