package swap

import (
	"bytes"
	"encoding/binary"
	"io"
)

//
// 数据帧的顺序读写工具。SWAP数据帧使用大字节序。
//

type wrapper struct {
	order  binary.ByteOrder
	buffer *bytes.Buffer
}

////

// 字节Reader，提供从数据帧顺序读取类型数据的函数。
type ByteReader struct {
	*wrapper
}

func WrapByteReader(frame []byte, order binary.ByteOrder) *ByteReader {
	return &ByteReader{
		wrapper: &wrapper{
			order:  order,
			buffer: bytes.NewBuffer(frame),
		},
	}
}

func (r *ByteReader) GetByte() byte {
	b, _ := r.buffer.ReadByte()
	return b
}

// GetBytesSize 读取指定长度的数据；数据不足时，不足部分以0填充。
func (r *ByteReader) GetBytesSize(size int) []byte {
	out := make([]byte, size)
	if _, err := r.buffer.Read(out); nil != err && err != io.EOF {
		panic(err)
	}
	return out
}

// GetRemaining 读取剩余全部数据
func (r *ByteReader) GetRemaining() []byte {
	return r.GetBytesSize(r.buffer.Len())
}

func (r *ByteReader) GetUint32() uint32 {
	return r.order.Uint32(r.GetBytesSize(4))
}

////

// 字节Writer，提供向数据缓存顺序写入类型数据的函数。
type ByteWriter struct {
	*wrapper
}

func NewByteWriter(order binary.ByteOrder) *ByteWriter {
	return &ByteWriter{
		wrapper: &wrapper{
			order:  order,
			buffer: new(bytes.Buffer),
		},
	}
}

func (w *ByteWriter) PutByte(b byte) {
	w.buffer.WriteByte(b)
}

func (w *ByteWriter) PutBytes(bs []byte) {
	w.buffer.Write(bs)
}

// PutNibbles 高4位与低4位合并为一个字节写入
func (w *ByteWriter) PutNibbles(high, low byte) {
	w.buffer.WriteByte((high&0x0F)<<4 | low&0x0F)
}

func (w *ByteWriter) Bytes() []byte {
	return w.buffer.Bytes()
}
