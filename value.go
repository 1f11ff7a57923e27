package swap

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"strings"
)

//
// Value 是寄存器和Endpoint数据的统一载体，长度在创建时确定，之后不可修改。
// 数值类型使用大字节序编码。
//

type Value struct {
	data []byte
}

// NewValue 使用原始字节创建Value。内部复制数据。
func NewValue(b []byte) Value {
	data := make([]byte, len(b))
	copy(data, b)
	return Value{data: data}
}

// ValueOfInt 使用整数创建指定长度的Value。长度超出 1-8 范围时被截断到边界。
func ValueOfInt(val uint64, length int) Value {
	length = clampLength(length)
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, val)
	return Value{data: buf[8-length:]}
}

// ValueOfString 每个字符对应一个字节
func ValueOfString(str string) Value {
	return Value{data: []byte(str)}
}

// ParseHexValue 解析十六进制字符串
func ParseHexValue(str string) (Value, error) {
	b, err := hex.DecodeString(strings.TrimSpace(str))
	if nil != err {
		return Value{}, err
	}
	return Value{data: b}, nil
}

func clampLength(length int) int {
	if length < 1 {
		return 1
	} else if length > MaxNumericValueLen {
		return MaxNumericValueLen
	} else {
		return length
	}
}

func (v Value) Len() int {
	return len(v.data)
}

func (v Value) IsEmpty() bool {
	return 0 == len(v.data)
}

// Bytes 返回数据的副本
func (v Value) Bytes() []byte {
	out := make([]byte, len(v.data))
	copy(out, v.data)
	return out
}

// ToInteger 按大字节序还原整数，最多使用最低的4个字节
func (v Value) ToInteger() uint32 {
	return uint32(v.toUint(4))
}

// ToLong 按大字节序还原整数，最多使用最低的8个字节
func (v Value) ToLong() uint64 {
	return v.toUint(8)
}

func (v Value) toUint(max int) uint64 {
	data := v.data
	if len(data) > max {
		data = data[len(data)-max:]
	}
	var out uint64
	for _, b := range data {
		out = out<<8 | uint64(b)
	}
	return out
}

// String 按ASCII输出，去除尾部的0字节
func (v Value) String() string {
	return string(bytes.TrimRight(v.data, "\x00"))
}

func (v Value) Hex() string {
	return strings.ToUpper(hex.EncodeToString(v.data))
}

// Equal 长度和每个字节都相同时返回True
func (v Value) Equal(other Value) bool {
	return bytes.Equal(v.data, other.data)
}
