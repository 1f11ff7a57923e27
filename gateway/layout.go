package gateway

import (
	"fmt"
	"math/bits"

	"github.com/nextabc-lab/swap"
	"github.com/pkg/errors"
)

//
// Endpoint 在寄存器中的位置。支持两种互斥的描述方式：
//   Mask:  寄存器按大字节序整数处理，Endpoint占据掩码覆盖的位，右移量为掩码的末尾0位数；
//   Bytes: Endpoint占据寄存器中从 Position 开始的 Size 个字节。
//

type LayoutKind int

const (
	LayoutMask LayoutKind = iota
	LayoutBytes
)

func (k LayoutKind) String() string {
	if LayoutBytes == k {
		return "BYTES"
	}
	return "MASK"
}

var (
	ErrEndpointRange = errors.New("endpoint out of register range")
)

type Layout struct {
	Kind     LayoutKind
	Mask     uint64
	Position int
	Size     int
}

func MaskLayout(mask uint64) Layout {
	return Layout{Kind: LayoutMask, Mask: mask}
}

func BytesLayout(position, size int) Layout {
	return Layout{Kind: LayoutBytes, Position: position, Size: size}
}

// Shift 掩码的末尾0位数
func (l Layout) Shift() uint {
	return uint(bits.TrailingZeros64(l.Mask))
}

// ValueLen Endpoint值的字节数
func (l Layout) ValueLen() int {
	if LayoutBytes == l.Kind {
		return l.Size
	}
	width := bits.Len64(l.Mask >> l.Shift())
	if width <= 8 {
		return 1
	}
	return (width + 7) / 8
}

// RegisterLen 容纳这个Endpoint所需的最小寄存器长度
func (l Layout) RegisterLen() int {
	if LayoutBytes == l.Kind {
		return l.Position + l.Size
	}
	n := (bits.Len64(l.Mask) + 7) / 8
	if n < 1 {
		return 1
	}
	return n
}

// Validate 检查Endpoint是否完整位于指定长度的寄存器内
func (l Layout) Validate(regLen int) error {
	switch l.Kind {
	case LayoutMask:
		if 0 == l.Mask {
			return errors.WithMessage(ErrEndpointRange, "empty mask")
		}
		if regLen > swap.MaxNumericValueLen || l.RegisterLen() > regLen {
			return errors.WithMessage(ErrEndpointRange,
				fmt.Sprintf("mask 0x%X on %d-byte register", l.Mask, regLen))
		}
	case LayoutBytes:
		if l.Position < 0 || l.Size < 1 || l.Position+l.Size > regLen {
			return errors.WithMessage(ErrEndpointRange,
				fmt.Sprintf("bytes [%d, %d) on %d-byte register", l.Position, l.Position+l.Size, regLen))
		}
	default:
		return errors.New("unknown layout kind")
	}
	return nil
}

// Extract 从寄存器值中取出Endpoint值
func (l Layout) Extract(reg swap.Value) (swap.Value, error) {
	if err := l.Validate(reg.Len()); nil != err {
		return swap.Value{}, err
	}
	if LayoutBytes == l.Kind {
		return swap.NewValue(reg.Bytes()[l.Position : l.Position+l.Size]), nil
	}
	slice := (reg.ToLong() & l.Mask) >> l.Shift()
	return swap.ValueOfInt(slice, l.ValueLen()), nil
}

// Merge 将Endpoint值写入寄存器值，寄存器中其它位和字节保持不变。返回新的寄存器值。
func (l Layout) Merge(reg swap.Value, val swap.Value) (swap.Value, error) {
	if err := l.Validate(reg.Len()); nil != err {
		return swap.Value{}, err
	}
	if LayoutBytes == l.Kind {
		if val.Len() > l.Size {
			return swap.Value{}, errors.WithMessage(ErrEndpointRange,
				fmt.Sprintf("%d-byte value into %d-byte endpoint", val.Len(), l.Size))
		}
		out := reg.Bytes()
		field := out[l.Position : l.Position+l.Size]
		for i := range field {
			field[i] = 0
		}
		// 较短的数值按大字节序右对齐
		copy(field[l.Size-val.Len():], val.Bytes())
		return swap.NewValue(out), nil
	}
	if val.Len() > swap.MaxNumericValueLen || val.ToLong() > l.Mask>>l.Shift() {
		return swap.Value{}, errors.WithMessage(ErrEndpointRange,
			fmt.Sprintf("value 0x%s exceeds mask 0x%X", val.Hex(), l.Mask))
	}
	merged := reg.ToLong()&^l.Mask | (val.ToLong()<<l.Shift())&l.Mask
	return swap.ValueOfInt(merged, reg.Len()), nil
}

func (l Layout) String() string {
	if LayoutBytes == l.Kind {
		return fmt.Sprintf("BYTES[%d:%d]", l.Position, l.Size)
	}
	return fmt.Sprintf("MASK[0x%X]", l.Mask)
}
