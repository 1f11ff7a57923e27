package swap

import (
	"encoding/binary"
	"fmt"
	"testing"
)

func TestWrapByteWriterAndReader(t *testing.T) {

	bw := NewByteWriter(binary.BigEndian)
	bw.PutByte(0xFF)
	bw.PutNibbles(0x03, 0x0A)
	bw.PutBytes([]byte{0xAA, 0xBB, 0xCC})
	bw.PutBytes([]byte{0x0D, 0x9D, 0xBB, 0xFB})

	allBytes := bw.Bytes()
	fmt.Printf("%X\n", allBytes)

	br := WrapByteReader(allBytes, binary.BigEndian)

	if 0xFF != br.GetByte() {
		t.Fatal("FF")
	}

	if 0x3A != br.GetByte() {
		t.Fatal("3A")
	}

	bs := br.GetBytesSize(3)
	if 0xAA != bs[0] || 0xBB != bs[1] || 0xCC != bs[2] {
		t.Fatal("AA BB CC")
	}

	if 228441083 != br.GetUint32() {
		t.Fatal("228441083")
	}
	if 0 != len(br.GetRemaining()) {
		t.Fatal("Should be empty")
	}
}

func TestByteReader_ShortRead(t *testing.T) {
	br := WrapByteReader([]byte{0x01}, binary.BigEndian)
	bs := br.GetBytesSize(3)
	if 3 != len(bs) || 0x01 != bs[0] || 0x00 != bs[2] {
		t.Fatalf("Short read not padded: %X", bs)
	}
}

func TestByteReader_ProductCode(t *testing.T) {
	br := WrapByteReader([]byte{0x00, 0x00, 0x00, 0x22, 0x00, 0x00, 0x00, 0x01}, binary.BigEndian)
	if 0x22 != br.GetUint32() {
		t.Fatal("manufacturer should be 0x22")
	}
	if 0x01 != br.GetUint32() {
		t.Fatal("product should be 0x01")
	}
}
