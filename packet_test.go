package swap

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/pkg/errors"
)

func TestPacket_RoundTrip(t *testing.T) {
	for _, raw := range []string{
		"01020A05020B0C0D0E",
		"00057F03000500",
		"0501F0FF0105000000000000000000",
		"FF01000001090B",
	} {
		data, _ := hex.DecodeString(raw)
		pkt, err := ParsePacket(&Frame{Data: data})
		if nil != err {
			t.Fatal(err)
		}
		if !bytes.Equal(data, pkt.Bytes()) {
			t.Errorf("Round trip not match, want: %s, was: %X", raw, pkt.Bytes())
		}
		if PacketHeaderLen+pkt.Value.Len() != len(pkt.Bytes()) {
			t.Error("Length should be header + value")
		}
	}
}

func TestParsePacket_Fields(t *testing.T) {
	pkt, err := DecodeLine("(1020)0102A5070203040A0B")
	if nil != err {
		t.Fatal(err)
	}
	fmt.Println("Packet: ", pkt)
	if 0x01 != pkt.DestAddress || 0x02 != pkt.SrcAddress {
		t.Error("Address not match")
	}
	if 0x0A != pkt.Hop || 0x05 != pkt.Security {
		t.Errorf("Hop/Security nibbles not match: %X %X", pkt.Hop, pkt.Security)
	}
	if 0x07 != pkt.Nonce || FunctionCommand != pkt.Function {
		t.Error("Nonce/Function not match")
	}
	if 0x03 != pkt.RegAddress || 0x04 != pkt.RegId {
		t.Error("Register not match")
	}
	if 0x0A0B != pkt.Value.ToInteger() || 2 != pkt.Value.Len() {
		t.Error("Value not match: ", pkt.Value.Hex())
	}
	if 0x10 != pkt.RSSI || 0x20 != pkt.LQI {
		t.Error("RSSI/LQI not kept")
	}
}

func TestParsePacket_Short(t *testing.T) {
	if _, err := DecodeLine("(1020)010203"); ErrMalformedFrame != errors.Cause(err) {
		t.Error("Short packet should be malformed, was: ", err)
	}
}

func TestNewPackets(t *testing.T) {
	query := NewQuery(0x01, 0, BroadcastAddress, BroadcastAddress, RegProductCode)
	if 7 != len(query.Bytes()) || !query.Value.IsEmpty() {
		t.Error("Query has no value")
	}
	cmd := NewCommand(0x01, 0x10, 0x02, 0x05, RegFreqChannel, ValueOfInt(3, 1))
	if "0501021002050503" != cmd.Frame().String() {
		t.Error("Command bytes not match, was: ", cmd.Frame().String())
	}
	info := NewInfo(0x01, 0x10, 0, 0x01, RegSystemState, ValueOfInt(StateRxOn, 1))
	if BroadcastAddress != info.DestAddress || FunctionInfo != info.Function {
		t.Error("Info should be broadcast")
	}
}
