package swap

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

//
// Frame 是串口Modem与无线射频之间的原始数据帧。
// 接收格式: (RRLL)HEX... 其中RR为RSSI，LL为LQI；发送时只有HEX数据，没有前缀。
//

var (
	ErrMalformedFrame = errors.New("malformed frame")
)

const (
	frameHeaderLen = 6 // "(RRLL)"
)

type Frame struct {
	RSSI byte
	LQI  byte
	Data []byte
}

// ParseFrame 解析Modem在DATA模式下上报的一行数据
func ParseFrame(line string) (*Frame, error) {
	line = strings.TrimSpace(line)
	if len(line) < frameHeaderLen || '(' != line[0] || ')' != line[5] {
		return nil, errors.WithMessage(ErrMalformedFrame, "missing (RRLL) marker: "+line)
	}
	rssi, err := strconv.ParseUint(line[1:3], 16, 8)
	if nil != err {
		return nil, errors.WithMessage(ErrMalformedFrame, "invalid RSSI: "+line[1:3])
	}
	lqi, err := strconv.ParseUint(line[3:5], 16, 8)
	if nil != err {
		return nil, errors.WithMessage(ErrMalformedFrame, "invalid LQI: "+line[3:5])
	}
	payload := line[frameHeaderLen:]
	if 0 != len(payload)%2 {
		return nil, errors.WithMessage(ErrMalformedFrame, "odd payload length")
	}
	data, err := hex.DecodeString(payload)
	if nil != err {
		return nil, errors.WithMessage(ErrMalformedFrame, err.Error())
	}
	return &Frame{
		RSSI: byte(rssi),
		LQI:  byte(lqi),
		Data: data,
	}, nil
}

// String 返回发送格式的数据：大写HEX，无RSSI/LQI前缀
func (f *Frame) String() string {
	return strings.ToUpper(hex.EncodeToString(f.Data))
}

// RssiDbm 按CC1101的换算规则返回信号强度(dBm)
func (f *Frame) RssiDbm() int {
	const offset = 74
	if f.RSSI >= 128 {
		return (int(f.RSSI)-256)/2 - offset
	} else {
		return int(f.RSSI)/2 - offset
	}
}
