package swap

//
// SWAP协议常量定义
//

// Function 数据包功能码
type Function byte

const (
	FunctionInfo    Function = 0x00 // 状态上报
	FunctionQuery   Function = 0x01 // 查询请求
	FunctionCommand Function = 0x02 // 写入命令
)

func (f Function) String() string {
	switch f {
	case FunctionInfo:
		return "INFO"
	case FunctionQuery:
		return "QUERY"
	case FunctionCommand:
		return "COMMAND"
	default:
		return "UNKNOWN"
	}
}

// 保留地址
const (
	BroadcastAddress   = 0x00
	DefaultDevAddress  = 0x01
	MaxHop             = 0x0F
	MaxSecurityOption  = 0x0F
	MaxCarrierFreq     = 0x0F
	MaxFreqChannel     = 0x0F
	ProductCodeLength  = 8
	MaxNumericValueLen = 8
)

// 标准寄存器ID
const (
	RegProductCode  = 0
	RegHwVersion    = 1
	RegFwVersion    = 2
	RegSystemState  = 3
	RegCarrierFreq  = 4
	RegFreqChannel  = 5
	RegSecuOption   = 6
	RegSecuNonce    = 7
	RegNetworkId    = 8
	RegDeviceAddr   = 9
	RegTxInterval   = 10
	FirstCustomReg  = 11
	MaxRegisterId   = 0xFF
	NetworkIdLength = 2
)

// 系统状态
const (
	StateRestart = 0
	StateRxOn    = 1
	StateRxOff   = 2
	StateSync    = 3
	StateLowBat  = 4
)

// StateName 返回系统状态的名称
func StateName(state byte) string {
	switch state {
	case StateRestart:
		return "RESTART"
	case StateRxOn:
		return "RXON"
	case StateRxOff:
		return "RXOFF"
	case StateSync:
		return "SYNC"
	case StateLowBat:
		return "LOWBAT"
	default:
		return "UNKNOWN"
	}
}

// DefaultProductCode 网关自身的产品码
var DefaultProductCode = []byte{0, 0, 0, 1, 0, 0, 0, 1}
