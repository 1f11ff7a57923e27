package gateway

import "github.com/nextabc-lab/swap"

// Transport 是网关使用的射频Modem。*modem.Modem 实现了这个接口。
type Transport interface {
	Connect() error
	Close() error
	// Send 发送一个完整的数据包
	Send(data []byte) error
	OnFrame(handler func(frame *swap.Frame))

	HwVersion() uint32
	FwVersion() uint32
	FreqChannel() byte
	SyncWord() uint16
	DeviceAddress() byte

	SetFreqChannel(channel byte) error
	SetSyncWord(sync uint16) error
	SetDeviceAddress(addr byte) error
}
