package modem

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nextabc-lab/swap"
	"github.com/nextabc-lab/swap/util"
	"github.com/pkg/errors"
	"github.com/yoojia/go-value"
	"go.uber.org/zap"
)

//
// 串口Modem驱动。Modem有两种工作模式：
// DATA模式下，串口收发射频数据帧；COMMAND模式下，串口执行AT指令。
//

type Mode uint32

const (
	ModeData Mode = iota
	ModeCommand
)

func (m Mode) String() string {
	if ModeCommand == m {
		return "COMMAND"
	}
	return "DATA"
}

var (
	ErrAtTimeout    = errors.New("AT command timeout")
	ErrAtRejected   = errors.New("AT command rejected")
	ErrNotConnected = errors.New("modem not connected")
	ErrValueRange   = errors.New("value out of range")
)

const (
	atEnterCommand = "+++"
	atEnterData    = "ATO\r"
	atReset        = "ATZ\r"
	atHwVersion    = "ATHV?\r"
	atFwVersion    = "ATFV?\r"
	atCarrierFreq  = "ATCF"
	atFreqChannel  = "ATCH"
	atSyncWord     = "ATSW"
	atDeviceAddr   = "ATDA"
	atOK           = "OK"
	lineEnding     = "\r"

	frameQueueSize = 64
)

// Options Modem参数
type Options struct {
	// 打开串口后等待Modem启动的时间
	SettleInterval time.Duration
	// 单条AT指令的响应超时
	AtTimeout time.Duration
	Logger    *zap.SugaredLogger
}

func DefaultOptions() Options {
	return Options{
		SettleInterval: time.Second * 3,
		AtTimeout:      time.Second * 2,
		Logger:         swap.ZapSugarLogger,
	}
}

// ParseOptions 从配置 [ModemOptions] 中读取Modem参数
func ParseOptions(config map[string]interface{}) Options {
	opts := DefaultOptions()
	opts.SettleInterval = value.Of(config["settleInterval"]).DurationOfDefault(opts.SettleInterval)
	opts.AtTimeout = value.Of(config["atTimeout"]).DurationOfDefault(opts.AtTimeout)
	return opts
}

type Modem struct {
	opener PortOpener
	opts   Options
	log    *zap.SugaredLogger

	port   Port
	mode   uint32
	closed chan struct{}
	done   chan struct{}

	// 串口写操作和模式切换互斥
	txLock    *sync.Mutex
	atPending uint32
	atResp    util.Lazy

	handlerLock *sync.RWMutex
	handler     func(frame *swap.Frame)

	stateLock   *sync.RWMutex
	hwVersion   uint32
	fwVersion   uint32
	carrierFreq byte
	freqChannel byte
	syncWord    uint16
	devAddress  byte
}

func New(opener PortOpener, opts Options) *Modem {
	if nil == opts.Logger {
		opts.Logger = swap.ZapSugarLogger
	}
	return &Modem{
		opener:      opener,
		opts:        opts,
		log:         opts.Logger,
		mode:        uint32(ModeData),
		txLock:      new(sync.Mutex),
		atResp:      util.NewLazy(),
		handlerLock: new(sync.RWMutex),
		stateLock:   new(sync.RWMutex),
	}
}

// OnFrame 设置DATA模式下接收射频数据帧的回调函数
func (m *Modem) OnFrame(handler func(frame *swap.Frame)) {
	m.handlerLock.Lock()
	m.handler = handler
	m.handlerLock.Unlock()
}

// Connect 打开串口，切换到COMMAND模式，并读取Modem的全部参数。任何一项读取失败都中止连接。
func (m *Modem) Connect() error {
	port, err := m.opener()
	if nil != err {
		return err
	}
	m.txLock.Lock()
	m.port = port
	m.closed = make(chan struct{})
	m.done = make(chan struct{})
	frames := make(chan *swap.Frame, frameQueueSize)
	atomic.StoreUint32(&m.mode, uint32(ModeData))
	go m.readLoop(port, frames, m.closed, m.done)
	go m.dispatchLoop(frames)
	err = m.setup()
	m.txLock.Unlock()
	if nil != err {
		_ = m.Close()
	}
	return err
}

func (m *Modem) setup() error {
	if m.opts.SettleInterval > 0 {
		time.Sleep(m.opts.SettleInterval)
	}
	if ModeData == m.Mode() {
		if err := m.goToCommandMode(); nil != err {
			return errors.WithMessage(err, "enter command mode")
		}
	}
	queries := []struct {
		name  string
		cmd   string
		apply func(v uint64)
	}{
		{"hardware version", atHwVersion, func(v uint64) { m.hwVersion = uint32(v) }},
		{"firmware version", atFwVersion, func(v uint64) { m.fwVersion = uint32(v) }},
		{"carrier frequency", atCarrierFreq + "?" + lineEnding, func(v uint64) { m.carrierFreq = byte(v) }},
		{"frequency channel", atFreqChannel + "?" + lineEnding, func(v uint64) { m.freqChannel = byte(v) }},
		{"synchronization word", atSyncWord + "?" + lineEnding, func(v uint64) { m.syncWord = uint16(v) }},
		{"device address", atDeviceAddr + "?" + lineEnding, func(v uint64) { m.devAddress = byte(v) }},
	}
	for _, q := range queries {
		resp, err := m.runAtCommand(q.cmd)
		if nil != err {
			return errors.WithMessage(err, "unable to retrieve "+q.name)
		}
		v, err := strconv.ParseUint(resp, 16, 32)
		if nil != err {
			return errors.Wrap(err, "invalid "+q.name+": "+resp)
		}
		m.stateLock.Lock()
		q.apply(v)
		m.stateLock.Unlock()
	}
	m.log.Infof("Modem已连接: HW=%X, FW=%X, CF=%02X, CH=%02X, SW=%04X, DA=%02X",
		m.HwVersion(), m.FwVersion(), m.CarrierFreq(), m.FreqChannel(), m.SyncWord(), m.DeviceAddress())
	return nil
}

// Close 关闭串口，停止读取数据
func (m *Modem) Close() error {
	m.txLock.Lock()
	port, closed, done := m.port, m.closed, m.done
	m.port = nil
	m.txLock.Unlock()
	if nil == port {
		return nil
	}
	close(closed)
	err := port.Close()
	<-done
	return err
}

func (m *Modem) Mode() Mode {
	return Mode(atomic.LoadUint32(&m.mode))
}

// RunAtCommand 执行AT指令，返回Modem的响应行
func (m *Modem) RunAtCommand(cmd string) (string, error) {
	m.txLock.Lock()
	defer m.txLock.Unlock()
	return m.runAtCommand(cmd)
}

func (m *Modem) GoToCommandMode() error {
	m.txLock.Lock()
	defer m.txLock.Unlock()
	return m.goToCommandMode()
}

func (m *Modem) GoToDataMode() error {
	m.txLock.Lock()
	defer m.txLock.Unlock()
	return m.goToDataMode()
}

// Reset 软件重启Modem
func (m *Modem) Reset() error {
	m.txLock.Lock()
	defer m.txLock.Unlock()
	if err := m.ensureCommandMode(); nil != err {
		return err
	}
	return m.runExpectOK(atReset)
}

// Send 发送射频数据帧；如果当前为COMMAND模式，先切换到DATA模式。
func (m *Modem) Send(data []byte) error {
	m.txLock.Lock()
	defer m.txLock.Unlock()
	if nil == m.port {
		return ErrNotConnected
	}
	if ModeCommand == m.Mode() {
		if err := m.goToDataMode(); nil != err {
			return errors.WithMessage(err, "enter data mode")
		}
	}
	frame := swap.Frame{Data: data}
	return m.write(frame.String() + lineEnding)
}

func (m *Modem) SetCarrierFreq(freq byte) error {
	if freq > swap.MaxCarrierFreq {
		return errors.WithMessage(ErrValueRange, fmt.Sprintf("carrier frequency %X", freq))
	}
	return m.setParam(atCarrierFreq, uint64(freq), 2, func() { m.carrierFreq = freq })
}

func (m *Modem) SetFreqChannel(channel byte) error {
	if channel > swap.MaxFreqChannel {
		return errors.WithMessage(ErrValueRange, fmt.Sprintf("frequency channel %X", channel))
	}
	return m.setParam(atFreqChannel, uint64(channel), 2, func() { m.freqChannel = channel })
}

func (m *Modem) SetSyncWord(sync uint16) error {
	return m.setParam(atSyncWord, uint64(sync), 4, func() { m.syncWord = sync })
}

func (m *Modem) SetDeviceAddress(addr byte) error {
	if swap.BroadcastAddress == addr {
		return errors.WithMessage(ErrValueRange, "device address 0 is broadcast")
	}
	return m.setParam(atDeviceAddr, uint64(addr), 2, func() { m.devAddress = addr })
}

func (m *Modem) HwVersion() uint32 {
	m.stateLock.RLock()
	defer m.stateLock.RUnlock()
	return m.hwVersion
}

func (m *Modem) FwVersion() uint32 {
	m.stateLock.RLock()
	defer m.stateLock.RUnlock()
	return m.fwVersion
}

func (m *Modem) CarrierFreq() byte {
	m.stateLock.RLock()
	defer m.stateLock.RUnlock()
	return m.carrierFreq
}

func (m *Modem) FreqChannel() byte {
	m.stateLock.RLock()
	defer m.stateLock.RUnlock()
	return m.freqChannel
}

func (m *Modem) SyncWord() uint16 {
	m.stateLock.RLock()
	defer m.stateLock.RUnlock()
	return m.syncWord
}

func (m *Modem) DeviceAddress() byte {
	m.stateLock.RLock()
	defer m.stateLock.RUnlock()
	return m.devAddress
}

////

// 参数以固定宽度的HEX编码，Modem返回OK后才更新缓存值
func (m *Modem) setParam(cmd string, val uint64, width int, apply func()) error {
	if val >= uint64(1)<<(uint(width)*4) {
		return errors.WithMessage(ErrValueRange, fmt.Sprintf("%s=%X", cmd, val))
	}
	m.txLock.Lock()
	defer m.txLock.Unlock()
	if err := m.ensureCommandMode(); nil != err {
		return err
	}
	line := fmt.Sprintf("%s=%0*X%s", cmd, width, val, lineEnding)
	if err := m.runExpectOK(line); nil != err {
		return err
	}
	m.stateLock.Lock()
	apply()
	m.stateLock.Unlock()
	return nil
}

func (m *Modem) ensureCommandMode() error {
	if nil == m.port {
		return ErrNotConnected
	}
	if ModeData == m.Mode() {
		return m.goToCommandMode()
	}
	return nil
}

func (m *Modem) goToCommandMode() error {
	if err := m.runExpectOK(atEnterCommand); nil != err {
		return err
	}
	atomic.StoreUint32(&m.mode, uint32(ModeCommand))
	return nil
}

func (m *Modem) goToDataMode() error {
	if err := m.runExpectOK(atEnterData); nil != err {
		return err
	}
	atomic.StoreUint32(&m.mode, uint32(ModeData))
	return nil
}

func (m *Modem) runExpectOK(cmd string) error {
	resp, err := m.runAtCommand(cmd)
	if nil != err {
		return err
	}
	if !strings.HasPrefix(resp, atOK) {
		return errors.WithMessage(ErrAtRejected, strings.TrimSpace(cmd)+" => "+resp)
	}
	return nil
}

func (m *Modem) runAtCommand(cmd string) (string, error) {
	if nil == m.port {
		return "", ErrNotConnected
	}
	m.atResp.Reset()
	atomic.StoreUint32(&m.atPending, 1)
	defer atomic.StoreUint32(&m.atPending, 0)
	if err := m.write(cmd); nil != err {
		return "", err
	}
	resp, err := m.atResp.Take(m.opts.AtTimeout)
	if nil != err {
		return "", errors.WithMessage(ErrAtTimeout, strings.TrimSpace(cmd))
	}
	return resp.(string), nil
}

func (m *Modem) write(line string) error {
	if _, err := m.port.Write([]byte(line)); nil != err {
		return errors.Wrap(err, "write serial port")
	}
	return nil
}

////

func (m *Modem) readLoop(port Port, frames chan<- *swap.Frame, closed <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer close(frames)
	buffer := make([]byte, 256)
	pending := make([]byte, 0, 256)
	for {
		n, err := port.Read(buffer)
		if n > 0 {
			pending = append(pending, buffer[:n]...)
			for {
				idx := bytes.IndexAny(pending, "\r\n")
				if idx < 0 {
					break
				}
				line := strings.TrimSpace(string(pending[:idx]))
				pending = pending[idx+1:]
				if "" != line {
					m.onLine(line, frames)
				}
			}
		}
		if nil != err {
			select {
			case <-closed:
				return
			default:
			}
			if io.EOF == err || IsNetTempErr(err) {
				if 0 == n {
					time.Sleep(time.Millisecond * 10)
				}
				continue
			}
			m.log.Error("读取串口数据出错: ", err)
			return
		}
	}
}

// 数据帧在独立协程中回调，回调函数中可以继续调用Send
func (m *Modem) dispatchLoop(frames <-chan *swap.Frame) {
	for frame := range frames {
		m.handlerLock.RLock()
		handler := m.handler
		m.handlerLock.RUnlock()
		if nil != handler {
			handler(frame)
		}
	}
}

// 以'('开头的行总是射频数据帧；其它行在AT指令等待期间作为响应。
func (m *Modem) onLine(line string, frames chan<- *swap.Frame) {
	if strings.HasPrefix(line, "(") {
		frame, err := swap.ParseFrame(line)
		if nil != err {
			m.log.Debug("丢弃无效数据帧: ", err)
			return
		}
		select {
		case frames <- frame:
		default:
			m.log.Warn("数据帧队列已满，丢弃: ", line)
		}
		return
	}
	if 1 == atomic.LoadUint32(&m.atPending) {
		m.atResp.Store(line)
		return
	}
	m.log.Debugf("丢弃Modem数据(%s模式): %s", m.Mode(), line)
}
