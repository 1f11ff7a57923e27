package modem

import (
	"io"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"
	"github.com/yoojia/go-value"
)

// Port 是Modem的数据通道：串口，或者串口服务器的TCP连接。
// 读超时返回 io.EOF 或 net.Error(Timeout)，调用方继续读取即可。
type Port interface {
	io.ReadWriteCloser
}

// PortOpener 在 Modem.Connect 时打开数据通道
type PortOpener func() (Port, error)

////

// SerialOptions 串口参数
type SerialOptions struct {
	Name        string
	Baud        int
	DataBit     byte
	Parity      serial.Parity
	StopBits    serial.StopBits
	ReadTimeout time.Duration
}

// ParseSerialOptions 从配置Map中读取串口参数
func ParseSerialOptions(config map[string]interface{}) SerialOptions {
	parity := serial.ParityNone
	switch strings.ToUpper(value.Of(config["parity"]).String()) {
	case "N", "NONE":
		parity = serial.ParityNone
	case "O", "ODD":
		parity = serial.ParityOdd
	case "E", "EVEN":
		parity = serial.ParityEven
	case "M", "MARK":
		parity = serial.ParityMark
	case "S", "SPACE":
		parity = serial.ParitySpace

	default:
		parity = serial.ParityNone
	}
	return SerialOptions{
		Name:        value.Of(config["serialPort"]).String(),
		Baud:        int(value.Of(config["baudRate"]).Int64OrDefault(38400)),
		DataBit:     byte(value.Of(config["dataBit"]).Int64OrDefault(8)),
		Parity:      parity,
		StopBits:    serial.StopBits(value.Of(config["stopBits"]).Int64OrDefault(1)),
		ReadTimeout: value.Of(config["readTimeout"]).DurationOfDefault(time.Millisecond * 500),
	}
}

// OpenSerialPort 返回打开串口的PortOpener
func OpenSerialPort(opts SerialOptions) PortOpener {
	return func() (Port, error) {
		if "" == opts.Name {
			return nil, errors.New("serial port name is required")
		}
		port, err := serial.OpenPort(&serial.Config{
			Name:        opts.Name,
			Baud:        opts.Baud,
			Size:        opts.DataBit,
			Parity:      opts.Parity,
			StopBits:    opts.StopBits,
			ReadTimeout: opts.ReadTimeout,
		})
		if nil != err {
			return nil, errors.WithMessage(err, "open serial port: "+opts.Name)
		}
		return port, nil
	}
}

////

// SockOptions 串口服务器的TCP连接参数
type SockOptions struct {
	Addr              string        // 地址
	ReadTimeout       time.Duration // 读超时
	WriteTimeout      time.Duration // 写超时
	KeepAlive         bool          // KeepAlive
	KeepAliveInterval time.Duration // KeepAlive周期
}

// ParseSockOptions 从配置Map中读取串口服务器参数；地址格式：tcp://host:port
func ParseSockOptions(config map[string]interface{}) SockOptions {
	address := value.Of(config["address"]).String()
	if strings.Contains(address, "://") {
		address = strings.SplitN(address, "://", 2)[1]
	}
	return SockOptions{
		Addr:              address,
		ReadTimeout:       value.Of(config["readTimeout"]).DurationOfDefault(time.Millisecond * 500),
		WriteTimeout:      value.Of(config["writeTimeout"]).DurationOfDefault(time.Second),
		KeepAlive:         value.Of(config["keepAlive"]).BoolOrDefault(true),
		KeepAliveInterval: value.Of(config["keepAliveInterval"]).DurationOfDefault(time.Second * 3),
	}
}

// OpenSockPort 返回连接串口服务器的PortOpener。连接断开后不自动重连。
func OpenSockPort(opts SockOptions) PortOpener {
	return func() (Port, error) {
		addr, err := net.ResolveTCPAddr("tcp", opts.Addr)
		if nil != err {
			return nil, errors.WithMessage(err, "resolve tcp address failed")
		}
		conn, err := net.DialTCP("tcp", nil, addr)
		if nil != err {
			return nil, errors.WithMessage(err, "TCP dial failed")
		}
		_ = conn.SetKeepAlive(opts.KeepAlive)
		_ = conn.SetKeepAlivePeriod(opts.KeepAliveInterval)
		return &sockPort{conn: conn, opts: opts, state: connected}, nil
	}
}

// OpenPort 根据配置选择串口或串口服务器：配置了 address 时使用TCP连接。
func OpenPort(config map[string]interface{}) PortOpener {
	if addr, ok := value.ToStringB(config["address"]); ok && "" != addr {
		return OpenSockPort(ParseSockOptions(config))
	}
	return OpenSerialPort(ParseSerialOptions(config))
}

////

const (
	disconnected uint32 = iota
	connected
)

type sockPort struct {
	conn  net.Conn
	opts  SockOptions
	state uint32
}

func (s *sockPort) Read(buff []byte) (n int, err error) {
	if connected != atomic.LoadUint32(&s.state) {
		return 0, ErrNotConnected
	}
	if s.opts.ReadTimeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout)); nil != err {
			return 0, err
		}
	}
	return s.conn.Read(buff)
}

func (s *sockPort) Write(data []byte) (n int, err error) {
	if connected != atomic.LoadUint32(&s.state) {
		return 0, ErrNotConnected
	}
	if s.opts.WriteTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); nil != err {
			return 0, err
		}
	}
	return s.conn.Write(data)
}

func (s *sockPort) Close() error {
	atomic.StoreUint32(&s.state, disconnected)
	return s.conn.Close()
}

// IsNetTempErr 判断是否为网络超时等临时错误
func IsNetTempErr(err error) bool {
	if nErr, ok := errors.Cause(err).(net.Error); ok {
		return nErr.Timeout() || nErr.Temporary()
	} else {
		return false
	}
}
