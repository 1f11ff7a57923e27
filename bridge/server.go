package bridge

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/tidwall/evio"
	"github.com/yoojia/go-value"
	"go.uber.org/zap"
)

//
// 使用Evio作为控制台服务端，支持 tcp, udp, unix 等通讯方式。
// 客户端每行发送一条AT指令，服务端按行返回执行结果。
// 指令在事件循环中同步执行，需要等待设备应答的指令会阻塞同一循环中的其它连接。
//

const maxLineLength = 512

type ServerOptions struct {
	Addresses   []string
	NumLoops    int
	LoadBalance evio.LoadBalance
}

// ParseServerOptions 从配置 [ConsoleOptions] 中读取服务端参数
func ParseServerOptions(config map[string]interface{}) ServerOptions {
	opts := ServerOptions{
		NumLoops:    int(value.Of(config["numLoops"]).Int64OrDefault(1)),
		LoadBalance: evio.Random,
	}
	switch addr := config["address"].(type) {
	case nil:
	case string:
		opts.Addresses = []string{addr}
	default:
		opts.Addresses = value.Of(addr).MustStringArray()
	}
	if opts.NumLoops > 1 {
		lb, _ := value.ToStringB(config["loadBalance"])
		switch strings.ToLower(lb) {
		case "roundrobin":
			opts.LoadBalance = evio.RoundRobin
		case "leastconnections":
			opts.LoadBalance = evio.LeastConnections
		default:
			opts.LoadBalance = evio.Random
		}
	}
	return opts
}

// ServeConsole 启动控制台服务端，直到shutdown结束
func ServeConsole(shutdown context.Context, console *Console, opts ServerOptions, log *zap.SugaredLogger) error {
	var server evio.Events
	server.NumLoops = opts.NumLoops
	server.LoadBalance = opts.LoadBalance

	server.Opened = func(c evio.Conn) (out []byte, opts evio.Options, action evio.Action) {
		log.Debug("接受控制台客户端: ", c.RemoteAddr())
		c.SetContext(new(bytes.Buffer))
		return
	}

	server.Closed = func(c evio.Conn, err error) (action evio.Action) {
		log.Debug("断开控制台客户端: ", c.RemoteAddr())
		return
	}

	server.Data = func(c evio.Conn, in []byte) (out []byte, action evio.Action) {
		buf, ok := c.Context().(*bytes.Buffer)
		if !ok {
			// UDP没有连接上下文，每个数据包作为独立指令
			buf = new(bytes.Buffer)
		}
		buf.Write(in)
		lines, overflow := splitLines(buf)
		for _, line := range lines {
			out = append(out, console.Apply(line)...)
			out = append(out, '\r', '\n')
		}
		if overflow {
			out = append(out, replyErr+"LINE_TOO_LONG\r\n"...)
		}
		if !ok && buf.Len() > 0 {
			out = append(out, console.Apply(buf.String())...)
			out = append(out, '\r', '\n')
		}
		return
	}

	server.Tick = func() (delay time.Duration, action evio.Action) {
		select {
		case <-shutdown.Done():
			action = evio.Shutdown
		default:
		}
		return time.Millisecond * 200, action
	}

	log.Debug("开启控制台服务端: ", opts.Addresses)
	defer log.Debug("停止控制台服务端")
	return evio.Serve(server, opts.Addresses...)
}

// 取出缓存中的完整行，剩余数据保留在缓存中。超长的数据被丢弃。
func splitLines(buf *bytes.Buffer) (lines []string, overflow bool) {
	for {
		data := buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSpace(string(data[:idx]))
		buf.Next(idx + 1)
		if "" != line {
			lines = append(lines, line)
		}
	}
	if buf.Len() > maxLineLength {
		buf.Reset()
		overflow = true
	}
	return lines, overflow
}
