package bridge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nextabc-lab/swap"
	"github.com/nextabc-lab/swap/gateway"
	"github.com/pkg/errors"
	"github.com/yoojia/go-at"
)

//
// 控制台使用AT指令控制网关，每条指令返回一行结果：
//   成功: EX=OK[:数据]
//   失败: EX=ERR:原因
//
// 数字参数支持十进制和0x前缀的十六进制；寄存器值使用十六进制字符串。
//

const (
	replyOK  = "EX=OK"
	replyErr = "EX=ERR:"
)

type Console struct {
	ctrl     Controller
	registry *at.AtRegister
}

func NewConsole(ctrl Controller) *Console {
	c := &Console{
		ctrl:     ctrl,
		registry: at.NewAtRegister(),
	}
	c.register()
	return c
}

// Apply 执行一条AT指令，返回结果文本
func (c *Console) Apply(line string) string {
	line = strings.TrimSpace(line)
	if "" == line {
		return replyErr + "EMPTY"
	}
	out, err := c.registry.Apply(line)
	if nil != err {
		return replyErr + err.Error()
	}
	if 0 == len(out) {
		return replyOK
	}
	return replyOK + ":" + string(out)
}

func (c *Console) register() {
	// AT+CHANNEL=CHANNEL
	c.registry.AddX("CHANNEL", 1, func(args ...string) ([]byte, error) {
		channel, err := parseByte(args[0])
		if nil != err {
			return nil, errors.New("INVALID_CHANNEL:" + args[0])
		}
		return rolloutReply(c.ctrl.SetFreqChannel(channel))
	})
	// AT+NETID=HEX
	c.registry.AddX("NETID", 1, func(args ...string) ([]byte, error) {
		netId, err := strconv.ParseUint(args[0], 16, 16)
		if nil != err {
			return nil, errors.New("INVALID_NETID:" + args[0])
		}
		return rolloutReply(c.ctrl.SetNetId(uint16(netId)))
	})
	// AT+SECU=OPTION
	c.registry.AddX("SECU", 1, func(args ...string) ([]byte, error) {
		secu, err := parseByte(args[0])
		if nil != err || secu > swap.MaxSecurityOption {
			return nil, errors.New("INVALID_SECU:" + args[0])
		}
		return rolloutReply(c.ctrl.SetSecurity(secu))
	})
	// AT+DEVADDR=ADDRESS
	c.registry.AddX("DEVADDR", 1, func(args ...string) ([]byte, error) {
		addr, err := parseAddress(args[0])
		if nil != err {
			return nil, err
		}
		return rolloutReply(c.ctrl.SetDevAddress(addr))
	})
	// AT+CMD=ADDRESS,REG_ID,HEX_VALUE
	c.registry.AddX("CMD", 3, func(args ...string) ([]byte, error) {
		m, regId, err := c.moteRegister(args[0], args[1])
		if nil != err {
			return nil, err
		}
		val, err := swap.ParseHexValue(args[2])
		if nil != err || val.IsEmpty() {
			return nil, errors.New("INVALID_VALUE:" + args[2])
		}
		return ackReply(c.ctrl.CmdRegisterWack(m.Handle, regId, val))
	})
	// AT+QRY=ADDRESS,REG_ID
	c.registry.AddX("QRY", 2, func(args ...string) ([]byte, error) {
		m, regId, err := c.moteRegister(args[0], args[1])
		if nil != err {
			return nil, err
		}
		val, err := c.ctrl.QueryRegister(m.Handle, regId)
		if nil != err {
			return nil, toReplyError(err)
		}
		return []byte(val.Hex()), nil
	})
	// AT+PENDING=ADDRESS
	c.registry.AddX("PENDING", 1, func(args ...string) ([]byte, error) {
		m, err := c.mote(args[0])
		if nil != err {
			return nil, err
		}
		sent, err := c.ctrl.SendPending(m.Handle)
		if nil != err {
			return nil, toReplyError(err)
		}
		if !sent {
			return []byte("NONE"), nil
		}
		return []byte("SENT"), nil
	})
	// AT+RESTART=ADDRESS
	c.registry.AddX("RESTART", 1, func(args ...string) ([]byte, error) {
		m, err := c.mote(args[0])
		if nil != err {
			return nil, err
		}
		return ackReply(c.ctrl.Restart(m.Handle))
	})
	// AT+LEAVESYNC=ADDRESS
	c.registry.AddX("LEAVESYNC", 1, func(args ...string) ([]byte, error) {
		m, err := c.mote(args[0])
		if nil != err {
			return nil, err
		}
		return nil, toReplyError(c.ctrl.LeaveSync(m.Handle))
	})
	// AT+EPSET=ENDPOINT_ID,HEX_VALUE
	c.registry.AddX("EPSET", 2, func(args ...string) ([]byte, error) {
		id, err := strconv.ParseInt(args[0], 0, 32)
		if nil != err {
			return nil, errors.New("INVALID_ENDPOINT:" + args[0])
		}
		ep, ok := c.ctrl.Endpoint(gateway.EndpointHandle(id))
		if !ok {
			return nil, errors.New("UNKNOWN_ENDPOINT:" + args[0])
		}
		val, err := swap.ParseHexValue(args[1])
		if nil != err || val.IsEmpty() {
			return nil, errors.New("INVALID_VALUE:" + args[1])
		}
		return ackReply(c.ctrl.CmdEndpointWack(ep.Handle, val))
	})
	// AT+MOTES
	c.registry.AddX("MOTES", 0, func(args ...string) ([]byte, error) {
		motes := c.ctrl.Motes()
		items := make([]string, 0, len(motes))
		for _, m := range motes {
			items = append(items, fmt.Sprintf("%02X/%08X/%08X/%s", m.Address, m.ManufacturerId, m.ProductId, swap.StateName(m.State)))
		}
		return []byte(strings.Join(items, ",")), nil
	})
	// AT+EPS
	c.registry.AddX("EPS", 0, func(args ...string) ([]byte, error) {
		endpoints := c.ctrl.Endpoints()
		items := make([]string, 0, len(endpoints))
		for _, ep := range endpoints {
			items = append(items, fmt.Sprintf("%d/%02X/%d/%s=%s", ep.Handle, ep.Address, ep.RegId, ep.Name, ep.Value.Hex()))
		}
		return []byte(strings.Join(items, ",")), nil
	})
}

func (c *Console) mote(arg string) (gateway.Mote, error) {
	addr, err := parseAddress(arg)
	if nil != err {
		return gateway.Mote{}, err
	}
	m, ok := c.ctrl.MoteByAddress(addr)
	if !ok {
		return gateway.Mote{}, errors.New("UNKNOWN_MOTE:" + arg)
	}
	return m, nil
}

func (c *Console) moteRegister(addrArg, regArg string) (gateway.Mote, byte, error) {
	m, err := c.mote(addrArg)
	if nil != err {
		return m, 0, err
	}
	id, err := strconv.ParseInt(regArg, 0, 64)
	if nil != err {
		return m, 0, errors.New("INVALID_REG_ID:" + regArg)
	}
	regId, ok := swap.CheckRegisterId(id)
	if !ok {
		return m, 0, errors.New("INVALID_REG_ID:" + regArg)
	}
	return m, regId, nil
}

////

func rolloutReply(result gateway.RolloutResult, err error) ([]byte, error) {
	if nil != err {
		return nil, toReplyError(err)
	}
	return []byte(result.String()), nil
}

func ackReply(ack gateway.AckResult, err error) ([]byte, error) {
	if nil != err {
		return nil, toReplyError(err)
	}
	if gateway.AckFailed == ack {
		return nil, errors.New("NO_ACK")
	}
	return []byte(ack.String()), nil
}

func toReplyError(err error) error {
	if nil == err {
		return nil
	}
	return errors.New(strings.ToUpper(strings.Replace(err.Error(), " ", "_", -1)))
}

func parseByte(val string) (byte, error) {
	v, err := strconv.ParseUint(val, 0, 8)
	return byte(v), err
}

func parseAddress(val string) (byte, error) {
	v, err := strconv.ParseInt(val, 0, 64)
	if nil != err {
		return 0, errors.New("INVALID_ADDRESS:" + val)
	}
	addr, ok := swap.CheckAddress(v)
	if !ok {
		return 0, errors.New("INVALID_ADDRESS:" + val)
	}
	return addr, nil
}
