package gateway

import (
	"time"

	"github.com/nextabc-lab/swap"
	"github.com/yoojia/go-value"
	"go.uber.org/zap"
)

const (
	DefaultAckTimeout = time.Millisecond * 500
	DefaultMaxTries   = 3
)

// Options 网关参数
type Options struct {
	// 等待单次应答的时间
	AckTimeout time.Duration
	// 需要应答的命令最多发送次数
	MaxTries int
	// 发送数据包使用的安全选项
	Security byte
	// 中继重复帧的过滤时间窗口；0表示不过滤
	RepeaterWindow time.Duration
	Logger         *zap.SugaredLogger
}

func DefaultOptions() Options {
	return Options{
		AckTimeout:     DefaultAckTimeout,
		MaxTries:       DefaultMaxTries,
		RepeaterWindow: time.Second * 2,
		Logger:         swap.ZapSugarLogger,
	}
}

// ParseOptions 从配置 [GatewayOptions] 中读取网关参数
func ParseOptions(config map[string]interface{}) Options {
	opts := DefaultOptions()
	opts.AckTimeout = value.Of(config["ackTimeout"]).DurationOfDefault(DefaultAckTimeout)
	opts.MaxTries = int(value.Of(config["maxTries"]).Int64OrDefault(DefaultMaxTries))
	opts.Security = byte(value.Of(config["security"]).Int64OrDefault(0)) & swap.MaxSecurityOption
	opts.RepeaterWindow = value.Of(config["repeaterWindow"]).DurationOfDefault(time.Second * 2)
	return opts
}
