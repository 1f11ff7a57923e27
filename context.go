package swap

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/yoojia/go-value"
	"go.uber.org/zap"
)

// Context 为网关程序提供运行环境：节点ID、全局参数、配置文件与退出信号。
type Context interface {
	// NodeId 返回节点ID，用于MQTT Topic和客户端ID
	NodeId() string

	// 使用配置结构来初化Context
	InitialWithConfig(config map[string]interface{})

	// Globals 返回全局参数
	Globals() *Globals

	// Config 返回初始化时使用的配置；未初始化时返回空Map。
	Config() map[string]interface{}

	// 返回Log对象
	Log() *zap.SugaredLogger

	// 当环境变量 SWAP_LOG_VERBOSE 为"true"，或配置了 Globals.LogVerbose 时执行冗余日志输出。
	LogIfVerbose(fn func(log *zap.SugaredLogger))

	// LoadConfig 加载默认配置文件名的配置
	LoadConfig() (map[string]interface{}, error)

	// LoadConfigByName 加载指定文件名的配置，返回Map数据结构对象。
	LoadConfigByName(fileName string) (map[string]interface{}, error)

	// TermChan 返回监听系统中断退出信号的通道
	TermChan() <-chan os.Signal

	// TermAwait 阻塞等待系统中断退出信号
	TermAwait() error
}

const (
	DefaultConfName = "application.toml"
	DefaultConfDir  = "/etc/swap/"
)

var (
	ErrConfigNotExist = errors.New("config not exists")
)

////

// Run 运行网关程序
func Run(application func(ctx Context) error) error {
	ctx := CreateDefaultContext()
	log.Info("启动SWAP网关")
	defer func() {
		log.Info("停止SWAP网关")
		_ = ZapLogger.Sync()
	}()
	if err := application(ctx); nil != err {
		log.Error("SWAP网关出错: ", err)
		return err
	}
	return nil
}

// CreateContext 使用指定 Globals 参数，创建Context对象。
func CreateContext(globals *Globals) Context {
	return &NodeContext{
		globals:    globals,
		config:     make(map[string]interface{}),
		logVerbose: EnvGetBoolean(EnvKeyLogVerbose, false),
	}
}

// CreateDefaultContext 从环境变量中读取 Globals 参数，并创建返回Context对象。
func CreateDefaultContext() Context {
	return CreateContext(DefaultGlobals())
}

//// Context实现

type NodeContext struct {
	globals    *Globals
	config     map[string]interface{}
	logVerbose bool
	nodeId     string
}

func (c *NodeContext) InitialWithConfig(config map[string]interface{}) {
	c.config = config
	c.nodeId = "swapgate"
	if str, ok := value.ToStringB(config["NodeId"]); ok && "" != str {
		c.nodeId = str
	}
	checkNameFormat(c.nodeId)
	// Globals设置
	if globals, ok := value.ToMap(config["Globals"]); ok {
		// 其它全局配置
		if flag, ok := value.ToBool(globals["LogVerbose"]); ok {
			c.logVerbose = flag
		}
		// MQTT配置
		if str, ok := value.ToStringB(globals["MqttBroker"]); ok {
			c.globals.MqttBroker = str
		}
		if str, ok := value.ToStringB(globals["MqttUsername"]); ok {
			c.globals.MqttUsername = str
		}
		if str, ok := value.ToStringB(globals["MqttPassword"]); ok {
			c.globals.MqttPassword = str
		}
		if iv, ok := value.ToInt64(globals["MqttQoS"]); ok {
			c.globals.MqttQoS = uint8(iv)
		}
		if flag, ok := value.ToBool(globals["MqttRetained"]); ok {
			c.globals.MqttRetained = flag
		}
		if du, ok := value.ToDuration(globals["MqttKeepAlive"]); ok {
			c.globals.MqttKeepAlive = du
		}
		if du, ok := value.ToDuration(globals["MqttPingTimeout"]); ok {
			c.globals.MqttPingTimeout = du
		}
		if du, ok := value.ToDuration(globals["MqttConnectTimeout"]); ok {
			c.globals.MqttConnectTimeout = du
		}
		if du, ok := value.ToDuration(globals["MqttReconnectInterval"]); ok {
			c.globals.MqttReconnectInterval = du
		}
		if flag, ok := value.ToBool(globals["MqttAutoReconnect"]); ok {
			c.globals.MqttAutoReconnect = flag
		}
		if flag, ok := value.ToBool(globals["MqttCleanSession"]); ok {
			c.globals.MqttCleanSession = flag
		}
		if iv, ok := value.ToInt64(globals["MqttMaxRetry"]); ok {
			c.globals.MqttMaxRetry = int(iv)
		}
		if iv, ok := value.ToInt64(globals["MqttQuitMillSec"]); ok {
			c.globals.MqttQuitMillSec = uint(iv)
		}
	}
}

func (c *NodeContext) NodeId() string {
	return c.nodeId
}

func (c *NodeContext) Globals() *Globals {
	return c.globals
}

func (c *NodeContext) Config() map[string]interface{} {
	return c.config
}

func (c *NodeContext) LoadConfig() (map[string]interface{}, error) {
	return LoadConfig()
}

func (c *NodeContext) LoadConfigByName(fileName string) (map[string]interface{}, error) {
	return LoadConfigByName(fileName)
}

func (c *NodeContext) TermChan() <-chan os.Signal {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGTERM, syscall.SIGINT)
	signal.Ignore(syscall.SIGPIPE)
	return sig
}

func (c *NodeContext) TermAwait() error {
	<-c.TermChan()
	return nil
}

func (c *NodeContext) Log() *zap.SugaredLogger {
	return log
}

func (c *NodeContext) LogIfVerbose(fn func(log *zap.SugaredLogger)) {
	if c.logVerbose {
		fn(log)
	}
}

////

// LoadConfigByName 加载指定文件名的配置信息。
// 配置文件加载顺序：
// 1. 当前运行目录;
// 2. 目录：/etc/swap/;
// 3. 环境变量"SWAP_CONFIG"指定的路径;
func LoadConfigByName(fileName string) (map[string]interface{}, error) {
	searchConfig := func(files ...string) (f string, err error) {
		for _, file := range files {
			if "" == file {
				continue
			}
			if _, err := os.Stat(file); nil == err {
				return file, nil
			}
		}
		return "", ErrConfigNotExist
	}
	config := make(map[string]interface{})
	file, err := searchConfig(fileName, DefaultConfDir+fileName, os.Getenv(EnvKeyConfig))
	if nil != err {
		return config, errors.WithMessage(err, fileName)
	} else {
		log.Info("加载配置文件：", file)
	}
	if _, err := toml.DecodeFile(file, &config); nil != err {
		return config, errors.Wrap(err, fmt.Sprintf("读取配置文件(%s)出错", file))
	}
	return config, nil
}

// LoadConfig 加载默认文件名的配置。
func LoadConfig() (map[string]interface{}, error) {
	return LoadConfigByName(DefaultConfName)
}
