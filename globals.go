package swap

import "time"

const (
	MqttBrokerDefault = "tcp://127.0.0.1:1883"
)

// 全局配置
type Globals struct {
	MqttBroker            string
	MqttUsername          string
	MqttPassword          string
	MqttQoS               uint8
	MqttRetained          bool
	MqttKeepAlive         time.Duration
	MqttPingTimeout       time.Duration
	MqttConnectTimeout    time.Duration
	MqttReconnectInterval time.Duration
	MqttAutoReconnect     bool
	MqttCleanSession      bool
	MqttMaxRetry          int
	MqttQuitMillSec       uint
}

// DefaultGlobals 从环境变量中读取MQTT参数，其它参数使用默认值
func DefaultGlobals() *Globals {
	return &Globals{
		MqttBroker:            EnvGetString(EnvKeyMQBroker, MqttBrokerDefault),
		MqttUsername:          EnvGetString(EnvKeyMQUsername, ""),
		MqttPassword:          EnvGetString(EnvKeyMQPassword, ""),
		MqttQoS:               uint8(EnvGetInt64(EnvKeyMQQOS, 1)),
		MqttRetained:          EnvGetBoolean(EnvKeyMQRetained, false),
		MqttCleanSession:      EnvGetBoolean(EnvKeyMQCleanSession, true),
		MqttKeepAlive:         time.Second * 3,
		MqttPingTimeout:       time.Second * 1,
		MqttConnectTimeout:    time.Second * 5,
		MqttReconnectInterval: time.Second * 1,
		MqttAutoReconnect:     true,
		MqttMaxRetry:          120,
		MqttQuitMillSec:       500,
	}
}
