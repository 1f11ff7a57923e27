package swap

import (
	"os"
	"strconv"
)

const (
	EnvKeyMQBroker          = "SWAP_MQTT_BROKER"
	EnvKeyMQUsername        = "SWAP_MQTT_USERNAME"
	EnvKeyMQPassword        = "SWAP_MQTT_PASSWORD"
	EnvKeyMQQOS             = "SWAP_MQTT_QOS"
	EnvKeyMQRetained        = "SWAP_MQTT_RETAINED"
	EnvKeyMQCleanSession    = "SWAP_MQTT_CLEAN_SESSION"
	EnvKeyConfig            = "SWAP_CONFIG"
	EnvKeyLogVerbose        = "SWAP_LOG_VERBOSE"
	EnvKeyLogFile           = "SWAP_LOG_FILE"
	EnvKeyLogFileMaxSize    = "SWAP_LOG_FILE_MAX_SIZE"
	EnvKeyLogFileMaxBackups = "SWAP_LOG_FILE_MAX_BACKUPS"
	EnvKeyLogFileMaxAge     = "SWAP_LOG_FILE_MAX_AGE"
)

func EnvGetString(key, defValue string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	} else {
		return defValue
	}
}

// EnvGetInt64 读取整数环境变量。这个函数在Logger初始化之前也可能被调用，所以出错时不输出日志。
func EnvGetInt64(key string, defValue int64) int64 {
	if v, ok := os.LookupEnv(key); ok {
		if iv, err := strconv.ParseInt(v, 10, 64); nil != err {
			return defValue
		} else {
			return iv
		}
	} else {
		return defValue
	}
}

func EnvGetBoolean(key string, defValue bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		return "true" == v
	} else {
		return defValue
	}
}
