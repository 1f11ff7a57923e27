package swap

import "strings"

// 节点名称用于MQTT Topic，不能包含Topic分隔符和通配符
func checkNameFormat(name string) string {
	if "" == name || strings.ContainsAny(name, "/+#") {
		log.Panic("名称中不能包含'/', '+', '#'字符:" + name)
	}
	return name
}

// CheckAddress 检查设备地址：1-255，0为广播地址
func CheckAddress(addr int64) (byte, bool) {
	if addr <= BroadcastAddress || addr > 0xFF {
		return 0, false
	}
	return byte(addr), true
}

// CheckRegisterId 检查寄存器ID范围
func CheckRegisterId(id int64) (byte, bool) {
	if id < 0 || id > MaxRegisterId {
		return 0, false
	}
	return byte(id), true
}
