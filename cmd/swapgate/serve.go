package main

import (
	"context"
	"net/http"

	"github.com/nextabc-lab/swap"
	"github.com/nextabc-lab/swap/bridge"
	"github.com/nextabc-lab/swap/gateway"
	"github.com/nextabc-lab/swap/modem"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yoojia/go-value"
	"go.uber.org/zap"
)

func serve(ctx swap.Context, configFile string) error {
	config, err := ctx.LoadConfigByName(configFile)
	if nil != err {
		return err
	}
	ctx.InitialWithConfig(config)
	log := ctx.Log()

	profiles, err := gateway.LoadProfiles(devicesOf(config))
	if nil != err {
		return errors.WithMessage(err, "load device profiles")
	}
	log.Infof("加载设备描述: %d", profiles.Len())

	modemOpts := modem.ParseOptions(sectionOf(config, "ModemOptions"))
	modemOpts.Logger = log
	mdm := modem.New(modem.OpenPort(sectionOf(config, "SerialOptions")), modemOpts)

	gwOpts := gateway.ParseOptions(sectionOf(config, "GatewayOptions"))
	gwOpts.Logger = log
	gw := gateway.New(mdm, profiles, gwOpts)
	gw.Observe(func(event gateway.Event) {
		ctx.LogIfVerbose(func(log *zap.SugaredLogger) {
			log.Debugf("网关事件: %s, 设备=%02X, Endpoint=%s", event.Type, event.Mote.Address, event.Endpoint.Name)
		})
		// 休眠设备进入SYNC状态时保持接收，发送待发送的命令
		if gateway.EventMoteSync == event.Type && event.Mote.HasPending {
			if _, err := gw.SendPending(event.Mote.Handle); nil != err {
				log.Error("发送待发送命令出错: ", err)
			}
		}
	})

	if err := gw.Connect(); nil != err {
		return err
	}
	defer func() {
		if err := gw.Disconnect(); nil != err {
			log.Error("断开Modem出错: ", err)
		}
	}()

	console := bridge.NewConsole(gw)
	shutdown, cancel := context.WithCancel(context.Background())
	defer cancel()

	mqttOpts := sectionOf(config, "MqttOptions")
	if value.Of(mqttOpts["enabled"]).BoolOrDefault(true) {
		mqttBridge := bridge.NewMqttBridge(ctx, gw, console)
		mqttBridge.Startup()
		defer mqttBridge.Shutdown()
	}

	consoleOpts := bridge.ParseServerOptions(sectionOf(config, "ConsoleOptions"))
	if len(consoleOpts.Addresses) > 0 {
		go func() {
			if err := bridge.ServeConsole(shutdown, console, consoleOpts, log); nil != err {
				log.Error("控制台服务端出错: ", err)
			}
		}()
	}

	metricsOpts := sectionOf(config, "MetricsOptions")
	if addr, ok := value.ToStringB(metricsOpts["address"]); ok && "" != addr {
		path, ok := value.ToStringB(metricsOpts["path"])
		if !ok || "" == path {
			path = "/metrics"
		}
		mux := http.NewServeMux()
		mux.Handle(path, promhttp.Handler())
		server := &http.Server{Addr: addr, Handler: mux}
		go func() {
			log.Infof("开启Metrics服务: %s%s", addr, path)
			if err := server.ListenAndServe(); nil != err && http.ErrServerClosed != err {
				log.Error("Metrics服务出错: ", err)
			}
		}()
		defer server.Close()
	}

	return ctx.TermAwait()
}

func sectionOf(config map[string]interface{}, name string) map[string]interface{} {
	if section, ok := value.ToMap(config[name]); ok {
		return section
	}
	return make(map[string]interface{})
}

// [[Devices]] 数组
func devicesOf(config map[string]interface{}) []map[string]interface{} {
	switch devices := config["Devices"].(type) {
	case []map[string]interface{}:
		return devices
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(devices))
		for _, item := range devices {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}
