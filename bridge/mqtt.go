package bridge

import (
	"fmt"
	"time"

	"github.com/eclipse/paho.mqtt.golang"
	"github.com/nextabc-lab/swap"
	"github.com/nextabc-lab/swap/gateway"
	"github.com/yoojia/go-jsonx"
	"go.uber.org/zap"
)

//
// MqttBridge 将网关事件发布到MQTT服务器，并接收MQTT控制请求。
// 请求消息体为AT指令，结果发送到对应的Reply Topic。
//

type MqttBridge struct {
	ctx     swap.Context
	nodeId  string
	globals *swap.Globals
	ctrl    Controller
	console *Console
	log     *zap.SugaredLogger

	mqttRef        mqtt.Client
	mqttRequest    string
	mqttShutdownCh chan struct{}
}

func NewMqttBridge(ctx swap.Context, ctrl Controller, console *Console) *MqttBridge {
	return &MqttBridge{
		ctx:     ctx,
		nodeId:  ctx.NodeId(),
		globals: ctx.Globals(),
		ctrl:    ctrl,
		console: console,
		log:     ctx.Log(),
	}
}

// Startup 连接MQTT服务器，订阅控制请求，并开始发布网关事件
func (b *MqttBridge) Startup() {
	opts := mqtt.NewClientOptions()
	opts.SetClientID(fmt.Sprintf("swap:%s", b.nodeId))
	opts.SetWill(topicOfOffline(b.nodeId), "offline", 1, true)
	mqttSetOptions(opts, b.globals)
	opts.SetOnConnectHandler(func(cli mqtt.Client) {
		b.log.Info("Mqtt客户端连接成功: ", b.globals.MqttBroker)
	})
	opts.SetConnectionLostHandler(func(cli mqtt.Client, err error) {
		b.log.Warn("Mqtt客户端连接断开: ", err)
	})
	b.mqttRef = mqtt.NewClient(opts)
	b.mqttShutdownCh = make(chan struct{})
	mqttAwaitConnection(b.log, b.mqttRef, b.globals.MqttMaxRetry)

	b.mqttRequest = topicOfRequestListen(b.nodeId)
	b.log.Debugf("订阅请求Topic= %s", b.mqttRequest)
	b.mqttRef.Subscribe(b.mqttRequest, b.globals.MqttQoS, func(cli mqtt.Client, msg mqtt.Message) {
		// 控制请求需要等待设备应答，不能阻塞MQTT消息分发
		go b.serveRequest(msg.Topic(), msg.Payload())
	})
	b.ctrl.Observe(b.publishEvent)
}

func (b *MqttBridge) Shutdown() {
	if nil == b.mqttRef {
		return
	}
	close(b.mqttShutdownCh)
	b.mqttRef.Unsubscribe(b.mqttRequest)
	b.mqttRef.Disconnect(b.globals.MqttQuitMillSec)
}

func (b *MqttBridge) serveRequest(topic string, payload []byte) {
	replyTopic, reply, ok := b.handleRequest(topic, payload)
	if !ok {
		b.log.Warn("无效的请求Topic: ", topic)
		return
	}
	token := b.mqttRef.Publish(replyTopic, b.globals.MqttQoS, false, reply)
	if token.Wait() && nil != token.Error() {
		b.log.Error("发送请求结果出错: ", token.Error())
	}
}

// 执行请求，返回结果的Topic和消息体
func (b *MqttBridge) handleRequest(topic string, payload []byte) (string, []byte, bool) {
	seqId, caller, ok := unwrapRequestTopic(topic)
	if !ok {
		return "", nil, false
	}
	b.ctx.LogIfVerbose(func(log *zap.SugaredLogger) {
		log.Debugf("接收到控制请求，来源：%s, 序号：%s, 指令：%s", caller, seqId, string(payload))
	})
	reply := b.console.Apply(string(payload))
	return topicOfRepliesSend(b.nodeId, seqId, caller), []byte(reply), true
}

func (b *MqttBridge) publishEvent(event gateway.Event) {
	select {
	case <-b.mqttShutdownCh:
		return
	default:
	}
	qos, retained := b.globals.MqttQoS, b.globals.MqttRetained
	b.publishAsync(topicOfEvents(b.nodeId, event.Type), qos, retained, encodeEvent(event))
	if gateway.EventEndpointChanged == event.Type {
		ep := event.Endpoint
		b.publishAsync(topicOfValues(b.nodeId, ep.Address, ep.Name), qos, retained, encodeEndpoint(ep))
	}
}

// 事件回调在数据帧接收协程中执行，不等待发送结果
func (b *MqttBridge) publishAsync(topic string, qos byte, retained bool, payload []byte) {
	token := b.mqttRef.Publish(topic, qos, retained, payload)
	go func() {
		if token.WaitTimeout(time.Second*5) && nil != token.Error() {
			b.log.Errorf("发布消息出错(%s): %s", topic, token.Error())
		}
	}()
}

////

func encodeEvent(event gateway.Event) []byte {
	json := jsonx.NewFatJSON()
	json.Field("event", event.Type.String())
	json.Field("address", fmt.Sprintf("%02X", event.Mote.Address))
	json.Field("manufacturerId", fmt.Sprintf("%08X", event.Mote.ManufacturerId))
	json.Field("productId", fmt.Sprintf("%08X", event.Mote.ProductId))
	json.Field("product", event.Mote.Product)
	json.Field("state", swap.StateName(event.Mote.State))
	json.Field("powerDown", event.Mote.PowerDown)
	switch event.Type {
	case gateway.EventMoteAddressChanged:
		json.Field("oldAddress", fmt.Sprintf("%02X", event.OldAddress))
	case gateway.EventEndpointDiscovered, gateway.EventEndpointChanged:
		json.Field("endpoint", event.Endpoint.Name)
		json.Field("regId", event.Endpoint.RegId)
		json.Field("value", event.Endpoint.Value.Hex())
	}
	return json.Bytes()
}

func encodeEndpoint(ep gateway.Endpoint) []byte {
	json := jsonx.NewFatJSON()
	json.Field("endpoint", ep.Name)
	json.Field("address", fmt.Sprintf("%02X", ep.Address))
	json.Field("regId", ep.RegId)
	json.Field("type", ep.Type.String())
	json.Field("value", ep.Value.Hex())
	json.Field("number", ep.Number())
	json.Field("unit", ep.Unit)
	return json.Bytes()
}

////

func mqttSetOptions(opts *mqtt.ClientOptions, globals *swap.Globals) {
	opts.AddBroker(globals.MqttBroker)
	opts.SetKeepAlive(globals.MqttKeepAlive)
	opts.SetPingTimeout(globals.MqttPingTimeout)
	opts.SetAutoReconnect(globals.MqttAutoReconnect)
	opts.SetConnectTimeout(globals.MqttConnectTimeout)
	opts.SetCleanSession(globals.MqttCleanSession)
	opts.SetMaxReconnectInterval(globals.MqttReconnectInterval)
	if "" != globals.MqttUsername && "" != globals.MqttPassword {
		opts.Username = globals.MqttUsername
		opts.Password = globals.MqttPassword
	}
}

func mqttAwaitConnection(log *zap.SugaredLogger, client mqtt.Client, maxRetry int) {
	timer := time.NewTimer(time.Second)
	defer timer.Stop()
	for i := 1; i <= maxRetry; i++ {
		<-timer.C
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			if i == maxRetry {
				log.Errorf("[%d] Mqtt客户端连接失败，最大次数：%v", i, token.Error())
			} else {
				log.Debugf("[%d] Mqtt客户端尝试重新连接，失败：%v", i, token.Error())
			}
			timer.Reset(time.Second * time.Duration(i))
		} else {
			break
		}
	}
}
