package gateway

import (
	"testing"
	"time"

	"github.com/nextabc-lab/swap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testManufacturer = 0x00000022
	testProduct      = 0x00000001
	testSleeper      = 0x00000002
	testLevelReg     = swap.FirstCustomReg
)

func testProfiles(t *testing.T) *MemoryProfiles {
	profiles := NewMemoryProfiles()
	require.NoError(t, profiles.Add(&Profile{
		ManufacturerId: testManufacturer,
		ProductId:      testProduct,
		Manufacturer:   "panStamp",
		Product:        "dimmer",
		Registers: []RegisterProfile{
			{
				Id:   testLevelReg,
				Size: 2,
				Endpoints: []EndpointProfile{
					{Name: "level", Type: TypeAnalog, Direction: DirectionOutput, Layout: MaskLayout(0x00F0), Factor: 1},
					{Name: "mode", Type: TypeAnalog, Direction: DirectionInput, Layout: MaskLayout(0xFF00), Factor: 1},
				},
			},
		},
	}))
	require.NoError(t, profiles.Add(&Profile{
		ManufacturerId: testManufacturer,
		ProductId:      testSleeper,
		Product:        "sensor",
		PowerDown:      true,
		Registers: []RegisterProfile{
			{Id: testLevelReg, Endpoints: []EndpointProfile{
				{Name: "temperature", Layout: BytesLayout(0, 2), Factor: 0.1},
			}},
		},
	}))
	return profiles
}

func connectedGateway(t *testing.T, motes ...*fakeMote) (*Gateway, *fakeTransport, *eventRecorder) {
	transport := newFakeTransport(motes...)
	gw, recorder := newTestGateway(transport, testProfiles(t))
	require.NoError(t, gw.Connect())
	return gw, transport, recorder
}

func TestGateway_ConnectDiscovery(t *testing.T) {
	dimmer := newFakeMote(0x05, testManufacturer, testProduct)
	gw, transport, recorder := connectedGateway(t, dimmer)

	assert.True(t, gw.IsConnected())
	assert.Equal(t, byte(testGatewayAddress), gw.Address())
	assert.Equal(t, uint16(0xB547), gw.NetId())

	// 广播查询产品码
	first := transport.packets()[0]
	assert.Equal(t, swap.FunctionQuery, first.Function)
	assert.Equal(t, byte(swap.BroadcastAddress), first.DestAddress)
	assert.Equal(t, byte(swap.RegProductCode), first.RegId)

	motes := gw.Motes()
	require.Len(t, motes, 1)
	assert.Equal(t, byte(0x05), motes[0].Address)
	assert.Equal(t, uint32(testManufacturer), motes[0].ManufacturerId)
	assert.Equal(t, uint32(testProduct), motes[0].ProductId)
	assert.Equal(t, "dimmer", motes[0].Product)
	assert.False(t, motes[0].PowerDown)

	assert.Equal(t, 1, recorder.count(EventMoteDiscovered))
	assert.Equal(t, 2, recorder.count(EventEndpointDiscovered))
	assert.Len(t, gw.Endpoints(), 2)
	assert.Len(t, gw.Registers(motes[0].Handle), 1)
}

func TestGateway_DiscoveryDedup(t *testing.T) {
	dimmer := newFakeMote(0x05, testManufacturer, testProduct)
	gw, transport, recorder := connectedGateway(t, dimmer)

	transport.deliver(dimmer.info(swap.RegProductCode, swap.NewValue(dimmer.code)))
	assert.Len(t, gw.Motes(), 1)
	assert.Equal(t, 1, recorder.count(EventMoteDiscovered))
}

func TestGateway_UnknownProfile(t *testing.T) {
	stranger := newFakeMote(0x09, 0x000000FF, 0x00000001)
	gw, _, recorder := connectedGateway(t, stranger)

	motes := gw.Motes()
	require.Len(t, motes, 1)
	assert.Equal(t, byte(0x09), motes[0].Address)
	assert.Equal(t, 0, recorder.count(EventEndpointDiscovered))
	assert.Empty(t, gw.Endpoints())
}

func TestGateway_ShortProductCodeDropped(t *testing.T) {
	gw, transport, _ := connectedGateway(t)
	transport.deliver(swap.NewInfo(0x07, 1, 0, 0x07, swap.RegProductCode, swap.ValueOfInt(0x22, 4)))
	assert.Empty(t, gw.Motes())
}

func TestGateway_MalformedFrame(t *testing.T) {
	gw, transport, recorder := connectedGateway(t)
	transport.mu.Lock()
	handler := transport.handler
	transport.mu.Unlock()
	handler(&swap.Frame{Data: []byte{0x00, 0x01, 0x02}})
	assert.Empty(t, gw.Motes())
	assert.Empty(t, recorder.events)
}

func TestGateway_CmdRegisterWack(t *testing.T) {
	dimmer := newFakeMote(0x05, testManufacturer, testProduct)
	gw, transport, _ := connectedGateway(t, dimmer)
	h := gw.Motes()[0].Handle

	nonce := gw.Motes()[0].Nonce
	ack, err := gw.CmdRegisterWack(h, testLevelReg, swap.ValueOfInt(0x1234, 2))
	require.NoError(t, err)
	assert.Equal(t, AckOK, ack)
	assert.Equal(t, 1, transport.commandsTo(0x05, testLevelReg))

	cmd, err := swap.ParsePacket(&swap.Frame{Data: transport.lastSent()})
	require.NoError(t, err)
	assert.Equal(t, nonce, cmd.Nonce)
	assert.Equal(t, "1234", cmd.Value.Hex())
}

func TestGateway_CmdRegisterWackRetries(t *testing.T) {
	dimmer := newFakeMote(0x05, testManufacturer, testProduct)
	gw, transport, _ := connectedGateway(t, dimmer)
	dimmer.silent = true

	ack, err := gw.CmdRegisterWack(gw.Motes()[0].Handle, testLevelReg, swap.ValueOfInt(1, 2))
	require.NoError(t, err)
	assert.Equal(t, AckFailed, ack)
	assert.Equal(t, DefaultMaxTries, transport.commandsTo(0x05, testLevelReg))
}

func TestGateway_CmdUnknownMote(t *testing.T) {
	gw, _, _ := connectedGateway(t)
	_, err := gw.CmdRegister(MoteHandle(7), testLevelReg, swap.ValueOfInt(1, 1))
	assert.Error(t, err)
	_, err = gw.CmdRegisterWack(MoteHandle(-1), testLevelReg, swap.ValueOfInt(1, 1))
	assert.Error(t, err)
}

func TestGateway_NotConnected(t *testing.T) {
	transport := newFakeTransport()
	gw, _ := newTestGateway(transport, nil)
	_, err := gw.CmdRegister(0, testLevelReg, swap.ValueOfInt(1, 1))
	assert.Equal(t, ErrNotConnected, err)
	_, err = gw.SetFreqChannel(3)
	assert.Equal(t, ErrNotConnected, err)
}

func TestGateway_PowerDownPending(t *testing.T) {
	sensor := newFakeMote(0x06, testManufacturer, testSleeper)
	gw, transport, _ := connectedGateway(t, sensor)
	m := gw.Motes()[0]
	require.True(t, m.PowerDown)

	before := transport.sentCount()
	ack, err := gw.CmdRegisterWack(m.Handle, testLevelReg, swap.ValueOfInt(0x00FA, 2))
	require.NoError(t, err)
	assert.Equal(t, AckDeferred, ack)
	assert.Equal(t, before, transport.sentCount())

	m, _ = gw.Mote(m.Handle)
	assert.True(t, m.HasPending)

	expected := swap.NewCommand(testGatewayAddress, m.Nonce-1, 0, 0x06, testLevelReg, swap.ValueOfInt(0x00FA, 2)).Bytes()
	sent, err := gw.SendPending(m.Handle)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, expected, transport.lastSent())

	// 只发送一次
	sent, err = gw.SendPending(m.Handle)
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Equal(t, before+1, transport.sentCount())
}

func TestGateway_QueryPowerDown(t *testing.T) {
	sensor := newFakeMote(0x06, testManufacturer, testSleeper)
	gw, transport, _ := connectedGateway(t, sensor)
	h := gw.Motes()[0].Handle

	_, err := gw.QueryRegister(h, testLevelReg)
	assert.Equal(t, ErrMoteAsleep, err)

	before := transport.sentCount()
	require.NoError(t, gw.QryRegister(h, testLevelReg))
	assert.Equal(t, before, transport.sentCount())
	sent, err := gw.SendPending(h)
	require.NoError(t, err)
	assert.True(t, sent)
	pkt, err := swap.ParsePacket(&swap.Frame{Data: transport.lastSent()})
	require.NoError(t, err)
	assert.Equal(t, swap.FunctionQuery, pkt.Function)
}

func TestGateway_QueryRegister(t *testing.T) {
	dimmer := newFakeMote(0x05, testManufacturer, testProduct)
	dimmer.regs[testLevelReg] = swap.ValueOfInt(0x0130, 2)
	gw, _, recorder := connectedGateway(t, dimmer)

	val, err := gw.QueryRegister(gw.Motes()[0].Handle, testLevelReg)
	require.NoError(t, err)
	assert.Equal(t, "0130", val.Hex())

	// 查询结果同时刷新Endpoint
	assert.Equal(t, 2, recorder.count(EventEndpointChanged))
	level := gw.FindEndpoint(0x05, testLevelReg)
	require.Len(t, level, 2)
	assert.Equal(t, uint64(0x03), level[0].Value.ToLong())
	assert.Equal(t, uint64(0x01), level[1].Value.ToLong())
}

func TestGateway_QueryRegisterTimeout(t *testing.T) {
	dimmer := newFakeMote(0x05, testManufacturer, testProduct)
	gw, _, _ := connectedGateway(t, dimmer)
	_, err := gw.QueryRegister(gw.Motes()[0].Handle, 0x30)
	assert.Equal(t, ErrAckTimeout, err)
}

func TestGateway_CmdEndpointMerge(t *testing.T) {
	dimmer := newFakeMote(0x05, testManufacturer, testProduct)
	gw, transport, recorder := connectedGateway(t, dimmer)

	transport.deliver(dimmer.info(testLevelReg, swap.ValueOfInt(0x1234, 2)))
	endpoints := gw.FindEndpoint(0x05, testLevelReg)
	require.Len(t, endpoints, 2)
	level, mode := endpoints[0], endpoints[1]
	assert.Equal(t, "level", level.Name)
	assert.Equal(t, uint64(0x03), level.Value.ToLong())
	assert.Equal(t, uint64(0x12), mode.Value.ToLong())
	changed := recorder.count(EventEndpointChanged)

	ack, err := gw.CmdEndpointWack(level.Handle, swap.ValueOfInt(5, 1))
	require.NoError(t, err)
	assert.Equal(t, AckOK, ack)

	cmd, err := swap.ParsePacket(&swap.Frame{Data: transport.lastSent()})
	require.NoError(t, err)
	assert.Equal(t, "1254", cmd.Value.Hex())

	// 只有level变化
	assert.Equal(t, changed+1, recorder.count(EventEndpointChanged))
	event, ok := recorder.last(EventEndpointChanged)
	require.True(t, ok)
	assert.Equal(t, "level", event.Endpoint.Name)
	assert.Equal(t, uint64(5), event.Endpoint.Value.ToLong())

	mode, _ = gw.Endpoint(mode.Handle)
	assert.Equal(t, uint64(0x12), mode.Value.ToLong())
}

func TestGateway_CmdEndpointRange(t *testing.T) {
	dimmer := newFakeMote(0x05, testManufacturer, testProduct)
	gw, transport, _ := connectedGateway(t, dimmer)
	level := gw.FindEndpoint(0x05, testLevelReg)[0]

	before := transport.sentCount()
	_, err := gw.CmdEndpoint(level.Handle, swap.ValueOfInt(0x1F, 1))
	assert.Error(t, err)
	assert.Equal(t, before, transport.sentCount())

	_, err = gw.CmdEndpoint(EndpointHandle(99), swap.ValueOfInt(1, 1))
	assert.Equal(t, ErrUnknownEndpoint, err)
}

func TestGateway_EndpointNumber(t *testing.T) {
	sensor := newFakeMote(0x06, testManufacturer, testSleeper)
	gw, transport, _ := connectedGateway(t, sensor)
	transport.deliver(sensor.info(testLevelReg, swap.ValueOfInt(215, 2)))
	temp := gw.FindEndpoint(0x06, testLevelReg)
	require.Len(t, temp, 1)
	assert.InDelta(t, 21.5, temp[0].Number(), 0.0001)
}

func TestGateway_SystemStateAndSync(t *testing.T) {
	sensor := newFakeMote(0x06, testManufacturer, testSleeper)
	gw, transport, recorder := connectedGateway(t, sensor)

	transport.deliver(sensor.info(swap.RegSystemState, swap.ValueOfInt(swap.StateSync, 1)))
	assert.Equal(t, 1, recorder.count(EventMoteStateChanged))
	assert.Equal(t, 1, recorder.count(EventMoteSync))
	m, _ := gw.MoteByAddress(0x06)
	assert.Equal(t, byte(swap.StateSync), m.State)

	// 状态不变时不产生事件
	transport.deliver(sensor.info(swap.RegSystemState, swap.ValueOfInt(swap.StateSync, 1)))
	assert.Equal(t, 1, recorder.count(EventMoteStateChanged))

	require.NoError(t, gw.LeaveSync(m.Handle))
	cmd, err := swap.ParsePacket(&swap.Frame{Data: transport.lastSent()})
	require.NoError(t, err)
	assert.Equal(t, swap.FunctionCommand, cmd.Function)
	assert.Equal(t, byte(swap.RegSystemState), cmd.RegId)
	assert.Equal(t, uint32(swap.StateRxOff), cmd.Value.ToInteger())
}

func TestGateway_Restart(t *testing.T) {
	dimmer := newFakeMote(0x05, testManufacturer, testProduct)
	gw, _, recorder := connectedGateway(t, dimmer)
	ack, err := gw.Restart(gw.Motes()[0].Handle)
	require.NoError(t, err)
	assert.Equal(t, AckOK, ack)
	m, _ := gw.MoteByAddress(0x05)
	assert.Equal(t, byte(swap.StateRestart), m.State)
	assert.Equal(t, 1, recorder.count(EventMoteStateChanged))
}

func TestGateway_AddressChangeFromNewAddress(t *testing.T) {
	dimmer := newFakeMote(0x05, testManufacturer, testProduct)
	gw, _, recorder := connectedGateway(t, dimmer)
	h := gw.Motes()[0].Handle

	ack, err := gw.CmdRegisterWack(h, swap.RegDeviceAddr, swap.ValueOfInt(0x20, 1))
	require.NoError(t, err)
	assert.Equal(t, AckOK, ack)

	m, ok := gw.Mote(h)
	require.True(t, ok)
	assert.Equal(t, byte(0x20), m.Address)
	_, ok = gw.MoteByAddress(0x05)
	assert.False(t, ok)

	event, ok := recorder.last(EventMoteAddressChanged)
	require.True(t, ok)
	assert.Equal(t, byte(0x05), event.OldAddress)
	assert.Equal(t, byte(0x20), event.Mote.Address)
	assert.Len(t, gw.FindEndpoint(0x20, testLevelReg), 2)
}

func TestGateway_AddressChangeFromOldAddress(t *testing.T) {
	dimmer := newFakeMote(0x05, testManufacturer, testProduct)
	gw, transport, recorder := connectedGateway(t, dimmer)

	transport.deliver(swap.NewInfo(0x05, 0x40, 0, 0x05, swap.RegDeviceAddr, swap.ValueOfInt(0x21, 1)))
	m, ok := gw.MoteByAddress(0x21)
	require.True(t, ok)
	assert.Equal(t, uint32(testProduct), m.ProductId)
	assert.Equal(t, 1, recorder.count(EventMoteAddressChanged))
}

func TestGateway_RemoveMote(t *testing.T) {
	dimmer := newFakeMote(0x05, testManufacturer, testProduct)
	sensor := newFakeMote(0x06, testManufacturer, testSleeper)
	gw, _, recorder := connectedGateway(t, dimmer, sensor)
	require.Len(t, gw.Motes(), 2)

	m, _ := gw.MoteByAddress(0x05)
	require.NoError(t, gw.RemoveMote(m.Handle))
	assert.Equal(t, 1, recorder.count(EventMoteRemoved))
	assert.Len(t, gw.Motes(), 1)
	assert.Len(t, gw.Endpoints(), 1)
	assert.Nil(t, gw.FindEndpoint(0x05, testLevelReg))

	// 删除后句柄失效，其它设备句柄不变
	assert.Equal(t, ErrUnknownMote, gw.RemoveMote(m.Handle))
	s, ok := gw.MoteByAddress(0x06)
	require.True(t, ok)
	_, ok = gw.Mote(s.Handle)
	assert.True(t, ok)
}

func TestGateway_LocalQuery(t *testing.T) {
	_, transport, _ := connectedGateway(t)

	transport.deliver(swap.NewQuery(0x30, 0, testGatewayAddress, testGatewayAddress, swap.RegNetworkId))
	reply, err := swap.ParsePacket(&swap.Frame{Data: transport.lastSent()})
	require.NoError(t, err)
	assert.Equal(t, swap.FunctionInfo, reply.Function)
	assert.Equal(t, byte(testGatewayAddress), reply.SrcAddress)
	assert.Equal(t, byte(swap.RegNetworkId), reply.RegId)
	assert.Equal(t, "B547", reply.Value.Hex())

	// 发往其它地址的查询不应答
	before := transport.sentCount()
	transport.deliver(swap.NewQuery(0x30, 0, 0x44, 0x44, swap.RegNetworkId))
	assert.Equal(t, before, transport.sentCount())
}

func TestGateway_LocalCommand(t *testing.T) {
	gw, transport, _ := connectedGateway(t)

	transport.deliver(swap.NewCommand(0x30, 0, 0, testGatewayAddress, swap.RegTxInterval, swap.ValueOfInt(60, 2)))
	reply, err := swap.ParsePacket(&swap.Frame{Data: transport.lastSent()})
	require.NoError(t, err)
	assert.Equal(t, swap.FunctionInfo, reply.Function)
	assert.Equal(t, "003C", reply.Value.Hex())

	val, ok := gw.LocalRegister(swap.RegTxInterval)
	require.True(t, ok)
	assert.Equal(t, uint32(60), val.ToInteger())
}

func TestGateway_RepeaterFilter(t *testing.T) {
	transport := newFakeTransport()
	opts := testOptions()
	opts.RepeaterWindow = time.Second
	gw := New(transport, testProfiles(t), opts)
	recorder := new(eventRecorder)
	gw.Observe(recorder.observe)
	require.NoError(t, gw.Connect())

	dimmer := newFakeMote(0x05, testManufacturer, testProduct)
	code := dimmer.info(swap.RegProductCode, swap.NewValue(dimmer.code))
	transport.deliver(code)
	require.Len(t, gw.Motes(), 1)

	state := dimmer.info(swap.RegSystemState, swap.ValueOfInt(swap.StateSync, 1))
	transport.deliver(state)
	repeated := *state
	repeated.Hop = 1
	transport.deliver(&repeated)
	assert.Equal(t, 1, recorder.count(EventMoteStateChanged))
}

func TestGateway_RepeaterFilterBounded(t *testing.T) {
	transport := newFakeTransport()
	opts := testOptions()
	opts.RepeaterWindow = time.Minute
	gw := New(transport, testProfiles(t), opts)
	require.NoError(t, gw.Connect())

	var last *swap.Packet
	for i := 0; i < maxRepeaterEntries*3; i++ {
		last = swap.NewInfo(0x40, byte(i), 0, 0x40, testLevelReg, swap.ValueOfInt(uint64(i), 2))
		transport.deliver(last)
		require.True(t, gw.repeats.Len() <= maxRepeaterEntries, "repeater entries: %d", gw.repeats.Len())
	}
	// 最近的数据包仍在过滤窗口内
	repeated := *last
	repeated.Hop = 2
	assert.True(t, gw.isRepeated(&repeated))
}

func TestGateway_WaitForAck(t *testing.T) {
	dimmer := newFakeMote(0x05, testManufacturer, testProduct)
	gw, transport, _ := connectedGateway(t, dimmer)

	expected := swap.NewInfo(0x05, 0, 0, 0x05, testLevelReg, swap.ValueOfInt(7, 2))
	go func() {
		time.Sleep(time.Millisecond * 5)
		transport.deliver(dimmer.info(testLevelReg, swap.ValueOfInt(7, 2)))
	}()
	assert.True(t, gw.WaitForAck(expected, time.Second))
	assert.False(t, gw.WaitForAck(expected, time.Millisecond*10))
}

func TestCheckAck(t *testing.T) {
	expected := swap.NewInfo(0x05, 0, 0, 0x05, testLevelReg, swap.ValueOfInt(7, 2))
	assert.True(t, CheckAck(expected, swap.NewInfo(0x05, 9, 1, 0x05, testLevelReg, swap.ValueOfInt(7, 2))))
	assert.False(t, CheckAck(expected, swap.NewInfo(0x05, 9, 1, 0x05, testLevelReg, swap.ValueOfInt(7, 1))))
	assert.False(t, CheckAck(expected, swap.NewInfo(0x05, 9, 1, 0x06, testLevelReg, swap.ValueOfInt(7, 2))))
	assert.False(t, CheckAck(expected, swap.NewCommand(0x05, 9, 1, 0x05, testLevelReg, swap.ValueOfInt(7, 2))))
	assert.False(t, CheckAck(nil, expected))
}
