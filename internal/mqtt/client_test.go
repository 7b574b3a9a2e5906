package mqtt

import (
	"errors"
	"testing"
	"time"

	"github.com/berfenger/essload2mqtt/internal/core/domain"
	"github.com/berfenger/essload2mqtt/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwitchCommandParse(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/switch/my_device/command"
	r := switchCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(matches[0][1], "my_device", "device extract")
}

func TestSwitchCommandParseFail(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	r := switchCommandExtractor(baseTopic)

	assert.Len(r.FindAllStringSubmatch("loremTopic/switch/my_device/state", 1), 0, "no matches")
	assert.Len(r.FindAllStringSubmatch("other/loremTopic/switch/my_device/command", 1), 0, "anchored")
}

func TestParseSwitchCommand(t *testing.T) {
	r := switchCommandExtractor("essload")

	cmd, err := parseSwitchCommand(r, "essload/switch/load_control/command", []byte("ON"))
	require.NoError(t, err)
	assert.Equal(t, domain.SWITCH_ID_LOAD_CONTROL, cmd.DeviceId)
	on, err := cmd.SwitchState()
	require.NoError(t, err)
	assert.True(t, on)

	cmd, err = parseSwitchCommand(r, "essload/switch/load_control/command", []byte("toggle"))
	require.NoError(t, err)
	_, err = cmd.SwitchState()
	assert.ErrorIs(t, err, ErrInvalidCommand)

	_, err = parseSwitchCommand(r, "essload/sensor/load_output/state", []byte("10"))
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

func TestTopics(t *testing.T) {
	cfg := util.LoadTestConfig()
	client := CreateMQTTClient(&cfg, OptsFromConfig(&cfg), nil, nil)

	assert.Equal(t, "essload/bridge/state", client.BridgeStateTopic())
	assert.Equal(t, "essload/sensor/pv_average/state", client.SensorStateTopic(domain.SENSOR_ID_PV_AVERAGE))
	assert.Equal(t, "essload/binary_sensor/load_gated/state", client.BinarySensorStateTopic(domain.SENSOR_ID_LOAD_GATED))
	assert.Equal(t, "essload/switch/+/command", client.commandTopic())
}

func TestHADiscoveryMessages(t *testing.T) {
	cfg := util.LoadTestConfig()
	client := CreateMQTTClient(&cfg, OptsFromConfig(&cfg), nil, nil)
	device := domain.ControllerDevice(cfg.MQTT.BaseTopic, nil)

	var gated domain.GenericSensor
	for _, s := range domain.ControllerSensors(device) {
		if s.Id == domain.SENSOR_ID_LOAD_GATED {
			gated = s
		}
	}
	msg := GenericSensorToHADiscoveryMessage(client, gated)
	assert.Equal(t, "essload/binary_sensor/load_gated/state", msg.StateTopic)
	assert.Equal(t, MQTT_PAYLOAD_ON, msg.PayloadOn)
	assert.Equal(t, "homeassistant/binary_sensor/"+device.Id+"/load_gated/config", client.HADiscoverySensorTopic(gated))

	bridge := domain.BridgeSensors(domain.BridgeDevice(cfg.MQTT.BaseTopic))[0]
	msg = GenericSensorToHADiscoveryMessage(client, bridge)
	assert.Equal(t, client.BridgeStateTopic(), msg.StateTopic)
	assert.Equal(t, MQTT_PAYLOAD_ONLINE, msg.PayloadOn)

	sw := domain.LoadControlSwitches(device)[0]
	swMsg := GenericSwitchToHADiscoveryMessage(client, sw)
	assert.Equal(t, "essload/switch/load_control/command", swMsg.CommandTopic)
	assert.Equal(t, "essload/switch/load_control/state", swMsg.StateTopic)
}

type testToken struct {
	completed bool
	err       error
}

func (t testToken) Wait() bool {
	return t.completed
}

func (t testToken) WaitTimeout(time.Duration) bool {
	return t.completed
}

func (t testToken) Done() <-chan struct{} {
	done := make(chan struct{})
	if t.completed {
		close(done)
	}
	return done
}

func (t testToken) Error() error {
	return t.err
}

func TestAwaitToken(t *testing.T) {
	results := make(chan error, 1)
	continuation := func(err error) { results <- err }

	awaitToken(testToken{completed: true}, "publish", continuation, time.Second)
	assert.NoError(t, <-results)

	brokerErr := errors.New("not authorized")
	awaitToken(testToken{completed: true, err: brokerErr}, "publish", continuation, time.Second)
	assert.ErrorIs(t, <-results, brokerErr)

	awaitToken(testToken{}, "subscribe", continuation, time.Millisecond)
	err := <-results
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "subscribe")
}
