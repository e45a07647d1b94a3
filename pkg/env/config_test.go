package env

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/oilink/pkg/oi"
	"github.com/robotalks/oilink/pkg/oi/serial"
)

func TestNewConfigIsACopy(t *testing.T) {
	conf := NewConfig()
	conf.Device = "/dev/ttyUSB9"
	require.NotEqual(t, "/dev/ttyUSB9", Default().Device)
}

func TestNewLink(t *testing.T) {
	conf := &Config{
		ID:               "bot1",
		Device:           "/dev/ttyUSB0",
		BaudRate:         57600,
		Debug:            true,
		HandshakeTimeout: time.Second,
		MaxAttempts:      3,
	}
	link, reporter, err := conf.NewLink()
	require.NoError(t, err)
	require.Nil(t, reporter)
	require.Equal(t, oi.StateUnopened, link.State())
	require.True(t, link.Debug())
	require.Equal(t, time.Second, link.HandshakeTimeout)
	require.Equal(t, 3, link.MaxAttempts)
	require.Nil(t, link.Notifier)
	require.Equal(t, serial.Config{Device: "/dev/ttyUSB0", BaudRate: 57600}, link.Opener)
	require.Equal(t, "bot1", conf.LinkID())

	conf.MQTTBrokerURL = "mqtt://localhost:1883/robo/"
	link, reporter, err = conf.NewLink()
	require.NoError(t, err)
	require.NotNil(t, reporter)
	require.Equal(t, "robo/", reporter.Queue.TopicPrefix)
	require.Equal(t, "/dev/ttyUSB0", reporter.Device)
	require.Equal(t, link.Notifier, reporter)

	opener := oi.OpenFunc(func(oi.ReceiveHandler) (oi.Transport, error) {
		return nil, nil
	})
	conf.Opener, conf.MQTTBrokerURL = opener, ""
	link, _, err = conf.NewLink()
	require.NoError(t, err)
	require.NotNil(t, link.Opener)
	_, isSerial := link.Opener.(serial.Config)
	require.False(t, isSerial)

	conf.BaudRate = 0
	_, _, err = conf.NewLink()
	require.Error(t, err)
}

func TestMQTTFlag(t *testing.T) {
	saved := Default().MQTTBrokerURL
	defer func() { Default().MQTTBrokerURL = saved }()
	SetupMQTTFlags()
	require.NotNil(t, flag.Lookup("mqtt"))
	require.Nil(t, flag.Lookup("device"))
	require.NoError(t, flag.Set("mqtt", "mqtt://broker:1883/robo/"))
	require.Equal(t, "mqtt://broker:1883/robo/", Default().MQTTBrokerURL)
	require.Equal(t, "mqtt://broker:1883/robo/", NewConfig().MQTTBrokerURL)
}
