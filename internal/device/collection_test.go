package device_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plus-control/plusd/internal/device"
	"github.com/plus-control/plusd/internal/device/fake"
)

func TestCollection_AddAndOrder(t *testing.T) {
	c := device.NewCollection()
	require.NoError(t, c.Add(fake.NewPlain("b", "plain")))
	require.NoError(t, c.Add(fake.NewScanner("a")))

	ids := []string{}
	for _, d := range c.Devices() {
		ids = append(ids, d.ID())
	}
	assert.Equal(t, []string{"b", "a"}, ids)
	assert.Equal(t, 2, c.Len())

	d, ok := c.Device("a")
	require.True(t, ok)
	assert.Equal(t, "fake-scanner", d.Type())

	_, ok = c.Device("missing")
	assert.False(t, ok)
}

func TestCollection_AddDuplicate(t *testing.T) {
	c := device.NewCollection()
	require.NoError(t, c.Add(fake.NewScanner("us")))
	assert.Error(t, c.Add(fake.NewScanner("us")))
	assert.Error(t, c.Add(fake.NewPlain("", "plain")))
}

func TestCollection_ConnectDisconnect(t *testing.T) {
	ok := fake.NewScanner("ok")
	broken := fake.NewScanner("broken")
	broken.SetErrorSimulation("OFFLINE")

	c := device.NewCollection()
	require.NoError(t, c.Add(fake.NewPlain("plain", "plain")))
	require.NoError(t, c.Add(broken))
	require.NoError(t, c.Add(ok))

	err := c.Connect(context.Background(), time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, device.ErrUnavailable)
	assert.True(t, ok.Connected())

	status := c.Status()
	require.Len(t, status, 3)
	assert.True(t, status[0].Connected)
	assert.False(t, status[1].Connected)
	assert.NotEmpty(t, status[1].LastError)
	assert.True(t, status[2].Connected)

	require.NoError(t, c.Disconnect(context.Background()))
	assert.False(t, ok.Connected())
	assert.False(t, c.Status()[2].Connected)
}
