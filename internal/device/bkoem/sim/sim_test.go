package sim

import (
	"bytes"
	"encoding/binary"
	"image/png"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plus-control/plusd/internal/device/bkoem"
	"github.com/plus-control/plusd/internal/oem"
)

func startSim(t *testing.T, opts Options) (*Simulator, net.Conn, *oem.Reader) {
	t.Helper()

	s := New(opts)
	require.NoError(t, s.Start("127.0.0.1:0"))
	t.Cleanup(func() { _ = s.Close() })

	conn, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	return s, conn, oem.NewReader(conn)
}

func query(t *testing.T, conn net.Conn, r *oem.Reader, q string) oem.Message {
	t.Helper()
	require.NoError(t, oem.WriteQuery(conn, q))
	msg, err := r.ReadNextMessage()
	require.NoError(t, err)
	return msg
}

func TestParameterReplies(t *testing.T) {
	_, conn, r := startSim(t, DefaultOptions())

	tests := []struct {
		query string
		want  string
	}{
		{bkoem.QueryImageSize, "DATA:US_WIN_SIZE 8,6;"},
		{bkoem.QueryScanArea, "DATA:B_GEOMETRY_SCANAREA:A 0,0,0,0,0,0,0,0.05;"},
		{bkoem.QueryPixelGeometry, "DATA:B_GEOMETRY_PIXEL:A 0,0,8,6;"},
		{bkoem.QueryTissueGeometry, "DATA:B_GEOMETRY_TISSUE:A -0.004,0,0.004,-0.006;"},
		{bkoem.QueryGain, "DATA:B_GAIN:A 50;"},
		{bkoem.QueryTransducerList, `DATA:TRANSDUCER_LIST "8820e","C","","","","","","";`},
		{bkoem.QueryTransducer, `DATA:TRANSDUCER:A "A","8820e";`},
		{"QUERY:NONSENSE;", "ERROR:UNKNOWN_QUERY;"},
	}
	for _, tt := range tests {
		msg := query(t, conn, r, tt.query)
		assert.Equal(t, tt.want, string(msg.Raw), tt.query)
	}
}

func TestCaptureImage(t *testing.T) {
	_, conn, r := startSim(t, DefaultOptions())

	msg := query(t, conn, r, bkoem.QueryCaptureImage)
	assert.Equal(t, bkoem.HeaderCaptureImage, msg.Header)

	payload, err := oem.ParseImagePayload(msg.Raw)
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(payload.Data))
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Width)
	assert.Equal(t, 6, cfg.Height)
}

func TestStreaming(t *testing.T) {
	s, conn, r := startSim(t, Options{FrameInterval: 5 * time.Millisecond})

	assert.Equal(t, "ACK", query(t, conn, r, bkoem.QueryGrabFrameOn).Header)

	var stamps []uint32
	for len(stamps) < 3 {
		msg, err := r.ReadNextMessage()
		require.NoError(t, err)
		require.Equal(t, bkoem.HeaderGrabFrame, msg.Header)

		payload, err := oem.ParseImagePayload(msg.Raw)
		require.NoError(t, err)
		ts, pixels, err := payload.SplitTimestamp()
		require.NoError(t, err)
		assert.Len(t, pixels, 48)
		assert.Equal(t, byte(ts%251), pixels[0])
		stamps = append(stamps, ts)
	}
	assert.Equal(t, []uint32{1, 2, 3}, stamps)

	// frames already in flight may precede the ACK
	require.NoError(t, oem.WriteQuery(conn, bkoem.QueryGrabFrameOff))
	for {
		msg, err := r.ReadNextMessage()
		require.NoError(t, err)
		if msg.Header == "ACK" {
			break
		}
	}
	assert.Contains(t, s.Queries(), bkoem.QueryGrabFrameOff)
}

func TestQueryLogKeepsMostRecent(t *testing.T) {
	s, conn, r := startSim(t, Options{QueryLog: 3})

	sent := []string{
		bkoem.QueryImageSize,
		bkoem.QueryScanArea,
		bkoem.QueryPixelGeometry,
		bkoem.QueryGain,
		bkoem.QueryTransducer,
	}
	for _, q := range sent {
		query(t, conn, r, q)
	}
	assert.Equal(t, sent[2:], s.Queries())
}

func TestEscapedFrames(t *testing.T) {
	s := New(Options{WindowWidth: 16, WindowHeight: 16})
	msg, ok := s.nextFrame()
	require.True(t, ok)

	framed := oem.Encode(msg)
	assert.Greater(t, len(framed), len(msg)+2, "control bytes in pixels should be escaped")

	decoded, err := oem.Decode(framed)
	require.NoError(t, err)
	payload, err := oem.ParseImagePayload(decoded)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(payload.Data))
	assert.Len(t, payload.Data, oem.TimestampSize+256)
}

func TestFreezePausesFrames(t *testing.T) {
	s := New(DefaultOptions())
	s.Freeze()
	_, ok := s.nextFrame()
	assert.False(t, ok)

	s.Unfreeze()
	_, ok = s.nextFrame()
	assert.True(t, ok)
}

func TestEventsRequireOptIn(t *testing.T) {
	s, conn, r := startSim(t, DefaultOptions())

	// gain changes go only to subscribers
	s.SetGain(60)
	assert.Equal(t, "DATA:B_GAIN:A 60;", string(query(t, conn, r, bkoem.QueryGain).Raw))

	assert.Equal(t, "ACK", query(t, conn, r, bkoem.QueryEventsOn).Header)
	assert.Equal(t, "ACK", query(t, conn, r, bkoem.QuerySubscribe).Header)

	s.Freeze()
	s.SetGain(70)
	s.ConnectTransducer()

	var got []string
	for range 3 {
		msg, err := r.ReadNextMessage()
		require.NoError(t, err)
		got = append(got, string(msg.Raw))
	}
	assert.Equal(t, []string{"EVENT:FREEZE;", "SDATA:B_GAIN:A 70;", "EVENT:TRANSDUCER_CONNECT;"}, got)
}

func TestCloseDisconnectsClients(t *testing.T) {
	s, _, r := startSim(t, DefaultOptions())
	require.NoError(t, s.Close())

	_, err := r.ReadRaw()
	assert.ErrorIs(t, err, oem.ErrTransportRead)
	assert.NoError(t, s.Close())
}
