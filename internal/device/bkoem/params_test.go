package bkoem

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plus-control/plusd/internal/oem"
)

func apply(t *testing.T, p *Parameters, msgs ...string) {
	t.Helper()
	for _, m := range msgs {
		_, err := p.Apply(oem.Classify([]byte(m)))
		require.NoError(t, err, m)
	}
}

func TestParameters_Apply(t *testing.T) {
	var p Parameters
	apply(t, &p,
		"DATA:US_WIN_SIZE 640,480;",
		"DATA:B_GEOMETRY_SCANAREA:A 0,0,-0.5,0.002,0,0,0.5,0.05;",
		"DATA:B_GEOMETRY_PIXEL:A 10,20,110,70;",
		"DATA:B_GEOMETRY_TISSUE:A -0.004,0,0.004,-0.006;",
		"SDATA:B_GAIN:A 42;",
		`DATA:TRANSDUCER_LIST "8820e","C","8848","L","","","","";`,
		`DATA:TRANSDUCER:A "B","8848";`,
	)

	assert.Equal(t, 640, p.WindowWidth)
	assert.Equal(t, 480, p.WindowHeight)
	assert.Equal(t, 42, p.GainPercent)
	assert.Equal(t, "B", p.ProbePort)
	assert.Equal(t, ProbeLinear, p.ProbeType())
	assert.Equal(t, map[string]ProbeType{
		"A": ProbeSector,
		"B": ProbeLinear,
		"C": ProbeUnknown,
		"M": ProbeUnknown,
	}, p.ProbeTypes)

	want := map[string]string{
		ParamDepth:              "48",
		ParamGain:               "42",
		ParamStartDepth:         "2",
		ParamStopDepth:          "50",
		ParamStartLineX:         "0",
		ParamStartLineY:         "0",
		ParamStopLineX:          "0",
		ParamStopLineY:          "0",
		ParamStartLineAngle:     "-0.5",
		ParamStopLineAngle:      "0.5",
		ParamProbeType:          "LINEAR",
		ParamSpacingX:           "0.08",
		ParamSpacingY:           "0.12",
		ParamSectorLeftPixels:   "10",
		ParamSectorRightPixels:  "110",
		ParamSectorTopPixels:    "20",
		ParamSectorBottomPixels: "70",
		ParamSectorLeftMm:       "-4",
		ParamSectorRightMm:      "4",
		ParamSectorTopMm:        "0",
		ParamSectorBottomMm:     "-6",
	}
	if diff := cmp.Diff(want, p.Values()); diff != "" {
		t.Errorf("Values() mismatch (-want +got):\n%s", diff)
	}
}

func TestParameters_ZeroSpan(t *testing.T) {
	var p Parameters
	apply(t, &p,
		"DATA:B_GEOMETRY_PIXEL:A 5,5,5,5;",
		"DATA:B_GEOMETRY_TISSUE:A -0.004,0,0.004,-0.006;",
	)
	assert.Zero(t, p.SpacingX())
	assert.Zero(t, p.SpacingY())
	assert.Equal(t, ProbeUnknown, p.ProbeType())
}

func TestParameters_ApplyNames(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"DATA:US_WIN_SIZE 1,1;", "US_WIN_SIZE"},
		{"DATA:B_GAIN:A 1;", "B_GAIN"},
		{"DATA:B_GAIN:B 1;", ""},
		{"DATA:SOMETHING_ELSE 1;", ""},
		{"EVENT:FREEZE;", ""},
	}
	for _, tt := range tests {
		var p Parameters
		name, err := p.Apply(oem.Classify([]byte(tt.msg)))
		require.NoError(t, err, tt.msg)
		assert.Equal(t, tt.want, name, tt.msg)
	}
}

func TestParameters_ApplyMalformed(t *testing.T) {
	msgs := []string{
		"DATA:US_WIN_SIZE 640;",
		"DATA:US_WIN_SIZE wide,480;",
		"DATA:B_GEOMETRY_SCANAREA:A 0,0,0;",
		"DATA:B_GEOMETRY_TISSUE:A a,b,c,d;",
		"DATA:B_GAIN:A;",
		"DATA:TRANSDUCER:A;",
	}
	for _, m := range msgs {
		p := Parameters{GainPercent: 7, WindowWidth: 3}
		_, err := p.Apply(oem.Classify([]byte(m)))
		assert.Error(t, err, m)
		assert.Equal(t, 7, p.GainPercent, m)
		assert.Equal(t, 3, p.WindowWidth, m)
	}
}

func TestProbeTypeFor(t *testing.T) {
	assert.Equal(t, ProbeSector, probeTypeFor("C"))
	assert.Equal(t, ProbeLinear, probeTypeFor("L"))
	assert.Equal(t, ProbeMechanical, probeTypeFor("M"))
	assert.Equal(t, ProbeUnknown, probeTypeFor(""))
	assert.Equal(t, ProbeUnknown, probeTypeFor("X"))
}
