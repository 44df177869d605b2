package bkoem

import (
	"fmt"
	"strconv"

	"github.com/plus-control/plusd/internal/oem"
)

// Parameter names answered by the scanner. DeviceId is added to every answer.
const (
	ParamDepth              = "Depth"
	ParamGain               = "Gain"
	ParamStartDepth         = "StartDepth"
	ParamStopDepth          = "StopDepth"
	ParamStartLineX         = "StartLineX"
	ParamStartLineY         = "StartLineY"
	ParamStopLineX          = "StopLineX"
	ParamStopLineY          = "StopLineY"
	ParamStartLineAngle     = "StartLineAngle"
	ParamStopLineAngle      = "StopLineAngle"
	ParamProbeType          = "ProbeType"
	ParamSpacingX           = "SpacingX"
	ParamSpacingY           = "SpacingY"
	ParamSectorLeftPixels   = "SectorLeftPixels"
	ParamSectorRightPixels  = "SectorRightPixels"
	ParamSectorTopPixels    = "SectorTopPixels"
	ParamSectorBottomPixels = "SectorBottomPixels"
	ParamSectorLeftMm       = "SectorLeftMm"
	ParamSectorRightMm      = "SectorRightMm"
	ParamSectorTopMm        = "SectorTopMm"
	ParamSectorBottomMm     = "SectorBottomMm"
	ParamDeviceID           = "DeviceId"
)

var parameterNames = []string{
	ParamDepth,
	ParamGain,
	ParamStartDepth,
	ParamStopDepth,
	ParamStartLineX,
	ParamStartLineY,
	ParamStopLineX,
	ParamStopLineY,
	ParamStartLineAngle,
	ParamStopLineAngle,
	ParamProbeType,
	ParamSpacingX,
	ParamSpacingY,
	ParamSectorLeftPixels,
	ParamSectorRightPixels,
	ParamSectorTopPixels,
	ParamSectorBottomPixels,
	ParamSectorLeftMm,
	ParamSectorRightMm,
	ParamSectorTopMm,
	ParamSectorBottomMm,
}

// ProbeType is the transducer geometry.
type ProbeType string

const (
	ProbeUnknown    ProbeType = "UNKNOWN"
	ProbeSector     ProbeType = "SECTOR"
	ProbeLinear     ProbeType = "LINEAR"
	ProbeMechanical ProbeType = "MECHANICAL"
)

// probeTypeFor maps the scanner's one letter transducer type.
func probeTypeFor(code string) ProbeType {
	switch code {
	case "C":
		return ProbeSector
	case "L":
		return ProbeLinear
	case "M":
		return ProbeMechanical
	default:
		return ProbeUnknown
	}
}

// transducerPorts lists the ports in TRANSDUCER_LIST order.
var transducerPorts = []string{"A", "B", "C", "M"}

// Parameters is the imaging state last reported by the scanner. Lengths are
// in meters and angles in radians, as sent.
type Parameters struct {
	WindowWidth  int
	WindowHeight int

	StartLineX     float64
	StartLineY     float64
	StartLineAngle float64
	StartDepth     float64
	StopLineX      float64
	StopLineY      float64
	StopLineAngle  float64
	StopDepth      float64

	PixelLeft   int
	PixelTop    int
	PixelRight  int
	PixelBottom int

	TissueLeft   float64
	TissueTop    float64
	TissueRight  float64
	TissueBottom float64

	GainPercent int

	// ProbePort is the port driving view A
	ProbePort  string
	ProbeTypes map[string]ProbeType
}

// DepthMm is the imaging depth of view A.
func (p *Parameters) DepthMm() float64 {
	return (p.StopDepth - p.StartDepth) * 1000
}

// SpacingX is the horizontal pixel spacing in mm, 0 when the pixel span is empty.
func (p *Parameters) SpacingX() float64 {
	span := p.PixelRight - p.PixelLeft
	if span == 0 {
		return 0
	}
	return 1000 * (p.TissueRight - p.TissueLeft) / float64(span)
}

// SpacingY is the vertical pixel spacing in mm, 0 when the pixel span is empty.
func (p *Parameters) SpacingY() float64 {
	span := p.PixelBottom - p.PixelTop
	if span == 0 {
		return 0
	}
	return 1000 * (p.TissueTop - p.TissueBottom) / float64(span)
}

// ProbeType returns the type of the transducer on the active port.
func (p *Parameters) ProbeType() ProbeType {
	if t, ok := p.ProbeTypes[p.ProbePort]; ok {
		return t
	}
	return ProbeUnknown
}

// Values renders every parameter as a string keyed by parameter name.
func (p *Parameters) Values() map[string]string {
	return map[string]string{
		ParamDepth:              formatFloat(p.DepthMm()),
		ParamGain:               strconv.Itoa(p.GainPercent),
		ParamStartDepth:         formatFloat(p.StartDepth * 1000),
		ParamStopDepth:          formatFloat(p.StopDepth * 1000),
		ParamStartLineX:         formatFloat(p.StartLineX * 1000),
		ParamStartLineY:         formatFloat(p.StartLineY * 1000),
		ParamStopLineX:          formatFloat(p.StopLineX * 1000),
		ParamStopLineY:          formatFloat(p.StopLineY * 1000),
		ParamStartLineAngle:     formatFloat(p.StartLineAngle),
		ParamStopLineAngle:      formatFloat(p.StopLineAngle),
		ParamProbeType:          string(p.ProbeType()),
		ParamSpacingX:           formatFloat(p.SpacingX()),
		ParamSpacingY:           formatFloat(p.SpacingY()),
		ParamSectorLeftPixels:   strconv.Itoa(p.PixelLeft),
		ParamSectorRightPixels:  strconv.Itoa(p.PixelRight),
		ParamSectorTopPixels:    strconv.Itoa(p.PixelTop),
		ParamSectorBottomPixels: strconv.Itoa(p.PixelBottom),
		ParamSectorLeftMm:       formatFloat(p.TissueLeft * 1000),
		ParamSectorRightMm:      formatFloat(p.TissueRight * 1000),
		ParamSectorTopMm:        formatFloat(p.TissueTop * 1000),
		ParamSectorBottomMm:     formatFloat(p.TissueBottom * 1000),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Apply updates the parameters from a DATA or SDATA message. It returns the
// message name when the message carried a parameter, or "" when it did not.
func (p *Parameters) Apply(msg oem.Message) (string, error) {
	if !msg.IsData() {
		return "", nil
	}
	fields := msg.Fields()

	switch {
	case msg.Name == "US_WIN_SIZE":
		v, err := parseInts(fields, 2)
		if err != nil {
			return "", fmt.Errorf("%s: %w", msg.Header, err)
		}
		p.WindowWidth, p.WindowHeight = v[0], v[1]

	case msg.Name == "B_GEOMETRY_SCANAREA" && msg.Subtype == "A":
		v, err := parseFloats(fields, 8)
		if err != nil {
			return "", fmt.Errorf("%s: %w", msg.Header, err)
		}
		p.StartLineX, p.StartLineY, p.StartLineAngle, p.StartDepth = v[0], v[1], v[2], v[3]
		p.StopLineX, p.StopLineY, p.StopLineAngle, p.StopDepth = v[4], v[5], v[6], v[7]

	case msg.Name == "B_GEOMETRY_PIXEL" && msg.Subtype == "A":
		v, err := parseInts(fields, 4)
		if err != nil {
			return "", fmt.Errorf("%s: %w", msg.Header, err)
		}
		p.PixelLeft, p.PixelTop, p.PixelRight, p.PixelBottom = v[0], v[1], v[2], v[3]

	case msg.Name == "B_GEOMETRY_TISSUE" && msg.Subtype == "A":
		v, err := parseFloats(fields, 4)
		if err != nil {
			return "", fmt.Errorf("%s: %w", msg.Header, err)
		}
		p.TissueLeft, p.TissueTop, p.TissueRight, p.TissueBottom = v[0], v[1], v[2], v[3]

	case msg.Name == "B_GAIN" && msg.Subtype == "A":
		v, err := parseInts(fields, 1)
		if err != nil {
			return "", fmt.Errorf("%s: %w", msg.Header, err)
		}
		p.GainPercent = v[0]

	case msg.Name == "TRANSDUCER_LIST":
		// name,type pairs for ports A, B, C and M
		types := make(map[string]ProbeType, len(transducerPorts))
		for i, port := range transducerPorts {
			typ := ""
			if j := 2*i + 1; j < len(fields) {
				typ = oem.Unquote(fields[j])
			}
			types[port] = probeTypeFor(typ)
		}
		p.ProbeTypes = types

	case msg.Name == "TRANSDUCER" && msg.Subtype == "A":
		if len(fields) == 0 {
			return "", fmt.Errorf("%s: no port field", msg.Header)
		}
		p.ProbePort = oem.Unquote(fields[0])

	default:
		return "", nil
	}
	return msg.Name, nil
}

func parseInts(fields []string, n int) ([]int, error) {
	if len(fields) < n {
		return nil, fmt.Errorf("expected %d fields, got %d", n, len(fields))
	}
	out := make([]int, n)
	for i := range out {
		v, err := strconv.Atoi(fields[i])
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseFloats(fields []string, n int) ([]float64, error) {
	if len(fields) < n {
		return nil, fmt.Errorf("expected %d fields, got %d", n, len(fields))
	}
	out := make([]float64, n)
	for i := range out {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
