package bkoem

// Queries understood by the scanner's OEM interface.
const (
	QueryImageSize      = "QUERY:US_WIN_SIZE;"
	QueryScanArea       = "QUERY:B_GEOMETRY_SCANAREA:A;"
	QueryPixelGeometry  = "QUERY:B_GEOMETRY_PIXEL:A;"
	QueryTissueGeometry = "QUERY:B_GEOMETRY_TISSUE:A;"
	QueryGain           = "QUERY:B_GAIN:A;"
	QueryTransducerList = "QUERY:TRANSDUCER_LIST;"
	QueryTransducer     = "QUERY:TRANSDUCER:A;"
	QueryEventsOn       = "CONFIG:EVENTS 1;"
	QuerySubscribe      = `CONFIG:DATA:SUBSCRIBE "US_WIN_SIZE","B_GEOMETRY_SCANAREA","B_GEOMETRY_PIXEL","B_GEOMETRY_TISSUE","B_GAIN","TRANSDUCER";`
	QueryGrabFrameOn    = `QUERY:GRAB_FRAME "ON",20;`
	QueryGrabFrameOff   = `QUERY:GRAB_FRAME "OFF";`
	QueryCaptureImage   = `query:capture_image "PNG";`
)

// Message headers the scanner sends.
const (
	HeaderCaptureImage         = "DATA:CAPTURE_IMAGE"
	HeaderGrabFrame            = "DATA:GRAB_FRAME"
	HeaderTransducerConnect    = "EVENT:TRANSDUCER_CONNECT"
	HeaderTransducerDisconnect = "EVENT:TRANSDUCER_DISCONNECT"
	HeaderTransducerSelected   = "EVENT:TRANSDUCER_SELECTED"
	HeaderFreeze               = "EVENT:FREEZE"
	HeaderUnfreeze             = "EVENT:UNFREEZE"
	HeaderAck                  = "ACK"
)

// parameterQueries refresh every value the scanner reports. The scanner
// answers each with a DATA message named in parameterReplies.
var parameterQueries = []string{
	QueryImageSize,
	QueryScanArea,
	QueryPixelGeometry,
	QueryTissueGeometry,
	QueryGain,
	QueryTransducerList,
	QueryTransducer,
}

var parameterReplies = []string{
	"US_WIN_SIZE",
	"B_GEOMETRY_SCANAREA",
	"B_GEOMETRY_PIXEL",
	"B_GEOMETRY_TISSUE",
	"B_GAIN",
	"TRANSDUCER_LIST",
	"TRANSDUCER",
}
