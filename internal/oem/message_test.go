package oem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		in      string
		header  string
		class   string
		name    string
		subtype string
		body    string
	}{
		{"DATA:B_GAIN:A 42;", "DATA:B_GAIN:A", ClassData, "B_GAIN", "A", "42;"},
		{"SDATA:US_WIN_SIZE 800,600;", "SDATA:US_WIN_SIZE", ClassSData, "US_WIN_SIZE", "", "800,600;"},
		{"EVENT:FREEZE;", "EVENT:FREEZE", ClassEvent, "FREEZE", "", ""},
		{"ACK;", "ACK", ClassAck, "", "", ""},
		{"DATA:TRANSDUCER:A \"A\",\"8848\";", "DATA:TRANSDUCER:A", ClassData, "TRANSDUCER", "A", "\"A\",\"8848\";"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m := Classify([]byte(tt.in))
			assert.Equal(t, tt.header, m.Header)
			assert.Equal(t, tt.class, m.Class)
			assert.Equal(t, tt.name, m.Name)
			assert.Equal(t, tt.subtype, m.Subtype)
			assert.Equal(t, tt.body, string(m.Body))
		})
	}
}

func TestMessage_Fields(t *testing.T) {
	m := Classify([]byte("DATA:B_GEOMETRY_PIXEL:A 10, 20,300,400;"))
	assert.Equal(t, []string{"10", "20", "300", "400"}, m.Fields())
	assert.True(t, m.IsData())

	assert.Nil(t, Classify([]byte("ACK;")).Fields())
}

func TestUnquote(t *testing.T) {
	assert.Equal(t, "8848", Unquote(`"8848"`))
	assert.Equal(t, "8848", Unquote("8848"))
	assert.Equal(t, `"`, Unquote(`"`))
}
