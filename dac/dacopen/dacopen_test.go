package dacopen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		path     string
		expected Path
	}{
		{"usb", Path{Kind: KindUSB, Addr: 0x2C}},
		{"usb:0001234", Path{Kind: KindUSB, Bus: "0001234", Addr: 0x2C}},
		{"usb::0x2d", Path{Kind: KindUSB, Addr: 0x2D}},
		{"platform", Path{Kind: KindPlatform, Addr: 0x2C}},
		{"platform:/dev/i2c-1", Path{Kind: KindPlatform, Bus: "/dev/i2c-1", Addr: 0x2C}},
		{"platform:1:47", Path{Kind: KindPlatform, Bus: "1", Addr: 0x2F}},
	}

	for _, test := range tests {
		p, err := ParsePath(test.path)
		require.NoError(t, err, test.path)
		assert.Equal(t, test.expected, p, test.path)
	}
}

func TestParsePathErrors(t *testing.T) {
	for _, path := range []string{"", "spi:0", "usb::0x80", "usb::zz", "platform:1:0x2c:x"} {
		_, err := ParsePath(path)
		assert.Error(t, err, path)
	}
}

func TestPathString(t *testing.T) {
	p := Path{Kind: KindPlatform, Bus: "1", Addr: i2c.Addr(0x2C)}
	assert.Equal(t, "platform:1:0x2c", p.String())

	parsed, err := ParsePath(p.String())
	require.NoError(t, err)
	assert.Equal(t, p, parsed)
}

func TestOpenBusUnsupported(t *testing.T) {
	_, err := OpenBus(Path{Kind: "spi"})
	assert.Error(t, err)
}
