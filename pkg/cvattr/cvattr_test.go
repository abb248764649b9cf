package cvattr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dittosync/cvsync/pkg/wire"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Attr{
		{Type: Dir, Mode: 0o755},
		{Type: File, Mtime: 1234567890, Size: 42, Mode: 0o644},
		{Type: RCS, Mtime: -1, Mode: 0o444},
		{Type: RCSAttic, Mtime: 99, Mode: 0o444},
		{Type: Symlink, Mode: 0o777},
	}
	for _, a := range cases {
		w := wire.NewWriter(32)
		require.NoError(t, Encode(w, a))
		assert.Equal(t, a.Type.WireLen(), w.Len())

		r := wire.NewReader(w.Bytes())
		got, err := Decode(r, a.Type)
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
}

func TestDecodeShortBufferErrors(t *testing.T) {
	r := wire.NewReader([]byte{0x01})
	_, err := Decode(r, File)
	assert.Error(t, err)
}
