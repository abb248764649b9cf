package mux

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// deflater produces one independent zlib stream per frame: Reset is
// called before every Compress so each DATA frame's payload decompresses
// on its own, matching spec §4.1's "each segment is an independent
// deflate stream terminated with Z_FINISH".
type deflater struct {
	out bytes.Buffer
	zw  *zlib.Writer
}

func newDeflater() *deflater {
	d := &deflater{}
	d.zw = zlib.NewWriter(&d.out)
	return d
}

// Compress returns the compressed bytes for one frame's payload. The
// returned slice is only valid until the next call to Compress.
func (d *deflater) Compress(p []byte) ([]byte, error) {
	d.out.Reset()
	d.zw.Reset(&d.out)
	if _, err := d.zw.Write(p); err != nil {
		return nil, fmt.Errorf("mux: deflate: %w", err)
	}
	if err := d.zw.Close(); err != nil {
		return nil, fmt.Errorf("mux: deflate close: %w", err)
	}
	return d.out.Bytes(), nil
}

// inflater decompresses one independent zlib stream per frame, reusing
// its decompressor state across frames the way the spec's "INFLATE
// reset-per-frame" describes.
type inflater struct {
	src    *bytes.Reader
	zr     io.ReadCloser
	inited bool
}

func newInflater() *inflater {
	return &inflater{src: bytes.NewReader(nil)}
}

// Decompress returns the decompressed bytes of one frame's payload.
func (d *inflater) Decompress(p []byte) ([]byte, error) {
	d.src.Reset(p)
	if !d.inited {
		zr, err := zlib.NewReader(d.src)
		if err != nil {
			return nil, fmt.Errorf("mux: inflate init: %w", err)
		}
		d.zr = zr
		d.inited = true
	} else if rs, ok := d.zr.(zlib.Resetter); ok {
		if err := rs.Reset(d.src, nil); err != nil {
			return nil, fmt.Errorf("mux: inflate reset: %w", err)
		}
	} else {
		zr, err := zlib.NewReader(d.src)
		if err != nil {
			return nil, fmt.Errorf("mux: inflate reinit: %w", err)
		}
		d.zr = zr
	}

	out, err := io.ReadAll(d.zr)
	if err != nil {
		return nil, fmt.Errorf("mux: inflate: %w", err)
	}
	return out, nil
}
