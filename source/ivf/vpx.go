package ivf

import (
	"errors"
	"fmt"
	"unsafe"
)

/*
#cgo pkg-config: vpx
#include <stdlib.h>
#include <vpx/vpx_decoder.h>
#include <vpx/vp8dx.h>
#include <vpx/vpx_image.h>

vpx_codec_iface_t *ifaceVP8Decoder() {
   return vpx_codec_vp8_dx();
}
vpx_codec_iface_t *ifaceVP9Decoder() {
   return vpx_codec_vp9_dx();
}

vpx_codec_ctx_t* newDecoderCtx() {
    return (vpx_codec_ctx_t*)malloc(sizeof(vpx_codec_ctx_t));
}

vpx_codec_err_t decoderInit(vpx_codec_ctx_t* ctx, vpx_codec_iface_t* iface) {
    return vpx_codec_dec_init_ver(ctx, iface, NULL, 0, VPX_DECODER_ABI_VERSION);
}

vpx_codec_err_t decodeFrame(vpx_codec_ctx_t* ctx, const uint8_t* data, unsigned int data_sz) {
    return vpx_codec_decode(ctx, data, data_sz, NULL, 0);
}

vpx_image_t* getFrame(vpx_codec_ctx_t* ctx, vpx_codec_iter_t* iter) {
    return vpx_codec_get_frame(ctx, iter);
}

void freeDecoderCtx(vpx_codec_ctx_t* ctx) {
    vpx_codec_destroy(ctx);
    free(ctx);
}
*/
import "C"

var ErrNoImage = errors.New("no image in decoder")

// VPXDecoder decodes VP8 or VP9 frames into packed I420 images.
type VPXDecoder struct {
	codecCtx *C.vpx_codec_ctx_t
	closed   bool
	iter     C.vpx_codec_iter_t
}

// NewVPXDecoder creates a decoder for the IVF fourcc "VP80" or "VP90".
func NewVPXDecoder(fourcc string) (*VPXDecoder, error) {
	var iface *C.vpx_codec_iface_t
	switch fourcc {
	case "VP80":
		iface = C.ifaceVP8Decoder()
	case "VP90":
		iface = C.ifaceVP9Decoder()
	default:
		return nil, fmt.Errorf("unsupported codec: %q", fourcc)
	}
	codec := C.newDecoderCtx()
	if C.decoderInit(codec, iface) != C.VPX_CODEC_OK {
		C.free(unsafe.Pointer(codec))
		return nil, fmt.Errorf("vpx_codec_dec_init failed")
	}
	return &VPXDecoder{
		codecCtx: codec,
	}, nil
}

func (d *VPXDecoder) Decode(frame []byte) (*Image, error) {
	if d.closed {
		return nil, fmt.Errorf("decoder is closed")
	}
	if len(frame) == 0 {
		return nil, fmt.Errorf("empty frame")
	}

	status := C.decodeFrame(d.codecCtx, (*C.uint8_t)(&frame[0]), C.uint(len(frame)))
	if status != C.VPX_CODEC_OK {
		return nil, fmt.Errorf("decode failed: %v", status)
	}

	d.iter = nil
	img := C.getFrame(d.codecCtx, &d.iter)
	if img == nil {
		return nil, ErrNoImage
	}

	w := int(img.d_w)
	h := int(img.d_h)
	cw, ch := (w+1)/2, (h+1)/2
	yStride := int(img.stride[0])
	uStride := int(img.stride[1])
	vStride := int(img.stride[2])

	ySrc := unsafe.Slice((*byte)(unsafe.Pointer(img.planes[0])), yStride*h)
	uSrc := unsafe.Slice((*byte)(unsafe.Pointer(img.planes[1])), uStride*ch)
	vSrc := unsafe.Slice((*byte)(unsafe.Pointer(img.planes[2])), vStride*ch)

	ySize := w * h
	cSize := cw * ch
	data := make([]byte, ySize+2*cSize)

	for r := range h {
		copy(data[r*w:r*w+w], ySrc[r*yStride:r*yStride+w])
	}
	uOffset := ySize
	vOffset := ySize + cSize
	for r := range ch {
		copy(data[uOffset+r*cw:uOffset+r*cw+cw], uSrc[r*uStride:r*uStride+cw])
		copy(data[vOffset+r*cw:vOffset+r*cw+cw], vSrc[r*vStride:r*vStride+cw])
	}

	return &Image{
		Width:  w,
		Height: h,
		Data:   data,
	}, nil
}

func (d *VPXDecoder) Close() error {
	if d.closed {
		return nil
	}
	C.freeDecoderCtx(d.codecCtx)
	d.closed = true
	return nil
}
