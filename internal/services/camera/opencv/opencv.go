// Package opencv drives V4L2 capture devices through gocv.
package opencv

import (
	"errors"
	"fmt"

	"github.com/smartplant/plantcare/internal/services/camera"
	"gocv.io/x/gocv"
)

// DefaultGlob matches the Linux video device nodes.
const DefaultGlob = "/dev/video*"

var errRead = errors.New("opencv: read failed")

// Driver opens devices by index with the V4L2 backend.
type Driver struct {
	Glob string
}

var _ camera.Driver = Driver{}

func (d Driver) Candidates() []int {
	glob := d.Glob
	if glob == "" {
		glob = DefaultGlob
	}
	return camera.VideoIndices(glob)
}

func (Driver) Open(index int) (camera.Device, error) {
	vc, err := gocv.OpenVideoCaptureWithAPI(index, gocv.VideoCaptureV4L2)
	if err != nil {
		return nil, fmt.Errorf("opencv: open %d: %w", index, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("opencv: device %d not opened", index)
	}
	return &device{vc: vc}, nil
}

type device struct {
	vc *gocv.VideoCapture
}

func (d *device) SetFormat(fourcc string, width, height int) error {
	if len(fourcc) != 4 {
		return fmt.Errorf("opencv: invalid fourcc %q", fourcc)
	}
	d.vc.Set(gocv.VideoCaptureFOURCC, d.vc.ToCodec(fourcc))
	d.vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
	d.vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	return nil
}

func (d *device) Read() (camera.Frame, error) {
	mat := gocv.NewMat()
	if ok := d.vc.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, errRead
	}
	return &frame{mat: mat}, nil
}

func (d *device) Close() error {
	return d.vc.Close()
}

type frame struct {
	mat gocv.Mat
}

func (f *frame) Luma() []byte {
	if f.mat.Channels() == 1 {
		return f.mat.ToBytes()
	}
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(f.mat, &gray, gocv.ColorBGRToGray)
	return gray.ToBytes()
}

func (f *frame) JPEG() ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, f.mat)
	if err != nil {
		return nil, fmt.Errorf("opencv: encode jpeg: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}

func (f *frame) Close() error {
	return f.mat.Close()
}
