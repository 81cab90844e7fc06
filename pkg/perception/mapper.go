package perception

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// FrameConfig places the work surface in the robot base frame.
type FrameConfig struct {
	// HomographyPath points at the 3x3 matrix written by the calibration
	// tool, as a JSON array of rows.
	HomographyPath string  `json:"homography_path" yaml:"homography_path"`
	OffsetX        float64 `json:"offset_x" yaml:"offset_x"`
	OffsetY        float64 `json:"offset_y" yaml:"offset_y"`
	// SurfaceZ is the grasp height of objects lying on the surface.
	SurfaceZ float64 `json:"surface_z" yaml:"surface_z"`
}

// DefaultFrameConfig returns the placement of the reference setup.
func DefaultFrameConfig() FrameConfig {
	return FrameConfig{
		HomographyPath: "homography_matrix.json",
		OffsetX:        -50,
		OffsetY:        -190,
		SurfaceZ:       -30,
	}
}

// Blob is a segmented object in image pixels.
type Blob struct {
	Label Label   `json:"label" yaml:"label"`
	X     float64 `json:"x" yaml:"x"`
	Y     float64 `json:"y" yaml:"y"`
}

// BlobSource yields segmented objects from the camera.
type BlobSource interface {
	Blobs(ctx context.Context) ([]Blob, error)
}

// BlobFile is a BlobSource that re-reads a YAML list of pixel centroids
// on every call. A missing file means nothing was seen.
type BlobFile struct {
	Path string
}

// Blobs reads the file.
func (f BlobFile) Blobs(ctx context.Context) ([]Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read blobs: %w", err)
	}
	var blobs []Blob
	if err := yaml.Unmarshal(data, &blobs); err != nil {
		return nil, fmt.Errorf("parse blobs %s: %w", f.Path, err)
	}
	for i := range blobs {
		blobs[i].Label = ParseLabel(string(blobs[i].Label))
	}
	return blobs, nil
}

// PlaneMapper projects image pixels onto the work surface with a homography
// and then into the robot base frame.
type PlaneMapper struct {
	h     *mat.Dense
	frame FrameConfig
}

// NewPlaneMapper returns a mapper for the given row-major 3x3 homography.
func NewPlaneMapper(h [3][3]float64, frame FrameConfig) (*PlaneMapper, error) {
	m := mat.NewDense(3, 3, []float64{
		h[0][0], h[0][1], h[0][2],
		h[1][0], h[1][1], h[1][2],
		h[2][0], h[2][1], h[2][2],
	})
	if det := mat.Det(m); math.Abs(det) < 1e-12 {
		return nil, errors.New("homography is singular")
	}
	return &PlaneMapper{h: m, frame: frame}, nil
}

// LoadPlaneMapper reads the homography from frame.HomographyPath.
func LoadPlaneMapper(frame FrameConfig) (*PlaneMapper, error) {
	data, err := os.ReadFile(frame.HomographyPath)
	if err != nil {
		return nil, fmt.Errorf("read homography: %w", err)
	}
	var h [3][3]float64
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("parse homography %s: %w", frame.HomographyPath, err)
	}
	return NewPlaneMapper(h, frame)
}

// Surface maps a pixel onto surface coordinates in millimetres.
func (m *PlaneMapper) Surface(px, py float64) (x, y float64, err error) {
	var out mat.VecDense
	out.MulVec(m.h, mat.NewVecDense(3, []float64{px, py, 1}))
	w := out.AtVec(2)
	if math.Abs(w) < 1e-12 {
		return 0, 0, fmt.Errorf("pixel (%.0f, %.0f) maps to infinity", px, py)
	}
	return out.AtVec(0) / w, out.AtVec(1) / w, nil
}

// Map converts a pixel to a base-frame position at surface height. The
// surface y axis points away from the robot, so it is flipped.
func (m *PlaneMapper) Map(px, py float64) (r3.Vector, error) {
	sx, sy, err := m.Surface(px, py)
	if err != nil {
		return r3.Vector{}, err
	}
	return r3.Vector{
		X: sx + m.frame.OffsetX,
		Y: -(sy + m.frame.OffsetY),
		Z: m.frame.SurfaceZ,
	}, nil
}

// Mapped turns a BlobSource into a Source.
type Mapped struct {
	Blobs  BlobSource
	Mapper *PlaneMapper
}

// Detect maps every blob into the base frame, keeping camera order.
func (s Mapped) Detect(ctx context.Context) ([]Target, error) {
	blobs, err := s.Blobs.Blobs(ctx)
	if err != nil {
		return nil, err
	}
	targets := make([]Target, 0, len(blobs))
	for _, b := range blobs {
		pos, err := s.Mapper.Map(b.X, b.Y)
		if err != nil {
			continue
		}
		targets = append(targets, Target{Label: b.Label, Position: pos})
	}
	return targets, nil
}
