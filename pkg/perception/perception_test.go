package perception

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blobList []Blob

func (b blobList) Blobs(context.Context) ([]Blob, error) { return b, nil }

func TestStatic(t *testing.T) {
	src := Static{{Label: Green, Position: r3.Vector{X: 30, Y: 100, Z: -30}}}

	got, err := src.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	got[0].Label = Black
	assert.Equal(t, Green, src[0].Label, "Detect must not expose the backing list")
}

func TestParseTarget(t *testing.T) {
	got, err := ParseTarget("Green:30, 100,-30")
	require.NoError(t, err)
	assert.Equal(t, Target{Label: Green, Position: r3.Vector{X: 30, Y: 100, Z: -30}}, got)

	for _, bad := range []string{"green", "green:1,2", "green:1,2,x", ""} {
		_, err := ParseTarget(bad)
		assert.Error(t, err, bad)
	}
}

func TestFile_Detect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.yaml")
	data := "- {label: green, x: 30, y: 100, z: -30}\n- {label: black, x: -10, y: 120, z: -30}\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	want := []Target{
		{Label: Green, Position: r3.Vector{X: 30, Y: 100, Z: -30}},
		{Label: Black, Position: r3.Vector{X: -10, Y: 120, Z: -30}},
	}

	got, err := File{Path: path}.Detect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFile_Missing(t *testing.T) {
	got, err := File{Path: filepath.Join(t.TempDir(), "nope.yaml")}.Detect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFile_LabelsNormalised(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- label: ' Green '\n  x: 1\n  y: 2\n  z: 3\n"), 0644))

	got, err := File{Path: path}.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Green, got[0].Label)
	assert.Equal(t, r3.Vector{X: 1, Y: 2, Z: 3}, got[0].Position)
}

func TestFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.yaml")
	require.NoError(t, os.WriteFile(path, []byte("label: [unclosed"), 0644))

	_, err := File{Path: path}.Detect(context.Background())
	assert.Error(t, err)
}

func TestPlaneMapper_Identity(t *testing.T) {
	m, err := NewPlaneMapper([3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, DefaultFrameConfig())
	require.NoError(t, err)

	pos, err := m.Map(80, 90)
	require.NoError(t, err)
	assert.InDelta(t, 30, pos.X, 1e-9)
	assert.InDelta(t, 100, pos.Y, 1e-9)
	assert.InDelta(t, -30, pos.Z, 1e-9)
}

func TestPlaneMapper_Projective(t *testing.T) {
	// Scale by two with a homogeneous weight of two: net identity.
	m, err := NewPlaneMapper([3][3]float64{{2, 0, 0}, {0, 2, 0}, {0, 0, 2}}, FrameConfig{})
	require.NoError(t, err)

	x, y, err := m.Surface(12, 34)
	require.NoError(t, err)
	assert.InDelta(t, 12, x, 1e-9)
	assert.InDelta(t, 34, y, 1e-9)
}

func TestPlaneMapper_Singular(t *testing.T) {
	_, err := NewPlaneMapper([3][3]float64{{1, 2, 3}, {2, 4, 6}, {0, 0, 1}}, FrameConfig{})
	assert.Error(t, err)
}

func TestLoadPlaneMapper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "homography_matrix.json")
	require.NoError(t, os.WriteFile(path, []byte("[[0.5,0,10],[0,0.5,20],[0,0,1]]"), 0644))

	frame := FrameConfig{HomographyPath: path}
	m, err := LoadPlaneMapper(frame)
	require.NoError(t, err)

	x, y, err := m.Surface(100, 200)
	require.NoError(t, err)
	assert.InDelta(t, 60, x, 1e-9)
	assert.InDelta(t, 120, y, 1e-9)
}

func TestMapped(t *testing.T) {
	m, err := NewPlaneMapper([3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, DefaultFrameConfig())
	require.NoError(t, err)

	src := Mapped{
		Blobs:  blobList{{Label: Green, X: 80, Y: 90}, {Label: Black, X: 50, Y: 190}},
		Mapper: m,
	}
	got, err := src.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Green, got[0].Label)
	assert.InDelta(t, 0, got[1].Position.X, 1e-9)
	assert.InDelta(t, 0, got[1].Position.Y, 1e-9)
}

func TestBlobFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blobs.yaml")

	got, err := BlobFile{Path: path}.Blobs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)

	data := "- label: ' Green'\n  x: 80\n  y: 90\n- label: black\n  x: 50\n  y: 190\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	got, err = BlobFile{Path: path}.Blobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Blob{{Label: Green, X: 80, Y: 90}, {Label: Black, X: 50, Y: 190}}, got)

	require.NoError(t, os.WriteFile(path, []byte("- label: [\n"), 0644))
	_, err = BlobFile{Path: path}.Blobs(context.Background())
	assert.Error(t, err)
}
