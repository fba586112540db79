package report

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/require"

	"github.com/chazu/obbeval/pkg/detection"
	"github.com/chazu/obbeval/pkg/obb"
)

func inst(label string, x float64, size float64) detection.Instance {
	return detection.Instance{
		Label: label,
		Score: 1,
		Pose:  obb.Pose{Center: v3.Vec{X: x}, Size: v3.Vec{X: size, Y: size, Z: size}},
	}
}

// frame has two matched cars (IoU 1 and 1/3), one missed pedestrian and one
// stray truck prediction.
func frame() (gt, pred []detection.Instance) {
	gt = []detection.Instance{
		inst("car", 0, 1),
		inst("car", 10, 1),
		inst("pedestrian", 20, 1),
	}
	pred = []detection.Instance{
		inst("car", 0, 1),
		inst("car", 10.5, 1),
		inst("truck", 40, 1),
	}
	return gt, pred
}

func TestBuild(t *testing.T) {
	gt, pred := frame()
	s, err := Build("scene-1", gt, pred, DefaultConfig())
	require.NoError(t, err)

	require.Equal(t, "scene-1", s.Name)
	require.Equal(t, 3, s.GT)
	require.Equal(t, 3, s.Pred)
	require.Equal(t, 2, s.Matched)
	require.InDelta(t, 2.0/3, s.Precision(), 1e-12)
	require.InDelta(t, 2.0/3, s.Recall(), 1e-12)
	require.InDelta(t, (1+1.0/3)/2, s.MeanIoU, 1e-9)
	require.InDelta(t, 0.25, s.MeanV2V, 1e-9)

	require.Len(t, s.Classes, 3)
	car := s.Classes[0]
	require.Equal(t, "car", car.Label)
	require.Equal(t, 2, car.GT)
	require.Equal(t, 2, car.Matched)

	ped := s.Classes[1]
	require.Equal(t, "pedestrian", ped.Label)
	require.Equal(t, 1, ped.GT)
	require.Equal(t, 0, ped.Pred)
	require.True(t, math.IsNaN(ped.MeanIoU))

	truck := s.Classes[2]
	require.Equal(t, "truck", truck.Label)
	require.Equal(t, 1, truck.Pred)
}

func TestBuildClassOrder(t *testing.T) {
	gt, pred := frame()
	cfg := DefaultConfig()
	cfg.Classes = []string{"pedestrian", "car", "bicycle"}
	s, err := Build("scene-1", gt, pred, cfg)
	require.NoError(t, err)

	labels := make([]string, len(s.Classes))
	for i, c := range s.Classes {
		labels[i] = c.Label
	}
	require.Equal(t, []string{"pedestrian", "car", "bicycle"}, labels)
	require.Equal(t, 0, s.Classes[2].GT)
}

func TestBuildInvalidInput(t *testing.T) {
	gt := []detection.Instance{{Pose: obb.Pose{Size: v3.Vec{X: -1, Y: 1, Z: 1}}}}
	_, err := Build("bad", gt, nil, DefaultConfig())
	require.Error(t, err)
	require.Contains(t, err.Error(), "report: bad")
}

func TestEmptySummary(t *testing.T) {
	s, err := Build("empty", nil, nil, DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, 0, s.Matched)
	require.True(t, math.IsNaN(s.MeanIoU))
	require.True(t, math.IsNaN(s.Precision()))
	require.Empty(t, s.Classes)
}

func TestSingleMatchHasZeroDeviation(t *testing.T) {
	gt := []detection.Instance{inst("car", 0, 1)}
	s, err := Build("one", gt, gt, DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, 1.0, s.MeanIoU)
	require.Equal(t, 0.0, s.StdIoU)
}

func TestCombine(t *testing.T) {
	gt, pred := frame()
	a, err := Build("a", gt, pred, DefaultConfig())
	require.NoError(t, err)
	b, err := Build("b", gt[:1], pred[:1], DefaultConfig())
	require.NoError(t, err)

	all := Combine("total", []Summary{a, b}, nil)
	require.Equal(t, 4, all.GT)
	require.Equal(t, 4, all.Pred)
	require.Equal(t, 3, all.Matched)
	require.InDelta(t, (1+1.0/3+1)/3, all.MeanIoU, 1e-9)
	require.Equal(t, 3, all.Classes[0].GT)
	require.Equal(t, 3, all.Classes[0].Matched)
}

func TestString(t *testing.T) {
	gt, pred := frame()
	s, err := Build("scene-1", gt, pred, DefaultConfig())
	require.NoError(t, err)

	out := s.String()
	for _, want := range []string{
		"File: scene-1\n",
		"GT boxes: 3\n",
		"Matched: 2\n",
		"mIoU: 0.6667",
		"mV2V: 0.2500\n",
		"Per-class results:\n",
		"Object Class        \tGT    \tPred  \tTP    \tIoU   \tV2V   \tBBD   \n",
		"car                 \t2     \t2     \t2     \t0.667 \t0.250 \t",
	} {
		require.Contains(t, out, want)
	}
	require.True(t, strings.HasSuffix(out, "\n"))
}

func TestWriteFile(t *testing.T) {
	gt, pred := frame()
	s, err := Build("scene-1", gt, pred, DefaultConfig())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "scene-1.txt")
	require.NoError(t, s.WriteFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, s.String(), string(data))

	require.Error(t, s.WriteFile(filepath.Join(t.TempDir(), "missing", "x.txt")))
}
