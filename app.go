package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/chazu/obbeval/pkg/detection"
	"github.com/chazu/obbeval/pkg/engine"
	"github.com/chazu/obbeval/pkg/kernel"
	"github.com/chazu/obbeval/pkg/kernel/sdfx"
	"github.com/chazu/obbeval/pkg/obb"
	"github.com/chazu/obbeval/pkg/report"
	"github.com/chazu/obbeval/pkg/tessellate"
)

// colorPalette assigns distinct colors to exported meshes.
var colorPalette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// App ties the loaders, the comparison engine and the report writer
// together for the command line.
type App struct {
	engine  *engine.Engine
	kernel  kernel.Kernel
	opts    obb.Options
	cfg     report.Config
	workers int
}

// NewApp creates an App with the sdfx kernel.
func NewApp(opts obb.Options, cfg report.Config, workers int) *App {
	if workers < 1 {
		workers = 1
	}
	cfg.Match.Options = opts
	return &App{
		engine:  engine.NewEngine(),
		kernel:  sdfx.New(),
		opts:    opts,
		cfg:     cfg,
		workers: workers,
	}
}

// EvaluatePair compares the single record in gtPath with the single record
// in predPath.
func (a *App) EvaluatePair(gtPath, predPath string) (obb.Metrics, error) {
	gt, err := os.ReadFile(gtPath)
	if err != nil {
		return obb.Metrics{}, fmt.Errorf("read ground truth: %w", err)
	}
	pred, err := os.ReadFile(predPath)
	if err != nil {
		return obb.Metrics{}, fmt.Errorf("read prediction: %w", err)
	}
	return detection.EvaluateWith(gt, pred, a.opts)
}

// loadPair reads the single record in each file.
func (a *App) loadPair(gtPath, predPath string) (detection.Instance, detection.Instance, error) {
	gt, err := detection.LoadFile(gtPath, detection.GroundTruth)
	if err != nil {
		return detection.Instance{}, detection.Instance{}, err
	}
	pred, err := detection.LoadFile(predPath, detection.Prediction)
	if err != nil {
		return detection.Instance{}, detection.Instance{}, err
	}
	if len(gt) != 1 || len(pred) != 1 {
		return detection.Instance{}, detection.Instance{}, fmt.Errorf("expected one record per file, got %d and %d", len(gt), len(pred))
	}
	return gt[0], pred[0], nil
}

// SampledIoU estimates the pair's IoU by sampling the kernel solids on a
// cells³ grid.
func (a *App) SampledIoU(gtPath, predPath string, cells int) (float64, error) {
	gt, pred, err := a.loadPair(gtPath, predPath)
	if err != nil {
		return 0, err
	}
	sa, err := tessellate.Solid(a.kernel, gt.Pose, a.opts.Order)
	if err != nil {
		return 0, fmt.Errorf("ground truth solid: %w", err)
	}
	sb, err := tessellate.Solid(a.kernel, pred.Pose, a.opts.Order)
	if err != nil {
		return 0, fmt.Errorf("prediction solid: %w", err)
	}
	return kernel.SampledIoU(sa, sb, cells), nil
}

// MeshData is the JSON mesh format written by ExportMesh.
type MeshData struct {
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	Indices  []uint32  `json:"indices"`
	Name     string    `json:"name"`
	Color    string    `json:"color"`
}

// ExportMesh writes the two boxes and their overlap as a JSON array of
// meshes.
func (a *App) ExportMesh(gtPath, predPath, out string) error {
	gt, pred, err := a.loadPair(gtPath, predPath)
	if err != nil {
		return err
	}
	parts := []tessellate.Part{
		{Name: "gt", Pose: gt.Pose},
		{Name: "pred", Pose: pred.Pose},
	}
	meshes, err := tessellate.Tessellate(parts, a.kernel, a.opts.Order)
	if err != nil {
		return err
	}
	overlap, err := tessellate.Overlap(a.kernel, parts[0], parts[1], a.opts.Order)
	if err != nil {
		return err
	}
	meshes = append(meshes, overlap)

	data := make([]MeshData, 0, len(meshes))
	for i, m := range meshes {
		data = append(data, MeshData{
			Vertices: m.Vertices,
			Normals:  m.Normals,
			Indices:  m.Indices,
			Name:     m.Name,
			Color:    colorPalette[i%len(colorPalette)],
		})
	}
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode meshes: %w", err)
	}
	if err := os.WriteFile(out, b, 0o644); err != nil {
		return fmt.Errorf("write meshes: %w", err)
	}
	return nil
}

// EvaluateScript runs a scenario script and scores its comparisons.
// Script errors are returned separately from fatal ones.
func (a *App) EvaluateScript(source string) ([]engine.ComparisonResult, []engine.EvalError, error) {
	sc, evalErrs, err := a.engine.Evaluate(source)
	if err != nil {
		log.Printf("Evaluate fatal error: %v", err)
		return nil, nil, err
	}
	if len(evalErrs) > 0 {
		return nil, evalErrs, nil
	}
	results, err := sc.Run(a.opts)
	if err != nil {
		return nil, nil, err
	}
	return results, nil, nil
}

// FileResult is the outcome for one prediction file.
type FileResult struct {
	Name    string // file stem
	Summary report.Summary
	Err     error
}

// predictionFiles lists the .json files in dir, sorted by name.
func predictionFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// EvaluateDir evaluates every prediction file in predsDir against the file
// of the same name in gtDir and writes <stem>.txt reports to outDir.
// Files are processed by a bounded pool of workers; results come back in
// file name order. done, if non-nil, is called once per finished file from
// the worker goroutines. A failing file is reported in its FileResult and
// does not stop the others.
func (a *App) EvaluateDir(ctx context.Context, gtDir, predsDir, outDir string, done func(FileResult)) ([]FileResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	names, err := predictionFiles(predsDir)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	results := make([]FileResult, len(names))
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < min(a.workers, max(len(names), 1)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = a.evaluateFile(gtDir, predsDir, outDir, names[i])
				if done != nil {
					done(results[i])
				}
			}
		}()
	}

	var cancelled error
feed:
	for i := range names {
		select {
		case jobs <- i:
		case <-ctx.Done():
			cancelled = ctx.Err()
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if cancelled != nil {
		return nil, cancelled
	}
	return results, nil
}

// evaluateFile scores one prediction file and writes its report.
func (a *App) evaluateFile(gtDir, predsDir, outDir, name string) FileResult {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	res := FileResult{Name: stem}

	pred, err := detection.LoadFile(filepath.Join(predsDir, name), detection.Prediction)
	if err != nil {
		res.Err = err
		return res
	}
	gt, err := detection.LoadFile(filepath.Join(gtDir, name), detection.GroundTruth)
	if err != nil {
		res.Err = err
		return res
	}

	for _, set := range [][]detection.Instance{gt, pred} {
		for _, w := range detection.Validate(set).Warnings {
			log.Printf("%s: %s: %s", stem, w.ID, w.Message)
		}
	}

	s, err := report.Build(stem, gt, pred, a.cfg)
	if err != nil {
		res.Err = err
		return res
	}
	res.Summary = s
	if err := s.WriteFile(filepath.Join(outDir, stem+".txt")); err != nil {
		res.Err = err
	}
	return res
}
