// Command obbeval compares predicted 3D oriented bounding boxes with ground
// truth: volumetric IoU, vertex-to-vertex distance (V2V) and bounding box
// disparity (BBD).
//
// Usage:
//
//	obbeval -gt gt.json -pred pred.json
//	obbeval -gt-dir gt/ -preds-dir preds/ -output-dir reports/
//	obbeval -script scenario.lisp
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/k0kubun/go-ansi"
	"github.com/mitchellh/colorstring"
	"github.com/schollz/progressbar/v3"

	"github.com/chazu/obbeval/pkg/obb"
	"github.com/chazu/obbeval/pkg/report"
)

func main() {
	var (
		gtPath   = flag.String("gt", "", "ground-truth record file")
		predPath = flag.String("pred", "", "prediction record file")
		gtDir    = flag.String("gt-dir", "", "directory of ground-truth files")
		predsDir = flag.String("preds-dir", "", "directory of prediction files")
		outDir   = flag.String("output-dir", "", "directory for the per-file reports")
		script   = flag.String("script", "", "scenario script to evaluate")
		meshOut  = flag.String("mesh", "", "with -gt/-pred: write box and overlap meshes as JSON")
		sampled  = flag.Int("sampled", 0, "with -gt/-pred: also estimate IoU on an N³ sample grid")
		order    = flag.String("order", "xyz", "Euler composition: xyz (extrinsic) or XYZ (intrinsic)")
		epsilon  = flag.Float64("epsilon", obb.DefaultEpsilon, "floor for IoU denominators")
		workers  = flag.Int("workers", 4, "files evaluated in parallel")
		iouTh    = flag.Float64("iou-threshold", 0, "minimum IoU for an overlap match (0 keeps the default)")
		centerTh = flag.Float64("center-distance", 0, "fallback center matching radius (0 keeps the default)")
	)
	flag.Parse()
	log.SetFlags(0)

	ro, err := obb.ParseRotationOrder(*order)
	if err != nil {
		log.Fatal(err)
	}
	opts := obb.Options{Epsilon: *epsilon, Order: ro}

	cfg := report.DefaultConfig()
	if *iouTh > 0 {
		cfg.Match.IoUThreshold = *iouTh
	}
	if *centerTh > 0 {
		cfg.Match.CenterDistance = *centerTh
	}
	app := NewApp(opts, cfg, *workers)

	switch {
	case *script != "":
		os.Exit(runScript(app, *script))
	case *gtPath != "" && *predPath != "":
		os.Exit(runPair(app, *gtPath, *predPath, *meshOut, *sampled))
	case *gtDir != "" && *predsDir != "" && *outDir != "":
		os.Exit(runDir(app, *gtDir, *predsDir, *outDir))
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func runPair(app *App, gtPath, predPath, meshOut string, cells int) int {
	m, err := app.EvaluatePair(gtPath, predPath)
	if err != nil {
		color.Red("error: %v", err)
		return 1
	}
	fmt.Printf("iou %.6f v2v %.6f bbd %.6f\n", m.IoU, m.V2V, m.BBD)

	if cells > 0 {
		est, err := app.SampledIoU(gtPath, predPath, cells)
		if err != nil {
			color.Red("sampled iou: %v", err)
			return 1
		}
		fmt.Printf("sampled iou %.6f (%d³ cells)\n", est, cells)
	}
	if meshOut != "" {
		if err := app.ExportMesh(gtPath, predPath, meshOut); err != nil {
			color.Red("mesh: %v", err)
			return 1
		}
	}
	return 0
}

func runScript(app *App, path string) int {
	source, err := os.ReadFile(path)
	if err != nil {
		color.Red("error: %v", err)
		return 1
	}
	results, evalErrs, err := app.EvaluateScript(string(source))
	if err != nil {
		color.Red("error: %v", err)
		return 1
	}
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			color.Red("%s: %v", path, e)
		}
		return 1
	}
	for _, r := range results {
		fmt.Printf("%-12s %-12s iou %.6f v2v %.6f bbd %.6f\n", r.GT, r.Pred, r.IoU, r.V2V, r.BBD)
	}
	return 0
}

func runDir(app *App, gtDir, predsDir, outDir string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	names, err := predictionFiles(predsDir)
	if err != nil {
		color.Red("error: %v", err)
		return 1
	}
	bar := progressbar.NewOptions(len(names),
		progressbar.OptionSetWriter(ansi.NewAnsiStderr()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription("[cyan][obbeval][reset] evaluating"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))

	results, err := app.EvaluateDir(ctx, gtDir, predsDir, outDir, func(FileResult) {
		_ = bar.Add(1)
	})
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		color.Red("error: %v", err)
		return 1
	}

	failed := 0
	var ok []report.Summary
	for _, r := range results {
		if r.Err != nil {
			failed++
			color.Yellow("%s: %v", r.Name, r.Err)
			continue
		}
		ok = append(ok, r.Summary)
	}

	total := report.Combine("total", ok, app.cfg.Classes)
	colorstring.Printf("[bold]%d[reset] files, [green]%d[reset] matched of %d GT, mIoU [green]%.4f[reset], mV2V [cyan]%.4f[reset], mBBD [cyan]%.4f[reset]\n",
		len(ok), total.Matched, total.GT, total.MeanIoU, total.MeanV2V, total.MeanBBD)
	if failed > 0 {
		colorstring.Printf("[red]%d[reset] files failed\n", failed)
		return 1
	}
	return 0
}
