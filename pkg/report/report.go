// Package report aggregates matched box pairs into per-file summaries and
// renders them as plain text.
package report

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"

	"github.com/chazu/obbeval/pkg/detection"
	"github.com/chazu/obbeval/pkg/obb"
)

// Config controls how a summary is built.
type Config struct {
	Match   detection.MatchConfig
	Classes []string // table row order; empty lists every label seen, sorted
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{Match: detection.DefaultMatchConfig()}
}

// Pair is the score of one matched pair.
type Pair struct {
	Label   string
	Metrics obb.Metrics
}

// ClassSummary holds the figures for one label.
type ClassSummary struct {
	Label   string
	GT      int
	Pred    int
	Matched int
	MeanIoU float64
	MeanV2V float64
	MeanBBD float64
}

// Summary holds the figures for one prediction file. Means are taken over
// matched pairs and are NaN when nothing matched.
type Summary struct {
	Name      string
	GT        int
	Pred      int
	Matched   int
	MeanIoU   float64
	StdIoU    float64
	MeanV2V   float64
	MeanBBD   float64
	Classes   []ClassSummary
	Pairs     []Pair
	Elapsed   time.Duration
	gtLabel   map[string]int
	predLabel map[string]int
}

// Build matches the two instance sets and summarizes the result.
func Build(name string, gt, pred []detection.Instance, cfg Config) (Summary, error) {
	start := time.Now()
	frame, err := detection.MatchFrame(gt, pred, cfg.Match)
	if err != nil {
		return Summary{}, fmt.Errorf("report: %s: %w", name, err)
	}
	s := Summarize(name, gt, pred, frame, cfg.Classes)
	s.Elapsed = time.Since(start)
	return s, nil
}

// Summarize aggregates an already matched frame.
func Summarize(name string, gt, pred []detection.Instance, frame detection.FrameResult, classes []string) Summary {
	pairs := lo.Map(frame.Matches, func(m detection.Match, _ int) Pair {
		return Pair{Label: gt[m.GT].Label, Metrics: m.Metrics}
	})
	s := Summary{
		Name:      name,
		GT:        len(gt),
		Pred:      len(pred),
		Pairs:     pairs,
		gtLabel:   lo.CountValuesBy(gt, label),
		predLabel: lo.CountValuesBy(pred, label),
	}
	s.finish(classes)
	return s
}

// Combine merges several summaries into one, as if their frames had been
// evaluated together.
func Combine(name string, parts []Summary, classes []string) Summary {
	s := Summary{
		Name:      name,
		gtLabel:   map[string]int{},
		predLabel: map[string]int{},
	}
	for _, p := range parts {
		s.GT += p.GT
		s.Pred += p.Pred
		s.Elapsed += p.Elapsed
		s.Pairs = append(s.Pairs, p.Pairs...)
		for k, v := range p.gtLabel {
			s.gtLabel[k] += v
		}
		for k, v := range p.predLabel {
			s.predLabel[k] += v
		}
	}
	s.finish(classes)
	return s
}

func label(in detection.Instance) string { return in.Label }

// finish fills the derived figures from Pairs and the label counts.
func (s *Summary) finish(classes []string) {
	s.Matched = len(s.Pairs)
	s.MeanIoU, s.StdIoU = meanStd(s.Pairs, func(m obb.Metrics) float64 { return m.IoU })
	s.MeanV2V, _ = meanStd(s.Pairs, func(m obb.Metrics) float64 { return m.V2V })
	s.MeanBBD, _ = meanStd(s.Pairs, func(m obb.Metrics) float64 { return m.BBD })

	if len(classes) == 0 {
		classes = lo.Uniq(append(lo.Keys(s.gtLabel), lo.Keys(s.predLabel)...))
		sort.Strings(classes)
	}
	byLabel := lo.GroupBy(s.Pairs, func(p Pair) string { return p.Label })

	s.Classes = make([]ClassSummary, 0, len(classes))
	for _, c := range classes {
		pairs := byLabel[c]
		cs := ClassSummary{
			Label:   c,
			GT:      s.gtLabel[c],
			Pred:    s.predLabel[c],
			Matched: len(pairs),
		}
		cs.MeanIoU, _ = meanStd(pairs, func(m obb.Metrics) float64 { return m.IoU })
		cs.MeanV2V, _ = meanStd(pairs, func(m obb.Metrics) float64 { return m.V2V })
		cs.MeanBBD, _ = meanStd(pairs, func(m obb.Metrics) float64 { return m.BBD })
		s.Classes = append(s.Classes, cs)
	}
}

// meanStd returns the mean and standard deviation of one metric, NaN for
// an empty set. A single value has deviation 0.
func meanStd(pairs []Pair, metric func(obb.Metrics) float64) (mean, std float64) {
	if len(pairs) == 0 {
		return math.NaN(), math.NaN()
	}
	xs := lo.Map(pairs, func(p Pair, _ int) float64 { return metric(p.Metrics) })
	if len(xs) == 1 {
		return xs[0], 0
	}
	return stat.MeanStdDev(xs, nil)
}

// Precision is Matched / Pred, NaN without predictions.
func (s Summary) Precision() float64 { return ratio(s.Matched, s.Pred) }

// Recall is Matched / GT, NaN without ground truth.
func (s Summary) Recall() float64 { return ratio(s.Matched, s.GT) }

func ratio(n, d int) float64 {
	if d == 0 {
		return math.NaN()
	}
	return float64(n) / float64(d)
}

// String renders the summary as the text written to report files.
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\n", s.Name)
	fmt.Fprintf(&b, "GT boxes: %d\n", s.GT)
	fmt.Fprintf(&b, "Predictions: %d\n", s.Pred)
	fmt.Fprintf(&b, "Matched: %d\n", s.Matched)
	fmt.Fprintf(&b, "Precision: %.4f\n", s.Precision())
	fmt.Fprintf(&b, "Recall: %.4f\n", s.Recall())
	fmt.Fprintf(&b, "mIoU: %.4f (std %.4f)\n", s.MeanIoU, s.StdIoU)
	fmt.Fprintf(&b, "mV2V: %.4f\n", s.MeanV2V)
	fmt.Fprintf(&b, "mBBD: %.4f\n", s.MeanBBD)
	fmt.Fprintf(&b, "Eval time: %.3fs\n\n", s.Elapsed.Seconds())

	b.WriteString("Per-class results:\n")
	fmt.Fprintf(&b, "%-20s\t%-6s\t%-6s\t%-6s\t%-6s\t%-6s\t%-6s\n", "Object Class", "GT", "Pred", "TP", "IoU", "V2V", "BBD")
	for _, c := range s.Classes {
		fmt.Fprintf(&b, "%-20s\t%-6d\t%-6d\t%-6d\t%-6.3f\t%-6.3f\t%-6.3f\n",
			c.Label, c.GT, c.Pred, c.Matched, c.MeanIoU, c.MeanV2V, c.MeanBBD)
	}
	return b.String()
}

// WriteFile writes the rendered summary to path.
func (s Summary) WriteFile(path string) error {
	if err := os.WriteFile(path, []byte(s.String()), 0o644); err != nil {
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	return nil
}
