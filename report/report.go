// Package report renders validation metrics in a fixed human-readable layout.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sensorable/dronedet/yolo"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Evaluation is a validation run together with the parameters it was run with.
type Evaluation struct {
	Model     string
	Dataset   string
	Split     string
	ImageSize int
	Conf      float64
	IoU       float64
	Metrics   *yolo.Metrics
}

// ClassAP is the AP at IoU 0.5 of a single class.
type ClassAP struct {
	Class int
	Name  string
	AP50  float64
}

// PerClass pairs the per-class AP values with the class names, ordered by class index. Classes
// without an AP value are omitted.
func (e Evaluation) PerClass() []ClassAP {
	m := e.Metrics
	if m == nil {
		return nil
	}
	out := make([]ClassAP, 0, len(m.AP50))
	for i, ap := range m.AP50 {
		class := i
		if i < len(m.Classes) {
			class = m.Classes[i]
		}
		name, ok := m.Names[class]
		if !ok {
			name = fmt.Sprint(class)
		}
		out = append(out, ClassAP{Class: class, Name: name, AP50: ap})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Class < out[j].Class })
	return out
}

// FileName is the name of the results file for e.
func (e Evaluation) FileName() string {
	return fmt.Sprintf("evaluation_results_%s.txt", e.Split)
}

// WriteConsole writes the detailed layout printed after a run. Per-class values are only
// included if verbose is set.
func (e Evaluation) WriteConsole(w io.Writer, verbose bool) error {
	p := newPrinter(w)

	p.line("")
	p.line(strings.Repeat("=", 90))
	p.line("YOLO Model Evaluation Results on VisDrone Dataset")
	p.line(strings.Repeat("=", 90))
	p.printf("Dataset: %s\n", e.Dataset)
	p.printf("Split: %s\n", e.Split)
	p.printf("Model: %s\n", e.Model)
	p.printf("Image Size: %d\n", e.ImageSize)
	p.printf("Confidence Threshold: %v\n", e.Conf)
	p.printf("IoU Threshold: %v\n", e.IoU)
	p.line(strings.Repeat("-", 90))

	if m := e.Metrics; m != nil {
		p.line("Overall Detection Metrics:")
		p.printf("  mAP@0.5:       %.4f (mean Average Precision at IoU=0.5)\n", m.MAP50)
		p.printf("  mAP@0.5:0.95:  %.4f (mean Average Precision at IoU=0.5:0.95)\n", m.MAP)
		p.printf("  Precision:     %.4f (overall precision)\n", m.Precision)
		p.printf("  Recall:        %.4f (overall recall)\n", m.Recall)
		p.printf("  F1-Score:      %.4f (harmonic mean of precision and recall)\n", m.F1)

		if verbose && len(m.Names) > 1 {
			p.line("\nPer-Class mAP@0.5 Metrics:")
			e.writePerClass(p)
		}

		p.line("\nAdditional Metrics:")
		p.printf("  Number of Classes: %d\n", len(m.Names))
		p.printf("  mP:            %.4f (mean precision across classes)\n", m.Precision)
		p.printf("  mR:            %.4f (mean recall across classes)\n", m.Recall)

		e.writeSpeedAndModel(p)
	}

	p.line(strings.Repeat("=", 90) + "\n")
	return p.flush()
}

// WriteText writes the layout of the saved results file.
func (e Evaluation) WriteText(w io.Writer) error {
	p := newPrinter(w)

	p.line("YOLO Model Evaluation Results")
	p.line(strings.Repeat("=", 50))
	p.printf("Model: %s\n", e.Model)
	p.printf("Dataset: %s\n", e.Dataset)
	p.printf("Split: %s\n", e.Split)
	p.printf("Image Size: %d\n", e.ImageSize)
	p.printf("Confidence Threshold: %v\n", e.Conf)
	p.printf("IoU Threshold: %v\n", e.IoU)
	p.line(strings.Repeat("=", 50))

	if m := e.Metrics; m != nil {
		p.line("Overall Detection Metrics:")
		p.printf("  mAP@0.5:       %.4f\n", m.MAP50)
		p.printf("  mAP@0.5:0.95:  %.4f\n", m.MAP)
		p.printf("  Precision:     %.4f\n", m.Precision)
		p.printf("  Recall:        %.4f\n", m.Recall)
		p.printf("  F1-Score:      %.4f\n", m.F1)

		if len(m.Names) > 1 {
			p.line("\nPer-Class mAP@0.5 Metrics:")
			e.writePerClass(p)
		}

		p.line("\nAdditional Metrics:")
		p.printf("  Number of Classes: %d\n", len(m.Names))
		p.printf("  mP:            %.4f\n", m.Precision)
		p.printf("  mR:            %.4f\n", m.Recall)

		e.writeSpeedAndModel(p)
	}

	return p.flush()
}

// Save writes the results file into dir, creating it if needed, and returns its path.
func (e Evaluation) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("cannot create directory %q: %w", dir, err)
	}
	path := filepath.Join(dir, e.FileName())
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := e.WriteText(f); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

func (e Evaluation) writePerClass(p *printer) {
	for _, c := range e.PerClass() {
		p.printf("  %-15s: %.4f\n", c.Name, c.AP50)
	}
}

func (e Evaluation) writeSpeedAndModel(p *printer) {
	m := e.Metrics
	if s := m.Speed; s != nil {
		p.line("\nInference Speed Metrics:")
		p.printf("  Preprocess:    %.2fms per image\n", s.Preprocess)
		p.printf("  Inference:     %.2fms per image\n", s.Inference)
		p.printf("  Postprocess:   %.2fms per image\n", s.Postprocess)
		p.printf("  Total:         %.2fms per image\n", s.Total())
		if fps := s.FPS(); fps > 0 {
			p.printf("  FPS:           %.2f frames per second\n", fps)
		} else {
			p.line("  FPS:           N/A")
		}
	}

	p.line("\nModel Information:")
	p.printf("  Parameters:    %s (%.2f M)\n", p.number(m.Params), float64(m.Params)/1e6)
	if m.GFLOPs > 0 {
		p.printf("  GFLOPs:        %.2f GFLOPs\n", m.GFLOPs)
	} else {
		p.line("  GFLOPs:        N/A")
	}
}

// printer buffers output and keeps the first write error.
type printer struct {
	w       *bufio.Writer
	numbers *message.Printer
	err     error
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: bufio.NewWriter(w), numbers: message.NewPrinter(language.English)}
}

func (p *printer) printf(format string, a ...interface{}) {
	if p.err == nil {
		_, p.err = fmt.Fprintf(p.w, format, a...)
	}
}

func (p *printer) line(s string) {
	p.printf("%s\n", s)
}

// number formats n with thousands separators.
func (p *printer) number(n int64) string {
	return p.numbers.Sprintf("%d", n)
}

func (p *printer) flush() error {
	if p.err != nil {
		return p.err
	}
	return p.w.Flush()
}
