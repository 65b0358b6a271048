// Package yolo runs training, validation, inference and model inspection in the external YOLO
// detection framework.
//
// The framework is a Python library. Bridge starts the interpreter with an embedded driver
// script, passes the operation as a JSON request on stdin and decodes the JSON result file the
// driver writes. The framework's console output is forwarded to the logger.
package yolo

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

//go:embed bridge.py
var bridgeScript string

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Framework is the set of operations provided by the detection framework.
type Framework interface {
	Train(ctx context.Context, opts TrainOptions) (*TrainResult, error)
	Val(ctx context.Context, opts ValOptions) (*Metrics, error)
	Predict(ctx context.Context, opts PredictOptions) (*PredictResult, error)
	Info(ctx context.Context, opts InfoOptions) (*ModelInfo, error)
}

// Runner starts the program name with args, feeding stdin and forwarding its output, and waits for
// it to exit.
type Runner func(ctx context.Context, name string, args []string, stdin io.Reader,
	stdout, stderr io.Writer) error

// ExecRunner runs the program as a child process that is killed when ctx is done.
func ExecRunner(ctx context.Context, name string, args []string, stdin io.Reader,
	stdout, stderr io.Writer) error {

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// request is the JSON document read by the driver script.
type request struct {
	Op         string                 `json:"op"`
	Model      string                 `json:"model"`
	Task       string                 `json:"task,omitempty"`
	Args       map[string]interface{} `json:"args"`
	ResultPath string                 `json:"result_path"`
}

// Bridge implements Framework on top of a Python interpreter with the framework installed.
type Bridge struct {
	Python  string // The interpreter executable.
	TempDir string // Directory for result files; empty selects the system default.
	log     *logrus.Logger
	run     Runner
}

// NewBridge returns a Bridge using the interpreter python. Framework output is logged to logger.
func NewBridge(python string, logger *logrus.Logger, run Runner) *Bridge {
	if python == "" {
		python = "python3"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if run == nil {
		run = ExecRunner
	}
	return &Bridge{Python: python, log: logger, run: run}
}

// Train runs a training session.
func (b *Bridge) Train(ctx context.Context, opts TrainOptions) (*TrainResult, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}
	var res TrainResult
	if err := b.call(ctx, "train", opts.Model, opts.Task, opts.args(), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Val evaluates weights on a dataset split.
func (b *Bridge) Val(ctx context.Context, opts ValOptions) (*Metrics, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}
	var m Metrics
	if err := b.call(ctx, "val", opts.Weights, "", opts.args(), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Predict runs inference on a source.
func (b *Bridge) Predict(ctx context.Context, opts PredictOptions) (*PredictResult, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}
	var res PredictResult
	if err := b.call(ctx, "predict", opts.Weights, "", opts.args(), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Info constructs a model and describes it.
func (b *Bridge) Info(ctx context.Context, opts InfoOptions) (*ModelInfo, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}
	var info ModelInfo
	if err := b.call(ctx, "info", opts.Model, opts.Task, opts.args(), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// call runs op in the driver script and decodes its result into out.
func (b *Bridge) call(ctx context.Context, op, model, task string, args map[string]interface{},
	out interface{}) error {

	resultFile, err := os.CreateTemp(b.TempDir, "dronedet-"+op+"-*.json")
	if err != nil {
		return fmt.Errorf("cannot create result file: %w", err)
	}
	resultPath := resultFile.Name()
	_ = resultFile.Close()
	defer os.Remove(resultPath)

	enc, err := json.Marshal(request{
		Op:         op,
		Model:      model,
		Task:       task,
		Args:       args,
		ResultPath: resultPath,
	})
	if err != nil {
		return err
	}

	stdout := b.log.WriterLevel(logrus.InfoLevel)
	defer stdout.Close()
	stderr := b.log.WriterLevel(logrus.InfoLevel)
	defer stderr.Close()

	l := b.log.WithFields(logrus.Fields{"op": op, "model": model})
	l.Info("Starting framework operation")
	start := time.Now()

	if err := b.run(ctx, b.Python, []string{"-c", bridgeScript}, bytes.NewReader(enc), stdout,
		stderr); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s canceled: %w", op, ctx.Err())
		}
		return fmt.Errorf("%s failed: %w", op, err)
	}
	l.Infof("Framework operation finished in %v", time.Since(start).Round(time.Millisecond))

	data, err := os.ReadFile(resultPath)
	if err != nil {
		return fmt.Errorf("cannot read %s result: %w", op, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%s produced no result", op)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", op, err)
	}
	return nil
}
