package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/akamensky/argparse"
	jsoniter "github.com/json-iterator/go"
	log "github.com/sirupsen/logrus"

	"github.com/sensorable/dronedet/report"
	"github.com/sensorable/dronedet/yolo"
)

func newTrainCommand(parser *argparse.Parser) command {
	cmd := parser.NewCommand("train", "Train a detector")
	d := yolo.DefaultTrainOptions("", "")

	model := cmd.String("m", "model", &argparse.Options{Required: true,
		Help: "The model config (.yaml) or weights (.pt) file"})
	data := cmd.String("d", "data", &argparse.Options{Required: true,
		Help: "The dataset descriptor file"})
	imgsz := cmd.Int("", "imgsz", &argparse.Options{Default: d.ImageSize, Help: "Input image size"})
	epochs := cmd.Int("", "epochs", &argparse.Options{Default: d.Epochs, Help: "Number of epochs"})
	batch := cmd.Int("", "batch", &argparse.Options{Default: d.Batch,
		Help: "Batch size (-1 for automatic)"})
	workers := cmd.Int("", "workers", &argparse.Options{Default: d.Workers,
		Help: "Data loader workers"})
	device := cmd.String("", "device", &argparse.Options{Help: "Device, e.g. 0, 0,1 or cpu"})
	optimizer := cmd.String("", "optimizer", &argparse.Options{Default: d.Optimizer,
		Help: "Optimizer {SGD, Adam, AdamW, NAdam, RAdam, RMSProp, auto}"})
	closeMosaic := cmd.Int("", "close-mosaic", &argparse.Options{Default: d.CloseMosaic,
		Help: "Disable mosaic augmentation for the final epochs"})
	resume := cmd.Flag("", "resume", &argparse.Options{Help: "Resume from the last checkpoint"})
	noAMP := cmd.Flag("", "no-amp", &argparse.Options{Help: "Disable mixed precision training"})
	project := cmd.String("", "project", &argparse.Options{Default: d.Project,
		Help: "Project directory for runs"})
	name := cmd.String("", "name", &argparse.Options{Default: d.Name, Help: "Run name"})
	singleCls := cmd.Flag("", "single-cls", &argparse.Options{Help: "Train as single-class"})
	cache := cmd.Flag("", "cache", &argparse.Options{Help: "Cache images in memory"})

	run := func(ctx context.Context, env *environment) error {
		opts := yolo.DefaultTrainOptions(*model, *data)
		opts.ImageSize = *imgsz
		opts.Epochs = *epochs
		opts.Batch = *batch
		opts.Workers = *workers
		opts.Device = firstNonEmpty(*device, env.device, d.Device)
		opts.Optimizer = *optimizer
		opts.CloseMosaic = *closeMosaic
		opts.Resume = *resume
		opts.AMP = !*noAMP
		opts.Project = *project
		opts.Name = *name
		opts.SingleClass = *singleCls
		opts.Cache = *cache

		res, err := env.framework.Train(ctx, opts)
		if err != nil {
			return err
		}

		fmt.Printf("Training results saved to %s\n", res.SaveDir)
		if res.Best != "" {
			fmt.Printf("Best weights: %s\n", res.Best)
		}
		keys := make([]string, 0, len(res.Metrics))
		for k := range res.Metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %-25s %.4f\n", k+":", res.Metrics[k])
		}
		return nil
	}

	return command{happened: cmd.Happened, run: run}
}

func newValCommand(parser *argparse.Parser) command {
	cmd := parser.NewCommand("val", "Evaluate a detector on a dataset split")
	d := yolo.DefaultValOptions("", "")

	weights := cmd.String("w", "weights", &argparse.Options{Required: true,
		Help: "Path to the model weights file"})
	data := cmd.String("d", "data", &argparse.Options{
		Default: "ultralytics/cfg/datasets/VisDrone.yaml", Help: "Path to the dataset YAML file"})
	imgsz := cmd.Int("", "imgsz", &argparse.Options{Default: d.ImageSize,
		Help: "Input image size for the model"})
	batch := cmd.Int("", "batch", &argparse.Options{Default: d.Batch,
		Help: "Batch size for inference"})
	split := cmd.String("", "split", &argparse.Options{Default: d.Split,
		Help: "Dataset split to use for evaluation {train, val, test}"})
	conf := cmd.Float("", "conf", &argparse.Options{Default: d.Conf,
		Help: "Object confidence threshold for detection"})
	iou := cmd.Float("", "iou", &argparse.Options{Default: d.IoU, Help: "IoU threshold for NMS"})
	device := cmd.String("", "device", &argparse.Options{
		Help: "Device to run evaluation on (cpu, 0, ...)"})
	verbose := cmd.Flag("v", "verbose", &argparse.Options{Help: "Display per-class metrics"})
	saveDir := cmd.String("", "save-dir", &argparse.Options{Default: "evaluation_results",
		Help: "Directory to save evaluation results"})

	run := func(ctx context.Context, env *environment) error {
		opts := yolo.DefaultValOptions(*weights, *data)
		opts.ImageSize = *imgsz
		opts.Batch = *batch
		opts.Split = *split
		opts.Conf = *conf
		opts.IoU = *iou
		opts.Device = firstNonEmpty(*device, env.device)

		metrics, err := env.framework.Val(ctx, opts)
		if err != nil {
			return err
		}

		e := report.Evaluation{
			Model:     opts.Weights,
			Dataset:   opts.Data,
			Split:     opts.Split,
			ImageSize: opts.ImageSize,
			Conf:      opts.Conf,
			IoU:       opts.IoU,
			Metrics:   metrics,
		}
		if err := e.WriteConsole(os.Stdout, *verbose); err != nil {
			return err
		}
		path, err := e.Save(*saveDir)
		if err != nil {
			return err
		}
		fmt.Printf("Evaluation results saved in '%s' directory:\n", *saveDir)
		fmt.Printf("  - Text format: %s\n", path)
		return nil
	}

	return command{happened: cmd.Happened, run: run}
}

func newPredictCommand(parser *argparse.Parser) command {
	cmd := parser.NewCommand("predict", "Run inference on images")
	d := yolo.DefaultPredictOptions("", "")

	weights := cmd.String("w", "weights", &argparse.Options{Required: true,
		Help: "Path to the model weights file"})
	source := cmd.String("s", "source", &argparse.Options{Required: true,
		Help: "Image file, directory or glob"})
	imgsz := cmd.Int("", "imgsz", &argparse.Options{Default: d.ImageSize, Help: "Input image size"})
	conf := cmd.Float("", "conf", &argparse.Options{Default: d.Conf,
		Help: "Object confidence threshold"})
	iou := cmd.Float("", "iou", &argparse.Options{Default: d.IoU, Help: "IoU threshold for NMS"})
	device := cmd.String("", "device", &argparse.Options{Help: "Device, e.g. 0 or cpu"})
	noSave := cmd.Flag("", "no-save", &argparse.Options{Help: "Do not save annotated images"})
	show := cmd.Flag("", "show", &argparse.Options{Help: "Display the results in a window"})
	project := cmd.String("", "project", &argparse.Options{Help: "Project directory for runs"})
	name := cmd.String("", "name", &argparse.Options{Help: "Run name"})
	jsonOut := cmd.String("", "json", &argparse.Options{
		Help: "Write all detections as JSON to this path"})

	run := func(ctx context.Context, env *environment) error {
		opts := yolo.DefaultPredictOptions(*weights, *source)
		opts.ImageSize = *imgsz
		opts.Conf = *conf
		opts.IoU = *iou
		opts.Device = firstNonEmpty(*device, env.device)
		opts.Save = !*noSave
		opts.Show = *show
		opts.Project = *project
		opts.Name = *name

		res, err := env.framework.Predict(ctx, opts)
		if err != nil {
			return err
		}

		var total int
		for _, p := range res.Predictions {
			fmt.Printf("%s (%dx%d): %s\n", p.Path, p.Width, p.Height, summariseDetections(p.Detections))
			total += len(p.Detections)
		}
		fmt.Printf("%d detections in %d images\n", total, len(res.Predictions))
		if res.SaveDir != "" && opts.Save {
			fmt.Printf("Results saved to %s\n", res.SaveDir)
		}

		if *jsonOut != "" {
			enc, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(*jsonOut, enc, 0644); err != nil {
				return fmt.Errorf("cannot write file %q: %w", *jsonOut, err)
			}
			log.Print("Wrote detections to ", *jsonOut)
		}
		return nil
	}

	return command{happened: cmd.Happened, run: run}
}

func newInfoCommand(parser *argparse.Parser) command {
	cmd := parser.NewCommand("info", "Construct a model and print its structure")

	model := cmd.String("m", "model", &argparse.Options{Required: true,
		Help: "The model config (.yaml) or weights (.pt) file"})
	task := cmd.String("", "task", &argparse.Options{Default: "detect", Help: "The model task"})
	imgsz := cmd.Int("", "imgsz", &argparse.Options{Default: 640,
		Help: "Input image size for the GFLOPs estimate"})

	run := func(ctx context.Context, env *environment) error {
		info, err := env.framework.Info(ctx, yolo.InfoOptions{
			Model:     *model,
			Task:      *task,
			ImageSize: *imgsz,
		})
		if err != nil {
			return err
		}

		fmt.Println(info.Summary)
		fmt.Printf("Task:       %s\n", info.Task)
		fmt.Printf("Modules:    %d\n", info.Layers)
		fmt.Printf("Parameters: %d (%.2f M)\n", info.Params, float64(info.Params)/1e6)
		if info.GFLOPs > 0 {
			fmt.Printf("GFLOPs:     %.2f\n", info.GFLOPs)
		}
		return nil
	}

	return command{happened: cmd.Happened, run: run}
}

// summariseDetections formats the number of detections per class name, e.g. "3 car, 1 bus".
func summariseDetections(dets []yolo.Detection) string {
	if len(dets) == 0 {
		return "no detections"
	}
	counts := make(map[string]int)
	var names []string
	for _, d := range dets {
		if counts[d.Name] == 0 {
			names = append(names, d.Name)
		}
		counts[d.Name]++
	}
	s := ""
	for i, n := range names {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%d %s", counts[n], n)
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
