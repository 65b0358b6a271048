package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/akamensky/argparse"
	log "github.com/sirupsen/logrus"

	"github.com/sensorable/dronedet"
)

func newRenderCommand(parser *argparse.Parser) command {
	cmd := parser.NewCommand("render", "Draw YOLO labels onto their images for inspection")

	root := cmd.String("r", "root", &argparse.Options{Required: true,
		Help: "The dataset directory with images/ and labels/"})
	out := cmd.String("o", "out", &argparse.Options{Required: true,
		Help: "The output directory for the previews"})
	data := cmd.String("d", "data", &argparse.Options{
		Help: "Dataset descriptor to read class names from (defaults to the VisDrone classes)"})
	maxSide := cmd.Int("", "max-side", &argparse.Options{Default: 1280,
		Help: "The max. length of the longer image side (zero keeps the size)"})
	filter := cmd.String("", "downsample-filter", &argparse.Options{Default: "box",
		Help: "The filter to use when downsampling {nearest, box, linear, gaussian, lanczos}"})
	quality := cmd.Int("", "jpeg-quality", &argparse.Options{Default: 90,
		Help: "The JPEG quality [1, 100]"})
	limit := cmd.Int("n", "limit", &argparse.Options{
		Help: "Render at most this many images (zero renders all)"})

	run := func(ctx context.Context, env *environment) error {
		resample, err := dronedet.ParseResampleFilter(*filter)
		if err != nil {
			return err
		}
		if *quality < 1 || *quality > 100 {
			return fmt.Errorf("invalid JPEG quality %d", *quality)
		}

		classNames := dronedet.VisDroneClasses
		if *data != "" {
			d, err := dronedet.LoadDataset(*data)
			if err != nil {
				return err
			}
			classNames = d.ClassNames()
		}

		files, err := dronedet.FromYOLODir(filepath.Clean(*root), false)
		if err != nil {
			return err
		}
		if *limit > 0 && len(files) > *limit {
			files = files[:*limit]
		}

		return dronedet.RenderLabels(files, dronedet.RenderOptions{
			OutDir:      filepath.Clean(*out),
			MaxSide:     *maxSide,
			Filter:      resample,
			JPEGQuality: *quality,
			ClassNames:  classNames,
		})
	}

	return command{happened: cmd.Happened, run: run}
}

func newSplitCommand(parser *argparse.Parser) command {
	cmd := parser.NewCommand("split", "Randomly split a converted dataset into image lists")

	root := cmd.String("r", "root", &argparse.Options{Required: true,
		Help: "The dataset directory with images/ and labels/"})
	splits := cmd.String("", "split", &argparse.Options{Default: "80,20",
		Help: "The comma-separated split percentages; must add up to 100"})
	outs := cmd.String("o", "out", &argparse.Options{Default: "train.txt,val.txt",
		Help: "The comma-separated image list paths; one per value in --split"})
	requireLabel := cmd.Flag("", "require-label", &argparse.Options{
		Help: "Exclude images without labels"})
	seed := cmd.Int("", "seed", &argparse.Options{
		Help: "Random seed (zero uses the current time)"})

	run := func(ctx context.Context, env *environment) error {
		cumulative, err := dronedet.ParseSplits(splitList(*splits))
		if err != nil {
			return err
		}
		outPaths := splitList(*outs)
		if len(outPaths) != len(cumulative) {
			return fmt.Errorf("the number of values in --split and paths in --out must match")
		}

		files, err := dronedet.FromYOLODir(filepath.Clean(*root), !*requireLabel)
		if err != nil {
			return err
		}
		if *requireLabel {
			files.RequireLabels()
		}

		datasets, err := files.Split(cumulative, int64(*seed))
		if err != nil {
			return err
		}
		for i, d := range datasets {
			if err := dronedet.WriteImageList(outPaths[i], d); err != nil {
				return err
			}
			log.Printf("Wrote %d images to %s", len(d), outPaths[i])
		}
		return nil
	}

	return command{happened: cmd.Happened, run: run}
}
