package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/akamensky/argparse"
	log "github.com/sirupsen/logrus"

	"github.com/sensorable/dronedet"
)

func newConvertCommand(parser *argparse.Parser) command {
	cmd := parser.NewCommand("convert", "Convert VisDrone annotations to YOLO label files")

	root := cmd.String("r", "root", &argparse.Options{Required: true,
		Help: "The dataset root: either a split directory with images/ and annotations/, or a" +
			" directory containing the split directories"})
	splits := cmd.String("", "splits", &argparse.Options{
		Default: strings.Join(dronedet.VisDroneSplits, ","),
		Help:    "Comma-separated split directories below the root, in train,val,test order"})
	ignoreFlag := cmd.Int("", "ignore-flag", &argparse.Options{
		Default: dronedet.DefaultVisDroneIgnoreFlag,
		Help:    "The score value that marks an ignored region"})
	classOffset := cmd.Int("", "class-offset", &argparse.Options{
		Default: dronedet.DefaultVisDroneClassOffset,
		Help:    "Subtracted from the annotation category to obtain the class"})
	clip := cmd.Flag("", "clip", &argparse.Options{
		Help: "Clip bounding boxes to the image bounds"})
	mapClasses := cmd.String("", "map-classes", &argparse.Options{
		Help: "Comma-separated list of old=new class replacements; a negative new class drops the box"})
	filterClasses := cmd.String("", "filter-classes", &argparse.Options{
		Help: "Comma-separated list of classes to keep (after map-classes; empty keeps all)"})
	minWidth := cmd.Float("", "min-bbox-width", &argparse.Options{
		Help: "The min. required width in pixels for object bounding boxes"})
	minHeight := cmd.Float("", "min-bbox-height", &argparse.Options{
		Help: "The min. required height in pixels for object bounding boxes"})
	minRatio := cmd.Float("", "min-bbox-aspect-ratio", &argparse.Options{
		Help: "The min. required aspect ratio (width/height); zero disables the filter"})
	maxRatio := cmd.Float("", "max-bbox-aspect-ratio", &argparse.Options{
		Help: "The max. required aspect ratio (width/height); zero disables the filter"})
	maxTruncation := cmd.Int("", "max-truncation", &argparse.Options{Default: -1,
		Help: "Drop boxes with a higher truncation level {0, 1}; negative disables the filter"})
	maxOcclusion := cmd.Int("", "max-occlusion", &argparse.Options{Default: -1,
		Help: "Drop boxes with a higher occlusion level {0, 1, 2}; negative disables the filter"})
	workers := cmd.Int("", "workers", &argparse.Options{
		Help: "Max. number of files converted concurrently (zero uses all CPUs)"})
	datasetYAML := cmd.String("", "dataset-yaml", &argparse.Options{
		Help: "Write a dataset descriptor for the converted splits to this path"})

	run := func(ctx context.Context, env *environment) error {
		cfg := dronedet.VisDroneConfig{
			IgnoreFlag:  *ignoreFlag,
			ClassOffset: *classOffset,
			Clip:        *clip,
			Workers:     *workers,
			Filter: dronedet.FilterOptions{
				MinBboxWidth:   *minWidth,
				MinBboxHeight:  *minHeight,
				MinAspectRatio: *minRatio,
				MaxAspectRatio: *maxRatio,
			},
		}

		var err error
		if cfg.Mapping, err = dronedet.ParseClassMapping(splitList(*mapClasses)); err != nil {
			return err
		}
		if cfg.Filter.Classes, err = parseInts(splitList(*filterClasses)); err != nil {
			return fmt.Errorf("invalid --filter-classes: %w", err)
		}
		if cfg.Filter.MinAspectRatio < 0 || cfg.Filter.MaxAspectRatio < 0 {
			return fmt.Errorf("aspect ratio filters must not be negative")
		}
		if *maxTruncation >= 0 {
			cfg.Filter.MaxTruncation = maxTruncation
		}
		if *maxOcclusion >= 0 {
			cfg.Filter.MaxOcclusion = maxOcclusion
		}

		rootDir := filepath.Clean(*root)
		dirs, splitNames := resolveSplits(rootDir, splitList(*splits))

		var failedFiles, failedDirs int
		for _, dir := range dirs {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			report, err := dronedet.ConvertVisDroneDir(dir, cfg)
			if err != nil {
				log.Errorf("Cannot convert %s: %v", dir, err)
				failedDirs++
				continue
			}
			_, failed, _, _, _ := report.Totals()
			failedFiles += failed
		}

		if *datasetYAML != "" {
			abs, err := filepath.Abs(rootDir)
			if err != nil {
				return err
			}
			d := dronedet.NewVisDroneDataset(abs, splitNames)
			if err := dronedet.WriteDataset(*datasetYAML, d); err != nil {
				return err
			}
			log.Print("Wrote dataset descriptor to ", *datasetYAML)
		}

		if failedDirs > 0 || failedFiles > 0 {
			return fmt.Errorf("conversion incomplete: %d directories and %d files failed",
				failedDirs, failedFiles)
		}
		return nil
	}

	return command{happened: cmd.Happened, run: run}
}

// resolveSplits returns the directories to convert below rootDir and the split directories
// relative to rootDir. A root containing an annotations directory is converted as a single split.
func resolveSplits(rootDir string, splits []string) (dirs, rel []string) {
	if isDir(filepath.Join(rootDir, dronedet.AnnotationsDir)) {
		return []string{rootDir}, []string{"."}
	}
	for _, s := range splits {
		dirs = append(dirs, filepath.Join(rootDir, s))
	}
	return dirs, splits
}

// splitList splits a comma-separated list, dropping empty elements.
func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func parseInts(values []string) ([]int, error) {
	out := make([]int, 0, len(values))
	for _, v := range values {
		i, err := strconv.Atoi(v)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
