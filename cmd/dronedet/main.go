// Trains, validates and runs a YOLO detector on VisDrone imagery, and converts and inspects the
// VisDrone dataset.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/akamensky/argparse"
	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/sensorable/dronedet/yolo"
)

// Environment variables, optionally set in a .env file.
const (
	envPython   = "DRONEDET_PYTHON"    // The interpreter with the detection framework installed.
	envLogLevel = "DRONEDET_LOG_LEVEL" // One of the logrus level names.
	envDevice   = "DRONEDET_DEVICE"    // The default device selector.
)

func main() {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	parser := argparse.NewParser("dronedet", "VisDrone dataset preparation and YOLO detector tooling")
	logLevel := parser.String("", "log-level", &argparse.Options{
		Help: "Log level {debug, info, warn, error}", Default: envOr(envLogLevel, "info")})

	commands := []command{
		newConvertCommand(parser),
		newTrainCommand(parser),
		newValCommand(parser),
		newPredictCommand(parser),
		newInfoCommand(parser),
		newRenderCommand(parser),
		newSplitCommand(parser),
	}

	if err := parser.Parse(os.Args); err != nil {
		fmt.Fprint(os.Stderr, parser.Usage(err))
		os.Exit(1)
	}

	setupLogging(*logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := &environment{
		framework: yolo.NewBridge(os.Getenv(envPython), log.StandardLogger(), nil),
		device:    os.Getenv(envDevice),
	}

	for _, c := range commands {
		if !c.happened() {
			continue
		}
		if err := c.run(ctx, env); err != nil {
			stop()
			log.Fatal(err)
		}
		return
	}
}

// environment carries the dependencies shared by all commands.
type environment struct {
	framework yolo.Framework
	device    string // Default device if none is given on the command line.
}

// command is a subcommand of the binary.
type command struct {
	happened func() bool
	run      func(ctx context.Context, env *environment) error
}

func setupLogging(level string) {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		TimestampFormat: "2006-01-02 15:04:05",
		FieldsOrder:     []string{"op", "model"},
	})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("Invalid log level %q, using info", level)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
