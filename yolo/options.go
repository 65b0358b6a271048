package yolo

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// TrainOptions are the parameters of a training run.
type TrainOptions struct {
	Model       string `validate:"required"` // Model config (.yaml) or weights (.pt).
	Task        string `validate:"omitempty,oneof=detect segment classify pose obb"`
	Data        string `validate:"required"`
	ImageSize   int    `validate:"gt=0"`
	Epochs      int    `validate:"gt=0"`
	Batch       int    `validate:"ne=0"` // -1 selects the batch size automatically.
	Workers     int    `validate:"gte=0"`
	Device      string
	Optimizer   string `validate:"omitempty,oneof=SGD Adam AdamW NAdam RAdam RMSProp auto"`
	CloseMosaic int    `validate:"gte=0"`
	Resume      bool
	AMP         bool
	Project     string
	Name        string
	SingleClass bool
	Cache       bool
	Extra       map[string]interface{} // Passed through unchanged.
}

// DefaultTrainOptions returns the training defaults for model on data.
func DefaultTrainOptions(model, data string) TrainOptions {
	return TrainOptions{
		Model:       model,
		Task:        "detect",
		Data:        data,
		ImageSize:   640,
		Epochs:      100,
		Batch:       8,
		Device:      "0",
		Optimizer:   "SGD",
		CloseMosaic: 10,
		AMP:         true,
		Project:     "runs/train",
		Name:        "exp",
	}
}

func (o TrainOptions) args() map[string]interface{} {
	m := map[string]interface{}{
		"data":         o.Data,
		"imgsz":        o.ImageSize,
		"epochs":       o.Epochs,
		"batch":        o.Batch,
		"workers":      o.Workers,
		"device":       o.Device,
		"close_mosaic": o.CloseMosaic,
		"resume":       o.Resume,
		"amp":          o.AMP,
		"single_cls":   o.SingleClass,
		"cache":        o.Cache,
	}
	setIfNotEmpty(m, "optimizer", o.Optimizer)
	setIfNotEmpty(m, "project", o.Project)
	setIfNotEmpty(m, "name", o.Name)
	return merge(m, o.Extra)
}

// ValOptions are the parameters of a validation run.
type ValOptions struct {
	Weights   string  `validate:"required"`
	Data      string  `validate:"required"`
	ImageSize int     `validate:"gt=0"`
	Batch     int     `validate:"gt=0"`
	Split     string  `validate:"oneof=train val test"`
	Conf      float64 `validate:"gte=0,lte=1"`
	IoU       float64 `validate:"gte=0,lte=1"`
	Device    string
	Extra     map[string]interface{}
}

// DefaultValOptions returns the evaluation defaults for weights on data.
func DefaultValOptions(weights, data string) ValOptions {
	return ValOptions{
		Weights:   weights,
		Data:      data,
		ImageSize: 640,
		Batch:     16,
		Split:     "test",
		Conf:      0.001,
		IoU:       0.6,
	}
}

func (o ValOptions) args() map[string]interface{} {
	m := map[string]interface{}{
		"data":  o.Data,
		"imgsz": o.ImageSize,
		"batch": o.Batch,
		"split": o.Split,
		"conf":  o.Conf,
		"iou":   o.IoU,
	}
	setIfNotEmpty(m, "device", o.Device)
	return merge(m, o.Extra)
}

// PredictOptions are the parameters of an inference run.
type PredictOptions struct {
	Weights   string  `validate:"required"`
	Source    string  `validate:"required"` // Image file, directory, glob or URL.
	ImageSize int     `validate:"gt=0"`
	Conf      float64 `validate:"gte=0,lte=1"`
	IoU       float64 `validate:"gte=0,lte=1"`
	Device    string
	Save      bool
	Show      bool
	Project   string
	Name      string
	Extra     map[string]interface{}
}

// DefaultPredictOptions returns the inference defaults for weights on source.
func DefaultPredictOptions(weights, source string) PredictOptions {
	return PredictOptions{
		Weights:   weights,
		Source:    source,
		ImageSize: 640,
		Conf:      0.25,
		IoU:       0.7,
		Save:      true,
	}
}

func (o PredictOptions) args() map[string]interface{} {
	m := map[string]interface{}{
		"source": o.Source,
		"imgsz":  o.ImageSize,
		"conf":   o.Conf,
		"iou":    o.IoU,
		"save":   o.Save,
		"show":   o.Show,
	}
	setIfNotEmpty(m, "device", o.Device)
	setIfNotEmpty(m, "project", o.Project)
	setIfNotEmpty(m, "name", o.Name)
	return merge(m, o.Extra)
}

// InfoOptions select the model to describe.
type InfoOptions struct {
	Model     string `validate:"required"`
	Task      string `validate:"omitempty,oneof=detect segment classify pose obb"`
	ImageSize int    `validate:"gt=0"` // Used for the GFLOPs estimate.
}

func (o InfoOptions) args() map[string]interface{} {
	return map[string]interface{}{"imgsz": o.ImageSize}
}

func setIfNotEmpty(m map[string]interface{}, key, value string) {
	if value != "" {
		m[key] = value
	}
}

func merge(m, extra map[string]interface{}) map[string]interface{} {
	for k, v := range extra {
		m[k] = v
	}
	return m
}

func validateOptions(o interface{}) error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}
