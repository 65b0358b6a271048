package yolo

// Speed is the average time per image in milliseconds for each stage.
type Speed struct {
	Preprocess  float64 `json:"preprocess"`
	Inference   float64 `json:"inference"`
	Loss        float64 `json:"loss"`
	Postprocess float64 `json:"postprocess"`
}

// Total is the sum of all stages.
func (s Speed) Total() float64 {
	return s.Preprocess + s.Inference + s.Loss + s.Postprocess
}

// FPS is the number of images per second derived from Total, or zero if Total is zero.
func (s Speed) FPS() float64 {
	if t := s.Total(); t > 0 {
		return 1000 / t
	}
	return 0
}

// Metrics are the box metrics of a validation run.
type Metrics struct {
	MAP50     float64        `json:"map50"` // mAP at IoU 0.5.
	MAP       float64        `json:"map"`   // mAP at IoU 0.5:0.95.
	Precision float64        `json:"mp"`
	Recall    float64        `json:"mr"`
	F1        float64        `json:"f1"`   // Mean F1 over classes.
	AP50      []float64      `json:"ap50"` // Per-class AP at IoU 0.5, ordered like Classes.
	Classes   []int          `json:"ap_class_index"`
	Names     map[int]string `json:"names"`
	Speed     *Speed         `json:"speed"`
	Params    int64          `json:"params"`
	GFLOPs    float64        `json:"gflops"`
	SaveDir   string         `json:"save_dir"`
}

// TrainResult is the outcome of a training run.
type TrainResult struct {
	SaveDir string             `json:"save_dir"` // The run directory with weights and plots.
	Best    string             `json:"best"`     // Path of the best weights, if any.
	Metrics map[string]float64 `json:"metrics"`  // The final validation metrics by name.
}

// Detection is a single detected object in pixel coordinates.
type Detection struct {
	Class      int        `json:"class"`
	Name       string     `json:"name"`
	Confidence float64    `json:"confidence"`
	Box        [4]float64 `json:"xyxy"`
}

// Prediction holds the detections for one source image.
type Prediction struct {
	Path       string      `json:"path"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	Detections []Detection `json:"detections"`
	Speed      Speed       `json:"speed"`
}

// PredictResult is the outcome of an inference run.
type PredictResult struct {
	SaveDir     string       `json:"save_dir"` // Where annotated images were saved, if enabled.
	Predictions []Prediction `json:"predictions"`
}

// ModelInfo describes a constructed model.
type ModelInfo struct {
	Summary string  `json:"summary"` // The framework's printed module tree.
	Layers  int     `json:"layers"`
	Params  int64   `json:"params"`
	GFLOPs  float64 `json:"gflops"`
	Task    string  `json:"task"`
}
