package yolo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// fakeFramework records the request of the last call and answers with a canned result.
type fakeFramework struct {
	name   string
	args   []string
	req    request
	result string
	output string
	err    error
}

func (f *fakeFramework) run(ctx context.Context, name string, args []string, stdin io.Reader,
	stdout, stderr io.Writer) error {

	f.name = name
	f.args = args
	enc, err := io.ReadAll(stdin)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(enc, &f.req); err != nil {
		return err
	}
	if f.output != "" {
		fmt.Fprintln(stdout, f.output)
	}
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(f.req.ResultPath, []byte(f.result), 0644)
}

func newTestBridge(t *testing.T, fake *fakeFramework) *Bridge {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	b := NewBridge("python-test", logger, fake.run)
	b.TempDir = t.TempDir()
	return b
}

func TestValRequestAndResult(t *testing.T) {
	fake := &fakeFramework{
		output: "all 548 38759 0.5 0.4",
		result: `{"map50":0.412,"map":0.245,"mp":0.53,"mr":0.41,"f1":0.46,
			"ap50":[0.6,0.2],"ap_class_index":[0,3],"names":{"0":"pedestrian","3":"car"},
			"speed":{"preprocess":0.5,"inference":4.5,"loss":0,"postprocess":1},
			"params":2590230,"gflops":6.4,"save_dir":"runs/detect/val"}`,
	}
	b := newTestBridge(t, fake)

	opts := DefaultValOptions("best.pt", "VisDrone.yaml")
	opts.Device = "cpu"
	m, err := b.Val(context.Background(), opts)
	require.NoError(t, err)

	require.Equal(t, "python-test", fake.name)
	require.Equal(t, []string{"-c", bridgeScript}, fake.args)
	require.Equal(t, "val", fake.req.Op)
	require.Equal(t, "best.pt", fake.req.Model)
	require.Equal(t, "VisDrone.yaml", fake.req.Args["data"])
	require.Equal(t, "test", fake.req.Args["split"])
	require.Equal(t, 0.001, fake.req.Args["conf"])
	require.Equal(t, 0.6, fake.req.Args["iou"])
	require.EqualValues(t, 640, fake.req.Args["imgsz"])
	require.EqualValues(t, 16, fake.req.Args["batch"])
	require.Equal(t, "cpu", fake.req.Args["device"])

	require.Equal(t, 0.412, m.MAP50)
	require.Equal(t, 0.245, m.MAP)
	require.Equal(t, []float64{0.6, 0.2}, m.AP50)
	require.Equal(t, []int{0, 3}, m.Classes)
	require.Equal(t, map[int]string{0: "pedestrian", 3: "car"}, m.Names)
	require.NotNil(t, m.Speed)
	require.InDelta(t, 6.0, m.Speed.Total(), 1e-9)
	require.EqualValues(t, 2590230, m.Params)

	// The result file is removed.
	_, err = os.Stat(fake.req.ResultPath)
	require.True(t, os.IsNotExist(err))
}

func TestTrainRequest(t *testing.T) {
	fake := &fakeFramework{
		result: `{"save_dir":"runs/train/exp","best":"runs/train/exp/weights/best.pt",
			"metrics":{"metrics/mAP50(B)":0.39,"fitness":0.25}}`,
	}
	b := newTestBridge(t, fake)

	opts := DefaultTrainOptions("yolo11n.yaml", "VisDrone.yaml")
	opts.Extra = map[string]interface{}{"patience": 20}
	res, err := b.Train(context.Background(), opts)
	require.NoError(t, err)

	require.Equal(t, "train", fake.req.Op)
	require.Equal(t, "detect", fake.req.Task)
	require.Equal(t, "SGD", fake.req.Args["optimizer"])
	require.Equal(t, "0", fake.req.Args["device"])
	require.Equal(t, true, fake.req.Args["amp"])
	require.Equal(t, false, fake.req.Args["resume"])
	require.EqualValues(t, 10, fake.req.Args["close_mosaic"])
	require.EqualValues(t, 20, fake.req.Args["patience"])
	require.Equal(t, "runs/train", fake.req.Args["project"])

	require.Equal(t, "runs/train/exp", res.SaveDir)
	require.Equal(t, 0.39, res.Metrics["metrics/mAP50(B)"])
}

func TestPredictAndInfo(t *testing.T) {
	fake := &fakeFramework{
		result: `{"save_dir":"runs/detect/predict","predictions":[{"path":"a.jpg","width":1360,
			"height":765,"detections":[{"class":3,"name":"car","confidence":0.9,
			"xyxy":[1,2,3,4]}],"speed":{"preprocess":1,"inference":2,"postprocess":3}}]}`,
	}
	b := newTestBridge(t, fake)

	res, err := b.Predict(context.Background(), DefaultPredictOptions("best.pt", "images/"))
	require.NoError(t, err)
	require.Equal(t, "predict", fake.req.Op)
	require.Equal(t, "images/", fake.req.Args["source"])
	require.Equal(t, true, fake.req.Args["save"])
	require.NotContains(t, fake.req.Args, "device")
	require.Len(t, res.Predictions, 1)
	require.Equal(t, [4]float64{1, 2, 3, 4}, res.Predictions[0].Detections[0].Box)
	require.Equal(t, "car", res.Predictions[0].Detections[0].Name)

	fake.result = `{"summary":"DetectionModel(...)","layers":240,"params":2590230,"gflops":6.4,"task":"detect"}`
	info, err := b.Info(context.Background(), InfoOptions{Model: "AFPN.yaml", ImageSize: 640})
	require.NoError(t, err)
	require.Equal(t, "info", fake.req.Op)
	require.Equal(t, "AFPN.yaml", fake.req.Model)
	require.Equal(t, 240, info.Layers)
	require.EqualValues(t, 2590230, info.Params)
}

func TestInvalidOptions(t *testing.T) {
	fake := &fakeFramework{}
	b := newTestBridge(t, fake)
	ctx := context.Background()

	_, err := b.Val(ctx, ValOptions{Data: "d.yaml", ImageSize: 640, Batch: 16, Split: "test"})
	require.Error(t, err)

	opts := DefaultValOptions("best.pt", "d.yaml")
	opts.Split = "holdout"
	_, err = b.Val(ctx, opts)
	require.Error(t, err)

	opts = DefaultValOptions("best.pt", "d.yaml")
	opts.Conf = 1.5
	_, err = b.Val(ctx, opts)
	require.Error(t, err)

	train := DefaultTrainOptions("m.yaml", "d.yaml")
	train.Optimizer = "Adagrad"
	_, err = b.Train(ctx, train)
	require.Error(t, err)

	_, err = b.Predict(ctx, PredictOptions{Weights: "best.pt", ImageSize: 640})
	require.Error(t, err)

	// Nothing was started.
	require.Empty(t, fake.name)
}

func TestFrameworkFailures(t *testing.T) {
	fake := &fakeFramework{err: errors.New("exit status 1")}
	b := newTestBridge(t, fake)
	opts := DefaultValOptions("best.pt", "d.yaml")

	_, err := b.Val(context.Background(), opts)
	require.ErrorContains(t, err, "val failed")

	fake.err = nil
	fake.result = ""
	_, err = b.Val(context.Background(), opts)
	require.ErrorContains(t, err, "no result")

	fake.result = "{not json"
	_, err = b.Val(context.Background(), opts)
	require.ErrorContains(t, err, "decode")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fake.err = errors.New("signal: killed")
	_, err = b.Val(ctx, opts)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSpeed(t *testing.T) {
	s := Speed{Preprocess: 1, Inference: 2, Loss: 0.5, Postprocess: 1.5}
	require.Equal(t, 5.0, s.Total())
	require.Equal(t, 200.0, s.FPS())
	require.Zero(t, Speed{}.FPS())
}
