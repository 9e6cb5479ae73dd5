package classify

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/teslashibe/go-eyecommander/pkg/dataset"
	"github.com/teslashibe/go-eyecommander/pkg/gaze"
)

// Default fine-tuning parameters.
const (
	DefaultEpochs       = 5
	DefaultBatchSize    = 32
	DefaultLearningRate = 0.001
)

// TrainConfig holds the fine-tuning parameters.
type TrainConfig struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	Split        dataset.Split
	Codec        dataset.Codec // how samples were written; nil means PNG
}

// DefaultTrainConfig returns the parameters used for live calibration.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Epochs:       DefaultEpochs,
		BatchSize:    DefaultBatchSize,
		LearningRate: DefaultLearningRate,
		Split:        dataset.DefaultSplit(),
	}
}

// EpochStats summarises one pass over the training set.
type EpochStats struct {
	Epoch       int     `json:"epoch"`
	Loss        float64 `json:"loss"`
	Accuracy    float64 `json:"accuracy"`
	ValLoss     float64 `json:"val_loss"`
	ValAccuracy float64 `json:"val_accuracy"`
}

// Report describes a completed fine-tuning run.
type Report struct {
	TrainSamples int          `json:"train_samples"`
	ValSamples   int          `json:"val_samples"`
	Epochs       []EpochStats `json:"epochs"`
}

// Final returns the stats of the last epoch.
func (r *Report) Final() EpochStats {
	if r == nil || len(r.Epochs) == 0 {
		return EpochStats{}
	}
	return r.Epochs[len(r.Epochs)-1]
}

// Trainer fine-tunes the head of a model on a directory dataset.
type Trainer struct {
	cfg TrainConfig
	log *slog.Logger
}

// NewTrainer creates a trainer. Zero config fields take defaults.
func NewTrainer(cfg TrainConfig, logger *slog.Logger) *Trainer {
	def := DefaultTrainConfig()
	if cfg.Epochs <= 0 {
		cfg.Epochs = def.Epochs
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = def.LearningRate
	}
	if cfg.Split.Validation == 0 {
		cfg.Split = def.Split
	}
	if cfg.Codec == nil {
		cfg.Codec = dataset.PNGCodec{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{cfg: cfg, log: logger}
}

// Config returns the effective configuration.
func (t *Trainer) Config() TrainConfig { return t.cfg }

type example struct {
	features []float32
	label    gaze.Label
}

// Fit trains a copy of base's head on the dataset under root, keeping the
// backbone frozen. It returns a new model sharing base's backbone.
// Every error wraps ErrTraining.
func (t *Trainer) Fit(ctx context.Context, base *Model, root string) (*Model, *Report, error) {
	if base == nil {
		return nil, nil, fmt.Errorf("%w: nil base model", ErrTraining)
	}
	if base.head.Classes() != gaze.NumLabels {
		return nil, nil, fmt.Errorf("%w: %w: head has %d classes, want %d",
			ErrTraining, ErrShape, base.head.Classes(), gaze.NumLabels)
	}
	train, val, err := dataset.Load(root, t.cfg.Codec, t.cfg.Split)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: load dataset: %w", ErrTraining, err)
	}

	trainEx, err := t.extract(ctx, base, train)
	if err != nil {
		return nil, nil, err
	}
	valEx, err := t.extract(ctx, base, val)
	if err != nil {
		return nil, nil, err
	}

	head := base.head.Clone()
	opt := newAdam(head, t.cfg.LearningRate)
	rng := rand.New(rand.NewSource(t.cfg.Split.Seed))
	report := &Report{TrainSamples: len(trainEx), ValSamples: len(valEx)}

	t.log.Info("fine-tuning head",
		"model", base.name,
		"train", len(trainEx),
		"val", len(valEx),
		"epochs", t.cfg.Epochs,
		"batch_size", t.cfg.BatchSize)

	order := make([]int, len(trainEx))
	for i := range order {
		order[i] = i
	}

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		for start := 0; start < len(order); start += t.cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				return nil, nil, fmt.Errorf("%w: %w", ErrTraining, err)
			}
			end := min(start+t.cfg.BatchSize, len(order))
			batch := make([]example, 0, end-start)
			for _, i := range order[start:end] {
				batch = append(batch, trainEx[i])
			}
			if err := opt.step(head, batch); err != nil {
				return nil, nil, fmt.Errorf("%w: epoch %d: %w", ErrTraining, epoch, err)
			}
		}

		stats := EpochStats{Epoch: epoch}
		stats.Loss, stats.Accuracy = evaluate(head, trainEx)
		stats.ValLoss, stats.ValAccuracy = evaluate(head, valEx)
		if !finite(stats.Loss) || !finite(stats.ValLoss) {
			return nil, nil, fmt.Errorf("%w: epoch %d: %w", ErrTraining, epoch, ErrDiverged)
		}
		report.Epochs = append(report.Epochs, stats)

		t.log.Info("epoch done",
			"epoch", epoch,
			"loss", stats.Loss,
			"accuracy", stats.Accuracy,
			"val_loss", stats.ValLoss,
			"val_accuracy", stats.ValAccuracy)
	}

	tuned, err := New(base.name+"+tuned", base.backbone, head)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrTraining, err)
	}
	return tuned, report, nil
}

// extract decodes samples and runs them through the frozen backbone.
func (t *Trainer) extract(ctx context.Context, m *Model, samples []dataset.Sample) ([]example, error) {
	out := make([]example, 0, len(samples))
	for start := 0; start < len(samples); start += t.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTraining, err)
		}
		end := min(start+t.cfg.BatchSize, len(samples))
		imgs := make([]*image.Gray, 0, end-start)
		for _, s := range samples[start:end] {
			img, err := t.cfg.Codec.Decode(s.Path)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrTraining, err)
			}
			imgs = append(imgs, img)
		}
		feats, err := m.backbone.Features(imgs)
		if err != nil {
			return nil, fmt.Errorf("%w: features: %w", ErrTraining, err)
		}
		if len(feats) != len(imgs) {
			return nil, fmt.Errorf("%w: %w: %d feature vectors for %d images", ErrTraining, ErrShape, len(feats), len(imgs))
		}
		for i, f := range feats {
			if len(f) != m.head.Dim() {
				return nil, fmt.Errorf("%w: %w: %d features, head expects %d", ErrTraining, ErrShape, len(f), m.head.Dim())
			}
			out = append(out, example{features: f, label: samples[start+i].Label})
		}
	}
	return out, nil
}

// evaluate returns mean cross-entropy and accuracy of head over ex.
func evaluate(h *Head, ex []example) (loss, acc float64) {
	if len(ex) == 0 {
		return 0, 0
	}
	var correct int
	for _, e := range ex {
		logits, _ := h.Logits(e.features)
		p := Softmax(logits)
		loss -= math.Log(p[e.label])
		if argmax(p) == int(e.label) {
			correct++
		}
	}
	return loss / float64(len(ex)), float64(correct) / float64(len(ex))
}

func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// adam holds first and second moment estimates for the head parameters.
// The bias is updated through a classes×1 matrix sharing its storage.
type adam struct {
	lr, beta1, beta2, eps float64
	t                     int
	mW, vW                *mat.Dense
	mB, vB                *mat.Dense
}

func newAdam(h *Head, lr float64) *adam {
	classes, dim := h.Classes(), h.Dim()
	return &adam{
		lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-7,
		mW: mat.NewDense(classes, dim, nil),
		vW: mat.NewDense(classes, dim, nil),
		mB: mat.NewDense(classes, 1, nil),
		vB: mat.NewDense(classes, 1, nil),
	}
}

// step applies one Adam update for the sparse categorical cross-entropy
// gradient of batch.
func (a *adam) step(h *Head, batch []example) error {
	if len(batch) == 0 {
		return nil
	}
	n, classes, dim := len(batch), h.Classes(), h.Dim()

	x := mat.NewDense(n, dim, nil)
	for i, e := range batch {
		if len(e.features) != dim {
			return fmt.Errorf("%w: %d features, head expects %d", ErrShape, len(e.features), dim)
		}
		x.SetRow(i, toFloat64(e.features))
	}

	// Rows of g become softmax(x·Wᵀ + b) minus the one-hot label.
	var g mat.Dense
	g.Mul(x, h.w.T())
	for i, e := range batch {
		row := g.RawRowView(i)
		for k := range row {
			row[k] += h.b.AtVec(k)
		}
		copy(row, Softmax(row))
		if !finite(row[e.label]) {
			return ErrDiverged
		}
		row[e.label]--
	}

	var gW mat.Dense
	gW.Mul(g.T(), x)
	gW.Scale(1/float64(n), &gW)

	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	var sumB mat.VecDense
	sumB.MulVec(g.T(), mat.NewVecDense(n, ones))
	gB := mat.NewDense(classes, 1, sumB.RawVector().Data)
	gB.Scale(1/float64(n), gB)

	a.t++
	a.update(h.w, a.mW, a.vW, &gW)
	a.update(mat.NewDense(classes, 1, h.b.RawVector().Data), a.mB, a.vB, gB)
	return nil
}

// update moves param against the bias-corrected moments of grad.
func (a *adam) update(param, m, v, grad *mat.Dense) {
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))

	var tmp mat.Dense
	m.Scale(a.beta1, m)
	tmp.Scale(1-a.beta1, grad)
	m.Add(m, &tmp)

	tmp.MulElem(grad, grad)
	tmp.Scale(1-a.beta2, &tmp)
	v.Scale(a.beta2, v)
	v.Add(v, &tmp)

	tmp.Apply(func(i, j int, mv float64) float64 {
		return a.lr * (mv / c1) / (math.Sqrt(v.At(i, j)/c2) + a.eps)
	}, m)
	param.Sub(param, &tmp)
}

// Tuner binds a trainer to the base model it fine-tunes. Its Retrain
// method matches what a calibration session needs.
type Tuner struct {
	Trainer *Trainer
	Base    *Model

	mu     sync.Mutex
	report *Report
}

// NewTuner creates a tuner for base.
func NewTuner(t *Trainer, base *Model) *Tuner {
	return &Tuner{Trainer: t, Base: base}
}

// Retrain fine-tunes Base on the dataset under root.
func (t *Tuner) Retrain(ctx context.Context, root string) (gaze.Model, error) {
	tuned, report, err := t.Trainer.Fit(ctx, t.Base, root)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.report = report
	t.mu.Unlock()
	return tuned, nil
}

// Report returns the report of the last successful Retrain, or nil.
func (t *Tuner) Report() *Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.report
}
