package main

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nested-ml/nested/backend/cpu"
	"github.com/nested-ml/nested/hierarchy"
	"github.com/nested-ml/nested/internal/checkpoint"
	"github.com/nested-ml/nested/internal/config"
	"github.com/nested-ml/nested/memory"
	"github.com/nested-ml/nested/nn"
	"github.com/nested-ml/nested/optim"
	"github.com/nested-ml/nested/tensor"
)

const batchSize = 32

func newTrainCmd() *cobra.Command {
	var configPath string
	var checkpointPath string

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a small regression model with nested optimization",
		Long: "Fits sin(x) with a two-layer MLP whose parameters are partitioned\n" +
			"across nested optimization levels. Exercises context propagation,\n" +
			"per-level scheduling, and the surprise cache.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			return runTraining(cfg, checkpointPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML experiment config")
	cmd.Flags().StringVar(&checkpointPath, "checkpoint", "", "write a .nstd checkpoint here when training ends")
	return cmd
}

func runTraining(cfg config.Config, checkpointPath string) error {
	runID := uuid.NewString()
	backend := cpu.New()

	type B = *cpu.CPUBackend

	hidden := 16
	l1 := nn.NewLinear(1, hidden, backend)
	act := nn.NewTanh[B]()
	l2 := nn.NewLinear(hidden, 1, backend)

	block := hierarchy.NewNestedBlock([]nn.Module[B]{l1, act, l2}, hierarchy.BlockConfig{
		NumLevels:        len(cfg.Levels),
		Frequencies:      cfg.Frequencies(),
		LearningRates:    cfg.LearningRates(),
		CompressionRates: cfg.CompressionRates(),
		PropagateContext: cfg.PropagateContext,
	}, backend)

	var rule optim.UpdateRule[B]
	switch cfg.Optimizer.Rule {
	case "sgd":
		rule = optim.NewSGDRule[B]()
	default:
		rule = optim.NewNestedAdam[B](optim.AdamConfig{
			Betas:       [2]float32{cfg.Optimizer.Beta1, cfg.Optimizer.Beta2},
			Eps:         cfg.Optimizer.Eps,
			WeightDecay: cfg.Optimizer.WeightDecay,
			AMSGrad:     cfg.Optimizer.AMSGrad,
		}, backend)
	}

	opt := optim.NewDeepOptimizer(block.Levels(), optim.DeepConfig[B]{
		LR:             cfg.Optimizer.LR,
		ClipThreshold:  cfg.Optimizer.ClipThreshold,
		EnableClipping: cfg.Optimizer.EnableClipping,
		Rule:           rule,
	}, backend)

	cache := memory.NewSurpriseCache[B](
		cfg.Memory.Capacity,
		cfg.Memory.SurpriseThreshold,
		cfg.Memory.DecayRate,
	)

	fmt.Printf("run %s: %d levels, %d steps, rule=%s\n",
		runID, len(cfg.Levels), cfg.Steps, cfg.Optimizer.Rule)

	var loss float32
	for step := 1; step <= cfg.Steps; step++ {
		x, y := sineBatch(backend)

		out := block.Forward(x)
		loss = mseLoss(out, y)

		grads := backward(l1, l2, x, y, out, backend)
		opt.Step(grads)
		opt.ZeroGrad()

		// Remember surprising batches; decay the cache on a slow cadence.
		if step%10 == 0 {
			cache.Store(x, out)
		}
		if step%100 == 0 {
			cache.ApplyDecay()
			cache.BoostFrequentMemories(0.1)
			fmt.Printf("step %5d  loss %.6f  cache %d/%d\n",
				step, loss, cache.Len(), cache.MaxCapacity())
		}
	}

	fmt.Printf("done: %d optimizer steps", opt.CurrentStep())
	for _, level := range block.Levels() {
		fmt.Printf("  level%d last=%d", level.Index(), level.LastUpdateStep())
	}
	fmt.Println()

	if checkpointPath != "" {
		if err := saveCheckpoint(checkpointPath, runID, block, opt, loss, cfg); err != nil {
			return err
		}
		fmt.Printf("checkpoint written to %s\n", checkpointPath)
	}
	return nil
}

// saveCheckpoint persists model parameters and optimizer state under
// "model." and "opt." namespaces.
func saveCheckpoint[B tensor.Backend](
	path, runID string,
	block *hierarchy.NestedBlock[B],
	opt *optim.DeepOptimizer[B],
	loss float32,
	cfg config.Config,
) error {
	stateDict := make(map[string]*tensor.RawTensor)
	for i, param := range block.Parameters() {
		stateDict[fmt.Sprintf("model.param.%d.%s", i, param.Name())] = param.Tensor().Raw()
	}
	for key, raw := range opt.StateDict() {
		stateDict["opt."+key] = raw
	}

	run := checkpoint.RunMeta{
		RunID: runID,
		Step:  opt.CurrentStep(),
		Loss:  float64(loss),
	}
	return checkpoint.Save(path, stateDict, run, map[string]string{
		"rule": cfg.Optimizer.Rule,
	})
}

// sineBatch samples x uniformly from [-pi, pi] with targets sin(x).
func sineBatch(backend *cpu.CPUBackend) (x, y *tensor.Tensor[*cpu.CPUBackend]) {
	xs := make([]float32, batchSize)
	ys := make([]float32, batchSize)
	for i := range xs {
		v := (rand.Float64()*2 - 1) * math.Pi
		xs[i] = float32(v)
		ys[i] = float32(math.Sin(v))
	}
	x, err := tensor.FromSlice(xs, tensor.Shape{batchSize, 1}, backend)
	if err != nil {
		panic(err)
	}
	y, err = tensor.FromSlice(ys, tensor.Shape{batchSize, 1}, backend)
	if err != nil {
		panic(err)
	}
	return x, y
}

// mseLoss computes mean squared error between prediction and target.
func mseLoss[B tensor.Backend](pred, target *tensor.Tensor[B]) float32 {
	diff := pred.Sub(target)
	return diff.Square().Mean()
}

// backward computes closed-form gradients for the two-layer tanh MLP.
//
// The hidden activation is recomputed from the first layer; with an
// autodiff engine this would come off the tape instead.
func backward[B tensor.Backend](
	l1, l2 *nn.Linear[B],
	x, y, out *tensor.Tensor[B],
	backend B,
) map[*tensor.RawTensor]*tensor.RawTensor {
	n := float32(x.Shape()[0])

	a1 := tanhOf(l1.Forward(x)) // [n, hidden]

	// dL/dz2 = 2 (out - y) / n
	dz2 := out.Sub(y).MulScalar(2 / n) // [n, 1]

	dW2 := dz2.Transpose().MatMul(a1) // [1, hidden]
	db2 := colSum(dz2, backend)       // [1]

	da1 := dz2.MatMul(l2.Weight().Tensor()) // [n, hidden]
	// tanh'(z) = 1 - tanh(z)^2
	dz1 := da1.Mul(a1.Square().MulScalar(-1).AddScalar(1)) // [n, hidden]

	dW1 := dz1.Transpose().MatMul(x) // [hidden, 1]
	db1 := colSum(dz1, backend)      // [hidden]

	return map[*tensor.RawTensor]*tensor.RawTensor{
		l1.Weight().Tensor().Raw(): dW1.Raw(),
		l1.Bias().Tensor().Raw():   db1.Raw(),
		l2.Weight().Tensor().Raw(): dW2.Raw(),
		l2.Bias().Tensor().Raw():   db2.Raw(),
	}
}

// tanhOf applies tanh element-wise.
func tanhOf[B tensor.Backend](t *tensor.Tensor[B]) *tensor.Tensor[B] {
	out := t.Clone()
	data := out.Data()
	for i, v := range data {
		data[i] = float32(math.Tanh(float64(v)))
	}
	return out
}

// colSum sums a [n, m] tensor over rows, returning shape [m].
func colSum[B tensor.Backend](t *tensor.Tensor[B], backend B) *tensor.Tensor[B] {
	n, m := t.Shape()[0], t.Shape()[1]
	ones := tensor.Ones(tensor.Shape{1, n}, backend)
	return ones.MatMul(t).Reshape(m)
}
