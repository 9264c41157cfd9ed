package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/stat"
	"sfneuman.com/govec/environment/classiccontrol/cartpole"
	"sfneuman.com/govec/rollout"
	"sfneuman.com/govec/spec"
	"sfneuman.com/govec/utils/progressbar"
	"sfneuman.com/govec/vecenv"
)

// randomPolicy selects uniformly random discrete actions. It stands in
// for the external policy collaborator in this demo.
type randomPolicy struct {
	numActions int
	rng        *rand.Rand
}

func (p *randomPolicy) SelectActions(obs []spec.Value,
	_ []interface{}) (*rollout.Decision, error) {
	actions := make([]spec.Value, len(obs))
	for i := range actions {
		actions[i] = spec.DiscreteAction(p.rng.Intn(p.numActions))
	}
	return &rollout.Decision{Actions: actions}, nil
}

func main() {
	var seed uint64 = 192382

	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)

	// Four cartpoles partitioned across two workers
	cfg := vecenv.Config{
		NumEnvs:         4,
		NumWorkers:      2,
		Seed:            seed,
		AutoReset:       true,
		LivenessTimeout: 10 * time.Second,
	}

	env, err := vecenv.New(cartpole.NewMaker(500, 0.99), cfg, log)
	if err != nil {
		log.WithError(err).Fatal("could not construct vectorized environment")
	}
	defer env.Close()

	policy := &randomPolicy{
		numActions: cartpole.MaxDiscreteAction + 1,
		rng:        rand.New(rand.NewSource(seed)),
	}

	collector, err := rollout.NewCollector(env, policy,
		rollout.Config{Horizon: 256}, log)
	if err != nil {
		log.WithError(err).Fatal("could not construct collector")
	}

	numRollouts := 20
	bar := progressbar.New(40, numRollouts, time.Second)
	bar.Display()
	defer bar.Close()

	var episodeReturns []float64
	for i := 0; i < numRollouts; i++ {
		if err := collector.Start(); err != nil {
			log.WithError(err).Fatal("rollout collection failed")
		}

		r, err := collector.Consume()
		if err != nil {
			log.WithError(err).Fatal("rollout consumption failed")
		}

		// The trainer would compute gradients here; the demo only
		// tallies per-slot episode returns from the done flags and
		// rewards. Both tensors flatten as (timestep, slot).
		rewards := r.Rewards.Data().([]float64)
		dones := r.Dones.Data().([]float64)
		running := make([]float64, r.NumEnvs)
		for j, done := range dones {
			slot := j % r.NumEnvs
			running[slot] += rewards[j]
			if done == 1 {
				episodeReturns = append(episodeReturns, running[slot])
				running[slot] = 0
			}
		}

		bar.Increment()
	}

	if len(episodeReturns) > 0 {
		fmt.Printf("\nrandom policy over %v episodes: mean return %.2f "+
			"(stddev %.2f)\n", len(episodeReturns),
			stat.Mean(episodeReturns, nil),
			stat.StdDev(episodeReturns, nil))
	}
}
