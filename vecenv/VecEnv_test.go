package vecenv

import (
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"sfneuman.com/govec/environment"
	"sfneuman.com/govec/spec"
	ts "sfneuman.com/govec/timestep"
)

// fakeEnv is a deterministic environment for engine tests. Its
// observations are a pure function of the seed, the step number, and
// the actions taken so far, so two instances with the same seed and
// action sequence produce identical trajectories regardless of which
// backend drives them.
type fakeEnv struct {
	seed   uint64
	epLen  int
	step   int
	acc    float64
	closed bool
}

func (f *fakeEnv) obs() spec.Value {
	return spec.FromSlice([]float64{float64(f.seed), float64(f.step), f.acc})
}

func (f *fakeEnv) Reset() (ts.TimeStep, error) {
	if f.closed {
		return ts.TimeStep{}, fmt.Errorf("reset: closed")
	}
	f.step = 0
	f.acc = 0
	return ts.New(ts.First, mat.NewVecDense(1, nil), 1.0, f.obs(), 0), nil
}

func (f *fakeEnv) Step(action spec.Value) (ts.TimeStep, error) {
	if f.closed {
		return ts.TimeStep{}, fmt.Errorf("step: closed")
	}
	f.step++
	f.acc += action.Vector().AtVec(0)

	reward := f.acc + float64(f.seed)/1000.0
	t := ts.New(ts.Mid, mat.NewVecDense(1, []float64{reward}), 1.0, f.obs(),
		f.step)
	if f.step >= f.epLen {
		t.SetEnd(ts.TerminalStateReached)
	}
	return t, nil
}

func (f *fakeEnv) Close() error {
	if f.closed {
		return fmt.Errorf("close: already closed")
	}
	f.closed = true
	return nil
}

func (f *fakeEnv) ObservationSpace() spec.Space {
	return spec.NewScalarSpace(spec.NewSubSpace(3, nil, nil, spec.Continuous))
}

func (f *fakeEnv) ActionSpace() spec.Space {
	lower := mat.NewVecDense(1, []float64{0})
	upper := mat.NewVecDense(1, []float64{1})
	return spec.NewScalarSpace(spec.NewSubSpace(1, lower, upper,
		spec.Discrete))
}

// fakeMaker builds fakeEnvs whose episode length varies by slot so
// that auto-resets do not line up across slots
func fakeMaker(seed uint64) (environment.Environment, error) {
	return &fakeEnv{seed: seed, epLen: 3 + int(seed%3)}, nil
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// slotRecord is one slot's view of one step
type slotRecord struct {
	obs    []float64
	reward float64
	done   bool
}

// runFixedActions drives a VecEnv for steps timesteps with a fixed,
// deterministic action schedule and records every slot's trajectory
func runFixedActions(t *testing.T, v *VecEnv, steps int) [][]slotRecord {
	t.Helper()

	n := v.NumEnvs()
	records := make([][]slotRecord, n)

	if _, err := v.Reset(); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	for step := 0; step < steps; step++ {
		actions := make([]spec.Value, n)
		for slot := range actions {
			actions[slot] = spec.DiscreteAction((step + slot) % 2)
		}

		batch, err := v.Step(actions)
		if err != nil {
			t.Fatalf("step %v failed: %v", step, err)
		}

		for slot := 0; slot < n; slot++ {
			obs := batch.Observations[slot].Vector()
			records[slot] = append(records[slot], slotRecord{
				obs:    append([]float64(nil), obs.RawVector().Data...),
				reward: batch.Rewards[slot].AtVec(0),
				done:   batch.Dones[slot],
			})
		}
	}
	return records
}

// TestSerialParallelEquivalence checks the engine's load-bearing
// property: for identical per-slot seeds and action sequences, every
// worker partition produces the same per-slot sequence of
// observations, rewards, and done flags as the serial backend.
func TestSerialParallelEquivalence(t *testing.T) {
	const n, steps = 6, 25

	var want [][]slotRecord
	for _, workers := range []int{1, 2, 3} {
		cfg := Config{
			NumEnvs:    n,
			NumWorkers: workers,
			Seed:       100,
			AutoReset:  true,
		}
		v, err := New(fakeMaker, cfg, testLogger())
		if err != nil {
			t.Fatalf("workers=%v: %v", workers, err)
		}

		got := runFixedActions(t, v, steps)
		if err := v.Close(); err != nil {
			t.Fatalf("workers=%v: close: %v", workers, err)
		}

		if want == nil {
			want = got
			continue
		}

		for slot := 0; slot < n; slot++ {
			for step := 0; step < steps; step++ {
				w, g := want[slot][step], got[slot][step]
				if w.reward != g.reward || w.done != g.done {
					t.Fatalf("workers=%v slot=%v step=%v: got "+
						"(reward=%v done=%v), want (reward=%v done=%v)",
						workers, slot, step, g.reward, g.done, w.reward,
						w.done)
				}
				for i := range w.obs {
					if w.obs[i] != g.obs[i] {
						t.Fatalf("workers=%v slot=%v step=%v: obs[%v]=%v, "+
							"want %v", workers, slot, step, i, g.obs[i],
							w.obs[i])
					}
				}
			}
		}
	}
}

// TestAutoReset checks that the Batch following a done step already
// contains a fresh first observation and that the terminal observation
// is preserved in the slot's info map.
func TestAutoReset(t *testing.T) {
	cfg := Config{NumEnvs: 1, Seed: 3, AutoReset: true}
	v, err := New(fakeMaker, cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	if _, err := v.Reset(); err != nil {
		t.Fatal(err)
	}

	// Seed 3 gives episode length 3
	epLen := 3
	var batch *Batch
	for i := 0; i < epLen; i++ {
		batch, err = v.Step([]spec.Value{spec.DiscreteAction(1)})
		if err != nil {
			t.Fatalf("step %v: %v", i, err)
		}
	}

	if !batch.Dones[0] {
		t.Fatal("slot not done after full episode")
	}
	if got := batch.Observations[0].Vector().AtVec(1); got != 0 {
		t.Errorf("post-done observation not fresh: step feature = %v, want 0",
			got)
	}

	terminal, ok := batch.Infos[0][TerminalObservationKey].(spec.Value)
	if !ok {
		t.Fatal("terminal observation missing from info map")
	}
	if got := terminal.Vector().AtVec(1); got != float64(epLen) {
		t.Errorf("terminal observation step feature = %v, want %v", got,
			epLen)
	}

	if _, ok := batch.Infos[0][EpisodeReturnKey]; !ok {
		t.Error("episode return missing from info map")
	}
	if got, _ := batch.Infos[0][EpisodeLengthKey].(int); got != epLen {
		t.Errorf("episode length = %v, want %v", got, epLen)
	}

	// The next step must run in the fresh episode, not fail on a done
	// latch
	batch, err = v.Step([]spec.Value{spec.DiscreteAction(0)})
	if err != nil {
		t.Fatalf("step after auto-reset failed: %v", err)
	}
	if got := batch.Observations[0].Vector().AtVec(1); got != 1 {
		t.Errorf("step feature after auto-reset = %v, want 1", got)
	}
}

// TestNoAutoResetDoneLatch checks that with auto-reset disabled,
// stepping a finished slot faults until the caller resets
func TestNoAutoResetDoneLatch(t *testing.T) {
	cfg := Config{NumEnvs: 1, Seed: 3, AutoReset: false}
	v, err := New(fakeMaker, cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	if _, err := v.Reset(); err != nil {
		t.Fatal(err)
	}

	actions := []spec.Value{spec.DiscreteAction(1)}
	for i := 0; i < 3; i++ {
		if _, err = v.Step(actions); err != nil {
			t.Fatalf("step %v: %v", i, err)
		}
	}

	batch, err := v.Step(actions)
	if err == nil {
		t.Fatal("expected fault stepping a finished slot")
	}
	if !IsEnvironmentFault(batch.Faults[0]) {
		t.Fatalf("fault is %T, want *EnvironmentFault", batch.Faults[0])
	}

	if _, err := v.Reset(); err != nil {
		t.Fatalf("reset after done: %v", err)
	}
	if _, err := v.Step(actions); err != nil {
		t.Fatalf("step after reset: %v", err)
	}
}

// panicEnv panics on a chosen step to simulate an environment crash
type panicEnv struct {
	fakeEnv
	panicOnStep int
}

func (p *panicEnv) Step(action spec.Value) (ts.TimeStep, error) {
	if p.fakeEnv.step+1 == p.panicOnStep {
		panic("simulated environment crash")
	}
	return p.fakeEnv.Step(action)
}

// TestCrashIsolation injects a crash into one worker's slot and checks
// that every other worker's contributions remain intact and correctly
// positioned
func TestCrashIsolation(t *testing.T) {
	const n, workers, crashSlot = 8, 4, 4 // Slot 4 lives in worker 2

	maker := func(seed uint64) (environment.Environment, error) {
		if seed == 100+crashSlot {
			return &panicEnv{
				fakeEnv:     fakeEnv{seed: seed, epLen: 100},
				panicOnStep: 2,
			}, nil
		}
		return &fakeEnv{seed: seed, epLen: 100}, nil
	}

	cfg := Config{NumEnvs: n, NumWorkers: workers, Seed: 100, AutoReset: true}
	v, err := New(maker, cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	if _, err := v.Reset(); err != nil {
		t.Fatal(err)
	}

	actions := make([]spec.Value, n)
	for i := range actions {
		actions[i] = spec.DiscreteAction(1)
	}

	if _, err := v.Step(actions); err != nil {
		t.Fatalf("first step: %v", err)
	}

	batch, err := v.Step(actions)
	if err == nil {
		t.Fatal("expected an error from the crashed slot")
	}
	if !IsEnvironmentFault(err) {
		t.Fatalf("error is %T, want *EnvironmentFault", err)
	}

	for slot := 0; slot < n; slot++ {
		if slot == crashSlot {
			if !IsEnvironmentFault(batch.Faults[slot]) {
				t.Fatalf("slot %v: fault is %T, want *EnvironmentFault",
					slot, batch.Faults[slot])
			}
			continue
		}

		if batch.Faults[slot] != nil {
			t.Errorf("healthy slot %v carries fault: %v", slot,
				batch.Faults[slot])
		}
		obs := batch.Observations[slot].Vector()
		if got := obs.AtVec(0); got != float64(100+slot) {
			t.Errorf("slot %v holds observation of seed %v", slot, got)
		}
		if got := obs.AtVec(1); got != 2 {
			t.Errorf("slot %v step feature = %v, want 2", slot, got)
		}
	}
}

// delayEnv sleeps on step so that higher slots finish first,
// exercising out-of-order worker replies
type delayEnv struct {
	fakeEnv
	delay time.Duration
}

func (d *delayEnv) Step(action spec.Value) (ts.TimeStep, error) {
	time.Sleep(d.delay)
	return d.fakeEnv.Step(action)
}

// TestSlotOrderingUnderLatency checks that Batch slot order is
// ascending global slot order even when workers reply in reverse order
func TestSlotOrderingUnderLatency(t *testing.T) {
	const n, workers = 4, 4

	maker := func(seed uint64) (environment.Environment, error) {
		slot := seed - 100
		return &delayEnv{
			fakeEnv: fakeEnv{seed: seed, epLen: 100},
			delay:   time.Duration(n-int(slot)) * 10 * time.Millisecond,
		}, nil
	}

	cfg := Config{NumEnvs: n, NumWorkers: workers, Seed: 100, AutoReset: true}
	v, err := New(maker, cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	if _, err := v.Reset(); err != nil {
		t.Fatal(err)
	}

	actions := make([]spec.Value, n)
	for i := range actions {
		actions[i] = spec.DiscreteAction(0)
	}
	batch, err := v.Step(actions)
	if err != nil {
		t.Fatal(err)
	}

	for slot := 0; slot < n; slot++ {
		if got := batch.Observations[slot].Vector().AtVec(0); got !=
			float64(100+slot) {
			t.Errorf("slot %v holds observation of seed %v", slot, got)
		}
	}
}

// blockEnv never returns from Step, simulating a hung worker
type blockEnv struct {
	fakeEnv
}

func (b *blockEnv) Step(spec.Value) (ts.TimeStep, error) {
	select {} // Block forever
}

// TestWorkerTimeout checks that a hung worker is reported as
// WorkerTimeout for exactly its slots, that sibling workers' results
// still flow, and that the dead worker stays dead for the rest of the
// run.
func TestWorkerTimeout(t *testing.T) {
	const n, workers = 4, 2 // Worker 0 owns slots 0-1, worker 1 owns 2-3

	maker := func(seed uint64) (environment.Environment, error) {
		if seed == 102 { // Slot 2, worker 1
			return &blockEnv{fakeEnv{seed: seed, epLen: 100}}, nil
		}
		return &fakeEnv{seed: seed, epLen: 100}, nil
	}

	cfg := Config{
		NumEnvs:         n,
		NumWorkers:      workers,
		Seed:            100,
		AutoReset:       true,
		LivenessTimeout: 50 * time.Millisecond,
		CloseTimeout:    50 * time.Millisecond,
	}
	v, err := New(maker, cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := v.Reset(); err != nil {
		t.Fatal(err)
	}

	actions := make([]spec.Value, n)
	for i := range actions {
		actions[i] = spec.DiscreteAction(0)
	}

	batch, err := v.Step(actions)
	if err == nil {
		t.Fatal("expected worker timeout error")
	}
	if !IsWorkerTimeout(err) {
		t.Fatalf("error is %T, want *WorkerTimeout", err)
	}

	for _, slot := range []int{0, 1} {
		if batch.Faults[slot] != nil {
			t.Errorf("healthy slot %v carries fault: %v", slot,
				batch.Faults[slot])
		}
	}
	for _, slot := range []int{2, 3} {
		if !IsWorkerTimeout(batch.Faults[slot]) {
			t.Errorf("slot %v fault is %T, want *WorkerTimeout", slot,
				batch.Faults[slot])
		}
	}

	// The dead worker's slots fail immediately on the next command
	start := time.Now()
	batch, err = v.Step(actions)
	if err == nil || !IsWorkerTimeout(err) {
		t.Fatalf("expected worker timeout on subsequent step, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > cfg.LivenessTimeout {
		t.Errorf("subsequent step waited %v on a known-dead worker", elapsed)
	}
	if batch.Faults[0] != nil || batch.Faults[1] != nil {
		t.Error("sibling worker's slots faulted after timeout")
	}

	// Close reports the abandoned worker instead of hanging
	if err := v.Close(); err == nil {
		t.Error("expected close to report the unresponsive worker")
	}
}

// TestRewardShapeFault checks that a slot whose environment reports a
// reward vector without one entry per agent is faulted instead of the
// malformed reward flowing into the Batch
func TestRewardShapeFault(t *testing.T) {
	// fakeEnv rewards are single-agent; configuring two agents makes
	// every step a contract breach
	cfg := Config{NumEnvs: 2, NumAgents: 2, Seed: 10}
	v, err := New(fakeMaker, cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	if _, err := v.Reset(); err != nil {
		t.Fatal(err)
	}

	actions := []spec.Value{spec.DiscreteAction(1), spec.DiscreteAction(1)}
	batch, err := v.Step(actions)
	if err == nil {
		t.Fatal("expected fault for single-agent reward under two agents")
	}
	if !IsEnvironmentFault(err) {
		t.Fatalf("error is %T, want *EnvironmentFault", err)
	}

	for slot := 0; slot < 2; slot++ {
		if !IsEnvironmentFault(batch.Faults[slot]) {
			t.Errorf("slot %v fault is %T, want *EnvironmentFault", slot,
				batch.Faults[slot])
		}
		if got := batch.Rewards[slot].Len(); got != 2 {
			t.Errorf("slot %v reward length = %v, want untouched 2", slot, got)
		}
	}
}

// TestClosed checks that a closed VecEnv refuses further use
func TestClosed(t *testing.T) {
	cfg := Config{NumEnvs: 2, Seed: 7}
	v, err := New(fakeMaker, cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := v.Reset(); err != ErrClosed {
		t.Errorf("reset on closed env: got %v, want ErrClosed", err)
	}
	if _, err := v.Step(nil); err != ErrClosed {
		t.Errorf("step on closed env: got %v, want ErrClosed", err)
	}
	if err := v.Close(); err != ErrClosed {
		t.Errorf("double close: got %v, want ErrClosed", err)
	}
}

// BenchmarkVecEnvStep measures one synchronized step across all slots
// for the serial and parallel backends
func BenchmarkVecEnvStep(b *testing.B) {
	for _, workers := range []int{1, 4} {
		b.Run(fmt.Sprintf("workers=%v", workers), func(b *testing.B) {
			cfg := Config{
				NumEnvs:    8,
				NumWorkers: workers,
				Seed:       100,
				AutoReset:  true,
			}
			v, err := New(fakeMaker, cfg, testLogger())
			if err != nil {
				b.Fatal(err)
			}
			defer v.Close()

			if _, err := v.Reset(); err != nil {
				b.Fatal(err)
			}
			actions := make([]spec.Value, v.NumEnvs())
			for i := range actions {
				actions[i] = spec.DiscreteAction(1)
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := v.Step(actions); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// TestConfigValidate checks construction-time configuration errors
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero envs", Config{NumEnvs: 0}},
		{"negative envs", Config{NumEnvs: -1}},
		{"more workers than envs", Config{NumEnvs: 2, NumWorkers: 3}},
		{"negative agents", Config{NumEnvs: 2, NumAgents: -1}},
		{"negative timeout", Config{NumEnvs: 2, LivenessTimeout: -time.Second}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := New(fakeMaker, test.cfg, testLogger()); err == nil {
				t.Error("expected construction to fail")
			}
		})
	}
}
