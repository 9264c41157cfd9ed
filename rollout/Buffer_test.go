package rollout

import (
	"testing"

	"gonum.org/v1/gonum/mat"
	"sfneuman.com/govec/spec"
)

func dictObsSpace() spec.Space {
	return spec.NewDictSpace([]string{"position", "velocity"},
		map[string]spec.SubSpace{
			"position": spec.NewSubSpace(2, nil, nil, spec.Continuous),
			"velocity": spec.NewSubSpace(1, nil, nil, spec.Continuous),
		})
}

func scalarActSpace() spec.Space {
	return spec.NewScalarSpace(spec.NewSubSpace(1, nil, nil, spec.Discrete))
}

func rowFor(t *testing.T, numEnvs int, fill float64) ([]spec.Value,
	*Decision, []*mat.VecDense, []bool) {
	t.Helper()

	obs := make([]spec.Value, numEnvs)
	actions := make([]spec.Value, numEnvs)
	rewards := make([]*mat.VecDense, numEnvs)
	dones := make([]bool, numEnvs)
	for slot := 0; slot < numEnvs; slot++ {
		obs[slot] = spec.Value{
			"position": mat.NewVecDense(2, []float64{fill, fill + 1}),
			"velocity": mat.NewVecDense(1, []float64{fill + 2}),
		}
		actions[slot] = spec.DiscreteAction(slot % 2)
		rewards[slot] = mat.NewVecDense(1, []float64{fill})
	}
	return obs, &Decision{Actions: actions}, rewards, dones
}

// TestBufferDictSpaceLayout checks per-key tensor layout for a dict
// observation space
func TestBufferDictSpaceLayout(t *testing.T) {
	const horizon, numEnvs = 3, 2
	b := newBuffer(horizon, numEnvs, 1, dictObsSpace(), scalarActSpace())

	for row := 0; row < horizon; row++ {
		obs, dec, rewards, dones := rowFor(t, numEnvs, float64(10*row))
		if err := b.store(obs, dec, rewards, dones); err != nil {
			t.Fatalf("row %v: %v", row, err)
		}
	}
	if !b.full() {
		t.Fatal("buffer not full after horizon rows")
	}

	view := b.view()
	pos := view.Observations["position"]
	shape := pos.Shape()
	if shape[0] != horizon || shape[1] != numEnvs || shape[2] != 2 {
		t.Fatalf("position shape = %v, want (3, 2, 2)", shape)
	}

	data := pos.Data().([]float64)
	// Row 1, slot 0 starts at (1*2+0)*2
	if data[4] != 10 || data[5] != 11 {
		t.Errorf("row 1 slot 0 position = (%v, %v), want (10, 11)", data[4],
			data[5])
	}

	vel := view.Observations["velocity"].Data().([]float64)
	if vel[1*numEnvs+1] != 12 {
		t.Errorf("row 1 slot 1 velocity = %v, want 12", vel[1*numEnvs+1])
	}
}

// TestBufferOverflow checks that storing past the horizon fails
func TestBufferOverflow(t *testing.T) {
	const horizon, numEnvs = 2, 1
	b := newBuffer(horizon, numEnvs, 1, dictObsSpace(), scalarActSpace())

	for row := 0; row < horizon; row++ {
		obs, dec, rewards, dones := rowFor(t, numEnvs, 0)
		if err := b.store(obs, dec, rewards, dones); err != nil {
			t.Fatal(err)
		}
	}

	obs, dec, rewards, dones := rowFor(t, numEnvs, 0)
	if err := b.store(obs, dec, rewards, dones); err == nil {
		t.Fatal("expected store past horizon to fail")
	}
}

// TestBufferReuse checks that reset rewinds the buffer in place and
// that the next rollout overwrites the previous one's storage
func TestBufferReuse(t *testing.T) {
	const horizon, numEnvs = 2, 1
	b := newBuffer(horizon, numEnvs, 1, dictObsSpace(), scalarActSpace())

	for row := 0; row < horizon; row++ {
		obs, dec, rewards, dones := rowFor(t, numEnvs, 1)
		if err := b.store(obs, dec, rewards, dones); err != nil {
			t.Fatal(err)
		}
	}
	first := b.view().Rewards.Data().([]float64)

	b.reset()
	if b.full() {
		t.Fatal("buffer still full after reset")
	}

	for row := 0; row < horizon; row++ {
		obs, dec, rewards, dones := rowFor(t, numEnvs, 7)
		if err := b.store(obs, dec, rewards, dones); err != nil {
			t.Fatal(err)
		}
	}

	second := b.view().Rewards.Data().([]float64)
	if &first[0] != &second[0] {
		t.Error("reset reallocated storage instead of reusing it")
	}
	if second[0] != 7 {
		t.Errorf("reused storage holds %v, want 7", second[0])
	}
}
