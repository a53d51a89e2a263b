package tacotron

import "testing"

func TestEncoderPackedSequences(t *testing.T) {
	m := mustModel(t, tinyHParams())

	x, err := m.embed(Symbols{{10, 11, 12}, {20, 0, 0}})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}

	out, err := m.encoder.run(x, []int64{3, 1})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	assertShape(t, "memory", out, 2, 3, 8)

	d := out.RawData()
	for ti := 1; ti < 3; ti++ {
		for c := range 8 {
			if v := d[(1*3+ti)*8+c]; v != 0 {
				t.Fatalf("padded memory[1,%d,%d] = %v, want 0", ti, c, v)
			}
		}
	}

	// Batch items are independent of each other.
	solo, err := m.embed(Symbols{{20, 0, 0}})
	if err != nil {
		t.Fatal(err)
	}

	want, err := m.encoder.run(solo, []int64{1})
	if err != nil {
		t.Fatal(err)
	}

	assertClose(t, "memory[1,0]", d[3*8:4*8], want.RawData(), 1e-6)
}

func TestEncoderTruncatesToLongestLength(t *testing.T) {
	m := mustModel(t, tinyHParams())

	x, err := m.embed(Symbols{{10, 11, 0, 0}})
	if err != nil {
		t.Fatal(err)
	}

	out, err := m.encoder.run(x, []int64{2})
	if err != nil {
		t.Fatal(err)
	}

	assertShape(t, "memory", out, 1, 2, 8)

	if _, err := m.encoder.run(x, []int64{5}); err == nil {
		t.Fatal("expected length out of range error")
	}
}
