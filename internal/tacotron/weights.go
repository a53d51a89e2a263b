package tacotron

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/example/go-tacotron2/internal/runtime/tensor"
	"github.com/example/go-tacotron2/internal/safetensors"
)

// VarBuilder resolves dotted parameter names against a safetensors store.
type VarBuilder struct {
	store  *safetensors.Store
	prefix string
}

// NewVarBuilder returns a root builder over store.
func NewVarBuilder(store *safetensors.Store) *VarBuilder {
	return &VarBuilder{store: store}
}

// Path returns a builder scoped under the joined parts.
func (vb *VarBuilder) Path(parts ...string) *VarBuilder {
	prefix := vb.prefix

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if prefix == "" {
			prefix = part
		} else {
			prefix += "." + part
		}
	}

	return &VarBuilder{store: vb.store, prefix: prefix}
}

// Has reports whether name resolves to a stored tensor.
func (vb *VarBuilder) Has(name string) bool {
	return vb.store != nil && vb.store.Has(vb.resolve(name))
}

// Tensor loads name, checking its shape when wantShape is given.
func (vb *VarBuilder) Tensor(name string, wantShape ...int64) (*tensor.Tensor, error) {
	if vb.store == nil {
		return nil, errors.New("tacotron: varbuilder has no store")
	}

	full := vb.resolve(name)

	st, err := vb.store.Tensor(full)
	if err != nil {
		return nil, err
	}

	if len(wantShape) > 0 && !sameShape(st.Shape, wantShape) {
		return nil, fmt.Errorf("tacotron: tensor %q shape %v does not match expected %v", full, st.Shape, wantShape)
	}

	return tensor.New(st.Data, st.Shape)
}

func (vb *VarBuilder) resolve(name string) string {
	name = strings.TrimSpace(name)

	switch {
	case vb.prefix == "":
		return name
	case name == "":
		return vb.prefix
	default:
		return vb.prefix + "." + name
	}
}

func sameShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

// params lists every learned tensor under its PyTorch state_dict name.
func (m *Model) params() paramList {
	var list paramList

	list.add("embedding.weight", &m.embedding, m.embedding.Shape()...)
	m.encoder.params(&list)
	m.decoder.params(&list)
	m.postnet.params(&list)

	return list
}

// ParamCount is the number of learned scalars.
func (m *Model) ParamCount() int {
	n := 0
	for _, p := range m.params() {
		n += (*p.ptr).ElemCount()
	}

	return n
}

// Tensors returns every learned tensor keyed by state_dict name.
func (m *Model) Tensors() map[string]*tensor.Tensor {
	out := make(map[string]*tensor.Tensor)
	for _, p := range m.params() {
		out[p.name] = *p.ptr
	}

	return out
}

// ErrMissingWeights is returned when a checkpoint lacks model parameters.
var ErrMissingWeights = errors.New("tacotron: checkpoint is missing parameters")

// LoadWeights replaces every parameter with the tensor of the same name in
// vb. Missing tensors and shape mismatches are errors.
func (m *Model) LoadWeights(vb *VarBuilder) error {
	var (
		errs    []error
		missing []string
	)

	for _, p := range m.params() {
		if !vb.Has(p.name) {
			missing = append(missing, vb.resolve(p.name))
			continue
		}

		t, err := vb.Tensor(p.name, p.shape...)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		*p.ptr = t
	}

	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("%w: %s", ErrMissingWeights, strings.Join(missing, ", ")))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("tacotron: load weights: %w", err)
	}

	return nil
}

// Save writes the weights and hyperparameters as a safetensors checkpoint.
func (m *Model) Save(path string) error {
	params := m.params()
	tensors := make([]safetensors.Tensor, 0, len(params))

	for _, p := range params {
		t := *p.ptr
		tensors = append(tensors, safetensors.Tensor{Name: p.name, Shape: t.Shape(), Data: t.RawData()})
	}

	sort.Slice(tensors, func(i, j int) bool { return tensors[i].Name < tensors[j].Name })

	md, err := m.hp.metadata()
	if err != nil {
		return err
	}

	if err := safetensors.WriteFile(path, tensors, md); err != nil {
		return fmt.Errorf("tacotron: save %s: %w", path, err)
	}

	return nil
}

// LoadOptions control checkpoint loading.
type LoadOptions struct {
	// HParams overrides the hyperparameters stored in the checkpoint.
	HParams *HParams
	// StripPrefix removes a prefix such as "module." from stored names.
	StripPrefix string
	// Scope reads parameters nested under a dotted path, e.g. "model".
	Scope string
	// Tune adjusts the resolved hyperparameters before the model is built.
	// Only settings that leave parameter shapes unchanged are safe to touch.
	Tune func(*HParams)
}

// Load reads a checkpoint written by Save or converted from a PyTorch
// state_dict. Hyperparameters come from the checkpoint metadata unless
// overridden, falling back to DefaultHParams.
func Load(path string, lo LoadOptions, opts ...Option) (*Model, error) {
	var so safetensors.StoreOptions
	if lo.StripPrefix != "" {
		so.KeyMapper = safetensors.StripPrefix(lo.StripPrefix)
	}

	store, err := safetensors.OpenStore(path, so)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	hp := DefaultHParams()

	switch {
	case lo.HParams != nil:
		hp = *lo.HParams
	default:
		stored, ok, err := HParamsFromMetadata(store.Metadata())
		if err != nil {
			return nil, err
		}

		if ok {
			hp = stored
		}
	}

	if lo.Tune != nil {
		lo.Tune(&hp)
	}

	m, err := New(hp, opts...)
	if err != nil {
		return nil, err
	}

	if err := m.LoadWeights(NewVarBuilder(store).Path(lo.Scope)); err != nil {
		return nil, err
	}

	return m, nil
}
