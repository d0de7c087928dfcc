// Package model assembles transfer learning architectures on top of frozen face embedding backbones.
// It only describes the layer graph; weights and training are left to the consumer of the description.
package model

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v2"
)

// FCSizes are the default widths of the classification block.
var FCSizes = []int{4096, 256, 2}

// InputShape is the input tensor shape expected by the face backbones.
var InputShape = []int{224, 224, 3}

// Layer kinds.
const (
	KindInput      = "input"
	KindBackbone   = "backbone"
	KindFlatten    = "flatten"
	KindDense      = "dense"
	KindActivation = "activation"
	KindDropout    = "dropout"
)

// hiddenActivation is used between the hidden dense layers of the classification block.
const hiddenActivation = "relu"

// Layer is a single node of a sequential layer graph.
type Layer struct {
	Name       string  `yaml:"name"`
	Kind       string  `yaml:"kind"`
	Units      int     `yaml:"units,omitempty"`
	Activation string  `yaml:"activation,omitempty"`
	Rate       float64 `yaml:"rate,omitempty"`
	Shape      []int   `yaml:"shape,omitempty"`
	Trainable  bool    `yaml:"trainable"`
}

// Backbone is a pretrained feature extractor with named layers.
type Backbone interface {
	Name() string
	InputShape() []int
	Layers() []Layer
}

// Model is the layer graph going from the backbone input to the classifier output.
type Model struct {
	Name   string  `yaml:"name"`
	Input  []int   `yaml:"input"`
	Output string  `yaml:"output"`
	Layers []Layer `yaml:"layers"`
}

// Trainable returns the layers updated during training.
func (m *Model) Trainable() []Layer {
	var res []Layer
	for _, l := range m.Layers {
		if l.Trainable {
			res = append(res, l)
		}
	}
	return res
}

// WriteYAML writes the model description.
func (m *Model) WriteYAML(w io.Writer) error {
	out, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

// BlockSpec describes the classification block added on top of a backbone.
type BlockSpec struct {
	// FCSizes are the widths of the dense layers; the last one is the output layer.
	FCSizes []int
	// Activation is the name of the output activation.
	Activation string
	// DropoutRate is applied after every hidden activation.
	DropoutRate float64
	// LastLayerName selects the backbone layer to build on. The final layer is used if empty.
	LastLayerName string
}

// Validate checks the block parameters.
func (s BlockSpec) Validate() error {
	if len(s.FCSizes) == 0 {
		return errors.New("model: at least one fully-connected layer size is required")
	}
	for _, n := range s.FCSizes {
		if n <= 0 {
			return fmt.Errorf("model: invalid layer size %d", n)
		}
	}
	if s.Activation == "" {
		return errors.New("model: output activation is required")
	}
	if s.DropoutRate < 0 || s.DropoutRate >= 1 {
		return fmt.Errorf("model: dropout rate must be in [0, 1), got %v", s.DropoutRate)
	}
	return nil
}

// AddClassificationBlock builds a new model from the frozen base by flattening the output of the
// selected layer and appending dense, activation and dropout layers for every hidden width.
// The last width gets a dense layer and the output activation, without dropout.
func AddClassificationBlock(base Backbone, spec BlockSpec) (*Model, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	layers := base.Layers()
	if len(layers) == 0 {
		return nil, fmt.Errorf("model: backbone %s has no layers", base.Name())
	}

	last := len(layers) - 1
	if spec.LastLayerName != "" {
		last = -1
		for i, l := range layers {
			if l.Name == spec.LastLayerName {
				last = i
				break
			}
		}
		if last < 0 {
			return nil, fmt.Errorf("model: no such layer: %s", spec.LastLayerName)
		}
	}

	m := &Model{
		Name:  base.Name(),
		Input: base.InputShape(),
	}

	for _, l := range layers[:last+1] {
		l.Trainable = false
		m.Layers = append(m.Layers, l)
	}

	m.add(Layer{Name: "flatten", Kind: KindFlatten})

	hidden := spec.FCSizes[:len(spec.FCSizes)-1]
	for _, units := range hidden {
		m.add(Layer{Kind: KindDense, Units: units})
		m.add(Layer{Kind: KindActivation, Activation: hiddenActivation})
		m.add(Layer{Kind: KindDropout, Rate: spec.DropoutRate})
	}

	m.add(Layer{Kind: KindDense, Units: spec.FCSizes[len(spec.FCSizes)-1]})
	m.add(Layer{
		Name:       "activation/" + spec.Activation,
		Kind:       KindActivation,
		Activation: spec.Activation,
	})
	m.Output = m.Layers[len(m.Layers)-1].Name

	return m, nil
}

// add appends a trainable layer, naming it after its kind when no name is set.
func (m *Model) add(l Layer) {
	if l.Name == "" {
		n := 0
		for _, prev := range m.Layers {
			if prev.Kind == l.Kind {
				n++
			}
		}
		l.Name = fmt.Sprintf("%s_%d", l.Kind, n+1)
	}
	l.Trainable = true
	m.Layers = append(m.Layers, l)
}
