package model

import "fmt"

// Pretrained is a frozen backbone described by its layer list.
type Pretrained struct {
	name   string
	input  []int
	layers []Layer
}

func (p *Pretrained) Name() string { return p.name }

func (p *Pretrained) InputShape() []int { return append([]int(nil), p.input...) }

func (p *Pretrained) Layers() []Layer { return append([]Layer(nil), p.layers...) }

// NewPretrained returns a backbone with the given layers. All layers are frozen.
func NewPretrained(name string, input []int, layers ...Layer) *Pretrained {
	p := &Pretrained{name: name, input: input}
	for _, l := range layers {
		l.Trainable = false
		p.layers = append(p.layers, l)
	}
	return p
}

// VGGFaceBackbone is the VGGFace2 (ResNet-50) feature extractor without top, with global average pooling.
func VGGFaceBackbone() *Pretrained {
	return NewPretrained("vggface2", InputShape,
		Layer{Name: "input_1", Kind: KindInput, Shape: InputShape},
		Layer{Name: "vggface_resnet50", Kind: KindBackbone},
		Layer{Name: "avg_pool", Kind: KindBackbone, Shape: []int{2048}},
	)
}

// FaceNetBackbone is the FaceNet (Inception-ResNet-v1) embedding network.
func FaceNetBackbone() *Pretrained {
	return NewPretrained("facenet", []int{160, 160, 3},
		Layer{Name: "input_1", Kind: KindInput, Shape: []int{160, 160, 3}},
		Layer{Name: "inception_resnet_v1", Kind: KindBackbone},
		Layer{Name: "Bottleneck_BatchNorm", Kind: KindBackbone, Shape: []int{128}},
	)
}

// VGGFace2 returns the VGGFace2 backbone topped with the default classification block.
func VGGFace2(dropoutRate float64, activation string) (*Model, error) {
	return AddClassificationBlock(VGGFaceBackbone(), BlockSpec{
		FCSizes:     FCSizes,
		Activation:  activation,
		DropoutRate: dropoutRate,
	})
}

// FaceNet returns the FaceNet backbone topped with a classification block of the given sizes.
// Without sizes the frozen backbone is returned as is.
func FaceNet(dropoutRate float64, activation string, fcSizes []int) (*Model, error) {
	base := FaceNetBackbone()
	if len(fcSizes) == 0 {
		return &Model{
			Name:   base.Name(),
			Input:  base.InputShape(),
			Output: base.layers[len(base.layers)-1].Name,
			Layers: base.Layers(),
		}, nil
	}
	return AddClassificationBlock(base, BlockSpec{
		FCSizes:     fcSizes,
		Activation:  activation,
		DropoutRate: dropoutRate,
	})
}

// LogisticRegression returns a single dense layer predicting nOutputs values from nFeatures inputs.
func LogisticRegression(nFeatures, nOutputs int, activation string) (*Model, error) {
	if nFeatures <= 0 || nOutputs <= 0 {
		return nil, fmt.Errorf("model: invalid logistic regression shape %d -> %d", nFeatures, nOutputs)
	}
	if activation == "" {
		activation = "elu"
	}
	m := &Model{Name: "logistic_regression", Input: []int{nFeatures}}
	m.add(Layer{Kind: KindDense, Units: nOutputs, Activation: activation})
	m.Output = m.Layers[0].Name
	return m, nil
}

// Build returns the named preset: "vggface2" or "facenet".
func Build(name string, spec BlockSpec) (*Model, error) {
	switch name {
	case "vggface2":
		return AddClassificationBlock(VGGFaceBackbone(), spec)
	case "facenet":
		return AddClassificationBlock(FaceNetBackbone(), spec)
	}
	return nil, fmt.Errorf("model: unknown backbone %q", name)
}
