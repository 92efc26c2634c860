// Package material models the render state decoded from material files
// inside packs. A material is a flat bag of state the renderer consumes
// directly; this package only decodes and carries it.
package material

// BlendMode selects a blending preset. The numbering matches the
// blendType field in material files.
type BlendMode int

const (
	BlendSubtractive BlendMode = iota
	BlendAdditive
	BlendNormal
	BlendNone
	BlendPremultiplied
	BlendMultiplicative
	BlendAdditiveAlpha
	BlendMultiplicative2x
	BlendScreen
	BlendMin
	BlendMax
)

func (m BlendMode) String() string {
	switch m {
	case BlendSubtractive:
		return "subtractive"
	case BlendAdditive:
		return "additive"
	case BlendNormal:
		return "normal"
	case BlendNone:
		return "none"
	case BlendPremultiplied:
		return "premultiplied"
	case BlendMultiplicative:
		return "multiplicative"
	case BlendAdditiveAlpha:
		return "additive-alpha"
	case BlendMultiplicative2x:
		return "multiplicative-2x"
	case BlendScreen:
		return "screen"
	case BlendMin:
		return "min"
	case BlendMax:
		return "max"
	}
	return "unknown"
}

// BlendFactor names a source or destination blending factor.
type BlendFactor int

const (
	FactorZero BlendFactor = iota
	FactorOne
	FactorSrcColor
	FactorOneMinusSrcColor
	FactorDstColor
	FactorOneMinusDstColor
	FactorSrcAlpha
	FactorOneMinusSrcAlpha
	FactorDstAlpha
	FactorOneMinusDstAlpha
)

// BlendOp combines the weighted source and destination values.
type BlendOp int

const (
	OpAdd BlendOp = iota
	OpSubtract
	OpReverseSubtract
	OpMin
	OpMax
)

// CullFace selects which triangle faces are discarded.
type CullFace int

const (
	CullNone CullFace = iota
	CullBack
	CullFront
	CullFrontAndBack
)

// State is the flat render state of one material. The enumerated fields
// cover the states the renderer switches on; anything else in the file
// lands untyped in Params.
type State struct {
	Name string

	Blend     BlendMode
	SrcFactor BlendFactor
	DstFactor BlendFactor
	BlendOp   BlendOp

	DepthTest  bool
	DepthWrite bool
	Cull       CullFace

	Opacity   float64
	AlphaTest float64
	Diffuse   [3]float64
	Emissive  [3]float64

	Params map[string]interface{}
}

// blend factor presets, indexed by BlendMode
var blendPresets = [...]struct {
	src BlendFactor
	dst BlendFactor
	op  BlendOp
}{
	BlendSubtractive:      {FactorOne, FactorOne, OpReverseSubtract},
	BlendAdditive:         {FactorOne, FactorOne, OpAdd},
	BlendNormal:           {FactorSrcAlpha, FactorOneMinusSrcAlpha, OpAdd},
	BlendNone:             {FactorOne, FactorZero, OpAdd},
	BlendPremultiplied:    {FactorOne, FactorOneMinusSrcAlpha, OpAdd},
	BlendMultiplicative:   {FactorDstColor, FactorZero, OpAdd},
	BlendAdditiveAlpha:    {FactorSrcAlpha, FactorOne, OpAdd},
	BlendMultiplicative2x: {FactorDstColor, FactorSrcColor, OpAdd},
	BlendScreen:           {FactorOneMinusDstColor, FactorOne, OpAdd},
	BlendMin:              {FactorOne, FactorOne, OpMin},
	BlendMax:              {FactorOne, FactorOne, OpMax},
}

// SetBlendMode assigns the blend factor fields from the preset for m.
// Unknown modes fall back to BlendNone.
func (s *State) SetBlendMode(m BlendMode) {
	if m < 0 || int(m) >= len(blendPresets) {
		m = BlendNone
	}
	p := blendPresets[m]
	s.Blend = m
	s.SrcFactor = p.src
	s.DstFactor = p.dst
	s.BlendOp = p.op
}

// Default returns a material with renderer defaults: opaque, depth
// tested and written, back faces culled, white diffuse.
func Default() *State {
	s := &State{
		DepthTest:  true,
		DepthWrite: true,
		Cull:       CullBack,
		Opacity:    1,
		Diffuse:    [3]float64{1, 1, 1},
		Params:     make(map[string]interface{}),
	}
	s.SetBlendMode(BlendNone)
	return s
}
