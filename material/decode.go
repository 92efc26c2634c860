package material

import (
	"io"

	"github.com/antonholmquist/jason"
)

// known is the set of fields Decode lifts into typed State fields.
// Everything else goes to Params untouched.
var known = map[string]bool{
	"name":       true,
	"blendType":  true,
	"depthTest":  true,
	"depthWrite": true,
	"cull":       true,
	"opacity":    true,
	"alphaTest":  true,
	"diffuse":    true,
	"emissive":   true,
}

// Decode reads one material file. The state may sit at the top level or
// under a "data" wrapper. Missing fields keep their defaults; no field
// is required.
func Decode(rd io.Reader) (*State, error) {
	v, err := jason.NewObjectFromReader(rd)
	if err != nil {
		return nil, err
	}
	data, err := v.GetObject("data")
	if err != nil {
		data = v
	}

	s := Default()
	if name, err := v.GetString("name"); err == nil {
		s.Name = name
	} else if name, err := data.GetString("name"); err == nil {
		s.Name = name
	}
	if bt, err := data.GetInt64("blendType"); err == nil {
		s.SetBlendMode(BlendMode(bt))
	}
	if b, err := data.GetBoolean("depthTest"); err == nil {
		s.DepthTest = b
	}
	if b, err := data.GetBoolean("depthWrite"); err == nil {
		s.DepthWrite = b
	}
	if c, err := data.GetInt64("cull"); err == nil {
		s.Cull = CullFace(c)
	}
	if f, err := data.GetFloat64("opacity"); err == nil {
		s.Opacity = f
	}
	if f, err := data.GetFloat64("alphaTest"); err == nil {
		s.AlphaTest = f
	}
	if c, err := data.GetValueArray("diffuse"); err == nil {
		s.Diffuse = color3(c, s.Diffuse)
	}
	if c, err := data.GetValueArray("emissive"); err == nil {
		s.Emissive = color3(c, s.Emissive)
	}
	for key, value := range data.Map() {
		if known[key] {
			continue
		}
		s.Params[key] = value.Interface()
	}
	return s, nil
}

// color3 reads up to three channel values, keeping the fallback for
// anything missing or malformed.
func color3(vs []*jason.Value, fallback [3]float64) [3]float64 {
	out := fallback
	for i := 0; i < len(vs) && i < 3; i++ {
		f, err := vs[i].Float64()
		if err == nil {
			out[i] = f
		}
	}
	return out
}
