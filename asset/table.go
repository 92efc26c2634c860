package asset

import (
	"io"
	"strconv"

	"github.com/antonholmquist/jason"
	"github.com/pkg/errors"
)

// An asset table is the JSON description of a set of assets, either a
// bare array of asset objects or an object with an "assets" array. Each
// asset object carries "id", "type", a url in "file.url" or "url", and a
// type specific "data" payload: bundles list their member ids in
// "data.assets", fonts carry their texture pages in "data.info.maps".
// Ids may be strings or numbers; numbers are used as their decimal form.

// ParseTable reads an asset table.
func ParseTable(rd io.Reader) ([]*Asset, error) {
	v, err := jason.NewValueFromReader(rd)
	if err != nil {
		return nil, errors.Wrap(err, "parsing asset table")
	}
	arr, err := v.Array()
	if err != nil {
		obj, err2 := v.Object()
		if err2 != nil {
			return nil, errors.New("asset table is neither an array nor an object")
		}
		arr, err = obj.GetValueArray("assets")
		if err != nil {
			return nil, errors.Wrap(err, "asset table has no assets list")
		}
	}
	var result []*Asset
	for _, av := range arr {
		obj, err := av.Object()
		if err != nil {
			return nil, errors.Wrap(err, "asset entry is not an object")
		}
		a, err := parseAsset(obj)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, nil
}

// LoadTable parses an asset table and adds every asset in it to the
// registry, returning how many were added.
func (r *Registry) LoadTable(rd io.Reader) (int, error) {
	assets, err := ParseTable(rd)
	if err != nil {
		return 0, err
	}
	for _, a := range assets {
		r.Add(a)
	}
	return len(assets), nil
}

// ParseAssetJSON reads a single asset object.
func ParseAssetJSON(rd io.Reader) (*Asset, error) {
	obj, err := jason.NewObjectFromReader(rd)
	if err != nil {
		return nil, errors.Wrap(err, "parsing asset")
	}
	return parseAsset(obj)
}

func parseAsset(o *jason.Object) (*Asset, error) {
	id, err := o.GetString("id")
	if err != nil {
		n, err2 := o.GetInt64("id")
		if err2 != nil {
			return nil, errors.New("asset has no id")
		}
		id = strconv.FormatInt(n, 10)
	}
	typ, err := o.GetString("type")
	if err != nil {
		return nil, errors.Errorf("asset %s has no type", id)
	}
	u, err := o.GetString("file", "url")
	if err != nil {
		u, _ = o.GetString("url")
	}
	a := &Asset{ID: id, Type: typ, URL: u}
	switch typ {
	case TypeBundle:
		a.Members, err = memberIDs(o)
		if err != nil {
			return nil, errors.Wrapf(err, "bundle asset %s", id)
		}
	case TypeFont:
		maps, err := o.GetObjectArray("data", "info", "maps")
		if err == nil {
			a.Pages = len(maps)
		}
	}
	return a, nil
}

// memberIDs pulls the member asset ids out of a bundle asset. A missing
// member list is not an error; the server can recover the list from the
// manifest database when the bundle was registered before.
func memberIDs(o *jason.Object) ([]string, error) {
	vals, err := o.GetValueArray("data", "assets")
	if err != nil {
		return nil, nil
	}
	var members []string
	for _, v := range vals {
		s, err := v.String()
		if err != nil {
			n, err2 := v.Int64()
			if err2 != nil {
				return nil, errors.New("member id is neither string nor number")
			}
			s = strconv.FormatInt(n, 10)
		}
		members = append(members, s)
	}
	return members, nil
}
