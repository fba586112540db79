package detection

import (
	"fmt"
	"math"
	"os"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/chazu/obbeval/pkg/obb"
)

// Field names as they appear in records.
const (
	contourKey  = "contour"
	centerKey   = "center3D"
	rotationKey = "rotation3D"
	sizeKey     = "size3D"
	objectsKey  = "objects"
)

// Alternate keys, in order of preference.
var (
	idKeys    = []string{"id", "instance_token", "sample_token"}
	labelKeys = []string{"label", "detection_name", "category"}
	scoreKeys = []string{"score", "detection_score"}
)

var objectAxes = [3]string{"x", "y", "z"}
var arrayAxes = [3]string{"0", "1", "2"}

// ParseRecord parses a single record of the given kind.
func ParseRecord(data []byte, kind Kind) (Instance, error) {
	if !gjson.ValidBytes(data) {
		return Instance{}, &InputError{Reason: "invalid JSON"}
	}
	return parseRecord(gjson.ParseBytes(data), kind)
}

// ParseInstances parses a file body holding one record, a JSON array of
// records, or an object with an "objects" array. Records without an id are
// named after their kind and position, e.g. "pred-3".
func ParseInstances(data []byte, kind Kind) ([]Instance, error) {
	if !gjson.ValidBytes(data) {
		return nil, &InputError{Reason: "invalid JSON"}
	}
	root := gjson.ParseBytes(data)

	var records []gjson.Result
	switch {
	case root.IsObject() && root.Get(objectsKey).IsArray():
		records = root.Get(objectsKey).Array()
	case root.IsArray():
		records = root.Array()
	case root.IsObject():
		records = []gjson.Result{root}
	default:
		return nil, &InputError{Reason: fmt.Sprintf("expected an object or array, got %s", root.Type)}
	}

	out := make([]Instance, 0, len(records))
	for i, rec := range records {
		in, err := parseRecord(rec, kind)
		if err != nil {
			return nil, errors.Wrapf(err, "%s record %d", kind, i)
		}
		if in.ID == "" {
			in.ID = fmt.Sprintf("%s-%d", kind, i)
		}
		out = append(out, in)
	}
	return out, nil
}

// LoadFile reads and parses a record file.
func LoadFile(path string, kind Kind) ([]Instance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "detection: read %s", path)
	}
	instances, err := ParseInstances(data, kind)
	if err != nil {
		return nil, errors.Wrapf(err, "detection: %s", path)
	}
	return instances, nil
}

func parseRecord(rec gjson.Result, kind Kind) (Instance, error) {
	if !rec.IsObject() {
		return Instance{}, &InputError{Reason: fmt.Sprintf("record is %s, want object", rec.Type)}
	}

	prefix := ""
	if kind == GroundTruth {
		prefix = contourKey + "."
		if !rec.Get(contourKey).IsObject() {
			return Instance{}, &InputError{Field: contourKey, Reason: "missing"}
		}
	}

	var (
		in  Instance
		err error
	)
	if in.Pose.Center, err = readVec(rec, prefix+centerKey); err != nil {
		return Instance{}, err
	}
	if in.Pose.Rotation, err = readVec(rec, prefix+rotationKey); err != nil {
		return Instance{}, err
	}
	if in.Pose.Size, err = readVec(rec, prefix+sizeKey); err != nil {
		return Instance{}, err
	}
	for i, s := range [3]float64{in.Pose.Size.X, in.Pose.Size.Y, in.Pose.Size.Z} {
		if s < 0 {
			field := prefix + sizeKey + "." + objectAxes[i]
			return Instance{}, &InputError{Field: field, Reason: fmt.Sprintf("extent is %v", s), Err: obb.ErrNegativeSize}
		}
	}

	if r := first(rec, idKeys); r.Exists() {
		in.ID = r.String()
	}
	if r := first(rec, labelKeys); r.Exists() {
		in.Label = r.String()
	}
	if r := first(rec, scoreKeys); r.Exists() {
		if r.Type != gjson.Number {
			return Instance{}, &InputError{Field: "score", Reason: fmt.Sprintf("not a number: %s", r.Raw)}
		}
		in.Score = r.Float()
	}
	return in, nil
}

// readVec reads a vector given either as {x,y,z} or as [x,y,z].
func readVec(rec gjson.Result, path string) (v3.Vec, error) {
	r := rec.Get(path)
	if !r.Exists() {
		return v3.Vec{}, &InputError{Field: path, Reason: "missing"}
	}

	keys, names := objectAxes, objectAxes
	switch {
	case r.IsArray():
		if n := len(r.Array()); n != 3 {
			return v3.Vec{}, &InputError{Field: path, Reason: fmt.Sprintf("has %d components, want 3", n)}
		}
		keys = arrayAxes
	case !r.IsObject():
		return v3.Vec{}, &InputError{Field: path, Reason: fmt.Sprintf("not a vector: %s", r.Raw)}
	}

	var c [3]float64
	for i := range c {
		field := path + "." + names[i]
		v := r.Get(keys[i])
		if !v.Exists() {
			return v3.Vec{}, &InputError{Field: field, Reason: "missing"}
		}
		if v.Type != gjson.Number {
			return v3.Vec{}, &InputError{Field: field, Reason: fmt.Sprintf("not a number: %s", v.Raw)}
		}
		c[i] = v.Float()
		if math.IsInf(c[i], 0) || math.IsNaN(c[i]) {
			return v3.Vec{}, &InputError{Field: field, Reason: fmt.Sprintf("out of range: %s", v.Raw), Err: obb.ErrNonFinite}
		}
	}
	return v3.Vec{X: c[0], Y: c[1], Z: c[2]}, nil
}

// first returns the first of keys present in rec.
func first(rec gjson.Result, keys []string) gjson.Result {
	for _, k := range keys {
		if r := rec.Get(k); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}
