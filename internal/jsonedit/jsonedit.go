// Package jsonedit builds pure update functions over raw JSON query results.
//
// Results are either a single entity object or a list envelope
// ({"items": [...]} or the legacy {"message": [...]}, or a bare array).
// Entities are matched on their "_id" field. Inputs are never modified.
package jsonedit

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// IDField is the entity identifier field.
const IDField = "_id"

// Edit transforms one entity object.
type Edit func(obj []byte) ([]byte, error)

// Entity returns an update that applies edits to the entity with the given
// id, whether the result is that entity or a list containing it. Results
// without the entity are left unchanged (nil), and so is every result when
// id is empty.
func Entity(id string, edits ...Edit) func(json.RawMessage) (json.RawMessage, error) {
	return func(prior json.RawMessage) (json.RawMessage, error) {
		if id == "" {
			return nil, nil
		}
		root := gjson.ParseBytes(prior)
		if root.IsObject() && matches(root, id) {
			return apply(slices.Clone(prior), edits)
		}

		prefix, list, ok := findList(root)
		if !ok {
			return nil, nil
		}
		i, item := indexOf(list, id)
		if i < 0 {
			return nil, nil
		}
		next, err := apply([]byte(item.Raw), edits)
		if err != nil {
			return nil, err
		}
		out, err := sjson.SetRawBytes(prior, prefix+strconv.Itoa(i), next)
		if err != nil {
			return nil, fmt.Errorf("jsonedit: replace %s: %w", id, err)
		}
		return out, nil
	}
}

// Remove returns an update that drops the entity with the given id from a
// list result. Single-entity results are left unchanged.
func Remove(id string) func(json.RawMessage) (json.RawMessage, error) {
	return func(prior json.RawMessage) (json.RawMessage, error) {
		if id == "" {
			return nil, nil
		}
		prefix, list, ok := findList(gjson.ParseBytes(prior))
		if !ok {
			return nil, nil
		}
		i, _ := indexOf(list, id)
		if i < 0 {
			return nil, nil
		}
		out, err := sjson.DeleteBytes(prior, prefix+strconv.Itoa(i))
		if err != nil {
			return nil, fmt.Errorf("jsonedit: remove %s: %w", id, err)
		}
		return out, nil
	}
}

// AddInt adds delta to an integer field, clamping the result at zero.
// A missing field counts as zero.
func AddInt(field string, delta int) Edit {
	return func(obj []byte) ([]byte, error) {
		n := gjson.GetBytes(obj, field).Int() + int64(delta)
		n = max(n, 0)
		return sjson.SetBytes(obj, field, n)
	}
}

// Set assigns value to field.
func Set(field string, value any) Edit {
	return func(obj []byte) ([]byte, error) {
		return sjson.SetBytes(obj, field, value)
	}
}

// SetAll assigns every field in values, in key order.
func SetAll(values map[string]any) Edit {
	return func(obj []byte) ([]byte, error) {
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		var err error
		for _, k := range keys {
			if obj, err = sjson.SetBytes(obj, k, values[k]); err != nil {
				return nil, err
			}
		}
		return obj, nil
	}
}

// IDs returns the entity ids in a list or single-entity result, in order.
func IDs(data []byte) []string {
	root := gjson.ParseBytes(data)
	_, list, ok := findList(root)
	if !ok {
		if id := root.Get(IDField); root.IsObject() && id.Exists() {
			return []string{id.String()}
		}
		return nil
	}
	var ids []string
	list.ForEach(func(_, v gjson.Result) bool {
		if id := v.Get(IDField); id.Exists() {
			ids = append(ids, id.String())
		}
		return true
	})
	return ids
}

func findList(root gjson.Result) (prefix string, list gjson.Result, ok bool) {
	if root.IsArray() {
		return "", root, true
	}
	if !root.IsObject() {
		return "", gjson.Result{}, false
	}
	for _, p := range [...]string{"items", "message"} {
		if r := root.Get(p); r.IsArray() {
			return p + ".", r, true
		}
	}
	return "", gjson.Result{}, false
}

func indexOf(list gjson.Result, id string) (int, gjson.Result) {
	idx, i := -1, 0
	var found gjson.Result
	list.ForEach(func(_, v gjson.Result) bool {
		if matches(v, id) {
			idx, found = i, v
			return false
		}
		i++
		return true
	})
	return idx, found
}

// matches reports whether obj carries the identifier id.
func matches(obj gjson.Result, id string) bool {
	v := obj.Get(IDField)
	return v.Exists() && v.String() == id
}

func apply(obj []byte, edits []Edit) (json.RawMessage, error) {
	var err error
	for _, e := range edits {
		if obj, err = e(obj); err != nil {
			return nil, fmt.Errorf("jsonedit: %w", err)
		}
	}
	return obj, nil
}
