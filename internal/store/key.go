package store

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Key identifies one cached query result: an endpoint name plus the
// canonical signature of its arguments.
type Key struct {
	Endpoint string
	Args     string
}

// NewKey builds the key for endpoint called with args. Logically identical
// arguments produce identical keys regardless of map order or whitespace.
// nil args produce an empty signature.
func NewKey(endpoint string, args any) (Key, error) {
	sig, err := canonicalArgs(args)
	if err != nil {
		return Key{}, fmt.Errorf("store: key for %s: %w", endpoint, err)
	}
	return Key{Endpoint: endpoint, Args: sig}, nil
}

// MustKey is NewKey for arguments known to encode.
func MustKey(endpoint string, args any) Key {
	k, err := NewKey(endpoint, args)
	if err != nil {
		panic(err)
	}
	return k
}

// String returns "endpoint(args)".
func (k Key) String() string {
	return k.Endpoint + "(" + k.Args + ")"
}

// canonicalArgs round-trips args through a generic value so object keys come
// out sorted. Numbers keep their original text.
func canonicalArgs(args any) (string, error) {
	if args == nil {
		return "", nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	if string(raw) == "null" {
		return "", nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return "", err
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
