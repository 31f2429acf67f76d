package decode

import (
	"github.com/mitchellh/mapstructure"
)

// Map decodes a loosely-typed frame payload into a typed request struct.
// Unknown keys are ignored; type mismatches surface as an error rather
// than a zero value.
func Map[T any](in map[string]any) (*T, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(in); err != nil {
		return nil, err
	}
	return &out, nil
}
