package registry

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DecodeArgs decodes a tool-call argument map into a typed struct. It is
// weakly typed on purpose: models frequently send numbers as strings and
// vice versa.
func DecodeArgs(args map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build argument decoder: %w", err)
	}
	if err := decoder.Decode(args); err != nil {
		return fmt.Errorf("invalid tool arguments: %w", err)
	}
	return nil
}
