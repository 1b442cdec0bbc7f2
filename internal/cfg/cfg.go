// Package cfg decodes per-driver option maps into typed structs.
//
// Driver sections in the TOML file ([authdb.drivers.gorm],
// [cache.drivers.valkey]) arrive as map[string]any; the selected
// driver decodes its own section at construction time.
package cfg

import (
	"github.com/mitchellh/mapstructure"
)

// Setter is implemented by option structs that carry defaults.
// ApplyDefaults runs after decoding, so it must only fill zero fields.
type Setter interface {
	ApplyDefaults()
}

// Decode decodes input into the struct pointed to by c, honoring
// mapstructure tags. WeaklyTypedInput is on because TOML integers
// arrive as int64 and driver options declare int.
func Decode(input map[string]any, c any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           c,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(input); err != nil {
		return err
	}

	if s, ok := c.(Setter); ok {
		s.ApplyDefaults()
	}
	return nil
}
