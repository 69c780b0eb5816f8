package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/vrtbridge/internal/core"
)

// DecodeOptions decodes a free-form options section into out, a pointer to
// a struct with mapstructure tags. Unknown keys are rejected and duration
// strings such as "5s" are accepted for time.Duration fields.
func DecodeOptions(section string, in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrConfigInvalid, section, err)
	}
	return nil
}
