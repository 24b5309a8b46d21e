package codec

import (
	"bytes"

	"github.com/go-viper/mapstructure/v2"
	"github.com/subosito/gotenv"
)

func decodeEnv(raw []byte, target any) error {
	values, err := gotenv.StrictParse(bytes.NewReader(raw))
	if err != nil {
		return err
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "env",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}

	return decoder.Decode(map[string]string(values))
}
