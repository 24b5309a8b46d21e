package codec

import toml "github.com/pelletier/go-toml/v2"

func decodeTOML(raw []byte, target any) error {
	return toml.Unmarshal(raw, target)
}
