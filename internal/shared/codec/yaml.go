package codec

import "gopkg.in/yaml.v3"

func decodeYAML(raw []byte, target any) error {
	return yaml.Unmarshal(raw, target)
}
