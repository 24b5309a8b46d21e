package codec

import "github.com/bytedance/sonic"

func decodeJSON(raw []byte, target any) error {
	return sonic.Unmarshal(raw, target)
}
