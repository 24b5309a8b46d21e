package codec

import "encoding/xml"

// Map targets are rejected by encoding/xml; XML payloads need a struct.
func decodeXML(raw []byte, target any) error {
	return xml.Unmarshal(raw, target)
}
