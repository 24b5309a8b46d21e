package codec

import (
	"gopkg.in/ini.v1"
)

// decodeINI maps the default section onto top-level fields and every named
// section onto the struct field tagged `ini:"<section>"`. A *map[string]any
// target receives default keys at the top level and one nested map per section.
func decodeINI(raw []byte, target any) error {
	file, err := ini.LoadSources(ini.LoadOptions{}, raw)
	if err != nil {
		return err
	}

	if m, ok := target.(*map[string]any); ok {
		*m = iniToMap(file)
		return nil
	}

	return file.MapTo(target)
}

func iniToMap(file *ini.File) map[string]any {
	out := make(map[string]any)
	for _, section := range file.Sections() {
		if section.Name() == ini.DefaultSection {
			for _, key := range section.Keys() {
				out[key.Name()] = key.Value()
			}
			continue
		}

		values := make(map[string]any, len(section.Keys()))
		for _, key := range section.Keys() {
			values[key.Name()] = key.Value()
		}
		out[section.Name()] = values
	}
	return out
}
