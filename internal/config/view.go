package config

import (
	"reflect"
	"strings"
	"time"
)

// sensitiveKeys are redacted in Map even when stored as plain strings.
var sensitiveKeys = map[string]bool{"api_key": true, "dsn": true}

// Map returns the configuration keyed by koanf paths with secrets
// redacted, for display. Embedded ",squash" sections are flattened.
func (c *Config) Map() map[string]any {
	return structMap(reflect.ValueOf(*c))
}

func structMap(v reflect.Value) map[string]any {
	out := make(map[string]any)
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		fv := v.Field(i)
		if opts == "squash" && fv.Kind() == reflect.Struct {
			for k, val := range structMap(fv) {
				out[k] = val
			}
			continue
		}
		if name == "" || name == "-" {
			continue
		}
		if sensitiveKeys[name] && !fv.IsZero() {
			out[name] = redacted
			continue
		}
		out[name] = value(fv)
	}
	return out
}

func value(v reflect.Value) any {
	switch x := v.Interface().(type) {
	case time.Duration:
		return x.String()
	case Duration:
		return x.Duration().String()
	case Secret:
		return x.String()
	}
	if v.Kind() == reflect.Struct {
		return structMap(v)
	}
	return v.Interface()
}
