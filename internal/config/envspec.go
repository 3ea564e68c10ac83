package config

import (
	"reflect"
)

// EnvVar describes a single environment variable understood by swapd.
type EnvVar struct {
	Name        string
	FullName    string
	Type        string
	Default     string
	Description string
}

// EnvSpecs lists every supported environment variable, derived from the
// Config struct tags. The order matches the field order of Config.
func EnvSpecs() []EnvVar {
	t := reflect.TypeOf(Config{})
	specs := make([]EnvVar, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Tag.Get("mapstructure")
		if name == "" {
			continue
		}
		specs = append(specs, EnvVar{
			Name:        name,
			FullName:    "SWAPD_" + name,
			Type:        f.Type.String(),
			Default:     f.Tag.Get("envDefault"),
			Description: f.Tag.Get("envInfo"),
		})
	}
	return specs
}
