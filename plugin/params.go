package plugin

import (
	"github.com/janelia-flyem/tomoflow/tomo"
)

// Params are the settings of one plugin in a process list.
type Params struct {
	tomo.Config
}

// NewParams wraps a decoded parameter map.
func NewParams(m map[string]interface{}) Params {
	c := tomo.NewConfig()
	for k, v := range m {
		c.Set(k, v)
	}
	return Params{c}
}

func (p Params) Int(key string, def int) (int, error) {
	i, found, err := p.GetInt(key)
	if err != nil || !found {
		return def, err
	}
	return i, nil
}

func (p Params) Float(key string, def float64) (float64, error) {
	f, found, err := p.GetFloat(key)
	if err != nil || !found {
		return def, err
	}
	return f, nil
}

func (p Params) String(key string, def string) (string, error) {
	s, found, err := p.GetString(key)
	if err != nil || !found {
		return def, err
	}
	return s, nil
}

func (p Params) Bool(key string, def bool) (bool, error) {
	b, found, err := p.GetBool(key)
	if err != nil || !found {
		return def, err
	}
	return b, nil
}

func (p Params) Strings(key string, def []string) ([]string, error) {
	s, found, err := p.GetStrings(key)
	if err != nil || !found {
		return def, err
	}
	return s, nil
}
