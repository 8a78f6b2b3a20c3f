package config

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"github.com/c360/switchboard/errors"
)

// templateFuncs are available to sensor files rendered with the template switch.
var templateFuncs = template.FuncMap{
	// env returns an environment variable, or the optional fallback when unset.
	"env": func(key string, fallback ...string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		if len(fallback) > 0 {
			return fallback[0]
		}
		return ""
	},
	// seq yields 1..n, or start..end when called with two arguments.
	"seq": func(bounds ...int) ([]int, error) {
		var start, end int
		switch len(bounds) {
		case 1:
			start, end = 1, bounds[0]
		case 2:
			start, end = bounds[0], bounds[1]
		default:
			return nil, fmt.Errorf("seq expects 1 or 2 arguments, got %d", len(bounds))
		}
		if end < start {
			return []int{}, nil
		}
		out := make([]int, 0, end-start+1)
		for i := start; i <= end; i++ {
			out = append(out, i)
		}
		return out, nil
	},
}

// RenderTemplate runs a sensor file through text/template before YAML decoding.
func RenderTemplate(data []byte) ([]byte, error) {
	tmpl, err := template.New("sensors").Funcs(templateFuncs).Option("missingkey=error").Parse(string(data))
	if err != nil {
		return nil, errors.WrapFatal(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"SensorsConfig", "RenderTemplate", "parse template")
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, nil); err != nil {
		return nil, errors.WrapFatal(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"SensorsConfig", "RenderTemplate", "execute template")
	}
	return buf.Bytes(), nil
}
