package source

import (
	"fmt"
	"sort"

	"github.com/reoring/jsonbind/source/gojson"
	jsonsrc "github.com/reoring/jsonbind/source/json"
	"github.com/reoring/jsonbind/stream"
)

var drivers = map[string]func() stream.Driver{
	"json":   jsonsrc.Driver,
	"gojson": gojson.Driver,
}

// ByName returns the token driver registered under name ("json" or "gojson").
func ByName(name string) (stream.Driver, error) {
	if f, ok := drivers[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("source: unknown JSON driver %q (known: %v)", name, Names())
}

// Names lists the registered driver names in sorted order.
func Names() []string {
	out := make([]string, 0, len(drivers))
	for n := range drivers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
