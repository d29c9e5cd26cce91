// Package jsonbind binds arbitrary Go types to JSON without per-type glue
// code.
//
// For every type it meets, an Engine derives a converter once and caches it:
//
//   - A fixed chain of stages (null handling, runtime type dispatch, type
//     discriminators, views, property overrides) decorates the converter
//     picked by the terminal registry.
//   - Structs fall back to a bean descriptor introspected from exported
//     fields, GetX/IsX/SetX methods and registered creators, classified by
//     resolver chains that answer yes, no or unknown.
//   - Generic shapes are expanded against the embedding graph by package types.
//
// Typical usage:
//
//	e, err := jsonbind.NewBuilder().
//		Creator(NewPoint, jsonbind.Primary(), jsonbind.ParamNames("x", "y")).
//		WithStrict(true).
//		Build()
//	data, err := e.Marshal(p)
//	p2, err := jsonbind.Decode[Point](e, data)
//
// Layout: the cursor reader and streaming writer live in stream, token
// drivers under source/, read enforcement in internal/engine and the CLI
// under cmd/jsonbind.
package jsonbind
