// Package tools defines the tools the shopping assistant can call.
//
// Every tool describes its arguments with a JSON Schema reflected from a Go
// struct. The Registry validates arguments against that schema before
// running a tool and turns failures into error results for the model.
//
// Execution returns a tagged Outcome: a Result, or a Suspension when the
// tool needs a human decision first (see package approval). The calling
// session is passed explicitly in Call.SessionID.
package tools
