// Package structured turns Go struct types into JSON schemas and asks an
// llm.Provider for replies that decode into them.
//
// The schema is sent twice: as prompt instructions, which every model
// follows to some degree, and as a json_schema response format for
// gateways that enforce it. Replies are extracted leniently (code fences
// and surrounding prose are stripped) and validated before decoding.
//
//	plan, err := structured.Generate[QueryPlan](ctx, gen, model, prompt)
package structured
