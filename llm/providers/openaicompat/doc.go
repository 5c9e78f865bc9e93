// Package openaicompat implements llm.Provider for OpenAI-compatible chat
// completion APIs, with OpenRouter as the default gateway.
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    APIKey:       cfg.LLM.APIKey,
//	    DefaultModel: "google/gemini-2.0-flash-001",
//	}, logger)
//
// Structured output requests set llm.ChatRequest.ResponseFormat, which is
// sent as the response_format json_schema member.
package openaicompat
