// Package llm provides language-model clients for rule synthesis and
// discovery-mode field extraction. Model output is always treated as
// untrusted data: proposals are raw strings for the synthesis guard, and
// field extractions are parsed against a strict schema.
package llm
