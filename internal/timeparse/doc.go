// Package timeparse turns free-form Chinese time phrases into reminder
// schedules.
//
// A Resolver runs a chain of stages and stops at the first success. The
// default chain is:
//
//  1. offline: the rule-based extractor in package extract
//  2. llm: a chat-completions fallback (package llm), only when configured
//
// Phrases starting with "每" are treated as recurrences by the fallback.
// All times are wall-clock times in time.Local.
package timeparse
