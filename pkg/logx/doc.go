// Package logx is remindbot's logging layer on top of zerolog.
//
// Components take a Logger by value and tag it with comp=<name> through
// With. Loggers derived from a Service pick up sink and level changes made by
// Service.Apply when the config file is reloaded. The console sink prints a
// millisecond timestamp and file:line; the file sink writes JSON lines.
package logx
