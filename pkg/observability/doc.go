/*
Package observability turns the engine's dialog hooks into reusable
observers. Combine fans one hook slot out to several consumers, NewLogging
feeds a slog.Logger, and Recorder captures stack movements for tests and
debugging. The engine accepts exactly one hook set, so hosts that want
metrics and logging at once wrap them with Combine.
*/
package observability
