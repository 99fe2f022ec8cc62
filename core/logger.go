package core

// Logger reports messages to the configured sinks.
// args may carry an error, a map of extra data and the acting user, in any order.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
