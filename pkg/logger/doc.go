// Package logger provides structured logging with configurable log levels.
// New builds the application-wide logger; NewChannel builds loggers for named
// output channels whose records carry only caller-supplied fields.
package logger
