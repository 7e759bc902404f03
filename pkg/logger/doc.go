// Package logger builds the structured slog logger shared by the gateway.
// Production environments log JSON; every other environment logs text.
package logger
