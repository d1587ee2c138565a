// Package masking sanitizes error messages before they cross a trust
// boundary: onto the event bus as a CommandFailed fact, into the admin
// websocket tail, or into a structured log line. It has no notion of
// per-server configuration; the same fixed pattern set applies
// everywhere, matching how the teacher's dispatcher always sanitizes
// before an error ever leaves the process that produced it.
package masking

import "log/slog"

// Service applies the built-in redaction patterns to arbitrary text.
// Created once at startup and shared; compiled patterns are immutable
// after construction so Sanitize is safe for concurrent use.
type Service struct {
	patterns map[string]*CompiledPattern
}

// NewService compiles the built-in pattern set. Invalid patterns are
// logged and skipped rather than failing construction.
func NewService() *Service {
	patterns := compileBuiltinPatterns()
	slog.Info("masking service initialized", "patterns", len(patterns))
	return &Service{patterns: patterns}
}

// Sanitize runs every compiled pattern over msg in a fixed order and
// returns the redacted result. Safe to call with empty input.
func (s *Service) Sanitize(msg string) string {
	if msg == "" {
		return msg
	}
	out := msg
	for _, def := range builtinPatterns {
		cp, ok := s.patterns[def.name]
		if !ok {
			continue
		}
		out = cp.Regex.ReplaceAllString(out, cp.Replacement)
	}
	return out
}

// SanitizeFunc adapts Sanitize to the func(string) string shape the
// Dispatcher's WithSanitizer option expects.
func (s *Service) SanitizeFunc() func(string) string {
	return s.Sanitize
}
