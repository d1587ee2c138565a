package masking

import (
	"log/slog"
	"regexp"
)

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// patternDef is the source form of a built-in pattern, compiled once at
// Service construction time.
type patternDef struct {
	name        string
	pattern     string
	replacement string
	description string
}

// builtinPatterns is the fixed set of redactions applied wherever
// Sanitize is called; in this module that is the Dispatcher's
// CommandFailed.SanitizedMessage (wired via SanitizeFunc). Unlike the
// teacher's per-MCP-server masking config, there is nothing here to
// configure per caller.
var builtinPatterns = []patternDef{
	{
		name:        "database_url",
		pattern:     `(?i)(postgres(?:ql)?|sqlite)://[^\s"']+`,
		replacement: "[REDACTED_DATABASE_URL]",
		description: "Postgres/SQLite connection strings embed credentials in the URL",
	},
	{
		name:        "url_credentials",
		pattern:     `(?i)://[^\s/"':@]+:[^\s/"'@]+@`,
		replacement: "://[REDACTED]@",
		description: "user:password@host form embedded in any URL",
	},
	{
		name:        "bearer_token",
		pattern:     `(?i)bearer\s+[A-Za-z0-9._~+/-]+=*`,
		replacement: "Bearer [REDACTED_TOKEN]",
		description: "Authorization: Bearer <token> headers surfaced in transport errors",
	},
	{
		name:        "api_key",
		pattern:     `(?i)(api[_-]?key|x-api-key)["']?\s*[:=]\s*["']?[A-Za-z0-9._-]{12,}`,
		replacement: "$1=[REDACTED_API_KEY]",
		description: "LLM provider and webhook API keys passed via config or headers",
	},
	{
		name:        "password_field",
		pattern:     `(?i)(password|passwd|pwd)["']?\s*[:=]\s*["']?[^\s"',}]{3,}`,
		replacement: "$1=[REDACTED_PASSWORD]",
		description: "password=... pairs in connection strings or structured errors",
	},
	{
		name:        "jwt",
		pattern:     `\beyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`,
		replacement: "[REDACTED_JWT]",
		description: "Base64url-encoded JWTs (header always starts eyJ)",
	},
	{
		name:        "aws_access_key",
		pattern:     `\bAKIA[0-9A-Z]{16}\b`,
		replacement: "[REDACTED_AWS_KEY]",
		description: "AWS access key IDs",
	},
	{
		name:        "private_key_block",
		pattern:     `-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`,
		replacement: "[REDACTED_PRIVATE_KEY]",
		description: "PEM-encoded private key blocks",
	},
}

func compileBuiltinPatterns() map[string]*CompiledPattern {
	compiled := make(map[string]*CompiledPattern, len(builtinPatterns))
	for _, def := range builtinPatterns {
		re, err := regexp.Compile(def.pattern)
		if err != nil {
			slog.Error("masking: built-in pattern failed to compile, skipping",
				"pattern", def.name, "error", err)
			continue
		}
		compiled[def.name] = &CompiledPattern{
			Name:        def.name,
			Regex:       re,
			Replacement: def.replacement,
			Description: def.description,
		}
	}
	return compiled
}
