package multitable

import (
	"fmt"
	"strings"
)

// Severity grades a configuration issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one configuration problem, addressed by its JSON path.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// ValidatePipeline reports every problem in p rather than stopping at the
// first. kinds lists the registered storage backends.
func ValidatePipeline(p Pipeline, kinds []string) []Issue {
	var out []Issue
	add := func(sev Severity, path, format string, a ...any) {
		out = append(out, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	if strings.TrimSpace(p.Schema.Path) == "" {
		add(SeverityError, "schema.path", "required; run probe to generate the artifact")
	}

	switch kind := p.Storage.Kind; {
	case kind == "":
		add(SeverityError, "storage.kind", "required (one of %s)", strings.Join(kinds, "|"))
	case !contains(kinds, kind):
		add(SeverityError, "storage.kind", "unsupported %q (one of %s)", kind, strings.Join(kinds, "|"))
	}
	if strings.TrimSpace(p.Storage.DB.DSN) == "" {
		add(SeverityError, "storage.db.dsn", "required")
	}

	if p.Upstream.TimeoutSeconds < 0 {
		add(SeverityError, "upstream.timeout_seconds", "must be >= 0, got %d", p.Upstream.TimeoutSeconds)
	}
	if u := p.Upstream.BaseURL; u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		add(SeverityError, "upstream.base_url", "must be an http(s) URL, got %q", u)
	}

	if p.Job == "" {
		add(SeverityWarning, "job", "empty; using %q", DefaultJob)
	}
	return out
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ApplyEnv overrides config values from the environment: STATS_DSN replaces
// storage.db.dsn and STATSAPI_BASE_URL replaces upstream.base_url.
func ApplyEnv(p *Pipeline, getenv func(string) string) {
	if v := getenv("STATS_DSN"); v != "" {
		p.Storage.DB.DSN = v
	}
	if v := getenv("STATSAPI_BASE_URL"); v != "" {
		p.Upstream.BaseURL = v
	}
}

func contains(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}
