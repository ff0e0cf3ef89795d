package validate

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/everstacklabs/compass/internal/catalog"
)

// Severity classifies validation issues.
type Severity int

const (
	SeverityError   Severity = iota // Blocks snapshots
	SeverityWarning                 // Reported but doesn't block
)

// Issue represents a single validation problem.
type Issue struct {
	Severity Severity
	Subject  string
	Field    string
	Message  string
}

func (i Issue) String() string {
	sev := "ERROR"
	if i.Severity == SeverityWarning {
		sev = "WARN"
	}
	return fmt.Sprintf("[%s] %s: %s: %s", sev, i.Subject, i.Field, i.Message)
}

// Result holds all validation issues.
type Result struct {
	Issues []Issue
}

// HasErrors returns true if there are any blocking errors.
func (r *Result) HasErrors() bool {
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only error-severity issues.
func (r *Result) Errors() []Issue {
	var errs []Issue
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			errs = append(errs, i)
		}
	}
	return errs
}

// Warnings returns only warning-severity issues.
func (r *Result) Warnings() []Issue {
	var warns []Issue
	for _, i := range r.Issues {
		if i.Severity == SeverityWarning {
			warns = append(warns, i)
		}
	}
	return warns
}

func (r *Result) add(sev Severity, subject, field, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{sev, subject, field, fmt.Sprintf(format, args...)})
}

// ValidateService checks one service and its endpoints.
func ValidateService(s catalog.Service) *Result {
	r := &Result{}
	subject := serviceSubject(s)

	if len(s.Endpoints) == 0 {
		r.add(SeverityWarning, subject, "endpoints", "service has no endpoints and can never be resolved")
	}

	seen := make(map[string]int)
	for i, ep := range s.Endpoints {
		epSubject := fmt.Sprintf("%s.endpoints[%d]", subject, i)

		if ep.URL == "" {
			r.add(SeverityError, epSubject, "url", "required field is empty")
		} else if u, err := url.Parse(ep.URL); err != nil || u.Scheme == "" || u.Host == "" {
			r.add(SeverityError, epSubject, "url", "%q is not an absolute URL", ep.URL)
		} else if ep.Interface == catalog.InterfacePublic && u.Scheme != "https" {
			r.add(SeverityWarning, epSubject, "url", "public endpoint %q is not served over https", ep.URL)
		}

		if !ep.Interface.Known() {
			r.add(SeverityError, epSubject, "interface", "unknown interface %q, expected one of: public, internal, admin", ep.Interface)
		}
		if ep.Region == "" {
			r.add(SeverityWarning, epSubject, "region", "endpoint has no region and matches no region filter")
		}

		key := strings.Join([]string{string(ep.Interface), ep.Region, ep.TenantID, ep.URL}, "\x00")
		if first, dup := seen[key]; dup {
			r.add(SeverityError, epSubject, "url", "duplicates endpoints[%d]; every lookup for it would be ambiguous", first)
		} else {
			seen[key] = i
		}
	}

	return r
}

// ValidateCatalog validates all services in a catalog.
func ValidateCatalog(cat *catalog.ServiceCatalog) *Result {
	r := &Result{}
	services := cat.Services()

	byType := make(map[string][]catalog.Service)
	for _, s := range services {
		byType[s.Type] = append(byType[s.Type], s)
		r.Issues = append(r.Issues, ValidateService(s).Issues...)
	}

	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	for _, t := range types {
		group := byType[t]
		if len(group) < 2 {
			continue
		}
		names := make(map[string]bool)
		for _, s := range group {
			if s.Name == "" || names[s.Name] {
				r.add(SeverityWarning, t, "name",
					"%d services share this type without distinct names; name-based selection cannot tell them apart", len(group))
				break
			}
			names[s.Name] = true
		}
	}

	if tok := cat.Token(); !tok.ExpiresAt.IsZero() && tok.ExpiresAt.Before(tok.IssuedAt) {
		r.add(SeverityWarning, "token", "expires", "token expires (%s) before it was issued (%s)",
			tok.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"), tok.IssuedAt.Format("2006-01-02T15:04:05Z07:00"))
	}

	return r
}

// FormatResult formats validation results for display.
func FormatResult(r *Result) string {
	if len(r.Issues) == 0 {
		return "Validation passed: no issues found."
	}

	var b strings.Builder
	errors := r.Errors()
	warnings := r.Warnings()

	if len(errors) > 0 {
		b.WriteString(fmt.Sprintf("Errors (%d):\n", len(errors)))
		for _, e := range errors {
			b.WriteString(fmt.Sprintf("  %s\n", e))
		}
	}

	if len(warnings) > 0 {
		b.WriteString(fmt.Sprintf("Warnings (%d):\n", len(warnings)))
		for _, w := range warnings {
			b.WriteString(fmt.Sprintf("  %s\n", w))
		}
	}

	return b.String()
}

func serviceSubject(s catalog.Service) string {
	if s.Name == "" {
		return s.Type
	}
	return s.Type + "/" + s.Name
}
