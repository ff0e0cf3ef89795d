package diff

import (
	"fmt"
	"strings"
)

// RenderDiffSummary renders a plain-text summary for the terminal.
func RenderDiffSummary(cs *ChangeSet) string {
	if !cs.HasChanges() {
		return fmt.Sprintf("No changes (%d endpoints unchanged).", cs.Unchanged)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d added, %d removed, %d changed, %d unchanged\n",
		len(cs.Added), len(cs.Removed), len(cs.Changed), cs.Unchanged)

	for _, t := range cs.AddedServices {
		fmt.Fprintf(&b, "  + service %s\n", t)
	}
	for _, t := range cs.RemovedServices {
		fmt.Fprintf(&b, "  - service %s\n", t)
	}
	for _, c := range cs.Added {
		fmt.Fprintf(&b, "  + %s %s\n", c.Key, c.NewURL)
	}
	for _, c := range cs.Removed {
		fmt.Fprintf(&b, "  - %s %s\n", c.Key, c.OldURL)
	}
	for _, c := range cs.Changed {
		fmt.Fprintf(&b, "  ~ %s %s -> %s\n", c.Key, c.OldURL, c.NewURL)
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderPRBody renders the markdown body of a drift PR.
func RenderPRBody(cs *ChangeSet) string {
	var b strings.Builder

	b.WriteString("## Service catalog drift\n\n")
	fmt.Fprintf(&b, "**%d** added, **%d** removed, **%d** changed, **%d** unchanged endpoints.\n\n",
		len(cs.Added), len(cs.Removed), len(cs.Changed), cs.Unchanged)

	if cs.IsDestructive() {
		b.WriteString("> **Warning:** endpoints were removed. Clients resolving them will fail with not found.\n\n")
	}

	if len(cs.AddedServices) > 0 || len(cs.RemovedServices) > 0 {
		b.WriteString("### Service types\n\n")
		for _, t := range cs.AddedServices {
			fmt.Fprintf(&b, "- added `%s`\n", t)
		}
		for _, t := range cs.RemovedServices {
			fmt.Fprintf(&b, "- removed `%s`\n", t)
		}
		b.WriteString("\n")
	}

	writeTable(&b, "Added", cs.Added, func(c EndpointChange) string { return "`" + c.NewURL + "`" })
	writeTable(&b, "Removed", cs.Removed, func(c EndpointChange) string { return "`" + c.OldURL + "`" })
	writeTable(&b, "Changed", cs.Changed, func(c EndpointChange) string {
		return fmt.Sprintf("`%s` → `%s`", c.OldURL, c.NewURL)
	})

	return b.String()
}

func writeTable(b *strings.Builder, title string, changes []EndpointChange, url func(EndpointChange) string) {
	if len(changes) == 0 {
		return
	}
	fmt.Fprintf(b, "### %s\n\n", title)
	b.WriteString("| Service | Interface | Region | Tenant | URL |\n")
	b.WriteString("|---------|-----------|--------|--------|-----|\n")
	for _, c := range changes {
		svc := c.Key.ServiceType
		if c.Key.ServiceName != "" {
			svc += " (" + c.Key.ServiceName + ")"
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s |\n",
			svc, c.Key.Interface, orDash(c.Key.Region), orDash(c.Key.TenantID), url(c))
	}
	b.WriteString("\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
