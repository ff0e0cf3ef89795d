package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/everstacklabs/compass/internal/catalog"
	"github.com/everstacklabs/compass/internal/config"
	"github.com/everstacklabs/compass/internal/diff"
	"github.com/everstacklabs/compass/internal/resolve"
	"github.com/everstacklabs/compass/internal/source"
	"github.com/everstacklabs/compass/internal/validate"
)

// ExitCode constants for CLI.
const (
	ExitSuccess   = 0
	ExitFailure   = 1
	ExitChanges   = 2 // Changes detected (diff mode)
	ExitNotFound  = 3 // No endpoint matched
	ExitAmbiguous = 4 // Several endpoints matched
)

// ExitCodeFor maps an error returned by a command to its exit code.
func ExitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, resolve.ErrEndpointNotFound):
		return ExitNotFound
	case errors.Is(err, resolve.ErrAmbiguousEndpoints):
		return ExitAmbiguous
	default:
		return ExitFailure
	}
}

// Pipeline snapshots a live catalog and tracks its drift.
type Pipeline struct {
	cfg *config.Config
	src source.Source
}

// New creates a new Pipeline.
func New(cfg *config.Config, src source.Source) *Pipeline {
	return &Pipeline{cfg: cfg, src: src}
}

// SnapshotResult holds the outcome of one snapshot run.
type SnapshotResult struct {
	ChangeSet  *diff.ChangeSet
	Validation *validate.Result
	Written    []catalog.WriteResult
	Version    string
	PRNumber   int
	PRDraft    bool
	Skipped    bool
	SkipReason string
}

// Diff fetches the live catalog and compares it with the snapshot on disk
// without writing anything.
func (p *Pipeline) Diff(ctx context.Context) (*diff.ChangeSet, error) {
	_, cs, err := p.fetchAndDiff(ctx)
	return cs, err
}

// Snapshot runs the full workflow: fetch, validate, diff, write, and open
// a PR when GitHub is configured.
func (p *Pipeline) Snapshot(ctx context.Context) (*SnapshotResult, error) {
	result := &SnapshotResult{}

	// 1. Fetch + diff
	cat, cs, err := p.fetchAndDiff(ctx)
	if err != nil {
		return nil, err
	}
	result.ChangeSet = cs

	// 2. Validate
	result.Validation = validate.ValidateCatalog(cat)
	for _, w := range result.Validation.Warnings() {
		slog.Warn("catalog lint", "issue", w.String())
	}
	if result.Validation.HasErrors() {
		return result, fmt.Errorf("validation failed:\n%s", validate.FormatResult(result.Validation))
	}

	if !cs.HasChanges() {
		slog.Info("no changes detected", "source", p.src.Name())
		result.Skipped = true
		result.SkipReason = "no changes"
		return result, nil
	}

	// 3. Risk assessment
	draft, reason := assessRisk(cs)
	result.PRDraft = draft
	if draft {
		slog.Warn("changes need review", "reason", reason)
	}

	if p.cfg.Snapshot.DryRun {
		slog.Info("dry run, would write snapshot", "changes", cs.TotalChanged(), "draft", draft)
		return result, nil
	}

	// 4. Write services and manifest
	writer := catalog.NewWriter(p.cfg.Snapshot.Path)
	written, err := writer.WriteCatalog(cat)
	if err != nil {
		return result, fmt.Errorf("writing snapshot: %w", err)
	}
	result.Written = written

	if err := catalog.GenerateManifest(p.cfg.Snapshot.Path); err != nil {
		return result, fmt.Errorf("generating manifest: %w", err)
	}

	// 5. Bump version
	version, err := p.bumpVersion(cs)
	if err != nil {
		return result, fmt.Errorf("bumping version: %w", err)
	}
	result.Version = version

	// 6. Git + PR (if GitHub is configured)
	if p.cfg.GitHub.Token != "" {
		prNum, err := p.createPR(ctx, cs, draft)
		if err != nil {
			return result, fmt.Errorf("creating PR: %w", err)
		}
		result.PRNumber = prNum
	}

	return result, nil
}

func (p *Pipeline) fetchAndDiff(ctx context.Context) (*catalog.ServiceCatalog, *diff.ChangeSet, error) {
	cat, err := p.src.Fetch(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching catalog from %s: %w", p.src.Name(), err)
	}
	slog.Info("catalog fetched", "source", p.src.Name(), "services", cat.Len())

	prev, err := catalog.LoadSnapshot(p.cfg.Snapshot.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading snapshot: %w", err)
	}

	return cat, diff.Compute(prev, cat), nil
}

const initialVersion = "0.1.0"

// bumpVersion updates version.txt in the snapshot, creating it on the
// first run.
func (p *Pipeline) bumpVersion(cs *diff.ChangeSet) (string, error) {
	versionPath := filepath.Join(p.cfg.Snapshot.Path, "version.txt")
	data, err := os.ReadFile(versionPath)
	var version string
	switch {
	case errors.Is(err, os.ErrNotExist):
		version = initialVersion
	case err != nil:
		return "", err
	default:
		version, err = bumpSemver(strings.TrimSpace(string(data)), len(cs.Added) > 0 || len(cs.AddedServices) > 0)
		if err != nil {
			return "", err
		}
	}

	if err := os.WriteFile(versionPath, []byte(version+"\n"), 0o644); err != nil {
		return "", err
	}
	return version, nil
}

// bumpSemver increments MINOR when endpoints were added, PATCH otherwise.
func bumpSemver(version string, hasNew bool) (string, error) {
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid semver: %s", version)
	}

	var major, minor, patch int
	for i, dst := range []*int{&major, &minor, &patch} {
		if _, err := fmt.Sscanf(parts[i], "%d", dst); err != nil {
			return "", fmt.Errorf("invalid semver: %s", version)
		}
	}

	if hasNew {
		minor++
		patch = 0
	} else {
		patch++
	}

	return fmt.Sprintf("%d.%d.%d", major, minor, patch), nil
}

// assessRisk decides whether the PR should be opened as a draft.
func assessRisk(cs *diff.ChangeSet) (bool, string) {
	var reasons []string

	if cs.IsDestructive() {
		reasons = append(reasons, "endpoints or services removed")
	}
	if cs.TotalChanged() > 25 {
		reasons = append(reasons, fmt.Sprintf("%d endpoints changed", cs.TotalChanged()))
	}

	return len(reasons) > 0, strings.Join(reasons, "; ")
}
