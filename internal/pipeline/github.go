package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/go-github/v60/github"
	"golang.org/x/oauth2"

	"github.com/everstacklabs/compass/internal/diff"
)

// createPR commits the snapshot on a new branch and opens a GitHub PR.
func (p *Pipeline) createPR(ctx context.Context, cs *diff.ChangeSet, draft bool) (int, error) {
	branchName := fmt.Sprintf("compass/catalog-%s", time.Now().Format("20060102-150405"))
	commitMsg := fmt.Sprintf("chore(catalog): %d endpoint changes from %s", cs.TotalChanged(), p.src.Name())

	// Git operations
	gitOps, err := OpenRepo(p.cfg.Snapshot.Path, p.cfg.GitHub.Token)
	if err != nil {
		return 0, err
	}

	changed, err := gitOps.HasChanges()
	if err != nil {
		return 0, err
	}
	if !changed {
		slog.Info("snapshot files unchanged, skipping PR")
		return 0, nil
	}

	if err := gitOps.AddAll(); err != nil {
		return 0, fmt.Errorf("staging changes: %w", err)
	}

	if err := gitOps.CreateBranch(branchName); err != nil {
		return 0, fmt.Errorf("creating branch: %w", err)
	}

	if err := gitOps.Commit(commitMsg); err != nil {
		return 0, fmt.Errorf("committing: %w", err)
	}

	if err := gitOps.Push(branchName); err != nil {
		return 0, fmt.Errorf("pushing: %w", err)
	}

	// Create PR
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: p.cfg.GitHub.Token})
	tc := oauth2.NewClient(ctx, ts)
	client := github.NewClient(tc)

	title := "chore(catalog): update service catalog snapshot"
	body := diff.RenderPRBody(cs)

	pr, _, err := client.PullRequests.Create(ctx, p.cfg.GitHub.Owner, p.cfg.GitHub.Repo, &github.NewPullRequest{
		Title: &title,
		Body:  &body,
		Head:  &branchName,
		Base:  &p.cfg.GitHub.BaseBranch,
		Draft: &draft,
	})
	if err != nil {
		return 0, fmt.Errorf("creating PR: %w", err)
	}

	slog.Info("PR created",
		"number", pr.GetNumber(),
		"draft", draft,
		"url", pr.GetHTMLURL())

	return pr.GetNumber(), nil
}
