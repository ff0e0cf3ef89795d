package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-git/v5"

	"github.com/everstacklabs/compass/internal/catalog"
	"github.com/everstacklabs/compass/internal/config"
	"github.com/everstacklabs/compass/internal/diff"
	"github.com/everstacklabs/compass/internal/resolve"
)

type stubSource struct{ cat *catalog.ServiceCatalog }

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Fetch(context.Context) (*catalog.ServiceCatalog, error) {
	return s.cat, nil
}

func fixture(t *testing.T) *catalog.ServiceCatalog {
	t.Helper()
	cat, err := catalog.Load(filepath.Join("..", "catalog", "testdata", "keystone_v3.json"))
	if err != nil {
		t.Fatal(err)
	}
	return cat
}

func newPipeline(dir string, cat *catalog.ServiceCatalog, dryRun bool) *Pipeline {
	cfg := &config.Config{Snapshot: config.SnapshotConfig{Path: dir, DryRun: dryRun}}
	return New(cfg, &stubSource{cat: cat})
}

func TestSnapshotDryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	res, err := newPipeline(dir, fixture(t), true).Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if !res.ChangeSet.HasChanges() || res.Skipped {
		t.Errorf("first snapshot should report changes, got %+v", res)
	}
	if _, err := os.Stat(filepath.Join(dir, "services")); !os.IsNotExist(err) {
		t.Error("dry run should not write service files")
	}
}

func TestSnapshotWriteThenNoChanges(t *testing.T) {
	dir := t.TempDir()
	cat := fixture(t)

	res, err := newPipeline(dir, cat, false).Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if res.Version != initialVersion {
		t.Errorf("version = %q, want %q", res.Version, initialVersion)
	}
	if res.PRDraft {
		t.Error("first snapshot removes nothing and should not be a draft")
	}
	for _, f := range []string{"manifest.yaml", "version.txt", filepath.Join("services", "compute.yaml")} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			t.Errorf("expected %s: %v", f, err)
		}
	}

	res, err = newPipeline(dir, cat, false).Snapshot(context.Background())
	if err != nil {
		t.Fatalf("second Snapshot failed: %v", err)
	}
	if !res.Skipped || res.SkipReason != "no changes" {
		t.Errorf("second snapshot should be skipped, got %+v", res)
	}
}

func TestSnapshotRemovedEndpointIsDraft(t *testing.T) {
	dir := t.TempDir()
	cat := fixture(t)
	if _, err := newPipeline(dir, cat, false).Snapshot(context.Background()); err != nil {
		t.Fatal(err)
	}

	services := cat.Services()
	for i, s := range services {
		if s.Type == "compute" {
			services[i].Endpoints = s.Endpoints[:len(s.Endpoints)-1]
		}
	}
	next := catalog.New(cat.Format(), services, cat.Token())

	res, err := newPipeline(dir, next, false).Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(res.ChangeSet.Removed) != 1 {
		t.Fatalf("removed = %d, want 1", len(res.ChangeSet.Removed))
	}
	if !res.PRDraft {
		t.Error("removing an endpoint should force a draft")
	}
	if res.Version != "0.1.1" {
		t.Errorf("version = %q, want 0.1.1", res.Version)
	}
}

func TestSnapshotValidationErrorAborts(t *testing.T) {
	dir := t.TempDir()
	bad := catalog.New(catalog.FormatV3, []catalog.Service{{
		Type:      "compute",
		Endpoints: []catalog.Endpoint{{Interface: catalog.InterfacePublic, Region: "RegionOne"}},
	}}, catalog.TokenInfo{})

	_, err := newPipeline(dir, bad, false).Snapshot(context.Background())
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "manifest.yaml")); !os.IsNotExist(err) {
		t.Error("nothing should be written after a validation error")
	}
}

func TestAssessRisk(t *testing.T) {
	many := &diff.ChangeSet{}
	for i := 0; i < 26; i++ {
		many.Added = append(many.Added, diff.EndpointChange{NewURL: fmt.Sprintf("https://h%d", i)})
	}

	tests := []struct {
		name string
		cs   *diff.ChangeSet
		want bool
	}{
		{"small", &diff.ChangeSet{Added: []diff.EndpointChange{{NewURL: "https://a"}}}, false},
		{"changed only", &diff.ChangeSet{Changed: []diff.EndpointChange{{OldURL: "a", NewURL: "b"}}}, false},
		{"removed endpoint", &diff.ChangeSet{Removed: []diff.EndpointChange{{OldURL: "https://a"}}}, true},
		{"removed service", &diff.ChangeSet{RemovedServices: []string{"image"}}, true},
		{"large", many, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft, reason := assessRisk(tt.cs)
			if draft != tt.want {
				t.Errorf("draft = %v, want %v (%s)", draft, tt.want, reason)
			}
			if draft && reason == "" {
				t.Error("draft without a reason")
			}
		})
	}
}

func TestBumpSemver(t *testing.T) {
	tests := []struct {
		in      string
		hasNew  bool
		want    string
		wantErr bool
	}{
		{"2.1.3", true, "2.2.0", false},
		{"2.1.3", false, "2.1.4", false},
		{"0.0.0", true, "0.1.0", false},
		{"invalid", true, "", true},
		{"1.x.0", false, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := bumpSemver(tt.in, tt.hasNew)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"not found", &resolve.EndpointNotFoundError{ServiceType: "compute"}, ExitNotFound},
		{"ambiguous", fmt.Errorf("resolving: %w", &resolve.AmbiguousEndpointsError{ServiceType: "compute"}), ExitAmbiguous},
		{"other", os.ErrPermission, ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCodeFor(tt.err); got != tt.want {
				t.Errorf("ExitCodeFor = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGitOpsBranchAndCommit(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, "version.txt"), []byte("0.1.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	g, err := OpenRepo(dir, "")
	if err != nil {
		t.Fatalf("OpenRepo failed: %v", err)
	}
	if err := g.AddAll(); err != nil {
		t.Fatal(err)
	}
	if err := g.Commit("initial"); err != nil {
		t.Fatal(err)
	}
	if changed, err := g.HasChanges(); err != nil || changed {
		t.Fatalf("clean worktree reported changes: %v %v", changed, err)
	}

	if err := os.WriteFile(filepath.Join(dir, "version.txt"), []byte("0.1.1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if changed, _ := g.HasChanges(); !changed {
		t.Fatal("modified worktree should report changes")
	}

	if err := g.AddAll(); err != nil {
		t.Fatal(err)
	}
	if err := g.CreateBranch("compass/test"); err != nil {
		t.Fatalf("CreateBranch failed: %v", err)
	}
	if err := g.Commit("bump"); err != nil {
		t.Fatal(err)
	}

	head, err := repo.Head()
	if err != nil {
		t.Fatal(err)
	}
	if head.Name().Short() != "compass/test" {
		t.Errorf("HEAD = %s, want compass/test", head.Name().Short())
	}
	data, err := os.ReadFile(filepath.Join(dir, "version.txt"))
	if err != nil || string(data) != "0.1.1\n" {
		t.Errorf("branch checkout should keep worktree edits, got %q %v", data, err)
	}
}
