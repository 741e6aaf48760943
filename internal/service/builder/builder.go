package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/itglabs/update-packager/internal/archive"
	"github.com/itglabs/update-packager/internal/config"
	"github.com/itglabs/update-packager/internal/gitrepo"
	"github.com/itglabs/update-packager/internal/ignore"
	"github.com/itglabs/update-packager/internal/installscript"
	"github.com/itglabs/update-packager/internal/logger"
	"github.com/itglabs/update-packager/internal/manifest"
	"github.com/itglabs/update-packager/internal/wheels"
)

// Request describes one package build.
type Request struct {
	// OldRevision is the baseline revision. Ignored in full mode.
	OldRevision string
	// NewRevision is the revision being shipped.
	NewRevision string
	// Full packages the entire tree of NewRevision instead of a delta.
	Full bool
	// OutputPath overrides the derived archive path when non-empty.
	OutputPath string
}

// Result reports what a build produced.
type Result struct {
	// ArchivePath is the produced archive, empty when there was nothing to package.
	ArchivePath string
	// AppFiles is the number of application files shipped under app/.
	AppFiles int
	// WheelFiles is the number of dependency artifacts shipped under wheels/.
	WheelFiles int
	// DeletedFiles is the number of upstream deletions recorded in delete.list.
	DeletedFiles int
}

// Builder assembles incremental or full offline update packages from a
// repository history and a wheel fetcher. Each build owns a disposable
// staging area; the source tree is never written to.
type Builder struct {
	cfg     *config.Config
	repo    *gitrepo.Repository
	fetcher *wheels.Fetcher
}

// New wires a Builder from its collaborators.
func New(cfg *config.Config, repo *gitrepo.Repository, fetcher *wheels.Fetcher) *Builder {
	return &Builder{
		cfg:     cfg,
		repo:    repo,
		fetcher: fetcher,
	}
}

// Build runs the packaging pipeline: diff revisions, resolve the dependency
// delta per service, assemble the deterministic archive with a generated
// installer. Stages run strictly in sequence; the first fatal error aborts
// the whole build and no partial archive is left behind.
func (b *Builder) Build(ctx context.Context, req *Request) (*Result, error) {
	newSnap, err := b.repo.Resolve(req.NewRevision)
	if err != nil {
		return nil, err
	}

	var oldSnap *gitrepo.Snapshot

	if !req.Full {
		if oldSnap, err = b.repo.Resolve(req.OldRevision); err != nil {
			return nil, err
		}
	}

	stagingRoot, err := os.MkdirTemp("", "update-packager-")
	if err != nil {
		return nil, fmt.Errorf("create staging root: %w", err)
	}

	defer func() {
		_ = os.RemoveAll(stagingRoot)
	}()

	appFiles, deleted, err := b.collectAppFiles(ctx, oldSnap, newSnap, req.Full)
	if err != nil {
		return nil, err
	}

	manifests, err := newSnap.ManifestPaths()
	if err != nil {
		return nil, err
	}

	wheelMembers, wheelServices, err := b.resolveWheels(ctx, oldSnap, newSnap, manifests, stagingRoot, req.Full)
	if err != nil {
		return nil, err
	}

	if len(appFiles) == 0 && len(wheelMembers) == 0 {
		logger.Warn(ctx, "No changes detected, no package was created")
		return &Result{}, nil
	}

	members, err := b.appMembers(newSnap, appFiles, manifests)
	if err != nil {
		return nil, err
	}

	members = append(members, wheelMembers...)

	if len(deleted) > 0 {
		members = append(members, archive.Member{
			Name: "delete.list",
			Mode: 0o644,
			Body: []byte(strings.Join(deleted, "\n") + "\n"),
		})
	}

	script, err := b.renderInstaller(manifests, wheelServices, len(deleted) > 0)
	if err != nil {
		return nil, err
	}

	members = append(members, archive.Member{
		Name: "update.sh",
		Mode: 0o755,
		Body: []byte(script),
	})

	outputPath := req.OutputPath
	if outputPath == "" {
		outputPath = b.archiveName(req)
	}

	logger.InfoKV(ctx, "Creating archive", "path", outputPath)

	if err = archive.Write(outputPath, members); err != nil {
		return nil, err
	}

	return &Result{
		ArchivePath:  outputPath,
		AppFiles:     len(appFiles) + countNewManifests(appFiles, manifests),
		WheelFiles:   len(wheelMembers),
		DeletedFiles: len(deleted),
	}, nil
}

// collectAppFiles determines which application paths ship under app/ and
// which upstream deletions are recorded. Deletions are advisory only: the
// installer is additive and never removes files from the target.
func (b *Builder) collectAppFiles(
	ctx context.Context,
	oldSnap, newSnap *gitrepo.Snapshot,
	full bool,
) (files, deleted []string, err error) {
	if full {
		if files, err = newSnap.Files(); err != nil {
			return nil, nil, err
		}

		logger.Infof(ctx, "Full package: %d files at %s", len(files), newSnap.Name)
	} else {
		diff, diffErr := b.repo.Diff(oldSnap, newSnap)
		if diffErr != nil {
			return nil, nil, diffErr
		}

		files = diff.AddOrUpdate
		deleted = diff.Deleted

		logger.Infof(ctx, "Incremental package: %d files to add/update, %d deleted upstream",
			len(files), len(deleted))
	}

	matcher, err := b.loadDistignore(ctx)
	if err != nil {
		return nil, nil, err
	}

	kept := matcher.Filter(files)
	if excluded := len(files) - len(kept); excluded > 0 {
		logger.Infof(ctx, "Excluded %d files via %s", excluded, b.cfg.DistignoreFile)
	}

	return kept, deleted, nil
}

// loadDistignore reads the exclusion rules at the repository root.
// A missing file only produces a warning; every changed file then ships.
func (b *Builder) loadDistignore(ctx context.Context) (*ignore.Matcher, error) {
	matcher := new(ignore.Matcher)

	distignorePath := filepath.Join(b.repo.Root(), b.cfg.DistignoreFile)
	if _, err := os.Stat(distignorePath); errors.Is(err, os.ErrNotExist) {
		logger.Warnf(ctx, "%s not found at repository root, all changed files will be packaged", b.cfg.DistignoreFile)
		return matcher, nil
	}

	if err := matcher.LoadFile(distignorePath); err != nil {
		return nil, fmt.Errorf("load %s: %w", b.cfg.DistignoreFile, err)
	}

	return matcher, nil
}

// appMembers materializes app/ archive members: every changed file plus every
// manifest present in the new revision, even if unchanged. The shipped
// manifest must always match the target state so the installer can reconcile
// the service environment against it.
func (b *Builder) appMembers(newSnap *gitrepo.Snapshot, files, manifests []string) ([]archive.Member, error) {
	wanted := make(map[string]struct{}, len(files)+len(manifests))
	for _, p := range files {
		wanted[p] = struct{}{}
	}

	for _, p := range manifests {
		wanted[p] = struct{}{}
	}

	members := make([]archive.Member, 0, len(wanted))

	for p := range wanted {
		content, err := newSnap.Content(p)
		if err != nil {
			return nil, err
		}

		mode, err := newSnap.Mode(p)
		if err != nil {
			return nil, err
		}

		members = append(members, archive.Member{
			Name: path.Join("app", p),
			Mode: mode,
			Body: content,
		})
	}

	return members, nil
}

// resolveWheels computes and materializes the per-service artifact delta.
// Old and new resolutions stage into separate directories per manifest; the
// delta is the filename set difference. Any resolution failure aborts the
// build: a partially resolved set is never shippable.
func (b *Builder) resolveWheels(
	ctx context.Context,
	oldSnap, newSnap *gitrepo.Snapshot,
	manifests []string,
	stagingRoot string,
	full bool,
) ([]archive.Member, map[string]bool, error) {
	var members []archive.Member

	wheelServices := make(map[string]bool, len(manifests))

	for _, manifestPath := range manifests {
		service := manifest.ServiceDir(manifestPath)

		newSpecs, err := manifestSpecs(newSnap, manifestPath)
		if err != nil {
			return nil, nil, err
		}

		var oldSpecs []manifest.Specifier

		if !full {
			if oldSpecs, err = manifestSpecs(oldSnap, manifestPath); err != nil {
				return nil, nil, err
			}
		}

		// Identical pin sets cannot produce a delta, skip the index entirely.
		if len(manifest.Changed(oldSpecs, newSpecs)) == 0 {
			logger.DebugKV(ctx, "No dependency changes", "service", service)
			continue
		}

		logger.InfoKV(ctx, "Resolving dependency delta", "service", service, "manifest", manifestPath)

		oldDir := filepath.Join(stagingRoot, "old", filepath.FromSlash(service))
		newDir := filepath.Join(stagingRoot, "new", filepath.FromSlash(service))

		if err = b.fetcher.Fetch(ctx, oldSpecs, oldDir); err != nil {
			return nil, nil, fmt.Errorf("service %s (old resolution): %w", service, err)
		}

		if err = b.fetcher.Fetch(ctx, newSpecs, newDir); err != nil {
			return nil, nil, fmt.Errorf("service %s (new resolution): %w", service, err)
		}

		delta, err := wheels.DiffDirs(oldDir, newDir)
		if err != nil {
			return nil, nil, err
		}

		if len(delta) == 0 {
			continue
		}

		wheelServices[service] = true

		for _, name := range delta {
			body, readErr := os.ReadFile(filepath.Join(newDir, name))
			if readErr != nil {
				return nil, nil, fmt.Errorf("read staged wheel %s: %w", name, readErr)
			}

			members = append(members, archive.Member{
				Name: path.Join("wheels", service, name),
				Mode: 0o644,
				Body: body,
			})
		}

		logger.InfoKV(ctx, "Staged dependency delta", "service", service, "artifacts", len(delta))
	}

	return members, wheelServices, nil
}

// manifestSpecs reads and parses a manifest at a snapshot.
// An absent manifest is an empty pin set, not an error.
func manifestSpecs(snap *gitrepo.Snapshot, manifestPath string) ([]manifest.Specifier, error) {
	content, err := snap.Content(manifestPath)
	if err != nil {
		if errors.Is(err, gitrepo.ErrFileAbsent) {
			return nil, nil
		}

		return nil, err
	}

	return manifest.Parse(content), nil
}

// renderInstaller builds the install plan from the discovered services and
// renders update.sh.
func (b *Builder) renderInstaller(manifests []string, wheelServices map[string]bool, hasDeleteList bool) (string, error) {
	serviceDirs := make([]string, 0, len(manifests))
	for _, manifestPath := range manifests {
		serviceDirs = append(serviceDirs, manifest.ServiceDir(manifestPath))
	}

	plan := installscript.NewPlan(b.cfg, serviceDirs, wheelServices, hasDeleteList)

	return installscript.Render(plan)
}

// archiveName derives the output archive file name from the request.
func (b *Builder) archiveName(req *Request) string {
	if req.Full {
		return fmt.Sprintf("%s_Full-Package_%s.tar.gz", b.cfg.ArchivePrefix, sanitizeRevision(req.NewRevision))
	}

	return fmt.Sprintf("%s_Update_%s_to_%s.tar.gz",
		b.cfg.ArchivePrefix, sanitizeRevision(req.OldRevision), sanitizeRevision(req.NewRevision))
}

// sanitizeRevision makes a revision name safe for use in a file name.
func sanitizeRevision(rev string) string {
	return strings.ReplaceAll(rev, "/", "-")
}

// countNewManifests counts manifests not already present in the changed file set.
func countNewManifests(files, manifests []string) int {
	changed := make(map[string]struct{}, len(files))
	for _, p := range files {
		changed[p] = struct{}{}
	}

	count := 0

	for _, p := range manifests {
		if _, ok := changed[p]; !ok {
			count++
		}
	}

	return count
}
