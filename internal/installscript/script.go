package installscript

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"text/template"

	"github.com/itglabs/update-packager/internal/config"
)

// ServicePlan describes how one service is installed on the target host.
type ServicePlan struct {
	// Dir is the service directory relative to the target root ("." for the root service).
	Dir string
	// EnvPath is the virtualenv the service installs into.
	EnvPath string
	// ManifestPath is the requirements file relative to the target root.
	ManifestPath string
	// WheelDir is the shipped wheel subset relative to the archive root,
	// empty when no artifacts were shipped for this service.
	WheelDir string
}

// Plan is everything the generated installer needs, derived from the set of
// service directories discovered in the manifest union.
type Plan struct {
	// TargetDir is the installation root, baked in at generation time.
	TargetDir string
	// Owner is the user:group ownership restored after installation.
	Owner string
	// StopServices lists units stopped before files are synced.
	StopServices []string
	// Services are the per-service install steps, ordered by directory.
	Services []ServicePlan
	// HasDeleteList marks that the package carries a delete.list advisory.
	HasDeleteList bool
}

// HasWheels reports whether any service ships dependency artifacts.
func (p *Plan) HasWheels() bool {
	for _, svc := range p.Services {
		if svc.WheelDir != "" {
			return true
		}
	}

	return false
}

// NewPlan derives the install plan from the manifest service directories.
// wheelServices marks the services whose artifact delta is non-empty.
func NewPlan(cfg *config.Config, serviceDirs []string, wheelServices map[string]bool, hasDeleteList bool) *Plan {
	plan := &Plan{
		TargetDir:     cfg.TargetRoot,
		Owner:         cfg.ServiceOwner,
		StopServices:  append([]string(nil), cfg.StopServices...),
		HasDeleteList: hasDeleteList,
	}

	dirs := append([]string(nil), serviceDirs...)
	sort.Strings(dirs)

	for _, dir := range dirs {
		svc := ServicePlan{
			Dir:          dir,
			EnvPath:      cfg.EnvPath(dir),
			ManifestPath: path.Join(dir, "requirements.txt"),
		}

		if wheelServices[dir] {
			svc.WheelDir = path.Join("wheels", dir)
		}

		plan.Services = append(plan.Services, svc)
	}

	return plan
}

// scriptTemplate is the generated installer. Installation is strictly
// additive (files absent from the package are never removed) and dependency
// installs run fully offline against the shipped wheel subset.
const scriptTemplate = `#!/bin/bash
#
# Generated offline update installer. Do not edit.
#
set -euo pipefail

TARGET_DIR="{{ .TargetDir }}"
SCRIPT_DIR="$(cd "$(dirname "${BASH_SOURCE[0]}")" && pwd)"

echo "==> Stopping services"
{{- range .StopServices }}
systemctl stop {{ . }} || echo "WARN: {{ . }} was not running"
{{- end }}

echo "==> Syncing application files into ${TARGET_DIR}"
rsync -a "${SCRIPT_DIR}/app/" "${TARGET_DIR}/"
{{- if .HasWheels }}

echo "==> Installing dependencies (offline)"
{{- range .Services }}
{{- if .WheelDir }}
if [ -f "${TARGET_DIR}/{{ .ManifestPath }}" ]; then
    if [ ! -d "{{ .EnvPath }}" ]; then
        python3 -m venv "{{ .EnvPath }}"
    fi
    "{{ .EnvPath }}/bin/pip" install --no-index \
        --find-links "${SCRIPT_DIR}/{{ .WheelDir }}" \
        --requirement "${TARGET_DIR}/{{ .ManifestPath }}"
fi
{{- end }}
{{- end }}
{{- end }}

echo "==> Restoring ownership"
chown -R {{ .Owner }} "${TARGET_DIR}"
{{- if .HasDeleteList }}

echo "NOTE: delete.list enumerates files removed upstream."
echo "      This installer never deletes; clean up manually if required."
{{- end }}

echo "==> Update complete. Restart the services when ready."
`

// Render produces the update.sh content for the plan.
func Render(plan *Plan) (string, error) {
	tmpl, err := template.New("update.sh").Parse(scriptTemplate)
	if err != nil {
		return "", fmt.Errorf("parse installer template: %w", err)
	}

	var builder strings.Builder
	if err = tmpl.Execute(&builder, plan); err != nil {
		return "", fmt.Errorf("render installer: %w", err)
	}

	return builder.String(), nil
}
