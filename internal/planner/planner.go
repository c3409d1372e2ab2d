// Package planner decides which manifest assets become download tasks,
// based on the run's resume mode and the files already on disk.
package planner

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/enmassa-dl/enmassa/internal/manifest"
	istorage "github.com/enmassa-dl/enmassa/internal/storage"
	"github.com/enmassa-dl/enmassa/pkg/errors"
	"github.com/enmassa-dl/enmassa/pkg/types"
)

// Mode selects how existing files gate task creation. The mode is fixed
// for the whole run.
type Mode int

const (
	// ModeNormal creates a task for every asset whose final file does not
	// exist yet; partial files are resumed.
	ModeNormal Mode = iota

	// ModeResumeOnly creates a task only where a partial file already
	// exists. It never starts new downloads.
	ModeResumeOnly
)

// String returns the mode name used in logs.
func (m Mode) String() string {
	if m == ModeResumeOnly {
		return "resume-only"
	}
	return "normal"
}

// Plan is the result of planning one manifest.
type Plan struct {
	Tasks   []types.DownloadTask
	Skipped int
	DestDir string
}

// PrepareDestination creates the program-named destination directory and
// verifies it is writable with enough free space. Failures here are fatal;
// nothing should start downloading into a broken destination.
func PrepareDestination(destRoot, programName string, minFreeBytes int64) (string, error) {
	dirName := manifest.Sanitize(programName)
	if dirName == "" {
		dirName = "downloads"
	}

	destDir := filepath.Join(destRoot, dirName)

	if err := os.MkdirAll(destDir, 0750); err != nil {
		return "", errors.Wrap(err, errors.CodeFilesystem,
			fmt.Sprintf("creating destination directory %s", destDir))
	}

	probe, err := os.CreateTemp(destDir, ".write-probe-*")
	if err != nil {
		return "", errors.Wrap(err, errors.CodeFilesystem,
			fmt.Sprintf("destination %s is not writable", destDir))
	}

	_ = probe.Close()
	_ = os.Remove(probe.Name())

	if err := istorage.CheckAvailableSpace(destDir, minFreeBytes); err != nil {
		return "", err
	}

	return destDir, nil
}

// PlanTasks walks the manifest and emits one task per asset that needs
// work under the given mode. destDir must come from PrepareDestination.
func PlanTasks(m *types.Manifest, destDir string, mode Mode) *Plan {
	plan := &Plan{DestDir: destDir}

	for _, asset := range m.Items {
		finalPath := filepath.Join(destDir, asset.FileName)
		tempPath := finalPath + types.PartSuffix

		switch mode {
		case ModeResumeOnly:
			if !fileExists(tempPath) {
				plan.Skipped++
				continue
			}
		case ModeNormal:
			if fileExists(finalPath) {
				plan.Skipped++
				continue
			}
		}

		plan.Tasks = append(plan.Tasks, types.DownloadTask{
			Asset:     asset,
			FinalPath: finalPath,
			TempPath:  tempPath,
			Resume:    true,
		})
	}

	return plan
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
