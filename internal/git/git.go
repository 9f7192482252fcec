package git

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Status contains git exposure information for secret files
type Status struct {
	IsRepo    bool
	Tracked   []string // Committed or staged (bad)
	Unignored []string // Not tracked but missing from .gitignore (warning)
}

// IsGitRepo checks if the working directory is inside a git repository
func IsGitRepo(workDir string) bool {
	cmd := exec.Command("git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = workDir
	return cmd.Run() == nil
}

// IsTracked checks if a file is tracked by git
func IsTracked(workDir, path string) bool {
	cmd := exec.Command("git", "ls-files", "--", path)
	cmd.Dir = workDir
	output, err := cmd.Output()
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(output))) > 0
}

// IsIgnored checks if a file is ignored by git (handles all .gitignore files)
func IsIgnored(workDir, path string) bool {
	cmd := exec.Command("git", "check-ignore", "-q", "--", path)
	cmd.Dir = workDir
	// exit code 0 means ignored
	return cmd.Run() == nil
}

// Check inspects each secret file relative to the directory that holds it
func Check(secrets []string) *Status {
	status := &Status{}
	for _, path := range secrets {
		dir, name := filepath.Split(path)
		if dir == "" {
			dir = "."
		}
		if !IsGitRepo(dir) {
			continue
		}
		status.IsRepo = true

		switch {
		case IsTracked(dir, name):
			status.Tracked = append(status.Tracked, path)
		case !IsIgnored(dir, name):
			status.Unignored = append(status.Unignored, path)
		}
	}
	return status
}

// Format renders status for display, or an empty string outside a repository
func Format(status *Status) string {
	if !status.IsRepo {
		return ""
	}

	var result strings.Builder
	result.WriteString("\nGit:\n")
	for _, file := range status.Tracked {
		result.WriteString(fmt.Sprintf("   error: %s is tracked by git (run: git rm --cached %s)\n", file, file))
	}
	for _, file := range status.Unignored {
		result.WriteString(fmt.Sprintf("   warning: %s not in .gitignore\n", file))
	}
	if len(status.Tracked) == 0 && len(status.Unignored) == 0 {
		result.WriteString("   ok: secret files are ignored by git\n")
	}
	return result.String()
}
