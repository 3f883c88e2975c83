// Package transform invokes the downstream dbt project. The ingestion core
// does not inspect the models; it only reports whether the invocation
// itself succeeded.
package transform

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
)

// DBTRunner shells out to dbt for the layered transformation run.
type DBTRunner struct {
	ProjectDir  string
	ProfilesDir string
	// Selectors narrow the run, e.g. staging.* intermediate.* marts.*.
	Selectors []string
}

// NewDBTRunner builds a runner for the configured dbt project.
func NewDBTRunner(projectDir, profilesDir string, selectors []string) *DBTRunner {
	return &DBTRunner{
		ProjectDir:  projectDir,
		ProfilesDir: profilesDir,
		Selectors:   selectors,
	}
}

// Args returns the dbt argument list for the configured selectors.
func (r *DBTRunner) Args() []string {
	args := []string{"run"}
	if len(r.Selectors) > 0 {
		args = append(args, "--select")
		args = append(args, r.Selectors...)
	}
	return args
}

// Run executes dbt in the project directory. Output goes to the process
// streams so the scheduler's logs capture it.
func (r *DBTRunner) Run(ctx context.Context) error {
	if r.ProjectDir == "" {
		return fmt.Errorf("dbt project directory is not configured")
	}

	cmd := exec.CommandContext(ctx, "dbt", r.Args()...)
	cmd.Dir = r.ProjectDir
	cmd.Env = append(os.Environ(),
		"DBT_PROJECT_DIR="+r.ProjectDir,
		"DBT_PROFILES_DIR="+r.ProfilesDir,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	log.Printf("Triggering dbt run in %s (selectors %v)", r.ProjectDir, r.Selectors)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("dbt run failed: %w", err)
	}
	return nil
}
