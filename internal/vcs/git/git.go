// Package git is a thin connection to repositories through the git CLI.
// Every command targets the repository directory with -C.
package git

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"strings"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/auth"
)

// Repository is a git working tree at a directory.
type Repository struct {
	dir string
}

// NewRepository returns a Repository targeting dir.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string { return r.dir }

// Run executes a git command in the repository and returns stdout. Stderr
// is included in the error on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	cmd := command(ctx, fullArgs...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")
	return cmd
}

// IsInsideWorkTree reports whether the directory belongs to a work tree.
func (r *Repository) IsInsideWorkTree(ctx context.Context) (bool, error) {
	out, err := r.Run(ctx, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return false, nil
		}
		return false, err
	}
	return strings.TrimSpace(out) == "true", nil
}

// CurrentBranch returns the checked out branch, or an empty string on a
// detached HEAD.
func (r *Repository) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.Run(ctx, "branch", "--show-current")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CloneOptions tune Clone.
type CloneOptions struct {
	Branch string
	Depth  int
}

// Clone clones remote into dest. Progress output of git is split into
// lines and passed to progress, which may be nil. Credentials in ctx are
// applied to http(s) remotes.
func Clone(ctx context.Context, remote, dest string, opts CloneOptions, progress func(line string)) error {
	args := []string{"clone", "--progress"}
	if opts.Branch != "" {
		args = append(args, "--branch", opts.Branch)
	}
	if opts.Depth > 0 {
		args = append(args, "--depth", fmt.Sprint(opts.Depth))
	}
	args = append(args, "--", withCredentials(remote, auth.CredentialsFrom(ctx)), dest)

	cmd := command(ctx, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("git clone: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("git clone: %w", err)
	}

	var last string
	scanner := bufio.NewScanner(stderr)
	scanner.Split(scanProgressLines)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		last = line
		if progress != nil {
			progress(line)
		}
	}
	_, _ = io.Copy(io.Discard, stderr)

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("git clone %s: %w (stderr: %s)", redact(remote), err, last)
	}
	return nil
}

// scanProgressLines splits on both \n and the \r git uses to redraw
// progress counters.
func scanProgressLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func withCredentials(remote string, creds *auth.Credentials) string {
	if creds == nil {
		return remote
	}
	u, err := url.Parse(remote)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return remote
	}
	user, secret := creds.Username, creds.Password
	if creds.Token != "" {
		secret = creds.Token
		if user == "" {
			user = "oauth2"
		}
	}
	if user == "" {
		return remote
	}
	u.User = url.UserPassword(user, secret)
	return u.String()
}

func redact(remote string) string {
	u, err := url.Parse(remote)
	if err != nil || u.User == nil {
		return remote
	}
	return u.Redacted()
}
