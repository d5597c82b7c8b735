package git

import (
	"context"
	"strings"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/vcs"
)

// Status runs git status for paths, or for the whole work tree when paths
// is empty.
func (r *Repository) Status(ctx context.Context, paths []string) (*vcs.Status, error) {
	args := []string{"status", "--porcelain=v2", "--branch", "-z", "--untracked-files=normal"}
	if len(paths) > 0 {
		args = append(args, "--")
		args = append(args, paths...)
	}
	out, err := r.Run(ctx, args...)
	if err != nil {
		return nil, err
	}
	return parseStatus(out), nil
}

// parseStatus reads NUL-separated porcelain v2 output. Buckets come back
// sorted.
func parseStatus(out string) *vcs.Status {
	st := &vcs.Status{}
	records := strings.Split(out, "\x00")
	for i := 0; i < len(records); i++ {
		rec := records[i]
		if rec == "" {
			continue
		}
		switch rec[0] {
		case '#':
			if head, ok := strings.CutPrefix(rec, "# branch.head "); ok && head != "(detached)" {
				st.Branch = head
			}
		case '1':
			f := strings.SplitN(rec, " ", 9)
			if len(f) == 9 {
				classifyXY(st, f[1], f[8])
			}
		case '2':
			f := strings.SplitN(rec, " ", 10)
			if len(f) == 10 {
				classifyXY(st, f[1], f[9])
				// The original path follows as its own record.
				if i+1 < len(records) && f[1][0] == 'R' {
					st.Removed = append(st.Removed, records[i+1])
				}
				i++
			}
		case 'u':
			f := strings.SplitN(rec, " ", 11)
			if len(f) == 11 {
				st.Conflicting = append(st.Conflicting, f[10])
			}
		case '?':
			p := strings.TrimPrefix(rec, "? ")
			if strings.HasSuffix(p, "/") {
				st.UntrackedFolders = append(st.UntrackedFolders, strings.TrimSuffix(p, "/"))
			} else {
				st.Untracked = append(st.Untracked, p)
			}
		}
	}
	st.Sort()
	st.Clean = st.IsEmpty()
	return st
}

// classifyXY sorts an entry into buckets by its index (X) and work tree
// (Y) codes.
func classifyXY(st *vcs.Status, xy, path string) {
	if len(xy) != 2 {
		return
	}
	switch xy[0] {
	case 'A':
		st.Added = append(st.Added, path)
	case 'M', 'T':
		st.Changed = append(st.Changed, path)
	case 'R', 'C':
		st.Added = append(st.Added, path)
	case 'D':
		st.Removed = append(st.Removed, path)
	}
	switch xy[1] {
	case 'M', 'T':
		st.Modified = append(st.Modified, path)
	case 'D':
		st.Missing = append(st.Missing, path)
	}
}
