// wsagent runs the project engine of one workspace.
//
// Without a command it serves: project type metadata, the VCS status cache
// and its watchers stay live and events are logged until interrupted. The
// other commands run a single operation against the workspace and print
// the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/auth"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/config"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/logging"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/metrics"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/project"
)

const usage = `Usage: wsagent [flags] [command] [args]

Commands:
  serve                          run watchers and log events (default)
  list                           list root-level projects
  get <path>                     show a project
  create <path> <type>           create a project
  import <path> <zip|git> <location> [type]
                                 import a project
  estimate <path> [type]         resolve the types matching a folder
  tree <path> [depth]            show a folder tree
  search <path> <glob> [text]    find files
  status <project> [paths...]    show VCS status
  token <user> [groups...]       issue an access token

Flags:
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var token string
	flagSet := pflag.NewFlagSet("wsagent", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.WorkspaceRoot, "workspace", cfg.WorkspaceRoot, "workspace root on disk")
	flagSet.StringVar(&cfg.StoreBackend, "store", cfg.StoreBackend, "file store: local or memory")
	flagSet.StringVar(&cfg.ProjectTypesFile, "types", cfg.ProjectTypesFile, "YAML file of project types")
	flagSet.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "metrics listen address (empty disables)")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flagSet.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "json or console")
	flagSet.DurationVar(&cfg.ImportProgressDelay, "progress-delay", cfg.ImportProgressDelay, "minimum interval between import progress events")
	flagSet.BoolVar(&cfg.VCSWatch, "vcs-watch", cfg.VCSWatch, "watch .git directories for external changes")
	flagSet.StringVar(&token, "token", os.Getenv("WSAGENT_TOKEN"), "access token of the calling user")
	flagSet.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		return fmt.Errorf("logging init: %w", err)
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := flagSet.Args()
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	if cmd == "token" {
		return issueToken(cfg, args)
	}

	ctx = logging.WithRequestID(ctx, uuid.NewString())
	ctx, err = authenticate(ctx, cfg, token)
	if err != nil {
		return err
	}

	a, err := newAgent(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if cmd == "serve" {
		return serve(ctx, a)
	}
	out, err := dispatch(ctx, a, cmd, args)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// authenticate attaches the principal of token to ctx. Without a JWT
// secret every caller acts as the system principal.
func authenticate(ctx context.Context, cfg *config.Config, token string) (context.Context, error) {
	if cfg.JWTSecret == "" {
		return ctx, nil
	}
	if token == "" {
		return ctx, errors.New("a token is required when JWT_SECRET is set")
	}
	return auth.New(cfg.JWTSecret).Authenticate(ctx, token)
}

func issueToken(cfg *config.Config, args []string) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	if len(args) < 1 {
		return errors.New("token: user name required")
	}
	tok, exp, err := auth.New(cfg.JWTSecret).IssueToken(args[0], args[1:], 24*time.Hour)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	fmt.Fprintf(os.Stderr, "expires %s\n", exp.Format(time.RFC3339))
	return nil
}

func serve(ctx context.Context, a *agent) error {
	if a.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			logging.Info("metrics server listening", zap.String("addr", a.cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if err := a.start(ctx); err != nil {
		return err
	}
	projects, err := a.manager.GetProjects(ctx)
	if err != nil {
		return err
	}
	logging.Info("workspace agent started",
		zap.String("store", a.cfg.StoreBackend),
		zap.String("workspace", a.cfg.WorkspaceRoot),
		zap.Int("projects", len(projects)))

	ch := a.bus.SubscribeBuffered(256)
	defer a.bus.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			logging.Info("shutting down")
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			logging.Info("event",
				zap.String("type", ev.Type),
				zap.String("path", ev.Path),
				zap.String("project", ev.Project),
				zap.String("line", ev.Line))
		}
	}
}

func dispatch(ctx context.Context, a *agent, cmd string, args []string) (any, error) {
	m := a.manager
	need := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("%s: expected at least %d arguments", cmd, n)
		}
		return nil
	}

	switch cmd {
	case "list":
		return m.GetProjects(ctx)
	case "get":
		if err := need(1); err != nil {
			return nil, err
		}
		return m.GetProject(ctx, args[0])
	case "create":
		if err := need(2); err != nil {
			return nil, err
		}
		return m.CreateProject(ctx, &project.Config{Path: args[0], Type: args[1]}, nil)
	case "import":
		if err := need(3); err != nil {
			return nil, err
		}
		var opts map[string]string
		if len(args) > 3 {
			opts = map[string]string{"type": args[3]}
		}
		src := project.SourceStorage{Type: args[1], Location: args[2]}
		return m.ImportProject(ctx, args[0], src, opts)
	case "estimate":
		if err := need(1); err != nil {
			return nil, err
		}
		if len(args) > 1 {
			return m.EstimateProject(ctx, args[0], args[1])
		}
		return m.ResolveSources(ctx, args[0], false)
	case "tree":
		if err := need(1); err != nil {
			return nil, err
		}
		depth := -1
		if len(args) > 1 {
			d, err := strconv.Atoi(args[1])
			if err != nil {
				return nil, fmt.Errorf("tree: bad depth %q", args[1])
			}
			depth = d
		}
		return m.GetTree(ctx, args[0], depth, true)
	case "search":
		if err := need(2); err != nil {
			return nil, err
		}
		opts := project.SearchOptions{Name: args[1]}
		if len(args) > 2 {
			opts.Text = strings.Join(args[2:], " ")
		}
		return m.Search(ctx, args[0], opts)
	case "status":
		if err := need(1); err != nil {
			return nil, err
		}
		if len(args) == 1 {
			return a.cache.GetStatus(ctx, args[0], nil)
		}
		return a.cache.GetVcsStatus(ctx, args[0], args[1:])
	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}
