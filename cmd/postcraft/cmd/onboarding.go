package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.etcd.io/bbolt"

	"github.com/postcraft-hq/postcraft/onboarding"
	bboltstorage "github.com/postcraft-hq/postcraft/storage/bbolt"
)

type onboardingOptions struct {
	userID    string
	stateFile string
	server    string
	timeout   time.Duration
}

// onboardingSession is one CLI invocation's view of a user's flow.
type onboardingSession struct {
	flow   *onboarding.Flow
	remote *onboarding.HTTPRemote
	out    io.Writer
	close  func()
}

func (o *onboardingOptions) open(cmd *cobra.Command) (*onboardingSession, error) {
	if o.userID == "" {
		return nil, errors.New("--user is required")
	}
	if dir := filepath.Dir(o.stateFile); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	repo, err := bboltstorage.NewRepositoryFromFile(o.stateFile, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open state file: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	s := &onboardingSession{out: cmd.OutOrStdout()}

	var remote onboarding.Remote
	if o.server != "" {
		s.remote = onboarding.NewHTTPRemote(strings.TrimRight(o.server, "/"), o.userID, &http.Client{})
		remote = s.remote
	}
	s.flow = onboarding.NewFlow(o.userID, onboarding.NewRepositoryStore(repo, logger), remote,
		onboarding.WithLogger(logger),
		onboarding.WithRemoteTimeout(o.timeout),
		onboarding.WithCloseFunc(func() { fmt.Fprintln(s.out, "Already at the first step; onboarding closed.") }),
	)
	s.close = func() {
		if s.remote != nil {
			s.remote.CloseIdleConnections()
		}
		repo.Close()
	}
	return s, nil
}

// run opens a session, applies fn and prints the resulting state.
func (o *onboardingOptions) run(fn func(ctx context.Context, s *onboardingSession) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := o.open(cmd)
		if err != nil {
			return err
		}
		defer s.close()
		if err := fn(cmd.Context(), s); err != nil {
			return err
		}
		renderState(s.out, s.flow)
		return nil
	}
}

func newOnboardingCmd() *cobra.Command {
	o := &onboardingOptions{}
	cmd := &cobra.Command{
		Use:   "onboarding",
		Short: "Drive the onboarding flow for a user",
		Long: `Drive the onboarding flow for one user from the terminal.

State is kept in a local bbolt file and survives between invocations. When
--server is set, completing or skipping is mirrored to the PostCraft API;
a failed delivery is kept pending and can be re-sent with retry-sync.`,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&o.userID, "user", "u", "", "User ID")
	pf.StringVar(&o.stateFile, "state-file", defaultStateFile(), "Local onboarding state file")
	pf.StringVar(&o.server, "server", "", "PostCraft server base URL (empty: local only)")
	pf.DurationVar(&o.timeout, "timeout", onboarding.DefaultRemoteTimeout, "Timeout for each server call")
	envFlag(pf, "user", "POSTCRAFT_USER_ID")
	envFlag(pf, "state-file", "POSTCRAFT_STATE_FILE")
	envFlag(pf, "server", "POSTCRAFT_SERVER")
	envFlag(pf, "timeout", "POSTCRAFT_TIMEOUT")

	var auto bool
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start onboarding at the first step",
		Args:  cobra.NoArgs,
		RunE: o.run(func(ctx context.Context, s *onboardingSession) error {
			if !auto {
				s.flow.Start()
				return nil
			}
			if s.remote == nil {
				return errors.New("--auto needs --server")
			}
			user, err := s.remote.FetchUser(ctx)
			if err != nil {
				return err
			}
			if !s.flow.AutoStart(onboarding.Session{Loaded: true, User: user}, time.Now()) {
				fmt.Fprintln(s.out, "Onboarding is not due for this user.")
			}
			return nil
		}),
	}
	startCmd.Flags().BoolVar(&auto, "auto", false, "Start only if onboarding would be presented automatically")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show the current onboarding state",
			Args:  cobra.NoArgs,
			RunE:  o.run(func(context.Context, *onboardingSession) error { return nil }),
		},
		startCmd,
		&cobra.Command{
			Use:   "next",
			Short: "Advance one step, completing the flow on the last step",
			Args:  cobra.NoArgs,
			RunE: o.run(func(ctx context.Context, s *onboardingSession) error {
				if res, done := s.flow.Next(ctx); done {
					reportSync(s.out, res)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "previous",
			Short: "Go back one step",
			Args:  cobra.NoArgs,
			RunE: o.run(func(_ context.Context, s *onboardingSession) error {
				s.flow.Previous()
				return nil
			}),
		},
		&cobra.Command{
			Use:   "goto <index>",
			Short: "Jump to a step by index",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				i, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid step index %q", args[0])
				}
				return o.run(func(_ context.Context, s *onboardingSession) error {
					if !s.flow.GoToStep(i) {
						fmt.Fprintf(s.out, "No step at index %d; staying put.\n", i)
					}
					return nil
				})(cmd, args)
			},
		},
		&cobra.Command{
			Use:       "complete-step <id>",
			Short:     "Mark a step as completed",
			Args:      cobra.ExactArgs(1),
			ValidArgs: stepIDs(),
			RunE: func(cmd *cobra.Command, args []string) error {
				id := onboarding.StepID(args[0])
				if _, _, ok := onboarding.StepByID(id); !ok {
					return fmt.Errorf("unknown step %q (want one of %s)", id, strings.Join(stepIDs(), ", "))
				}
				return o.run(func(_ context.Context, s *onboardingSession) error {
					s.flow.CompleteStep(id)
					return nil
				})(cmd, args)
			},
		},
		&cobra.Command{
			Use:   "set-pref <key> <value>",
			Short: "Set one preference (industry, team-size, goals, theme, notifications)",
			Long: `Set one preference. Keys:

  industry       free text
  team-size      free text, e.g. 2-10
  goals          comma-separated list, replaces the previous list
  theme          light, dark or system
  notifications  comma-separated enabled channels (email, push, marketing)
                 or "none"; replaces all three settings`,
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				partial, err := parsePreference(args[0], args[1])
				if err != nil {
					return err
				}
				return o.run(func(_ context.Context, s *onboardingSession) error {
					s.flow.UpdatePreferences(partial)
					return nil
				})(cmd, args)
			},
		},
		&cobra.Command{
			Use:   "complete",
			Short: "Complete onboarding",
			Args:  cobra.NoArgs,
			RunE: o.run(func(ctx context.Context, s *onboardingSession) error {
				reportSync(s.out, s.flow.Complete(ctx))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "skip",
			Short: "Skip onboarding",
			Args:  cobra.NoArgs,
			RunE: o.run(func(ctx context.Context, s *onboardingSession) error {
				reportSync(s.out, s.flow.Skip(ctx))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Reset onboarding to a fresh, active flow",
			Args:  cobra.NoArgs,
			RunE: o.run(func(_ context.Context, s *onboardingSession) error {
				s.flow.Reset()
				return nil
			}),
		},
		&cobra.Command{
			Use:   "retry-sync",
			Short: "Re-send a completion or skip the server did not receive",
			Args:  cobra.NoArgs,
			RunE: o.run(func(ctx context.Context, s *onboardingSession) error {
				res := s.flow.RetrySync(ctx)
				if errors.Is(res.Err, onboarding.ErrNothingToSync) {
					fmt.Fprintln(s.out, "Nothing to sync.")
					return nil
				}
				reportSync(s.out, res)
				return nil
			}),
		},
	)
	return cmd
}

func defaultStateFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "postcraft-onboarding.db"
	}
	return filepath.Join(dir, "postcraft", "onboarding.db")
}

func stepIDs() []string {
	var ids []string
	for _, s := range onboarding.Steps() {
		ids = append(ids, string(s.ID))
	}
	return ids
}

func parsePreference(key, value string) (onboarding.Preferences, error) {
	var p onboarding.Preferences
	switch key {
	case "industry":
		p.Industry = &value
	case "team-size":
		p.TeamSize = &value
	case "goals":
		goals := []string{}
		for g := range strings.SplitSeq(value, ",") {
			if g = strings.TrimSpace(g); g != "" {
				goals = append(goals, g)
			}
		}
		p.PrimaryGoals = goals
	case "theme":
		t := onboarding.Theme(value)
		if !t.Valid() {
			return p, fmt.Errorf("invalid theme %q (want light, dark or system)", value)
		}
		p.Theme = &t
	case "notifications":
		n := onboarding.NotificationPreferences{}
		if value != "none" {
			for ch := range strings.SplitSeq(value, ",") {
				switch strings.TrimSpace(ch) {
				case "email":
					n.Email = true
				case "push":
					n.Push = true
				case "marketing":
					n.Marketing = true
				default:
					return p, fmt.Errorf("unknown notification channel %q", ch)
				}
			}
		}
		p.NotificationPreferences = &n
	default:
		return p, fmt.Errorf("unknown preference %q", key)
	}
	return p, nil
}

func reportSync(w io.Writer, res onboarding.SyncResult) {
	if res.Synced() {
		fmt.Fprintf(w, "Onboarding %s.\n", res.Outcome)
		return
	}
	fmt.Fprintf(w, "Onboarding %s locally; server not notified: %v\n", res.Outcome, res.Err)
	fmt.Fprintln(w, "Run `postcraft onboarding retry-sync` to try again.")
}

func init() {
	rootCmd.AddCommand(newOnboardingCmd())
}
