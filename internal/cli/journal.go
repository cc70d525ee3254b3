package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/raycorr/internal/engine"
	"github.com/roach88/raycorr/internal/store"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	Database string
	Session  string
	Subject  string
	Outcome  string
	Limit    int
}

// ResolutionView is one journalled resolution as printed by the journal
// command.
type ResolutionView struct {
	Seq          int64   `json:"seq"`
	RequestID    int64   `json:"request_id"`
	Subject      string  `json:"subject"`
	Outcome      string  `json:"outcome"`
	Start        string  `json:"start"`
	End          string  `json:"end"`
	Point        string  `json:"point,omitempty"`
	Score        *string `json:"score,omitempty"`
	AgeMs        int64   `json:"age_ms"`
	ResolvedAt   string  `json:"resolved_at"`
	HandlerError string  `json:"handler_error,omitempty"`
}

// JournalResult holds the journal command output. Without --session it lists
// every session's summary; with it, that session's resolutions.
type JournalResult struct {
	Sessions    []store.Summary  `json:"sessions,omitempty"`
	Summary     *store.Summary   `json:"summary,omitempty"`
	Resolutions []ResolutionView `json:"resolutions,omitempty"`
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect a resolution journal",
		Long: `Read back the casts and resolutions journalled by simulate --db or demo --db.

Without --session, prints a summary line per session. With --session, prints
that session's resolutions in resolution order, optionally narrowed by
subject and outcome.

Examples:
  raycorr journal --db ./journal.db
  raycorr journal --db ./journal.db --session golden-session
  raycorr journal --db ./journal.db --session golden-session --outcome stale --limit 20`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to list resolutions for")
	cmd.Flags().StringVar(&opts.Subject, "subject", "", "only this subject")
	cmd.Flags().StringVar(&opts.Outcome, "outcome", "", "only this outcome (hit|miss|stale)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum resolutions to list (0 = all)")

	return cmd
}

func runJournal(opts *JournalOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	switch engine.Outcome(opts.Outcome) {
	case "", engine.OutcomeHit, engine.OutcomeMiss, engine.OutcomeStale:
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid outcome %q: must be hit, miss or stale", opts.Outcome))
	}

	// Opening creates missing files; a journal that doesn't exist is an error.
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	st, err := store.Open(opts.Database)
	if err != nil {
		return storeFailure(formatter, "failed to open database", err)
	}
	defer st.Close()

	var result JournalResult
	if opts.Session == "" {
		result.Sessions, err = summarizeSessions(ctx, st)
		if err != nil {
			return storeFailure(formatter, "failed to read sessions", err)
		}
	} else {
		sum, err := st.Summary(ctx, opts.Session)
		if err != nil {
			return storeFailure(formatter, "failed to summarize session", err)
		}
		result.Summary = &sum

		res, err := st.ReadResolutions(ctx, store.Filter{
			Session: opts.Session,
			Subject: engine.Subject(norm.NFC.String(opts.Subject)),
			Outcome: engine.Outcome(opts.Outcome),
			Limit:   opts.Limit,
		})
		if err != nil {
			return storeFailure(formatter, "failed to read resolutions", err)
		}
		result.Resolutions = make([]ResolutionView, 0, len(res))
		for _, r := range res {
			result.Resolutions = append(result.Resolutions, viewResolution(r))
		}
	}

	return formatter.Render("ok", result, func(w io.Writer) {
		outputJournalText(w, result)
	})
}

func summarizeSessions(ctx context.Context, st *store.Store) ([]store.Summary, error) {
	sessions, err := st.Sessions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]store.Summary, 0, len(sessions))
	for _, s := range sessions {
		sum, err := st.Summary(ctx, s)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}

func viewResolution(r engine.Resolution) ResolutionView {
	v := ResolutionView{
		Seq:          r.Seq,
		RequestID:    int64(r.RequestID),
		Subject:      string(r.Subject),
		Outcome:      string(r.Outcome),
		Start:        r.Start.String(),
		End:          r.End.String(),
		AgeMs:        r.Age.Milliseconds(),
		ResolvedAt:   r.At.Format("2006-01-02T15:04:05.000Z07:00"),
		HandlerError: r.HandlerError,
	}
	if r.Outcome == engine.OutcomeHit {
		v.Point = r.Point.String()
		score := strconv.FormatFloat(r.Score, 'g', 6, 64)
		v.Score = &score
	}
	return v
}

func outputJournalText(w io.Writer, result JournalResult) {
	if result.Summary == nil {
		if len(result.Sessions) == 0 {
			fmt.Fprintln(w, "Journal is empty.")
			return
		}
		fmt.Fprintf(w, "%-40s %6s %6s %6s %6s %6s\n", "SESSION", "CASTS", "HITS", "MISSES", "STALE", "OPEN")
		for _, s := range result.Sessions {
			fmt.Fprintf(w, "%-40s %6d %6d %6d %6d %6d\n", s.Session, s.Casts, s.Hits, s.Misses, s.Stale, s.Outstanding)
		}
		return
	}

	s := result.Summary
	fmt.Fprintf(w, "Session: %s\n", s.Session)
	fmt.Fprintf(w, "Casts: %d  Hits: %d  Misses: %d  Stale: %d  Outstanding: %d  Handler errors: %d\n",
		s.Casts, s.Hits, s.Misses, s.Stale, s.Outstanding, s.HandlerErrors)
	if s.Hits > 0 {
		fmt.Fprintf(w, "Mean hit score: %.4g\n", s.MeanHitScore)
	}
	fmt.Fprintln(w)

	if len(result.Resolutions) == 0 {
		fmt.Fprintln(w, "No resolutions match.")
		return
	}
	for _, r := range result.Resolutions {
		line := fmt.Sprintf("[%d] request %d subject=%s %s after %dms", r.Seq, r.RequestID, r.Subject, r.Outcome, r.AgeMs)
		if r.Point != "" {
			line += fmt.Sprintf(" at %s score=%s", r.Point, *r.Score)
		}
		if r.HandlerError != "" {
			line += " error=" + r.HandlerError
		}
		fmt.Fprintln(w, line)
	}
}
