// Command graphrank-cli is the thin, out-of-core operator surface over
// the rating store: dataset administration, manual sync runs, player
// lookups, and on-demand ranking synthesis. It does no formatting beyond
// plain lines to stdout/stderr and never prompts interactively.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/graphrank/ratings/internal/graph"
	"github.com/graphrank/ratings/internal/rating"
	"github.com/graphrank/ratings/internal/ranking"
	"github.com/graphrank/ratings/internal/remote"
	"github.com/graphrank/ratings/internal/store"
	ratingsync "github.com/graphrank/ratings/internal/sync"
)

// Exit codes per the CLI's input/environment error contract.
const (
	exitSuccess = 0
	exitUsage   = 1
	exitSystem  = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var authFlag, configFlag string

	root := &cobra.Command{
		Use:           "graphrank-cli",
		Short:         "Operate the graph-structured skill rating store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&authFlag, "auth", "A", "", "tournament API auth token (overrides AUTH_TOKEN / auth.txt)")
	root.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "config path (parsed but not read by any subcommand)")

	root.AddCommand(
		newDatasetCmd(),
		newSyncCmd(&authFlag),
		newPlayerCmd(),
		newRankingCmd(),
	)

	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return exitSuccess
	}

	fmt.Fprintln(os.Stderr, "error:", err)
	switch {
	case isUsageError(err):
		return exitUsage
	default:
		return exitSystem
	}
}

// cliUsageError marks an error as the user's fault (bad flags, bad
// arguments, not-found lookups caused by a typo'd name) rather than an
// environment/system failure, so run() can pick the right exit code.
type cliUsageError struct{ err error }

func (e cliUsageError) Error() string { return e.err.Error() }
func (e cliUsageError) Unwrap() error { return e.err }

func usageErrorf(format string, a ...any) error {
	return cliUsageError{fmt.Errorf(format, a...)}
}

func isUsageError(err error) bool {
	_, ok := err.(cliUsageError)
	if ok {
		return true
	}
	return errorsIs(err, store.ErrNotFound) || errorsIs(err, store.ErrNameConflict) || errorsIs(err, store.ErrInvalidName)
}

func errorsIs(err, target error) bool {
	for err != nil {
		if err == target {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func openStore(ctx context.Context) (*store.Store, error) {
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_DSN is required")
	}
	return store.Open(ctx, dsn)
}

func resolveAuth(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if v := os.Getenv("AUTH_TOKEN"); v != "" {
		return v, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve auth token: %w", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "graphrank", "auth.txt"))
	if err != nil {
		return "", fmt.Errorf("no auth token: set --auth, AUTH_TOKEN, or %s", filepath.Join(dir, "graphrank", "auth.txt"))
	}
	return strings.TrimSpace(string(raw)), nil
}

func newDatasetCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "dataset", Short: "Manage rating datasets"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered dataset names",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			names, err := st.ListDatasetNames(ctx)
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(os.Stdout, n)
			}
			return nil
		},
	}

	var (
		country, state  string
		decay, variance float64
	)
	newDs := &cobra.Command{
		Use:   "new <name> <game-id> <game-name> <game-slug>",
		Short: "Register a new dataset",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return usageErrorf("game-id must be a positive integer: %w", err)
			}
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			meta := store.DatasetMetadata{
				Start:      time.Time{},
				LastSync:   time.Time{},
				GameID:     id,
				GameName:   args[2],
				GameSlug:   args[3],
				DecayConst: decay,
				VarConst:   variance,
			}
			if country != "" {
				meta.Country = &country
			}
			if state != "" {
				meta.State = &state
			}
			if err := st.NewDataset(ctx, args[0], meta); err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, "dataset created:", args[0])
			return nil
		},
	}
	newDs.Flags().StringVar(&country, "country", "", "restrict to a country code")
	newDs.Flags().StringVar(&state, "state", "", "restrict to a state/province code")
	newDs.Flags().Float64Var(&decay, "decay", 0.006, "propagation decay constant in [0,1] (per-hop path weight)")
	newDs.Flags().Float64Var(&variance, "var-const", 5.0, "edge variance added per second of inactivity")

	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a dataset and its per-dataset tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.DeleteDataset(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, "dataset deleted:", args[0])
			return nil
		},
	}

	rename := &cobra.Command{
		Use:   "rename <old-name> <new-name>",
		Short: "Rename a dataset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.RenameDataset(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, "dataset renamed:", args[0], "->", args[1])
			return nil
		},
	}

	cmd.AddCommand(list, newDs, del, rename)
	return cmd
}

func newSyncCmd(authFlag *string) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "sync [names...]",
		Short: "Run a manual sync pass for one or more datasets",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return usageErrorf("sync requires dataset names or --all")
			}
			ctx := cmd.Context()
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			token, err := resolveAuth(*authFlag)
			if err != nil {
				return err
			}

			endpoint := os.Getenv("REMOTE_ENDPOINT")
			if endpoint == "" {
				endpoint = "https://api.example-tournament.gg/gql/alpha"
			}
			source := remote.NewStartGGSource(endpoint, token, nil, nil)
			orchestrator := ratingsync.Orchestrator{
				Store:   ratingsync.NewBeginner(st),
				Remote:  source,
				Updater: rating.Updater{},
			}

			names := args
			if all {
				names, err = st.ListDatasetNames(ctx)
				if err != nil {
					return err
				}
			}

			var failed []string
			for _, name := range names {
				fmt.Fprintln(os.Stdout, "syncing dataset:", name)
				if err := orchestrator.SyncDataset(ctx, name); err != nil {
					fmt.Fprintln(os.Stderr, "sync failed for", name+":", err)
					failed = append(failed, name)
					continue
				}
				fmt.Fprintln(os.Stdout, "synced dataset:", name)
			}
			if len(failed) > 0 {
				return fmt.Errorf("sync failed for %d dataset(s): %s", len(failed), strings.Join(failed, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "sync every registered dataset")
	return cmd
}

func newPlayerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "player", Short: "Inspect players and matchups"}

	info := &cobra.Command{
		Use:   "info <dataset> <player-id>",
		Short: "Show one player's global identity and W/L counts in a dataset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			id := graph.PlayerID(args[1])
			p, err := st.GetPlayer(ctx, id)
			if err != nil {
				return err
			}
			won, lost, err := st.GetPlayerSetCounts(ctx, args[0], id)
			if err != nil {
				return err
			}
			prefix := ""
			if p.Prefix != nil {
				prefix = *p.Prefix + " | "
			}
			fmt.Fprintf(os.Stdout, "%s%s (%s)\n", prefix, p.Name, p.ID)
			fmt.Fprintf(os.Stdout, "sets won: %d, sets lost: %d\n", won, lost)
			return nil
		},
	}

	matchup := &cobra.Command{
		Use:   "matchup <dataset> <player-a> <player-b>",
		Short: "Show the real or hypothetical advantage between two players",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			dataset := args[0]
			p, q := graph.PlayerID(args[1]), graph.PlayerID(args[2])
			meta, err := st.GetMetadata(ctx, dataset)
			if err != nil {
				return err
			}
			adv, variance, ok, err := st.GetEdge(ctx, dataset, p, q)
			if err != nil {
				return err
			}
			if !ok {
				adv, variance, err = graph.HypotheticalAdvantage(ctx, st, dataset, p, q, meta.DecayConst)
				if err != nil {
					return err
				}
			}
			fmt.Fprintf(os.Stdout, "%s vs %s: advantage=%.4f variance=%.4f\n", p, q, adv, variance)
			return nil
		},
	}

	cmd.AddCommand(info, matchup)
	return cmd
}

func newRankingCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "ranking", Short: "Synthesize global player rankings"}

	var base float64
	var topK int
	create := &cobra.Command{
		Use:   "create <dataset>",
		Short: "Compute and print the top-K ranked players for a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			if base <= 1 {
				return usageErrorf("--base must be > 1, got %v", base)
			}
			ranked, err := ranking.Compute(ctx, st, args[0], base, topK)
			if err != nil {
				return err
			}
			for i, r := range ranked {
				fmt.Fprintf(os.Stdout, "%d. %s\t%.6f\n", i+1, r.Player, r.Points)
			}
			return nil
		},
	}
	create.Flags().Float64Var(&base, "base", 1.5, "exponent base applied to edge advantages")
	create.Flags().IntVar(&topK, "top", 100, "maximum number of players to print (0 = all)")

	cmd.AddCommand(create)
	return cmd
}
