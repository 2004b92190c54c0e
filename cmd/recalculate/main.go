// Command recalculate replays every stored prix from the seed ratings and
// prints each participant's movement.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/okian/prix/internal/adapters/repository"
	"github.com/okian/prix/internal/adapters/repository/postgres"
	service "github.com/okian/prix/internal/app"
	"github.com/okian/prix/internal/config"
	"github.com/okian/prix/internal/domain/model"
	"github.com/okian/prix/internal/domain/rating"
	"github.com/okian/prix/pkg/logger"
)

var errAborted = errors.New("aborted")

func main() {
	yes := flag.Bool("yes", false, "Skip the confirmation prompt")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithLevel(cfg.LogLevel)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	if cfg.Store != config.StorePostgres {
		logger.Get().Warn(ctx, "memory store selected; nothing persisted to replay", logger.String("store", cfg.Store))
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Get().Error(ctx, "failed to open store", logger.Error(err))
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	svc := service.New(
		service.WithStore(store),
		service.WithKFactor(cfg.KFactor),
		service.WithMinRating(cfg.MinRating),
		service.WithInitialRating(cfg.InitialRating),
	)

	err = recalculate(ctx, svc, store, os.Stdin, os.Stdout, *yes)
	if errors.Is(err, errAborted) {
		fmt.Println("Aborted.")
		return
	}
	if err != nil {
		logger.Get().Error(ctx, "recalculation failed", logger.Error(err))
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	if cfg.Store != config.StorePostgres {
		return repository.NewMemoryStore(ctx), nil
	}
	store, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// recalculate asks for confirmation unless assumeYes, replays and prints the
// outcome of every prix in play order.
func recalculate(ctx context.Context, svc *service.Service, store repository.Store, in io.Reader, out io.Writer, assumeYes bool) error {
	if !assumeYes {
		fmt.Fprint(out, "This will reset every rating to its seed and replay all prix. Continue? (y/n): ")
		answer, _ := bufio.NewReader(in).ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			return errAborted
		}
	}

	n, err := svc.Recalculate(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Found %d prix to process\n", n)

	if err := printResults(ctx, store, out); err != nil {
		return err
	}
	fmt.Fprintln(out, "\nRating recalculation complete!")
	return nil
}

func printResults(ctx context.Context, store repository.Store, out io.Writer) error {
	total, err := store.Count(ctx)
	if err != nil {
		return err
	}
	if total == 0 {
		return nil
	}
	players, err := store.TopN(ctx, total)
	if err != nil {
		return err
	}

	nick := make(map[string]string, len(players))
	byPrix := make(map[string][]model.PrixResult)
	for _, p := range players {
		nick[p.PlayerID] = p.Nickname
		rows, err := store.History(ctx, p.PlayerID)
		if err != nil {
			return err
		}
		for _, r := range rows {
			byPrix[r.PrixID] = append(byPrix[r.PrixID], r)
		}
	}

	ids := make([]string, 0, len(byPrix))
	for id := range byPrix {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := byPrix[ids[i]][0].PlayedAt, byPrix[ids[j]][0].PlayedAt
		if !a.Equal(b) {
			return a.Before(b)
		}
		return ids[i] < ids[j]
	})

	for _, id := range ids {
		rows := byPrix[id]
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Placement < rows[j].Placement })

		fmt.Fprintf(out, "\nPrix %s from %s:\n", id, rows[0].PlayedAt.Format("2006-01-02 15:04"))
		for _, r := range rows {
			fmt.Fprintf(out, "  %s: %s place, rating %d → %d (%s)\n",
				nick[r.PlayerID], ordinal(r.Placement), r.StartingRating, r.EndingRating, rating.Describe(r.Adjustment))
		}
	}
	return nil
}

func ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return strconv.Itoa(n) + suffix
}
