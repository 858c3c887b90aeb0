package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/alecthomas/kong"
	"github.com/blampe/bookclub/internal"
)

type cli struct {
	Serve serveCmd `cmd:"" default:"1" help:"Run the API server."`

	Verbose bool `short:"v" help:"Enable debug logging."`
}

type serveCmd struct {
	Port      int           `env:"PORT" default:"5001" help:"Port to listen on."`
	CacheDir  string        `env:"CACHE_DIR" default:"cache" help:"Directory for cached aggregation results."`
	CacheTTL  time.Duration `env:"CACHE_TTL" default:"24h" help:"How long cached aggregations stay fresh."`
	UsersFile string        `env:"USERS_FILE" default:"users.json" help:"Path to the user roster file."`
	Upstream  string        `env:"UPSTREAM" default:"www.goodreads.com" help:"Upstream host to fetch shelves from."`
}

func main() {
	var c cli
	k := kong.Parse(&c,
		kong.Name("bookclub"),
		kong.Description("Aggregates to-read shelves across a group of readers."),
		kong.UsageOnError(),
	)

	if c.Verbose {
		internal.SetVerbose()
	}

	_, _ = memlimit.SetGoMemLimitWithOpts(memlimit.WithProvider(memlimit.ApplyFallback(memlimit.FromCgroup, memlimit.FromSystem)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	k.FatalIfErrorf(k.Run(&ctx))
}

func (s *serveCmd) Run(ctx *context.Context) error {
	reg := internal.NewMetrics()

	roster := internal.LoadRoster(*ctx, s.UsersFile)

	disk, err := internal.NewDiskCache(s.CacheDir, s.CacheTTL, reg)
	if err != nil {
		return fmt.Errorf("initializing cache: %w", err)
	}

	upstream := internal.NewUpstream(s.Upstream)
	fetcher := internal.NewFetcher(upstream, reg)
	src := internal.NewGRSource(fetcher, "https://"+s.Upstream)

	memo, err := internal.NewMemo(src, reg)
	if err != nil {
		return fmt.Errorf("initializing memoizer: %w", err)
	}

	agg := internal.NewAggregator(memo, disk, reg)
	ranker := internal.NewRanker(src)

	handler := internal.NewHandler(roster, agg, ranker, disk)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           internal.NewMux(handler, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		internal.Log(*ctx).Info("listening", "addr", server.Addr)
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-(*ctx).Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	internal.Log(*ctx).Info("shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
