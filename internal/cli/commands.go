package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/illmade-knight/go-comiccache/pkg/datekey"
	"github.com/illmade-knight/go-comiccache/pkg/imagecache"
	"github.com/illmade-knight/go-comiccache/pkg/microservice"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds the release of every component on exit.
const shutdownTimeout = 15 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(listCmd)

	getCmd.Flags().StringP("out", "o", "", "Write the image to this file")
	getCmd.Flags().Bool("allow-future", false, "Permit days after today")

	sweepCmd.Flags().String("today", "", "Reference day (YYYY-MM-DD or YYMMDD; default: today)")
	sweepCmd.Flags().Int("past", -1, "Past retention window in days (default: from config)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load the settings, backfill the archive and serve the viewer over HTTP",
	Args:  cobra.NoArgs,
	RunE:  handleServe,
}

var getCmd = &cobra.Command{
	Use:   "get [day]",
	Short: "Resolve the comic for one day (YYYY-MM-DD or YYMMDD)",
	Args:  cobra.ExactArgs(1),
	RunE:  handleGet,
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Fetch every day from the first published date up to today",
	Args:  cobra.NoArgs,
	RunE:  handleBackfill,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove stored days outside the retention window",
	Args:  cobra.NoArgs,
	RunE:  handleSweep,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the days the cache holds",
	Args:  cobra.NoArgs,
	RunE:  handleList,
}

// withRuntime builds the runtime for cmd, runs fn and releases everything.
func withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime) error) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	runErr := fn(ctx, rt)

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rt.Close(closeCtx); err != nil {
		logger.Warn().Err(err).Msg("Errors while releasing components.")
	}
	return runErr
}

func handleServe(cmd *cobra.Command, _ []string) error {
	return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
		if err := rt.app.Load(ctx); err != nil {
			return err
		}

		server := microservice.NewBaseServer(rt.logger, rt.cfg.HTTPPort, microservice.ServerOptions{
			Gatherer:    rt.registry,
			HTTPMetrics: rt.httpMetrics,
		})
		microservice.NewViewerHandlers(server.Mux(), rt.app, rt.logger)
		if err := server.Start(); err != nil {
			return err
		}

		<-ctx.Done()
		rt.logger.Info().Msg("Shutdown signal received.")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
}

func handleGet(cmd *cobra.Command, args []string) error {
	day, err := microservice.ParseDay(args[0])
	if err != nil {
		return err
	}
	out, _ := cmd.Flags().GetString("out")
	allowFuture, _ := cmd.Flags().GetBool("allow-future")

	return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
		entry, err := rt.cache.ResolveEntry(ctx, day, imagecache.ResolveOptions{AllowFuture: allowFuture})
		if err != nil {
			return fmt.Errorf("no comic for %s: %w", day, err)
		}
		if out != "" {
			if err := os.WriteFile(out, entry.Blob.Data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%dx%d\t%d bytes\n",
			day, entry.Origin, entry.Blob.Format, entry.Blob.Width, entry.Blob.Height, entry.Blob.Size())
		return nil
	})
}

func handleBackfill(cmd *cobra.Command, _ []string) error {
	return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
		s, err := rt.loader.Load(ctx)
		if err != nil {
			return err
		}
		first := s.FirstDay()
		today := rt.cache.Today()
		rt.cache.SetFirstDate(first)

		var resolved, missing int
		for batch := range rt.scheduler.Backfill(ctx, first, today) {
			resolved += len(batch.Days)
			missing += len(batch.Missing)
			for _, d := range batch.Missing {
				fmt.Fprintf(cmd.OutOrStdout(), "missing\t%s\n", d)
			}
		}
		rt.scheduler.Wait()
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "backfilled %s..%s: %d resolved, %d missing\n", first, today, resolved, missing)
		return nil
	})
}

func handleSweep(cmd *cobra.Command, _ []string) error {
	todayFlag, _ := cmd.Flags().GetString("today")
	past, _ := cmd.Flags().GetInt("past")

	return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
		today := rt.cache.Today()
		if todayFlag != "" {
			d, err := microservice.ParseDay(todayFlag)
			if err != nil {
				return err
			}
			today = d
		}
		if past < 0 {
			past = rt.cache.PastWindow()
		}

		result, err := rt.cache.Sweep(ctx, today, past)
		if err != nil {
			return err
		}
		for _, d := range result.Removed {
			fmt.Fprintf(cmd.OutOrStdout(), "removed\t%s\n", d)
		}
		for _, d := range result.Failed {
			fmt.Fprintf(cmd.OutOrStdout(), "failed\t%s\n", d)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "kept %d, removed %d, failed %d\n", len(result.Kept), len(result.Removed), len(result.Failed))
		if len(result.Failed) > 0 {
			return errors.New("some days could not be removed")
		}
		return nil
	})
}

func handleList(cmd *cobra.Command, _ []string) error {
	return withRuntime(cmd, func(_ context.Context, rt *runtime) error {
		for _, day := range rt.cache.CachedDays() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", datekey.KeyOf(day), day)
		}
		return nil
	})
}
