package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/zoworld/eventsync/functions/gateway/constants"
	"github.com/zoworld/eventsync/functions/gateway/helpers"
	"github.com/zoworld/eventsync/functions/gateway/interfaces"
	"github.com/zoworld/eventsync/functions/gateway/services"
	"github.com/zoworld/eventsync/functions/gateway/types"
)

func main() {
	_ = godotenv.Load()

	app := newApp(func(ctx context.Context) interfaces.SyncRunnerInterface {
		return services.GetSyncService(ctx)
	})
	if err := app.Run(os.Args); err != nil {
		log.Printf("ERR: %v", err)
		os.Exit(1)
	}
}

// newApp takes a loader so the sync service is only built for commands that need it.
func newApp(loadRunner func(ctx context.Context) interfaces.SyncRunnerInterface) *cli.App {
	return &cli.App{
		Name:  "eventsync",
		Usage: "Pull Luma and iCal calendars into the canonical event store.",
		Commands: []*cli.Command{
			syncCommand(loadRunner),
			calendarsCommand(loadRunner),
		},
	}
}

func syncCommand(loadRunner func(ctx context.Context) interfaces.SyncRunnerInterface) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run one sync pass. Dry-run unless --apply is given.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "apply", Usage: "Write changes instead of predicting them."},
			&cli.StringFlag{Name: "calendar", Usage: "Only sync the calendar with this id."},
			&cli.BoolFlag{Name: "verbose", Usage: "Include per-record results."},
		},
		Action: func(c *cli.Context) error {
			runner := loadRunner(c.Context)
			run, err := runner.RunSync(c.Context, types.SyncOptions{
				DryRun:         !c.Bool("apply"),
				CalendarFilter: c.String("calendar"),
				Verbose:        c.Bool("verbose"),
			})
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}

			out, err := json.MarshalIndent(run, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding sync run: %w", err)
			}
			fmt.Fprintln(c.App.Writer, string(out))
			if !run.Success {
				return fmt.Errorf("%d of %d calendars failed", run.Stats.Totals.CalendarsFailed, run.Stats.Totals.Calendars)
			}
			return nil
		},
	}
}

func calendarsCommand(loadRunner func(ctx context.Context) interfaces.SyncRunnerInterface) *cli.Command {
	return &cli.Command{
		Name:  "calendars",
		Usage: "List configured calendars with credentials masked.",
		Action: func(c *cli.Context) error {
			calendars, err := loadRunner(c.Context).ListCalendars(c.Context)
			if err != nil {
				return fmt.Errorf("listing calendars: %w", err)
			}

			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPROVIDER\tNAME\tCREDENTIAL")
			for _, cal := range calendars {
				credential := helpers.MaskSecret(cal.APIKey)
				if cal.Provider == constants.PROVIDER_ICAL {
					credential = helpers.RedactURL(cal.FeedURL)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", cal.ID, cal.Provider, cal.Name, credential)
			}
			return tw.Flush()
		},
	}
}
