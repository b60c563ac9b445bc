package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tamid-harvester/lib/configutil"
	"tamid-harvester/lib/restyutil"
	"tamid-harvester/lib/scrapers/tamid/core"
	"tamid-harvester/lib/scrapers/tamid/posting"
	"tamid-harvester/lib/telemetry"
	"tamid-harvester/services/harvester"
	"tamid-harvester/services/harvester/db"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mazen160/go-random"
	"github.com/spf13/cobra"
)

type Config struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// posting detail endpoint, the posting id gets appended verbatim
	BaseUrl string `json:"base_url"`
	// login form endpoint
	LoginUrl string `json:"login_url"`
	// post-login resource used for the login liveness check
	LandingUrl string `json:"landing_url"`
	// postings starting outside this period are skipped
	TargetPeriod string `json:"target_period"`
}

var harvestFlags struct {
	config      *string
	track       *string
	out         *string
	start       *int
	end         *int
	delay       *time.Duration
	concurrency *int
	archive     *string
	summary     *bool
}

func init() {
	f := harvestCmd.Flags()
	harvestFlags.config = f.String("config", "config.json5", "Path to the portal config (credentials, urls, target period).")
	harvestFlags.track = f.String("track", posting.TrackTech, fmt.Sprintf("Content track to harvest, one of %v.", posting.Tracks()))
	harvestFlags.out = f.String("out", "projects.html", "Output report path.")
	harvestFlags.start = f.Int("start", 0, "First posting id of the range (inclusive).")
	harvestFlags.end = f.Int("end", 0, "Last posting id of the range (inclusive).")
	harvestFlags.delay = f.Duration("delay", 500*time.Millisecond, "Pause between consecutive requests of one worker, to avoid rate limits.")
	harvestFlags.concurrency = f.Int("concurrency", harvester.DefaultConcurrency, "Worker pool width.")
	harvestFlags.archive = f.String("db", "", "Optional sqlite file to archive this run's records into.")
	harvestFlags.summary = f.Bool("summary", true, "Print the end-of-run summary table.")
	rootCmd.AddCommand(harvestCmd)
}

var harvestCmd = &cobra.Command{
	Use:   "harvest --start N --end M [--track tech|consulting] [--out report.html]",
	Short: "Logs into the portal and harvests every valid posting in the id range into an HTML report.",
	Long: `Logs into the portal, fetches every posting detail page with id in
[start, end] on a bounded worker pool, keeps the postings that match the
selected track and target period, and writes them into a single HTML
report. It is up to you to pick the id range; look at the urls of a few
current postings and pad generously, ids are sparse.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		err = validateHarvest(cfg, *harvestFlags.start, *harvestFlags.end)
		if err != nil {
			return err
		}
		extractor, err := posting.ForTrack(*harvestFlags.track, posting.Options{
			BaseUrl:      cfg.BaseUrl,
			TargetPeriod: cfg.TargetPeriod,
		})
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		telemetry.InstrumentPerfStats(ctx)

		client := createClient(ctx, cfg)
		runHarvest(ctx, client, extractor, cfg)
		return nil
	},
}

func loadConfig() (Config, error) {
	cfg, err := configutil.ReadConfig[Config](*harvestFlags.config)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", *harvestFlags.config, err)
	}
	if cfg.BaseUrl == "" {
		cfg.BaseUrl = "https://apps.tamidgroup.org/Consulting/Company/posting?id="
	}
	if cfg.LoginUrl == "" {
		cfg.LoginUrl = "https://apps.tamidgroup.org/login"
	}
	if cfg.LandingUrl == "" {
		cfg.LandingUrl = "https://apps.tamidgroup.org/Consulting/PMPD/ConsultingDashboard"
	}
	if cfg.TargetPeriod == "" {
		cfg.TargetPeriod = "2024"
	}
	return cfg, nil
}

// validateHarvest checks the run's preconditions before any network
// activity: credentials must be present and the id range well formed.
func validateHarvest(cfg Config, start, end int) error {
	if cfg.Email == "" || cfg.Password == "" {
		return fmt.Errorf("config must provide email and password")
	}
	if start > end {
		return fmt.Errorf("invalid range: start %d > end %d", start, end)
	}
	return nil
}

func createClient(ctx context.Context, cfg Config) *core.Client {
	client, err := core.NewClient(ctx, core.ClientOptions{
		BaseUrl:    cfg.BaseUrl,
		LoginUrl:   cfg.LoginUrl,
		LandingUrl: cfg.LandingUrl,
	})
	if err != nil {
		telemetry.Fatal("failed to initialize portal client", err)
	}
	if *debug {
		restyutil.DumpExchanges(client.Http, restyutil.NewFilesystemOutput(".dev/resty/harvest"))
	}

	slog.Info("logging in", "email", cfg.Email)
	err = client.Login(ctx, core.Credentials{Email: cfg.Email, Password: cfg.Password})
	if err != nil {
		telemetry.Fatal("authentication failed", err)
	}
	slog.Info("logged in")

	return client
}

func runHarvest(ctx context.Context, client *core.Client, extractor posting.Extractor, cfg Config) {
	runID, err := random.String(8)
	if err != nil {
		telemetry.Fatal("failed to generate run id", err)
	}

	out, err := os.Create(*harvestFlags.out)
	if err != nil {
		telemetry.Fatal("failed to create output file", err)
	}
	defer out.Close()

	report, err := harvester.NewReport(out)
	if err != nil {
		telemetry.Fatal("failed to write report header", err)
	}
	// the report must end up syntactically complete even when the run
	// is interrupted
	defer report.Close()

	var store *db.Store
	if *harvestFlags.archive != "" {
		database, err := db.OpenDB(*harvestFlags.archive)
		if err != nil {
			telemetry.Fatal("failed to open archive db", err)
		}
		defer database.Close()
		store = db.NewStore(database)

		err = store.NoteRun(ctx, db.RunParams{
			RunID:     runID,
			Track:     extractor.Track(),
			StartID:   *harvestFlags.start,
			EndID:     *harvestFlags.end,
			StartedAt: time.Now(),
		})
		if err != nil {
			telemetry.Fatal("failed to note run in archive db", err)
		}
	}

	stats := harvester.NewRunStats(*harvestFlags.end - *harvestFlags.start + 1)
	slog.Info(
		"harvesting",
		"run_id", runID,
		"track", extractor.Track(),
		"start", *harvestFlags.start,
		"end", *harvestFlags.end,
		"concurrency", *harvestFlags.concurrency,
	)

	t1 := time.Now()
	outcomes := harvester.Run(ctx, client, extractor, harvester.Options{
		Start:       *harvestFlags.start,
		End:         *harvestFlags.end,
		Concurrency: *harvestFlags.concurrency,
		Delay:       *harvestFlags.delay,
	})
	harvester.Aggregate(ctx, outcomes, report, stats, runID, store)
	stats.Elapsed = time.Since(t1)

	err = report.Close()
	if err != nil {
		slog.Error("failed to finalize report", "err", err)
	}
	if store != nil {
		err = store.FinishRun(context.WithoutCancel(ctx), runID, stats.Elapsed, stats.ValidCount)
		if err != nil {
			slog.Warn("failed to finalize run in archive db", "err", err)
		}
	}

	if *harvestFlags.summary {
		printSummary(runID, stats)
	}
}

func printSummary(runID string, stats *harvester.RunStats) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Summary (run %s)", runID)

	first, last := "-", "-"
	if stats.HasValid() {
		first = fmt.Sprintf("%d", stats.FirstValidID)
		last = fmt.Sprintf("%d", stats.LastValidID)
	}

	t.AppendRow(table.Row{"Runtime", stats.Elapsed.Round(time.Millisecond)})
	t.AppendRow(table.Row{"Runtime minus delay", stats.AdjustedRuntime(*harvestFlags.delay).Round(time.Millisecond)})
	t.AppendRow(table.Row{"Valid items", stats.ValidCount})
	t.AppendRow(table.Row{"First valid index", first})
	t.AppendRow(table.Row{"Last valid index", last})
	t.AppendRow(table.Row{"Transport errors", stats.TransportErrors})
	for reason, count := range stats.Rejections {
		t.AppendRow(table.Row{fmt.Sprintf("Rejected (%s)", reason), count})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}
