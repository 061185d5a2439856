package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"petit-cli/pkg/sink"
	"petit-cli/pkg/td"
	"petit-cli/pkg/transfer"
	"petit-cli/pkg/workflow"
)

var (
	GitBranch  string
	GitCommit  string
	GitVersion string
)

const (
	exitOK          = 0
	exitOperational = 1
	exitStructural  = 2
)

func main() {
	var (
		cli = kingpin.New("petit-cli", "Table transfer toolkit for the Treasure Data platform")

		enableVerboseMode = cli.Flag("verbose", "Enable verbose mode").Short('v').Bool()
		noProgress        = cli.Flag("no-progress", "Disable progress bar rendering").Bool()

		// clone-db command options
		cloneCmd = cli.Command("clone-db", "Copy every table of a source database into a destination database. "+
			"Credentials come from SOURCE_API_KEY and DEST_API_KEY")

		cloneDatabase   = cloneCmd.Arg("database", "Source database name").Required().String()
		cloneDestDB     = cloneCmd.Flag("dest-db", "Destination database name, source name by default").String()
		cloneSourceSite = cloneCmd.Flag("source-site", "Source platform site").Default(string(td.SiteAWS)).String()
		cloneDestSite   = cloneCmd.Flag("dest-site", "Destination platform site").Default(string(td.SiteAWS)).String()
		cloneSourceEP   = cloneCmd.Flag("source-endpoint", "Source API endpoint, overrides --source-site").Envar("SOURCE_ENDPOINT").String()
		cloneDestEP     = cloneCmd.Flag("dest-endpoint", "Destination API endpoint, overrides --dest-site").Envar("DEST_ENDPOINT").String()

		cloneSkipExisting = cloneCmd.Flag("skip-existing", "Skip tables that already exist in the destination").Bool()
		cloneOverwrite    = cloneCmd.Flag("overwrite", "Replace tables that already exist in the destination").Bool()
		cloneDryRun       = cloneCmd.Flag("dry-run", "Analyze the transfer without moving any data").Bool()
		cloneJSON         = cloneCmd.Flag("json", "Print the dry-run plan as JSON").Bool()

		cloneTableParallelism = cloneCmd.Flag("table-parallelism", "Number of tables transferred at once").
					Default("2").Int()
		cloneFetchParallelism = cloneCmd.Flag("fetch-parallelism", "Number of concurrent chunk fetches per table").
					Default("4").Int()
		cloneChunkSize = cloneCmd.Flag("chunk-size", "Max rows per chunk").Default("10000").Int64()

		// td2parquet command options
		exportCmd = cli.Command("td2parquet", "Export one table's rows into a local Parquet file. "+
			"Credentials come from TD_API_KEY")

		exportDatabase = exportCmd.Arg("database", "Database name").Required().String()
		exportTable    = exportCmd.Arg("table", "Table name").Required().String()
		exportSite     = exportCmd.Flag("site", "Platform site").Default(string(td.SiteAWS)).String()
		exportEP       = exportCmd.Flag("endpoint", "API endpoint, overrides --site").Envar("TD_ENDPOINT").String()
		exportDir      = exportCmd.Flag("output-dir", "Directory for the Parquet file").Short('o').Default(".").String()

		exportStart = exportCmd.Flag("start-ts",
			"Start date-time to bound exported rows, ex. "+time.RFC3339).String()
		exportEnd = exportCmd.Flag("end-ts",
			"End date-time to bound exported rows, ex. "+time.RFC3339).String()
		exportPartitionCol = exportCmd.Flag("partition-column", "Column the time bounds apply to").
					Default("time").String()

		exportSkipExisting = exportCmd.Flag("skip-existing", "Skip the export if the output file already exists").Bool()
		exportOverwrite    = exportCmd.Flag("overwrite", "Replace the output file if it already exists").Bool()
		exportDryRun       = exportCmd.Flag("dry-run", "Analyze the export without moving any data").Bool()
		exportJSON         = exportCmd.Flag("json", "Print the dry-run plan as JSON").Bool()

		exportFetchParallelism = exportCmd.Flag("fetch-parallelism", "Number of concurrent chunk fetches").
					Default("4").Int()
		exportChunkSize = exportCmd.Flag("chunk-size", "Max rows per chunk").Default("100000").Int64()

		// trigger-workflow command options
		workflowCmd = cli.Command("trigger-workflow", "Start a workflow attempt on the platform. "+
			"Credentials come from TD_API_KEY")

		workflowID      = workflowCmd.Arg("id", "Workflow ID").Required().String()
		workflowEP      = workflowCmd.Flag("endpoint", "Workflow API endpoint").Envar("TD_WORKFLOW_ENDPOINT").String()
		workflowWait    = workflowCmd.Flag("wait", "Wait for the attempt to finish").Bool()
		workflowAttempt = workflowCmd.Flag("check-attempt", "Check an existing attempt instead of starting one").String()

		// version command options
		versionCmd = cli.Command("version", "Shows tool version of the binary")
	)

	ctx := context.Background()

	logConsoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		NoColor:    true,
		TimeFormat: time.RFC3339,
	}

	log.Logger = log.Output(logConsoleWriter)

	cmd, err := cli.DefaultEnvars().Parse(os.Args[1:])
	if err != nil {
		log.Error().Msgf("Error parsing parameters: %s", err.Error())
		os.Exit(exitOperational)
	}

	if *enableVerboseMode {
		log.Logger = log.Logger.
			With().Caller().Logger().
			Hook(goroutineLoggingHook{}).
			Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Logger.
			Level(zerolog.InfoLevel)
	}

	exit := exitOK

	switch cmd {
	case cloneCmd.FullCommand():
		policy, err := transfer.PolicyFromFlags(*cloneSkipExisting, *cloneOverwrite)
		if err != nil {
			log.Error().Err(err).Msg("Invalid parameters")
			os.Exit(exitOperational)
		}

		sourceKey := os.Getenv("SOURCE_API_KEY")
		destKey := os.Getenv("DEST_API_KEY")
		if sourceKey == "" || destKey == "" {
			log.Error().Msg("SOURCE_API_KEY and DEST_API_KEY must be set")
			os.Exit(exitOperational)
		}
		if sourceKey == destKey {
			log.Error().Msg("Source and destination API keys must differ")
			os.Exit(exitOperational)
		}

		sourceURL, err := td.ResolveEndpoint(*cloneSourceEP, *cloneSourceSite)
		if err != nil {
			log.Error().Err(err).Msg("Invalid source endpoint")
			os.Exit(exitOperational)
		}
		destURL, err := td.ResolveEndpoint(*cloneDestEP, *cloneDestSite)
		if err != nil {
			log.Error().Err(err).Msg("Invalid destination endpoint")
			os.Exit(exitOperational)
		}

		destDB := *cloneDestDB
		if destDB == "" {
			destDB = *cloneDatabase
		}

		httpC := newClientHTTP()
		source := td.NewSourceService(td.NewClient(httpC, sourceURL, sourceKey, td.DefaultRetryPolicy()))
		dest := td.NewDestinationService(td.NewClient(httpC, destURL, destKey, td.DefaultRetryPolicy()), destDB)

		cfg := transfer.Config{
			TableParallelism: *cloneTableParallelism,
			FetchParallelism: *cloneFetchParallelism,
			ChunkSize:        *cloneChunkSize,
			Policy:           policy,
		}

		exit = runTransfer(ctx, runArgs{
			source:    source,
			dest:      dest,
			cfg:       cfg,
			database:  *cloneDatabase,
			enumerate: transfer.CloneUnits(*cloneDatabase, destDB),
			dryRun:    *cloneDryRun,
			asJSON:    *cloneJSON,
			progress:  !*noProgress,
		})
	case exportCmd.FullCommand():
		policy, err := transfer.PolicyFromFlags(*exportSkipExisting, *exportOverwrite)
		if err != nil {
			log.Error().Err(err).Msg("Invalid parameters")
			os.Exit(exitOperational)
		}

		apiKey := os.Getenv("TD_API_KEY")
		if apiKey == "" {
			log.Error().Msg("TD_API_KEY must be set")
			os.Exit(exitOperational)
		}

		apiURL, err := td.ResolveEndpoint(*exportEP, *exportSite)
		if err != nil {
			log.Error().Err(err).Msg("Invalid endpoint")
			os.Exit(exitOperational)
		}

		window, err := parseWindow(*exportStart, *exportEnd)
		if err != nil {
			log.Error().Err(err).Msg("Invalid time range")
			os.Exit(exitOperational)
		}

		httpC := newClientHTTP()
		source := td.NewSourceService(td.NewClient(httpC, apiURL, apiKey, td.DefaultRetryPolicy()))
		dest := sink.NewDestination(*exportDir)

		cfg := transfer.Config{
			TableParallelism: 1,
			FetchParallelism: *exportFetchParallelism,
			ChunkSize:        *exportChunkSize,
			Policy:           policy,
		}

		destPath := sink.Path(*exportDir, *exportDatabase, *exportTable)

		exit = runTransfer(ctx, runArgs{
			source:    source,
			dest:      dest,
			cfg:       cfg,
			database:  *exportDatabase,
			enumerate: transfer.ExportUnits(*exportDatabase, *exportTable, destPath, *exportPartitionCol, window),
			dryRun:    *exportDryRun,
			asJSON:    *exportJSON,
			progress:  !*noProgress,
		})
	case workflowCmd.FullCommand():
		apiKey := os.Getenv("TD_API_KEY")
		if apiKey == "" {
			log.Error().Msg("TD_API_KEY must be set")
			os.Exit(exitOperational)
		}

		httpC := newClientHTTP()
		wfC := workflow.NewClient(td.NewClient(httpC, workflow.ResolveEndpoint(*workflowEP), apiKey, td.DefaultRetryPolicy()))

		exit = runWorkflow(ctx, wfC, *workflowID, *workflowAttempt, *workflowWait)
	case versionCmd.FullCommand():
		fmt.Printf("Version: %s\nBranch: %s\nCommit: %s\n", GitVersion, GitBranch, GitCommit)
	}

	os.Exit(exit)
}

type runArgs struct {
	source    transfer.Source
	dest      transfer.Destination
	cfg       transfer.Config
	database  string
	enumerate transfer.Enumerator
	dryRun    bool
	asJSON    bool
	progress  bool
}

func runTransfer(ctx context.Context, args runArgs) int {
	orch, err := transfer.NewOrchestrator(args.source, args.dest, args.cfg)
	if err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return exitOperational
	}

	plan, err := orch.Plan(ctx, args.database, args.enumerate)
	if err != nil {
		if errors.Is(err, transfer.ErrSourceUnavailable) {
			log.Error().Err(err).Msg("Source is unavailable")
			return exitStructural
		}
		var apiErr *td.APIError
		if errors.As(err, &apiErr) && apiErr.Auth() {
			log.Error().Err(err).Msg("Authentication failed, check the API key")
			return exitOperational
		}
		log.Error().Err(err).Msg("Failed to plan transfer")
		return exitOperational
	}

	if args.dryRun {
		if err := renderPlan(plan, args.asJSON); err != nil {
			log.Error().Err(err).Msg("Failed to render plan")
			return exitOperational
		}
		if plan.Counts().Fail > 0 {
			return exitOperational
		}
		return exitOK
	}

	counts := plan.Counts()
	tracker := transfer.NewTracker(len(plan.Entries), counts.EstimatedRows, args.progress)

	summary, err := orch.Run(ctx, plan, tracker)
	tracker.Finish()
	if err != nil {
		log.Error().Err(err).Msg("Failed to prepare destination")
		return exitOperational
	}

	renderSummary(summary)

	if summary.Failed() {
		return exitOperational
	}
	return exitOK
}

func runWorkflow(ctx context.Context, c *workflow.Client, workflowID, attemptID string, wait bool) int {
	if attemptID != "" {
		attempt, err := c.Attempt(ctx, attemptID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to check attempt")
			return exitOperational
		}
		fmt.Printf("Attempt %s: %s\n", attempt.ID, attempt.State())
		if attempt.Done && !attempt.Success {
			return exitOperational
		}
		return exitOK
	}

	attempt, err := c.StartAttempt(ctx, workflowID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to start workflow attempt")
		return exitOperational
	}

	if !wait {
		fmt.Printf("Attempt %s: %s\n", attempt.ID, attempt.State())
		return exitOK
	}

	attempt, err = c.WaitAttempt(ctx, attempt.ID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to wait for workflow attempt")
		return exitOperational
	}
	fmt.Printf("Attempt %s: %s\n", attempt.ID, attempt.State())
	if !attempt.Success {
		return exitOperational
	}
	return exitOK
}
