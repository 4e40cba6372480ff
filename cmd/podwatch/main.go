// Command-line entry point for podwatch.
//
// Input format
// ------------
// The validate command reads JSONL (one observation per line):
//
//	{"image_ref":"x.jpg","text":"CORREIOS ...","timestamp":"2026-01-10T12:00:00Z",
//	 "device_gps":{"lat":-23.55,"lon":-46.63}}
//
// Each observation is classified, validated against the route table and fed
// to the learning engine. Invalid verdicts emit an alert (NATS when
// configured, stderr otherwise).
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	_ "podwatch/internal/carriers" // register built-in carrier rules via init()

	"podwatch/internal/catalog"
	"podwatch/internal/delivery"
	"podwatch/internal/knowledge"
	"podwatch/internal/notify"
	"podwatch/internal/pipeline"
	"podwatch/internal/routes"
	"podwatch/internal/storage"
)

type runStats struct {
	Lines     int
	Processed int
	Valid     int
	Invalid   int
	Unknown   int
	Alerts    int
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "podwatch - proof-of-delivery label validation:")
	fmt.Fprintln(w, "  validate - process JSONL observations and output JSON reports")
	fmt.Fprintln(w, "  stats    - print learning statistics")
	fmt.Fprintln(w, "  sync     - push route table and carrier stats to PostgreSQL")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  podwatch validate -input observations.jsonl [-output out.json] [-pretty]")
	fmt.Fprintln(w, "                    [-routes routes.csv] [-models models] [-rules rules.json]")
	fmt.Fprintln(w, "                    [-archive sessions.db] [-nats nats://host:4222] [-stats]")
	fmt.Fprintln(w, "  podwatch stats    [-models models] [-archive sessions.db] [-clickhouse] [-pretty]")
	fmt.Fprintln(w, "  podwatch sync     -routes routes.csv [-clickhouse] [pg/ch flags]")
	fmt.Fprintln(w, "")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	switch strings.ToLower(os.Args[1]) {
	case "validate":
		runValidate(os.Args[2:])
	case "stats":
		runStatsCmd(os.Args[2:])
	case "sync":
		runSync(os.Args[2:])
	case "-h", "--help", "help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
}

func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	inPath := fs.String("input", "", "Input JSONL file (default: stdin)")
	outPath := fs.String("output", "", "Output JSON file (default: stdout)")
	pretty := fs.Bool("pretty", false, "Pretty-print JSON output")
	showStats := fs.Bool("stats", false, "Print basic counters to stderr")

	routesPath := fs.String("routes", envOrDefault("PODWATCH_ROUTES", "data/delivery_routes.csv"), "Route table CSV")
	routesFromPG := fs.Bool("routes-from-postgres", false, "Load the route table from PostgreSQL instead of CSV")
	modelsDir := fs.String("models", envOrDefault("PODWATCH_MODELS", "models"), "Knowledge models directory")
	rulesPath := fs.String("rules", "", "Extra carrier rules JSON (produced by the trainer)")
	auditPath := fs.String("audit", envOrDefault("PODWATCH_AUDIT", "data/logs/learning_progress.csv"), "Learning audit CSV")
	archivePath := fs.String("archive", "", "SQLite session archive path (empty: disabled)")
	natsURL := fs.String("nats", envOrDefault("PODWATCH_NATS", ""), "NATS server URL for alerts (empty: stderr)")
	natsSubject := fs.String("nats-subject", notify.DefaultSubject, "NATS alert subject")
	useCH := fs.Bool("clickhouse", false, "Record sessions to ClickHouse analytics")

	pgFlags := addPostgresFlags(fs)
	chFlags := addClickHouseFlags(fs)
	_ = fs.Parse(args)

	ctx := context.Background()

	reg := catalog.Default()
	if *rulesPath != "" {
		n, err := catalog.LoadRules(*rulesPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load rules: %v\n", err)
			os.Exit(1)
		}
		log.Printf("[main] loaded %d generated rules from %s", n, *rulesPath)
	}

	var table []routes.DeliveryRoute
	var pg *storage.PostgresDB
	if *routesFromPG {
		var err error
		pg, err = storage.OpenPostgres(ctx, pgFlags.config())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect to PostgreSQL: %v\n", err)
			os.Exit(1)
		}
		defer pg.Close()

		table, err = pg.LoadRoutes(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load routes: %v\n", err)
			os.Exit(1)
		}
		log.Printf("[main] loaded %d routes from postgres", len(table))
	} else {
		var err error
		table, err = routes.LoadTable(*routesPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load route table: %v\n", err)
			os.Exit(1)
		}
	}

	store, err := knowledge.NewStore(*modelsDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open models dir: %v\n", err)
		os.Exit(1)
	}
	audit, err := knowledge.NewAuditLog(*auditPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open audit log: %v\n", err)
		os.Exit(1)
	}
	engine := knowledge.NewEngine(store, audit)

	var alerts delivery.AlertSink = notify.NewLogSink(os.Stderr)
	if *natsURL != "" {
		pub, err := notify.NewNATSPublisher(*natsURL, *natsSubject)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect to NATS: %v\n", err)
			os.Exit(1)
		}
		defer pub.Close()
		alerts = pub
	}

	var recorders []pipeline.Recorder
	if *archivePath != "" {
		archive, err := storage.OpenArchive(*archivePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open archive: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = archive.Close() }()
		recorders = append(recorders, archive)
	}
	if *useCH {
		ch, err := storage.OpenClickHouse(ctx, chFlags.config())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect to ClickHouse: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = ch.Close() }()
		if err := ch.CreateSchema(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create ClickHouse schema: %v\n", err)
			os.Exit(1)
		}
		recorders = append(recorders, ch)
	}

	proc := pipeline.New(pipeline.Config{
		Registry:  reg,
		Engine:    engine,
		Validator: routes.NewValidator(table),
		Alerts:    alerts,
		Recorders: recorders,
	})

	var r io.Reader = os.Stdin
	if *inPath != "" {
		f, err := os.Open(*inPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open input: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		r = f
	}

	scanner := bufio.NewScanner(r)
	// Recognised text can be long; bump the line buffer.
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, 16*1024*1024)

	out := make([]*pipeline.Report, 0, 64)
	st := &runStats{}

	for scanner.Scan() {
		st.Lines++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var obs delivery.Observation
		if err := json.Unmarshal([]byte(line), &obs); err != nil {
			fmt.Fprintf(os.Stderr, "Skipping malformed line %d: %v\n", st.Lines, err)
			continue
		}

		report := proc.Process(ctx, &obs)
		out = append(out, report)

		st.Processed++
		if report.Verdict.IsValid {
			st.Valid++
		} else {
			st.Invalid++
		}
		if !report.Classification.Known() {
			st.Unknown++
		}
		if report.AlertSent {
			st.Alerts++
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Input read error: %v\n", err)
		os.Exit(1)
	}

	data, err := marshalJSON(out, *pretty)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode output: %v\n", err)
		os.Exit(1)
	}

	var w io.Writer = os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create output: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}
	fmt.Fprintln(w, string(data))

	if *showStats {
		fmt.Fprintf(os.Stderr,
			"stats: lines=%d processed=%d valid=%d invalid=%d unknown=%d alerts=%d\n",
			st.Lines, st.Processed, st.Valid, st.Invalid, st.Unknown, st.Alerts)
	}
}

func runStatsCmd(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	modelsDir := fs.String("models", envOrDefault("PODWATCH_MODELS", "models"), "Knowledge models directory")
	archivePath := fs.String("archive", "", "SQLite session archive path")
	useCH := fs.Bool("clickhouse", false, "Include the ClickHouse daily rollup")
	sinceDays := fs.Int("since-days", 30, "Rollup window in days (with -clickhouse)")
	pretty := fs.Bool("pretty", false, "Pretty-print JSON output")
	chFlags := addClickHouseFlags(fs)
	_ = fs.Parse(args)

	ctx := context.Background()

	store, err := knowledge.NewStore(*modelsDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open models dir: %v\n", err)
		os.Exit(1)
	}
	engine := knowledge.NewEngine(store, nil)

	out := struct {
		Learning knowledge.LearningStats        `json:"learning"`
		Pending  []knowledge.InvestigationEntry `json:"pending_investigations,omitempty"`
		Archive  *storage.ArchiveStats          `json:"archive,omitempty"`
		Daily    []storage.CarrierDaily         `json:"carrier_daily,omitempty"`
	}{
		Learning: engine.Stats(),
		Pending:  engine.SuggestInvestigations(),
	}

	if *archivePath != "" {
		archive, err := storage.OpenArchive(*archivePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open archive: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = archive.Close() }()

		stats, err := archive.Stats()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read archive stats: %v\n", err)
			os.Exit(1)
		}
		out.Archive = &stats
	}

	if *useCH {
		ch, err := storage.OpenClickHouse(ctx, chFlags.config())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect to ClickHouse: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = ch.Close() }()

		since := time.Now().AddDate(0, 0, -*sinceDays)
		daily, err := ch.CarrierDailyStats(ctx, since)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read daily rollup: %v\n", err)
			os.Exit(1)
		}
		out.Daily = daily
	}

	data, err := marshalJSON(out, *pretty)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

func runSync(args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	routesPath := fs.String("routes", envOrDefault("PODWATCH_ROUTES", "data/delivery_routes.csv"), "Route table CSV")
	modelsDir := fs.String("models", envOrDefault("PODWATCH_MODELS", "models"), "Knowledge models directory")
	useCH := fs.Bool("clickhouse", false, "Also provision the ClickHouse analytics schema")
	pgFlags := addPostgresFlags(fs)
	chFlags := addClickHouseFlags(fs)
	_ = fs.Parse(args)

	ctx := context.Background()

	var pg *storage.PostgresDB
	if *useCH {
		db, err := storage.Open(ctx, storage.Config{
			Postgres:   pgFlags.config(),
			ClickHouse: chFlags.config(),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()

		if err := db.CreateSchemas(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create schemas: %v\n", err)
			os.Exit(1)
		}
		pg = db.PG
	} else {
		var err error
		pg, err = storage.OpenPostgres(ctx, pgFlags.config())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect to PostgreSQL: %v\n", err)
			os.Exit(1)
		}
		defer pg.Close()

		if err := pg.CreateSchema(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create schema: %v\n", err)
			os.Exit(1)
		}
	}

	table, err := routes.LoadTable(*routesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load route table: %v\n", err)
		os.Exit(1)
	}
	for _, rt := range table {
		if err := pg.UpsertRoute(ctx, rt); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync route %s: %v\n", rt.RouteID, err)
			os.Exit(1)
		}
	}
	log.Printf("[sync] pushed %d routes", len(table))

	store, err := knowledge.NewStore(*modelsDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open models dir: %v\n", err)
		os.Exit(1)
	}
	engine := knowledge.NewEngine(store, nil)
	if err := pg.SyncCarrierStats(ctx, engine.Stats()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sync carrier stats: %v\n", err)
		os.Exit(1)
	}
	log.Printf("[sync] pushed carrier stats")
}

type postgresFlags struct {
	host *string
	port *int
	user *string
	pass *string
	db   *string
}

func addPostgresFlags(fs *flag.FlagSet) *postgresFlags {
	def := storage.DefaultConfig().Postgres
	return &postgresFlags{
		host: fs.String("pg-host", envOrDefault("POSTGRES_HOST", def.Host), "PostgreSQL host"),
		port: fs.Int("pg-port", envOrDefaultInt("POSTGRES_PORT", def.Port), "PostgreSQL port"),
		user: fs.String("pg-user", envOrDefault("POSTGRES_USER", def.User), "PostgreSQL user"),
		pass: fs.String("pg-password", envOrDefault("POSTGRES_PASSWORD", def.Password), "PostgreSQL password"),
		db:   fs.String("pg-database", envOrDefault("POSTGRES_DATABASE", def.Database), "PostgreSQL database"),
	}
}

func (p *postgresFlags) config() storage.PostgresConfig {
	return storage.PostgresConfig{
		Host: *p.host, Port: *p.port, User: *p.user, Password: *p.pass, Database: *p.db,
	}
}

type clickhouseFlags struct {
	host *string
	port *int
	user *string
	pass *string
	db   *string
}

func addClickHouseFlags(fs *flag.FlagSet) *clickhouseFlags {
	def := storage.DefaultConfig().ClickHouse
	return &clickhouseFlags{
		host: fs.String("ch-host", envOrDefault("CLICKHOUSE_HOST", def.Host), "ClickHouse host"),
		port: fs.Int("ch-port", envOrDefaultInt("CLICKHOUSE_PORT", def.Port), "ClickHouse port"),
		user: fs.String("ch-user", envOrDefault("CLICKHOUSE_USER", def.User), "ClickHouse user"),
		pass: fs.String("ch-password", envOrDefault("CLICKHOUSE_PASSWORD", def.Password), "ClickHouse password"),
		db:   fs.String("ch-database", envOrDefault("CLICKHOUSE_DATABASE", def.Database), "ClickHouse database"),
	}
}

func (c *clickhouseFlags) config() storage.ClickHouseConfig {
	return storage.ClickHouseConfig{
		Host: *c.host, Port: *c.port, User: *c.user, Password: *c.pass, Database: *c.db,
	}
}

func marshalJSON(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
