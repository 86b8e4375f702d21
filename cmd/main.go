package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zzenonn/zplace/internal/config"
	"github.com/zzenonn/zplace/internal/logging"
	"github.com/zzenonn/zplace/internal/metrics"
	"github.com/zzenonn/zplace/internal/objclass"
	"github.com/zzenonn/zplace/internal/placement"
	"github.com/zzenonn/zplace/internal/repository/db"
	"github.com/zzenonn/zplace/internal/repository/objectstore"
	"github.com/zzenonn/zplace/internal/service"
)

var (
	cfg        *config.Config
	logger     *log.Logger
	classes    *objclass.Registry
	docs       *objectstore.DocumentStore
	registry   *prometheus.Registry
	placements *service.PlacementService

	configPath string
	poolFlag   string
	quiet      bool
	stopServe  context.CancelFunc = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "zplace",
	Short: "Compute object placement over a pool map",
	Long: "zplace maps objects onto the targets of a pool map with the jump or ring\n" +
		"placement strategy and lists the shards that rebuild, reintegration or\n" +
		"target addition have to move.",
	SilenceUsage: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		stopServe()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default ./config.yaml)")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.String("strategy", "", "placement strategy: jump or ring")
	flags.String("fault-domain", "", "fault domain level: rank, node or perf_domain")
	flags.Uint32("layout-version", 1, "default layout version of placed objects")
	flags.Int("ring-nr", 0, "number of rings built by the ring strategy")
	flags.String("topology", "", "pool map document: path, s3://bucket/key or gs://bucket/key")
	flags.String("report", "", "where scan reports are written")
	flags.String("table", "", "DynamoDB table holding object classes")
	flags.String("metrics-listen", "", "serve prometheus metrics on this address while running")
	flags.StringVar(&poolFlag, "pool", "", "pool uuid (derived from the topology location when empty)")
	flags.BoolVarP(&quiet, "quiet", "q", false, "suppress progress bars")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(downCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the object class table",
	RunE: func(cmd *cobra.Command, args []string) error {
		dynamoDb, err := newDatabase(cmd.Context())
		if err != nil {
			return err
		}
		if err := dynamoDb.MigrateDb(cmd.Context()); err != nil {
			return fmt.Errorf("failed to migrate the database: %w", err)
		}
		fmt.Println("Database initialized and migrated successfully")
		return nil
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Drop the object class table",
	RunE: func(cmd *cobra.Command, args []string) error {
		dynamoDb, err := newDatabase(cmd.Context())
		if err != nil {
			return err
		}
		if err := dynamoDb.MigrateDown(cmd.Context()); err != nil {
			return fmt.Errorf("failed to roll back migrations: %w", err)
		}
		fmt.Println("Database migrations rolled back successfully")
		return nil
	},
}

func newDatabase(ctx context.Context) (*db.DynamoDb, error) {
	awsConfig, err := cfg.AWSConfig(ctx)
	if err != nil {
		return nil, err
	}
	return db.NewDatabase(awsConfig, cfg.DynamoDBTable)
}

func initConfig() {
	var err error
	cfg, err = config.LoadConfig(configPath, rootCmd)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	logging.InitLogger(cfg)
	logger = logging.NewLogger(cfg)

	classes = objclass.NewRegistry()
	for _, a := range cfg.Classes {
		if err := classes.Register(a); err != nil {
			log.Fatalf("Invalid object class %s: %v", a.Name, err)
		}
	}

	fdom, err := cfg.FaultDomain()
	if err != nil {
		log.Fatalf("Invalid fault domain: %v", err)
	}

	docs = objectstore.NewDocumentStore(objectstore.NewObjectRepositoryFactory(cfg), quiet)
	registry = prometheus.NewRegistry()
	placements, err = service.NewPlacementService(docs, metrics.New(registry), logger, service.Options{
		Strategy: cfg.Placement.Strategy,
		Placement: placement.Options{
			FaultDomain: fdom,
			Classes:     classes,
			MaxBits:     cfg.Placement.MaxBits,
			RingCount:   cfg.Placement.RingCount,
		},
		CacheLayouts: cfg.CacheLayouts,
	})
	if err != nil {
		log.Fatalf("Failed to create placement service: %v", err)
	}

	if cfg.MetricsListen != "" {
		var ctx context.Context
		ctx, stopServe = context.WithCancel(context.Background())
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsListen, registry); err != nil {
				log.WithError(err).Error("metrics endpoint failed")
			}
		}()
	}
}

// poolID returns the --pool uuid, or a stable uuid derived from the
// topology location.
func poolID() (uuid.UUID, error) {
	if poolFlag != "" {
		return uuid.Parse(poolFlag)
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(cfg.TopologySource)), nil
}

// loadPool installs the configured topology and returns its pool id.
func loadPool(ctx context.Context) (uuid.UUID, placement.Info, error) {
	pool, err := poolID()
	if err != nil {
		return uuid.Nil, placement.Info{}, fmt.Errorf("invalid pool id: %w", err)
	}
	info, _, err := placements.LoadTopology(ctx, pool, cfg.TopologySource)
	if err != nil {
		return uuid.Nil, placement.Info{}, fmt.Errorf("failed to load topology %s: %w", cfg.TopologySource, err)
	}
	logger.Debugf("pool %s: %s strategy over %d targets, map version %d",
		pool, info.Strategy, info.TargetCount, info.MapVersion)
	return pool, info, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
