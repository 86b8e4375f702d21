package config

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"google.golang.org/api/option"

	"github.com/zzenonn/zplace/internal/domain"
	zerrors "github.com/zzenonn/zplace/internal/errors"
	"github.com/zzenonn/zplace/internal/objclass"
)

// EnvPrefix is prepended to every environment override, e.g.
// ZPLACE_PLACEMENT_STRATEGY.
const EnvPrefix = "ZPLACE"

// PlacementConfig selects and tunes the placement strategy.
type PlacementConfig struct {
	Strategy      string `yaml:"strategy"`
	FaultDomain   string `yaml:"fault_domain"`
	LayoutVersion uint32 `yaml:"layout_version"`
	RingCount     int    `yaml:"ring_nr"`
	MaxBits       int    `yaml:"max_bits"`
}

// Config holds the application configuration
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Placement PlacementConfig `yaml:"placement"`
	// CacheLayouts is the capacity of the computed-layout LRU. Zero disables it.
	CacheLayouts int `yaml:"cache_layouts"`
	// TopologySource is a local path, s3://bucket/key or gs://bucket/key.
	TopologySource string `yaml:"topology_source"`
	// ReportSink receives scan reports; same forms as TopologySource.
	ReportSink    string          `yaml:"report_sink"`
	Classes       []objclass.Attr `yaml:"classes"`
	DynamoDBTable string          `yaml:"dynamodb_table"`
	MetricsListen string          `yaml:"metrics_listen"`
	// GCSEndpoint points the GCS client at an emulator; requests are then
	// sent unauthenticated.
	GCSEndpoint string `yaml:"gcs_endpoint"`

	// AWS and GCS clients are only built when a remote source asks for them.
	awsOnce   sync.Once
	awsConfig aws.Config
	awsErr    error
	gcsOnce   sync.Once
	gcsClient *storage.Client
	gcsErr    error
}

// flagKeys maps persistent flag names to configuration keys.
var flagKeys = map[string]string{
	"log-level":      "log_level",
	"strategy":       "placement.strategy",
	"fault-domain":   "placement.fault_domain",
	"layout-version": "placement.layout_version",
	"ring-nr":        "placement.ring_nr",
	"topology":       "topology.source",
	"report":         "report.sink",
	"table":          "dynamodb_table",
	"metrics-listen": "metrics.listen",
}

// LoadConfig loads configuration from config.yaml, environment variables, or CLI flags
// Priority: CLI flags > Environment variables > config.yaml > defaults
func LoadConfig(configPath string, rootCmd *cobra.Command) (*Config, error) {
	if err := setupViper(configPath, rootCmd); err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel: viper.GetString("log_level"),
		Placement: PlacementConfig{
			Strategy:      viper.GetString("placement.strategy"),
			FaultDomain:   viper.GetString("placement.fault_domain"),
			LayoutVersion: viper.GetUint32("placement.layout_version"),
			RingCount:     viper.GetInt("placement.ring_nr"),
			MaxBits:       viper.GetInt("placement.max_bits"),
		},
		CacheLayouts:   viper.GetInt("cache.layouts"),
		TopologySource: viper.GetString("topology.source"),
		ReportSink:     viper.GetString("report.sink"),
		DynamoDBTable:  viper.GetString("dynamodb_table"),
		MetricsListen:  viper.GetString("metrics.listen"),
		GCSEndpoint:    viper.GetString("gcs.endpoint"),
	}

	if err := viper.UnmarshalKey("classes", &cfg.Classes); err != nil {
		return nil, fmt.Errorf("failed to parse classes: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupViper configures Viper with defaults, paths, and bindings
func setupViper(configPath string, rootCmd *cobra.Command) error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	}

	setDefaults()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if rootCmd != nil {
		if err := bindFlags(rootCmd.PersistentFlags()); err != nil {
			return fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

func bindFlags(flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("placement.strategy", "jump")
	viper.SetDefault("placement.fault_domain", "node")
	viper.SetDefault("placement.layout_version", 1)
	viper.SetDefault("placement.ring_nr", 1)
	viper.SetDefault("placement.max_bits", 1<<20)
	viper.SetDefault("cache.layouts", 4096)
	viper.SetDefault("topology.source", "topology.yaml")
	viper.SetDefault("dynamodb_table", "object_class")
}

// Validate rejects values the engine cannot use.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Placement.Strategy) {
	case "jump", "ring":
	default:
		return zerrors.InvalidArgumentError("placement.strategy %q is neither jump nor ring", c.Placement.Strategy)
	}
	if _, err := c.FaultDomain(); err != nil {
		return zerrors.InvalidArgumentError("placement.fault_domain: %v", err)
	}
	if c.Placement.LayoutVersion > 1 {
		return zerrors.InvalidArgumentError("placement.layout_version %d is not supported", c.Placement.LayoutVersion)
	}
	if c.TopologySource == "" {
		return zerrors.ConfigNotSetError("topology.source")
	}
	for _, a := range c.Classes {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// FaultDomain parses the configured fault-domain level.
func (c *Config) FaultDomain() (domain.CompType, error) {
	return domain.ParseCompType(c.Placement.FaultDomain)
}

// AWSConfig loads the AWS SDK configuration on first use.
func (c *Config) AWSConfig(ctx context.Context) (aws.Config, error) {
	c.awsOnce.Do(func() {
		c.awsConfig, c.awsErr = awsconfig.LoadDefaultConfig(ctx)
		if c.awsErr != nil {
			c.awsErr = fmt.Errorf("unable to load AWS SDK config: %v", c.awsErr)
		}
	})
	return c.awsConfig, c.awsErr
}

// GCSClient creates the Google Cloud Storage client on first use.
func (c *Config) GCSClient(ctx context.Context) (*storage.Client, error) {
	c.gcsOnce.Do(func() {
		var opts []option.ClientOption
		if c.GCSEndpoint != "" {
			opts = append(opts, option.WithEndpoint(c.GCSEndpoint), option.WithoutAuthentication())
		}
		c.gcsClient, c.gcsErr = storage.NewClient(ctx, opts...)
		if c.gcsErr != nil {
			c.gcsErr = fmt.Errorf("unable to create GCS client: %v", c.gcsErr)
		}
	})
	return c.gcsClient, c.gcsErr
}
