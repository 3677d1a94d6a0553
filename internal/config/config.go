package config

import (
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Labels    LabelsConfig    `yaml:"labels" mapstructure:"labels"`
	Visualize VisualizeConfig `yaml:"visualize" mapstructure:"visualize"`
	Models    ModelsConfig    `yaml:"models" mapstructure:"models"`
	Raster    RasterConfig    `yaml:"raster" mapstructure:"raster"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	PostGIS   PostGISConfig   `yaml:"postgis" mapstructure:"postgis"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// StoreConfig locates the SQLite run ledger.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LabelsConfig configures label reading and normalization.
type LabelsConfig struct {
	CategoryField  string `yaml:"category_field" mapstructure:"category_field"`
	VocabularyPath string `yaml:"vocabulary_path" mapstructure:"vocabulary_path"`
}

// VisualizeConfig holds the visualizer defaults.
type VisualizeConfig struct {
	Model    string  `yaml:"model" mapstructure:"model"`
	X        string  `yaml:"x" mapstructure:"x"`
	Y        string  `yaml:"y" mapstructure:"y"`
	Target   string  `yaml:"target" mapstructure:"target"`
	Jitter   float64 `yaml:"jitter" mapstructure:"jitter"`
	GridSize int     `yaml:"grid_size" mapstructure:"grid_size"`
	WidthIn  float64 `yaml:"width_in" mapstructure:"width_in"`
	HeightIn float64 `yaml:"height_in" mapstructure:"height_in"`
	Seed     int64   `yaml:"seed" mapstructure:"seed"`
}

// ModelsConfig holds model hyperparameters.
type ModelsConfig struct {
	KMeansClusters  int `yaml:"kmeans_clusters" mapstructure:"kmeans_clusters"`
	ForestTrees     int `yaml:"forest_trees" mapstructure:"forest_trees"`
	LogisticMaxIter int `yaml:"logistic_max_iter" mapstructure:"logistic_max_iter"`
}

// RasterConfig configures band clipping.
type RasterConfig struct {
	EPSG        int    `yaml:"epsg" mapstructure:"epsg"`
	Glob        string `yaml:"glob" mapstructure:"glob"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// FetchConfig configures downloads.
type FetchConfig struct {
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerHost float64 `yaml:"rate_per_host" mapstructure:"rate_per_host"`
	Concurrency int     `yaml:"concurrency" mapstructure:"concurrency"`
}

// PostGISConfig locates the PostGIS export sink.
type PostGISConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LANDCOVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("store.path", "landcover.db")
	v.SetDefault("labels.category_field", "category")
	v.SetDefault("labels.vocabulary_path", "")
	v.SetDefault("visualize.model", "DecisionTreeClassifier")
	v.SetDefault("visualize.x", "Staple Food")
	v.SetDefault("visualize.y", "Climate")
	v.SetDefault("visualize.target", "Country")
	v.SetDefault("visualize.jitter", 0.2)
	v.SetDefault("visualize.grid_size", 200)
	v.SetDefault("visualize.width_in", 8)
	v.SetDefault("visualize.height_in", 6)
	v.SetDefault("visualize.seed", 0)
	v.SetDefault("models.kmeans_clusters", 4)
	v.SetDefault("models.forest_trees", 100)
	v.SetDefault("models.logistic_max_iter", 200)
	v.SetDefault("raster.epsg", 32634)
	v.SetDefault("raster.glob", "*SR_B*.TIF")
	v.SetDefault("raster.concurrency", 4)
	v.SetDefault("fetch.user_agent", "landcover-cli/1.0")
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.rate_per_host", 5)
	v.SetDefault("fetch.concurrency", 4)
	v.SetDefault("postgis.database_url", "")
	v.SetDefault("postgis.schema", "landcover")
	v.SetDefault("postgis.table", "labels")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Modes accepted by Validate.
var modes = []string{"normalize", "visualize", "raster", "fetch", "serve", "postgis"}

// Validate checks the settings a command mode depends on and reports every
// problem at once.
func (c *Config) Validate(mode string) error {
	if !slices.Contains(modes, mode) {
		return eris.Errorf("config: unknown mode %q, choose one of [%s]", mode, strings.Join(modes, ", "))
	}

	var errs []string
	switch mode {
	case "normalize":
		if c.Labels.CategoryField == "" {
			errs = append(errs, "labels.category_field is required")
		}
	case "visualize":
		errs = append(errs, c.validateVisualize()...)
	case "raster":
		if c.Raster.EPSG <= 0 {
			errs = append(errs, "raster.epsg must be > 0")
		}
		if c.Raster.Glob == "" {
			errs = append(errs, "raster.glob is required")
		}
		if c.Raster.Concurrency < 1 || c.Raster.Concurrency > 64 {
			errs = append(errs, "raster.concurrency must be between 1 and 64")
		}
	case "fetch":
		if c.Fetch.TimeoutSecs <= 0 {
			errs = append(errs, "fetch.timeout_secs must be > 0")
		}
		if c.Fetch.MaxRetries < 0 {
			errs = append(errs, "fetch.max_retries must be >= 0")
		}
		if c.Fetch.RatePerHost <= 0 {
			errs = append(errs, "fetch.rate_per_host must be > 0")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		errs = append(errs, c.validateVisualize()...)
	case "postgis":
		if c.PostGIS.DatabaseURL == "" {
			errs = append(errs, "postgis.database_url is required")
		}
		if c.PostGIS.Table == "" {
			errs = append(errs, "postgis.table is required")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateVisualize() []string {
	var errs []string
	if c.Visualize.GridSize < 2 {
		errs = append(errs, "visualize.grid_size must be >= 2")
	}
	if c.Visualize.Jitter < 0 {
		errs = append(errs, "visualize.jitter must be >= 0")
	}
	if c.Visualize.WidthIn <= 0 || c.Visualize.HeightIn <= 0 {
		errs = append(errs, "visualize.width_in and height_in must be > 0")
	}
	if c.Models.KMeansClusters < 1 {
		errs = append(errs, "models.kmeans_clusters must be >= 1")
	}
	if c.Models.ForestTrees < 1 {
		errs = append(errs, "models.forest_trees must be >= 1")
	}
	if c.Models.LogisticMaxIter < 1 {
		errs = append(errs, "models.logistic_max_iter must be >= 1")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
