package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/skylink/internal/logging"
	"github.com/ppiankov/skylink/internal/model"
	"github.com/ppiankov/skylink/internal/store"
)

// Version is set at build time with -ldflags "-X".
var Version = "0.1.0"

// defaultKeyFile is where older setups keep the NASA key.
const defaultKeyFile = "config/nasa_api_key.txt"

var (
	cfgFile string
	verbose bool

	// appCfg and logger are resolved once per invocation in PersistentPreRunE.
	appCfg *model.Config
	logger *slog.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "skylink",
	Short: "skylink - link NASA APOD images to near-Earth object observations",
	Long: `skylink collects the daily Astronomy Picture of the Day and the daily
near-Earth object feed, and answers "which picture, if any, corresponds to
this object sighting?".

Observations are linked to the image published on the same calendar date.
Observations without one are matched by token overlap between the object
name and the image title and explanation. A fuzzy match is text similarity,
not evidence that the picture shows the object.`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// RootCmd returns the command tree for the binary.
func RootCmd() *cobra.Command {
	return rootCmd
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "skylink v%s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: $HOME/.skylink/config.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("log-format", "", "log format (console, json)")
	pf.String("log-file", "", "also append logs to this file")
	pf.String("db", "", "SQLite database path")
	pf.String("output-dir", "", "directory for exported files")
	pf.StringSlice("formats", nil, "export formats (json, md, csv, parquet, html)")
	pf.String("api-key-file", "", "file holding the NASA API key")
	pf.Bool("no-cache", false, "disable the response cache (force fresh fetch)")
	pf.String("llm", "", "LLM provider for the optional narrative (openai, anthropic, ollama)")
	pf.String("llm-model", "", "LLM model name")

	for key, flag := range map[string]string{
		"log.level":         "log-level",
		"log.format":        "log-format",
		"log.file":          "log-file",
		"store.path":        "db",
		"output.dir":        "output-dir",
		"output.formats":    "formats",
		"nasa.api_key_file": "api-key-file",
		"llm.provider":      "llm",
		"llm.model":         "llm-model",
	} {
		_ = viper.BindPFlag(key, pf.Lookup(flag))
	}
	_ = viper.BindPFlag("verbose", pf.Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(filepath.Join(home, ".skylink"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// SKYLINK_NASA_API_KEY overrides nasa.api_key and so on.
	viper.SetEnvPrefix("SKYLINK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("nasa.api_key", "SKYLINK_NASA_API_KEY", "NASA_API_KEY")
	_ = viper.BindEnv("llm.api_key", "SKYLINK_LLM_API_KEY")
	_ = viper.BindEnv("llm.base_url", "SKYLINK_LLM_BASE_URL")

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// setup loads .env, resolves the configuration and installs the logger.
func setup(cmd *cobra.Command, args []string) error {
	// .env is optional.
	_ = godotenv.Load()

	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
		cfg.Cache.Enabled = false
	}
	if verbose {
		cfg.Output.Verbose = true
		if !viper.IsSet("log.level") {
			cfg.Log.Level = "debug"
		}
	}

	l, err := logging.NewFromConfig(cfg.Log)
	if err != nil {
		return &model.ConfigError{Field: "log", Value: cfg.Log.Format, Reason: err.Error()}
	}
	slog.SetDefault(l)

	appCfg, logger = cfg, l
	return nil
}

// loadConfig layers file, env and flag values over the defaults and fills in
// the credentials that live outside the config file.
func loadConfig(v *viper.Viper) (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := setDefaults(v, cfg); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	key, err := resolveAPIKey(cfg.NASA)
	if err != nil {
		return nil, err
	}
	cfg.NASA.APIKey = key
	if key == "" && !cfg.NASA.UseArchive {
		// Without a key, images come from the public archive pages and
		// NeoWs runs on the shared demo key.
		cfg.NASA.UseArchive = true
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = llmKeyFromEnv(cfg.LLM.Provider)
	}
	if cfg.LLM.BaseURL == "" && cfg.LLM.Provider == "ollama" {
		cfg.LLM.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}

	if err := cfg.Linkage.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveAPIKey prefers an explicit key, then the key file, then the
// conventional config/nasa_api_key.txt when present.
func resolveAPIKey(c model.NASAConfig) (string, error) {
	if k := strings.TrimSpace(c.APIKey); k != "" {
		return k, nil
	}
	path := c.APIKeyFile
	if path == "" {
		if _, err := os.Stat(defaultKeyFile); err != nil {
			return "", nil
		}
		path = defaultKeyFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &model.ConfigError{Field: "nasa.api_key_file", Value: path, Reason: err.Error()}
	}
	return strings.TrimSpace(string(data)), nil
}

func llmKeyFromEnv(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic", "claude":
		return os.Getenv("ANTHROPIC_API_KEY")
	}
	return ""
}

// openStore opens the configured database.
func openStore() (*store.Store, error) {
	st, err := store.Open(appCfg.Store.Path)
	if err != nil {
		return nil, err
	}
	logger.Debug("store opened", "path", st.Path())
	return st, nil
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		logger.Warn("close store", "error", err)
	}
}
