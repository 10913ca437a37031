package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/velum-sync/velum"
	"github.com/velum-sync/velum/internal/cryptobox"
)

var rootCmd = &cobra.Command{
	Use:   "velum",
	Short: "Encrypted folder sync over any cloud-replicated folder",
	Long: "Velum keeps a local folder synchronized across devices through a shared\n" +
		"folder managed by an external replicator. Content is encrypted with a\n" +
		"pre-shared key before it touches the shared folder.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ~/.config/velum/config.yaml)")
	rootCmd.PersistentFlags().String("local", "", "local folder to keep synchronized")
	rootCmd.PersistentFlags().String("cloud", "", "root of the replicated shared folder")
	rootCmd.PersistentFlags().String("node-id", "", "node identifier (default: generated once and reused)")
	rootCmd.PersistentFlags().String("key", "", "base64 pre-shared key (see 'velum keygen')")
	rootCmd.PersistentFlags().String("status-dir", "", "directory for watcher status documents")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")

	viper.BindPFlag("local", rootCmd.PersistentFlags().Lookup("local"))
	viper.BindPFlag("cloud", rootCmd.PersistentFlags().Lookup("cloud"))
	viper.BindPFlag("node_id", rootCmd.PersistentFlags().Lookup("node-id"))
	viper.BindPFlag("key", rootCmd.PersistentFlags().Lookup("key"))
	viper.BindPFlag("status_dir", rootCmd.PersistentFlags().Lookup("status-dir"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("VELUM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.ReadInConfig()
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "velum")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "velum")
	}
	return ".velum"
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	if viper.GetBool("verbose") {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// nodeID returns the configured node id, generating and persisting one under
// the config dir on first use.
func nodeID() (string, error) {
	if id := viper.GetString("node_id"); id != "" {
		return id, nil
	}

	path := filepath.Join(configDir(), "node-id")
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}

	id := uuid.NewString()
	if err := os.MkdirAll(configDir(), 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0644); err != nil {
		return "", fmt.Errorf("persist node id: %w", err)
	}
	return id, nil
}

// buildSync assembles a node from the effective configuration.
func buildSync() (*velum.Sync, error) {
	local := viper.GetString("local")
	cloud := viper.GetString("cloud")
	if local == "" || cloud == "" {
		return nil, fmt.Errorf("both --local and --cloud are required")
	}

	encoded := viper.GetString("key")
	if encoded == "" {
		return nil, fmt.Errorf("--key is required (generate one with 'velum keygen')")
	}
	key, err := cryptobox.DecodeKey(encoded)
	if err != nil {
		return nil, err
	}

	id, err := nodeID()
	if err != nil {
		return nil, err
	}

	opts := []velum.Option{velum.WithLogger(newLogger())}
	if dir := viper.GetString("status_dir"); dir != "" {
		opts = append(opts, velum.WithStatusDir(dir))
	}

	return velum.New(id, local, cloud, key, opts...)
}
