package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:          "sensorpush-logger",
	Short:        "Polls a SensorPush HTP.xw sensor and logs measurements to CSV or Postgres",
	SilenceUsage: true,
	RunE:         run,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	logger = slog.Default()
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.sensorpush-logger.toml)")

	rootCmd.Flags().Bool("simulate", false, "synthesize sensor data instead of reading the peripheral")
	rootCmd.Flags().Bool("local", false, "write to hourly CSV files instead of Postgres")

	cobra.CheckErr(viper.BindPFlags(rootCmd.Flags()))

	viper.SetDefault("sensor.name", "SensorPush HTP.xw DD6")
	viper.SetDefault("csv.dir", "data")
	viper.SetDefault("postgres.host", "localhost")
	viper.SetDefault("postgres.port", 5432)
	viper.SetDefault("postgres.table", "sensor_data")
	viper.SetDefault("lockfile.path", "/tmp/sensorpush-logger.pid")
	viper.SetDefault("poll.interval", "15m")
	viper.SetDefault("poll.retries", 5)
	viper.SetDefault("poll.retry_delay", "10s")
	viper.SetDefault("simulate.interval", "10s")
	viper.SetDefault("ble.scan_duration", "10s")
}

func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("/etc/sensorpush-logger")
		viper.AddConfigPath("$HOME/.sensorpush-logger")
		viper.SetConfigName("config")
		viper.SetConfigType("toml")
	}
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := viper.ReadInConfig(); err == nil {
		logger.LogAttrs(nil, slog.LevelInfo, "Using config file", slog.String("config", viper.ConfigFileUsed()))
	}
}

// initLogger builds the process logger, teeing to a log file when one is
// configured.
func initLogger() (*slog.Logger, error) {
	var w io.Writer = os.Stdout
	if logFile := viper.GetString("log.file"); logFile != "" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, f)
	}
	return slog.New(slog.NewTextHandler(w, nil)), nil
}
