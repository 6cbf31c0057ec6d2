package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vnykmshr/streamcore/pkg/common/validation"
)

const (
	upperFlag         = "upper"
	grepFlag          = "grep"
	numberFlag        = "number"
	highWaterMarkFlag = "high-water-mark"
	chunkSizeFlag     = "chunk-size"
	logLevelFlag      = "log-level"
	logFormatFlag     = "log-format"
	metricsAddrFlag   = "metrics-addr"
)

// Config is the resolved configuration of one streamcat run.
type Config struct {
	Upper         bool
	Grep          string
	Number        bool
	HighWaterMark int
	ChunkSize     int
	LogLevel      string
	LogFormat     string
	MetricsAddr   string
}

// DefaultConfig returns the configuration used when no flag or environment
// variable is set.
func DefaultConfig() Config {
	return Config{
		HighWaterMark: 256,
		ChunkSize:     32 * 1024,
		LogLevel:      "error",
		LogFormat:     "text",
	}
}

func (c Config) validate() error {
	return validation.First(
		validation.ValidatePositive("streamcat", "HighWaterMark", c.HighWaterMark),
		validation.ValidatePositive("streamcat", "ChunkSize", c.ChunkSize),
	)
}

// newRootCommand reads flags from the command line and from environment
// variables prefixed with STREAMCAT, in that order.
func newRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("STREAMCAT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "streamcat [file]",
		Short: "Copy a file or stdin to stdout through line filters",
		Long: `Copy a file, or standard input when no file or "-" is given, to standard
output one line at a time. Lines can be filtered with --grep, upper-cased
with --upper and numbered with --number. Reading, filtering and writing are
separate streams joined in a pipeline, so a slow stdout holds back reading
instead of growing memory.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := readConfig(v)
			if err := cfg.validate(); err != nil {
				return err
			}
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return run(cmd.Context(), cfg, path, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	defaults := DefaultConfig()
	flags := cmd.Flags()

	flags.Bool(upperFlag, defaults.Upper, "upper-case every line")
	flags.String(grepFlag, defaults.Grep, "only copy lines matching this regular expression")
	flags.BoolP(numberFlag, "n", defaults.Number, "number the output lines")
	flags.Int(highWaterMarkFlag, defaults.HighWaterMark, "number of lines each stage buffers before applying back-pressure")
	flags.Int(chunkSizeFlag, defaults.ChunkSize, "size in bytes of each read from the input")
	flags.String(logLevelFlag, defaults.LogLevel, "log level: none, debug, info, warn or error")
	flags.String(logFormatFlag, defaults.LogFormat, "log format: text or json")
	flags.String(metricsAddrFlag, defaults.MetricsAddr, "host:port to serve Prometheus metrics on while streaming")

	flags.VisitAll(func(f *pflag.Flag) {
		mustBindPFlag(v, f.Name, f)
	})

	return cmd
}

func mustBindPFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind pflag %s: %v", key, err))
	}
}

func readConfig(v *viper.Viper) Config {
	return Config{
		Upper:         v.GetBool(upperFlag),
		Grep:          v.GetString(grepFlag),
		Number:        v.GetBool(numberFlag),
		HighWaterMark: v.GetInt(highWaterMarkFlag),
		ChunkSize:     v.GetInt(chunkSizeFlag),
		LogLevel:      v.GetString(logLevelFlag),
		LogFormat:     v.GetString(logFormatFlag),
		MetricsAddr:   v.GetString(metricsAddrFlag),
	}
}
