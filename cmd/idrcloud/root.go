package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	client "github.com/idrsolutions/idrcloud-client-go"
)

const envPrefix = "IDRCLOUD"

type cliOptions struct {
	v          *viper.Viper
	configFile string

	endpoint          string
	username          string
	password          string
	requestTimeout    time.Duration
	conversionTimeout time.Duration
	pollInterval      time.Duration
	failLogPath       string
	verbose           bool
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{v: viper.New()}

	cmd := &cobra.Command{
		Use:           "idrcloud",
		Short:         "Client for IDRsolutions cloud conversion services",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "Config file (default ./idrcloud.yaml or ~/.config/idrcloud/idrcloud.yaml)")
	pf.String("endpoint", "", "Conversion service endpoint, e.g. https://cloud.idrsolutions.com/cloud/buildvu")
	pf.String("username", "", "HTTP basic auth username")
	pf.String("password", "", "HTTP basic auth password")
	pf.Duration("request-timeout", client.DefaultRequestTimeout, "Timeout for each HTTP request")
	pf.Duration("conversion-timeout", 0, "Give up after polling this long (0 waits indefinitely)")
	pf.Duration("poll-interval", client.DefaultPollInterval, "Wait between status polls")
	pf.String("fail-log", "fail.log", "Path to append failed conversions to (empty disables)")
	pf.BoolP("verbose", "v", false, "Log debug output")

	if err := opts.v.BindPFlags(pf); err != nil {
		panic(fmt.Sprintf("bind flags: %v", err))
	}

	cmd.AddCommand(newConvertCmd(opts))
	cmd.AddCommand(newDownloadCmd(opts))
	cmd.AddCommand(newCompletionCmd())

	return cmd
}

// load resolves flag, environment, and config file values in viper's precedence order.
func (o *cliOptions) load() error {
	o.v.SetEnvPrefix(envPrefix)
	o.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	o.v.AutomaticEnv()

	if o.configFile != "" {
		o.v.SetConfigFile(o.configFile)
	} else {
		o.v.SetConfigName("idrcloud")
		o.v.SetConfigType("yaml")
		o.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			o.v.AddConfigPath(filepath.Join(home, ".config", "idrcloud"))
		}
	}

	if err := o.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if o.configFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	o.endpoint = o.v.GetString("endpoint")
	o.username = o.v.GetString("username")
	o.password = o.v.GetString("password")
	o.requestTimeout = o.v.GetDuration("request-timeout")
	o.conversionTimeout = o.v.GetDuration("conversion-timeout")
	o.pollInterval = o.v.GetDuration("poll-interval")
	o.failLogPath = o.v.GetString("fail-log")
	o.verbose = o.v.GetBool("verbose")

	return nil
}
