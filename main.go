package main

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/balena-os/hup-ladder/pkg/config"
	"github.com/balena-os/hup-ladder/pkg/ladder"
	"github.com/balena-os/hup-ladder/pkg/logging"
	"github.com/balena-os/hup-ladder/pkg/platform/balena"
	"github.com/balena-os/hup-ladder/pkg/sigcontext"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time.
var Version = "dev"

var (
	flagEnvFile string
	settings    = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "hup-ladder",
	Short: "Step a device through successive host OS updates",
	Long: `hup-ladder updates the host OS of one device to each successive supported
version until none is left, waiting for every update to complete and giving
up once the failure budget is spent.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

func init() {
	rootCmd.Flags().StringVar(&flagEnvFile, "env-file", "", "dotenv file to load (default "+config.DefaultEnvFile+" if present)")
	if err := config.BindFlags(settings, rootCmd.Flags()); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logging.New("main").WithError(err).Error("HUP ladder stopped")
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadEnvFile(flagEnvFile); err != nil {
		return err
	}
	cfg, err := config.Load(settings)
	if err != nil {
		return err
	}
	if cfg.Debug {
		logging.Set(logging.Level("debug"))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logging.New("main")
	if logging.Debuggable {
		log.Warn("logging.Debuggable build logs API traffic, including device data")
	}

	ctx, cancel := sigcontext.WithSignalCancel(context.Background(), log, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return runLadder(ctx, cfg)
}

func runLadder(ctx context.Context, cfg *config.Config) error {
	plat, err := balena.New(logging.New("platform"), balena.Config{
		Staging:    cfg.Staging,
		APIURL:     cfg.APIURL,
		ActionsURL: cfg.ActionsURL,
	})
	if err != nil {
		return errors.WithMessage(err, "could not setup platform")
	}
	r, err := ladder.New(logging.New("ladder"), plat, ladder.Config{
		DeviceID:     cfg.UUID,
		Token:        cfg.Token,
		MaxFails:     cfg.MaxFails,
		Step:         cfg.Step,
		RandomOrder:  cfg.RandomOrder,
		PollInterval: cfg.PollInterval,
	})
	if err != nil {
		return errors.WithMessage(err, "initialization error")
	}
	return errors.WithMessage(r.Run(ctx), "run error")
}
