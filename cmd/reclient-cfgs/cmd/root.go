package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/oshokin/reclient-cfgs/internal/config"
	"github.com/oshokin/reclient-cfgs/internal/logger"
	"github.com/oshokin/reclient-cfgs/internal/service/configurer"
	"github.com/oshokin/reclient-cfgs/internal/version"
)

var (
	// configPath to an optional YAML defaults file.
	configPath string

	// Flag values mirrored into configurer.Options.
	rewrapperProject string
	rbeProject       string
	reproxyTemplate  string
	rbeInstance      string
	cipdPrefix       string
	srcRoot          string
	skipFetch        bool
	quiet            bool

	// rootCmd represents the base command configuring reclient cfgs.
	rootCmd = &cobra.Command{
		Use:   "reclient-cfgs",
		Short: "Configure reclient cfgs for remote execution",
		Long: "Fetch remote-execution client configs from CIPD for the checked-out " +
			"toolchain revisions and optionally generate reproxy.cfg from a template.",
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			if quiet {
				logger.SetLevel(zapcore.WarnLevel)
			}

			project := rewrapperProject
			if project == "" {
				project = rbeProject
			}

			options := &configurer.Options{
				ConfigPath: configPath,
				Instance:   rbeInstance,
				Project:    project,
				Template:   reproxyTemplate,
				CIPDPrefix: cipdPrefix,
				SrcRoot:    srcRoot,
				SkipFetch:  skipFetch,
				Quiet:      quiet,
			}

			return configurer.Run(ctx, options)
		},
	}
)

// Execute runs the reclient-cfgs CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	flags := rootCmd.Flags()
	flags.StringVar(&rewrapperProject, "rewrapper_cfg_project", "",
		"RBE project id for rewrapper configs; only needed if different from the instance project")
	flags.StringVar(&rbeProject, "rbe_project", "",
		"deprecated alias for --rewrapper_cfg_project")
	flags.StringVar(&reproxyTemplate, "reproxy_cfg_template", "",
		"template used to generate reproxy.cfg; requires --rbe_instance")
	flags.StringVar(&rbeInstance, "rbe_instance", os.Getenv(config.InstanceEnvVar),
		"RBE instance for rewrapper and reproxy configs")
	flags.StringVar(&cipdPrefix, "cipd_prefix", "",
		"cipd package name prefix (default "+config.DefaultCIPDPrefix+")")
	flags.StringVar(&srcRoot, "src_root", "",
		"build tree root containing buildtools/ and tools/ (default \".\")")
	flags.BoolVar(&skipFetch, "skip_remoteexec_cfg_fetch", false,
		"skip downloading reclient cfgs from the CIPD server")
	flags.BoolVar(&quiet, "quiet", false, "suppress info logs")
	flags.StringVarP(&configPath, "config", "c", "", "path to an optional YAML defaults file")
}
