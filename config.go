package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind         string
	gracePeriod  time.Duration
	minPlayers   int
	port         int
	prefix       string
	profile      bool
	questions    string
	roundTimer   bool
	tlsCert      string
	tlsKey       string
	verbose      bool
	version      bool
	voteDuration time.Duration
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.minPlayers < 1 {
		return fmt.Errorf("invalid minimum player count: %d", c.minPlayers)
	}
	if c.gracePeriod <= 0 {
		return fmt.Errorf("invalid grace period: %s", c.gracePeriod)
	}
	if c.roundTimer && c.voteDuration <= 0 {
		return fmt.Errorf("invalid vote duration: %s", c.voteDuration)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("WHOWASTHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "whowasthat",
		Short:         "A realtime yes/no trivia party game, played in short-lived rooms.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}

			questions, err := loadQuestions(cfg.questions)
			if err != nil {
				return err
			}

			return ServePage(cmd.Context(), cfg, questions)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: WHOWASTHAT_BIND)")
	fs.DurationVar(&cfg.gracePeriod, "grace-period", 2*time.Minute, "time a disconnected player's seat is held for rejoin (env: WHOWASTHAT_GRACE_PERIOD)")
	fs.IntVar(&cfg.minPlayers, "min-players", 2, "players required to start a game (env: WHOWASTHAT_MIN_PLAYERS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: WHOWASTHAT_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: WHOWASTHAT_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: WHOWASTHAT_PROFILE)")
	fs.StringVarP(&cfg.questions, "questions", "q", "questions.json", "path to question file (env: WHOWASTHAT_QUESTIONS)")
	fs.BoolVar(&cfg.roundTimer, "round-timer", false, "end voting automatically after --vote-duration (env: WHOWASTHAT_ROUND_TIMER)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: WHOWASTHAT_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: WHOWASTHAT_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: WHOWASTHAT_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: WHOWASTHAT_VERSION)")
	fs.DurationVar(&cfg.voteDuration, "vote-duration", 30*time.Second, "voting window per question when --round-timer is set (env: WHOWASTHAT_VOTE_DURATION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("whowasthat v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
