package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind         string
	gamedata     string
	port         int
	prefix       string
	profile      bool
	targetURL    string
	tlsCert      string
	tlsKey       string
	verbose      bool
	version      bool
	wikiDomain   string
	wikiLanguage string
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.wikiDomain == "" {
		return errors.New("--wiki-domain must not be empty")
	}
	if !isSafeURL(c.wikiDomain, c.targetURL) {
		return fmt.Errorf("default target %q is not a valid %s URL", c.targetURL, c.wikiDomain)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func (c *Config) wikiBase() string {
	return "https://" + c.wikiLanguage + "." + c.wikiDomain
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("WIKIGAME")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "wikigame",
		Short:         "A multiplayer race-to-the-target game played across Wikipedia.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: WIKIGAME_BIND)")
	fs.StringVar(&cfg.gamedata, "gamedata", "gamedata", "directory holding per-difficulty page lists (env: WIKIGAME_GAMEDATA)")
	fs.IntVarP(&cfg.port, "port", "p", 5500, "port to listen on (env: WIKIGAME_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: WIKIGAME_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: WIKIGAME_PROFILE)")
	fs.StringVar(&cfg.targetURL, "target-url", "https://ja.wikipedia.org/wiki/日本", "default target page for new rooms (env: WIKIGAME_TARGET_URL)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: WIKIGAME_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: WIKIGAME_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: WIKIGAME_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: WIKIGAME_VERSION)")
	fs.StringVar(&cfg.wikiDomain, "wiki-domain", "wikipedia.org", "domain all fetched pages must belong to (env: WIKIGAME_WIKI_DOMAIN)")
	fs.StringVar(&cfg.wikiLanguage, "wiki-language", "ja", "language subdomain used for random pages and search (env: WIKIGAME_WIKI_LANGUAGE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("wikigame v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
