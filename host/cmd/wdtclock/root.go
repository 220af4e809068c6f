package main

import (
	"io"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"wdtclock/host/device"
	"wdtclock/host/serial"
	"wdtclock/protocol"
)

const envPrefix = "WDTCLOCK"

// app carries the settings shared by every subcommand
type app struct {
	v       *viper.Viper
	cfgFile string

	// dial opens the link to the board; replaced in tests
	dial func(v *viper.Viper) (io.ReadWriteCloser, error)
}

func newApp() *app {
	return &app{v: viper.New(), dial: dialSerial}
}

func dialSerial(v *viper.Viper) (io.ReadWriteCloser, error) {
	cfg := serial.DefaultConfig(v.GetString("port"))
	cfg.Baud = v.GetInt("baud")
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	return serial.DiscardStale(port)
}

func (a *app) setDefaults() {
	a.v.SetDefault("port", "/dev/ttyACM0")
	a.v.SetDefault("baud", 115200)
	a.v.SetDefault("timeout", "2s")
	a.v.SetDefault("ntp", "pool.ntp.org")
}

func (a *app) initConfig() error {
	a.setDefaults()
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if a.cfgFile == "" {
		return nil
	}
	a.v.SetConfigFile(a.cfgFile)
	if err := a.v.ReadInConfig(); err != nil {
		return oops.Wrapf(err, "reading config %s", a.cfgFile)
	}
	log.WithField("file", a.v.ConfigFileUsed()).Debug("loaded config")
	return nil
}

func (a *app) root() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "wdtclock",
		Short:         "Talk to a watchdog-timer clock board",
		Version:       protocol.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("port", "/dev/ttyACM0", "serial device of the board")
	flags.Int("baud", 115200, "serial baud rate")
	flags.Duration("timeout", 2*time.Second, "per-command response timeout")
	flags.String("ntp", "pool.ntp.org", "NTP server used by sync and set --ntp")
	for _, name := range []string{"port", "baud", "timeout", "ntp"} {
		_ = a.v.BindPFlag(name, flags.Lookup(name))
	}

	cmd.AddCommand(
		a.getCmd(),
		a.setCmd(),
		a.adjustCmd(),
		a.calibrationCmd(),
		a.tuneCmd(),
		a.syncCmd(),
		a.eventsCmd(),
		breakdownCmd(),
		simulateCmd(),
	)
	return cmd
}

// connect opens the board and wraps it in a client
func (a *app) connect() (*device.Client, error) {
	port, err := a.dial(a.v)
	if err != nil {
		return nil, oops.Wrapf(err, "opening %s", a.v.GetString("port"))
	}
	client := device.NewClient(port)
	if d := a.v.GetDuration("timeout"); d > 0 {
		client.Timeout = d
	}
	return client, nil
}

// withClient runs fn against a connected board and always closes it
func (a *app) withClient(fn func(c *device.Client) error) error {
	client, err := a.connect()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			log.WithError(cerr).Debug("closing board link")
		}
	}()
	return fn(client)
}
