package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"wdtclock/core"
	"wdtclock/host/device"
	"wdtclock/host/reference"
	"wdtclock/host/sim"
)

const timeLayout = "2006-01-02 15:04:05 MST"

func statusName(s core.Status) string {
	switch s {
	case core.StatusNotSet:
		return "not set"
	case core.StatusRestored:
		return "restored"
	case core.StatusSet:
		return "set"
	default:
		return "status " + strconv.Itoa(int(s))
	}
}

func stateName(s core.CalibrationState) string {
	if s == core.Tracking {
		return "tracking"
	}
	return "warming up"
}

func printReading(w io.Writer, r device.TimeReading) {
	fmt.Fprintf(w, "%s (epoch %d, %s)\n", r.Time().Format(timeLayout), r.Epoch, statusName(r.Status))
}

func printTune(w io.Writer, r device.TuneReply) {
	fmt.Fprintf(w, "tune: %s, %d us per interrupt\n", r.Result, r.MicrosPerInterrupt)
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Read the board clock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(func(c *device.Client) error {
				r, err := c.GetTime()
				if err != nil {
					return err
				}
				printReading(cmd.OutOrStdout(), r)
				return nil
			})
		},
	}
}

func (a *app) setCmd() *cobra.Command {
	var (
		epoch  uint32
		useNTP bool
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set the board clock from this host, NTP or an explicit epoch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := a.resolveTarget(cmd, epoch, useNTP)
			if err != nil {
				return err
			}
			return a.withClient(func(c *device.Client) error {
				r, err := c.SetTime(target)
				if err != nil {
					return err
				}
				printReading(cmd.OutOrStdout(), r)
				return nil
			})
		},
	}
	cmd.Flags().Uint32Var(&epoch, "epoch", 0, "seconds since 1970-01-01 UTC")
	cmd.Flags().BoolVar(&useNTP, "ntp", false, "take the time from the configured NTP server")
	cmd.MarkFlagsMutuallyExclusive("epoch", "ntp")
	return cmd
}

func (a *app) source(useNTP bool) reference.Source {
	if useNTP {
		return reference.NewNTP(a.v.GetString("ntp"))
	}
	return reference.System{}
}

func (a *app) resolveTarget(cmd *cobra.Command, epoch uint32, useNTP bool) (core.Epoch, error) {
	if cmd.Flags().Changed("epoch") {
		return core.Epoch(epoch), nil
	}
	src := a.source(useNTP)
	now, err := src.Now()
	if err != nil {
		return 0, oops.Wrapf(err, "reading %s", src.Name())
	}
	return reference.ToEpoch(now)
}

func (a *app) adjustCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "adjust <seconds>",
		Short: "Move the board clock by a signed number of seconds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.ParseInt(args[0], 10, 32)
			if err != nil {
				return oops.Wrapf(err, "invalid adjustment %q", args[0])
			}
			return a.withClient(func(c *device.Client) error {
				r, err := c.Adjust(int32(delta))
				if err != nil {
					return err
				}
				printReading(cmd.OutOrStdout(), r)
				return nil
			})
		},
	}
}

func (a *app) calibrationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calibration",
		Short: "Show the calibration constant and window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(func(c *device.Client) error {
				cal, err := c.Calibration()
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "us per interrupt: %d\n", cal.MicrosPerInterrupt)
				fmt.Fprintf(w, "interrupts:       %d\n", cal.Interrupts)
				fmt.Fprintf(w, "pending us:       %d\n", cal.PendingMicros)
				fmt.Fprintf(w, "state:            %s\n", stateName(cal.State))
				return nil
			})
		},
	}
}

func (a *app) tuneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tune",
		Short: "Run one calibration step on the board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(func(c *device.Client) error {
				r, err := c.Tune()
				if err != nil {
					return err
				}
				printTune(cmd.OutOrStdout(), r)
				return nil
			})
		},
	}
}

func (a *app) syncCmd() *cobra.Command {
	var useSystem bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Correct the board from NTP and feed the correction to the calibrator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src := a.source(!useSystem)
			return a.withClient(func(c *device.Client) error {
				res, err := c.Sync(src)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "%s: board was %+d s off\n", src.Name(), res.Offset)
				printTune(w, res.Tune)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&useSystem, "system", false, "use this host's clock instead of NTP")
	return cmd
}

func (a *app) eventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Dump the board's event ring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(func(c *device.Client) error {
				events, err := c.Events()
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "EVENT\tDETAIL")
				for _, e := range events {
					fmt.Fprintf(w, "%s\t%s\n", core.EventName(e.Type), e.Detail())
				}
				return w.Flush()
			})
		},
	}
}

var weekdays = [...]string{"", "Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

func breakdownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "breakdown <epoch>",
		Short: "Show the calendar fields the board computes for an epoch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return oops.Wrapf(err, "invalid epoch %q", args[0])
			}
			f := core.BreakEpoch(core.Epoch(v))
			fmt.Fprintf(cmd.OutOrStdout(), "%04d-%02d-%02d %02d:%02d:%02d %s\n",
				core.CalendarYear(f.Year), f.Month, f.Day, f.Hour, f.Minute, f.Second, weekdays[f.Weekday])
			return nil
		},
	}
}

func simulateCmd() *cobra.Command {
	var (
		realMicros uint32
		hours      int
		syncEvery  int
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate drift and calibration for an off-nominal timer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			samples, err := sim.SimulateDrift(core.DefaultConfig(), sim.DriftParams{
				RealMicros: realMicros,
				Hours:      hours,
				SyncEvery:  syncEvery,
			})
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(w, "HOUR\tERROR_S\tUS_PER_INT\tTUNE\t")
			for _, s := range samples {
				tune := "-"
				if s.Tune != core.TuneNone {
					tune = s.Tune.String()
				}
				fmt.Fprintf(w, "%d\t%d\t%d\t%s\t\n", s.Hour, s.ErrorSeconds, s.MicrosPerInterrupt, tune)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Uint32Var(&realMicros, "real-us", 1010000, "true length of one timer interrupt in microseconds")
	cmd.Flags().IntVar(&hours, "hours", 24, "hours to simulate")
	cmd.Flags().IntVar(&syncEvery, "sync-every", 2, "hours between corrections")
	return cmd
}
