// Package reference provides trusted time sources the host uses to set and
// calibrate a clock board.
package reference

import (
	"time"

	"github.com/beevik/ntp"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"wdtclock/core"
)

var log = logger.GetGoI2PLogger()

// Source is a trusted wall clock
type Source interface {
	Now() (time.Time, error)
	Name() string
}

// System trusts the host's own clock
type System struct{}

func (System) Now() (time.Time, error) {
	return time.Now(), nil
}

func (System) Name() string {
	return "system"
}

// NTPClient is the part of beevik/ntp the NTP source uses
type NTPClient interface {
	QueryWithOptions(host string, options ntp.QueryOptions) (*ntp.Response, error)
}

type defaultNTPClient struct{}

func (defaultNTPClient) QueryWithOptions(host string, options ntp.QueryOptions) (*ntp.Response, error) {
	return ntp.QueryWithOptions(host, options)
}

const (
	DefaultNTPServer  = "pool.ntp.org"
	DefaultNTPTimeout = 5 * time.Second
)

// NTP asks an NTP server and corrects the host clock by the reported offset
type NTP struct {
	Server  string
	Timeout time.Duration

	client NTPClient
	now    func() time.Time
}

// NewNTP creates an NTP source for server, or the pool when server is empty
func NewNTP(server string) *NTP {
	if server == "" {
		server = DefaultNTPServer
	}
	return &NTP{
		Server:  server,
		Timeout: DefaultNTPTimeout,
		client:  defaultNTPClient{},
		now:     time.Now,
	}
}

// WithClient replaces the NTP client, for tests
func (n *NTP) WithClient(client NTPClient) *NTP {
	n.client = client
	return n
}

func (n *NTP) Name() string {
	return "ntp:" + n.Server
}

// Now queries the server once. Responses that fail validation are rejected.
func (n *NTP) Now() (time.Time, error) {
	resp, err := n.client.QueryWithOptions(n.Server, ntp.QueryOptions{Timeout: n.Timeout})
	if err != nil {
		log.WithError(err).WithField("server", n.Server).Debug("NTP query failed")
		return time.Time{}, oops.Wrapf(err, "querying %s", n.Server)
	}
	if err := resp.Validate(); err != nil {
		log.WithError(err).WithField("server", n.Server).Debug("NTP response failed validation")
		return time.Time{}, oops.Wrapf(err, "invalid response from %s", n.Server)
	}

	log.WithFields(logger.Fields{
		"server":  n.Server,
		"offset":  resp.ClockOffset,
		"rtt":     resp.RTT,
		"stratum": resp.Stratum,
	}).Debug("NTP reference obtained")

	return n.now().Add(resp.ClockOffset), nil
}

// ToEpoch converts a wall time to clock seconds, rounding to the nearest
// second. Times outside 1970-2106 cannot be represented.
func ToEpoch(t time.Time) (core.Epoch, error) {
	sec := t.Add(500 * time.Millisecond).Unix()
	if sec < 0 || sec > 0xFFFFFFFF {
		return 0, oops.Errorf("time %s is outside the clock's range", t.UTC().Format(time.RFC3339))
	}
	return core.Epoch(sec), nil
}

// FromEpoch converts clock seconds to a UTC time
func FromEpoch(e core.Epoch) time.Time {
	return time.Unix(int64(e), 0).UTC()
}
