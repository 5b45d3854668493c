// Package rtos implements the real-time environment check of spec §4.F:
// a one-shot verification, run before any service starts, that the host
// has been booted with the kernel command-line flags a rate-monotonic
// pipeline depends on.
package rtos

import (
	"os"
	"strconv"
	"strings"

	"github.com/behrlich/audiosequencer/internal/rterr"
	"github.com/behrlich/audiosequencer/internal/rtlog"
)

// DefaultCmdlinePath is the target platform's kernel command-line file.
const DefaultCmdlinePath = "/boot/firmware/cmdline.txt"

// expectation describes one kernel command-line token the check verifies.
type expectation struct {
	token    string
	isRange  bool
	wantCPUs map[int]struct{}
}

// expectations mirrors spec's table verbatim: four cpu-range options and
// two bare flags.
var expectations = []expectation{
	{token: "isolcpus", isRange: true, wantCPUs: cpuSet(2, 3)},
	{token: "rcu_nocbs", isRange: true, wantCPUs: cpuSet(2, 3)},
	{token: "nohz_full", isRange: true, wantCPUs: cpuSet(1, 3)},
	{token: "kthread_cpus", isRange: true, wantCPUs: cpuSet(0, 1)},
	{token: "nosoftlockup", isRange: false},
	{token: "rcu_nocb_poll", isRange: false},
}

func cpuSet(cpus ...int) map[int]struct{} {
	m := make(map[int]struct{}, len(cpus))
	for _, c := range cpus {
		m[c] = struct{}{}
	}
	return m
}

// Checker runs the environment verification. CmdlinePath is overridable so
// tests can point it at a fixture instead of the real boot partition.
type Checker struct {
	CmdlinePath string
	Geteuid     func() int
	Logger      *rtlog.Logger
}

// NewChecker returns a Checker wired to the real target paths and syscalls.
func NewChecker(logger *rtlog.Logger) *Checker {
	if logger == nil {
		logger = rtlog.Default()
	}
	return &Checker{
		CmdlinePath: DefaultCmdlinePath,
		Geteuid:     os.Geteuid,
		Logger:      logger,
	}
}

// Run performs the check: it aborts (returns an error) only when the
// process is not running as effective root. Missing command-line flags are
// logged as warnings, never fatal, exactly as spec.md mandates.
func (c *Checker) Run() error {
	if c.Geteuid() != 0 {
		return rterr.New("CheckEnvironment", rterr.CodeSetup, "must run as root (effective UID 0)")
	}

	data, err := os.ReadFile(c.CmdlinePath)
	if err != nil {
		c.Logger.Warn("could not read kernel command line; skipping boot-flag checks",
			"path", c.CmdlinePath, "error", err)
		return nil
	}

	tokens := strings.Fields(strings.ReplaceAll(string(data), "\n", " "))
	present := make(map[string]string, len(tokens))
	for _, tok := range tokens {
		if key, value, ok := strings.Cut(tok, "="); ok {
			present[key] = value
		} else {
			present[tok] = ""
		}
	}

	for _, exp := range expectations {
		value, ok := present[exp.token]
		if !ok {
			c.Logger.Warn("expected boot flag absent", "token", exp.token)
			continue
		}
		if !exp.isRange {
			continue
		}
		got, err := parseRange(value)
		if err != nil {
			c.Logger.Warn("boot flag has unparseable cpu range", "token", exp.token, "value", value, "error", err)
			continue
		}
		if !equalSets(got, exp.wantCPUs) {
			c.Logger.Warn("boot flag cpu range does not match expectation",
				"token", exp.token, "got", value, "want", exp.wantCPUs)
		}
	}
	return nil
}

// parseRange accepts the "a-b" inclusive form; comma-separated lists are
// reserved by spec and not parsed.
func parseRange(s string) (map[int]struct{}, error) {
	a, b, ok := strings.Cut(s, "-")
	lo, err := strconv.Atoi(a)
	if err != nil {
		return nil, err
	}
	hi := lo
	if ok {
		hi, err = strconv.Atoi(b)
		if err != nil {
			return nil, err
		}
	}
	out := make(map[int]struct{}, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out[i] = struct{}{}
	}
	return out, nil
}

func equalSets(a, b map[int]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// CheckEnvironment runs the check with the default target paths.
func CheckEnvironment(logger *rtlog.Logger) error {
	return NewChecker(logger).Run()
}
