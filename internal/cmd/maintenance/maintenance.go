// Package maintenance runs one maintenance pass against a provisioned
// instance and reports its lifecycle state.
package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/louisbranch/homebook/internal/platform/buildinfo"
	entrypoint "github.com/louisbranch/homebook/internal/platform/cmd"
	"github.com/louisbranch/homebook/internal/platform/fsys"
	"github.com/louisbranch/homebook/internal/platform/logging"
	"github.com/louisbranch/homebook/internal/platform/paths"
	server "github.com/louisbranch/homebook/internal/services/instance/app"
	"github.com/louisbranch/homebook/internal/services/instance/envconfig"
	"github.com/louisbranch/homebook/internal/services/instance/state"
	"github.com/louisbranch/homebook/internal/services/instance/updates"
)

// Config holds maintenance command configuration.
type Config struct {
	Root       string        `env:"HOMEBOOK_ROOT" envDefault:"."`
	Timeout    time.Duration `env:"HOMEBOOK_MAINTENANCE_TIMEOUT" envDefault:"10m"`
	LogLevel   string        `env:"HOMEBOOK_LOG_LEVEL" envDefault:"info"`
	StatusOnly bool
	JSONOutput bool
}

// Report describes the instance after the command ran.
type Report struct {
	State              string   `json:"state"`
	RunningVersion     string   `json:"running_version"`
	ProvisionedVersion string   `json:"provisioned_version,omitempty"`
	InstanceVersion    string   `json:"instance_version,omitempty"`
	UpdateRequired     bool     `json:"update_required"`
	AppliedUpdates     []string `json:"applied_updates"`
	MaintenanceRan     bool     `json:"maintenance_ran"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	fs.StringVar(&cfg.Root, "root", "", "instance root directory")
	fs.DurationVar(&cfg.Timeout, "timeout", 0, "overall timeout")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.BoolVar(&cfg.StatusOnly, "status", false, "report instance state without running maintenance")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "output a JSON report")
	if err := entrypoint.ParseConfigFromArgs(&cfg, fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the maintenance command. Logs go to errOut and the report
// to out.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	if strings.TrimSpace(cfg.Root) == "" {
		return errors.New("-root is required")
	}
	logger := logging.NewWithWriter(errOut, entrypoint.ServiceMaintenance, cfg.LogLevel)

	return entrypoint.RunWithTelemetryAndOptions(ctx, entrypoint.ServiceMaintenance, entrypoint.RunOptions{Logger: logger}, func(ctx context.Context) error {
		env, err := envconfig.ForRoot(cfg.Root)
		if err != nil {
			return err
		}
		fs := fsys.NewOS()
		inst, err := server.NewInstance(server.Options{
			Root:    cfg.Root,
			Version: buildinfo.Version,
			Env:     env,
			FS:      fs,
			Logger:  logger,
		})
		if err != nil {
			return err
		}

		ran := false
		if !cfg.StatusOnly {
			current, err := inst.State(ctx)
			if err != nil {
				return err
			}
			if current != state.Running {
				return fmt.Errorf("instance is %s; run setup first", current)
			}
			if err := inst.Maintain(ctx); err != nil {
				return err
			}
			ran = true
		}

		report, err := buildReport(ctx, fs, paths.New(cfg.Root), buildinfo.Version)
		if err != nil {
			return err
		}
		report.MaintenanceRan = ran
		return writeReport(out, report, cfg.JSONOutput)
	})
}

func buildReport(ctx context.Context, fs fsys.FileSystem, p paths.Provider, runningVersion string) (Report, error) {
	tracker := state.NewTracker(fs, p, runningVersion, nil)
	current, err := tracker.State(ctx)
	if err != nil {
		return Report{}, err
	}
	report := Report{State: string(current), RunningVersion: runningVersion, AppliedUpdates: []string{}}
	if report.ProvisionedVersion, err = tracker.ProvisionedVersion(ctx); err != nil {
		return Report{}, err
	}
	if report.InstanceVersion, err = tracker.InstanceVersion(ctx); err != nil {
		return Report{}, err
	}
	if report.UpdateRequired, err = tracker.IsUpdateRequired(ctx); err != nil {
		return Report{}, err
	}
	applied, err := updates.NewJournal(fs, p).Load(ctx)
	if err != nil {
		return Report{}, err
	}
	for _, v := range applied {
		report.AppliedUpdates = append(report.AppliedUpdates, v.String())
	}
	return report, nil
}

func writeReport(out io.Writer, report Report, asJSON bool) error {
	if asJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}
	fmt.Fprintf(out, "state: %s\n", report.State)
	fmt.Fprintf(out, "running version: %s\n", report.RunningVersion)
	if report.ProvisionedVersion != "" {
		fmt.Fprintf(out, "provisioned version: %s\n", report.ProvisionedVersion)
	}
	if report.InstanceVersion != "" {
		fmt.Fprintf(out, "instance version: %s\n", report.InstanceVersion)
	}
	fmt.Fprintf(out, "update required: %t\n", report.UpdateRequired)
	if len(report.AppliedUpdates) == 0 {
		fmt.Fprintln(out, "applied updates: none")
	} else {
		fmt.Fprintf(out, "applied updates: %s\n", strings.Join(report.AppliedUpdates, ", "))
	}
	if report.MaintenanceRan {
		fmt.Fprintln(out, "maintenance pass complete")
	}
	return nil
}
