package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/electricbubble/gadb"
	"github.com/google/subcommands"

	"devtester/internal/config"
	"devtester/internal/disposition"
	"devtester/internal/loader"
	"devtester/internal/logging"
	"devtester/internal/report"
	"devtester/internal/runner"
	"devtester/internal/service"
	"devtester/internal/signalbus"
	"devtester/internal/testbed"
)

// runCmd implements subcommands.Command to support running tests.
type runCmd struct {
	configPath string
	resultsDir string
	repeat int
	workerPath string
	adbAddr string
}

func (*runCmd) Name() string { return "run" }
func (*runCmd) Synopsis() string { return "run one or more tests against a configured testbed" }
func (*runCmd) Usage() string {
	return `run -config=<path> <implpath1> <implpath2>...:
	Runs the named test implementations against the testbed named in config.
`
}

func (r *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.configPath, "config", "devtester.yaml", "path to the run configuration file")
	f.StringVar(&r.resultsDir, "resultdir", "/tmp/devtester/results", "base directory under which results are written")
	f.IntVar(&r.repeat, "repeat", 1, "number of times to repeat the selected runnables")
	f.StringVar(&r.workerPath, "worker", "devtester-worker", "path to the devtester-worker coprocess binary")
	f.StringVar(&r.adbAddr, "adb", "", "host:port adb should connect to for androidcpu/androidmemory sampling (empty disables those services)")
}

func (r *runCmd) Execute(ctx context.Context, f *flag.FlagSet, _...interface{}) subcommands.ExitStatus {
	data, err := os.ReadFile(r.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "devtester: reading config:", err)
		return subcommands.ExitFailure
	}
	cfg, err := config.Load(data)
	if err != nil {
		fmt.Fprintln(os.Stderr, "devtester: parsing config:", err)
		return subcommands.ExitFailure
	}

	reportName, _ := cfg.StringOr("reportname", "default")
	names := strings.Split(reportName, ",")
	for i := range names {
		names[i] = strings.TrimSpace(names[i])
	}
	rpt, err := report.Find(names, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "devtester: resolving report sink:", err)
		return subcommands.ExitFailure
	}

	logger := logging.NewMultiLogger(logging.NewSinkLogger(logging.LevelInfo, true, logging.NewWriterSink(os.Stderr)))
	bus := signalbus.New(logger)
	if err := rpt.Init(bus); err != nil {
		fmt.Fprintln(os.Stderr, "devtester: initializing report sink:", err)
		return subcommands.ExitFailure
	}

	run := runner.New(bus, cfg, r.resultsDir)
	run.Report = rpt

	if spec, err := resolveTestbedSpec(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "devtester: resolving testbed:", err)
		return subcommands.ExitFailure
	} else if spec != nil {
		run.TestbedSpec = spec
	}

	service.WorkerPath = r.workerPath
	run.ServiceProviders = r.serviceProviders()

	reg := loader.NewRegistry()
	RegisterTestCases(reg) // populated by whichever test packages this binary is linked with

	var selections []loader.Selection
	for _, path := range f.Args() {
		selections = append(selections, loader.Selection{ImplPath: path})
	}

	objects := loader.Select(reg, selections, nil, func(path string, err error) {
		fmt.Fprintf(os.Stderr, "devtester: %s: %v\n", path, err)
	})

	repeat := r.repeat
	if repeat <= 1 {
		repeat, _ = cfg.IntOr("flags.repeat", repeat)
	}

	agg := run.RunAll(ctx, objects, repeat)

	return subcommands.ExitStatus(disposition.ExitCode(agg))
}

// serviceProviders builds the ServiceProviders factory built-in
// services are exercised through: seriallog and the two coprocess-backed
// services (logcat, monsoon) are always available since they need
// nothing beyond a logdir; androidcpu/androidmemory additionally need a
// live adb server, so they're only registered when -adb names one.
func (r *runCmd) serviceProviders() func(logDir string) map[string]service.Provider {
	return func(logDir string) map[string]service.Provider {
		providers := map[string]service.Provider{
			"seriallog": &service.SeriallogProvider{LogDir: logDir, Open: openSerialDevice},
			"logcat": service.NewLogcatProvider(logDir),
			"monsoon": service.NewMonsoonProvider(),
		}

		if r.adbAddr == "" {
			return providers
		}
		client, err := gadb.NewClient()
		if err != nil {
			fmt.Fprintf(os.Stderr, "devtester: connecting to local adb server: %v; androidcpu/androidmemory disabled\n", err)
			return providers
		}
		host, portStr, err := net.SplitHostPort(r.adbAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "devtester: -adb %q: %v; androidcpu/androidmemory disabled\n", r.adbAddr, err)
			return providers
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "devtester: -adb %q: %v; androidcpu/androidmemory disabled\n", r.adbAddr, err)
			return providers
		}
		if err := client.Connect(host, port); err != nil {
			fmt.Fprintf(os.Stderr, "devtester: adb connect %s: %v; androidcpu/androidmemory disabled\n", r.adbAddr, err)
			return providers
		}
		providers["androidcpu"] = service.NewAndroidCPUProvider(client)
		providers["androidmemory"] = service.NewAndroidMemoryProvider(client)
		return providers
	}
}

// openSerialDevice is the real SerialOpener the seriallog service uses
// outside tests: the device-driver library that actually configures baud
// rate and line discipline is an external collaborator, so this
// opens the path as a plain character device, relying on whatever the
// OS/udev rule already configured it to.
func openSerialDevice(device string) (io.ReadCloser, error) {
	return os.OpenFile(device, os.O_RDONLY, 0)
}

// resolveTestbedSpec turns the "testbed" name in cfg into a
// runner.TestbedSpec by looking it up under "testbeds.<name>".
// Production deployments resolve testbed names against the persistent
// external inventory store; keeping the lookup in the run's own config
// file covers everything this binary needs without growing a database
// client of its own. A config with no "testbed" key returns (nil, nil):
// fine for a selection of test cases that never touch the testbed.
func resolveTestbedSpec(cfg *config.Tree) (*runner.TestbedSpec, error) {
	name, err := cfg.StringOr("testbed", "")
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, nil
	}

	row, err := cfg.Get("testbeds." + name)
	if err != nil {
		return nil, fmt.Errorf("testbed %q not found under testbeds: %w", name, err)
	}
	m, ok := row.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("testbeds.%s: expected a mapping", name)
	}

	attrs, _ := m["attrs"].(map[string]interface{})
	equipment, err := toEquipmentRows(m["equipment"])
	if err != nil {
		return nil, fmt.Errorf("testbeds.%s.equipment: %w", name, err)
	}

	return &runner.TestbedSpec{Name: name, Attrs: attrs, Equipment: equipment}, nil
}

func toEquipmentRows(v interface{}) ([]testbed.Row, error) {
	list, ok := v.([]interface{})
	if !ok {
		if v == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("expected a list")
	}
	rows := make([]testbed.Row, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("expected a mapping per equipment row")
		}
		name, _ := m["name"].(string)
		role, _ := m["role"].(string)
		attrs, _ := m["attrs"].(map[string]interface{})
		model, _ := m["model"].(map[string]interface{})
		components, err := toEquipmentRows(m["components"])
		if err != nil {
			return nil, err
		}
		rows = append(rows, testbed.Row{Name: name, Role: role, Attrs: attrs, Model: model, Components: components})
	}
	return rows, nil
}
