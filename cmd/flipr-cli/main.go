package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/docopt/docopt-go"

	"github.com/joshp123/gohome-flipr/internal/config"
	"github.com/joshp123/gohome-flipr/internal/logging"
	"github.com/joshp123/gohome-flipr/plugins/flipr"
)

var version = "dev"

const usage = `Flipr command line utility.

Usage:
  flipr-cli [options] modules
  flipr-cli [options] survey <serial>
  flipr-cli [options] hub state <serial>
  flipr-cli [options] hub (start|stop) <serial>
  flipr-cli [options] hub mode <serial> <mode>
  flipr-cli [options] hub test [<serial>]
  flipr-cli -h | --help
  flipr-cli --version

Options:
  -u --username=<email>  Flipr account, defaults to $FLIPR_USERNAME.
  -p --password=<pw>     Flipr password, defaults to $FLIPR_PASSWORD.
  --base-url=<url>       API base URL [default: https://apis.goflipr.com].
  --pause=<duration>     Pause between writes during hub test [default: 5s].
  --json                 Print JSON instead of tables.
  -v --verbose           Log requests.
  -h --help              Show this screen.
  --version              Show version.

Modes: manual, auto, planning.
`

type cli struct {
	client *flipr.Client
	out    outputMode
	pause  time.Duration
}

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		usageError(err)
	}

	username := stringOpt(opts, "--username")
	if username == "" {
		username = os.Getenv(config.EnvUsername)
	}
	password := stringOpt(opts, "--password")
	if password == "" {
		password = os.Getenv(config.EnvPassword)
	}
	if username == "" || password == "" {
		usageError(fmt.Errorf("credentials required: pass --username/--password or set %s and %s", config.EnvUsername, config.EnvPassword))
	}

	pause, err := time.ParseDuration(stringOpt(opts, "--pause"))
	if err != nil {
		usageError(fmt.Errorf("--pause: %w", err))
	}

	var mode flipr.HubMode
	if boolOpt(opts, "mode") {
		mode, err = flipr.ParseHubMode(stringOpt(opts, "<mode>"))
		if err != nil {
			usageError(err)
		}
	}

	log := logging.Nop()
	if boolOpt(opts, "--verbose") {
		log, err = logging.New(logging.DebugLevel, "console")
		if err != nil {
			fatal("logger", err)
		}
	}

	client, err := flipr.NewClient(flipr.Config{BaseURL: stringOpt(opts, "--base-url")}, log)
	if err != nil {
		fatal("client", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := client.Authenticate(ctx, username, password); err != nil {
		fatal("authenticate", err)
	}

	c := cli{client: client, out: outputMode{json: boolOpt(opts, "--json")}, pause: pause}
	serial := stringOpt(opts, "<serial>")

	switch {
	case boolOpt(opts, "modules"):
		c.modules(ctx)
	case boolOpt(opts, "survey"):
		c.survey(ctx, serial)
	case boolOpt(opts, "state"):
		c.hubState(ctx, serial)
	case boolOpt(opts, "start"):
		c.write(serial, "start", client.StartHub(ctx, serial))
	case boolOpt(opts, "stop"):
		c.write(serial, "stop", client.StopHub(ctx, serial))
	case boolOpt(opts, "mode"):
		c.write(serial, "mode "+string(mode), client.SetHubMode(ctx, serial, mode))
	case boolOpt(opts, "test"):
		c.hubTest(ctx, serial, log)
	}
}

func (c cli) modules(ctx context.Context) {
	modules, err := c.client.Modules(ctx)
	if err != nil {
		fatal("list modules", err)
	}
	if c.out.json {
		c.out.printJSON(modules)
		return
	}

	rows := [][]string{{"SERIAL", "TYPE", "KIND", "STATUS", "LAST MEASURE"}}
	for _, m := range modules {
		rows = append(rows, []string{m.Serial, m.CommercialType.Value, flipr.Classify(m).String(), m.Status.Status, m.LastMeasureDateTime})
	}
	c.out.table(rows)
}

func (c cli) survey(ctx context.Context, serial string) {
	survey, err := c.client.LastSurvey(ctx, serial)
	if err != nil {
		fatal("survey", err)
	}
	if survey == nil {
		fmt.Println("no survey available")
		return
	}
	if c.out.json {
		c.out.printJSON(survey)
		return
	}

	c.out.table([][]string{
		{"MEASURE", "VALUE", "LABEL"},
		{"time", survey.DateTime, ""},
		{"temperature", formatFloat(survey.Temperature), "°C"},
		{"ph", formatFloat(survey.PH.Value), survey.PH.Label},
		{"orp", formatFloat(survey.OxydoReductionPotentiel.Value), survey.OxydoReductionPotentiel.Label},
		{"disinfectant", formatFloat(survey.Desinfectant.Value), survey.Desinfectant.Label},
		{"conductivity", survey.Conductivity.Level, survey.Conductivity.Label},
		{"uv index", formatFloat(survey.UvIndex), ""},
		{"battery", formatFloat(survey.Battery.Deviation), survey.Battery.Label},
	})
}

func (c cli) hubState(ctx context.Context, serial string) {
	state, err := c.client.HubState(ctx, serial)
	if err != nil {
		fatal("hub state", err)
	}
	if state == nil {
		fmt.Println("no hub state available")
		return
	}
	if c.out.json {
		c.out.printJSON(state)
		return
	}
	c.out.table([][]string{
		{"SERIAL", "ON", "MODE"},
		{serial, strconv.FormatBool(state.IsOn()), string(state.Behavior)},
	})
}

func (c cli) write(serial, action string, ok bool) {
	if c.out.json {
		c.out.printJSON(map[string]any{"serial": serial, "action": action, "ok": ok})
	} else {
		fmt.Printf("%s %s: %s\n", serial, action, okText(ok))
	}
	if !ok {
		os.Exit(1)
	}
}

func okText(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func stringOpt(opts docopt.Opts, key string) string {
	v, _ := opts[key].(string)
	return v
}

func boolOpt(opts docopt.Opts, key string) bool {
	v, _ := opts[key].(bool)
	return v
}

func usageError(err error) {
	fmt.Fprintf(os.Stderr, "%v\n\n%s", err, usage)
	os.Exit(2)
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}
