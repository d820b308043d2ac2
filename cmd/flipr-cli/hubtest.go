package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/joshp123/gohome-flipr/plugins/flipr"
)

type testStep struct {
	name string
	run  func(ctx context.Context, serial string) bool
}

type stepResult struct {
	Step string `json:"step"`
	OK   bool   `json:"ok"`
}

// hubTest walks a hub through every control call, pausing between writes
// so the device can settle. Without a serial the first hub is used.
func (c cli) hubTest(ctx context.Context, serial string, log *zap.SugaredLogger) {
	if serial == "" {
		modules, err := c.client.Modules(ctx)
		if err != nil {
			fatal("list modules", err)
		}
		for _, m := range modules {
			if flipr.Classify(m) == flipr.KindHub {
				serial = m.Serial
				break
			}
		}
		if serial == "" {
			fatal("hub test", fmt.Errorf("no hub found on this account"))
		}
	}

	steps := []testStep{
		{"state", func(ctx context.Context, serial string) bool {
			state, err := c.client.HubState(ctx, serial)
			if err != nil || state == nil {
				return false
			}
			log.Infow("hub state", "serial", serial, "on", state.IsOn(), "mode", state.Behavior)
			return true
		}},
		{"start", c.client.StartHub},
		{"stop", c.client.StopHub},
		{"auto", c.client.SetHubAuto},
		{"manual", c.client.SetHubManual},
		{"planning", c.client.SetHubScheduled},
	}

	results := make([]stepResult, 0, len(steps))
	failed := false
	for i, step := range steps {
		if i > 1 {
			select {
			case <-ctx.Done():
				fatal("hub test", ctx.Err())
			case <-time.After(c.pause):
			}
		}
		ok := step.run(ctx, serial)
		failed = failed || !ok
		results = append(results, stepResult{Step: step.name, OK: ok})
		if !c.out.json {
			fmt.Printf("%-10s %s\n", step.name, okText(ok))
		}
	}

	if c.out.json {
		c.out.printJSON(map[string]any{"serial": serial, "steps": results})
	}
	if failed {
		fatal("hub test", fmt.Errorf("one or more steps failed on %s", serial))
	}
}
