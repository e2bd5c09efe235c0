package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/rangefinder/cmd/tof/console"
	"github.com/mklimuk/rangefinder/distance"
)

type sensorInfo struct {
	Name               string `yaml:"name"`
	Address            string `yaml:"address"`
	ModelID            string `yaml:"model_id"`
	State              string `yaml:"state"`
	TimingBudgetMs     uint32 `yaml:"timing_budget_ms"`
	InterMeasurementMs uint32 `yaml:"inter_measurement_ms"`
	OffsetMM           int16  `yaml:"offset_mm"`
	XTalkKcps          uint16 `yaml:"xtalk_kcps"`
	SigmaMM            uint16 `yaml:"sigma_threshold_mm"`
	SignalKcps         uint16 `yaml:"signal_threshold_kcps"`
}

var infoCmd = cli.Command{
	Name:  "info",
	Usage: "initialize the first configured sensor and print its settings",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return fail(err, "configuration error")
		}
		ctx := commandContext(c)
		bus, closeBus, err := openBus(ctx, cfg.Bus)
		if err != nil {
			return fail(err, "bus error")
		}
		defer func() { _ = closeBus() }()

		s := cfg.Sensors[0]
		sensor, err := setupSensor(ctx, bus, s)
		if err != nil {
			return fail(err, "initialization error")
		}
		defer func() { _ = sensor.Close() }()

		info := sensorInfo{Name: s.Name, Address: fmt.Sprintf("%#02x", sensor.Address()), State: sensor.State().String()}
		id, err := sensor.ModelID(ctx)
		if err != nil {
			return fail(err, "could not read model id")
		}
		info.ModelID = fmt.Sprintf("%#04x", id)
		if id != distance.ModelID {
			console.Warnf("unexpected model id %s", info.ModelID)
		}
		info.TimingBudgetMs, info.InterMeasurementMs = sensor.RangeTiming()
		if info.OffsetMM, err = sensor.Offset(ctx); err != nil {
			return fail(err, "could not read offset")
		}
		if info.XTalkKcps, err = sensor.XTalk(ctx); err != nil {
			return fail(err, "could not read crosstalk")
		}
		if info.SigmaMM, err = sensor.SigmaThreshold(ctx); err != nil {
			return fail(err, "could not read sigma threshold")
		}
		if info.SignalKcps, err = sensor.SignalThreshold(ctx); err != nil {
			return fail(err, "could not read signal threshold")
		}
		enc := yaml.NewEncoder(console.Writer())
		if err := enc.Encode(info); err != nil {
			return fail(err, "encoding error")
		}
		return enc.Close()
	},
}
