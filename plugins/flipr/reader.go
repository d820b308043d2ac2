package flipr

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/joshp123/gohome-flipr/internal/history"
	"github.com/joshp123/gohome-flipr/internal/host"
)

type surveyFetcher interface {
	LastSurvey(ctx context.Context, serial string) (*Survey, error)
}

// ReaderAccessory exposes an analyser as a water temperature sensor and a
// light sensor carrying pH.
type ReaderAccessory struct {
	module    Module
	fetcher   surveyFetcher
	water     *host.Service
	ph        *host.Service
	snapshots *Snapshots
	history   history.Sink
	log       *zap.SugaredLogger
}

func newReaderAccessory(m Module, acc *host.Accessory, fetcher surveyFetcher, snapshots *Snapshots, sink history.Sink, log *zap.SugaredLogger) *ReaderAccessory {
	acc.RemoveService(host.Switch, subtypePower)
	acc.RemoveService(host.Switch, subtypeAuto)

	if sink == nil {
		sink = history.Discard{}
	}
	return &ReaderAccessory{
		module:    m,
		fetcher:   fetcher,
		water:     acc.Service(host.TemperatureSensor, subtypeWater, "Water Temperature"),
		ph:        acc.Service(host.LightSensor, subtypePH, "pH"),
		snapshots: snapshots,
		history:   sink,
		log:       log,
	}
}

// FetchLastSurvey pulls the latest reading and pushes temperature and pH.
// It reports whether the characteristics were updated.
func (r *ReaderAccessory) FetchLastSurvey(ctx context.Context) bool {
	serial := r.module.Serial

	survey, err := r.fetcher.LastSurvey(ctx, serial)
	if err != nil {
		r.log.Warnw("fetch survey failed", "serial", serial, "err", err)
		r.snapshots.RecordPoll(serial, false)
		return false
	}
	if survey == nil {
		r.log.Infow("no survey available", "serial", serial)
		r.snapshots.RecordPoll(serial, false)
		return false
	}

	r.water.UpdateCharacteristic(host.CurrentTemperature, survey.Temperature)
	r.log.Infow("setting water temperature", "serial", serial, "celsius", survey.Temperature)
	r.ph.UpdateCharacteristic(host.CurrentAmbientLightLevel, survey.PH.Value)
	r.log.Infow("setting water ph", "serial", serial, "ph", survey.PH.Value)

	r.snapshots.PutSurvey(serial, r.module.CommercialType.Value, *survey)
	r.snapshots.RecordPoll(serial, true)
	r.record(*survey)
	return true
}

func (r *ReaderAccessory) record(s Survey) {
	at := time.Now()
	if parsed, err := time.Parse(time.RFC3339, s.DateTime); err == nil {
		at = parsed
	}

	fields := map[string]interface{}{
		"temperature":  s.Temperature,
		"ph":           s.PH.Value,
		"orp":          s.OxydoReductionPotentiel.Value,
		"disinfectant": s.Desinfectant.Value,
		"uv_index":     s.UvIndex,
	}
	if err := r.history.Write("flipr_survey", map[string]string{"serial": r.module.Serial}, fields, at); err != nil {
		r.log.Warnw("history write failed", "serial", r.module.Serial, "err", err)
	}
}
