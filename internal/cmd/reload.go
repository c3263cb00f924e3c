package cmd

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/finpace/internal/config"
	"github.com/Iron-Ham/finpace/internal/event"
	"github.com/Iron-Ham/finpace/internal/logging"
	"github.com/Iron-Ham/finpace/internal/worker"
)

// reloader applies config file changes to a running worker's controller
// settings. Other worker settings take effect on the next start. A file
// that fails validation is reported and the running settings are kept.
type reloader struct {
	worker *worker.Worker
	bus    *event.Bus
	logger *logging.Logger
	v      *viper.Viper
}

func newReloader(w *worker.Worker, bus *event.Bus, logger *logging.Logger) *reloader {
	return &reloader{
		worker: w,
		bus:    bus,
		logger: logger.WithComponent("config"),
		v:      viper.GetViper(),
	}
}

func (r *reloader) onChange(e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	r.apply(e.Name)
}

func (r *reloader) apply(path string) {
	cfg, err := config.LoadFrom(r.v)
	if err != nil {
		r.logger.Warn("config reload rejected", "path", path, "error", err.Error())
		r.bus.Publish(event.NewConfigReloadedEvent(path, err.Error()))
		return
	}

	r.worker.Reconfigure(newController(&cfg.Worker))
	r.logger.Info("config reloaded", "path", path)
	r.bus.Publish(event.NewConfigReloadedEvent(path, ""))
}
