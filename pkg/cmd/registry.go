// Package cmd provides common initialization for the eduflow binaries.
package cmd

import (
	"log/slog"

	"github.com/dandpb/jung-edu-app-sub012/pkg/handlers/delay"
	"github.com/dandpb/jung-edu-app-sub012/pkg/handlers/httprequest"
	loghandler "github.com/dandpb/jung-edu-app-sub012/pkg/handlers/log"
	"github.com/dandpb/jung-edu-app-sub012/pkg/handlers/transform"
	"github.com/dandpb/jung-edu-app-sub012/pkg/registry"
)

func registerHandlerPlugins(reg *registry.Registry, pluginsPath string) {
	if pluginsPath == "" {
		return
	}

	factories, err := reg.LoadHandlerPlugins(pluginsPath)
	if err != nil {
		panic(err)
	}

	for _, factory := range factories {
		reg.Register(factory)
	}
}

func registerNativeHandlers(reg *registry.Registry) {
	reg.Register(loghandler.NewFactory())
	reg.Register(httprequest.NewFactory())
	reg.Register(transform.NewFactory())
	reg.Register(delay.NewFactory())
}

// NewRegistry builds the step handler registry with the native handlers and
// any plugins found under pluginsPath.
func NewRegistry(log *slog.Logger, pluginsPath string) *registry.Registry {
	reg := registry.NewRegistry(log)

	registerHandlerPlugins(reg, pluginsPath)
	registerNativeHandlers(reg)

	return reg
}
