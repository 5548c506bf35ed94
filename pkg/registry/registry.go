// Package registry maps action types to step handler factories.
package registry

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dandpb/jung-edu-app-sub012/pkg/protocol"
)

type Registry struct {
	logger    *slog.Logger
	factories map[string]protocol.StepHandlerFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log,
		factories: make(map[string]protocol.StepHandlerFactory),
	}
}

func (r *Registry) Register(factory protocol.StepHandlerFactory) {
	r.factories[factory.ID()] = factory
}

// Create validates config against the factory schema and builds a handler.
func (r *Registry) Create(actionType string, config map[string]any) (protocol.StepHandler, error) {
	factory, ok := r.factories[actionType]
	if !ok {
		return nil, fmt.Errorf("action type '%s' not registered", actionType)
	}

	err := r.ValidateConfig(actionType, config)
	if err != nil {
		return nil, err
	}

	return factory.Create(config)
}

// ValidateConfig checks config against the handler's JSON schema. Factories
// without a schema accept any configuration.
func (r *Registry) ValidateConfig(actionType string, config map[string]any) error {
	factory, ok := r.factories[actionType]
	if !ok {
		return fmt.Errorf("action type '%s' not registered", actionType)
	}

	schema := factory.Schema()
	if schema == nil {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("schema validation for '%s': %w", actionType, err)
	}

	if !result.Valid() {
		var errors []string
		for _, resultError := range result.Errors() {
			errors = append(errors, resultError.String())
		}

		return fmt.Errorf("invalid '%s' configuration: %s", actionType, strings.Join(errors, "; "))
	}

	return nil
}

// Available returns the registered action types in sorted order.
func (r *Registry) Available() []string {
	types := make([]string, 0, len(r.factories))
	for actionType := range r.factories {
		types = append(types, actionType)
	}

	sort.Strings(types)

	return types
}

func (r *Registry) LoadHandlerPlugins(pluginsPath string) ([]protocol.StepHandlerFactory, error) {
	return loadPlugin[protocol.StepHandlerFactory](r.logger, pluginsPath, "Handler")
}

func loadPlugin[T interface{}](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := pluginsPath + "/" + strings.ToLower(symbolName) + "s"
	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "**/*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("open plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("lookup symbol %s in %s: %w", symbolName, p, err)
		}

		castV, ok := v.(T)
		if !ok {
			return nil, fmt.Errorf("plugin %s does not export a %s factory", p, symbolName)
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded handler plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
