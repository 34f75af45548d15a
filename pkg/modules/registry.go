package modules

// Factory builds one module instance from its resolved dependencies.
type Factory func(deps Dependencies) (Module, error)

// builtins is the static module registry. Adding a module means adding an
// entry here; names are the keys used in the modules configuration block.
var builtins = map[string]Factory{
	ModuleCrawler:        NewCrawler,
	ModuleMetatags:       NewMetatags,
	ModuleResponseHeader: NewResponseHeader,
	ModuleAlertingCheck:  NewAlertingCheck,
	ModuleDispatcher:     NewDispatcher,
	ModuleSearchConsole:  NewSearchConsoleImport,
}

const (
	ModuleCrawler        = "crawler"
	ModuleMetatags       = "metatags"
	ModuleResponseHeader = "responseheader"
	ModuleAlertingCheck  = "alerting_check"
	ModuleDispatcher     = "alerting_dispatcher"
	ModuleSearchConsole  = "search_console"
)

// Resolve builds the named module or returns ErrUnknownModule.
func Resolve(name string, deps Dependencies) (Module, error) {
	factory, ok := builtins[name]
	if !ok {
		return nil, ErrUnknownModule
	}
	return factory(deps)
}

// Names lists all registered module names.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	return names
}
