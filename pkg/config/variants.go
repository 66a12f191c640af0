package config

import (
	"sort"

	"github.com/mwonya/entrypoint/pkg/errors"
	"github.com/mwonya/entrypoint/pkg/logging"
	"github.com/mwonya/entrypoint/pkg/server"
)

const (
	VariantCore   = "core"
	VariantStudio = "studio"

	DefaultPython       = "python"
	DefaultManageScript = "manage.py"
)

// builtins maps variant names to constructors so every caller gets its own copy
var builtins = map[string]func() Deployment{
	VariantCore: func() Deployment {
		return newDeployment(VariantCore, "mwonya_core.wsgi:application", 8200)
	},
	VariantStudio: func() Deployment {
		return newDeployment(VariantStudio, "mwonya_studio.wsgi:application", 6200)
	},
}

func newDeployment(variant, module string, port int) Deployment {
	return Deployment{
		Variant:      variant,
		Python:       DefaultPython,
		ManageScript: DefaultManageScript,
		Server: server.LaunchConfig{
			Module: module,
			Port:   port,
		}.WithDefaults(),
		Logging: logging.BackendOptions{
			Level:  "info",
			Format: logging.FormatConsole,
		},
	}
}

// Builtin returns the built-in deployment for a variant
func Builtin(variant string) (*Deployment, error) {
	constructor, ok := builtins[variant]
	if !ok {
		return nil, errors.NewNotFoundError("unknown deployment variant: "+variant, nil).
			WithContext("variants", Variants())
	}
	deployment := constructor()
	return &deployment, nil
}

// Variants lists the built-in variant names in sorted order
func Variants() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
