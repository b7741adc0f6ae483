package script

import (
	"fmt"

	"github.com/dop251/goja"
)

var dangerousGlobals = []string{
	"require",
	"module",
	"exports",
	"process",
	"global",
	"__dirname",
	"__filename",
	"Buffer",
	"setImmediate",
	"clearImmediate",
}

var frozenBuiltins = []string{
	"Object",
	"Array",
	"Function",
	"String",
	"Number",
	"Boolean",
	"Date",
	"RegExp",
	"Error",
	"Math",
	"JSON",
}

const freezeScript = `
(function() {
	return function(obj) {
		if (obj) {
			Object.freeze(obj);
			if (obj.prototype) {
				Object.freeze(obj.prototype);
			}
		}
	};
})()
`

// applySandbox removes host access globals and freezes the built-in
// objects so a script cannot tamper with runtimes shared across rows
func applySandbox(vm *goja.Runtime) error {
	for _, name := range dangerousGlobals {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}

	v, err := vm.RunString(freezeScript)
	if err != nil {
		return fmt.Errorf("failed to create freeze function: %w", err)
	}
	freeze, ok := goja.AssertFunction(v)
	if !ok {
		return fmt.Errorf("freeze function is not a function")
	}
	for _, name := range frozenBuiltins {
		obj := vm.Get(name)
		if obj == nil || goja.IsUndefined(obj) {
			continue
		}
		if _, err := freeze(goja.Undefined(), obj); err != nil {
			return fmt.Errorf("failed to freeze %s: %w", name, err)
		}
	}
	return nil
}
