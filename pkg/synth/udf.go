package synth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
)

// UDF is a user-defined function invoked by a `udf` output. It receives a
// snapshot of the current memory and returns the value committed to the
// output key.
type UDF func(memory map[string]any) (any, error)

// ScriptUDF compiles a JavaScript function body into a UDF executed by a
// fresh goja runtime per call. The memory snapshot is available as the
// `memory` global; `return` works naturally because the code is wrapped in
// an IIFE.
//
// Global helper functions:
//
//	toString(v), jsonParse(v), btoa(v), atob(s), JSON_stringify(v)
func ScriptUDF(code string) UDF {
	return func(memory map[string]any) (any, error) {
		vm := goja.New()

		if err := setupUDFVM(vm, memory); err != nil {
			return nil, err
		}

		val, err := vm.RunString("(function(){" + code + "})()")
		if err != nil {
			return nil, fmt.Errorf("script udf: %w", err)
		}

		return val.Export(), nil
	}
}

// setupUDFVM installs the memory global and the helper functions on a VM.
func setupUDFVM(vm *goja.Runtime, memory map[string]any) error {
	if err := vm.Set("memory", memory); err != nil {
		return fmt.Errorf("set memory: %w", err)
	}

	if err := vm.Set("toString", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return vm.ToValue("")
		}

		switch v := call.Arguments[0].Export().(type) {
		case []byte:
			return vm.ToValue(string(v))
		case string:
			return vm.ToValue(v)
		default:
			return vm.ToValue(fmt.Sprintf("%v", v))
		}
	}); err != nil {
		return err
	}

	if err := vm.Set("jsonParse", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return goja.Null()
		}

		var raw []byte
		switch v := call.Arguments[0].Export().(type) {
		case []byte:
			raw = v
		case string:
			raw = []byte(v)
		default:
			panic(vm.NewTypeError("jsonParse: expected string or bytes"))
		}

		var parsed any
		if err := json.Unmarshal(raw, &parsed); err != nil {
			panic(vm.NewTypeError("jsonParse: " + err.Error()))
		}

		return vm.ToValue(parsed)
	}); err != nil {
		return err
	}

	if err := vm.Set("btoa", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return vm.ToValue("")
		}

		var raw []byte
		switch v := call.Arguments[0].Export().(type) {
		case []byte:
			raw = v
		case string:
			raw = []byte(v)
		default:
			panic(vm.NewTypeError("btoa: expected string or bytes"))
		}

		return vm.ToValue(base64.StdEncoding.EncodeToString(raw))
	}); err != nil {
		return err
	}

	if err := vm.Set("atob", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return vm.ToValue([]byte{})
		}

		decoded, err := base64.StdEncoding.DecodeString(call.Arguments[0].String())
		if err != nil {
			panic(vm.NewTypeError("atob: " + err.Error()))
		}

		return vm.ToValue(decoded)
	}); err != nil {
		return err
	}

	return vm.Set("JSON_stringify", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return vm.ToValue("")
		}

		data, err := json.Marshal(call.Arguments[0].Export())
		if err != nil {
			return vm.ToValue("")
		}

		return vm.ToValue(string(data))
	})
}
