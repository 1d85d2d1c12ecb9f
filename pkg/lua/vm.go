package lua

import (
	"fmt"
	"os"

	"github.com/Shopify/go-lua"
)

type VM struct {
	state *lua.State
}

func NewVM() *VM {
	state := lua.NewState()
	openSafeLibraries(state)
	return &VM{state: state}
}

func openSafeLibraries(state *lua.State) {
	lua.OpenLibraries(state)

	for _, name := range []string{"io", "os", "debug", "dofile", "loadfile"} {
		state.PushNil()
		state.SetGlobal(name)
	}
}

func (vm *VM) LoadFile(path string) error {
	if err := lua.DoFile(vm.state, path); err != nil {
		return fmt.Errorf("failed to load lua file %s: %w", path, err)
	}
	return nil
}

func (vm *VM) LoadString(code string) error {
	if err := lua.DoString(vm.state, code); err != nil {
		return fmt.Errorf("failed to load lua string: %w", err)
	}
	return nil
}

// Close drops the interpreter state. The VM must not be used afterwards.
func (vm *VM) Close() {
	vm.state = nil
}

func (vm *VM) GetGlobalString(name string) (string, error) {
	vm.state.Global(name)
	if !vm.state.IsString(-1) {
		vm.state.Pop(1)
		return "", fmt.Errorf("global %s is not a string", name)
	}
	value, _ := vm.state.ToString(-1)
	vm.state.Pop(1)
	return value, nil
}

func (vm *VM) GetGlobalNumber(name string) (float64, error) {
	vm.state.Global(name)
	if !vm.state.IsNumber(-1) {
		vm.state.Pop(1)
		return 0, fmt.Errorf("global %s is not a number", name)
	}
	value, _ := vm.state.ToNumber(-1)
	vm.state.Pop(1)
	return value, nil
}

func (vm *VM) pushArgs(args []interface{}) error {
	for _, arg := range args {
		switch v := arg.(type) {
		case nil:
			vm.state.PushNil()
		case string:
			vm.state.PushString(v)
		case int:
			vm.state.PushInteger(v)
		case uint32:
			vm.state.PushInteger(int(v))
		case int32:
			vm.state.PushInteger(int(v))
		case float64:
			vm.state.PushNumber(v)
		case float32:
			vm.state.PushNumber(float64(v))
		case bool:
			vm.state.PushBoolean(v)
		case Pusher:
			v.PushLua(vm.state)
		default:
			return fmt.Errorf("unsupported argument type: %T", arg)
		}
	}
	return nil
}

// Pusher lets callers pass structured values (tables) as function arguments.
type Pusher interface {
	PushLua(state *lua.State)
}

func (vm *VM) CallFunction(name string, args ...interface{}) error {
	_, err := vm.CallFunctionWithReturn(name, 0, args...)
	return err
}

func (vm *VM) CallFunctionWithReturn(name string, numReturns int, args ...interface{}) ([]interface{}, error) {
	top := vm.state.Top()
	vm.state.Global(name)
	if !vm.state.IsFunction(-1) {
		vm.state.Pop(1)
		return nil, fmt.Errorf("global %s is not a function", name)
	}

	if err := vm.pushArgs(args); err != nil {
		vm.state.SetTop(top)
		return nil, err
	}

	if err := vm.state.ProtectedCall(len(args), numReturns, 0); err != nil {
		vm.state.SetTop(top)
		return nil, fmt.Errorf("[Lua Error] function %s: %w", name, err)
	}

	results := make([]interface{}, numReturns)
	for i := 0; i < numReturns; i++ {
		idx := top + 1 + i
		switch vm.state.TypeOf(idx) {
		case lua.TypeNumber:
			value, _ := vm.state.ToNumber(idx)
			results[i] = value
		case lua.TypeString:
			value, _ := vm.state.ToString(idx)
			results[i] = value
		case lua.TypeBoolean:
			results[i] = vm.state.ToBoolean(idx)
		default:
			results[i] = nil
		}
	}
	vm.state.SetTop(top)

	return results, nil
}

func (vm *VM) HasFunction(name string) bool {
	vm.state.Global(name)
	isFunc := vm.state.IsFunction(-1)
	vm.state.Pop(1)
	return isFunc
}

func (vm *VM) RegisterFunction(name string, fn lua.Function) {
	vm.state.Register(name, fn)
}

func (vm *VM) State() *lua.State {
	return vm.state
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
