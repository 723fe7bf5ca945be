package vm

import (
	"fmt"

	"github.com/chazu/esdraft/runtime"
)

// staticFields holds the values of every linkable static field.
var staticFields = map[string]any{
	"Undefined.UNDEFINED":         runtime.Undefined,
	"Null.NULL":                   runtime.Null,
	"Uninitialized.UNINITIALIZED": runtime.Uninitialized,
}

// natives maps "Owner.name" to the Go implementation of a library method.
var natives = map[string]Native{}

func register(owner string, methods map[string]Native) {
	for name, fn := range methods {
		natives[owner+"."+name] = fn
	}
}

// IsNative reports whether key ("Owner.name") names a library method.
func IsNative(key string) bool {
	_, ok := natives[key]
	return ok
}

func init() {
	registerScriptRuntime()
	registerContext()
	registerBoxing()
	registerStringBuilder()
}

// ---------------------------------------------------------------------------
// Argument helpers
// ---------------------------------------------------------------------------

func cxArg(v any) *runtime.ExecutionContext {
	cx, ok := v.(*runtime.ExecutionContext)
	if !ok {
		panic(fmt.Sprintf("expected execution context, got %T", v))
	}
	return cx
}

func envArg(v any) *runtime.Environment {
	env, _ := v.(*runtime.Environment)
	return env
}

func handleArg(v any) runtime.MethodHandle {
	h, _ := v.(runtime.MethodHandle)
	return h
}

func strArg(v any) string {
	s, _ := v.(string)
	return s
}

func flagArg(v any) bool { return v.(int32) != 0 }

// scriptValue maps a Java null, which only reaches natives through
// uninitialized reference locals, to undefined.
func scriptValue(v any) runtime.Value {
	if v == nil {
		return runtime.Undefined
	}
	return v
}

// ---------------------------------------------------------------------------
// ScriptRuntime
// ---------------------------------------------------------------------------

var relationalOps = [...]string{"<", ">", "<=", ">="}

func registerScriptRuntime() {
	register("ScriptRuntime", map[string]Native{
		"getIdentifier": func(a []any) (any, error) {
			cx, name := cxArg(a[0]), strArg(a[1])
			if !flagArg(a[2]) && !runtime.HasIdentifier(cx.LexicalEnv, name) {
				return runtime.Undefined, nil
			}
			return runtime.GetIdentifier(cx, cx.LexicalEnv, name)
		},
		"setIdentifier": func(a []any) (any, error) {
			cx := cxArg(a[0])
			return nil, runtime.SetIdentifier(cx, cx.LexicalEnv, strArg(a[1]), scriptValue(a[2]), flagArg(a[3]))
		},
		"typeofIdentifier": func(a []any) (any, error) {
			cx, name := cxArg(a[0]), strArg(a[1])
			if !runtime.HasIdentifier(cx.LexicalEnv, name) {
				return "undefined", nil
			}
			v, err := runtime.GetIdentifier(cx, cx.LexicalEnv, name)
			if err != nil {
				return nil, err
			}
			return runtime.Typeof(v), nil
		},
		"declareVar": func(a []any) (any, error) {
			runtime.DeclareVar(cxArg(a[0]), strArg(a[1]))
			return nil, nil
		},
		"declareLexical": func(a []any) (any, error) {
			runtime.DeclareLexical(cxArg(a[0]), strArg(a[1]), flagArg(a[2]))
			return nil, nil
		},
		"initializeLexical": func(a []any) (any, error) {
			runtime.InitializeLexical(cxArg(a[0]), strArg(a[1]), scriptValue(a[2]))
			return nil, nil
		},
		"bindParameter": func(a []any) (any, error) {
			runtime.BindParameter(cxArg(a[0]), strArg(a[1]), scriptValues(a[2]), int(a[3].(int32)))
			return nil, nil
		},
		"bindFunction": func(a []any) (any, error) {
			runtime.BindFunction(cxArg(a[0]), strArg(a[1]), a[2])
			return nil, nil
		},
		"instantiateFunction": func(a []any) (any, error) {
			info, ok := a[1].(*runtime.FunctionInfo)
			if !ok {
				return nil, fmt.Errorf("instantiateFunction: got %T", a[1])
			}
			return runtime.InstantiateFunction(cxArg(a[0]), info), nil
		},
		"newDeclarativeEnvironment": func(a []any) (any, error) {
			return runtime.NewDeclarativeEnvironment(envArg(a[0])), nil
		},
		"assignConstant": func(a []any) (any, error) {
			return nil, cxArg(a[0]).NewTypeError("assignment to constant variable '%s'", strArg(a[1]))
		},
		"checkInitialized": func(a []any) (any, error) {
			return runtime.CheckInitialized(cxArg(a[0]), a[1], strArg(a[2]))
		},
		"toNumber": func(a []any) (any, error) {
			return runtime.ToNumber(scriptValue(a[0])), nil
		},
		"toBoolean": func(a []any) (any, error) {
			return boolCell(runtime.ToBoolean(scriptValue(a[0]))), nil
		},
		"toString": func(a []any) (any, error) {
			return runtime.ToString(scriptValue(a[0])), nil
		},
		"toPropertyKey": func(a []any) (any, error) {
			return runtime.PropertyKey(scriptValue(a[0])), nil
		},
		"typeof": func(a []any) (any, error) {
			return runtime.Typeof(scriptValue(a[0])), nil
		},
		"add": func(a []any) (any, error) {
			return runtime.Add(scriptValue(a[0]), scriptValue(a[1])), nil
		},
		"strictEquals": func(a []any) (any, error) {
			return boolCell(runtime.StrictEquals(scriptValue(a[0]), scriptValue(a[1]))), nil
		},
		"looseEquals": func(a []any) (any, error) {
			return boolCell(runtime.LooseEquals(scriptValue(a[0]), scriptValue(a[1]))), nil
		},
		"relational": func(a []any) (any, error) {
			op := a[2].(int32)
			if op < 0 || int(op) >= len(relationalOps) {
				return nil, fmt.Errorf("relational: bad operator %d", op)
			}
			return boolCell(runtime.Compare(relationalOps[op], scriptValue(a[0]), scriptValue(a[1]))), nil
		},
		"getProperty": func(a []any) (any, error) {
			return runtime.GetProperty(cxArg(a[0]), scriptValue(a[1]), strArg(a[2]))
		},
		"setProperty": func(a []any) (any, error) {
			return nil, runtime.SetProperty(cxArg(a[0]), scriptValue(a[1]), strArg(a[2]), scriptValue(a[3]), flagArg(a[4]))
		},
		"call": func(a []any) (any, error) {
			return runtime.Call(cxArg(a[0]), scriptValue(a[1]), scriptValue(a[2]), scriptValues(a[3])...)
		},
		"prepareTailCall": func(a []any) (any, error) {
			return runtime.PrepareTailCall(cxArg(a[0]), scriptValue(a[1]), scriptValue(a[2]), scriptValues(a[3]))
		},
		"construct": func(a []any) (any, error) {
			return runtime.Construct(cxArg(a[0]), scriptValue(a[1]), scriptValues(a[2])...)
		},
		"prepareTailConstruct": func(a []any) (any, error) {
			return runtime.PrepareTailConstruct(cxArg(a[0]), scriptValue(a[1]), scriptValues(a[2]))
		},
		"getTemplateCallSite": func(a []any) (any, error) {
			realm, ok := a[0].(*runtime.Realm)
			if !ok {
				return nil, fmt.Errorf("getTemplateCallSite: got %T", a[0])
			}
			h := handleArg(a[2])
			return realm.TemplateCallSite(strArg(a[1]), func() ([]string, error) {
				v, err := h.Invoke()
				if err != nil {
					return nil, err
				}
				return stringValues(v), nil
			})
		},
		"newFunctionInfo": func(a []any) (any, error) {
			return &runtime.FunctionInfo{
				Name:   strArg(a[0]),
				Arity:  int(a[1].(int32)),
				Flags:  int(a[2].(int32)),
				Params: stringValues(a[3]),
				Source: strArg(a[4]),
				Init:   handleArg(a[5]),
				Body:   handleArg(a[6]),
			}, nil
		},
		"newScriptInfo": func(a []any) (any, error) {
			return &runtime.ScriptInfo{
				Name:   strArg(a[0]),
				Strict: flagArg(a[1]),
				Init:   handleArg(a[2]),
				Body:   handleArg(a[3]),
			}, nil
		},
		"toThrowable": func(a []any) (any, error) {
			return runtime.Throw(scriptValue(a[1])), nil
		},
		"exceptionValue": func(a []any) (any, error) {
			err, ok := a[0].(error)
			if !ok {
				return nil, fmt.Errorf("exceptionValue: got %T", a[0])
			}
			return runtime.ExceptionValue(err), nil
		},
	})
}

// ---------------------------------------------------------------------------
// ExecutionContext
// ---------------------------------------------------------------------------

func registerContext() {
	register("ExecutionContext", map[string]Native{
		"getRealm": func(a []any) (any, error) {
			return cxArg(a[0]).Realm, nil
		},
		"getThis": func(a []any) (any, error) {
			return scriptValue(cxArg(a[0]).This), nil
		},
		"getLexicalEnvironment": func(a []any) (any, error) {
			return cxArg(a[0]).LexicalEnv, nil
		},
		"pushLexicalEnvironment": func(a []any) (any, error) {
			cxArg(a[0]).PushLexicalEnvironment(envArg(a[1]))
			return nil, nil
		},
		"popLexicalEnvironment": func(a []any) (any, error) {
			cxArg(a[0]).PopLexicalEnvironment()
			return nil, nil
		},
		"restoreLexicalEnvironment": func(a []any) (any, error) {
			cxArg(a[0]).RestoreLexicalEnvironment(envArg(a[1]))
			return nil, nil
		},
	})
}

// ---------------------------------------------------------------------------
// Boxing
// ---------------------------------------------------------------------------

func registerBoxing() {
	register("Boolean", map[string]Native{
		"valueOf":      func(a []any) (any, error) { return a[0].(int32) != 0, nil },
		"booleanValue": func(a []any) (any, error) { return boolCell(a[0].(bool)), nil },
	})
	register("Character", map[string]Native{
		"valueOf":   func(a []any) (any, error) { return uint16(a[0].(int32)), nil },
		"charValue": func(a []any) (any, error) { return int32(a[0].(uint16)), nil },
	})
	register("Byte", map[string]Native{
		"valueOf":   func(a []any) (any, error) { return int8(a[0].(int32)), nil },
		"byteValue": func(a []any) (any, error) { return int32(a[0].(int8)), nil },
	})
	register("Short", map[string]Native{
		"valueOf":    func(a []any) (any, error) { return int16(a[0].(int32)), nil },
		"shortValue": func(a []any) (any, error) { return int32(a[0].(int16)), nil },
	})
	register("Integer", map[string]Native{
		"valueOf":  func(a []any) (any, error) { return a[0].(int32), nil },
		"intValue": func(a []any) (any, error) { return a[0].(int32), nil },
	})
	register("Float", map[string]Native{
		"valueOf":    func(a []any) (any, error) { return a[0].(float32), nil },
		"floatValue": func(a []any) (any, error) { return a[0].(float32), nil },
	})
	register("Long", map[string]Native{
		"valueOf":   func(a []any) (any, error) { return a[0].(int64), nil },
		"longValue": func(a []any) (any, error) { return a[0].(int64), nil },
	})
	register("Double", map[string]Native{
		"valueOf":     func(a []any) (any, error) { return a[0].(float64), nil },
		"doubleValue": func(a []any) (any, error) { return a[0].(float64), nil },
	})
}

// ---------------------------------------------------------------------------
// StringBuilder
// ---------------------------------------------------------------------------

func registerStringBuilder() {
	register("StringBuilder", map[string]Native{
		"<init>": func(a []any) (any, error) { return nil, nil },
		"append": func(a []any) (any, error) {
			sb := a[0].(*StringBuilder)
			sb.sb.WriteString(strArg(a[1]))
			return sb, nil
		},
		"toString": func(a []any) (any, error) {
			return a[0].(*StringBuilder).sb.String(), nil
		},
	})
}
