package codegen

import (
	"github.com/chazu/esdraft/compiler/descriptor"
)

// Library methods reached by emitted code. Owners and signatures must match
// the natives registered by the loader.

func scriptRuntime(name string, ret descriptor.Type, params ...descriptor.Type) descriptor.MethodDesc {
	return descriptor.NewMethod(descriptor.Static, "ScriptRuntime", name, descriptor.MethodType(ret, params...))
}

func contextMethod(name string, ret descriptor.Type, params ...descriptor.Type) descriptor.MethodDesc {
	return descriptor.NewMethod(descriptor.Virtual, "ExecutionContext", name, descriptor.MethodType(ret, params...))
}

var (
	tObject      = descriptor.Object
	tString      = descriptor.String
	tBool        = descriptor.BooleanType
	tInt         = descriptor.IntType
	tDouble      = descriptor.DoubleType
	tVoid        = descriptor.VoidType
	tCx          = descriptor.ExecutionContext
	tEnv         = descriptor.Environment
	tRealm       = descriptor.Realm
	tHandle      = descriptor.MethodHandle
	tObjectArray = descriptor.ObjectArray
	tStringArray = descriptor.StringArray
)

var (
	getIdentifier    = scriptRuntime("getIdentifier", tObject, tCx, tString, tBool)
	setIdentifier    = scriptRuntime("setIdentifier", tVoid, tCx, tString, tObject, tBool)
	typeofIdentifier = scriptRuntime("typeofIdentifier", tString, tCx, tString)

	declareVar        = scriptRuntime("declareVar", tVoid, tCx, tString)
	declareLexical    = scriptRuntime("declareLexical", tVoid, tCx, tString, tBool)
	initializeLexical = scriptRuntime("initializeLexical", tVoid, tCx, tString, tObject)
	bindParameter     = scriptRuntime("bindParameter", tVoid, tCx, tString, tObjectArray, tInt)
	bindFunction      = scriptRuntime("bindFunction", tVoid, tCx, tString, tObject)
	assignConstant    = scriptRuntime("assignConstant", tVoid, tCx, tString)
	checkInitialized  = scriptRuntime("checkInitialized", tObject, tCx, tObject, tString)

	instantiateFunction       = scriptRuntime("instantiateFunction", tObject, tCx, descriptor.FunctionInfo)
	newDeclarativeEnvironment = scriptRuntime("newDeclarativeEnvironment", tEnv, tEnv)

	toNumber      = scriptRuntime("toNumber", tDouble, tObject)
	toBoolean     = scriptRuntime("toBoolean", tBool, tObject)
	toStringValue = scriptRuntime("toString", tString, tObject)
	toPropertyKey = scriptRuntime("toPropertyKey", tString, tObject)
	typeofValue   = scriptRuntime("typeof", tString, tObject)
	addValues     = scriptRuntime("add", tObject, tObject, tObject)
	strictEquals  = scriptRuntime("strictEquals", tBool, tObject, tObject)
	looseEquals   = scriptRuntime("looseEquals", tBool, tObject, tObject)
	relational    = scriptRuntime("relational", tBool, tObject, tObject, tInt)

	getProperty = scriptRuntime("getProperty", tObject, tCx, tObject, tString)
	setProperty = scriptRuntime("setProperty", tVoid, tCx, tObject, tString, tObject, tBool)

	callValue            = scriptRuntime("call", tObject, tCx, tObject, tObject, tObjectArray)
	prepareTailCall      = scriptRuntime("prepareTailCall", tObject, tCx, tObject, tObject, tObjectArray)
	constructValue       = scriptRuntime("construct", tObject, tCx, tObject, tObjectArray)
	prepareTailConstruct = scriptRuntime("prepareTailConstruct", tObject, tCx, tObject, tObjectArray)

	getTemplateCallSite = scriptRuntime("getTemplateCallSite", tObject, tRealm, tString, tHandle)

	newFunctionInfo = scriptRuntime("newFunctionInfo", descriptor.FunctionInfo,
		tString, tInt, tInt, tStringArray, tString, tHandle, tHandle)
	newScriptInfo = scriptRuntime("newScriptInfo", descriptor.ScriptInfo,
		tString, tBool, tHandle, tHandle)

	toThrowable    = scriptRuntime("toThrowable", descriptor.Throwable, tCx, tObject)
	exceptionValue = scriptRuntime("exceptionValue", tObject, descriptor.Throwable)
)

var (
	getRealm                  = contextMethod("getRealm", tRealm)
	getThis                   = contextMethod("getThis", tObject)
	getLexicalEnvironment     = contextMethod("getLexicalEnvironment", tEnv)
	pushLexicalEnvironment    = contextMethod("pushLexicalEnvironment", tVoid, tEnv)
	popLexicalEnvironment     = contextMethod("popLexicalEnvironment", tVoid)
	restoreLexicalEnvironment = contextMethod("restoreLexicalEnvironment", tVoid, tEnv)
)

var (
	sbInit = descriptor.NewMethod(descriptor.Special, "StringBuilder", "<init>",
		descriptor.MethodType(tVoid))
	sbAppend = descriptor.NewMethod(descriptor.Virtual, "StringBuilder", "append",
		descriptor.MethodType(descriptor.StringBuilder, tString))
	sbToString = descriptor.NewMethod(descriptor.Virtual, "StringBuilder", "toString",
		descriptor.MethodType(tString))
)

var (
	undefinedField     = descriptor.NewField(descriptor.StaticField, "Undefined", "UNDEFINED", tObject)
	nullField          = descriptor.NewField(descriptor.StaticField, "Null", "NULL", tObject)
	uninitializedField = descriptor.NewField(descriptor.StaticField, "Uninitialized", "UNINITIALIZED", tObject)
)

// Signatures of generated methods.
var (
	scriptInitSig    = descriptor.MethodType(tVoid, tCx)
	scriptBodySig    = descriptor.MethodType(tObject, tCx)
	scriptChunkSig   = descriptor.MethodType(tObject, tCx, tObject)
	scriptInfoSig    = descriptor.MethodType(descriptor.ScriptInfo)
	functionInitSig  = descriptor.MethodType(tVoid, tCx, tObjectArray)
	functionBodySig  = descriptor.MethodType(tObject, tCx)
	functionChunkSig = descriptor.MethodType(tObject, tCx)
	functionInfoSig  = descriptor.MethodType(descriptor.FunctionInfo)
	templateSig      = descriptor.MethodType(tStringArray)
)
