package runtime

import (
	"strconv"
	"strings"
)

// ObjectLike is implemented by every script object, including functions.
type ObjectLike interface {
	object() *Object
}

// Object is an ordinary script object with string-keyed properties kept in
// insertion order.
type Object struct {
	Proto *Object
	Class string
	props map[string]Value
	keys  []string
}

// NewObject creates an empty object with the given prototype.
func NewObject(proto *Object) *Object {
	return &Object{Proto: proto, Class: "Object", props: make(map[string]Value)}
}

func (o *Object) object() *Object { return o }

// GetOwn returns an own property.
func (o *Object) GetOwn(key string) (Value, bool) {
	v, ok := o.props[key]
	return v, ok
}

// Get looks key up along the prototype chain.
func (o *Object) Get(key string) Value {
	for cur := o; cur != nil; cur = cur.Proto {
		if v, ok := cur.props[key]; ok {
			return v
		}
	}
	return Undefined
}

// Has reports whether key is found along the prototype chain.
func (o *Object) Has(key string) bool {
	for cur := o; cur != nil; cur = cur.Proto {
		if _, ok := cur.props[key]; ok {
			return true
		}
	}
	return false
}

// Set creates or updates an own property.
func (o *Object) Set(key string, v Value) {
	if _, ok := o.props[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.props[key] = v
	if o.Class == "Array" {
		if i, err := strconv.Atoi(key); err == nil && i >= 0 {
			if n := int(ToNumber(o.props["length"])); i >= n {
				o.props["length"] = float64(i + 1)
			}
		}
	}
}

// Delete removes an own property.
func (o *Object) Delete(key string) {
	if _, ok := o.props[key]; !ok {
		return
	}
	delete(o.props, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Keys returns own property names in insertion order.
func (o *Object) Keys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// NewArray creates an array object holding values.
func NewArray(proto *Object, values ...Value) *Object {
	a := NewObject(proto)
	a.Class = "Array"
	a.Set("length", float64(0))
	for i, v := range values {
		a.Set(strconv.Itoa(i), v)
	}
	return a
}

// ArrayValues returns the indexed elements of an array object.
func ArrayValues(a *Object) []Value {
	n := int(ToNumber(a.Get("length")))
	out := make([]Value, n)
	for i := range out {
		out[i] = a.Get(strconv.Itoa(i))
	}
	return out
}

func arrayJoin(a *Object) string {
	vals := ArrayValues(a)
	parts := make([]string, len(vals))
	for i, v := range vals {
		if v == Undefined || v == Null || v == nil {
			continue
		}
		parts[i] = ToString(v)
	}
	return strings.Join(parts, ",")
}

// PropertyKey converts a property name value to a string key.
func PropertyKey(v Value) string {
	return ToString(v)
}

// GetProperty implements property reads on any value.
func GetProperty(cx *ExecutionContext, base Value, key string) (Value, error) {
	switch x := base.(type) {
	case ObjectLike:
		return x.object().Get(key), nil
	case string:
		if key == "length" {
			return float64(len([]rune(x))), nil
		}
		if i, err := strconv.Atoi(key); err == nil && i >= 0 {
			rs := []rune(x)
			if i < len(rs) {
				return string(rs[i]), nil
			}
		}
		return Undefined, nil
	case nil:
		return nil, cx.NewTypeError("cannot read property '%s' of undefined", key)
	case *sentinel:
		return nil, cx.NewTypeError("cannot read property '%s' of %s", key, x.name)
	}
	return Undefined, nil
}

// SetProperty implements property writes on any value.
func SetProperty(cx *ExecutionContext, base Value, key string, v Value, strict bool) error {
	switch x := base.(type) {
	case ObjectLike:
		x.object().Set(key, v)
		return nil
	case nil:
		return cx.NewTypeError("cannot set property '%s' of undefined", key)
	case *sentinel:
		return cx.NewTypeError("cannot set property '%s' of %s", key, x.name)
	}
	if strict {
		return cx.NewTypeError("cannot create property '%s' on primitive %s", key, ToString(base))
	}
	return nil
}
