package common

import (
	"fmt"
	"reflect"
	"strings"
)

// enumHelper backs every "E<Type>"-namespace enum in this package: a
// low-cardinality value type whose symbol table is its own method set.
// Each symbol is a no-arg method returning the enum type; String/Parse walk
// that method set by reflection instead of a hand-written switch per type.
type enumHelper struct{}

func (enumHelper) isSymbolMethod(enumType reflect.Type, m reflect.Method) bool {
	return m.Type.NumIn() == 1 && m.Type.NumOut() == 1 && m.Type.Out(0) == enumType
}

func (h enumHelper) findMethod(enumType reflect.Type, name string, caseInsensitive bool) (reflect.Method, bool) {
	if !caseInsensitive {
		return enumType.MethodByName(name)
	}
	name = strings.ToLower(name)
	for i := 0; i < enumType.NumMethod(); i++ {
		m := enumType.Method(i)
		if strings.ToLower(m.Name) == name {
			return m, true
		}
	}
	return reflect.Method{}, false
}

func (h enumHelper) symbols(enumType reflect.Type, visit func(name string, value interface{}) (stop bool)) {
	args := [1]reflect.Value{reflect.Zero(enumType)}
	for i := 0; i < enumType.NumMethod(); i++ {
		m := enumType.Method(i)
		if !h.isSymbolMethod(enumType, m) {
			continue
		}
		value := m.Func.Call(args[:])[0].Convert(enumType).Interface()
		if visit(m.Name, value) {
			return
		}
	}
}

// enumString returns the symbol name matching enumValue, or "" if none does.
func (h enumHelper) enumString(enumValue interface{}, enumType reflect.Type) string {
	result := ""
	h.symbols(enumType, func(name string, value interface{}) bool {
		if value == enumValue {
			result = name
			return true
		}
		return false
	})
	return result
}

// enumParse looks up the symbol method named s (case-insensitively) on
// *enumTypePtr and returns its value.
func (h enumHelper) enumParse(enumTypePtr reflect.Type, s string) (interface{}, error) {
	enumType := enumTypePtr.Elem()
	method, found := h.findMethod(enumType, s, true)
	if !found || !h.isSymbolMethod(enumType, method) {
		return nil, fmt.Errorf("couldn't parse %q into an instance of %q", s, enumType.Name())
	}
	args := [1]reflect.Value{reflect.Zero(enumType)}
	return method.Func.Call(args[:])[0].Convert(enumType).Interface(), nil
}

var enums = enumHelper{}
