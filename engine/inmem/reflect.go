package inmem

import (
	"fmt"
	"reflect"
)

// assignReflect assigns src into *dst using reflection. dst must be a
// non-nil pointer whose element type is assignable from src's type (or
// from src's pointed-to type, if src is itself a pointer to the same kind
// of value). This mirrors how a real engine adapter decodes a wire payload
// into the caller's result pointer, but without any serialization step
// since everything here already lives in the same process.
func assignReflect(dst, src any) error {
	dv := reflect.ValueOf(dst)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return fmt.Errorf("inmem: result destination must be a non-nil pointer, got %T", dst)
	}
	sv := reflect.ValueOf(src)
	elem := dv.Elem()
	if sv.Type().AssignableTo(elem.Type()) {
		elem.Set(sv)
		return nil
	}
	if sv.Kind() == reflect.Ptr && !sv.IsNil() && sv.Elem().Type().AssignableTo(elem.Type()) {
		elem.Set(sv.Elem())
		return nil
	}
	return fmt.Errorf("inmem: cannot assign value of type %s into %s", sv.Type(), elem.Type())
}
