package physarum

import (
	"reflect"
)

// Helpers for the []T slices a componentStore keeps behind an any.

func reflectSliceMake(elem reflect.Type) any {
	return reflect.MakeSlice(reflect.SliceOf(elem), 0, 8).Interface()
}

func reflectSliceSet(slice any, idx int, val reflect.Value) {
	reflect.ValueOf(slice).Index(idx).Set(val)
}

func reflectSliceAppend(slice any, val reflect.Value) any {
	return reflect.Append(reflect.ValueOf(slice), val).Interface()
}

// reflectSliceSwapRemove moves the last element into idx, zeroes the old
// last slot and returns the shortened slice.
func reflectSliceSwapRemove(slice any, idx int) any {
	v := reflect.ValueOf(slice)
	last := v.Len() - 1
	if idx != last {
		v.Index(idx).Set(v.Index(last))
	}
	v.Index(last).Set(reflect.Zero(v.Type().Elem()))
	return v.Slice(0, last).Interface()
}

func reflectSliceLen(slice any) int {
	return reflect.ValueOf(slice).Len()
}
