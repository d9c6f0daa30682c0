package frame

import (
	"reflect"

	"github.com/mitchellh/copystructure"
)

var treeCopy = copystructure.Config{
	ShallowCopiers: map[reflect.Type]struct{}{
		reflect.TypeOf(&Frame{}): {},
	},
}

// CopyTree deep copies a value tree of maps, slices and scalars. Frames are
// shared, not copied, since they are read-only once resolved.
func CopyTree(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return treeCopy.Copy(v)
}
