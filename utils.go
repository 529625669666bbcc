package uno

import (
	"math/rand"
	"reflect"

	typetostring "github.com/samber/go-type-to-string"
)

const idCharset = "abcdefghijklmnopqrstuvwxyz0123456789"

func empty[T any]() T {
	var t T
	return t
}

func randomID() string {
	b := make([]byte, 8)
	for i := range b {
		b[i] = idCharset[rand.Intn(len(idCharset))] // nolint:gosec
	}

	return string(b)
}

func elem[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// KeyOf derives the registration key for T. Interfaces and pointers get
// distinct keys, so registering *Foo and Foo side by side is possible.
func KeyOf[T any]() string {
	return typetostring.GetType[T]()
}

func keyOfReflect(t reflect.Type) string {
	return typetostring.GetReflectType(t)
}
