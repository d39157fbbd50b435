package forwarder

import (
	"encoding"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Serializer 日志记录序列化器.
type Serializer interface {
	Serialize(v any) ([]byte, error)
}

// SerializerFunc 函数形式的序列化器.
type SerializerFunc func(v any) ([]byte, error)

// Serialize 实现 Serializer 接口.
func (f SerializerFunc) Serialize(v any) ([]byte, error) {
	return f(v)
}

// CircularMarker 循环引用的占位前缀.
const CircularMarker = "[Circular ~"

// JSONSerializer 容忍循环引用的 JSON 序列化器.
//
// 遍历时记录当前路径上的 map、slice 和指针，遇到指回祖先的引用时
// 写入占位字符串而不是继续展开:
//
//	"[Circular ~]"        指向根对象
//	"[Circular ~.a.b]"    指向路径 a.b 上的对象
//
// 同一对象在不同分支中重复出现（非循环）时正常展开.
// 函数、通道和 NaN/Inf 输出为 null，error 输出为错误信息.
type JSONSerializer struct{}

// NewJSONSerializer 创建默认序列化器.
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{}
}

// Serialize 实现 Serializer 接口.
func (s *JSONSerializer) Serialize(v any) ([]byte, error) {
	w := &walker{}
	return json.Marshal(w.walk(reflect.ValueOf(v), ""))
}

var (
	errorType         = reflect.TypeFor[error]()
	jsonMarshalerType = reflect.TypeFor[json.Marshaler]()
	textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()
)

// ref 路径上的一个引用.
type ref struct {
	kind reflect.Kind
	typ  reflect.Type
	ptr  uintptr
	len  int
}

type ancestor struct {
	ref  ref
	path string
}

type walker struct {
	stack []ancestor
}

func circular(path string) string {
	if path == "" {
		return CircularMarker + "]"
	}
	return CircularMarker + "." + path + "]"
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// enter 将引用压栈；若已在路径上则返回占位字符串.
func (w *walker) enter(r ref, path string) (string, bool) {
	for _, a := range w.stack {
		if a.ref == r {
			return circular(a.path), false
		}
	}
	w.stack = append(w.stack, ancestor{ref: r, path: path})
	return "", true
}

func (w *walker) leave() {
	w.stack = w.stack[:len(w.stack)-1]
}

func (w *walker) walk(v reflect.Value, path string) any {
	if !v.IsValid() {
		return nil
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		if v.IsNil() {
			return nil
		}
	}

	if v.CanInterface() {
		t := v.Type()
		if t.Implements(jsonMarshalerType) || t.Implements(textMarshalerType) {
			return v.Interface()
		}
		if t.Implements(errorType) {
			return v.Interface().(error).Error()
		}
	}

	switch v.Kind() {
	case reflect.Interface:
		return w.walk(v.Elem(), path)

	case reflect.Pointer:
		marker, ok := w.enter(ref{kind: reflect.Pointer, typ: v.Type().Elem(), ptr: v.Pointer()}, path)
		if !ok {
			return marker
		}
		defer w.leave()
		return w.walk(v.Elem(), path)

	case reflect.Map:
		marker, ok := w.enter(ref{kind: reflect.Map, ptr: v.Pointer()}, path)
		if !ok {
			return marker
		}
		defer w.leave()

		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			key := mapKey(iter.Key())
			out[key] = w.walk(iter.Value(), join(path, key))
		}
		return out

	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return append([]byte(nil), v.Bytes()...)
		}
		marker, ok := w.enter(ref{kind: reflect.Slice, typ: v.Type().Elem(), ptr: v.Pointer(), len: v.Len()}, path)
		if !ok {
			return marker
		}
		defer w.leave()
		return w.walkList(v, path)

	case reflect.Array:
		return w.walkList(v, path)

	case reflect.Struct:
		out := make(map[string]any, v.NumField())
		w.walkStruct(v, path, out)
		return out

	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f

	case reflect.Complex64, reflect.Complex128:
		return fmt.Sprint(v.Complex())

	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return nil

	case reflect.Bool:
		return v.Bool()
	case reflect.String:
		return v.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint()
	}

	return nil
}

func (w *walker) walkList(v reflect.Value, path string) []any {
	out := make([]any, v.Len())
	for i := range out {
		out[i] = w.walk(v.Index(i), join(path, strconv.Itoa(i)))
	}
	return out
}

// walkStruct 展开导出字段，遵循 json tag 的命名、"-" 和 omitempty，匿名结构体字段平铺.
func (w *walker) walkStruct(v reflect.Value, path string, out map[string]any) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, omitEmpty, skip := parseTag(field)
		if skip {
			continue
		}

		fv := v.Field(i)
		if field.Anonymous && name == "" {
			inner := fv
			if inner.Kind() == reflect.Pointer {
				if inner.IsNil() {
					continue
				}
				inner = inner.Elem()
			}
			if inner.Kind() == reflect.Struct && !inner.Type().Implements(jsonMarshalerType) {
				w.walkStruct(inner, path, out)
				continue
			}
		}
		if !field.IsExported() {
			continue
		}
		if omitEmpty && fv.IsZero() {
			continue
		}
		if name == "" {
			name = field.Name
		}
		out[name] = w.walk(fv, join(path, name))
	}
}

func parseTag(field reflect.StructField) (name string, omitEmpty, skip bool) {
	tag, ok := field.Tag.Lookup("json")
	if !ok {
		return "", false, false
	}
	if tag == "-" {
		return "", false, true
	}
	name, opts, _ := strings.Cut(tag, ",")
	for opts != "" {
		var opt string
		opt, opts, _ = strings.Cut(opts, ",")
		if opt == "omitempty" {
			omitEmpty = true
		}
	}
	return name, omitEmpty, false
}

func mapKey(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	if k.CanInterface() {
		if tm, ok := k.Interface().(encoding.TextMarshaler); ok {
			if text, err := tm.MarshalText(); err == nil {
				return string(text)
			}
		}
	}
	return fmt.Sprint(k)
}
