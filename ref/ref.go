package ref

import (
	"reflect"
	"sync"

	"github.com/pkg/errors"
)

// TypeOptions 通过注册的构造函数创建对象的配置
// Namespace 一般为包路径，Type 为类型名，Options 为构造函数的参数
type TypeOptions struct {
	Namespace string `cfg:"namespace"`
	Type      string `cfg:"type"`
	Options   any    `cfg:"options"`
}

// Convertable 可以转换成构造函数参数类型的配置，*cfg.Config 实现了这个接口
type Convertable interface {
	ConvertTo(object any) error
}

type constructor struct {
	fn      reflect.Value
	in      reflect.Type
	withErr bool
}

var (
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
	constructors sync.Map
)

func newConstructor(fn any) (*constructor, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return nil, errors.Errorf("constructor must be a function, got %T", fn)
	}
	t := v.Type()
	if t.NumIn() > 1 {
		return nil, errors.Errorf("constructor accepts at most one argument, got %d", t.NumIn())
	}
	if t.NumOut() == 0 || t.NumOut() > 2 {
		return nil, errors.Errorf("constructor must return (T) or (T, error), got %d values", t.NumOut())
	}
	if t.NumOut() == 2 && !t.Out(1).Implements(errorType) {
		return nil, errors.New("second return value of constructor must be error")
	}

	c := &constructor{fn: v, withErr: t.NumOut() == 2}
	if t.NumIn() == 1 {
		c.in = t.In(0)
	}
	return c, nil
}

func (c *constructor) call(options any) (any, error) {
	var args []reflect.Value
	if c.in != nil {
		arg, err := c.argument(options)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}

	out := c.fn.Call(args)
	if c.withErr && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}
	return out[0].Interface(), nil
}

// argument 将 options 转成构造函数的参数类型
// nil 传零值（指针参数为 nil），Convertable 通过 ConvertTo 转换
func (c *constructor) argument(options any) (reflect.Value, error) {
	if options == nil {
		return reflect.Zero(c.in), nil
	}
	if convertable, ok := options.(Convertable); ok {
		target := c.in
		if target.Kind() == reflect.Ptr {
			target = target.Elem()
		}
		ptr := reflect.New(target)
		if err := convertable.ConvertTo(ptr.Interface()); err != nil {
			return reflect.Value{}, errors.WithMessagef(err, "convert options to %v failed", c.in)
		}
		if c.in.Kind() == reflect.Ptr {
			return ptr, nil
		}
		return ptr.Elem(), nil
	}

	v := reflect.ValueOf(options)
	if v.Type().AssignableTo(c.in) {
		return v, nil
	}
	if v.Kind() == reflect.Ptr && !v.IsNil() && v.Elem().Type().AssignableTo(c.in) {
		return v.Elem(), nil
	}
	if c.in.Kind() == reflect.Ptr && v.Type().AssignableTo(c.in.Elem()) {
		ptr := reflect.New(c.in.Elem())
		ptr.Elem().Set(v)
		return ptr, nil
	}
	return reflect.Value{}, errors.Errorf("options %T is not assignable to %v", options, c.in)
}

func key(namespace, typ string) string {
	return namespace + ":" + typ
}

// Register 注册构造函数，构造函数形如 func() T、func(*Options) T、func(*Options) (T, error)
// 同一个名字重复注册同一个函数会被忽略，注册不同函数返回错误
func Register(namespace, typ string, fn any) error {
	c, err := newConstructor(fn)
	if err != nil {
		return errors.WithMessagef(err, "register %s failed", key(namespace, typ))
	}
	if existing, loaded := constructors.LoadOrStore(key(namespace, typ), c); loaded {
		if existing.(*constructor).fn.Pointer() != c.fn.Pointer() {
			return errors.Errorf("%s is already registered with another constructor", key(namespace, typ))
		}
	}
	return nil
}

func MustRegister(namespace, typ string, fn any) {
	if err := Register(namespace, typ, fn); err != nil {
		panic(err)
	}
}

// RegisterT 以 T 的包路径和类型名注册
func RegisterT[T any](fn any) error {
	namespace, typ, err := nameOf[T]()
	if err != nil {
		return err
	}
	return Register(namespace, typ, fn)
}

func MustRegisterT[T any](fn any) {
	if err := RegisterT[T](fn); err != nil {
		panic(err)
	}
}

func nameOf[T any]() (string, string, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.PkgPath() == "" || t.Name() == "" {
		return "", "", errors.Errorf("cannot name type %v", t)
	}
	return t.PkgPath(), t.Name(), nil
}

// New 按名字调用构造函数
func New(namespace, typ string, options any) (any, error) {
	v, ok := constructors.Load(key(namespace, typ))
	if !ok {
		return nil, errors.Errorf("constructor %s not found", key(namespace, typ))
	}
	obj, err := v.(*constructor).call(options)
	if err != nil {
		return nil, errors.WithMessagef(err, "new %s failed", key(namespace, typ))
	}
	return obj, nil
}

// NewT 按 TypeOptions 创建对象并断言为 T
func NewT[T any](options *TypeOptions) (T, error) {
	var zero T
	if options == nil {
		return zero, errors.New("type options is nil")
	}
	obj, err := New(options.Namespace, options.Type, options.Options)
	if err != nil {
		return zero, err
	}
	t, ok := obj.(T)
	if !ok {
		return zero, errors.Errorf("%s returns %T, which is not %v", key(options.Namespace, options.Type), obj, reflect.TypeOf((*T)(nil)).Elem())
	}
	return t, nil
}
