package domain

import "maps"

// Binding — значения, выданные одним генератором на одной позиции кортежа.
type Binding map[string]string

// Context — накопленные значения, видимые шаблонам.
//
// Затравка — Setting.Env; итератор дописывает в него Binding каждой позиции.
type Context map[string]string

// NewContext создаёт контекст из глобального окружения.
func NewContext(env map[string]string) Context {
	ctx := make(Context, len(env))
	maps.Copy(ctx, env)
	return ctx
}

// Clone возвращает независимую копию.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	maps.Copy(out, c)
	return out
}

// Merge дописывает binding, перезаписывая совпадающие ключи.
func (c Context) Merge(b Binding) {
	maps.Copy(c, b)
}
