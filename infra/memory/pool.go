package memory

import "sync"

// Pool is a typed wrapper over sync.Pool. The matching path gets its
// orders here and returns them through the retire ring once no reader
// can still observe them.
type Pool[T any] struct {
	p *sync.Pool
}

func NewPool[T any](ctor func() *T) *Pool[T] {
	return &Pool[T]{
		p: &sync.Pool{
			New: func() any { return ctor() },
		},
	}
}

func (p *Pool[T]) Get() *T {
	return p.p.Get().(*T)
}

func (p *Pool[T]) Put(v *T) {
	p.p.Put(v)
}

// PutAny lets Pool[T] satisfy ReclaimablePool, which is type-erased
// because the reclaimer moves objects through an untyped ring.
func (p *Pool[T]) PutAny(v any) {
	obj, ok := v.(*T)
	if !ok {
		panic("memory.Pool: PutAny received wrong type")
	}
	p.Put(obj)
}
