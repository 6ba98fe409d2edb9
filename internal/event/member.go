package event

// Member is the type-erased descriptor of one field of T. Descriptors are
// created with Field or FieldFunc and registered once per bus.
type Member[T any] interface {
	// Name identifies the member. Names are unique per bus.
	Name() string

	// ValueOf returns the member value held by v.
	ValueOf(v *T) any

	changed(old, new *T) bool
	apply(dst, src *T)
}

// FieldOf describes a field of type M inside T.
type FieldOf[T, M any] struct {
	name  string
	sel   func(*T) *M
	equal func(a, b M) bool
}

// Field describes a comparable field. Changes are detected with ==.
//
//	width := event.Field("Width", func(w *Window) *int { return &w.Width })
func Field[T any, M comparable](name string, sel func(*T) *M) *FieldOf[T, M] {
	return &FieldOf[T, M]{
		name:  name,
		sel:   sel,
		equal: func(a, b M) bool { return a == b },
	}
}

// FieldFunc describes a field compared with a custom equality function,
// for slices, maps or tolerance-based comparisons.
func FieldFunc[T, M any](name string, sel func(*T) *M, equal func(a, b M) bool) *FieldOf[T, M] {
	return &FieldOf[T, M]{name: name, sel: sel, equal: equal}
}

// Name returns the member name.
func (f *FieldOf[T, M]) Name() string {
	return f.name
}

// Get returns the field value of v.
func (f *FieldOf[T, M]) Get(v T) M {
	return *f.sel(&v)
}

// Set returns a copy of v with the field replaced.
func (f *FieldOf[T, M]) Set(v T, m M) T {
	*f.sel(&v) = m
	return v
}

// ValueOf returns the field value held by v.
func (f *FieldOf[T, M]) ValueOf(v *T) any {
	return *f.sel(v)
}

func (f *FieldOf[T, M]) changed(old, new *T) bool {
	return !f.equal(*f.sel(old), *f.sel(new))
}

func (f *FieldOf[T, M]) apply(dst, src *T) {
	*f.sel(dst) = *f.sel(src)
}
