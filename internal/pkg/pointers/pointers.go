package pointers

import "time"

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// Clone copies the value behind p into fresh storage; nil stays nil.
func Clone[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// StringOrEmpty dereferences p, treating nil as "".
func StringOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func String(v string) *string     { return &v }
func Time(v time.Time) *time.Time { return &v }
