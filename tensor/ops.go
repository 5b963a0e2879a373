package tensor

import (
	"fmt"
	"math"
)

// Add returns a+b with numpy broadcasting of singleton rows and columns.
func Add(a, b *Tensor) (*Tensor, error) {
	return broadcast(a, b, func(x, y float64) float64 { return x + y })
}

// Sub returns a-b with broadcasting.
func Sub(a, b *Tensor) (*Tensor, error) {
	return broadcast(a, b, func(x, y float64) float64 { return x - y })
}

// Mul returns the elementwise product a*b with broadcasting.
func Mul(a, b *Tensor) (*Tensor, error) {
	return broadcast(a, b, func(x, y float64) float64 { return x * y })
}

// Scale returns s*t.
func Scale(s float64, t *Tensor) *Tensor {
	out := New(t.Shape...)
	for i, v := range t.Data {
		out.Data[i] = s * v
	}
	return out
}

func broadcast(a, b *Tensor, f func(x, y float64) float64) (*Tensor, error) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	r, err := stretch(ar, br)
	if err != nil {
		return nil, fmt.Errorf("rows %v vs %v: %w", a.Shape, b.Shape, err)
	}
	c, err := stretch(ac, bc)
	if err != nil {
		return nil, fmt.Errorf("cols %v vs %v: %w", a.Shape, b.Shape, err)
	}
	out := New(r, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			x := a.Data[min(i, ar-1)*ac+min(j, ac-1)]
			y := b.Data[min(i, br-1)*bc+min(j, bc-1)]
			out.Data[i*c+j] = f(x, y)
		}
	}
	return out, nil
}

func stretch(n, m int) (int, error) {
	switch {
	case n == m:
		return n, nil
	case n == 1:
		return m, nil
	case m == 1:
		return n, nil
	}
	return 0, fmt.Errorf("cannot broadcast %d against %d", n, m)
}

// SumAxis sums down the rows (axis 0, 1×cols) or across each row
// (axis 1, rows×1).
func SumAxis(t *Tensor, axis int) (*Tensor, error) {
	r, c := t.Dims()
	switch axis {
	case 0:
		out := New(1, c)
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				out.Data[j] += t.Data[i*c+j]
			}
		}
		return out, nil
	case 1:
		out := New(r, 1)
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				out.Data[i] += t.Data[i*c+j]
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("invalid axis %d", axis)
}

// Sum returns the total of every element.
func Sum(t *Tensor) float64 {
	s := 0.0
	for _, v := range t.Data {
		s += v
	}
	return s
}

// MaxAbsDiff returns the largest elementwise |a-b|; shapes must agree.
func MaxAbsDiff(a, b *Tensor) (float64, error) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		return 0, fmt.Errorf("shape mismatch: %v vs %v", a.Shape, b.Shape)
	}
	m := 0.0
	for i := range a.Data {
		m = math.Max(m, math.Abs(a.Data[i]-b.Data[i]))
	}
	return m, nil
}
