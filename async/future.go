package async

import (
	"context"
	"fmt"
)

// Future 代表一个异步计算的结果。
type Future[T any] struct {
	result T
	err    error
	done   chan struct{}
}

// NewFuture 在后台以 ctx 执行 fn，结果填充 Future。
// fn 发生 panic 时，Get 返回包装了 ErrPanicRecovered 的错误。
func NewFuture[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{
		done: make(chan struct{}),
	}
	go func() {
		defer close(f.done)
		defer func() {
			if rec := recover(); rec != nil {
				DefaultRunner.logPanic(rec)
				f.err = fmt.Errorf("%w: %v", ErrPanicRecovered, rec)
			}
		}()
		f.result, f.err = fn(ctx)
	}()
	return f
}

// Done 返回在计算完成时关闭的通道。
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Get 阻塞等待计算完成并返回结果。
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case <-f.done:
		return f.result, f.err
	}
}
