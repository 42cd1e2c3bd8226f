package retry

import "context"

// Value 是 Retryer.Do 的泛型包装，返回最后一次成功调用的结果。
//
// Usage:
//
//	body, err := retry.Value(ctx, r, func(ctx context.Context) ([]byte, error) {
//	    return store.Get(ctx, loc)
//	})
func Value[T any](ctx context.Context, r Retryer, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
