// =============================================================================
// 🎬 FakeInvoker - 异步推理端点模拟实现
// =============================================================================
// 记录每次调用，按 inference id 分配结果位置，可在调用时写入结果或失败体
//
// 使用方法:
//
//	invoker := mocks.NewFakeInvoker("svd-bucket").CompleteWith(store, payload)
//	res, err := invoker.InvokeAsync(ctx, inv)
// =============================================================================
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/svdflow/internal/endpoint"
	"github.com/BaSui01/svdflow/internal/objectstore"
)

// FakeInvoker 是 endpoint.Invoker 的模拟实现
type FakeInvoker struct {
	mu sync.Mutex

	bucket string
	calls  []endpoint.Invocation

	// 错误注入
	err error

	// 调用时写入的结果
	store          objectstore.Store
	output         []byte
	failure        []byte
	withoutFailure bool
}

var _ endpoint.Invoker = (*FakeInvoker)(nil)

// NewFakeInvoker 创建 FakeInvoker，结果写入 bucket 下的 async_inference/output
func NewFakeInvoker(bucket string) *FakeInvoker {
	return &FakeInvoker{bucket: bucket}
}

// WithError 之后的调用都返回 err
func (f *FakeInvoker) WithError(err error) *FakeInvoker {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
	return f
}

// CompleteWith 调用时立即把 payload 写到结果位置
func (f *FakeInvoker) CompleteWith(store objectstore.Store, payload []byte) *FakeInvoker {
	f.mu.Lock()
	f.store = store
	f.output = payload
	f.mu.Unlock()
	return f
}

// FailWith 调用时把 body 写到失败位置
func (f *FakeInvoker) FailWith(store objectstore.Store, body []byte) *FakeInvoker {
	f.mu.Lock()
	f.store = store
	f.failure = body
	f.mu.Unlock()
	return f
}

// WithoutFailureLocation 返回结果中不带失败位置
func (f *FakeInvoker) WithoutFailureLocation() *FakeInvoker {
	f.mu.Lock()
	f.withoutFailure = true
	f.mu.Unlock()
	return f
}

// OutputLocation 返回某个 inference id 的结果位置
func (f *FakeInvoker) OutputLocation(id string) objectstore.Location {
	return objectstore.Location{Bucket: f.bucket, Key: "async_inference/output/" + id + ".out"}
}

// FailureLocation 返回某个 inference id 的失败位置
func (f *FakeInvoker) FailureLocation(id string) objectstore.Location {
	return objectstore.Location{Bucket: f.bucket, Key: "async_inference/failure/" + id + "-error.out"}
}

// InvokeAsync 实现 endpoint.Invoker
func (f *FakeInvoker) InvokeAsync(ctx context.Context, inv endpoint.Invocation) (*endpoint.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	err, store, output, failure, withoutFailure := f.err, f.store, f.output, f.failure, f.withoutFailure
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &endpoint.Result{
		InferenceID:    inv.InferenceID,
		OutputLocation: f.OutputLocation(inv.InferenceID),
	}
	if !withoutFailure {
		loc := f.FailureLocation(inv.InferenceID)
		res.FailureLocation = &loc
	}

	if store != nil && output != nil {
		if err := store.Put(ctx, res.OutputLocation, output, "application/json"); err != nil {
			return nil, err
		}
	}
	if store != nil && failure != nil && res.FailureLocation != nil {
		if err := store.Put(ctx, *res.FailureLocation, failure, "text/plain"); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Calls 返回调用记录副本
func (f *FakeInvoker) Calls() []endpoint.Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]endpoint.Invocation, len(f.calls))
	copy(out, f.calls)
	return out
}
