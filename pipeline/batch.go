package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/svdflow/inference"
)

// Item 批量运行中的一项
type Item struct {
	Request inference.Request
	Title   string
}

// Items 把请求列表转为批量项，标题由 SweepTitle 生成
func Items(prefix string, reqs []inference.Request) []Item {
	items := make([]Item, len(reqs))
	for i, req := range reqs {
		items[i] = Item{Request: req, Title: SweepTitle(prefix, req)}
	}
	return items
}

// RunBatch 运行一批请求。结果与输入一一对应，单项失败记录在 Result.Err 中。
// 只有 ctx 被取消时返回非 nil error。
func (r *Runner) RunBatch(ctx context.Context, items []Item, concurrency int) ([]*Result, error) {
	results := make([]*Result, len(items))

	if concurrency <= 1 {
		for i, item := range items {
			if err := ctx.Err(); err != nil {
				for j := i; j < len(items); j++ {
					results[j] = &Result{Title: items[j].Title, Err: err}
				}
				return results, fmt.Errorf("batch cancelled after %d items: %w", i, err)
			}
			results[i], _ = r.Run(ctx, item.Request, RunOptions{Title: item.Title})
		}
		r.logBatch(results)
		return results, nil
	}

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = &Result{Title: item.Title, Err: err}
				return nil
			}
			results[i], _ = r.Run(ctx, item.Request, RunOptions{Title: item.Title})
			return nil
		})
	}
	_ = g.Wait()
	r.logBatch(results)

	if err := ctx.Err(); err != nil {
		return results, fmt.Errorf("batch cancelled: %w", err)
	}
	return results, nil
}

func (r *Runner) logBatch(results []*Result) {
	failed := 0
	for _, res := range results {
		if res == nil || res.Err != nil {
			failed++
		}
	}
	r.logger.Info("batch finished",
		zap.Int("total", len(results)),
		zap.Int("failed", failed))
}
