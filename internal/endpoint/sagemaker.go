package endpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sagemakerruntime"
	"go.uber.org/zap"

	"github.com/BaSui01/svdflow/internal/objectstore"
)

// SageMakerAPI 是 SageMakerInvoker 用到的客户端子集
type SageMakerAPI interface {
	InvokeEndpointAsync(ctx context.Context, in *sagemakerruntime.InvokeEndpointAsyncInput, optFns ...func(*sagemakerruntime.Options)) (*sagemakerruntime.InvokeEndpointAsyncOutput, error)
}

var _ SageMakerAPI = (*sagemakerruntime.Client)(nil)

// NewSageMakerClient 基于 aws.Config 创建 sagemakerruntime 客户端，关闭 SDK 重试。
// 提交失败直接交给调用方，不在本地重复调用。
func NewSageMakerClient(awsCfg aws.Config, endpointURL string) *sagemakerruntime.Client {
	return sagemakerruntime.NewFromConfig(awsCfg, func(o *sagemakerruntime.Options) {
		if endpointURL != "" {
			o.BaseEndpoint = aws.String(endpointURL)
		}
		o.Retryer = aws.NopRetryer{}
	})
}

// SageMakerInvoker 调用 SageMaker 异步推理端点
type SageMakerInvoker struct {
	client       SageMakerAPI
	endpointName string
	logger       *zap.Logger
}

// NewSageMakerInvoker 创建 SageMakerInvoker
func NewSageMakerInvoker(client SageMakerAPI, endpointName string, logger *zap.Logger) *SageMakerInvoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SageMakerInvoker{
		client:       client,
		endpointName: endpointName,
		logger:       logger.With(zap.String("component", "endpoint.sagemaker")),
	}
}

// InvokeAsync 实现 Invoker
func (s *SageMakerInvoker) InvokeAsync(ctx context.Context, inv Invocation) (*Result, error) {
	in := &sagemakerruntime.InvokeEndpointAsyncInput{
		EndpointName:             aws.String(s.endpointName),
		InputLocation:            aws.String(inv.InputLocation.String()),
		InvocationTimeoutSeconds: aws.Int32(TimeoutSeconds(inv.Timeout)),
	}
	if inv.ContentType != "" {
		in.ContentType = aws.String(inv.ContentType)
	}
	if inv.InferenceID != "" {
		in.InferenceId = aws.String(inv.InferenceID)
	}

	out, err := s.client.InvokeEndpointAsync(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("invoke endpoint %s: %w", s.endpointName, err)
	}

	if out.OutputLocation == nil || *out.OutputLocation == "" {
		return nil, errors.New("invoke endpoint " + s.endpointName + ": response has no output location")
	}
	outputLoc, err := objectstore.ParseLocation(*out.OutputLocation)
	if err != nil {
		return nil, fmt.Errorf("invoke endpoint %s: %w", s.endpointName, err)
	}

	res := &Result{
		InferenceID:    aws.ToString(out.InferenceId),
		OutputLocation: outputLoc,
	}
	if res.InferenceID == "" {
		res.InferenceID = inv.InferenceID
	}
	if out.FailureLocation != nil && *out.FailureLocation != "" {
		failureLoc, err := objectstore.ParseLocation(*out.FailureLocation)
		if err != nil {
			return nil, fmt.Errorf("invoke endpoint %s: failure location: %w", s.endpointName, err)
		}
		res.FailureLocation = &failureLoc
	}

	s.logger.Info("async inference submitted",
		zap.String("inference_id", res.InferenceID),
		zap.String("input_location", inv.InputLocation.String()),
		zap.String("output_location", res.OutputLocation.String()),
	)
	return res, nil
}
