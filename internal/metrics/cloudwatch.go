package metrics

import (
	"context"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	appconfig "factorflow/config"
	"factorflow/logger"
)

type cloudWatchState struct {
	client    *cloudwatch.Client
	namespace string
	region    string
}

var cwState atomic.Pointer[cloudWatchState]

// InitCloudWatch initialises the CloudWatch client from the metrics
// configuration. When disabled or when the AWS configuration cannot be
// loaded, publishing stays off and counters keep working locally.
func InitCloudWatch(cfg appconfig.CloudWatchConfig, log *logger.Log) {
	if !cfg.Enabled {
		return
	}

	l := log.WithComponent("cloudwatch")

	ctx := context.Background()
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		l.WithError(err).Warn("failed to load AWS configuration; CloudWatch metrics disabled")
		return
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "FactorFlow"
	}

	cwState.Store(&cloudWatchState{
		client:    cloudwatch.NewFromConfig(awsCfg),
		namespace: namespace,
		region:    awsCfg.Region,
	})

	l.WithFields(logger.Fields{
		"region":    awsCfg.Region,
		"namespace": namespace,
	}).Info("initialized CloudWatch client")
}

func publishMetricDatum(component, metric string, value float64, fields logger.Fields) {
	state := cwState.Load()
	if state == nil || state.client == nil {
		return
	}

	dims := []cwtypes.Dimension{{Name: aws.String("component"), Value: aws.String(component)}}
	for k, v := range fields {
		if k == "metric" || k == "value" {
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			dims = append(dims, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(s)})
		}
	}

	data := []cwtypes.MetricDatum{{
		MetricName: aws.String(metric),
		Dimensions: dims,
		Unit:       cwtypes.StandardUnitCount,
		Value:      aws.Float64(value),
	}}

	_, err := state.client.PutMetricData(context.Background(), &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(state.namespace),
		MetricData: data,
	})
	if err != nil {
		logger.GetLogger().WithComponent("cloudwatch").WithError(err).Debug("failed to publish metric")
	}
}
