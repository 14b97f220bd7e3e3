package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// publishTimeout bounds a single PutMetricData call.
const publishTimeout = 5 * time.Second

// CloudWatchAPI abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchCollector publishes request and job metrics to CloudWatch.
// Publishing happens off the caller's goroutine so a slow or failing metrics
// backend never delays request handling or job runs. Failures are logged and
// dropped.
//
// Metrics emitted:
//   - RequestCount / RequestLatency: Dims {Method, Endpoint, Status}
//   - JobDuration / JobFailure: Dims {Job}
type CloudWatchCollector struct {
	client    CloudWatchAPI
	namespace string
	logger    *slog.Logger
}

var _ Collector = (*CloudWatchCollector)(nil)

func NewCloudWatchCollector(client CloudWatchAPI, namespace string, logger *slog.Logger) *CloudWatchCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchCollector{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// NewCloudWatchClient builds a CloudWatch client from the default AWS
// credential chain.
func NewCloudWatchClient(ctx context.Context, region string) (*cloudwatch.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return cloudwatch.NewFromConfig(awsCfg), nil
}

func (c *CloudWatchCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	go c.publishRequest(method, endpoint, status, duration)
}

func (c *CloudWatchCollector) RecordJob(name string, duration time.Duration, success bool) {
	go c.publishJob(name, duration, success)
}

func (c *CloudWatchCollector) publishRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		{Name: aws.String("Method"), Value: aws.String(method)},
		{Name: aws.String("Endpoint"), Value: aws.String(endpoint)},
		{Name: aws.String("Status"), Value: aws.String(status)},
	}

	c.put([]cwtypes.MetricDatum{
		{
			MetricName: aws.String("RequestCount"),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		},
		{
			MetricName: aws.String("RequestLatency"),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: dims,
		},
	})
}

func (c *CloudWatchCollector) publishJob(name string, duration time.Duration, success bool) {
	dims := []cwtypes.Dimension{
		{Name: aws.String("Job"), Value: aws.String(name)},
	}

	failure := 0.0
	if !success {
		failure = 1.0
	}

	c.put([]cwtypes.MetricDatum{
		{
			MetricName: aws.String("JobDuration"),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: dims,
		},
		{
			MetricName: aws.String("JobFailure"),
			Value:      aws.Float64(failure),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		},
	})
}

func (c *CloudWatchCollector) put(data []cwtypes.MetricDatum) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(c.namespace),
		MetricData: data,
	}

	if _, err := c.client.PutMetricData(ctx, input); err != nil {
		c.logger.Warn("failed to publish metrics", slog.Any("error", err))
	}
}
