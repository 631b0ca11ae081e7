package compute

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/config"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/logging"
)

// Instance tag values
const (
	tagPurpose = "StreamFlow-LiveStreaming"
	tagService = "NodeTranscoding"
)

// ErrNoLaunchConfig is returned when neither a launch template nor security groups are set
var ErrNoLaunchConfig = errors.New("either a launch template or security groups must be configured")

// ec2API is the subset of the EC2 client used here
type ec2API interface {
	RunInstances(ctx context.Context, params *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

// EC2Provisioner allocates streaming instances on AWS EC2
type EC2Provisioner struct {
	client ec2API
	cfg    config.AWSConfig
	logger *logging.Logger
}

// NewEC2Provisioner creates an EC2 client from static credentials
func NewEC2Provisioner(ctx context.Context, cfg config.AWSConfig, logger *logging.Logger) (*EC2Provisioner, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newEC2Provisioner(ec2.NewFromConfig(awsCfg), cfg, logger), nil
}

func newEC2Provisioner(client ec2API, cfg config.AWSConfig, logger *logging.Logger) *EC2Provisioner {
	if logger == nil {
		logger = logging.Nop()
	}
	return &EC2Provisioner{client: client, cfg: cfg, logger: logger}
}

// New returns an EC2 provisioner when credentials are configured and the
// unconfigured stub otherwise.
func New(ctx context.Context, cfg config.AWSConfig, logger *logging.Logger) (Provisioner, error) {
	if !cfg.Configured() {
		return Unconfigured{}, nil
	}
	p, err := NewEC2Provisioner(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Allocate launches one tagged instance carrying the bootstrap script as user data
func (p *EC2Provisioner) Allocate(ctx context.Context, channelID, bootstrapScript string) (*Allocation, error) {
	input, err := p.runInput(channelID, bootstrapScript)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := p.client.RunInstances(ctx, input)
	if err != nil {
		p.logger.LogComputeOperation("RunInstances", "", time.Since(start), err)
		return nil, fmt.Errorf("failed to run instance: %w", err)
	}

	if len(out.Instances) == 0 || aws.ToString(out.Instances[0].InstanceId) == "" {
		return nil, errors.New("failed to launch instance: no instance id returned")
	}

	inst := out.Instances[0]
	instanceID := aws.ToString(inst.InstanceId)
	p.logger.LogComputeOperation("RunInstances", instanceID, time.Since(start), nil)

	return &Allocation{
		InstanceID:     instanceID,
		InstanceType:   string(inst.InstanceType),
		PublicAddress:  aws.ToString(inst.PublicIpAddress),
		PrivateAddress: aws.ToString(inst.PrivateIpAddress),
	}, nil
}

func (p *EC2Provisioner) runInput(channelID, bootstrapScript string) (*ec2.RunInstancesInput, error) {
	if p.cfg.LaunchTemplateID == "" && len(p.cfg.SecurityGroupIDs) == 0 {
		return nil, ErrNoLaunchConfig
	}

	input := &ec2.RunInstancesInput{
		MinCount: aws.Int32(1),
		MaxCount: aws.Int32(1),
		UserData: aws.String(base64.StdEncoding.EncodeToString([]byte(bootstrapScript))),
		TagSpecifications: []types.TagSpecification{
			{
				ResourceType: types.ResourceTypeInstance,
				Tags: []types.Tag{
					{Key: aws.String("Name"), Value: aws.String("streaming-" + channelID)},
					{Key: aws.String("ChannelId"), Value: aws.String(channelID)},
					{Key: aws.String("Purpose"), Value: aws.String(tagPurpose)},
					{Key: aws.String("Service"), Value: aws.String(tagService)},
				},
			},
		},
	}

	if p.cfg.LaunchTemplateID != "" {
		// The template carries AMI, type and security groups; only user data is overridden.
		input.LaunchTemplate = &types.LaunchTemplateSpecification{
			LaunchTemplateId: aws.String(p.cfg.LaunchTemplateID),
			Version:          aws.String("$Latest"),
		}
		return input, nil
	}

	input.ImageId = aws.String(p.cfg.ImageID)
	input.InstanceType = types.InstanceType(p.cfg.InstanceType)
	input.SecurityGroupIds = p.cfg.SecurityGroupIDs
	return input, nil
}

// Terminate requests instance termination
func (p *EC2Provisioner) Terminate(ctx context.Context, instanceID string) TerminationResult {
	start := time.Now()
	_, err := p.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{instanceID},
	})
	p.logger.LogComputeOperation("TerminateInstances", instanceID, time.Since(start), err)
	if err != nil {
		return TerminationResult{Success: false, Error: err.Error()}
	}
	return TerminationResult{Success: true}
}

// Describe returns the current state and addresses of an instance
func (p *EC2Provisioner) Describe(ctx context.Context, instanceID string) (*Instance, error) {
	out, err := p.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe instance: %w", err)
	}

	if len(out.Reservations) == 0 || len(out.Reservations[0].Instances) == 0 {
		return nil, nil
	}

	inst := out.Reservations[0].Instances[0]
	state := "unknown"
	if inst.State != nil {
		state = string(inst.State.Name)
	}

	return &Instance{
		ID:             instanceID,
		Type:           string(inst.InstanceType),
		State:          state,
		PublicAddress:  aws.ToString(inst.PublicIpAddress),
		PrivateAddress: aws.ToString(inst.PrivateIpAddress),
	}, nil
}
