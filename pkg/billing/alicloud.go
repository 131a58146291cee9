package billing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"costscan/pkg/config"
	"costscan/pkg/logger"
	"costscan/pkg/utils/dateutils"

	"github.com/aliyun/alibaba-cloud-sdk-go/sdk"
	"github.com/aliyun/alibaba-cloud-sdk-go/sdk/auth/credentials"
	"github.com/aliyun/alibaba-cloud-sdk-go/sdk/requests"
	"github.com/aliyun/alibaba-cloud-sdk-go/services/bssopenapi"
	"github.com/aliyun/alibaba-cloud-sdk-go/services/ecs"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// itemTypeRoundDown marks the monthly round-down discount entries in the
// instance bill.
const itemTypeRoundDown = "RoundDownDiscount"

// AliCloudSource pulls billing lines from the BSS OpenAPI and usage
// side-channel data (snapshot chains, system disks) from the ECS API.
// All calls share one rate limiter sized to the single-user QPS quota.
type AliCloudSource struct {
	cfg       *config.AliCloudConfig
	bssClient *bssopenapi.Client
	limiter   *rate.Limiter

	mu         sync.Mutex
	ecsClients map[string]*ecs.Client
}

var _ Source = (*AliCloudSource)(nil)

// NewAliCloudSource builds a source from credentials. The rate limiter is
// shared between the BSS and ECS clients because the quota is per user.
func NewAliCloudSource(cfg *config.AliCloudConfig) (*AliCloudSource, error) {
	if cfg == nil || !cfg.IsConfigured() {
		return nil, ErrMissingCredentials
	}

	credential := credentials.NewAccessKeyCredential(cfg.AccessKeyID, cfg.AccessKeySecret)
	sdkConfig := sdk.NewConfig().WithTimeout(time.Duration(cfg.Timeout) * time.Second)

	bssClient, err := bssopenapi.NewClientWithOptions(cfg.Region, sdkConfig, credential)
	if err != nil {
		return nil, fmt.Errorf("failed to create BSS client: %w", err)
	}

	qps := cfg.QPSLimit
	if qps <= 0 {
		qps = 10
	}

	logger.Info("billing source initialized",
		zap.String("provider", "alicloud"),
		zap.String("region", cfg.Region),
		zap.Int("qps_limit", qps))

	return &AliCloudSource{
		cfg:        cfg,
		bssClient:  bssClient,
		limiter:    rate.NewLimiter(rate.Limit(qps), 1),
		ecsClients: make(map[string]*ecs.Client),
	}, nil
}

// DailyBillItems pulls every billing line of one day, following pagination
// tokens until the provider reports no more pages.
func (s *AliCloudSource) DailyBillItems(ctx context.Context, day time.Time) ([]Item, error) {
	cycle := day.Format(dateutils.LayoutYearMonth)
	billingDate := day.Format(dateutils.LayoutDate)

	var items []Item
	nextToken := ""

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req := bssopenapi.CreateDescribeInstanceBillRequest()
		req.BillingCycle = cycle
		req.Granularity = "DAILY"
		req.BillingDate = billingDate
		req.MaxResults = requests.NewInteger(s.pageSize())
		if nextToken != "" {
			req.NextToken = nextToken
		}

		resp, err := s.bssClient.DescribeInstanceBill(req)
		if err != nil {
			return nil, s.wrapAPIError(err)
		}
		if !resp.Success {
			if strings.Contains(strings.ToLower(resp.Message), "not ready") {
				return nil, &DataNotReadyError{BillingDate: billingDate}
			}
			return nil, &APIError{Code: resp.Code, Message: resp.Message, Details: resp.RequestId}
		}

		for _, raw := range resp.Data.Items {
			items = append(items, convertBillItem(raw))
		}

		nextToken = resp.Data.NextToken
		if nextToken == "" {
			break
		}
	}

	logger.Debug("daily bill items pulled",
		zap.String("provider", "alicloud"),
		zap.String("billing_date", billingDate),
		zap.Int("records", len(items)))
	return items, nil
}

// RoundDownDiscounts pulls the monthly bill and keeps only the round-down
// discount entries. Amounts come back positive; the caller negates them.
func (s *AliCloudSource) RoundDownDiscounts(ctx context.Context, month time.Time) ([]Discount, error) {
	cycle := month.Format(dateutils.LayoutYearMonth)

	var discounts []Discount
	nextToken := ""

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req := bssopenapi.CreateDescribeInstanceBillRequest()
		req.BillingCycle = cycle
		req.Granularity = "MONTHLY"
		req.MaxResults = requests.NewInteger(s.pageSize())
		if nextToken != "" {
			req.NextToken = nextToken
		}

		resp, err := s.bssClient.DescribeInstanceBill(req)
		if err != nil {
			return nil, s.wrapAPIError(err)
		}
		if !resp.Success {
			return nil, &APIError{Code: resp.Code, Message: resp.Message, Details: resp.RequestId}
		}

		for _, raw := range resp.Data.Items {
			if raw.Item != itemTypeRoundDown {
				continue
			}
			discounts = append(discounts, Discount{
				InstanceID: raw.InstanceID,
				Month:      dateutils.StartOfMonth(month),
				Amount:     raw.PretaxAmount,
			})
		}

		nextToken = resp.Data.NextToken
		if nextToken == "" {
			break
		}
	}

	logger.Debug("round-down discounts pulled",
		zap.String("provider", "alicloud"),
		zap.String("cycle", cycle),
		zap.Int("records", len(discounts)))
	return discounts, nil
}

// SnapshotChains lists every snapshot chain in a region, paging through the
// full result set.
func (s *AliCloudSource) SnapshotChains(ctx context.Context, region string) ([]SnapshotChain, error) {
	client, err := s.ecsClient(region)
	if err != nil {
		return nil, err
	}

	var chains []SnapshotChain
	pageNumber := 1
	const pageSize = 100

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req := ecs.CreateDescribeSnapshotLinksRequest()
		req.PageSize = requests.NewInteger(pageSize)
		req.PageNumber = requests.NewInteger(pageNumber)

		resp, err := client.DescribeSnapshotLinks(req)
		if err != nil {
			return nil, s.wrapAPIError(err)
		}

		for _, link := range resp.SnapshotLinks.SnapshotLink {
			chains = append(chains, SnapshotChain{
				ChainID:      link.SnapshotLinkId,
				SourceDiskID: link.SourceDiskId,
				InstanceID:   link.InstanceId,
				Region:       link.RegionId,
				SizeBytes:    int64(link.TotalSize),
				SnapshotNum:  link.TotalCount,
			})
		}

		if pageNumber*pageSize >= resp.TotalCount {
			break
		}
		pageNumber++
	}

	return chains, nil
}

// SystemDiskOwners maps each system disk to the instance it boots. Snapshot
// costs billed against the disk are re-attributed to the instance.
func (s *AliCloudSource) SystemDiskOwners(ctx context.Context) (map[string]string, error) {
	client, err := s.ecsClient("")
	if err != nil {
		return nil, err
	}

	owners := make(map[string]string)
	pageNumber := 1
	const pageSize = 100

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req := ecs.CreateDescribeDisksRequest()
		req.DiskType = "system"
		req.PageSize = requests.NewInteger(pageSize)
		req.PageNumber = requests.NewInteger(pageNumber)

		resp, err := client.DescribeDisks(req)
		if err != nil {
			return nil, s.wrapAPIError(err)
		}

		for _, disk := range resp.Disks.Disk {
			if disk.InstanceId != "" {
				owners[disk.DiskId] = disk.InstanceId
			}
		}

		if pageNumber*pageSize >= resp.TotalCount {
			break
		}
		pageNumber++
	}

	return owners, nil
}

// TestConnection pulls a single record of the current month to verify the
// credentials work.
func (s *AliCloudSource) TestConnection(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	req := bssopenapi.CreateDescribeInstanceBillRequest()
	req.BillingCycle = time.Now().Format(dateutils.LayoutYearMonth)
	req.Granularity = "MONTHLY"
	req.MaxResults = requests.NewInteger(1)

	_, err := s.bssClient.DescribeInstanceBill(req)
	if err != nil {
		wrapped := s.wrapAPIError(err)
		if IsAuthError(wrapped) {
			return fmt.Errorf("authentication failed: %w", wrapped)
		}
		// Transient errors do not prove the credentials are bad
		logger.Warn("connection test inconclusive",
			zap.String("provider", "alicloud"),
			zap.Error(wrapped))
	}
	return nil
}

func (s *AliCloudSource) pageSize() int {
	if s.cfg.PageSize > 0 {
		return s.cfg.PageSize
	}
	return 300
}

func (s *AliCloudSource) ecsClient(region string) (*ecs.Client, error) {
	if region == "" {
		region = s.cfg.Region
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if client, ok := s.ecsClients[region]; ok {
		return client, nil
	}

	credential := credentials.NewAccessKeyCredential(s.cfg.AccessKeyID, s.cfg.AccessKeySecret)
	sdkConfig := sdk.NewConfig().WithTimeout(time.Duration(s.cfg.Timeout) * time.Second)
	client, err := ecs.NewClientWithOptions(region, sdkConfig, credential)
	if err != nil {
		return nil, fmt.Errorf("failed to create ECS client for %s: %w", region, err)
	}
	s.ecsClients[region] = client
	return client, nil
}

func (s *AliCloudSource) wrapAPIError(err error) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()
	apiErr := &APIError{Code: "UnknownError", Message: errStr}

	switch {
	case strings.Contains(errStr, "QpsLimitExceeded"):
		apiErr.Code = "QpsLimitExceeded"
		apiErr.Message = "request rate exceeded limit"
	case strings.Contains(errStr, "InvalidAccessKeyId"):
		apiErr.Code = "InvalidAccessKeyId"
		apiErr.Message = "invalid access key id"
	case strings.Contains(errStr, "SignatureDoesNotMatch"):
		apiErr.Code = "SignatureDoesNotMatch"
		apiErr.Message = "signature verification failed"
	}
	return apiErr
}

func convertBillItem(raw bssopenapi.Item) Item {
	return Item{
		InstanceID:       raw.InstanceID,
		NickName:         raw.NickName,
		BillingDate:      raw.BillingDate,
		ProductCode:      raw.ProductCode,
		ProductName:      raw.ProductName,
		ProductType:      raw.ProductType,
		ProductDetail:    raw.ProductDetail,
		BillingItem:      raw.BillingItem,
		ItemType:         raw.Item,
		SubscriptionType: raw.SubscriptionType,
		Region:           raw.Region,
		Zone:             raw.Zone,
		InstanceSpec:     raw.InstanceSpec,
		Tag:              raw.Tag,
		ResourceGroup:    raw.ResourceGroup,
		Currency:         raw.Currency,
		Usage:            raw.Usage,
		UsageUnit:        raw.UsageUnit,
		Cost:             raw.PretaxGrossAmount - raw.InvoiceDiscount - raw.DeductedByCoupons,
		ListPrice:        raw.ListPrice,
		ServicePeriod:    raw.ServicePeriod,
	}
}
