package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
	"golang.org/x/sync/errgroup"

	"r53gate/internal/config"
	"r53gate/internal/model"
)

var (
	// ErrMissingZoneID is returned before any provider call when no zone is given.
	ErrMissingZoneID = errors.New("zoneId is required")

	// ErrZoneNotAllowed is returned for zones outside the configured allow-list.
	ErrZoneNotAllowed = errors.New("zone is not managed by this gateway")

	// ErrInvalidAction is returned for change actions other than CREATE, UPSERT and DELETE.
	ErrInvalidAction = errors.New("invalid change action")
)

// Route53API is the subset of *route53.Client the gateway calls.
type Route53API interface {
	ListHostedZones(ctx context.Context, params *route53.ListHostedZonesInput, optFns ...func(*route53.Options)) (*route53.ListHostedZonesOutput, error)
	ListResourceRecordSets(ctx context.Context, params *route53.ListResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ListResourceRecordSetsOutput, error)
	ChangeResourceRecordSets(ctx context.Context, params *route53.ChangeResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error)
}

// NewRoute53Client builds a client from static keys when configured, otherwise
// from the default AWS credential chain (environment, shared config, IMDS).
func NewRoute53Client(ctx context.Context, cfg config.AWSConfig) (*route53.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return route53.NewFromConfig(awsCfg), nil
}

type DNSService struct {
	client       Route53API
	allowedZones map[string]string
}

func NewDNSService(client Route53API, zones []config.HostedZoneEntry) *DNSService {
	allowed := make(map[string]string, len(zones))
	for _, z := range zones {
		allowed[extractZoneID(z.ID)] = z.Label
	}
	return &DNSService{client: client, allowedZones: allowed}
}

// ListZones returns every managed hosted zone in provider order.
func (s *DNSService) ListZones(ctx context.Context) ([]model.HostedZone, error) {
	zones := []model.HostedZone{}
	var marker *string

	for {
		result, err := s.client.ListHostedZones(ctx, &route53.ListHostedZonesInput{Marker: marker})
		if err != nil {
			return nil, fmt.Errorf("list hosted zones: %w", err)
		}

		for _, z := range result.HostedZones {
			zoneID := extractZoneID(aws.ToString(z.Id))
			if !s.isAllowed(zoneID) {
				continue
			}
			zones = append(zones, toHostedZone(z, s.allowedZones[zoneID]))
		}

		if !result.IsTruncated || result.NextMarker == nil {
			break
		}
		marker = result.NextMarker
	}
	return zones, nil
}

// ListRecords returns every record set in the zone, following pagination.
func (s *DNSService) ListRecords(ctx context.Context, zoneID string) ([]model.ResourceRecordSet, error) {
	if zoneID == "" {
		return nil, ErrMissingZoneID
	}
	if !s.isAllowed(extractZoneID(zoneID)) {
		return nil, fmt.Errorf("%w: %s", ErrZoneNotAllowed, zoneID)
	}

	records := []model.ResourceRecordSet{}
	input := &route53.ListResourceRecordSetsInput{HostedZoneId: aws.String(zoneID)}

	for {
		result, err := s.client.ListResourceRecordSets(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list record sets for %s: %w", zoneID, err)
		}
		for _, rrs := range result.ResourceRecordSets {
			records = append(records, toRecordSet(rrs))
		}

		if !result.IsTruncated {
			break
		}
		input = &route53.ListResourceRecordSetsInput{
			HostedZoneId:          aws.String(zoneID),
			StartRecordName:       result.NextRecordName,
			StartRecordType:       result.NextRecordType,
			StartRecordIdentifier: result.NextRecordIdentifier,
		}
	}
	return records, nil
}

// ListZonesWithRecords fetches every zone's records concurrently. The first
// failure cancels the remaining fetches and fails the whole call.
func (s *DNSService) ListZonesWithRecords(ctx context.Context) ([]model.ZoneRecords, error) {
	zones, err := s.ListZones(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.ZoneRecords, len(zones))
	g, gctx := errgroup.WithContext(ctx)
	for i, zone := range zones {
		out[i].Zone = zone
		g.Go(func() error {
			records, err := s.ListRecords(gctx, zone.ID)
			if err != nil {
				return err
			}
			out[i].Records = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ChangeRecord submits a single-change batch. A zero TTL becomes model.DefaultTTL.
func (s *DNSService) ChangeRecord(ctx context.Context, zoneID string, req model.RecordChangeRequest) (*model.ChangeResponse, error) {
	if zoneID == "" {
		return nil, ErrMissingZoneID
	}
	if !s.isAllowed(extractZoneID(zoneID)) {
		return nil, fmt.Errorf("%w: %s", ErrZoneNotAllowed, zoneID)
	}

	var action types.ChangeAction
	switch req.Action {
	case model.ActionCreate:
		action = types.ChangeActionCreate
	case model.ActionUpsert:
		action = types.ChangeActionUpsert
	case model.ActionDelete:
		action = types.ChangeActionDelete
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, req.Action)
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = model.DefaultTTL
	}

	var resourceRecords []types.ResourceRecord
	for _, v := range req.Values {
		resourceRecords = append(resourceRecords, types.ResourceRecord{
			Value: aws.String(v),
		})
	}

	result, err := s.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &types.ChangeBatch{
			Comment: aws.String("Changed via r53gate"),
			Changes: []types.Change{
				{
					Action: action,
					ResourceRecordSet: &types.ResourceRecordSet{
						Name:            aws.String(req.Name),
						Type:            types.RRType(req.Type),
						TTL:             aws.Int64(ttl),
						ResourceRecords: resourceRecords,
					},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s %s in %s: %w", req.Action, req.Type, req.Name, zoneID, err)
	}

	resp := &model.ChangeResponse{}
	if ci := result.ChangeInfo; ci != nil {
		resp.ChangeInfo = model.ChangeInfo{
			ID:          aws.ToString(ci.Id),
			Status:      string(ci.Status),
			SubmittedAt: aws.ToTime(ci.SubmittedAt),
			Comment:     aws.ToString(ci.Comment),
		}
	}
	return resp, nil
}

// ManagesZone reports whether zoneID (bare or "/hostedzone/" prefixed) is
// inside the configured allow-list.
func (s *DNSService) ManagesZone(zoneID string) bool {
	return s.isAllowed(extractZoneID(zoneID))
}

func (s *DNSService) isAllowed(zoneID string) bool {
	if len(s.allowedZones) == 0 {
		return true
	}
	_, ok := s.allowedZones[zoneID]
	return ok
}

// extractZoneID turns "/hostedzone/Z123" into "Z123".
func extractZoneID(fullID string) string {
	parts := strings.Split(fullID, "/")
	return parts[len(parts)-1]
}

func toHostedZone(z types.HostedZone, label string) model.HostedZone {
	hz := model.HostedZone{
		ID:                     aws.ToString(z.Id),
		Name:                   aws.ToString(z.Name),
		CallerReference:        aws.ToString(z.CallerReference),
		ResourceRecordSetCount: aws.ToInt64(z.ResourceRecordSetCount),
		Label:                  label,
	}
	if z.Config != nil {
		hz.Config = &model.HostedZoneConfig{
			Comment:     aws.ToString(z.Config.Comment),
			PrivateZone: z.Config.PrivateZone,
		}
	}
	return hz
}

func toRecordSet(rrs types.ResourceRecordSet) model.ResourceRecordSet {
	rec := model.ResourceRecordSet{
		Name:          aws.ToString(rrs.Name),
		Type:          string(rrs.Type),
		TTL:           aws.ToInt64(rrs.TTL),
		SetIdentifier: aws.ToString(rrs.SetIdentifier),
	}
	for _, r := range rrs.ResourceRecords {
		rec.ResourceRecords = append(rec.ResourceRecords, model.ResourceRecord{Value: aws.ToString(r.Value)})
	}
	if rrs.AliasTarget != nil {
		rec.AliasTarget = &model.AliasTarget{
			DNSName:              aws.ToString(rrs.AliasTarget.DNSName),
			HostedZoneID:         aws.ToString(rrs.AliasTarget.HostedZoneId),
			EvaluateTargetHealth: rrs.AliasTarget.EvaluateTargetHealth,
		}
	}
	return rec
}
