package recon

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/opshub/tenantsync/pkg/constants"
	"github.com/opshub/tenantsync/pkg/logging"
	"github.com/opshub/tenantsync/pkg/records"
)

// DeviceLister lists managed devices from the inventory registry.
type DeviceLister interface {
	ListDevices(ctx context.Context) ([]records.Device, error)
}

// AssetLister lists connectable assets from the access-tree system.
type AssetLister interface {
	ListAssets(ctx context.Context) ([]records.Asset, error)
}

// AuditFinding describes one device missing from the access tree or grouped
// under the wrong tenant node.
type AuditFinding struct {
	DeviceID  string `json:"device_id"`
	Name      string `json:"name"`
	IP        string `json:"ip"`
	Tenant    string `json:"tenant"`
	Site      string `json:"site,omitempty"`
	Reason    string `json:"reason"`
	AssetName string `json:"asset_name,omitempty"`
}

// AuditReport summarizes one audit run.
type AuditReport struct {
	DevicesAnalyzed int            `json:"devices_analyzed"`
	AssetsTotal     int            `json:"assets_total"`
	Findings        []AuditFinding `json:"findings"`
}

// Auditor cross-checks inventory devices against access-tree assets: every
// device with a primary IP should have an asset with that IP, grouped under
// the node path of the device's tenant.
type Auditor struct {
	devices DeviceLister
	assets  AssetLister
	opts    PlannerOptions
}

// NewAuditor wires an Auditor.
func NewAuditor(devices DeviceLister, assets AssetLister, opts PlannerOptions) *Auditor {
	if opts.PathRoot == "" {
		opts.PathRoot = constants.DefaultPathRoot
	}
	return &Auditor{devices: devices, assets: assets, opts: opts}
}

// Audit fetches both asset lists concurrently and reports devices without a
// matching asset or with a tenant-node mismatch.
func (a *Auditor) Audit(ctx context.Context) (*AuditReport, error) {
	var (
		devices []records.Device
		assets  []records.Asset
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		devices, err = a.devices.ListDevices(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		assets, err = a.assets.ListAssets(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byIP := make(map[string]*records.Asset, len(assets))
	for i := range assets {
		if ip := assets[i].IP; ip != "" {
			byIP[ip] = &assets[i]
		}
	}

	report := &AuditReport{
		DevicesAnalyzed: len(devices),
		AssetsTotal:     len(assets),
	}

	for _, d := range devices {
		if d.IP == "" {
			continue
		}

		asset, ok := byIP[d.IP]
		if !ok {
			report.Findings = append(report.Findings, AuditFinding{
				DeviceID: d.ID, Name: d.Name, IP: d.IP, Tenant: d.Tenant, Site: d.Site,
				Reason: "IP not found in access tree",
			})
			continue
		}

		if d.Tenant == "" {
			continue
		}
		expected := a.opts.PathRoot + constants.PathSeparator + d.Tenant
		if !containsPath(asset.NodePaths, expected) {
			report.Findings = append(report.Findings, AuditFinding{
				DeviceID: d.ID, Name: d.Name, IP: d.IP, Tenant: d.Tenant, Site: d.Site,
				Reason:    fmt.Sprintf("node mismatch, expected %s", expected),
				AssetName: asset.Name,
			})
		}
	}

	logging.FromContext(ctx).Info().
		Int("devices", report.DevicesAnalyzed).
		Int("assets", report.AssetsTotal).
		Int("findings", len(report.Findings)).
		Msg("tree audit complete")

	return report, nil
}

func containsPath(paths []string, expected string) bool {
	for _, p := range paths {
		if strings.EqualFold(strings.TrimSpace(p), expected) {
			return true
		}
	}
	return false
}
