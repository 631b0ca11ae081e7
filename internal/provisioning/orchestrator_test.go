package provisioning

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/compute"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/plans"
	"github.com/therealutkarshpriyadarshi/streamflow/pkg/models"
)

var (
	tenantA = models.Tenant{TenantID: "tenant-a", PlanKey: "pro"}
	tenantB = models.Tenant{TenantID: "tenant-b", PlanKey: "pro"}
	admin   = models.Tenant{TenantID: "ops", PlanKey: "enterprise", IsAdmin: true}
)

func testOptions() Options {
	return Options{
		MaxPollAttempts: 5,
		PollInterval:    10 * time.Second,
		MockFallback:    true,
		RepositoryURL:   "https://example.com/node-transcoding.git",
	}
}

func newTestOrchestrator(store Store, c compute.Provisioner, opts Options) (*Orchestrator, *[]time.Duration) {
	o := NewOrchestrator(store, c, opts, nil)
	var sleeps []time.Duration
	o.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return o, &sleeps
}

func draft(name string) ChannelDraft {
	return ChannelDraft{
		Name: name,
		HLSSettings: models.HLSSettings{
			QualityProfiles: []models.QualityProfile{
				{Name: "4K", Enabled: true},
				{Name: "720p", Enabled: true},
			},
			VTTEnabled:     true,
			SegmentLength:  6,
			GeoLocking:     models.GeoLocking{Enabled: true, AllowedCountries: []string{"US"}},
			IPRestrictions: models.IPRestrictions{Enabled: true, AllowedIPs: []string{"10.0.0.0/8"}},
		},
	}
}

var hlsPattern = regexp.MustCompile(`^http://\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}:8000/hls/([^/]+)/playlist\.m3u8$`)

func TestCreate_BasicPlanForcesGeoLockingOff(t *testing.T) {
	store := newMemStore()
	o, _ := newTestOrchestrator(store, &fakeCompute{allocErr: errProviderDown}, testOptions())

	tenant := models.Tenant{TenantID: "t1", PlanKey: "basic"}
	res, err := o.Create(context.Background(), tenant, draft("news"))
	require.NoError(t, err)

	stored, err := store.GetChannel(context.Background(), res.Channel.ID)
	require.NoError(t, err)
	assert.False(t, stored.HLSSettings.GeoLocking.Enabled)
	assert.Empty(t, stored.HLSSettings.GeoLocking.AllowedCountries)
	assert.False(t, stored.HLSSettings.VTTEnabled)
	assert.False(t, stored.HLSSettings.HasProfile("4K"))
	assert.True(t, stored.HLSSettings.HasProfile("720p"))
	assert.Equal(t, "t1", stored.TenantID)
}

func TestCreate_QuotaExceeded(t *testing.T) {
	store := newMemStore()
	for i := 0; i < 3; i++ {
		store.seed(models.Channel{TenantID: tenantA.TenantID, Status: models.ChannelStatusActive})
	}
	fc := &fakeCompute{}
	o, _ := newTestOrchestrator(store, fc, testOptions())

	_, err := o.Create(context.Background(), tenantA, draft("fourth"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQuotaExceeded))

	var qe *QuotaError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, 3, qe.Quota)
	assert.Contains(t, err.Error(), "3")

	assert.Zero(t, fc.allocations, "quota rejection precedes allocation")
	assert.Empty(t, fc.scripts)
	channels, _ := store.ListChannelsByTenant(context.Background(), tenantA.TenantID)
	assert.Len(t, channels, 3)
}

func TestCreate_QuotaBoundary(t *testing.T) {
	for _, tier := range plans.All() {
		for n := 0; n <= tier.Channels+1; n++ {
			t.Run(fmt.Sprintf("%s/%d", tier.Key, n), func(t *testing.T) {
				store := newMemStore()
				for i := 0; i < n; i++ {
					store.seed(models.Channel{TenantID: "t", Status: models.ChannelStatusActive})
				}
				o, _ := newTestOrchestrator(store, &fakeCompute{allocErr: errProviderDown}, testOptions())

				_, err := o.Create(context.Background(), models.Tenant{TenantID: "t", PlanKey: tier.Key}, draft("c"))
				if n >= tier.Channels {
					assert.ErrorIs(t, err, ErrQuotaExceeded)
				} else {
					assert.NoError(t, err)
				}
			})
		}
	}
}

func TestCreate_UnknownPlanHasNoQuota(t *testing.T) {
	o, _ := newTestOrchestrator(newMemStore(), &fakeCompute{}, testOptions())

	_, err := o.Create(context.Background(), models.Tenant{TenantID: "t", PlanKey: "platinum"}, draft("c"))
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestCreate_EmptyPlanDefaultsToBasic(t *testing.T) {
	o, _ := newTestOrchestrator(newMemStore(), &fakeCompute{allocErr: errProviderDown}, testOptions())

	_, err := o.Create(context.Background(), models.Tenant{TenantID: "t"}, draft("c"))
	assert.NoError(t, err)
}

func TestCreate_RequiresName(t *testing.T) {
	o, _ := newTestOrchestrator(newMemStore(), &fakeCompute{}, testOptions())

	_, err := o.Create(context.Background(), tenantA, ChannelDraft{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreate_StoreFailurePropagates(t *testing.T) {
	store := newMemStore()
	store.listErr = errors.New("connection refused")
	o, _ := newTestOrchestrator(store, &fakeCompute{}, testOptions())

	_, err := o.Create(context.Background(), tenantA, draft("c"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.False(t, errors.Is(err, ErrQuotaExceeded))
}

func TestCreate_RealInstance(t *testing.T) {
	store := newMemStore()
	fc := &fakeCompute{readyAfter: 2}
	o, sleeps := newTestOrchestrator(store, fc, testOptions())
	archive := &memArchive{}
	o.SetScriptArchive(archive)

	res, err := o.Create(context.Background(), tenantA, draft("live"))
	require.NoError(t, err)

	ch := res.Channel
	assert.False(t, res.IsMock)
	assert.Equal(t, MessageProvisioned, res.Message)
	assert.Equal(t, models.ChannelStatusActive, ch.Status)
	assert.Equal(t, "i-real-"+ch.ID, ch.InstanceID)
	assert.Equal(t, fmt.Sprintf("http://203.0.113.7:8000/hls/%s/playlist.m3u8", ch.ID), ch.Endpoints.HLSURL)
	assert.Equal(t, fmt.Sprintf("rtmp://203.0.113.7:1935/live/%s", ch.ID), ch.Endpoints.RTMPURL)
	assert.Equal(t, "10.0.0.7", ch.Endpoints.PrivateIP)

	assert.Equal(t, 3, fc.describeCalls)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, *sleeps)

	require.Len(t, fc.scripts, 1)
	assert.Contains(t, fc.scripts[0], ch.ID)
	assert.Equal(t, fc.scripts[0], archive.scripts[ch.ID])

	stored, err := store.GetChannel(context.Background(), ch.ID)
	require.NoError(t, err)
	assert.Equal(t, ch.Endpoints, stored.Endpoints)
	assert.False(t, stored.IsMock)

	usage, err := store.GetUsageRecord(context.Background(), ch.ID)
	require.NoError(t, err)
	assert.Zero(t, usage.ViewerCount)
	assert.Zero(t, usage.TotalViews)
}

func TestCreate_RecordsInstanceType(t *testing.T) {
	store := newMemStore()
	tc := &typedCompute{fakeCompute: &fakeCompute{}, instanceType: "c5.xlarge"}
	o, _ := newTestOrchestrator(store, tc, testOptions())

	res, err := o.Create(context.Background(), tenantA, draft("typed"))
	require.NoError(t, err)
	assert.Equal(t, "c5.xlarge", res.Channel.InstanceType)

	stored, err := store.GetChannel(context.Background(), res.Channel.ID)
	require.NoError(t, err)
	assert.Equal(t, "c5.xlarge", stored.InstanceType)
	assert.Equal(t, "i-real-"+res.Channel.ID, stored.InstanceID)
}

func TestProvision_InstanceRecordedBeforeReadiness(t *testing.T) {
	store := newMemStore()
	store.seed(models.Channel{ID: "ch-1", TenantID: tenantA.TenantID, Status: models.ChannelStatusCreating})
	bc := newBlockingCompute()
	o, _ := newTestOrchestrator(store, bc, testOptions())

	done := make(chan error, 1)
	go func() {
		_, err := o.Provision(context.Background(), tenantA, "ch-1")
		done <- err
	}()

	<-bc.entered
	ch, err := store.GetChannel(context.Background(), "ch-1")
	require.NoError(t, err)
	assert.Equal(t, models.ChannelStatusProvisioning, ch.Status)
	assert.Equal(t, "i-real-ch-1", ch.InstanceID)
	assert.False(t, ch.IsMock)

	close(bc.release)
	require.NoError(t, <-done)
}

func TestProvision_DecommissionDuringPollReleasesInstance(t *testing.T) {
	store := newMemStore()
	store.seed(models.Channel{ID: "ch-1", TenantID: tenantA.TenantID, Status: models.ChannelStatusCreating})
	bc := newBlockingCompute()
	o, _ := newTestOrchestrator(store, bc, testOptions())
	d := NewDecommissioner(store, bc, nil)

	done := make(chan error, 1)
	go func() {
		_, err := o.Provision(context.Background(), tenantA, "ch-1")
		done <- err
	}()

	<-bc.entered
	res, err := d.Decommission(context.Background(), tenantA, "ch-1")
	require.NoError(t, err)
	assert.True(t, res.InstanceTerminated)

	close(bc.release)
	err = <-done
	assert.ErrorIs(t, err, ErrChannelNotFound)

	assert.Contains(t, bc.terminatedIDs(), "i-real-ch-1")
	_, err = store.GetChannel(context.Background(), "ch-1")
	assert.ErrorIs(t, err, ErrChannelNotFound)
}

func TestProvision_LockSerializesDecommission(t *testing.T) {
	store := newMemStore()
	store.seed(models.Channel{ID: "ch-1", TenantID: tenantA.TenantID, Status: models.ChannelStatusCreating})
	bc := newBlockingCompute()
	locker := &mutexLocker{}
	o, _ := newTestOrchestrator(store, bc, testOptions())
	o.SetLocker(locker)
	d := NewDecommissioner(store, bc, nil)
	d.SetLocker(locker)

	provisioned := make(chan error, 1)
	go func() {
		_, err := o.Provision(context.Background(), tenantA, "ch-1")
		provisioned <- err
	}()
	<-bc.entered

	decommissioned := make(chan *DecommissionResult, 1)
	go func() {
		res, err := d.Decommission(context.Background(), tenantA, "ch-1")
		assert.NoError(t, err)
		decommissioned <- res
	}()

	close(bc.release)
	require.NoError(t, <-provisioned, "provisioning finishes before the decommission runs")

	res := <-decommissioned
	require.NotNil(t, res)
	assert.True(t, res.InstanceTerminated)
	assert.Equal(t, []string{"i-real-ch-1"}, bc.terminatedIDs())
}

func TestProvision_ChannelGoneAfterAllocationReleasesInstance(t *testing.T) {
	store := newMemStore()
	fc := &fakeCompute{}
	o, _ := newTestOrchestrator(store, fc, testOptions())

	// Deleted between the PROVISIONING write and allocation, so never stored here.
	ch := &models.Channel{ID: "ch-1", TenantID: tenantA.TenantID, Status: models.ChannelStatusProvisioning}

	_, err := o.allocate(context.Background(), ch, o.logger)
	assert.ErrorIs(t, err, ErrChannelNotFound)
	assert.Equal(t, []string{"i-real-ch-1"}, fc.terminated)
	assert.Zero(t, fc.describeCalls)
}

func TestCreate_MockFallbackShape(t *testing.T) {
	store := newMemStore()
	o, _ := newTestOrchestrator(store, &fakeCompute{allocErr: errProviderDown}, testOptions())

	res, err := o.Create(context.Background(), tenantA, draft("demo"))
	require.NoError(t, err)

	ch := res.Channel
	assert.True(t, res.IsMock)
	assert.True(t, ch.IsMock)
	assert.Equal(t, MessageMockProvisioned, res.Message)
	assert.NotContains(t, res.Message, errProviderDown.Error())
	assert.Equal(t, models.ChannelStatusActive, ch.Status)

	assert.Regexp(t, `^i-[0-9a-f]{17}$`, ch.InstanceID)
	assert.Regexp(t, `^10\.0\.1\.\d{1,3}$`, ch.Endpoints.PrivateIP)

	m := hlsPattern.FindStringSubmatch(ch.Endpoints.HLSURL)
	require.NotNil(t, m, "unexpected HLS url %q", ch.Endpoints.HLSURL)
	assert.Equal(t, ch.ID, m[1])

	ip := ch.Endpoints.PublicIP
	assert.Equal(t, DeriveEndpoints(ch.ID, ip, ch.Endpoints.PrivateIP), ch.Endpoints)

	_, err = store.GetUsageRecord(context.Background(), ch.ID)
	assert.NoError(t, err, "usage record is seeded for mock channels too")
}

func TestProvision_PollExhaustionFallsBack(t *testing.T) {
	store := newMemStore()
	fc := &fakeCompute{readyAfter: -1}
	opts := testOptions()
	opts.MaxPollAttempts = 3
	o, sleeps := newTestOrchestrator(store, fc, opts)

	res, err := o.Create(context.Background(), tenantA, draft("slow"))
	require.NoError(t, err)

	assert.True(t, res.IsMock)
	assert.Equal(t, 3, fc.describeCalls)
	assert.Len(t, *sleeps, 2)
	assert.Equal(t, []string{"i-real-" + res.Channel.ID}, fc.terminated, "unready instance is released")
	assert.NotEqual(t, "i-real-"+res.Channel.ID, res.Channel.InstanceID)
}

func TestProvision_Idempotent(t *testing.T) {
	store := newMemStore()
	fc := &fakeCompute{}
	o, _ := newTestOrchestrator(store, fc, testOptions())

	created, err := o.Create(context.Background(), tenantA, draft("c"))
	require.NoError(t, err)

	first, err := o.Provision(context.Background(), tenantA, created.Channel.ID)
	require.NoError(t, err)
	second, err := o.Provision(context.Background(), tenantA, created.Channel.ID)
	require.NoError(t, err)

	assert.True(t, first.AlreadyProvisioned)
	assert.Equal(t, created.Channel.Endpoints, first.Channel.Endpoints)
	assert.Equal(t, first.Channel.Endpoints, second.Channel.Endpoints)
	assert.Equal(t, 1, fc.allocations)
}

func TestProvision_IdempotentWhileStreaming(t *testing.T) {
	store := newMemStore()
	fc := &fakeCompute{}
	endpoints := DeriveEndpoints("ch-1", "198.51.100.1", "10.0.0.1")
	store.seed(models.Channel{ID: "ch-1", TenantID: tenantA.TenantID, Status: models.ChannelStatusStreaming, Endpoints: endpoints})
	o, _ := newTestOrchestrator(store, fc, testOptions())

	res, err := o.Provision(context.Background(), tenantA, "ch-1")
	require.NoError(t, err)
	assert.Equal(t, endpoints, res.Channel.Endpoints)
	assert.Zero(t, fc.allocations)
}

func TestProvision_Forbidden(t *testing.T) {
	store := newMemStore()
	store.seed(models.Channel{ID: "ch-1", TenantID: tenantA.TenantID, Status: models.ChannelStatusCreating})
	fc := &fakeCompute{}
	o, _ := newTestOrchestrator(store, fc, testOptions())

	_, err := o.Provision(context.Background(), tenantB, "ch-1")
	assert.ErrorIs(t, err, ErrForbidden)

	ch, _ := store.GetChannel(context.Background(), "ch-1")
	assert.Equal(t, models.ChannelStatusCreating, ch.Status)
	assert.Empty(t, fc.scripts)
}

func TestProvision_NotFound(t *testing.T) {
	o, _ := newTestOrchestrator(newMemStore(), &fakeCompute{}, testOptions())

	_, err := o.Provision(context.Background(), tenantA, "missing")
	assert.ErrorIs(t, err, ErrChannelNotFound)
}

func TestProvision_FallbackDisabled(t *testing.T) {
	store := newMemStore()
	fc := &fakeCompute{allocErr: errProviderDown}
	opts := testOptions()
	opts.MockFallback = false
	o, _ := newTestOrchestrator(store, fc, opts)

	_, err := o.Create(context.Background(), tenantA, draft("strict"))
	require.ErrorIs(t, err, ErrProvisioningFailed)
	assert.NotContains(t, err.Error(), errProviderDown.Error())

	channels, _ := store.ListChannelsByTenant(context.Background(), tenantA.TenantID)
	require.Len(t, channels, 1)
	ch := channels[0]
	assert.Equal(t, models.ChannelStatusFailed, ch.Status)
	assert.Empty(t, ch.InstanceID)

	// Retry from FAILED once the provider recovers.
	fc.allocErr = nil
	res, err := o.Provision(context.Background(), tenantA, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelStatusActive, res.Channel.Status)
	assert.False(t, res.IsMock)
}

func TestProvision_RetryCountsOnlyOtherChannels(t *testing.T) {
	store := newMemStore()
	basic := models.Tenant{TenantID: "t", PlanKey: "basic"}
	store.seed(models.Channel{ID: "ch-1", TenantID: "t", Status: models.ChannelStatusFailed})
	o, _ := newTestOrchestrator(store, &fakeCompute{}, testOptions())

	res, err := o.Provision(context.Background(), basic, "ch-1")
	require.NoError(t, err)
	assert.Equal(t, models.ChannelStatusActive, res.Channel.Status)
}

func TestProvision_RejectsInvalidStatus(t *testing.T) {
	for _, status := range []models.ChannelStatus{
		models.ChannelStatusProvisioning,
		models.ChannelStatusMaintenance,
		models.ChannelStatusTerminating,
	} {
		t.Run(string(status), func(t *testing.T) {
			store := newMemStore()
			store.seed(models.Channel{ID: "ch-1", TenantID: tenantA.TenantID, Status: status})
			fc := &fakeCompute{}
			o, _ := newTestOrchestrator(store, fc, testOptions())

			_, err := o.Provision(context.Background(), tenantA, "ch-1")
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Zero(t, fc.allocations)
		})
	}
}

func TestProvision_EffectiveSettingsFollowCurrentPlan(t *testing.T) {
	store := newMemStore()
	o, _ := newTestOrchestrator(store, &fakeCompute{}, testOptions())

	enterprise := models.Tenant{TenantID: "t", PlanKey: "enterprise"}
	res, err := o.Create(context.Background(), enterprise, draft("c"))
	require.NoError(t, err)
	assert.True(t, res.EffectiveSettings.HasProfile("4K"))

	// Downgrade: the stored snapshot is untouched, the effective view is not.
	downgraded := models.Tenant{TenantID: "t", PlanKey: "basic"}
	view, err := o.Get(context.Background(), downgraded, res.Channel.ID)
	require.NoError(t, err)
	assert.True(t, view.Channel.HLSSettings.HasProfile("4K"))
	assert.False(t, view.EffectiveSettings.HasProfile("4K"))
	assert.False(t, view.EffectiveSettings.GeoLocking.Enabled)
	assert.Contains(t, view.Violations, "4k")
}

func TestProvision_LockerWrapsProvisioning(t *testing.T) {
	locker := &countingLocker{}
	o, _ := newTestOrchestrator(newMemStore(), &fakeCompute{}, testOptions())
	o.SetLocker(locker)

	_, err := o.Create(context.Background(), tenantA, draft("c"))
	require.NoError(t, err)
	assert.Equal(t, 1, locker.acquired)
	assert.Equal(t, 1, locker.released)

	locker.err = errors.New("lock held")
	_, err = o.Create(context.Background(), tenantA, draft("d"))
	assert.ErrorIs(t, err, ErrChannelBusy)
}

func TestProvision_PublishesEvents(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	o, _ := newTestOrchestrator(newMemStore(), &fakeCompute{allocErr: errProviderDown}, testOptions())
	o.SetEventPublisher(pub)

	res, err := o.Create(context.Background(), tenantA, draft("c"))
	require.NoError(t, err, "publish failures do not fail provisioning")

	assert.Equal(t, []string{models.EventChannelProvisioned}, pub.names())
	assert.True(t, pub.events[0].IsMock)
	assert.Equal(t, res.Channel.InstanceID, pub.events[0].InstanceID)
}

func TestProvision_CancelledContextStillCompletes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o, _ := newTestOrchestrator(newMemStore(), &fakeCompute{}, testOptions())
	res, err := o.Create(ctx, tenantA, draft("c"))
	require.NoError(t, err)
	assert.Equal(t, models.ChannelStatusActive, res.Channel.Status)
}

func TestIngestTransitions(t *testing.T) {
	store := newMemStore()
	endpoints := DeriveEndpoints("ch-1", "198.51.100.1", "10.0.0.1")
	store.seed(models.Channel{ID: "ch-1", TenantID: tenantA.TenantID, Status: models.ChannelStatusActive, Endpoints: endpoints})
	pub := &recordingPublisher{}
	o, _ := newTestOrchestrator(store, &fakeCompute{}, testOptions())
	o.SetEventPublisher(pub)
	ctx := context.Background()

	require.NoError(t, o.MarkStreaming(ctx, "ch-1"))
	ch, _ := store.GetChannel(ctx, "ch-1")
	assert.Equal(t, models.ChannelStatusStreaming, ch.Status)
	assert.Equal(t, endpoints, ch.Endpoints)

	require.NoError(t, o.MarkStreaming(ctx, "ch-1"), "repeated start is a no-op")

	require.NoError(t, o.MarkIngestStopped(ctx, "ch-1"))
	ch, _ = store.GetChannel(ctx, "ch-1")
	assert.Equal(t, models.ChannelStatusActive, ch.Status)
	assert.Equal(t, endpoints, ch.Endpoints)

	assert.Equal(t, []string{models.EventChannelStatusChanged, models.EventChannelStatusChanged}, pub.names())
}

func TestIngestTransitions_Invalid(t *testing.T) {
	store := newMemStore()
	store.seed(models.Channel{ID: "ch-1", TenantID: tenantA.TenantID, Status: models.ChannelStatusProvisioning})
	o, _ := newTestOrchestrator(store, &fakeCompute{}, testOptions())

	assert.ErrorIs(t, o.MarkStreaming(context.Background(), "ch-1"), ErrInvalidTransition)
	assert.ErrorIs(t, o.MarkIngestStopped(context.Background(), "ch-1"), ErrInvalidTransition)
	assert.ErrorIs(t, o.MarkStreaming(context.Background(), "missing"), ErrChannelNotFound)
}

func TestMaintenance(t *testing.T) {
	store := newMemStore()
	store.seed(models.Channel{ID: "ch-1", TenantID: tenantA.TenantID, Status: models.ChannelStatusActive, InstanceID: "i-1"})
	o, _ := newTestOrchestrator(store, &fakeCompute{}, testOptions())
	ctx := context.Background()

	_, err := o.EnterMaintenance(ctx, tenantA, "ch-1")
	assert.ErrorIs(t, err, ErrForbidden, "owners are not admins")

	ch, err := o.EnterMaintenance(ctx, admin, "ch-1")
	require.NoError(t, err)
	assert.Equal(t, models.ChannelStatusMaintenance, ch.Status)

	_, err = o.EnterMaintenance(ctx, admin, "ch-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	ch, err = o.ExitMaintenance(ctx, admin, "ch-1")
	require.NoError(t, err)
	assert.Equal(t, models.ChannelStatusActive, ch.Status)
	assert.Equal(t, "i-1", ch.InstanceID, "no state is lost")
}

func TestGetAndList(t *testing.T) {
	store := newMemStore()
	store.seed(models.Channel{ID: "a1", TenantID: tenantA.TenantID, Status: models.ChannelStatusActive})
	store.seed(models.Channel{ID: "a2", TenantID: tenantA.TenantID, Status: models.ChannelStatusActive})
	store.seed(models.Channel{ID: "b1", TenantID: tenantB.TenantID, Status: models.ChannelStatusActive})
	o, _ := newTestOrchestrator(store, &fakeCompute{}, testOptions())
	ctx := context.Background()

	views, err := o.List(ctx, tenantA)
	require.NoError(t, err)
	assert.Len(t, views, 2)

	_, err = o.Get(ctx, tenantA, "b1")
	assert.ErrorIs(t, err, ErrForbidden)

	view, err := o.Get(ctx, admin, "b1")
	require.NoError(t, err)
	assert.Equal(t, "b1", view.Channel.ID)
	assert.True(t, view.SettingsUnfiltered)

	own, err := o.Get(ctx, tenantA, "a1")
	require.NoError(t, err)
	assert.False(t, own.SettingsUnfiltered)
}

func TestDeriveEndpoints(t *testing.T) {
	e := DeriveEndpoints("abc", "1.2.3.4", "10.0.1.9")

	assert.Equal(t, "1.2.3.4", e.PublicIP)
	assert.Equal(t, "10.0.1.9", e.PrivateIP)
	assert.Equal(t, "http://1.2.3.4:8000/hls/abc/playlist.m3u8", e.HLSURL)
	assert.Equal(t, "rtmp://1.2.3.4:1935/live/abc", e.RTMPURL)
	assert.Equal(t, "http://1.2.3.4:8000/api/status", e.TranscodingURL)
	assert.Equal(t, "http://1.2.3.4:8000/health", e.HealthCheckURL)
	assert.Equal(t, "http://1.2.3.4:8080/health", e.StatusServerURL)
}

func TestMockInstance(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		inst := mockInstance()
		assert.True(t, strings.HasPrefix(inst.ID, "i-"))
		assert.Len(t, inst.ID, 19)
		assert.True(t, inst.Ready())
		seen[inst.ID] = true
	}
	assert.Len(t, seen, 50)
}

func TestQuotaErrorMessage(t *testing.T) {
	err := checkQuota("pro", 3)
	require.Error(t, err)
	assert.Equal(t, "channel limit reached: your pro plan allows 3 channel(s)", err.Error())
	assert.NoError(t, checkQuota("pro", 2))
}
