package reconciliation

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockDeliveryStore struct {
	depot       DepotLoadingRecord
	transporter TransporterDeliveryRecord
	station     StationReceivingRecord
	exists      bool
	fetchErr    error
}

func (m *mockDeliveryStore) ConsignmentExists(context.Context, string) (bool, error) {
	return m.exists, nil
}

func (m *mockDeliveryStore) GetDepotLoading(context.Context, string) (DepotLoadingRecord, error) {
	if m.fetchErr != nil {
		return DepotLoadingRecord{}, m.fetchErr
	}
	return m.depot, nil
}

func (m *mockDeliveryStore) GetTransporterDelivery(context.Context, string) (TransporterDeliveryRecord, error) {
	return m.transporter, nil
}

func (m *mockDeliveryStore) GetStationReceiving(context.Context, string) (StationReceivingRecord, error) {
	return m.station, nil
}

type mockResultStore struct {
	saved      []Result
	approvedBy string
	saveErr    error
}

func (m *mockResultStore) SaveResult(_ context.Context, result Result) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, result)
	return nil
}

func (m *mockResultStore) ApproveResult(_ context.Context, _ string, approvedBy string) error {
	m.approvedBy = approvedBy
	return nil
}

type recordingPublisher struct {
	events []string
}

func (r *recordingPublisher) Publish(_ context.Context, name string, _ any) error {
	r.events = append(r.events, name)
	return nil
}

func newTestService(deliveries *mockDeliveryStore, results *mockResultStore, pub *recordingPublisher) *Service {
	return NewService(deliveries, results, pub, slog.New(slog.DiscardHandler), DefaultTolerances())
}

func perfectDelivery() *mockDeliveryStore {
	loadingTime := time.Date(2025, 4, 10, 6, 0, 0, 0, time.UTC)
	return &mockDeliveryStore{
		exists: true,
		depot: DepotLoadingRecord{
			ConsignmentID: "CNS-1",
			LitresLoaded:  5000,
			LoadingTemp:   15,
			ProductType:   "PMS",
			LoadingTime:   loadingTime,
			LoadingDocRef: "DLR-001",
			DensityAt15C:  0.745,
		},
		transporter: TransporterDeliveryRecord{
			ConsignmentID:   "CNS-1",
			LitresDelivered: 5000,
			DeliveryTemp:    15,
			DeliveryTime:    loadingTime.Add(8 * time.Hour),
			WaybillNumber:   "WB-001",
		},
		station: StationReceivingRecord{
			ConsignmentID:   "CNS-1",
			LitresReceived:  5000,
			ReceivingTemp:   15,
			ReceivingTime:   loadingTime.Add(9 * time.Hour),
			ReceivingDocRef: "SRR-001",
			QualityTestResults: &QualityTestResults{
				Density: 0.745,
			},
		},
	}
}

func TestPerformReconciliationMatched(t *testing.T) {
	deliveries := perfectDelivery()
	results := &mockResultStore{}
	pub := &recordingPublisher{}
	svc := newTestService(deliveries, results, pub)

	result, err := svc.PerformReconciliation(context.Background(), "CNS-1")
	require.NoError(t, err)

	assert.Equal(t, StatusMatched, result.Status)
	assert.InDelta(t, 5000, result.ReconciledLitres, 1e-9)
	assert.InDelta(t, 0, result.VariancePercentage, 1e-9)
	assert.Empty(t, result.Variances)
	assert.Equal(t, 1.0, result.Confidence)
	assert.Equal(t, []string{"DLR-001", "WB-001", "SRR-001"}, result.DocumentRefs)
	assert.Equal(t, []string{"Reconciliation passed - no action required"}, result.Recommendations)

	require.Len(t, results.saved, 1)
	assert.Equal(t, result.ID, results.saved[0].ID)
	assert.Equal(t, []string{"three-way-reconciliation.completed"}, pub.events)
}

func TestPerformReconciliationMissingConsignment(t *testing.T) {
	deliveries := perfectDelivery()
	deliveries.exists = false
	results := &mockResultStore{}
	svc := newTestService(deliveries, results, &recordingPublisher{})

	_, err := svc.PerformReconciliation(context.Background(), "CNS-missing")
	require.ErrorIs(t, err, ErrConsignmentNotFound)
	assert.Empty(t, results.saved)
}

func TestPerformReconciliationFetchFailure(t *testing.T) {
	deliveries := perfectDelivery()
	deliveries.fetchErr = errors.New("depot feed timeout")
	results := &mockResultStore{}
	pub := &recordingPublisher{}
	svc := newTestService(deliveries, results, pub)

	_, err := svc.PerformReconciliation(context.Background(), "CNS-1")
	require.Error(t, err)
	assert.Empty(t, results.saved, "no partial result may be persisted")
	assert.Empty(t, pub.events)
}

func TestPerformReconciliationPersistFailure(t *testing.T) {
	deliveries := perfectDelivery()
	results := &mockResultStore{saveErr: errors.New("insert failed")}
	pub := &recordingPublisher{}
	svc := newTestService(deliveries, results, pub)

	_, err := svc.PerformReconciliation(context.Background(), "CNS-1")
	require.Error(t, err)
	assert.Empty(t, pub.events, "no event without a persisted result")
}

func TestPerformReconciliationCriticalShortfall(t *testing.T) {
	deliveries := perfectDelivery()
	deliveries.transporter.LitresDelivered = 4000 // 20% short
	deliveries.station.LitresReceived = 4000
	results := &mockResultStore{}
	svc := newTestService(deliveries, results, &recordingPublisher{})

	result, err := svc.PerformReconciliation(context.Background(), "CNS-1")
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, result.Status)
	// Critical disagreement leans the weighted average toward the depot.
	assert.InDelta(t, 5000*0.6+4000*0.4, result.ReconciledLitres, 1e-6)
	assert.Less(t, result.Confidence, 0.8)
}

func TestDetectRealTimeVariances(t *testing.T) {
	deliveries := perfectDelivery()
	svc := newTestService(deliveries, &mockResultStore{}, &recordingPublisher{})
	ctx := context.Background()

	check, err := svc.DetectRealTimeVariances(ctx, "CNS-1", LiveDelivery{LitresDelivered: 4990})
	require.NoError(t, err)
	assert.False(t, check.HasVariances, "0.2%% is within tolerance")

	check, err = svc.DetectRealTimeVariances(ctx, "CNS-1", LiveDelivery{LitresDelivered: 4950})
	require.NoError(t, err)
	require.True(t, check.HasVariances)
	assert.Equal(t, SeverityMedium, check.Variances[0].Severity)

	check, err = svc.DetectRealTimeVariances(ctx, "CNS-1", LiveDelivery{LitresDelivered: 4800})
	require.NoError(t, err)
	require.True(t, check.HasVariances)
	assert.Equal(t, SeverityHigh, check.Variances[0].Severity)
	assert.InDelta(t, 200, check.Variances[0].QuantifiedImpact, 1e-9)
}

func TestAutomatedReconciliationApproves(t *testing.T) {
	deliveries := perfectDelivery()
	results := &mockResultStore{}
	svc := newTestService(deliveries, results, &recordingPublisher{})

	outcome, err := svc.PerformAutomatedReconciliation(context.Background(), "CNS-1")
	require.NoError(t, err)

	assert.True(t, outcome.CanAutoReconcile)
	require.NotNil(t, outcome.Result)
	assert.Empty(t, outcome.Reason)
	assert.Equal(t, "SYSTEM_AUTO", results.approvedBy)
}

func TestAutomatedReconciliationRequiresReview(t *testing.T) {
	deliveries := perfectDelivery()
	deliveries.transporter.LitresDelivered = 4000
	deliveries.station.LitresReceived = 4000
	results := &mockResultStore{}
	svc := newTestService(deliveries, results, &recordingPublisher{})

	outcome, err := svc.PerformAutomatedReconciliation(context.Background(), "CNS-1")
	require.NoError(t, err)

	assert.False(t, outcome.CanAutoReconcile)
	assert.NotEmpty(t, outcome.Reason)
	assert.Empty(t, results.approvedBy, "no auto-approval on severe disagreement")
}
