package agent

import (
	"context"

	"github.com/Gubeli/substans-kb/internal/core/domain"
	"github.com/Gubeli/substans-kb/internal/core/ports/driving"
)

// mockKnowledgeService is a mock implementation of driving.KnowledgeService.
type mockKnowledgeService struct {
	documents []domain.Document
	results   []domain.QueryResult
	receipt   *driving.IngestReceipt
	err       error

	lastSpec    domain.QuerySpec
	lastProfile domain.AgentProfile
	lastContent domain.RawContent
}

func (m *mockKnowledgeService) GetRelevantSources(_ context.Context, profile domain.AgentProfile) ([]domain.Document, error) {
	m.lastProfile = profile
	return m.documents, m.err
}

func (m *mockKnowledgeService) SearchKnowledge(_ context.Context, spec domain.QuerySpec) ([]domain.QueryResult, error) {
	m.lastSpec = spec
	return m.results, m.err
}

func (m *mockKnowledgeService) AddNewKnowledge(_ context.Context, content domain.RawContent) (*driving.IngestReceipt, error) {
	m.lastContent = content
	return m.receipt, m.err
}

// mockQueryService is a mock implementation of driving.QueryService.
type mockQueryService struct {
	document *domain.Document
	err      error
}

func (m *mockQueryService) Search(_ context.Context, _ domain.QuerySpec) ([]domain.QueryResult, error) {
	return nil, m.err
}

func (m *mockQueryService) Get(_ context.Context, _ string, _ bool) (*domain.Document, error) {
	return m.document, m.err
}

func (m *mockQueryService) Snapshot(_ context.Context) (domain.SnapshotInfo, error) {
	return domain.SnapshotInfo{}, m.err
}

// mockSourceService is a mock implementation of driving.SourceService.
type mockSourceService struct {
	sources []domain.Source
	err     error
}

func (m *mockSourceService) Add(_ context.Context, _, _ string, _ map[string]string) (*domain.Source, error) {
	return nil, m.err
}

func (m *mockSourceService) Remove(_ context.Context, _ string) error { return m.err }

func (m *mockSourceService) List(_ context.Context) ([]domain.Source, error) {
	return m.sources, m.err
}

func (m *mockSourceService) Poll(_ context.Context, _ string) (*driving.BatchReport, error) {
	return nil, m.err
}

func (m *mockSourceService) PollAll(_ context.Context) error { return m.err }

func (m *mockSourceService) Watch(_ context.Context, _ string) error { return m.err }

// mockMaintenanceService is a mock implementation of driving.MaintenanceService.
type mockMaintenanceService struct {
	status *driving.EngineStatus
	err    error
}

func (m *mockMaintenanceService) Rebuild(_ context.Context) error { return m.err }

func (m *mockMaintenanceService) Repair(_ context.Context, _ string) error { return m.err }

func (m *mockMaintenanceService) Status(_ context.Context) (*driving.EngineStatus, error) {
	return m.status, m.err
}
