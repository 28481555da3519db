package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"agendafacil/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type MockAuditLogsRepository struct {
	mock.Mock
}

func (m *MockAuditLogsRepository) Create(ctx context.Context, auditLog *models.AuditLog) error {
	return m.Called(ctx, auditLog).Error(0)
}

func (m *MockAuditLogsRepository) List(ctx context.Context, filters *models.AuditLogFilters) ([]*models.AuditLog, error) {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AuditLog), args.Error(1)
}

type AuditLogsServiceTestSuite struct {
	suite.Suite
	mockRepo *MockAuditLogsRepository
	service  AuditLogsService
	now      time.Time
	ctx      context.Context
}

func (suite *AuditLogsServiceTestSuite) SetupTest() {
	suite.mockRepo = &MockAuditLogsRepository{}
	suite.now = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	suite.service = &auditLogsService{auditLogsRepo: suite.mockRepo, now: func() time.Time { return suite.now }}
	suite.ctx = context.Background()
}

func TestAuditLogsServiceTestSuite(t *testing.T) {
	suite.Run(t, new(AuditLogsServiceTestSuite))
}

func (suite *AuditLogsServiceTestSuite) TestLogActivity_Success() {
	suite.mockRepo.On("Create", suite.ctx, mock.MatchedBy(func(l *models.AuditLog) bool {
		return l.Operator == "ops@agendafacil" &&
			l.Action == "POST /v1/ops/reconcile/:externalId" &&
			l.RecordID == "123" &&
			l.StatusCode == 200 &&
			l.CreatedAt.Equal(suite.now)
	})).Return(nil)

	err := suite.service.LogActivity(suite.ctx, "ops@agendafacil", "POST /v1/ops/reconcile/:externalId", "123", 200, models.JSONB{"ip": "10.0.0.1"})

	assert.NoError(suite.T(), err)
	suite.mockRepo.AssertExpectations(suite.T())
}

func (suite *AuditLogsServiceTestSuite) TestLogActivity_MissingOperatorIsRecorded() {
	suite.mockRepo.On("Create", suite.ctx, mock.MatchedBy(func(l *models.AuditLog) bool {
		return l.Operator == "unknown"
	})).Return(nil)

	assert.NoError(suite.T(), suite.service.LogActivity(suite.ctx, "", "POST /v1/ops/jobs/sweep", "", 500, nil))
	suite.mockRepo.AssertExpectations(suite.T())
}

func (suite *AuditLogsServiceTestSuite) TestLogActivity_RequiresAction() {
	err := suite.service.LogActivity(suite.ctx, "ops", "", "", 200, nil)

	assert.Error(suite.T(), err)
	suite.mockRepo.AssertNotCalled(suite.T(), "Create", mock.Anything, mock.Anything)
}

func (suite *AuditLogsServiceTestSuite) TestLogActivity_RepositoryError() {
	suite.mockRepo.On("Create", suite.ctx, mock.Anything).Return(errors.New("insert failed"))

	err := suite.service.LogActivity(suite.ctx, "ops", "POST /v1/ops/jobs/sweep", "", 200, nil)
	assert.EqualError(suite.T(), err, "insert failed")
}

func (suite *AuditLogsServiceTestSuite) TestListAuditLogs_AppliesDefaultLimit() {
	expected := []*models.AuditLog{{Operator: "ops"}}
	suite.mockRepo.On("List", suite.ctx, mock.MatchedBy(func(f *models.AuditLogFilters) bool {
		return f.Limit == defaultAuditLimit && f.Offset == 0
	})).Return(expected, nil)

	logs, err := suite.service.ListAuditLogs(suite.ctx, &models.AuditLogFilters{Limit: 5000, Offset: -3})

	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), expected, logs)
	suite.mockRepo.AssertExpectations(suite.T())
}

func (suite *AuditLogsServiceTestSuite) TestListAuditLogs_InvalidDateRange() {
	start := suite.now
	end := suite.now.Add(-time.Hour)

	_, err := suite.service.ListAuditLogs(suite.ctx, &models.AuditLogFilters{StartDate: &start, EndDate: &end})

	assert.Error(suite.T(), err)
	suite.mockRepo.AssertNotCalled(suite.T(), "List", mock.Anything, mock.Anything)
}
