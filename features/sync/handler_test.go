package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/FadiShak3r/rag-system/internal/extract"
	"github.com/FadiShak3r/rag-system/internal/indexer"
)

type MockTrigger struct{ mock.Mock }

func (m *MockTrigger) RunOnce(ctx context.Context, clear bool) (*indexer.Summary, error) {
	args := m.Called(ctx, clear)
	var s *indexer.Summary
	if v := args.Get(0); v != nil {
		s = v.(*indexer.Summary)
	}
	return s, args.Error(1)
}

func (m *MockTrigger) State() indexer.State {
	args := m.Called()
	return args.Get(0).(indexer.State)
}

func TestHandler_PostSync_Table(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setupMock  func(*MockTrigger)
		wantStatus int
		checkBody  func(*testing.T, map[string]interface{})
	}{
		{
			name: "Success",
			body: `{"clear": true}`,
			setupMock: func(m *MockTrigger) {
				m.On("RunOnce", mock.Anything, true).
					Return(&indexer.Summary{Succeeded: true, RowsRead: 12, DocumentsUpserted: 12, Cleared: true}, nil)
			},
			wantStatus: http.StatusOK,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				data := body["data"].(map[string]interface{})
				assert.Equal(t, true, data["succeeded"])
				assert.EqualValues(t, 12, data["documents_upserted"])
			},
		},
		{
			name: "EmptyBodyDefaultsToIncremental",
			body: "",
			setupMock: func(m *MockTrigger) {
				m.On("RunOnce", mock.Anything, false).
					Return(&indexer.Summary{Succeeded: true}, nil)
			},
			wantStatus: http.StatusOK,
			checkBody:  func(t *testing.T, body map[string]interface{}) {},
		},
		{
			name: "AlreadyRunning",
			body: `{}`,
			setupMock: func(m *MockTrigger) {
				m.On("RunOnce", mock.Anything, false).
					Return(nil, indexer.ErrRunInProgress)
			},
			wantStatus: http.StatusConflict,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				errObj := body["error"].(map[string]interface{})
				assert.Equal(t, "SYNC_IN_PROGRESS", errObj["code"])
			},
		},
		{
			name: "PipelineFailure",
			body: `{}`,
			setupMock: func(m *MockTrigger) {
				summary := &indexer.Summary{FailedStage: indexer.StateExtracting, Error: "connection refused"}
				m.On("RunOnce", mock.Anything, false).Return(summary, extract.ErrConnection)
			},
			wantStatus: http.StatusBadGateway,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				errObj := body["error"].(map[string]interface{})
				assert.Equal(t, "SYNC_FAILED", errObj["code"])
				assert.Contains(t, errObj["message"], "connection")
			},
		},
		{
			name:       "InvalidJSON",
			body:       `{"clear": `,
			setupMock:  func(m *MockTrigger) {},
			wantStatus: http.StatusBadRequest,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				errObj := body["error"].(map[string]interface{})
				assert.Equal(t, "INVALID_REQUEST", errObj["code"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger := new(MockTrigger)
			tt.setupMock(trigger)
			h := NewHandler(trigger)

			req := httptest.NewRequest(http.MethodPost, "/api/sync", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			h.PostSync(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var body map[string]interface{}
			assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			tt.checkBody(t, body)
			trigger.AssertExpectations(t)
		})
	}
}

func TestHandler_GetStatus(t *testing.T) {
	trigger := new(MockTrigger)
	trigger.On("State").Return(indexer.StateEmbedding)
	h := NewHandler(trigger)

	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/sync/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "embedding", data["state"])
}
