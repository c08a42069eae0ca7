package stats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"studyrag/backend/features/job"
	"studyrag/backend/internal/vector"
)

type MockVectorStats struct{ mock.Mock }

func (m *MockVectorStats) Stats(ctx context.Context, ownerID int64) (vector.Stats, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).(vector.Stats), args.Error(1)
}

type MockJobLister struct{ mock.Mock }

func (m *MockJobLister) ListByOwner(ctx context.Context, ownerID int64) ([]job.Job, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]job.Job), args.Error(1)
}

func TestHandler_GetStats_Table(t *testing.T) {
	tests := []struct {
		name       string
		owner      string
		setupMocks func(*MockVectorStats, *MockJobLister)
		wantStatus int
		checkBody  func(*testing.T, map[string]interface{})
	}{
		{
			name:  "Success",
			owner: "42",
			setupMocks: func(v *MockVectorStats, j *MockJobLister) {
				v.On("Stats", mock.Anything, int64(42)).Return(vector.Stats{TotalVectors: 120, UniqueDocuments: 3}, nil)
				j.On("ListByOwner", mock.Anything, int64(42)).Return([]job.Job{
					{Status: job.StatusCompleted}, {Status: job.StatusCompleted}, {Status: job.StatusFailed},
				}, nil)
			},
			wantStatus: http.StatusOK,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				data := body["data"].(map[string]interface{})
				assert.EqualValues(t, 120, data["totalVectors"])
				assert.EqualValues(t, 3, data["uniqueDocuments"])
				jobs := data["jobs"].(map[string]interface{})
				assert.EqualValues(t, 2, jobs["completed"])
				assert.EqualValues(t, 1, jobs["failed"])
			},
		},
		{
			name:  "Empty Owner",
			owner: "7",
			setupMocks: func(v *MockVectorStats, j *MockJobLister) {
				v.On("Stats", mock.Anything, int64(7)).Return(vector.Stats{}, nil)
				j.On("ListByOwner", mock.Anything, int64(7)).Return(nil, nil)
			},
			wantStatus: http.StatusOK,
			checkBody: func(t *testing.T, body map[string]interface{}) {
				data := body["data"].(map[string]interface{})
				assert.EqualValues(t, 0, data["totalVectors"])
				assert.Empty(t, data["jobs"])
			},
		},
		{
			name:       "Bad Owner",
			owner:      "abc",
			setupMocks: func(*MockVectorStats, *MockJobLister) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:  "Index Error",
			owner: "42",
			setupMocks: func(v *MockVectorStats, j *MockJobLister) {
				v.On("Stats", mock.Anything, int64(42)).Return(vector.Stats{}, vector.ErrIndexUnavailable)
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:  "Job Error",
			owner: "42",
			setupMocks: func(v *MockVectorStats, j *MockJobLister) {
				v.On("Stats", mock.Anything, int64(42)).Return(vector.Stats{TotalVectors: 1}, nil)
				j.On("ListByOwner", mock.Anything, int64(42)).Return(nil, errors.New("db error"))
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := new(MockVectorStats)
			j := new(MockJobLister)
			tt.setupMocks(v, j)

			h := NewHandler(v, j)
			req := httptest.NewRequest("GET", "/owners/"+tt.owner+"/stats", nil)
			req.SetPathValue("ownerID", tt.owner)
			w := httptest.NewRecorder()

			h.GetStats(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			var body map[string]interface{}
			assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tt.checkBody != nil {
				tt.checkBody(t, body)
			} else {
				assert.Contains(t, body, "error")
			}
		})
	}
}
