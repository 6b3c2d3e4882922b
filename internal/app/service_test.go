package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/narvaro/internal/broadcast"
	"github.com/shrimpsizemoose/narvaro/internal/models"
	"github.com/shrimpsizemoose/narvaro/internal/token"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Close() error {
	return nil
}

func (m *MockStore) ApplyMigrations(dir string) error {
	return nil
}

func (m *MockStore) CreateUser(user *models.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockStore) GetUserByID(id string) (*models.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStore) GetUserByUsername(username string) (*models.User, error) {
	args := m.Called(username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStore) ListStudents() ([]models.User, error) {
	return nil, nil
}

func (m *MockStore) CountUsers() (int64, error) {
	return 0, nil
}

func (m *MockStore) FindRecord(date, studentID, checkpoint string) (*models.AttendanceRecord, error) {
	args := m.Called(date, studentID, checkpoint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AttendanceRecord), args.Error(1)
}

func (m *MockStore) InsertRecord(record *models.AttendanceRecord) (bool, error) {
	args := m.Called(record)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) DeleteRecord(date, studentID, checkpoint string) error {
	args := m.Called(date, studentID, checkpoint)
	return args.Error(0)
}

func (m *MockStore) ListDayRecords(date string) ([]models.AttendanceRecord, error) {
	return nil, nil
}

func (m *MockStore) CountDays() (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) CountStudentRecords(studentID string) (int64, error) {
	args := m.Called(studentID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) CountStudentCheckpointsOnDate(date, studentID string) (int64, error) {
	args := m.Called(date, studentID)
	return args.Get(0).(int64), args.Error(1)
}

func newTestService(store *MockStore) *Service {
	cfg := &Config{}
	cfg.Token.ValiditySeconds = 5
	cfg.Token.QRRefreshRateSeconds = 2
	cfg.Attendance.Checkpoints = []string{"Period 1", "Period 2", "Period 3", "Period 4"}
	cfg.Display.TimestampFormat = "03:04:05 PM"

	return &Service{
		Config:   cfg,
		Store:    store,
		Sessions: &SessionManager{},
		Codec:    token.NewCodec("test-secret"),
		Events:   broadcast.NewHub(4),
	}
}

func teacherPrincipal() *models.User {
	return &models.User{ID: "t1", Username: "teacher", Role: models.RoleTeacher, DisplayName: "Teacher"}
}

func studentPrincipal() *models.User {
	return &models.User{ID: "s1", Username: "student1", Role: models.RoleStudent, DisplayName: "Student One"}
}

func TestService_MarkViaToken(t *testing.T) {
	ctx := context.Background()

	t.Run("success emits QR record and event", func(t *testing.T) {
		store := new(MockStore)
		svc := newTestService(store)

		events, cancel := svc.Events.Subscribe(ctx)
		defer cancel()

		tok, err := svc.IssueToken("2025-01-10", "Period 1")
		require.NoError(t, err)

		store.On("FindRecord", "2025-01-10", "s1", "Period 1").Return(nil, nil).Once()
		store.On("InsertRecord", mock.AnythingOfType("*models.AttendanceRecord")).Return(true, nil).Once()

		record, err := svc.MarkViaToken(ctx, tok, studentPrincipal())
		require.NoError(t, err)
		assert.Equal(t, "2025-01-10", record.Date)
		assert.Equal(t, "Period 1", record.Checkpoint)
		assert.Equal(t, models.MethodQR, record.Method)
		assert.Equal(t, "Student One", record.StudentName)

		select {
		case event := <-events:
			assert.Equal(t, "s1", event.StudentID)
			assert.Equal(t, models.MethodQR, event.Method)
			assert.Equal(t, "2025-01-10", event.Date)
		default:
			t.Fatal("expected a check-in event")
		}

		store.AssertExpectations(t)
	})

	t.Run("replay is rejected as already marked", func(t *testing.T) {
		store := new(MockStore)
		svc := newTestService(store)

		tok, err := svc.IssueToken("2025-01-10", "Period 1")
		require.NoError(t, err)

		store.On("FindRecord", "2025-01-10", "s1", "Period 1").
			Return(&models.AttendanceRecord{Checkpoint: "Period 1"}, nil).Once()

		_, err = svc.MarkViaToken(ctx, tok, studentPrincipal())
		var failure *Failure
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, "already_marked", failure.Reason)
		assert.Contains(t, failure.Message, "Period 1")
	})

	t.Run("losing the insert race reads as already marked", func(t *testing.T) {
		store := new(MockStore)
		svc := newTestService(store)

		tok, err := svc.IssueToken("2025-01-10", "Period 1")
		require.NoError(t, err)

		store.On("FindRecord", "2025-01-10", "s1", "Period 1").Return(nil, nil).Once()
		store.On("InsertRecord", mock.AnythingOfType("*models.AttendanceRecord")).Return(false, nil).Once()

		_, err = svc.MarkViaToken(ctx, tok, studentPrincipal())
		var failure *Failure
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, "already_marked", failure.Reason)
	})

	t.Run("expired token", func(t *testing.T) {
		store := new(MockStore)
		svc := newTestService(store)
		svc.Config.Token.ValiditySeconds = -1

		tok, err := svc.IssueToken("2025-01-10", "Period 1")
		require.NoError(t, err)

		_, err = svc.MarkViaToken(ctx, tok, studentPrincipal())
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("tampered token", func(t *testing.T) {
		store := new(MockStore)
		svc := newTestService(store)

		_, err := svc.MarkViaToken(ctx, "garbage-token", studentPrincipal())
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing token", func(t *testing.T) {
		store := new(MockStore)
		svc := newTestService(store)

		_, err := svc.MarkViaToken(ctx, "", studentPrincipal())
		var failure *Failure
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, "missing_field", failure.Reason)
	})

	t.Run("teacher cannot self-mark", func(t *testing.T) {
		store := new(MockStore)
		svc := newTestService(store)

		tok, err := svc.IssueToken("2025-01-10", "Period 1")
		require.NoError(t, err)

		_, err = svc.MarkViaToken(ctx, tok, teacherPrincipal())
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestService_MarkManual(t *testing.T) {
	ctx := context.Background()

	t.Run("success is tagged Manual", func(t *testing.T) {
		store := new(MockStore)
		svc := newTestService(store)

		store.On("GetUserByID", "s2").
			Return(&models.User{ID: "s2", Username: "student2", Role: models.RoleStudent, DisplayName: "Student Two"}, nil).Once()
		store.On("FindRecord", "2025-01-10", "s2", "Period 2").Return(nil, nil).Once()
		store.On("InsertRecord", mock.AnythingOfType("*models.AttendanceRecord")).Return(true, nil).Once()

		record, err := svc.MarkManual(ctx, "s2", "2025-01-10", "Period 2", teacherPrincipal())
		require.NoError(t, err)
		assert.Equal(t, models.MethodManual, record.Method)
		assert.Equal(t, "Student Two", record.StudentName)

		store.AssertExpectations(t)
	})

	t.Run("unknown student", func(t *testing.T) {
		store := new(MockStore)
		svc := newTestService(store)

		store.On("GetUserByID", "ghost").Return(nil, nil).Once()

		_, err := svc.MarkManual(ctx, "ghost", "2025-01-10", "Period 2", teacherPrincipal())
		assert.ErrorIs(t, err, ErrStudentNotFound)
	})

	t.Run("student cannot mark others", func(t *testing.T) {
		store := new(MockStore)
		svc := newTestService(store)

		_, err := svc.MarkManual(ctx, "s2", "2025-01-10", "Period 2", studentPrincipal())
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestService_MarkBulk(t *testing.T) {
	ctx := context.Background()

	t.Run("roll-call adds, retracts and skips independently", func(t *testing.T) {
		store := new(MockStore)
		svc := newTestService(store)

		// s1 absent so far, marked present
		store.On("GetUserByID", "s1").
			Return(&models.User{ID: "s1", Role: models.RoleStudent, DisplayName: "Alpha"}, nil).Once()
		store.On("FindRecord", "2025-01-10", "s1", "Period 1").Return(nil, nil).Twice()
		store.On("InsertRecord", mock.AnythingOfType("*models.AttendanceRecord")).Return(true, nil).Once()

		// s2 has a record, marked absent -> retraction
		store.On("GetUserByID", "s2").
			Return(&models.User{ID: "s2", Role: models.RoleStudent, DisplayName: "Beta"}, nil).Once()
		store.On("FindRecord", "2025-01-10", "s2", "Period 1").
			Return(&models.AttendanceRecord{StudentID: "s2", Checkpoint: "Period 1"}, nil).Once()
		store.On("DeleteRecord", "2025-01-10", "s2", "Period 1").Return(nil).Once()

		// s3 already marked, marked present again -> skip
		store.On("GetUserByID", "s3").
			Return(&models.User{ID: "s3", Role: models.RoleStudent, DisplayName: "Gamma"}, nil).Once()
		store.On("FindRecord", "2025-01-10", "s3", "Period 1").
			Return(&models.AttendanceRecord{StudentID: "s3", Checkpoint: "Period 1"}, nil).Once()

		// s4 absent with no record -> no-op skip
		store.On("GetUserByID", "s4").
			Return(&models.User{ID: "s4", Role: models.RoleStudent, DisplayName: "Delta"}, nil).Once()
		store.On("FindRecord", "2025-01-10", "s4", "Period 1").Return(nil, nil).Once()

		// unknown id -> skip with id marker
		store.On("GetUserByID", "ghost").Return(nil, nil).Once()

		entries := []models.BulkEntry{
			{StudentID: "s1", Present: true},
			{StudentID: "s2", Present: false},
			{StudentID: "s3", Present: true},
			{StudentID: "s4", Present: false},
			{StudentID: "ghost", Present: true},
		}

		result, err := svc.MarkBulk(ctx, entries, "2025-01-10", "Period 1", teacherPrincipal())
		require.NoError(t, err)

		assert.Equal(t, []string{"Alpha", "Beta (marked absent)"}, result.Updated)
		assert.Equal(t, []string{"Gamma", "Delta", "ID:ghost"}, result.Skipped)

		store.AssertExpectations(t)
	})

	t.Run("empty batch is rejected", func(t *testing.T) {
		store := new(MockStore)
		svc := newTestService(store)

		_, err := svc.MarkBulk(ctx, nil, "2025-01-10", "Period 1", teacherPrincipal())
		var failure *Failure
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, "missing_field", failure.Reason)
	})

	t.Run("student cannot bulk mark", func(t *testing.T) {
		store := new(MockStore)
		svc := newTestService(store)

		entries := []models.BulkEntry{{StudentID: "s2", Present: true}}
		_, err := svc.MarkBulk(ctx, entries, "2025-01-10", "Period 1", studentPrincipal())
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestService_StudentStats(t *testing.T) {
	t.Run("percentage over all possible checkpoints", func(t *testing.T) {
		store := new(MockStore)
		svc := newTestService(store)

		// 5 records over 3 days with 4 checkpoints each: 5/12
		store.On("CountStudentRecords", "s1").Return(int64(5), nil).Once()
		store.On("CountDays").Return(int64(3), nil).Once()
		store.On("CountStudentCheckpointsOnDate", mock.Anything, "s1").Return(int64(2), nil).Once()

		stats, err := svc.StudentStats(studentPrincipal())
		require.NoError(t, err)
		assert.InDelta(t, 41.67, stats.Percentage, 0.001)
		assert.Equal(t, int64(2), stats.ClassesToday)
		assert.Equal(t, 4, stats.TotalClassesToday)
	})

	t.Run("zero days means zero percentage", func(t *testing.T) {
		store := new(MockStore)
		svc := newTestService(store)

		store.On("CountStudentRecords", "s1").Return(int64(0), nil).Once()
		store.On("CountDays").Return(int64(0), nil).Once()
		store.On("CountStudentCheckpointsOnDate", mock.Anything, "s1").Return(int64(0), nil).Once()

		stats, err := svc.StudentStats(studentPrincipal())
		require.NoError(t, err)
		assert.Equal(t, 0.0, stats.Percentage)
	})

	t.Run("teachers have no personal stats", func(t *testing.T) {
		store := new(MockStore)
		svc := newTestService(store)

		_, err := svc.StudentStats(teacherPrincipal())
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

// failingBroadcaster always errors on publish.
type failingBroadcaster struct{}

func (f *failingBroadcaster) Publish(ctx context.Context, event models.CheckinEvent) error {
	return fmt.Errorf("transport down")
}

func (f *failingBroadcaster) Subscribe(ctx context.Context) (<-chan models.CheckinEvent, func()) {
	return nil, func() {}
}

func (f *failingBroadcaster) Close() error {
	return nil
}

func TestService_NotificationFailureDoesNotUnwindAppend(t *testing.T) {
	store := new(MockStore)
	svc := newTestService(store)
	svc.Events = &failingBroadcaster{}

	store.On("GetUserByID", "s2").
		Return(&models.User{ID: "s2", Role: models.RoleStudent, DisplayName: "Student Two"}, nil).Once()
	store.On("FindRecord", "2025-01-10", "s2", "Period 1").Return(nil, nil).Once()
	store.On("InsertRecord", mock.AnythingOfType("*models.AttendanceRecord")).Return(true, nil).Once()

	record, err := svc.MarkManual(context.Background(), "s2", "2025-01-10", "Period 1", teacherPrincipal())
	require.NoError(t, err)
	assert.NotNil(t, record)
}

func TestService_RefreshQR(t *testing.T) {
	store := new(MockStore)
	svc := newTestService(store)

	qr, err := svc.RefreshQR("2025-01-10", "Period 1")
	require.NoError(t, err)
	assert.NotEmpty(t, qr.Token)
	assert.NotEmpty(t, qr.Image)
	assert.Equal(t, 2000, qr.RefreshMs)

	// the embedded token verifies back to the same pair
	payload, err := svc.Codec.Verify(qr.Token, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-10", payload.Date)
	assert.Equal(t, "Period 1", payload.Checkpoint)

	_, err = svc.RefreshQR("2025-01-10", "")
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "missing_field", failure.Reason)

	_, err = svc.RefreshQR("10-01-2025", "Period 1")
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "missing_field", failure.Reason)
}
