package app

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/narvaro/internal/broadcast"
	"github.com/shrimpsizemoose/narvaro/internal/metrics"
	"github.com/shrimpsizemoose/narvaro/internal/models"
	"github.com/shrimpsizemoose/narvaro/internal/store"
	"github.com/shrimpsizemoose/narvaro/internal/token"
)

type Service struct {
	Config   *Config
	Store    store.AttendanceStore
	Sessions *SessionManager
	Codec    *token.Codec
	Events   broadcast.Broadcaster
}

func NewService(configPath string) (*Service, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	attStore, err := NewStore(config)
	if err != nil {
		return nil, fmt.Errorf("failed to init store: %w", err)
	}

	sessions, err := NewSessionManager(config)
	if err != nil {
		return nil, fmt.Errorf("failed to init sessions: %w", err)
	}

	hub := broadcast.NewHub(config.Broadcast.Buffer)
	var events broadcast.Broadcaster = hub
	if config.Broadcast.RedisURL != "" {
		events, err = broadcast.NewRedisBridge(config.Broadcast.RedisURL, config.Broadcast.Channel, hub)
		if err != nil {
			return nil, fmt.Errorf("failed to init broadcast bridge: %w", err)
		}
	}

	return &Service{
		Config:   config,
		Store:    attStore,
		Sessions: sessions,
		Codec:    token.NewCodec(config.Token.Secret),
		Events:   events,
	}, nil
}

func (s *Service) Close() error {
	var errs []error

	if err := s.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	if err := s.Sessions.Close(); err != nil {
		errs = append(errs, fmt.Errorf("sessions: %w", err))
	}
	if err := s.Events.Close(); err != nil {
		errs = append(errs, fmt.Errorf("events: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors while closing: %v", errs)
	}
	return nil
}

func (s *Service) tokenTTL() time.Duration {
	return time.Duration(s.Config.Token.ValiditySeconds) * time.Second
}

// IssueToken signs a fresh (date, checkpoint) token for the QR display.
func (s *Service) IssueToken(date, checkpoint string) (string, error) {
	if date == "" {
		return "", MissingField("date")
	}
	if checkpoint == "" {
		return "", MissingField("checkpoint")
	}
	if _, err := time.Parse(models.DateFormat, date); err != nil {
		return "", MissingField("date")
	}

	tok, err := s.Codec.Issue(date, checkpoint)
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}
	return tok, nil
}

// QRCode is what an observer-initiated refresh returns.
type QRCode struct {
	Token     string `json:"token"`
	Image     string `json:"image"`
	RefreshMs int    `json:"refresh_ms"`
}

// RefreshQR issues a new token and renders it. The rotation cadence is
// entirely observer-driven; nothing on the server re-issues on a timer.
func (s *Service) RefreshQR(date, checkpoint string) (*QRCode, error) {
	tok, err := s.IssueToken(date, checkpoint)
	if err != nil {
		return nil, err
	}

	image, err := token.QRImagePNG(tok, s.Config.Token.QRImageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to render token: %w", err)
	}

	return &QRCode{
		Token:     tok,
		Image:     image,
		RefreshMs: s.Config.Token.QRRefreshRateSeconds * 1000,
	}, nil
}

// MarkViaToken records self-service attendance from a scanned token.
func (s *Service) MarkViaToken(ctx context.Context, tokenStr string, principal *models.User) (*models.AttendanceRecord, error) {
	if tokenStr == "" {
		return nil, MissingField("token")
	}
	if !principal.Role.Can(models.PermMarkSelf) {
		return nil, ErrUnauthorized
	}

	payload, err := s.Codec.Verify(tokenStr, s.tokenTTL())
	switch err {
	case nil:
	case token.ErrTokenExpired:
		return nil, ErrExpiredToken
	default:
		return nil, ErrInvalidToken
	}

	return s.record(ctx, payload.Date, payload.Checkpoint, principal.ID, principal.DisplayName, models.MethodQR)
}

// MarkManual records attendance on behalf of a student.
func (s *Service) MarkManual(ctx context.Context, studentID, date, checkpoint string, principal *models.User) (*models.AttendanceRecord, error) {
	if !principal.Role.Can(models.PermMarkOthers) {
		return nil, ErrUnauthorized
	}
	if studentID == "" {
		return nil, MissingField("student_id")
	}
	if date == "" {
		return nil, MissingField("date")
	}
	if checkpoint == "" {
		return nil, MissingField("checkpoint")
	}

	student, err := s.Store.GetUserByID(studentID)
	if err != nil {
		return nil, s.storageFailure(err)
	}
	if student == nil {
		return nil, ErrStudentNotFound
	}

	return s.record(ctx, date, checkpoint, student.ID, student.DisplayName, models.MethodManual)
}

// MarkBulk applies a teacher roll-call. Every entry is independent:
// marking an absent student appends, re-marking is skipped, and
// present=false retracts an existing record. No rollback across the batch.
func (s *Service) MarkBulk(ctx context.Context, entries []models.BulkEntry, date, checkpoint string, principal *models.User) (*models.BulkResult, error) {
	if !principal.Role.Can(models.PermMarkOthers) {
		return nil, ErrUnauthorized
	}
	if len(entries) == 0 {
		return nil, MissingField("entries")
	}
	if date == "" {
		return nil, MissingField("date")
	}
	if checkpoint == "" {
		return nil, MissingField("checkpoint")
	}

	result := &models.BulkResult{
		Updated: []string{},
		Skipped: []string{},
	}

	for _, entry := range entries {
		student, err := s.Store.GetUserByID(entry.StudentID)
		if err != nil {
			return nil, s.storageFailure(err)
		}
		if student == nil {
			result.Skipped = append(result.Skipped, fmt.Sprintf("ID:%s", entry.StudentID))
			continue
		}

		existing, err := s.Store.FindRecord(date, student.ID, checkpoint)
		if err != nil {
			return nil, s.storageFailure(err)
		}

		switch {
		case entry.Present && existing == nil:
			if _, err := s.record(ctx, date, checkpoint, student.ID, student.DisplayName, models.MethodManual); err != nil {
				result.Skipped = append(result.Skipped, student.DisplayName)
				continue
			}
			result.Updated = append(result.Updated, student.DisplayName)
		case entry.Present:
			result.Skipped = append(result.Skipped, student.DisplayName)
		case existing != nil:
			if err := s.Store.DeleteRecord(date, student.ID, checkpoint); err != nil {
				return nil, s.storageFailure(err)
			}
			result.Updated = append(result.Updated, fmt.Sprintf("%s (marked absent)", student.DisplayName))
		default:
			result.Skipped = append(result.Skipped, student.DisplayName)
		}
	}

	return result, nil
}

// record is the Validated -> (Duplicate | Recorded) -> Notified tail of the
// marking state machine.
func (s *Service) record(ctx context.Context, date, checkpoint, studentID, studentName, method string) (*models.AttendanceRecord, error) {
	existing, err := s.Store.FindRecord(date, studentID, checkpoint)
	if err != nil {
		return nil, s.storageFailure(err)
	}
	if existing != nil {
		return nil, AlreadyMarked(checkpoint)
	}

	rec := &models.AttendanceRecord{
		Date:        date,
		StudentID:   studentID,
		StudentName: studentName,
		Timestamp:   time.Now().UTC().Unix(),
		Checkpoint:  checkpoint,
		Method:      method,
	}
	if err := rec.Validate(); err != nil {
		logger.Debug.Printf("Rejecting malformed record: %v", err)
		return nil, ErrInvalidToken
	}

	inserted, err := s.Store.InsertRecord(rec)
	if err != nil {
		return nil, s.storageFailure(err)
	}
	if !inserted {
		// lost the race against a concurrent identical submission
		return nil, AlreadyMarked(checkpoint)
	}

	metrics.MarkingsTotal.WithLabelValues(checkpoint, method).Inc()

	// notification is best-effort and never unwinds the append
	event := models.CheckinEvent{
		Date:        rec.Date,
		StudentID:   rec.StudentID,
		StudentName: rec.StudentName,
		Checkpoint:  rec.Checkpoint,
		Method:      rec.Method,
		Timestamp:   time.Unix(rec.Timestamp, 0).UTC().Format(s.Config.Display.TimestampFormat),
	}
	if err := s.Events.Publish(ctx, event); err != nil {
		logger.Error.Printf("Failed to publish check-in event: %v", err)
	}

	return rec, nil
}

// Stats is the per-student attendance summary.
type Stats struct {
	Percentage        float64 `json:"percentage"`
	ClassesToday      int64   `json:"classes_today"`
	TotalClassesToday int     `json:"total_classes_today"`
}

// StudentStats computes the principal's attendance percentage across all
// tracked days and today's checkpoint progress.
func (s *Service) StudentStats(principal *models.User) (*Stats, error) {
	if !principal.Role.Can(models.PermViewOwnStats) {
		return nil, ErrUnauthorized
	}

	attended, err := s.Store.CountStudentRecords(principal.ID)
	if err != nil {
		return nil, s.storageFailure(err)
	}
	days, err := s.Store.CountDays()
	if err != nil {
		return nil, s.storageFailure(err)
	}

	perDay := len(s.Config.Attendance.Checkpoints)
	total := days * int64(perDay)

	percentage := 0.0
	if total > 0 {
		percentage = math.Round(float64(attended)/float64(total)*100*100) / 100
	}

	today := time.Now().UTC().Format(models.DateFormat)
	classesToday, err := s.Store.CountStudentCheckpointsOnDate(today, principal.ID)
	if err != nil {
		return nil, s.storageFailure(err)
	}

	return &Stats{
		Percentage:        percentage,
		ClassesToday:      classesToday,
		TotalClassesToday: perDay,
	}, nil
}

// DayRecords lists a day's check-ins for the monitor view.
func (s *Service) DayRecords(date string, principal *models.User) ([]models.AttendanceRecord, error) {
	if !principal.Role.Can(models.PermViewDashboard) {
		return nil, ErrUnauthorized
	}
	if date == "" {
		return nil, MissingField("date")
	}

	records, err := s.Store.ListDayRecords(date)
	if err != nil {
		return nil, s.storageFailure(err)
	}
	return records, nil
}

// Login verifies credentials and opens a session.
func (s *Service) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	if username == "" {
		return "", nil, MissingField("username")
	}
	if password == "" {
		return "", nil, MissingField("password")
	}

	user, err := s.Store.GetUserByUsername(username)
	if err != nil {
		return "", nil, s.storageFailure(err)
	}
	if user == nil || !user.CheckPassword(password) {
		return "", nil, ErrUnauthorized
	}

	tok, err := s.Sessions.Create(ctx, user)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create session: %w", err)
	}
	return tok, user, nil
}

// Logout drops the session behind the given token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.Sessions.Destroy(ctx, token)
}

// AddStudentRequest is the teacher-side provisioning payload.
type AddStudentRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	StudentName string `json:"student_name"`
	Section     string `json:"section"`
}

// AddStudent provisions a student account.
func (s *Service) AddStudent(req AddStudentRequest, principal *models.User) (*models.User, error) {
	if !principal.Role.Can(models.PermManageStudents) {
		return nil, ErrUnauthorized
	}

	fields := map[string]string{
		"username":     req.Username,
		"password":     req.Password,
		"student_name": req.StudentName,
		"section":      req.Section,
	}
	for _, name := range []string{"username", "password", "student_name", "section"} {
		if fields[name] == "" {
			return nil, MissingField(name)
		}
	}

	existing, err := s.Store.GetUserByUsername(req.Username)
	if err != nil {
		return nil, s.storageFailure(err)
	}
	if existing != nil {
		return nil, UsernameTaken()
	}

	user := &models.User{
		ID:          uuid.NewString(),
		Username:    req.Username,
		Role:        models.RoleStudent,
		Section:     req.Section,
		DisplayName: req.StudentName,
	}
	if err := user.SetPassword(req.Password); err != nil {
		return nil, err
	}
	if err := user.Validate(); err != nil {
		return nil, MissingField("student")
	}

	if err := s.Store.CreateUser(user); err != nil {
		return nil, s.storageFailure(err)
	}
	return user, nil
}

// Students lists provisioned student accounts for the manual-entry view.
func (s *Service) Students(principal *models.User) ([]models.User, error) {
	if !principal.Role.Can(models.PermViewDashboard) {
		return nil, ErrUnauthorized
	}
	students, err := s.Store.ListStudents()
	if err != nil {
		return nil, s.storageFailure(err)
	}
	return students, nil
}

func (s *Service) storageFailure(err error) error {
	logger.Error.Printf("Storage error: %v", err)
	return ErrStorageUnavailable
}
