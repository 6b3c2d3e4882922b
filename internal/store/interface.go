package store

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/shrimpsizemoose/narvaro/internal/models"
)

type AttendanceStore interface {
	Close() error
	ApplyMigrations(dir string) error

	CreateUser(user *models.User) error
	GetUserByID(id string) (*models.User, error)
	GetUserByUsername(username string) (*models.User, error)
	ListStudents() ([]models.User, error)
	CountUsers() (int64, error)

	FindRecord(date, studentID, checkpoint string) (*models.AttendanceRecord, error)
	InsertRecord(record *models.AttendanceRecord) (bool, error)
	DeleteRecord(date, studentID, checkpoint string) error
	ListDayRecords(date string) ([]models.AttendanceRecord, error)
	CountDays() (int64, error)
	CountStudentRecords(studentID string) (int64, error)
	CountStudentCheckpointsOnDate(date, studentID string) (int64, error)
}

// BaseStore provides common functionality for different DB implementations
type BaseStore struct {
	DB        *sqlx.DB
	Converter func(string) string
}

func (s *BaseStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// ApplyMigrations applies SQL migrations from a directory, translating dialect if needed
func (s *BaseStore) ApplyMigrations(dir string, translateSQL func(string) string) error {
	files, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	for _, file := range files {
		if !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}

		content, err := os.ReadFile(fmt.Sprintf("%s/%s", dir, file.Name()))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file.Name(), err)
		}

		sql := string(content)
		if translateSQL != nil {
			sql = translateSQL(sql)
		}

		if _, err := s.DB.Exec(sql); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file.Name(), err)
		}
	}

	return nil
}

func (s *BaseStore) CreateUser(user *models.User) error {
	_, err := s.DB.NamedExec(`
		INSERT INTO users (id, username, password_hash, role, section, display_name)
		VALUES (:id, :username, :password_hash, :role, :section, :display_name)
	`, user)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *BaseStore) GetUserByID(id string) (*models.User, error) {
	var user models.User
	query := s.Converter(`
		SELECT id, username, password_hash, role, section, display_name
		FROM users
		WHERE id = ?
	`)

	err := s.DB.Get(&user, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (s *BaseStore) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	query := s.Converter(`
		SELECT id, username, password_hash, role, section, display_name
		FROM users
		WHERE username = ?
	`)

	err := s.DB.Get(&user, query, username)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	return &user, nil
}

func (s *BaseStore) ListStudents() ([]models.User, error) {
	var students []models.User
	query := s.Converter(`
		SELECT id, username, password_hash, role, section, display_name
		FROM users
		WHERE role = ?
		ORDER BY section, display_name
	`)

	err := s.DB.Select(&students, query, models.RoleStudent)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	return students, nil
}

func (s *BaseStore) CountUsers() (int64, error) {
	var count int64
	if err := s.DB.Get(&count, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

func (s *BaseStore) FindRecord(date, studentID, checkpoint string) (*models.AttendanceRecord, error) {
	var record models.AttendanceRecord
	query := s.Converter(`
		SELECT date, student_id, student_name, timestamp, checkpoint, method
		FROM attendance_records
		WHERE date = ?
		AND student_id = ?
		AND checkpoint = ?
	`)

	err := s.DB.Get(&record, query, date, studentID, checkpoint)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find record: %w", err)
	}
	return &record, nil
}

// InsertRecord upserts the day row and appends the record. The append is a
// conditional insert against UNIQUE(date, student_id, checkpoint); it reports
// false when the tuple already exists, so concurrent duplicate submissions
// lose the race at the storage level rather than in application code.
func (s *BaseStore) InsertRecord(record *models.AttendanceRecord) (bool, error) {
	dayQuery := s.Converter(`
		INSERT INTO attendance_days (date)
		VALUES (?)
		ON CONFLICT (date) DO NOTHING
	`)
	if _, err := s.DB.Exec(dayQuery, record.Date); err != nil {
		return false, fmt.Errorf("failed to upsert day: %w", err)
	}

	res, err := s.DB.NamedExec(`
		INSERT INTO attendance_records (date, student_id, student_name, timestamp, checkpoint, method)
		VALUES (:date, :student_id, :student_name, :timestamp, :checkpoint, :method)
		ON CONFLICT (date, student_id, checkpoint) DO NOTHING
	`, record)
	if err != nil {
		return false, fmt.Errorf("failed to insert record: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return inserted > 0, nil
}

func (s *BaseStore) DeleteRecord(date, studentID, checkpoint string) error {
	query := s.Converter(`
		DELETE FROM attendance_records
		WHERE date = ?
		AND student_id = ?
		AND checkpoint = ?
	`)

	if _, err := s.DB.Exec(query, date, studentID, checkpoint); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

func (s *BaseStore) ListDayRecords(date string) ([]models.AttendanceRecord, error) {
	var records []models.AttendanceRecord
	query := s.Converter(`
		SELECT date, student_id, student_name, timestamp, checkpoint, method
		FROM attendance_records
		WHERE date = ?
		ORDER BY timestamp ASC
	`)

	err := s.DB.Select(&records, query, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list day records: %w", err)
	}
	return records, nil
}

func (s *BaseStore) CountDays() (int64, error) {
	var count int64
	if err := s.DB.Get(&count, `SELECT COUNT(*) FROM attendance_days`); err != nil {
		return 0, fmt.Errorf("failed to count days: %w", err)
	}
	return count, nil
}

func (s *BaseStore) CountStudentRecords(studentID string) (int64, error) {
	var count int64
	query := s.Converter(`
		SELECT COUNT(*)
		FROM attendance_records
		WHERE student_id = ?
	`)

	if err := s.DB.Get(&count, query, studentID); err != nil {
		return 0, fmt.Errorf("failed to count student records: %w", err)
	}
	return count, nil
}

func (s *BaseStore) CountStudentCheckpointsOnDate(date, studentID string) (int64, error) {
	var count int64
	query := s.Converter(`
		SELECT COUNT(DISTINCT checkpoint)
		FROM attendance_records
		WHERE date = ?
		AND student_id = ?
	`)

	if err := s.DB.Get(&count, query, date, studentID); err != nil {
		return 0, fmt.Errorf("failed to count checkpoints: %w", err)
	}
	return count, nil
}
