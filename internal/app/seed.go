package app

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/narvaro/internal/models"
)

// SeedDemoUsers provisions a demo teacher and two students when the user
// table is empty. Meant for the in-memory fallback deployments.
func (s *Service) SeedDemoUsers() error {
	if !s.Config.Demo.SeedUsers {
		return nil
	}

	count, err := s.Store.CountUsers()
	if err != nil {
		return fmt.Errorf("failed to check user count: %w", err)
	}
	if count > 0 {
		return nil
	}

	password := s.Config.Demo.Password
	if password == "" {
		password = "password"
	}

	demo := []models.User{
		{Username: "teacher", Role: models.RoleTeacher, Section: "A", DisplayName: "Demo Teacher"},
		{Username: "student1", Role: models.RoleStudent, Section: "A", DisplayName: "Demo Student One"},
		{Username: "student2", Role: models.RoleStudent, Section: "B", DisplayName: "Demo Student Two"},
	}

	for i := range demo {
		demo[i].ID = uuid.NewString()
		if err := demo[i].SetPassword(password); err != nil {
			return err
		}
		if err := s.Store.CreateUser(&demo[i]); err != nil {
			return fmt.Errorf("failed to seed user %s: %w", demo[i].Username, err)
		}
	}

	logger.Info.Printf("Seeded %d demo users", len(demo))
	return nil
}
