package seeders

import (
	"log"
	"tutorlink_go/database"
	"tutorlink_go/models"
	"tutorlink_go/utils"
)

// SeedAll runs every seeder. Safe to call on each boot; existing rows are
// left alone.
func SeedAll() {
	SeedUsers()
}

// SeedUsers creates the default admin plus one demo tutor and student.
func SeedUsers() {
	var count int64
	database.DB.Model(&models.User{}).Count(&count)
	if count > 0 {
		return
	}

	users := []struct {
		Username          string
		Email             string
		Role              string
		ApplicationStatus string
		Password          string
	}{
		{"admin", "admin@tutorlink.io", "admin", "accepted", "admin123"},
		{"demo_tutor", "tutor@tutorlink.io", "tutor", "accepted", "tutor123"},
		{"demo_student", "student@tutorlink.io", "student", "accepted", "student123"},
	}

	for _, u := range users {
		hashed, err := utils.HashPassword(u.Password)
		if err != nil {
			log.Printf("Failed to hash password for %s: %v", u.Username, err)
			continue
		}
		user := models.User{
			Username:          u.Username,
			Password:          hashed,
			Email:             u.Email,
			Role:              u.Role,
			Status:            "active",
			ApplicationStatus: u.ApplicationStatus,
		}
		if err := database.DB.Create(&user).Error; err != nil {
			log.Printf("Failed to seed user %s: %v", u.Username, err)
			continue
		}
	}

	log.Println("User seeding completed")
}
