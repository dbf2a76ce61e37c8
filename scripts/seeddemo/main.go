// Command seeddemo populates a fresh database with a demo hospital and a
// handful of oncology patients so the dashboard has something to show on
// first launch.
//
// Usage:
//
//	DATABASE_URL=postgres://... go run ./scripts/seeddemo
//
// It prints the demo credentials on success. Safe to run multiple times —
// when the demo hospital already exists the script reuses it and only adds
// patients that are missing.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/chartmed-ai/karte/internal/auth"
	"github.com/chartmed-ai/karte/internal/model"
	"github.com/chartmed-ai/karte/internal/signup"
	"github.com/chartmed-ai/karte/internal/storage"
	"github.com/chartmed-ai/karte/migrations"
)

const (
	demoEmail    = "demo@chartmed.example"
	demoPassword = "demo-karte-2024"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := storage.New(ctx, dbURL, logger)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	hospital, err := demoHospital(ctx, db, logger)
	if err != nil {
		return err
	}

	created := 0
	for _, p := range demoPatients() {
		p.HospitalID = hospital.ID
		if _, err := db.CreatePatient(ctx, p); err != nil {
			if errors.Is(err, storage.ErrDuplicatePatientID) {
				continue
			}
			return fmt.Errorf("create patient %s: %w", p.PatientID, err)
		}
		created++
	}

	fmt.Printf("demo hospital: %s\n", hospital.Name)
	fmt.Printf("  email:    %s\n", demoEmail)
	fmt.Printf("  password: %s\n", demoPassword)
	fmt.Printf("seeded %d new patients\n", created)
	return nil
}

// demoHospital signs the demo account up, or fetches it when a previous
// run already created it.
func demoHospital(ctx context.Context, db *storage.DB, logger *slog.Logger) (model.Hospital, error) {
	// Ephemeral keys are fine here; the issued token is discarded.
	jwtMgr, err := auth.NewJWTManager("", "", time.Hour)
	if err != nil {
		return model.Hospital{}, fmt.Errorf("auth: %w", err)
	}

	svc := signup.New(db, jwtMgr, logger)
	resp, err := svc.Signup(ctx, model.SignupRequest{
		Name:               "Demo General Hospital",
		Email:              demoEmail,
		Password:           demoPassword,
		RegistrationNumber: "DEMO-0001",
	})
	if err == nil {
		return resp.Hospital, nil
	}
	if errors.Is(err, signup.ErrDuplicateEmail) {
		return db.GetHospitalByEmail(ctx, demoEmail)
	}
	return model.Hospital{}, fmt.Errorf("signup: %w", err)
}

func demoPatients() []model.Patient {
	age := func(n int) *int { return &n }
	str := func(s string) *string { return &s }
	return []model.Patient{
		{PatientID: "DEMO-PT-001", Name: "Tanaka Hiroshi", Age: age(62), Gender: str("male"), CancerType: str("Lung adenocarcinoma")},
		{PatientID: "DEMO-PT-002", Name: "Suzuki Akiko", Age: age(55), Gender: str("female"), CancerType: str("Breast carcinoma")},
		{PatientID: "DEMO-PT-003", Name: "Yamamoto Kenji", Age: age(70), Gender: str("male"), CancerType: str("Colorectal cancer"), Status: model.PatientStatusRemission},
		{PatientID: "DEMO-PT-004", Name: "Kobayashi Mei", Age: age(48), Gender: str("female"), CancerType: str("Pancreatic cancer")},
	}
}
