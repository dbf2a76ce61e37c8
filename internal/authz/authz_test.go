package authz_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chartmed-ai/karte/internal/auth"
	"github.com/chartmed-ai/karte/internal/authz"
	"github.com/chartmed-ai/karte/internal/model"
	"github.com/chartmed-ai/karte/internal/storage"
	"github.com/chartmed-ai/karte/internal/testutil"
)

var testDB *storage.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	tc := testutil.MustStartPostgres()

	var err error
	testDB, err = tc.NewTestDB(ctx, testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create test DB: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	tc.Terminate()
	os.Exit(code)
}

func newHospital(t *testing.T) model.Hospital {
	t.Helper()
	suffix := uuid.New().String()[:8]
	h, err := testDB.CreateHospital(context.Background(), model.Hospital{
		Name:               "St. Demo General " + suffix,
		Email:              suffix + "@example.org",
		PasswordHash:       "argon2id$stub",
		RegistrationNumber: "REG-" + suffix,
	})
	require.NoError(t, err)
	return h
}

func newPatient(t *testing.T, hospitalID uuid.UUID) model.Patient {
	t.Helper()
	suffix := uuid.New().String()[:8]
	p, err := testDB.CreatePatient(context.Background(), model.Patient{
		PatientID:  "PT-" + suffix,
		Name:       "Taro Yamada " + suffix,
		HospitalID: hospitalID,
	})
	require.NoError(t, err)
	return p
}

func claimsFor(h model.Hospital) *auth.Claims {
	return &auth.Claims{HospitalID: h.ID, Email: h.Email}
}

func TestCanAccessPatient(t *testing.T) {
	ctx := context.Background()
	owner := newHospital(t)
	other := newHospital(t)
	patient := newPatient(t, owner.ID)
	cache := authz.NewOwnerCache(16)

	ok, err := authz.CanAccessPatient(ctx, testDB, cache, claimsFor(owner), patient.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second call is served from the cache; same answer.
	ok, err = authz.CanAccessPatient(ctx, testDB, cache, claimsFor(owner), patient.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = authz.CanAccessPatient(ctx, testDB, cache, claimsFor(other), patient.ID)
	require.NoError(t, err)
	assert.False(t, ok, "another hospital must not see the patient")
}

func TestCanAccessPatient_Missing(t *testing.T) {
	ctx := context.Background()
	hospital := newHospital(t)

	ok, err := authz.CanAccessPatient(ctx, testDB, nil, claimsFor(hospital), uuid.New())
	require.NoError(t, err, "missing rows deny without an error")
	assert.False(t, ok)
}

func TestCanAccessPatient_NilClaims(t *testing.T) {
	ctx := context.Background()
	hospital := newHospital(t)
	patient := newPatient(t, hospital.ID)

	ok, err := authz.CanAccessPatient(ctx, testDB, nil, nil, patient.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanAccessCase(t *testing.T) {
	ctx := context.Background()
	owner := newHospital(t)
	other := newHospital(t)
	patient := newPatient(t, owner.ID)

	boardCase, err := testDB.CreateCase(ctx, model.BoardCase{
		PatientID:  patient.ID,
		HospitalID: owner.ID,
	})
	require.NoError(t, err)

	cache := authz.NewOwnerCache(16)

	ok, err := authz.CanAccessCase(ctx, testDB, cache, claimsFor(owner), boardCase.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = authz.CanAccessCase(ctx, testDB, cache, claimsFor(other), boardCase.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = authz.CanAccessCase(ctx, testDB, cache, claimsFor(owner), uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
}
