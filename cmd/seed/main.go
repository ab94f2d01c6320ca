package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/clinicaonline/scheduling/internal/config"
	"github.com/clinicaonline/scheduling/internal/db"
	"github.com/clinicaonline/scheduling/internal/identity"
)

var specialtyNames = []string{
	"Cardiology",
	"Dermatology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func main() {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config load error", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	gofakeit.Seed(time.Now().UnixNano())

	specialtyIDs, err := seedSpecialties(ctx, pool)
	if err != nil {
		logger.Fatal("seed specialties", zap.Error(err))
	}
	logger.Info("specialties seeded", zap.Int("count", len(specialtyIDs)))

	specialists, err := seedAvailability(ctx, pool, specialtyIDs, 20)
	if err != nil {
		logger.Fatal("seed availability", zap.Error(err))
	}
	logger.Info("availability windows seeded", zap.Int("specialists", len(specialists)))

	printSampleActors(logger, cfg.JWTSecret, specialists)
}

func seedSpecialties(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, len(specialtyNames))
	for _, name := range specialtyNames {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO specialties (id, name, active, created_at)
			VALUES ($1, $2, true, now())
			ON CONFLICT (name) DO NOTHING
		`, id, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	// Re-read so reruns pick up the ids of pre-existing rows.
	rows, err := pool.Query(ctx, `SELECT id FROM specialties WHERE active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids = ids[:0]
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// seedAvailability creates a handful of weekday windows per generated
// specialist. Profiles live in the external identity provider, so only the
// specialist ids appear here.
func seedAvailability(ctx context.Context, pool *pgxpool.Pool, specialtyIDs []uuid.UUID, count int) ([]uuid.UUID, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	slotLengths := []int{30, 45, 60}
	specialists := make([]uuid.UUID, 0, count)

	for i := 0; i < count; i++ {
		specialistID := uuid.New()
		specialtyID := specialtyIDs[gofakeit.Number(0, len(specialtyIDs)-1)]

		// Two or three non-overlapping weekday windows each.
		days := []int{1, 2, 3, 4, 5}
		gofakeit.ShuffleInts(days)
		for _, weekday := range days[:gofakeit.Number(2, 3)] {
			startHour := gofakeit.Number(8, 14)
			endHour := startHour + gofakeit.Number(2, 4)

			_, err := tx.Exec(ctx, `
				INSERT INTO availability_windows
					(id, specialist_id, specialty_id, weekday, start_time, end_time, slot_minutes, active, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5::time, $6::time, $7, true, now(), now())
			`, uuid.New(), specialistID, specialtyID, weekday,
				fmt.Sprintf("%02d:00", startHour), fmt.Sprintf("%02d:00", endHour),
				slotLengths[gofakeit.Number(0, len(slotLengths)-1)])
			if err != nil {
				return nil, err
			}
		}
		specialists = append(specialists, specialistID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return specialists, nil
}

// printSampleActors mints a few tokens so the seeded data can be exercised
// immediately with curl.
func printSampleActors(logger *zap.Logger, secret string, specialists []uuid.UUID) {
	verifier := identity.NewTokenVerifier(secret)

	actors := []identity.Actor{
		{ID: uuid.New(), Role: identity.RolePatient},
		{ID: uuid.New(), Role: identity.RoleAdmin},
	}
	if len(specialists) > 0 {
		actors = append(actors, identity.Actor{ID: specialists[0], Role: identity.RoleSpecialist})
	}

	for _, actor := range actors {
		token, err := verifier.Issue(actor, 24*time.Hour)
		if err != nil {
			logger.Warn("issue sample token", zap.Error(err))
			continue
		}
		logger.Info("sample actor",
			zap.String("role", string(actor.Role)),
			zap.Stringer("id", actor.ID),
			zap.String("token", token),
		)
	}
}
