package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dkeye/farmpulse/internal/adapters/auth"
	"github.com/dkeye/farmpulse/internal/adapters/store"
	"github.com/dkeye/farmpulse/internal/config"
	"github.com/dkeye/farmpulse/internal/domain"
)

type sampleUser struct {
	email    string
	fullName string
	role     domain.UserRole
	phone    string
	location *domain.Point
}

var sampleUsers = []sampleUser{
	{"farmer@test.com", "John Farmer", domain.UserRoleFarmer, "+1234567890", &domain.Point{Lng: -122.4194, Lat: 37.7749}},
	{"vet@test.com", "Dr. Sarah Veterinarian", domain.UserRoleVet, "+1234567891", &domain.Point{Lng: -122.4294, Lat: 37.7849}},
	{"admin@test.com", "Admin User", domain.UserRoleAdmin, "+1234567892", nil},
}

var sampleDiseases = []string{
	"Late Blight",
	"Early Blight",
	"Powdery Mildew",
	"Foot and Mouth Disease",
	"Mastitis",
	"Pneumonia",
}

func seedCmd() *cobra.Command {
	var tokenTTL time.Duration

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create development users and reports",
		Long: `Creates a farmer, a vet and an admin with fixed ids derived from their
email, one pending report per sample disease near the farmer, and prints a
bearer token for each user when jwt_secret is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return seed(cmd.Context(), cfg, tokenTTL)
		},
	}
	cmd.Flags().DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "lifetime of the printed tokens")
	return cmd
}

// seedUserID is stable across runs so reseeding upserts instead of
// duplicating accounts.
func seedUserID(email string) domain.UserID {
	return domain.UserID(uuid.NewSHA1(uuid.NameSpaceURL, []byte("farmpulse:"+email)).String())
}

func seed(ctx context.Context, cfg *config.Config, tokenTTL time.Duration) error {
	db, err := store.OpenSQLite(ctx, cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	var geo *store.RedisGeo
	if cfg.RedisURL != "" {
		rdb, err := store.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		geo = store.NewRedisGeo(rdb, cfg.Outbreak.Retention)
	}

	var verifier *auth.JWTVerifier
	if cfg.JWTSecret != "" {
		if verifier, err = auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTAlgorithm); err != nil {
			return err
		}
	}

	var farmer *domain.User
	for _, s := range sampleUsers {
		u, err := domain.NewUser(s.email, s.fullName, s.role)
		if err != nil {
			return err
		}
		u.ID = seedUserID(s.email)
		u.Phone = s.phone
		u.Location = s.location
		if err := db.UpsertUser(ctx, u); err != nil {
			return err
		}
		if u.Role == domain.UserRoleFarmer {
			farmer = u
			if geo != nil && u.Location != nil {
				if err := geo.SetFarmerLocation(ctx, u.ID, *u.Location); err != nil {
					return err
				}
			}
		}
		fmt.Printf("  ✓ %s %s (%s)\n", u.Role, u.Email, u.ID)
		if verifier != nil {
			token, err := verifier.Issue(domain.Identity{ID: u.ID, Role: u.Role}, tokenTTL)
			if err != nil {
				return err
			}
			fmt.Printf("    token: %s\n", token)
		}
	}

	for i, label := range sampleDiseases {
		at := domain.Point{
			Lng: farmer.Location.Lng + float64(i)*0.01,
			Lat: farmer.Location.Lat - float64(i)*0.01,
		}
		r := &domain.Report{FarmerID: farmer.ID, DiseaseLabel: label, Location: &at}
		if err := db.InsertReport(ctx, r); err != nil {
			return err
		}
		fmt.Printf("  ✓ report %s: %s\n", r.ID, label)
	}
	return nil
}
