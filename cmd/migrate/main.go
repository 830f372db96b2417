package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/lib/pq"
)

const usage = "Usage: go run ./cmd/migrate [drop|up|seed]"

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	// Get database URL
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	channel := os.Getenv("REALTIME_CHANNEL")
	if channel == "" {
		channel = "spot_changes"
	}

	// Get command
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	command := os.Args[1]

	// Connect to database
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	switch command {
	case "drop":
		if err := dropTables(ctx, conn); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		fmt.Println("✅ All tables dropped successfully")

	case "up":
		if err := createTables(ctx, conn, channel); err != nil {
			log.Fatalf("Failed to create tables: %v", err)
		}
		fmt.Println("✅ All tables created successfully")

	case "seed":
		if err := seedData(ctx, conn); err != nil {
			log.Fatalf("Failed to seed data: %v", err)
		}
		fmt.Println("✅ Data seeded successfully")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println(usage)
		os.Exit(1)
	}
}

func dropTables(ctx context.Context, conn *pgx.Conn) error {
	queries := []string{
		`DROP TABLE IF EXISTS votes CASCADE`,
		`DROP TABLE IF EXISTS spots CASCADE`,
		`DROP TABLE IF EXISTS rooms CASCADE`,
		`DROP FUNCTION IF EXISTS notify_spot_change() CASCADE`,
	}

	for _, query := range queries {
		if _, err := conn.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
		fmt.Printf("  Dropped: %s\n", query)
	}

	return nil
}

func createTables(ctx context.Context, conn *pgx.Conn, channel string) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
			id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
			name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS spots (
			id BIGSERIAL PRIMARY KEY,
			room_id TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			lng DOUBLE PRECISION,
			lat DOUBLE PRECISION,
			"order" INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'candidate'
				CHECK (status IN ('candidate', 'confirmed', 'hotel_candidate')),
			day INTEGER NOT NULL DEFAULT 0 CHECK (day >= 0),
			price INTEGER,
			rating DOUBLE PRECISION,
			image_url TEXT,
			url TEXT,
			plan_id TEXT,
			is_hotel BOOLEAN NOT NULL DEFAULT false,
			stay_time INTEGER,
			added_by TEXT NOT NULL DEFAULT 'Guest',
			votes INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS votes (
			id BIGSERIAL PRIMARY KEY,
			room_id TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
			spot_id BIGINT NOT NULL REFERENCES spots(id) ON DELETE CASCADE,
			user_name TEXT NOT NULL,
			vote_type TEXT NOT NULL DEFAULT 'like' CHECK (vote_type = 'like'),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (spot_id, user_name)
		)`,

		// Create indexes
		`CREATE INDEX IF NOT EXISTS idx_spots_room_order ON spots(room_id, "order", id)`,
		`CREATE INDEX IF NOT EXISTS idx_spots_room_name ON spots(room_id, name)`,
		`CREATE INDEX IF NOT EXISTS idx_votes_room_id ON votes(room_id)`,

		// Every row change notifies the room's listeners
		`CREATE OR REPLACE FUNCTION notify_spot_change() RETURNS trigger AS $$
		DECLARE
			rec RECORD;
		BEGIN
			IF TG_OP = 'DELETE' THEN
				rec := OLD;
			ELSE
				rec := NEW;
			END IF;
			PERFORM pg_notify(` + pq.QuoteLiteral(channel) + `, json_build_object(
				'room_id', rec.room_id,
				'table', TG_TABLE_NAME,
				'action', TG_OP,
				'row_id', rec.id,
				'at', NOW()
			)::text);
			RETURN NULL;
		END;
		$$ LANGUAGE plpgsql`,

		`DROP TRIGGER IF EXISTS spots_notify ON spots`,
		`CREATE TRIGGER spots_notify AFTER INSERT OR UPDATE OR DELETE ON spots
			FOR EACH ROW EXECUTE FUNCTION notify_spot_change()`,
		`DROP TRIGGER IF EXISTS votes_notify ON votes`,
		`CREATE TRIGGER votes_notify AFTER INSERT OR UPDATE OR DELETE ON votes
			FOR EACH ROW EXECUTE FUNCTION notify_spot_change()`,
	}

	for _, query := range queries {
		if _, err := conn.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w\nQuery: %s", err, query)
		}
		fmt.Printf("  Created: %s\n", getObjectName(query))
	}

	return nil
}

func seedData(ctx context.Context, conn *pgx.Conn) error {
	return pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO rooms (id, name) VALUES ('demo', 'Kyoto weekend') ON CONFLICT (id) DO NOTHING`,
		); err != nil {
			return fmt.Errorf("failed to insert room: %w", err)
		}

		query := `
			INSERT INTO spots (room_id, name, description, lng, lat, "order", status, day, stay_time, is_hotel, added_by) VALUES
			('demo', 'Fushimi Inari Taisha', 'Fushimi-ku, Kyoto', 135.7727, 34.9671, 0, 'confirmed', 1, 120, false, 'Guest'),
			('demo', 'Kiyomizu-dera', 'Higashiyama-ku, Kyoto', 135.7850, 34.9949, 1, 'confirmed', 1, NULL, false, 'Guest'),
			('demo', 'Nishiki Market', 'Nakagyo-ku, Kyoto', 135.7650, 35.0050, 2, 'confirmed', 2, 60, false, 'Guest'),
			('demo', 'Arashiyama Bamboo Grove', 'Ukyo-ku, Kyoto', 135.6710, 35.0170, 3, 'candidate', 0, NULL, false, 'Guest'),
			('demo', 'Hotel Granvia Kyoto', 'Shimogyo-ku, Kyoto', 135.7588, 34.9858, 4, 'hotel_candidate', 0, NULL, true, 'Guest')
		`
		tag, err := tx.Exec(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to insert spots: %w", err)
		}
		fmt.Printf("  Inserted %d spots into room demo\n", tag.RowsAffected())
		return nil
	})
}

func getObjectName(query string) string {
	fields := strings.Fields(query)
	for i, f := range fields {
		switch strings.ToUpper(f) {
		case "TABLE", "INDEX", "FUNCTION", "TRIGGER":
			j := i + 1
			for j < len(fields) && isKeyword(fields[j]) {
				j++
			}
			if j < len(fields) {
				return strings.ToLower(f) + " " + fields[j]
			}
		}
	}
	return "unknown"
}

func isKeyword(s string) bool {
	switch strings.ToUpper(s) {
	case "IF", "NOT", "EXISTS", "OR", "REPLACE":
		return true
	}
	return false
}
