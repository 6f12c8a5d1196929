package main

import (
	"context"
	"io"
	"log"
	"os"
	"regexp"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"

	"spiderpit/blob"
	"spiderpit/database"
	"spiderpit/fight"
	"spiderpit/scheduler"
	"spiderpit/web"
)

// IPMaskingWriter wraps an io.Writer to mask IP addresses in log output
type IPMaskingWriter struct {
	writer  io.Writer
	ipRegex *regexp.Regexp
}

func NewIPMaskingWriter(w io.Writer) *IPMaskingWriter {
	ipRegex := regexp.MustCompile(`\b(\d{1,3}\.\d{1,3})\.(\d{1,3}\.\d{1,3})\b`)
	return &IPMaskingWriter{
		writer:  w,
		ipRegex: ipRegex,
	}
}

func (w *IPMaskingWriter) Write(p []byte) (n int, err error) {
	// Show only the last two octets
	masked := w.ipRegex.ReplaceAllFunc(p, func(match []byte) []byte {
		ip := string(match)
		return []byte(w.ipRegex.ReplaceAllString(ip, "*.*.${2}"))
	})

	return w.writer.Write(masked)
}

func main() {
	log.SetOutput(NewIPMaskingWriter(os.Stdout))

	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	log.Printf("🕷️  Starting Spiderpit at: %s", time.Now().UTC().Format(time.RFC1123))

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "./spiderpit.db"
	}

	db, err := sqlx.Connect("sqlite3", dbURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := database.EnsureSchema(db); err != nil {
		log.Fatal("Failed to ensure schema:", err)
	}

	repo := database.NewRepository(db)
	engine := fight.NewEngine(repo)
	if os.Getenv("SPIDERPIT_SEEDED_MODIFIERS") != "" {
		engine.EnableSeededModifiers()
	}
	sweeper := scheduler.NewSweeper(repo)

	sessionSecret := os.Getenv("SESSION_SECRET")
	if sessionSecret == "" {
		log.Fatal("SESSION_SECRET environment variable is required")
	}

	blobs, cleanup := newBlobStore()
	defer cleanup()

	server := web.NewServer(repo, engine, blobs, sessionSecret)
	sweeper.SetBroadcaster(server.GetHub())
	if ds, ok := blobs.(*blob.DiskStore); ok {
		server.MountImages(ds.Dir())
	}

	// Background maintenance: expire overdue challenges every minute,
	// clear stale sessions hourly. Both passes are idempotent.
	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Fatal("Failed to create scheduler:", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(time.Minute),
		gocron.NewTask(func() {
			if _, err := sweeper.SweepExpired(time.Now().UTC()); err != nil {
				log.Printf("Challenge sweep: %v", err)
			}
		}),
	)
	if err != nil {
		log.Fatal("Failed to schedule challenge sweep:", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(time.Hour),
		gocron.NewTask(func() {
			if err := sweeper.CleanSessions(time.Now().UTC()); err != nil {
				log.Printf("Session cleanup: %v", err)
			}
		}),
	)
	if err != nil {
		log.Fatal("Failed to schedule session cleanup:", err)
	}
	sched.Start()
	defer func() { _ = sched.Shutdown() }()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("🕸️  Ready for challengers!")

	if err := server.Start(port); err != nil {
		log.Fatal("Failed to start web server:", err)
	}
}

// newBlobStore picks S3-compatible storage when configured, local disk
// otherwise. The cleanup func is a hook for future stores; both current
// implementations need none.
func newBlobStore() (blob.Store, func()) {
	bucket := os.Getenv("BLOB_BUCKET")
	if bucket == "" {
		dir := os.Getenv("IMAGE_DIR")
		if dir == "" {
			dir = "./spider_images"
		}
		base := os.Getenv("IMAGE_BASE_URL")
		if base == "" {
			base = "/images"
		}
		store, err := blob.NewDiskStore(dir, base)
		if err != nil {
			log.Fatal("Failed to init disk blob store:", err)
		}
		log.Printf("Using disk blob store at %s", dir)
		return store, func() {}
	}

	store, err := blob.NewS3Store(context.Background(), blob.S3Config{
		Endpoint:        os.Getenv("BLOB_ENDPOINT"),
		Region:          os.Getenv("BLOB_REGION"),
		AccessKeyID:     os.Getenv("BLOB_ACCESS_KEY_ID"),
		AccessKeySecret: os.Getenv("BLOB_ACCESS_KEY_SECRET"),
		Bucket:          bucket,
		PublicBaseURL:   os.Getenv("CDN_BASE_URL"),
	})
	if err != nil {
		log.Fatal("Failed to init S3 blob store:", err)
	}
	log.Printf("Using S3 blob store (bucket %s)", bucket)
	return store, func() {}
}
