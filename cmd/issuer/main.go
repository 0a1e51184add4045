package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/joho/godotenv/autoload"

	"licensedesk/internal/artifact"
	"licensedesk/internal/config"
	"licensedesk/internal/infrastructure/crypto"
	"licensedesk/internal/infrastructure/database"
	"licensedesk/internal/license"
	"licensedesk/internal/usecase"
)

// Операторский CLI: пакетная выдача ключей с сохранением QR-артефактов в каталог.
// Ходит в ту же БД, что и демон, через тот же issuance-сервис.
func main() {
	var (
		batch   = flag.Int("batch", 1, "сколько ключей выдать")
		outDir  = flag.String("out", "qr_codes", "каталог для PNG-артефактов")
		preview = flag.Bool("preview", true, "показывать QR в терминале")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	db, err := database.NewConnection(database.Config{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := db.EnsureSchema(); err != nil {
		log.Fatal(err)
	}

	var encryptor *crypto.Encryptor
	if cfg.PhoneEncryptionKey != "" {
		if encryptor, err = crypto.NewEncryptor(cfg.PhoneEncryptionKey); err != nil {
			log.Fatalf("Encryptor init failed: %v", err)
		}
	}

	store := database.NewLicenseStore(db, encryptor, logger)
	guard := license.NewGuard(license.NewGenerator().Generate, cfg.KeyMaxAttempts)
	renderer := artifact.NewRenderer(cfg.Artifact.Title, cfg.Artifact.Issuer, cfg.Artifact.QRSize)
	svc := usecase.NewIssuanceService(store, guard, nil, logger)

	ctx := context.Background()

	records, err := svc.IssueBatch(ctx, *batch)
	if err != nil {
		log.Fatalf("Batch issue failed: %v", err)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatal(err)
	}

	for _, rec := range records {
		art, err := renderer.Render(rec)
		if err != nil {
			// Запись уже в БД, артефакт можно перегенерировать позже
			log.Printf("⚠️ Render failed for %s: %v", rec.Key, err)
			continue
		}

		path := filepath.Join(*outDir, rec.Key+".png")
		f, err := os.Create(path)
		if err != nil {
			log.Fatal(err)
		}
		if err := art.WritePNG(f); err != nil {
			f.Close()
			log.Fatal(err)
		}
		f.Close()

		fmt.Printf("✅ License #%d: %s\n📁 Saved: %s\n", rec.ID, rec.Key, path)
		if *preview {
			renderer.Preview(rec.Key, os.Stdout)
			fmt.Println()
		}
	}

	total, err := svc.Count(ctx)
	if err == nil {
		fmt.Printf("Total licenses in store: %d\n", total)
	}
}
