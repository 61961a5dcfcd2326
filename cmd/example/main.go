package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/eteran/cloudfile/internal/accounts"
	"github.com/eteran/cloudfile/internal/core"
)

// getenv returns the value of the environment variable named by key or
// fallback if the variable is not present.
func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func accountFromEnv() accounts.Account {
	return accounts.Account{
		ID:        "example",
		Endpoint:  getenv("S3_ENDPOINT", "s3.amazonaws.com"),
		Bucket:    getenv("S3_BUCKET", "example-bucket"),
		Region:    getenv("S3_REGION", "us-east-1"),
		Prefix:    getenv("S3_PREFIX", "cloudfile"),
		AccessKey: getenv("S3_ACCESS_KEY", ""),
		SecretKey: getenv("S3_SECRET_KEY", ""),
	}
}

// VerifyObject checks that the uploaded object is readable with the same
// credentials and reports its size.
func VerifyObject(ctx context.Context, account accounts.Account, objectURL string) error {
	u, err := url.Parse(objectURL)
	if err != nil {
		return fmt.Errorf("failed to parse object URL: %w", err)
	}

	client, err := minio.New(account.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(account.AccessKey, account.SecretKey, ""),
		Secure:       true,
		Region:       account.Region,
		BucketLookup: minio.BucketLookupDNS,
	})
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %w", err)
	}

	key := strings.TrimPrefix(u.Path, "/")
	info, err := client.StatObject(ctx, account.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to stat object %q: %w", key, err)
	}

	slog.Info("Verified object", "key", info.Key, "size", humanize.Bytes(uint64(info.Size)), "etag", info.ETag)
	return nil
}

func Run(ctx context.Context, path string, verify bool) error {
	account := accountFromEnv()
	if err := account.Validate(); err != nil {
		return fmt.Errorf("account from environment: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %q: %w", path, err)
	}
	defer f.Close()

	svc := core.NewService(core.NewConfig(
		core.WithAccountStore(accounts.NewMemoryStore(account)),
	))

	id := uuid.NewString()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The first interrupt cancels the upload through the registry.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)

	go func() {
		select {
		case <-sigs:
			slog.Info("Interrupted, cancelling upload", "upload_id", id)
			svc.CancelUpload(id)
		case <-ctx.Done():
		}
	}()

	objectURL, err := svc.NewUpload(ctx, account.ID, id, filepath.Base(path), f)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("upload cancelled")
		}
		return fmt.Errorf("failed to upload %q: %w", path, err)
	}

	fmt.Println(objectURL)

	if verify {
		return VerifyObject(ctx, account, objectURL)
	}
	return nil
}

func main() {
	verify := flag.Bool("verify", false, "stat the object with the MinIO client after uploading")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: example [-verify] FILE")
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	if err := Run(context.Background(), flag.Arg(0), *verify); err != nil {
		slog.Error("error running example", "err", err)
		os.Exit(1)
	}
}
