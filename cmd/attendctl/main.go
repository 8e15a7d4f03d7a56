// Command attendctl runs operator tasks: schema migration, student directory
// sync and bearer token issuance.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"internattend/internal/attendance"
	"internattend/internal/auth"
	"internattend/internal/config"
	"internattend/internal/logging"
	"internattend/internal/queue"
	"internattend/internal/store"
)

const usage = `usage: attendctl <command> [flags]

commands:
  migrate                  create or update the database schema
  student  -id -code ...   upsert a student and queue a QR regeneration
  token    -sub -role      print an access/refresh token pair
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch os.Args[1] {
	case "migrate":
		err = migrate(ctx, cfg)
	case "student":
		err = student(ctx, cfg, logger, os.Args[2:])
	case "token":
		err = token(cfg, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal(os.Args[1]+" failed", zap.Error(err))
	}
}

func migrate(ctx context.Context, cfg config.App) error {
	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Migrate(ctx)
}

func student(ctx context.Context, cfg config.App, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("student", flag.ExitOnError)
	var st attendance.Student
	fs.StringVar(&st.ID, "id", "", "student id (required)")
	fs.StringVar(&st.Code, "code", "", "student number printed in the QR (required)")
	fs.StringVar(&st.Name, "name", "", "display name")
	fs.StringVar(&st.SupervisorID, "supervisor", "", "supervisor user id")
	inactive := fs.Bool("inactive", false, "mark the student inactive")
	_ = fs.Parse(args)
	if st.ID == "" || st.Code == "" {
		fs.Usage()
		return fmt.Errorf("-id and -code are required")
	}
	st.Active = !*inactive

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	var dir attendance.Directory = attendance.NewRepository(db.Client)
	prev, err := dir.UpsertStudent(ctx, st)
	if err != nil {
		return err
	}
	logger.Info("student synced",
		zap.String("student_id", st.ID),
		zap.Bool("code_changed", prev != "" && prev != st.Code),
		zap.Bool("active", st.Active))

	job := queue.Job{Kind: queue.KindRegenerateQR, SubjectID: st.ID}
	if prev != st.Code {
		job.PreviousCode = prev
	}
	if cfg.QueueBackend != "redis" {
		// the in-memory queue lives inside the API process
		logger.Warn("QUEUE_BACKEND is not redis; ask the API to regenerate instead",
			zap.String("request", "POST /v1/students/"+st.ID+"/qr/regenerate"),
			zap.String("previous_code", job.PreviousCode))
		return nil
	}
	rdb := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rdb.Close()
	return queue.NewRedisQueue(rdb.Client, "").Publish(ctx, job)
}

func token(cfg config.App, args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	sub := fs.String("sub", "", "subject (user or student id)")
	role := fs.String("role", auth.RoleStudent, "student, supervisor or admin")
	_ = fs.Parse(args)
	if *sub == "" {
		fs.Usage()
		return fmt.Errorf("-sub is required")
	}
	pair, err := auth.Issue(*sub, *role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
	if err != nil {
		return err
	}
	fmt.Printf("access_token=%s\nrefresh_token=%s\nexpires_at=%s\n",
		pair.AccessToken, pair.RefreshToken, pair.AccessExp.Format(time.RFC3339))
	return nil
}
