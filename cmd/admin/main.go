package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"prepkitty/internal/auth"
	"prepkitty/internal/config"
	"prepkitty/internal/database"
	"prepkitty/internal/storage"
)

const usage = `用法:
  admin create-user --email <email> [--name <name>]
  admin delete-user --email <email>`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}

	switch os.Args[1] {
	case "create-user":
		createUser(db, os.Args[2:])
	case "delete-user":
		deleteUser(cfg, db, os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

// createUser 创建已验证邮箱的账号，首次登录需强制改密。
func createUser(db *gorm.DB, args []string) {
	fs := flag.NewFlagSet("create-user", flag.ExitOnError)
	email := fs.String("email", "", "账号邮箱（必填）")
	name := fs.String("name", "", "显示名称")
	_ = fs.Parse(args)

	e := strings.ToLower(strings.TrimSpace(*email))
	if e == "" {
		log.Fatal("missing required flag: --email")
	}

	var existing database.User
	switch err := db.Where("email = ?", e).First(&existing).Error; {
	case err == nil:
		log.Fatalf("user %q already exists", e)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		log.Fatalf("query user: %v", err)
	}

	password, err := auth.RandomPassword(24)
	if err != nil {
		log.Fatalf("generate password: %v", err)
	}
	hashed, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	now := time.Now()
	user := database.User{
		Email:              e,
		Name:               strings.TrimSpace(*name),
		PasswordHash:       hashed,
		EmailVerifiedAt:    &now,
		MustChangePassword: true,
	}
	if err := db.Create(&user).Error; err != nil {
		log.Fatalf("create user: %v", err)
	}

	fmt.Printf("已创建账号（首次登录需强制改密）：\n")
	fmt.Printf("邮箱: %s\n", e)
	fmt.Printf("初始密码: %s\n", password)
	fmt.Printf("提示：该密码仅显示一次。\n")
}

// deleteUser 删除账号及其档案、成绩与对象存储中的 CV 文件。
func deleteUser(cfg *config.Config, db *gorm.DB, args []string) {
	fs := flag.NewFlagSet("delete-user", flag.ExitOnError)
	email := fs.String("email", "", "账号邮箱（必填）")
	_ = fs.Parse(args)

	e := strings.ToLower(strings.TrimSpace(*email))
	if e == "" {
		log.Fatal("missing required flag: --email")
	}

	var user database.User
	if err := db.Where("email = ?", e).First(&user).Error; err != nil {
		log.Fatalf("query user: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	storageClient, err := storage.NewClient(ctx, cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	removed := 0
	for _, prefix := range storage.UserPrefixes(user.ID) {
		n, err := storageClient.DeletePrefix(ctx, prefix)
		if err != nil {
			log.Fatalf("delete objects under %s: %v", prefix, err)
		}
		removed += n
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("user_id = ?", user.ID).Delete(&database.PracticeResult{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("user_id = ?", user.ID).Delete(&database.PracticeProfile{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("identifier = ?", user.Email).Delete(&database.VerificationToken{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&user).Error
	})
	if err != nil {
		log.Fatalf("delete user: %v", err)
	}

	fmt.Printf("已删除账号 %s（对象 %d 个）\n", e, removed)
}
