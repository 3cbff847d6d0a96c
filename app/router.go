// Package app builds the HTTP server: dependencies, middleware and routes
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bitwise74/notes-api/app/admin"
	"bitwise74/notes-api/app/auth"
	"bitwise74/notes-api/app/note"
	"bitwise74/notes-api/app/root"
	"bitwise74/notes-api/aws"
	"bitwise74/notes-api/config"
	"bitwise74/notes-api/db"
	"bitwise74/notes-api/internal"
	"bitwise74/notes-api/internal/blob"
	"bitwise74/notes-api/internal/service"
	"bitwise74/notes-api/pkg/middleware"
	"bitwise74/notes-api/pkg/validators"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	gray  = "\x1b[90m"
	reset = "\x1b[0m"
)

// Room for the multipart boundaries and the text fields on top of the file
const multipartOverhead = 1 << 20

type RouterConfig struct {
	CORSOrigins   []string
	MaxUploadSize int64
	RateLimit     int
	Turnstile     middleware.TurnstileConfig
}

// New reads the loaded config, connects to the database and the blob store
// and returns the router ready to be served. Background work stops when ctx
// is done.
func New(ctx context.Context) (*gin.Engine, error) {
	makeLogger(viper.GetString("app.log_level"))

	conn, err := db.New(db.Config{
		Driver: viper.GetString("db.driver"),
		DSN:    viper.GetString("db.dsn"),
	})
	if err != nil {
		return nil, err
	}

	blobs, err := newBlobStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize blob storage, %w", err)
	}

	rules := validators.UploadRules{
		MaxSize:      viper.GetInt64("upload.max_size"),
		AllowedTypes: config.AllowedTypes(),
	}
	if len(rules.AllowedTypes) == 0 {
		rules.AllowedTypes = validators.DefaultAllowedTypes
	}

	d := internal.NewDeps(conn, blobs, internal.Options{
		JWTSecret: viper.GetString("jwt.secret"),
		Upload:    rules,
		Auth: service.AuthConfig{
			AdminID:       viper.GetString("admin.id"),
			AdminPassword: viper.GetString("admin.password"),
			AdminEmail:    viper.GetString("admin.email"),
		},
	})

	if every := viper.GetDuration("storage.cleanup_interval"); every > 0 {
		service.OrphanCleanup(ctx, every, viper.GetDuration("storage.cleanup_grace"), d.NoteStore, d.Blob)
	}

	return Router(ctx, d, RouterConfig{
		CORSOrigins:   splitOrigins(viper.GetString("host.cors")),
		MaxUploadSize: rules.MaxSize,
		RateLimit:     viper.GetInt("security.rate_limit"),
		Turnstile: middleware.TurnstileConfig{
			Enabled: viper.GetBool("cloudflare.turnstile.enabled"),
			Secret:  viper.GetString("cloudflare.turnstile.secret_token"),
		},
	}), nil
}

// Router registers every route on a new engine
func Router(ctx context.Context, d *internal.Deps, cfg RouterConfig) *gin.Engine {
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"http://localhost:3000"}
	}

	router := gin.New()

	router.Use(
		cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "TurnstileToken"},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition", middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == "HEAD"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				if v := c.GetString("userID"); v != "" {
					fields = append(fields, zap.String("userID", v))
				}

				return fields
			},
		}),
		ginzap.RecoveryWithZap(zap.L(), true),
	)

	router.HandleMethodNotAllowed = true
	router.RedirectFixedPath = true
	router.MaxMultipartMemory = 8 << 20

	jwt := middleware.NewJWTMiddleware(d.Auth)
	adminOnly := middleware.AdminOnly()
	turnstile := middleware.NewTurnstileMiddleware(cfg.Turnstile)
	rateLimiter := middleware.RateLimiterMiddleware(ctx, middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit,
		Burst:             cfg.RateLimit * 2,
	})

	m := router.Group("/api", rateLimiter)
	{
		// HEAD /api/heartbeat 		-> Used to check if the server is alive
		m.HEAD("/heartbeat", root.Heartbeat)
		m.GET("/heartbeat", root.Heartbeat)
	}

	a := m.Group("/auth", middleware.BodySizeLimiter(1<<20))
	{
		// POST /api/auth/register	-> Registers a new user and returns a token
		a.POST("/register", turnstile, func(c *gin.Context) { auth.Register(c, d) })

		// POST /api/auth/login		-> Logs in a user and returns a token
		a.POST("/login", turnstile, func(c *gin.Context) { auth.Login(c, d) })

		// POST /api/auth/admin-login	-> Logs in the configured administrator
		a.POST("/admin-login", func(c *gin.Context) { auth.AdminLogin(c, d) })

		// GET /api/auth/me		-> Returns the user a token belongs to
		a.GET("/me", jwt, auth.Me)
	}

	n := m.Group("/notes")
	{
		// GET /api/notes		-> Lists approved notes, ?subject= and ?search= filter
		n.GET("", func(c *gin.Context) { note.List(c, d) })

		// POST /api/notes/upload	-> Uploads a file with its metadata
		n.POST("/upload", jwt, middleware.BodySizeLimiter(cfg.MaxUploadSize+multipartOverhead), func(c *gin.Context) { note.Upload(c, d) })

		// GET /api/notes/download/:id	-> Streams a file and counts the download
		n.GET("/download/:id", func(c *gin.Context) { note.Download(c, d) })

		// GET /api/notes/my-notes	-> Lists every note of the caller
		n.GET("/my-notes", jwt, func(c *gin.Context) { note.Mine(c, d) })
	}

	ad := m.Group("/admin", jwt, adminOnly)
	{
		// GET /api/admin/users		-> Lists every user
		ad.GET("/users", func(c *gin.Context) { admin.Users(c, d) })

		// GET /api/admin/notes		-> Lists every note with its owner
		ad.GET("/notes", func(c *gin.Context) { admin.Notes(c, d) })

		// GET /api/admin/stats		-> Returns user, note and download totals
		ad.GET("/stats", func(c *gin.Context) { admin.Stats(c, d) })

		// DELETE /api/admin/notes/:id	-> Deletes a note and its file
		ad.DELETE("/notes/:id", func(c *gin.Context) { admin.DeleteNote(c, d) })

		// DELETE /api/admin/users/:id	-> Deletes a user and every note they own
		ad.DELETE("/users/:id", func(c *gin.Context) { admin.DeleteUser(c, d) })

		// PATCH /api/admin/notes/:id/approve -> Flips the approval flag of a note
		ad.PATCH("/notes/:id/approve", func(c *gin.Context) { admin.ToggleApproval(c, d) })
	}

	return router
}

func newBlobStore(ctx context.Context) (blob.Store, error) {
	opts := aws.Options{
		Bucket:          viper.GetString("storage.bucket"),
		Region:          viper.GetString("storage.region"),
		Endpoint:        viper.GetString("storage.endpoint"),
		AccessKeyID:     viper.GetString("storage.access_key_id"),
		SecretAccessKey: viper.GetString("storage.secret_access_key"),
		PathStyle:       viper.GetBool("storage.path_style"),
		PublicURL:       viper.GetString("storage.public_url"),
	}

	switch strings.ToLower(viper.GetString("storage.type")) {
	case "r2":
		opts = aws.R2Options(viper.GetString("cloudflare.account_id"), opts)
		fallthrough
	case "s3":
		s, err := aws.NewS3(ctx, opts)
		if err != nil {
			return nil, err
		}

		zap.L().Info("Connected to bucket", zap.String("bucket", opts.Bucket), zap.String("endpoint", opts.Endpoint))
		return s, nil
	default:
		l, err := blob.NewLocal(viper.GetString("storage.local_path"), viper.GetString("storage.public_url"))
		if err != nil {
			return nil, err
		}

		return l, nil
	}
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}

	return out
}

func makeLogger(level string) {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + t.Format("15:04:05.000") + reset)
	}
	cfg.EncoderConfig.EncodeCaller = func(ec zapcore.EntryCaller, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + ec.TrimmedPath() + reset)
	}

	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	cfg.DisableStacktrace = true

	log, _ := cfg.Build()
	zap.ReplaceGlobals(log)
}
