package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"bitwise74/notes-api/app"
	"bitwise74/notes-api/config"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	gin.SetMode(gin.ReleaseMode)

	err := config.Setup()
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	router, err := app.New(ctx)
	if err != nil {
		panic(err)
	}

	addr := fmt.Sprintf(":%d", viper.GetInt("host.port"))
	zap.L().Info("Server starting", zap.String("addr", addr), zap.String("storage", viper.GetString("storage.type")))

	if viper.GetBool("host.ssl.enabled") {
		err = router.RunTLS(addr, viper.GetString("host.ssl.certificate_path"), viper.GetString("host.ssl.certificate_key_path"))
	} else {
		err = router.Run(addr)
	}

	if err != nil {
		zap.L().Fatal("Server stopped", zap.Error(err))
	}
}
