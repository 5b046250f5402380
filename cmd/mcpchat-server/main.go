package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/LubyRuffy/mcpchat/auth"
	"github.com/LubyRuffy/mcpchat/chathttp"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	var (
		listen     = flag.String("listen", "127.0.0.1:8080", "listen address")
		basePath   = flag.String("base-path", "/api", "base path prefix")
		apiURL     = flag.String("api-url", "", "deepseek chat completions url (default: https://api.deepseek.com/v1/chat/completions)")
		authSource = flag.String("auth-source", "auto", "auth source: env|dotenv|auto")
		envFile    = flag.String("env-file", "", "optional .env file to load before reading credentials")
	)
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("load env file failed: %v", err)
		}
	}

	provider, err := auth.NewProvider(*authSource)
	if err != nil {
		log.Fatalf("invalid auth-source: %v", err)
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	err = chathttp.RegisterGinRoutes(r, chathttp.Config{
		BasePath: *basePath,
		APIURL:   *apiURL,
		AuthProvider: func(ctx context.Context) (string, error) {
			return provider.APIKey(ctx)
		},
	})
	if err != nil {
		log.Fatalf("register routes failed: %v", err)
	}

	srv := &http.Server{
		Addr:              *listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("mcpchat server listening on http://%s%s", *listen, *basePath)
	log.Printf("try: curl http://%s%s/chat -H 'Content-Type: application/json' -d '{\"messages\":[{\"role\":\"user\",\"content\":\"你好\"}]}'", *listen, *basePath)
	log.Printf("try: curl 'http://%s%s/tools?url=http://127.0.0.1:3001/sse'", *listen, *basePath)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Println(err)
	}
}
