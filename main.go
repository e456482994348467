package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/testwing/testwing/api"
	"github.com/testwing/testwing/config"
	"github.com/testwing/testwing/driver"
	"github.com/testwing/testwing/llm"
	"github.com/testwing/testwing/pkg/logger"
	"github.com/testwing/testwing/resolver"
	"github.com/testwing/testwing/services/browser"
	"github.com/testwing/testwing/storage"
)

// 构建信息变量，通过Makefile的LDFLAGS注入
var (
	Version   = "v0.1.0"
	BuildTime = ""
	GoVersion = ""
)

func main() {
	// 命令行参数
	port := flag.String("port", "", "Server port (default: 8080)")
	host := flag.String("host", "", "Server host (default: 0.0.0.0)")
	configPath := flag.String("config", "config.toml", "Path to config file (default: config.toml)")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	// 显示版本信息
	if *version {
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Go Version: %s\n", GoVersion)
		os.Exit(0)
	}

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("Failed to load config file, using default config: %v", err)
	}

	logger.InitLogger(cfg.Log)

	// 优先级: 命令行参数 > 环境变量 > 配置文件
	if *port != "" {
		cfg.Server.Port = *port
	} else if envPort := os.Getenv("PORT"); envPort != "" {
		cfg.Server.Port = envPort
	}

	if *host != "" {
		cfg.Server.Host = *host
	} else if envHost := os.Getenv("HOST"); envHost != "" {
		cfg.Server.Host = envHost
	}

	// 确保数据库目录存在
	dbDir := filepath.Dir(cfg.Database.Path)
	err = os.MkdirAll(dbDir, 0o755)
	if err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	// 初始化数据库
	db, err := storage.NewBoltDB(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	log.Println("✓ Database initialization successful")

	// 初始化浏览器管理器
	browserManager := browser.NewManager(cfg)
	log.Println("✓ Browser manager initialized successfully")

	// 文档适配器：所有元素探测都走当前活动页面
	doc := driver.NewRodDocument(browserManager.ActivePage, cfg.Resolver.ElementTimeout())

	// 初始化 LLM 客户端（仅在启用 AI 且配置了密钥时）
	var suggester resolver.LocatorSuggester
	var matcher resolver.DescriptionMatcher
	if cfg.AI.Enabled && cfg.AI.APIKey != "" {
		client, err := llm.NewClient(cfg.AI)
		if err != nil {
			log.Printf("Warning: Failed to initialize LLM client: %v", err)
		} else {
			suggester = client
			matcher = client
			log.Printf("✓ LLM client initialized successfully, model: %s", cfg.AI.Model)
		}
	}

	// 初始化解析引擎
	caches := resolver.NewCaches()
	events := resolver.NewLogEvents()
	healing := resolver.NewHealingEngine(cfg.Resolver, cfg.AI, caches, events, suggester, db)
	executor := resolver.NewExecutor(cfg.Resolver, caches, events, healing, db)
	facade := resolver.NewFacade(cfg.Resolver, cfg.AI, caches, resolver.NewPatternRegistry(), matcher, events)
	log.Println("✓ Resolution engine initialized successfully")

	// 创建HTTP处理器
	handler := api.NewHandler(db, browserManager, cfg, doc, executor, facade, healing, caches)

	router := api.SetupRouter(handler, cfg.Debug)

	// 设置优雅退出
	setupGracefulShutdown(browserManager, db)

	// 启动服务器
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	log.Printf("🚀 TestWing server started at http://%s", addr)
	log.Printf("📝 API Documentation: http://%s/health", addr)

	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// setupGracefulShutdown 设置优雅退出，自动关闭浏览器
func setupGracefulShutdown(browserManager *browser.Manager, db *storage.BoltDB) {
	sigChan := make(chan os.Signal, 1)
	// 监听 SIGINT (Ctrl+C) 和 SIGTERM
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("\nReceived exit signal: %v", sig)
		log.Println("Exiting gracefully...")

		// 创建超时上下文，最多等待 10 秒
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// 检查并关闭浏览器
		if browserManager.IsRunning() {
			log.Println("Browser is running, closing...")
			if err := browserManager.Stop(); err != nil {
				log.Printf("Failed to close browser: %v", err)
			} else {
				log.Println("✓ Browser closed")
			}
		} else {
			log.Println("Browser is not running, no need to close")
		}

		// 关闭数据库
		if db != nil {
			log.Println("Closing database...")
			if err := db.Close(); err != nil {
				log.Printf("Failed to close database: %v", err)
			} else {
				log.Println("✓ Database closed")
			}
		}

		// 等待或超时
		select {
		case <-ctx.Done():
			log.Println("Cleanup timeout, force exit")
		case <-time.After(500 * time.Millisecond):
			log.Println("Cleanup completed")
		}

		log.Println("Program exited")
		os.Exit(0)
	}()

	log.Println("✓ Graceful shutdown mechanism started (Ctrl+C will automatically close the browser)")
}
