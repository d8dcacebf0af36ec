package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"tripServer/backend/config"
	"tripServer/backend/internal/autosave"
	"tripServer/backend/internal/cache"
	"tripServer/backend/internal/httpapi/handlers"
	"tripServer/backend/internal/httpapi/middleware"
	"tripServer/backend/internal/notify"
	"tripServer/backend/internal/store"
	"tripServer/backend/internal/ws"
)

func initConfig() (*config.Config, error) {
	cfg := &config.Config{}
	v := viper.New()
	v.SetConfigName("tripConfig")
	v.SetConfigType("yaml")
	// 兼容从项目根目录或 backend 目录启动
	v.AddConfigPath("./backend/config")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	cfg, err := initConfig()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}
	log.Printf("config: %+v", cfg)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err = rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	db, err := store.InitMySQL(cfg.Mysql.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Kafka Producer，没配 brokers 就跳过（Notifier 里 nil producer 是 no-op）
	var producer sarama.SyncProducer
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaCfg := sarama.NewConfig()
		// SyncProducer 必须开启 Return.Successes
		kafkaCfg.Producer.Return.Successes = true
		kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
		producer, err = sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
		if err != nil {
			log.Fatalf("Failed to connect kafka: %v", err)
		}
		defer producer.Close()
	} else {
		log.Printf("kafka brokers not configured, notifications go to ws only")
	}

	journalStore := store.NewJournalStore(db)
	memberStore := store.NewMembershipStore(db)
	presence := cache.NewRedisPresence(rdb)
	versions := cache.NewVersionCache(rdb)

	hub := ws.NewHub()
	notifier := notify.NewNotifier(producer, cfg.Kafka.Topic, hub, notify.NotifierOptions{
		QueueSize:    cfg.Notify.QueueSize,
		EmitInterval: time.Duration(cfg.Notify.EmitIntervalSecs) * time.Second,
		PollInterval: time.Duration(cfg.Notify.PollIntervalSecs) * time.Second,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go notifier.Run(ctx)

	saver := autosave.NewHelper(journalStore)
	journal := handlers.NewJournalHandler(saver, journalStore, memberStore, presence, versions, notifier)
	manager := ws.NewManager(hub, memberStore, presence)

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware())
	v1.POST("/trips/:tripID/entries", journal.CreateEntry)
	v1.GET("/trips/:tripID/entries/:entryID", journal.GetEntry)
	v1.POST("/trips/:tripID/entries/:entryID/autosave", journal.AutoSave)
	v1.GET("/trips/:tripID/entries/:entryID/version", journal.GetVersion)
	v1.GET("/trips/:tripID/entries/:entryID/editors", journal.GetEditors)
	v1.GET("/ws", manager.Connect)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "ok"})
	})

	port := cfg.Running.Port
	_ = r.Run(fmt.Sprintf(":%d", port))
}
