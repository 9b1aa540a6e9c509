package api

import (
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"silentbid/adapters/mailer"
	redisAdapter "silentbid/adapters/redis"
	"silentbid/adapters/sse"
	"silentbid/auction"
	"silentbid/store"
)

// eventsChannel 是所有拍賣事件共用的SSE頻道名稱
const eventsChannel = "auction"

type ServerImpl struct {
	engine      *auction.Engine
	closer      *auction.Closer
	store       *store.Store
	producer    *redisAdapter.Producer[auction.Event]
	consumer    redisAdapter.IConsumer[sse.PublishRequest[auction.Event]]
	sseManager  sse.IConnectionManager[auction.Event]
	htmlChecker *bluemonday.Policy
	redisClient *redis.Client
	policy      auction.Policy

	config ServerConfig
}

func NewServer(config ServerConfig) (*ServerImpl, error) {
	const op = "NewServer"

	// 初始化資料庫連線
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", config.DB.User, config.DB.Password, config.DB.Host, config.DB.Port, config.DB.Database)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to database, err=%w", op, err)
	}
	st := store.New(db)
	if err := st.Migrate(); err != nil {
		return nil, fmt.Errorf("[%s] Fail to migrate database, err=%w", op, err)
	}

	// 初始化Redis連線
	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})

	// 初始化事件stream的生產者與消費者
	producer, err := redisAdapter.NewProducer[auction.Event](redisClient, config.Redis.StreamKeys.Events)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create producer, err=%w", op, err)
	}
	consumer, err := redisAdapter.NewConsumer(
		redisClient,
		config.Redis.StreamKeys.Events,
		redisAdapter.WithConsumerParseFunc(func(m map[string]any) (sse.PublishRequest[auction.Event], error) {
			event, err := redisAdapter.UnmarshalMessage[auction.Event](m)
			if err != nil {
				return sse.PublishRequest[auction.Event]{}, fmt.Errorf("fail to parse auction event, err=%w", err)
			}
			return sse.PublishRequest[auction.Event]{
				Channel: eventsChannel,
				Message: event,
			}, nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create consumer, err=%w", op, err)
	}

	// 初始化SSE管理器
	sseManager := sse.NewConnectionManager[auction.Event](
		sse.WithManagerLogger[auction.Event](slog.Default()),
		sse.WithManagerSubscriber[auction.Event](consumer),
	)

	// 初始化商品鎖
	locker, err := redisAdapter.NewItemLocker(redisClient, config.Redis.KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create item locker, err=%w", op, err)
	}

	// 初始化信件協作者；沒有設定SMTP時不寄信，只影響通知不影響核心流程
	var bidMailer auction.Mailer
	if config.SMTP.Host != "" {
		m, err := mailer.New(mailer.Config{
			Host:     config.SMTP.Host,
			Port:     config.SMTP.Port,
			Username: config.SMTP.Username,
			Password: config.SMTP.Password,
			From:     config.SMTP.From,
		})
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create mailer, err=%w", op, err)
		}
		bidMailer = m
	}

	// 初始化結標器與出價引擎
	closerOpts := []auction.CloserOption{}
	engineOpts := []auction.EngineOption{}
	if bidMailer != nil {
		closerOpts = append(closerOpts, auction.WithCloserMailer(bidMailer))
		engineOpts = append(engineOpts, auction.WithEngineMailer(bidMailer))
	}
	policy := auction.AdminOnly(config.Auth.AdminEmail)
	closer, err := auction.NewCloser(st, locker, producer, policy, closerOpts...)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create closer, err=%w", op, err)
	}
	engine, err := auction.NewEngine(st, locker, producer, closer, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create engine, err=%w", op, err)
	}

	return &ServerImpl{
		engine:      engine,
		closer:      closer,
		store:       st,
		producer:    producer,
		consumer:    consumer,
		sseManager:  sseManager,
		htmlChecker: bluemonday.UGCPolicy(),
		redisClient: redisClient,
		policy:      policy,
		config:      config,
	}, nil
}

func (impl *ServerImpl) Start() {
	// 啟動producer
	impl.producer.Start()
	// 啟動consumer
	impl.consumer.Start()
	// 啟動sse connection manager
	impl.sseManager.Start()
}

func (impl *ServerImpl) Close() {
	// 關閉consumer
	impl.consumer.Close()
	// 關閉producer
	impl.producer.Close()
	// 關閉sse connection manager
	impl.sseManager.Done()
}

// RegisterRoutes 註冊所有HTTP路由。
// 讀取類端點不需要身份，寫入類端點都要求已驗證的身份。
func (impl *ServerImpl) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", impl.GetHealth)

	items := router.Group("/api/items")
	items.GET("", impl.GetItems)
	items.GET("/:id", impl.GetItem)

	authed := items.Group("")
	authed.Use(IdentityMiddleware(impl.config.Auth.PublicKey))
	authed.POST("", impl.PostItem)
	authed.POST("/:id/bid", impl.PostItemBid)
	authed.PATCH("/:id/close", impl.PatchItemClose)
	authed.DELETE("/:id", impl.DeleteItem)

	router.GET("/api/events", impl.GetEvents)
}
