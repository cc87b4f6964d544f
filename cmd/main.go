package main

import (
	"context"
	"net/http"

	"CardRoyale/config"
	"CardRoyale/internal/auth"
	"CardRoyale/internal/game/manager"
	"CardRoyale/internal/game/session"
	"CardRoyale/internal/leaderboard"
	"CardRoyale/internal/ledger"
	"CardRoyale/internal/matchmaker"
	"CardRoyale/internal/middleware"
	"CardRoyale/internal/storage"
	"CardRoyale/internal/utils"
	"CardRoyale/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	config.Load()
	utils.Init()

	//-------------------------------------------------------
	// 1. Ledger + leaderboard + persistence
	//-------------------------------------------------------
	led := ledger.New(config.C.Game.StartingBalance)
	agg := leaderboard.NewAggregator()
	led.OnEvent(agg.OnEvent)

	var store ledger.Store
	switch config.C.Persistence.Driver {
	case "postgres":
		if err := storage.InitPostgres(config.C.Database.DSN); err != nil {
			utils.Error.Fatalf("Postgres init failed: %v", err)
		}
		pg, err := ledger.NewPostgresStore(storage.DB)
		if err != nil {
			utils.Error.Fatalf("Ledger store init failed: %v", err)
		}
		store = pg
	default:
		store = ledger.NewFileStore(config.C.Persistence.Path)
	}

	if snap, ok, err := store.Load(); err != nil {
		utils.Error.Fatalf("Ledger restore failed: %v", err)
	} else if ok {
		led.Restore(snap)
		utils.Print.Info("Ledger restored", "accounts", len(snap.Balances), "events", len(snap.Events))
	}

	snapshotter := ledger.NewSnapshotter(led, store)
	go snapshotter.Run(config.C.Persistence.SnapshotInterval)
	defer snapshotter.Stop()

	//-------------------------------------------------------
	// 2. Redis (matchmaking pools)
	//-------------------------------------------------------
	if err := storage.InitRedis(
		config.C.Redis.Addr,
		config.C.Redis.Password,
		config.C.Redis.DB,
	); err != nil {
		utils.Error.Fatalf("Redis init failed: %v", err)
	}

	//-------------------------------------------------------
	// 3. Gin + CORS
	//-------------------------------------------------------
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	//-------------------------------------------------------
	// 4. Hub (must start before anything broadcasts)
	//-------------------------------------------------------
	hub := websocket.NewHub()
	go hub.Run()

	//-------------------------------------------------------
	// 5. Game manager (runs the sessions)
	//-------------------------------------------------------
	gameMgr := manager.New(led, hub, session.Config{
		BlackjackDeadline: config.C.Game.BlackjackDeadline,
		DurakDeadline:     config.C.Game.DurakDeadline,
		SettleGrace:       config.C.Game.SettleGrace,
	})
	hub.OnIncoming = gameMgr.HandlePlayerMessage

	//-------------------------------------------------------
	// 6. Matchmaker
	//-------------------------------------------------------
	repo := matchmaker.NewRedisRepo(storage.Rdb)
	svc := matchmaker.NewService(repo, config.C.Game.QueueTTL, hub)
	svc.InSession = gameMgr.InSession
	gameMgr.OnSessionEnd = func(seats []string) {
		svc.Release(context.Background(), seats)
	}
	svc.OnRoomReady = func(room *matchmaker.Room) {
		utils.Info.Printf("Room ready: %s variant=%s stake=%d players=%v", room.ID, room.Variant, room.Stake, room.Players)
		if err := gameMgr.StartSession(room); err != nil {
			utils.Error.Printf("StartSession error: %v", err)
		}
	}

	//-------------------------------------------------------
	// 7. Routes
	//-------------------------------------------------------
	lh := ledger.NewHandler(led)
	r.POST("/init", lh.Init)
	r.POST("/balance", lh.Balance)
	r.GET("/history/:userId", lh.History)
	r.POST("/topup", lh.Topup)

	lb := leaderboard.NewHandler(agg)
	r.GET("/leaderboard", lb.Get)

	authGroup := r.Group("/auth")
	{
		ah := auth.NewHandler()
		authGroup.POST("/login", ah.Login)
	}

	secret := []byte(config.C.JWT.Secret)
	authed := r.Group("/", middleware.JwtAuthMiddleware(secret))
	{
		authed.GET("/ws", websocket.ServeWS(hub))

		mh := matchmaker.NewHandler(svc)
		authed.POST("/match/join", mh.Join)
		authed.POST("/match/cancel", mh.Cancel)
	}

	//-------------------------------------------------------
	// 8. Serve
	//-------------------------------------------------------
	utils.Info.Printf("Server running on %s", config.C.Server.Port)
	r.Run(config.C.Server.Port)
}
