package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRouter(signaling *SignalingController, relay *RelayController, presence *PresenceController) *gin.Engine {
	router := gin.Default()

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowHeaders = []string{
		"Content-Type",
		"Origin",
		"Accept",
	}
	config.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	router.Use(cors.New(config))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")

	if signaling != nil {
		api.POST("/room", signaling.CreateRoom)
		api.GET("/room", signaling.GetRoom)
		api.GET("/offer", signaling.GetOffer)
		api.POST("/join", signaling.Join)
		api.GET("/join", signaling.GetJoinerOffer)
		api.DELETE("/join", signaling.ClearJoinerOffer)
		api.GET("/pending", signaling.GetPendingJoiners)
		api.POST("/pending", signaling.IssueJoinerOffer)
		api.POST("/answer", signaling.SubmitAnswer)
		api.GET("/answer", signaling.GetPendingAnswers)
		api.DELETE("/answer", signaling.ClearAnswer)
		api.POST("/peer-signal", signaling.SetPeerSignal)
		api.GET("/peer-signal", signaling.GetPeerSignals)
		api.DELETE("/peer-signal", signaling.ClearPeerSignal)
		api.GET("/peers", signaling.GetPeers)
		api.POST("/peers", signaling.UpdatePeers)
		api.POST("/heartbeat", signaling.Heartbeat)
		api.GET("/stats", signaling.GetStats)
	}

	if relay != nil {
		api.POST("/relay", relay.Forward)
	}

	if presence != nil {
		api.POST("/presence", presence.Announce)
		api.GET("/presence", presence.List)
	}

	return router
}
