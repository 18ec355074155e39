// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/MicksProjects/numbers-game/internal/auth"
	"github.com/MicksProjects/numbers-game/internal/database"
	"github.com/MicksProjects/numbers-game/internal/handlers"
	"github.com/MicksProjects/numbers-game/internal/middleware"
	"github.com/MicksProjects/numbers-game/internal/realtime"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pool, err := database.Connect(ctx)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer pool.Close()

	rdb, err := realtime.ConnectRedis()
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	identity, err := auth.NewEphemeralProvider()
	if err != nil {
		log.Fatalf("failed to init identity provider: %v", err)
	}

	store := database.NewRoomStore(pool)
	hub := realtime.NewHub()
	broker := realtime.NewBroker(rdb, logger)
	go broker.Listen(ctx, hub)

	srv := handlers.NewServer(store, broker, hub, identity, logger)

	mux := http.NewServeMux()

	// room endpoints
	logged := middleware.LogMiddleware(logger)
	mux.Handle("/rooms/create", logged(http.HandlerFunc(srv.CreateRoomHandler)))
	mux.Handle("/rooms/join", logged(http.HandlerFunc(srv.JoinRoomHandler)))
	mux.Handle("/rooms/secret", logged(http.HandlerFunc(srv.SetSecretHandler)))
	mux.Handle("/rooms/guess", logged(http.HandlerFunc(srv.SubmitGuessHandler)))
	mux.Handle("/rooms/leave", logged(http.HandlerFunc(srv.LeaveRoomHandler)))
	mux.Handle("/rooms/list", logged(http.HandlerFunc(srv.ListRoomsHandler)))
	mux.Handle("/rooms/get", logged(http.HandlerFunc(srv.GetRoomHandler)))
	mux.Handle("/rooms/mine", logged(http.HandlerFunc(srv.MyRoomHandler)))
	mux.Handle("/rooms/resolve", logged(http.HandlerFunc(srv.ResolveRoomHandler)))

	// realtime subscriptions; unwrapped so the upgrade can hijack the
	// connection, the handlers log connects themselves
	mux.Handle("/rooms/ws/", srv.RoomWSHandler(logger))
	mux.Handle("/lobby/ws", srv.LobbyWSHandler(logger))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)

	server := &http.Server{Addr: addr, Handler: mux}
	errc := make(chan error, 1)
	go func() {
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		log.Fatalf("server exited: %v", err)
	case <-ctx.Done():
		logger.Info("shutting down")
		server.Shutdown(context.Background())
	}
}
