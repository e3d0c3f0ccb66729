// Command authdemo runs an interactive authorization code login from
// the terminal: it opens the system browser at the provider's login
// page, catches the redirect on a local listener, and keeps the token
// fresh until interrupted. Sessions persist in a file store, so a
// second run resumes without a new login.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/gorilla/mux"
	"github.com/jrsteele09/go-auth-client/auth"
	"github.com/jrsteele09/go-auth-client/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("authdemo failed")
	}
	log.Info().Msg("authdemo stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg := configFromEnv()
	displayAppname("authdemo")

	store, err := storage.NewFileStore(cfg.sessionFile)
	if err != nil {
		return fmt.Errorf("storage.NewFileStore: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	manager, err := auth.New(ctx, auth.Config{
		ClientID:              cfg.clientID,
		Issuer:                cfg.issuer,
		AuthorizationEndpoint: cfg.authorizationEndpoint,
		TokenEndpoint:         cfg.tokenEndpoint,
		LogoutEndpoint:        cfg.logoutEndpoint,
		RedirectURI:           fmt.Sprintf("http://localhost%s/callback", cfg.port),
		Scope:                 cfg.scope,
		Storage:               store,
		PostLogin: func() {
			log.Info().Msg("login complete")
		},
	}, auth.WithNavigator(browserNavigator{}))
	if err != nil {
		return fmt.Errorf("auth.New: %w", err)
	}
	defer manager.Close()

	server := &http.Server{Addr: cfg.port, Handler: routes(manager)}
	go listenAndServe(server)

	if err := manager.InitialCheck(ctx, nil); err != nil {
		log.Warn().Err(err).Msg("initial check")
	}

	waitForStopSignal()
	return shutdown(server)
}

// routes serves the OAuth2 redirect target plus a small status surface
// for poking at the session from another terminal.
func routes(manager *auth.Manager) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/callback", func(w http.ResponseWriter, req *http.Request) {
		if err := manager.HandleCallback(req.Context(), req.URL.Query()); err != nil {
			log.Warn().Err(err).Msg("callback")
			http.Error(w, manager.Err(), http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "Logged in. You can close this tab.")
		printSession(manager)
	}).Methods(http.MethodGet)

	r.HandleFunc("/token", func(w http.ResponseWriter, req *http.Request) {
		tok, err := manager.Token(req.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		fmt.Fprintln(w, tok)
	}).Methods(http.MethodGet)

	r.HandleFunc("/logout", func(w http.ResponseWriter, req *http.Request) {
		if err := manager.LogOut("", "", nil); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		fmt.Fprintln(w, "Logged out.")
	}).Methods(http.MethodPost)

	return r
}

func printSession(manager *auth.Manager) {
	evt := log.Info().Str("state", string(manager.State()))
	if claims := manager.IDTokenClaims(); claims != nil {
		if sub, ok := claims.Subject(); ok {
			evt = evt.Str("subject", sub)
		}
	}
	evt.Msg("session")
}

// browserNavigator opens login URLs in the system browser. Conclude is
// a no-op: there is no page URL to rewrite and no popup to close.
type browserNavigator struct{}

func (browserNavigator) Navigate(url string, _ auth.LoginMethod) error {
	log.Info().Str("url", url).Msg("opening browser")
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}

func (browserNavigator) Conclude(auth.LoginMethod, bool) {}

type envConfig struct {
	port                  string
	clientID              string
	issuer                string
	authorizationEndpoint string
	tokenEndpoint         string
	logoutEndpoint        string
	scope                 string
	sessionFile           string
}

func configFromEnv() envConfig {
	return envConfig{
		port:                  getEnv("PORT", ":8347"),
		clientID:              getEnv("CLIENT_ID", ""),
		issuer:                getEnv("ISSUER", ""),
		authorizationEndpoint: getEnv("AUTHORIZATION_ENDPOINT", ""),
		tokenEndpoint:         getEnv("TOKEN_ENDPOINT", ""),
		logoutEndpoint:        getEnv("LOGOUT_ENDPOINT", ""),
		scope:                 getEnv("SCOPE", "openid profile email"),
		sessionFile:           getEnv("SESSION_FILE", ".authdemo-session.json"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func listenAndServe(server *http.Server) {
	log.Info().Str("addr", server.Addr).Msg("callback listener started")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
