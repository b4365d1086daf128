// finchat CLI entry point
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/batalabs/finchat/internal/api"
	"github.com/batalabs/finchat/internal/chat"
	"github.com/batalabs/finchat/internal/config"
	"github.com/batalabs/finchat/internal/tui"
	"github.com/batalabs/finchat/internal/web"
)

var version = "dev"

func init() {
	if version != "dev" {
		return
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
}

// setFlags collects repeated -set key=value flags.
type setFlags []string

func (s *setFlags) String() string     { return strings.Join(*s, ",") }
func (s *setFlags) Set(v string) error { *s = append(*s, v); return nil }

func main() {
	versionFlag := flag.Bool("version", false, "Print version and exit")
	tuiFlag := flag.Bool("tui", false, "Run the terminal UI instead of the web UI")
	apiFlag := flag.String("api", "", "Backend API base URL (e.g. http://localhost:5000/api)")
	bindFlag := flag.String("bind", "", "Network interface for the web UI (localhost, 0.0.0.0, or specific IP)")
	portFlag := flag.Int("port", -1, "Web UI port (0 picks a free port)")
	qrFlag := flag.Bool("qr", false, "Print a QR code for each LAN address of the web UI")
	var sets setFlags
	flag.Var(&sets, "set", "Override a preference for this run (key=value, repeatable)")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("finchat %s\n", version)
		return
	}

	// A missing .env is fine; variables already in the environment win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: reading .env: %v\n", err)
	}

	// All diagnostics go to ~/.local/share/finchat/finchat.log.
	logger := config.NewLogger()
	defer logger.Close()

	prefs := config.LoadPreferences()
	if applied, err := config.ApplyEnv(&prefs); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	} else if len(applied) > 0 {
		logger.Printf("config: applied %s", strings.Join(applied, ", "))
	}
	if err := applyFlags(&prefs, *apiFlag, *bindFlag, *portFlag, sets); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	client := api.New(prefs.APIURL, api.WithTimeout(prefs.RequestTimeout()))
	logger.Printf("finchat %s starting (backend %s)", version, client.BaseURL())

	newController := func() *chat.Controller {
		return chat.New(client, chat.Options{
			Logger:       logger,
			ErrorAlert:   prefs.ErrorAlert(),
			SuccessAlert: prefs.SuccessAlert(),
			Suggestions:  prefs.Suggestions,
		})
	}

	if *tuiFlag {
		// Start the TUI on a fresh line.
		fmt.Println()
		if err := tui.Run(newController(), prefs, version); err != nil {
			fmt.Fprintf(os.Stderr, "finchat failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	srv, err := web.NewServer(newController, &prefs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	srv.SetLogger(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *qrFlag {
		go printConnectionQRs(srv)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "web: shutdown: %v\n", err)
		}
	}()

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// applyFlags layers command-line overrides on top of saved preferences.
// Nothing here is written back to the config file.
func applyFlags(prefs *config.Preferences, apiURL, bind string, port int, sets []string) error {
	if apiURL != "" {
		if err := prefs.Set("api.url", apiURL); err != nil {
			return err
		}
	}
	if bind != "" {
		if err := prefs.Set("web.bind_address", bind); err != nil {
			return err
		}
	}
	if port >= 0 {
		if err := prefs.Set("web.port", fmt.Sprint(port)); err != nil {
			return err
		}
	}
	for _, kv := range sets {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("-set %q: expected key=value", kv)
		}
		if err := prefs.Set(strings.TrimSpace(key), value); err != nil {
			return fmt.Errorf("-set %s: %w", key, err)
		}
	}
	return nil
}

// printConnectionQRs waits for the listener and prints one QR code per LAN
// address so a phone on the same network can open the UI.
func printConnectionQRs(srv *web.Server) {
	urls := srv.LANURLs()
	if len(urls) == 0 {
		fmt.Fprintf(os.Stderr, "qr: web UI is bound to %s only; use -bind 0.0.0.0 to reach it from other devices\n", srv.URL())
		return
	}
	for _, u := range urls {
		qr, err := web.ConnectionQR(u)
		if err != nil {
			fmt.Fprintf(os.Stderr, "qr: %v\n", err)
			continue
		}
		fmt.Fprintf(os.Stderr, "\n%s\n%s\n", u, qr)
	}
}
