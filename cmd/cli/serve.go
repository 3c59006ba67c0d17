package cli

// -----------------------------------------------------------------------------
// serve.go - CLI wrapper for the contract HTTP daemon
// -----------------------------------------------------------------------------
// Public commands (after RegisterServe):
//   serve start     - launch HTTP daemon
//   serve stop      - gracefully shut it down
//   serve status    - show listen address / uptime
//
// Routes exposed while running:
//   POST /contracts/deploy  {id, lang, source}         -> 201 Created
//   POST /contracts/call    {id, function, args[]}      -> {"result": "..."}
//   GET  /contracts                                     -> ["id", ...]
//
// Unlike the one-shot "contracts" commands, this daemon keeps a single
// ContractManager alive for as long as it runs, so a deploy followed by a
// later call against the same id actually observes persisted state.
// -----------------------------------------------------------------------------

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/alibertay/san-network/core"
	pkgconfig "github.com/alibertay/san-network/pkg/config"
)

var (
	serveMgr    *core.ContractManager
	serveSrv    *http.Server
	serveOnce   sync.Once
	serveLogger = logrus.StandardLogger()

	serveRuntimeCtx  context.Context
	serveRuntimeStop context.CancelFunc
	serveStartTime   time.Time
)

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func serveInit(cmd *cobra.Command, _ []string) error {
	var err error
	serveOnce.Do(func() {
		_ = godotenv.Load()

		lvlStr := os.Getenv("LOG_LEVEL")
		if lvlStr == "" {
			lvlStr = "info"
		}
		lvl, e := logrus.ParseLevel(lvlStr)
		if e != nil {
			err = e
			return
		}
		serveLogger.SetLevel(lvl)
		serveLogger.SetFormatter(&logrus.JSONFormatter{})

		cfg, e := pkgconfig.LoadFromEnv()
		if e != nil {
			err = e
			return
		}

		listen := cfg.HTTP.ListenAddr
		if listen == "" {
			listen = ":8585"
		}
		limiter := rate.NewLimiter(
			rate.Limit(orDefault(cfg.HTTP.RateLimitRPS, 200)),
			orDefault(cfg.HTTP.RateBurst, 100),
		)

		serveMgr = core.NewContractManager()

		r := mux.NewRouter()
		r.Use(serveRateLimit(limiter))
		r.HandleFunc("/contracts/deploy", serveDeployHandler).Methods(http.MethodPost)
		r.HandleFunc("/contracts/call", serveCallHandler).Methods(http.MethodPost)
		r.HandleFunc("/contracts", serveListHandler).Methods(http.MethodGet)

		serveSrv = &http.Server{
			Addr:         listen,
			Handler:      r,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  30 * time.Second,
		}
	})
	return err
}

func serveRateLimit(limiter *rate.Limiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "rate limit", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type deployRequest struct {
	ID     string `json:"id"`
	Lang   string `json:"lang"`
	Source string `json:"source"`
}

func serveDeployHandler(w http.ResponseWriter, r *http.Request) {
	var req deployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var bc core.Bytecode
	var err error
	switch req.Lang {
	case "", "pena":
		bc, err = core.NewPenaParser().Parse(req.Source)
	case "bytecode":
		bc, err = core.NewInstructionListParser().Parse(req.Source)
	default:
		http.Error(w, fmt.Sprintf("unknown lang %q", req.Lang), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := serveMgr.Deploy(req.ID, bc); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, core.ErrContractExists) {
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}
	serveLogger.WithField("contract", req.ID).Info("contract deployed")
	w.WriteHeader(http.StatusCreated)
}

type callRequest struct {
	ID       string   `json:"id"`
	Function string   `json:"function"`
	Args     []string `json:"args"`
}

type callResponse struct {
	Result string `json:"result"`
}

func serveCallHandler(w http.ResponseWriter, r *http.Request) {
	var req callRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	args := make([]core.Value, len(req.Args))
	for i, a := range req.Args {
		args[i] = parseCallArg(a)
	}

	result, err := serveMgr.Call(req.ID, req.Function, args)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, core.ErrUnknownContract) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(callResponse{Result: result.String()})
}

func serveListHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(serveMgr.List())
}

func handleServeStart(cmd *cobra.Command, _ []string) error {
	if serveSrv == nil {
		return errors.New("middleware not initialised")
	}
	if serveRuntimeCtx != nil {
		fmt.Fprintln(cmd.OutOrStdout(), "serve already running")
		return nil
	}

	serveRuntimeCtx, serveRuntimeStop = context.WithCancel(context.Background())
	go func() {
		if err := serveSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveLogger.Fatalf("sanvm http: %v", err)
		}
	}()
	serveStartTime = time.Now()
	fmt.Fprintf(cmd.OutOrStdout(), "serving contracts on %s\n", serveSrv.Addr)
	return nil
}

func handleServeStop(cmd *cobra.Command, _ []string) error {
	if serveRuntimeCtx == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "serve not running")
		return nil
	}
	serveRuntimeStop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = serveSrv.Shutdown(ctx)
	serveRuntimeCtx, serveRuntimeStop = nil, nil
	fmt.Fprintln(cmd.OutOrStdout(), "serve stopped")
	return nil
}

func handleServeStatus(cmd *cobra.Command, _ []string) error {
	running := serveRuntimeCtx != nil
	uptime := time.Since(serveStartTime).Truncate(time.Second)
	fmt.Fprintf(cmd.OutOrStdout(), "running: %v\nlisten: %s\nuptime: %s\n", running, serveSrv.Addr, uptime)
	return nil
}

var serveRootCmd = &cobra.Command{Use: "serve", Short: "Run the contract HTTP daemon", PersistentPreRunE: serveInit}
var serveStartCmd = &cobra.Command{Use: "start", Short: "Start the daemon", Args: cobra.NoArgs, RunE: handleServeStart}
var serveStopCmd = &cobra.Command{Use: "stop", Short: "Stop the daemon", Args: cobra.NoArgs, RunE: handleServeStop}
var serveStatusCmd = &cobra.Command{Use: "status", Short: "Report daemon status", Args: cobra.NoArgs, RunE: handleServeStatus}

func init() { serveRootCmd.AddCommand(serveStartCmd, serveStopCmd, serveStatusCmd) }

// ServeCmd is the consolidated export for this module's command tree.
var ServeCmd = serveRootCmd

// RegisterServe attaches ServeCmd to root.
func RegisterServe(root *cobra.Command) { root.AddCommand(ServeCmd) }
