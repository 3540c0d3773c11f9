// Command azcreds-agent starts one named credential agent from command-line
// flags and serves its registry health as JSON on /healthz, demonstrating the
// wiring a service would do at startup: build token sources, hand them to
// an agent.Manager, and let callers fetch by name.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager/v3"
	flags "github.com/jessevdk/go-flags"

	"github.com/nimbus-oss/azurecreds/agent"
	"github.com/nimbus-oss/azurecreds/oauth2"
	"github.com/nimbus-oss/azurecreds/tokensource"
)

type command struct {
	ListenAddr string `long:"listen-addr" default:"127.0.0.1:8091"`

	CredentialName string        `long:"credential-name" required:"true"`
	Resource       string        `long:"resource" description:"IMDS/App-Service resource URI for a managed-identity credential"`
	Scope          string        `long:"scope" description:"OAuth2 scope for a workload-identity credential"`
	RefreshBefore  time.Duration `long:"refresh-before" default:"5m"`
}

func main() {
	cmd := &command{}
	parser := flags.NewParser(cmd, flags.Default)
	parser.NamespaceDelimiter = "-"

	if _, err := parser.Parse(); err != nil {
		os.Exit(1)
	}

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (cmd *command) Execute() error {
	log := lager.NewLogger("azcreds-agent")
	log.RegisterSink(lager.NewWriterSink(os.Stdout, lager.INFO))

	manager := agent.NewManager(log, clock.NewClock())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source, err := cmd.buildSource(log)
	if err != nil {
		return fmt.Errorf("building token source: %w", err)
	}

	if err := manager.Start(ctx, agent.Options{
		Name:          cmd.CredentialName,
		Source:        source,
		RefreshBefore: cmd.RefreshBefore,
		Prefetch:      agent.PrefetchAsync,
	}); err != nil {
		return fmt.Errorf("starting credential agent %q: %w", cmd.CredentialName, err)
	}
	defer manager.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler(manager))
	server := &http.Server{Addr: cmd.ListenAddr, Handler: mux}

	go func() {
		log.Info("listening", lager.Data{"addr": cmd.ListenAddr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listen-failed", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// buildSource picks a ManagedIdentity source when Resource is set, else a
// WorkloadIdentity source when Scope is set. A real deployment would read
// this choice (and any OAuth2/federation config) from its config file.
func (cmd *command) buildSource(log lager.Logger) (tokensource.Source, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}

	switch {
	case cmd.Resource != "":
		return tokensource.NewManagedIdentity(tokensource.ManagedIdentityConfig{
			Type:     "auto",
			Resource: cmd.Resource,
		}, httpClient, log)
	case cmd.Scope != "":
		exchanger := oauth2.New(httpClient, log)
		return tokensource.NewWorkloadIdentity(tokensource.WorkloadIdentityConfig{
			Scope: cmd.Scope,
			Cloud: oauth2.CloudPublic,
		}, exchanger)
	default:
		return nil, fmt.Errorf("one of --resource or --scope is required")
	}
}

func healthHandler(manager *agent.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := manager.Health()
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(health); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
